// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcb

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
)

type fakeHeapOwner struct{ flushed int }

func (f *fakeHeapOwner) FlushSATB() { f.flushed++ }

type fakeRootPtr struct {
	h        *box.Header
	strong   int
	lastZero bool
}

func (f *fakeRootPtr) IncRef() { f.strong++ }
func (f *fakeRootPtr) DecRef() bool {
	f.strong--
	f.lastZero = f.strong == 0
	return f.lastZero
}
func (f *fakeRootPtr) GcHeader() *box.Header { return f.h }

func newFakeRootPtr() *fakeRootPtr {
	h := &box.Header{}
	h.Init(box.NoOpDrop, box.NoOpTrace, box.NoOpCapture)
	return &fakeRootPtr{h: h, strong: 1}
}

func TestNewTCBStartsAliveNotParked(t *testing.T) {
	tc := New(1, &fakeHeapOwner{})
	assert.True(t, tc.Alive())
	assert.False(t, tc.Parked())
	assert.False(t, tc.GCRequested())
}

func TestMarkDeadFlipsAlive(t *testing.T) {
	tc := New(1, &fakeHeapOwner{})
	tc.MarkDead()
	assert.False(t, tc.Alive())
}

func TestCheckSafepointRunsSliceFnWhenNotRequested(t *testing.T) {
	tc := New(1, &fakeHeapOwner{})
	var ran bool
	tc.CheckSafepoint(func() { ran = true })
	assert.True(t, ran)
}

func TestCheckSafepointParksUntilCleared(t *testing.T) {
	tc := New(1, &fakeHeapOwner{})
	tc.RequestSafepoint()
	assert.True(t, tc.GCRequested())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tc.CheckSafepoint(nil)
	}()

	require.Eventually(t, tc.Parked, time.Second, time.Millisecond)

	tc.ClearSafepoint()
	wg.Wait()
	assert.False(t, tc.Parked())
	assert.False(t, tc.GCRequested())
}

func TestCrossThreadRootTableInsertLookupRemove(t *testing.T) {
	tc := New(1, &fakeHeapOwner{})
	rp := newFakeRootPtr()

	tc.RootsMu().Lock()
	id := tc.Roots().Insert(rp)
	tc.RootsMu().Unlock()

	tc.RootsMu().Lock()
	got, ok := tc.Roots().Lookup(id)
	tc.RootsMu().Unlock()
	require.True(t, ok)
	assert.Same(t, rp.h, got.GcHeader())

	tc.RootsMu().Lock()
	removed, ok := tc.Roots().Remove(id)
	tc.RootsMu().Unlock()
	require.True(t, ok)
	assert.Same(t, rp.h, removed.GcHeader())

	tc.RootsMu().Lock()
	_, ok = tc.Roots().Lookup(id)
	tc.RootsMu().Unlock()
	assert.False(t, ok)
}

func TestCrossThreadRootTableEachVisitsAll(t *testing.T) {
	tc := New(1, &fakeHeapOwner{})
	tc.RootsMu().Lock()
	tc.Roots().Insert(newFakeRootPtr())
	tc.Roots().Insert(newFakeRootPtr())
	tc.Roots().Insert(newFakeRootPtr())
	count := tc.Roots().Len()
	var seen int
	tc.Roots().Each(func(HandleID, RootPtr) { seen++ })
	tc.RootsMu().Unlock()

	assert.Equal(t, 3, count)
	assert.Equal(t, 3, seen)
}
