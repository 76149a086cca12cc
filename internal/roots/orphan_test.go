// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package roots

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
	"github.com/XuHaoJun/rudo-sub003/internal/tcb"
)

type fakeRootPtr struct {
	h      *box.Header
	strong int
}

func (f *fakeRootPtr) IncRef() { f.strong++ }
func (f *fakeRootPtr) DecRef() bool {
	f.strong--
	return f.strong == 0
}
func (f *fakeRootPtr) GcHeader() *box.Header { return f.h }

func newTestRootPtr() *fakeRootPtr {
	h := &box.Header{}
	h.Init(box.NoOpDrop, box.NoOpTrace, box.NoOpCapture)
	return &fakeRootPtr{h: h, strong: 1}
}

type noopHeapOwner struct{}

func (noopHeapOwner) FlushSATB() {}

func TestOrphanAbsorbMigratesEntries(t *testing.T) {
	owner := tcb.New(5, noopHeapOwner{})
	p := newTestRootPtr()

	owner.RootsMu().Lock()
	id := owner.Roots().Insert(p)
	owner.RootsMu().Unlock()

	o := NewOrphanTable()
	owner.RootsMu().Lock()
	o.Absorb(5, owner.Roots())
	owner.RootsMu().Unlock()

	got, ok := o.Lookup(5, id)
	require.True(t, ok)
	assert.Same(t, p.h, got.GcHeader())
	assert.Equal(t, 1, o.Len())
}

func TestOrphanRemove(t *testing.T) {
	owner := tcb.New(5, noopHeapOwner{})
	p := newTestRootPtr()
	owner.RootsMu().Lock()
	id := owner.Roots().Insert(p)
	owner.RootsMu().Unlock()

	o := NewOrphanTable()
	owner.RootsMu().Lock()
	o.Absorb(5, owner.Roots())
	owner.RootsMu().Unlock()

	removed, ok := o.Remove(5, id)
	require.True(t, ok)
	assert.Same(t, p.h, removed.GcHeader())
	assert.Equal(t, 0, o.Len())

	_, ok = o.Lookup(5, id)
	assert.False(t, ok)
}

func TestOrphanEachVisitsAll(t *testing.T) {
	owner := tcb.New(5, noopHeapOwner{})
	owner.RootsMu().Lock()
	owner.Roots().Insert(newTestRootPtr())
	owner.Roots().Insert(newTestRootPtr())
	owner.RootsMu().Unlock()

	o := NewOrphanTable()
	owner.RootsMu().Lock()
	o.Absorb(5, owner.Roots())
	owner.RootsMu().Unlock()

	var seen int
	o.Each(func(tcb.ThreadID, tcb.HandleID, tcb.RootPtr) { seen++ })
	assert.Equal(t, 2, seen)
}
