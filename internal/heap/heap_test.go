// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
	"github.com/XuHaoJun/rudo-sub003/internal/incgc"
	"github.com/XuHaoJun/rudo-sub003/internal/page"
	"github.com/XuHaoJun/rudo-sub003/internal/tcb"
)

type fakeSeg struct{}

func (fakeSeg) Acquire(nBytes int) (uintptr, []byte, error) {
	mem := make([]byte, nBytes)
	return uintptr(unsafe.Pointer(&mem[0])), mem, nil
}
func (fakeSeg) Release(mem []byte) error { return nil }

func newTestHeap(t *testing.T) (*LocalHeap, *incgc.State) {
	t.Helper()
	inc := incgc.NewState(true, 100, 0, 16)
	mgr := page.NewManager(fakeSeg{})
	return New(tcb.ThreadID(1), mgr, inc, 8), inc
}

func TestAllocFillsAPageThenGetsFreshOne(t *testing.T) {
	h, _ := newTestHeap(t)
	classIdx := page.SizeClassFor(32)
	slotsPerPage := page.PageSize / page.ClassSize(classIdx)

	var firstPage unsafe.Pointer
	for i := 0; i < slotsPerPage; i++ {
		obj, err := h.Alloc(32, box.NoOpDrop, box.NoOpTrace, box.NoOpCapture)
		require.NoError(t, err)
		ref, _ := obj.Location()
		if i == 0 {
			firstPage = ref
		} else {
			assert.Equal(t, firstPage, ref, "allocations should stay on the TLAB page until full")
		}
	}

	obj, err := h.Alloc(32, box.NoOpDrop, box.NoOpTrace, box.NoOpCapture)
	require.NoError(t, err)
	ref, _ := obj.Location()
	assert.NotEqual(t, firstPage, ref, "page is full, a fresh page must be acquired")
}

func TestAllocDuringMarkingMarksBlack(t *testing.T) {
	h, inc := newTestHeap(t)
	require.True(t, inc.BeginSnapshot())
	require.True(t, inc.BeginMarking())

	obj, err := h.Alloc(32, box.NoOpDrop, box.NoOpTrace, box.NoOpCapture)
	require.NoError(t, err)
	ref, slot := obj.Location()
	p := (*page.Header)(ref)
	p.Lock()
	marked := p.IsMarked(slot)
	p.Unlock()
	assert.True(t, marked, "new allocations during Marking must be marked black")
}

func TestAllocLargeRoutesToLargeObjectPath(t *testing.T) {
	h, _ := newTestHeap(t)
	obj, err := h.Alloc(page.PageSize*2, box.NoOpDrop, box.NoOpTrace, box.NoOpCapture)
	require.NoError(t, err)
	ref, slot := obj.Location()
	p := (*page.Header)(ref)
	assert.Equal(t, 0, slot)
	assert.True(t, p.IsAllocated(0))

	var seen []*page.Header
	h.ForEachLargePage(func(p *page.Header) { seen = append(seen, p) })
	assert.Len(t, seen, 1)
}

func TestLazySweepReclaimsUnmarkedAndKeepsWeaklyReferenced(t *testing.T) {
	h, _ := newTestHeap(t)
	classIdx := page.SizeClassFor(16)

	dropped := 0
	dead, err := h.Alloc(16, func() { dropped++ }, box.NoOpTrace, box.NoOpCapture)
	require.NoError(t, err)
	weaklyAlive, err := h.Alloc(16, func() { dropped++ }, box.NoOpTrace, box.NoOpCapture)
	require.NoError(t, err)
	weaklyAlive.IncWeak()

	ref, _ := dead.Location()
	p := (*page.Header)(ref)

	h.ForEachPage(func(idx int, pg *page.Header) {
		if idx == classIdx {
			pg.Flags |= page.FlagNeedsSweep
		}
	})
	cs := h.classes[classIdx]
	cs.needsSweep = append(cs.needsSweep, p)

	h.mu.Lock()
	h.lazySweepLocked(cs)
	h.mu.Unlock()

	_, deadSlot := dead.Location()
	p.Lock()
	deadAllocated := p.IsAllocated(deadSlot)
	p.Unlock()
	assert.False(t, deadAllocated, "unmarked object with no weak refs is fully reclaimed")
	assert.Equal(t, 2, dropped)

	assert.True(t, weaklyAlive.HasDeadFlag(), "weakly-referenced dead object keeps its slot but is flagged dead")
}

func TestFlushSATBShadesDrainedPointers(t *testing.T) {
	h, inc := newTestHeap(t)
	incgc.Register(inc)

	p := page.NewSmallHeader(0x5000, page.SizeClassFor(32), 1)
	slot := p.AllocSlot()
	obj := &box.Header{}
	obj.Init(box.NoOpDrop, box.NoOpTrace, box.NoOpCapture)
	obj.SetLocation(unsafe.Pointer(p), slot)

	require.True(t, h.SATB.Record(obj))
	h.FlushSATB()

	p.Lock()
	marked := p.IsMarked(slot)
	p.Unlock()
	assert.True(t, marked)
	assert.Equal(t, 0, h.SATB.Len())
}

func TestDirtyListTakeTwiceSplitsSnapshotAndOverflow(t *testing.T) {
	var d DirtyList
	p1 := page.NewSmallHeader(0x6000, page.SizeClassFor(32), 1)
	p2 := page.NewSmallHeader(0x7000, page.SizeClassFor(32), 1)

	d.Record(p1)
	snapshot := d.Take()
	assert.Len(t, snapshot, 1)

	d.Record(p2)
	overflow := d.Take()
	assert.Len(t, overflow, 1)
	assert.NotEqual(t, snapshot[0], overflow[0])
}

func TestDirtyListRecordDedupes(t *testing.T) {
	var d DirtyList
	p := page.NewSmallHeader(0x8000, page.SizeClassFor(32), 1)
	d.Record(p)
	d.Record(p)
	assert.Equal(t, 1, d.Len())
}
