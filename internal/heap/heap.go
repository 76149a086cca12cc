// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package heap implements LocalHeap, the per-thread allocator (spec §3,
// §4.2): size-classed free lists, a TLAB, lazy sweep, a SATB buffer and a
// dirty-page remembered set. Its span-walking shape is grounded on
// internal/gocore/process.go's span classification loop in markObjects'
// caller (the in-use/free/manual span triage there becomes, here, the
// live allocate/lazy-sweep triage over a page's slot bitmap) — the
// teacher classifies spans it finds already swept by the runtime; this
// package is the thing doing the sweeping.
package heap

import (
	"unsafe"

	"github.com/pkg/errors"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
	"github.com/XuHaoJun/rudo-sub003/internal/gclog"
	"github.com/XuHaoJun/rudo-sub003/internal/incgc"
	"github.com/XuHaoJun/rudo-sub003/internal/lockutil"
	"github.com/XuHaoJun/rudo-sub003/internal/page"
	"github.com/XuHaoJun/rudo-sub003/internal/tcb"
)

var log = gclog.Component("heap")

// maxLazySweepSlotsPerAlloc bounds lazy sweep's per-call work (spec §4.2:
// "Lazy sweep is bounded per call").
const maxLazySweepSlotsPerAlloc = 64

type classState struct {
	tlab    tlab
	pages   []*page.Header // every page this heap owns for this class
	partial []*page.Header // pages believed to still have a free slot
	needsSweep []*page.Header
}

// LocalHeap is the per-thread allocator (spec §3 LocalHeap).
type LocalHeap struct {
	Owner tcb.ThreadID

	mgr *page.Manager
	inc *incgc.State

	mu      lockutil.Mutex
	classes []*classState
	large   []*page.Header

	SATB  *SATBBuffer
	Dirty DirtyList
}

// New constructs a LocalHeap over the given page manager and incremental
// mark state, with a SATB buffer bounded at satbCapacity entries (spec §6
// "incremental.satb_buffer_capacity").
func New(owner tcb.ThreadID, mgr *page.Manager, inc *incgc.State, satbCapacity int) *LocalHeap {
	h := &LocalHeap{
		Owner:   owner,
		mgr:     mgr,
		inc:     inc,
		classes: make([]*classState, page.NumClasses()),
		SATB:    NewSATBBuffer(satbCapacity),
	}
	for i := range h.classes {
		h.classes[i] = &classState{}
	}
	return h
}

// FlushSATB implements tcb.HeapOwner: drains the thread-local SATB buffer,
// shading each captured pointer gray (spec §4.7: "SATB buffers flushed at
// slice boundaries, their contents pushed gray").
func (h *LocalHeap) FlushSATB() {
	for _, ptr := range h.SATB.Drain() {
		incgc.ShadeGray(ptr)
	}
}

// Alloc performs the allocation sequence from spec §4.2: TLAB, then the
// size class's free list, then a bounded lazy sweep, then a fresh page.
func (h *LocalHeap) Alloc(size int, drop func(), trace func(func(*box.Header)), capture func(*[]*box.Header)) (*box.Header, error) {
	classIdx := page.SizeClassFor(size)
	if classIdx < 0 {
		return h.allocLarge(size, drop, trace, capture)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	cs := h.classes[classIdx]

	p, slot := h.tryTLABAndPartialLocked(cs)
	if p == nil {
		h.lazySweepLocked(cs)
		p, slot = h.tryTLABAndPartialLocked(cs)
	}
	if p == nil {
		np, err := h.mgr.AcquireSmall(classIdx, uint64(h.Owner))
		if err != nil {
			return nil, errors.Wrap(err, "heap: allocate fresh page")
		}
		cs.pages = append(cs.pages, np)
		cs.tlab.page = np
		p = np
		np.Lock()
		slot = np.AllocSlot()
		np.Unlock()
	}

	obj := &box.Header{}
	obj.Init(drop, trace, capture)
	obj.SetLocation(unsafe.Pointer(p), slot)
	p.Slots[slot].Obj = obj

	if h.inc.Phase() == incgc.Marking {
		// New allocations during Marking are marked black immediately
		// (spec §4.7), preserving the SATB invariant without a barrier
		// on allocation beyond setting one bit.
		p.Lock()
		p.SetMarked(slot)
		p.Unlock()
	}
	return obj, nil
}

// tryTLABAndPartialLocked tries the class's current TLAB page, then its
// partial-page list, returning the page+slot on success. h.mu must be
// held; this in turn takes each candidate page's own lock around the
// slot-list mutation (page.AllocSlot's contract).
func (h *LocalHeap) tryTLABAndPartialLocked(cs *classState) (*page.Header, int) {
	if tp := cs.tlab.page; tp != nil {
		tp.Lock()
		i := tp.AllocSlot()
		tp.Unlock()
		if i >= 0 {
			return tp, i
		}
	}
	for len(cs.partial) > 0 {
		p := cs.partial[len(cs.partial)-1]
		p.Lock()
		i := p.AllocSlot()
		p.Unlock()
		if i < 0 {
			cs.partial = cs.partial[:len(cs.partial)-1]
			continue
		}
		cs.tlab.page = p
		return p, i
	}
	return nil, -1
}

// lazySweepLocked sweeps up to maxLazySweepSlotsPerAlloc allocated-but-
// unmarked slots across pages on this class's needsSweep list, dropping
// dead objects and linking their slots into the free list, then leaves
// any page that gained room on the partial list (spec §4.2: "Lazy sweep
// is bounded per call and preserves object identity").
func (h *LocalHeap) lazySweepLocked(cs *classState) {
	budget := maxLazySweepSlotsPerAlloc
	for len(cs.needsSweep) > 0 && budget > 0 {
		p := cs.needsSweep[len(cs.needsSweep)-1]
		swept, done := h.sweepPageSlots(p, &budget)
		if swept > 0 && p.FreeListHead >= 0 {
			cs.partial = append(cs.partial, p)
		}
		if done {
			cs.needsSweep = cs.needsSweep[:len(cs.needsSweep)-1]
			p.Flags &^= page.FlagNeedsSweep
		}
	}
}

// sweepPageSlots inspects up to *budget allocated slots on p, freeing
// slots whose object is unmarked. An object with live weak references
// keeps its slot allocated but dead (DEAD_FLAG set, handlers swapped to
// no-ops); one with none is fully reclaimed.
func (h *LocalHeap) sweepPageSlots(p *page.Header, budget *int) (swept int, done bool) {
	p.Lock()
	defer p.Unlock()
	n := len(p.Slots)
	for i := 0; i < n && *budget > 0; i++ {
		if !p.IsAllocated(i) {
			continue
		}
		*budget--
		if p.IsMarked(i) {
			continue
		}
		obj := p.Slots[i].Obj
		if obj == nil {
			continue
		}
		if obj.WeakCount() == 0 {
			if obj.BeginDrop() {
				obj.DropFn()
				obj.FinishDrop()
			}
			obj.ResetForReuse()
			p.FreeSlot(i)
			p.DeadCount++
			swept++
		} else {
			if !obj.HasDeadFlag() {
				obj.SetDead()
				if obj.BeginDrop() {
					obj.DropFn()
					obj.FinishDrop()
				}
			}
		}
	}
	return swept, n == 0 || allAccountedFor(p)
}

// ReclaimDeadObject physically reclaims obj's slot: small-object slots are
// relinked onto their page's free list, large-object extents are released
// back to the page manager. Callers must have already observed
// obj.WeakCount() == 0 — the same condition sweepPageSlots and the
// collector's eager sweep require before taking this branch (spec §3
// Lifecycle item 2). obj's own page lock is not assumed held.
func ReclaimDeadObject(obj *box.Header) {
	if obj.BeginDrop() {
		obj.DropFn()
		obj.FinishDrop()
	}
	obj.ResetForReuse()

	pageRef, slot := obj.Location()
	p := (*page.Header)(pageRef)
	if p == nil {
		return
	}
	if p.Flags&page.FlagLarge != 0 {
		if mgr := p.Manager(); mgr != nil {
			if err := mgr.Release(p); err != nil {
				log.WithError(err).Warn("failed to release large object extent")
			}
		}
		return
	}
	p.Lock()
	p.FreeSlot(slot)
	p.DeadCount++
	p.Unlock()
}

// MarkDeadObjectKeepSlot sets DEAD_FLAG and runs obj's drop handlers without
// freeing its slot, for the case where live weak references survive the last
// strong reference (spec §3 Lifecycle item 2's "otherwise" branch). A slot
// marked this way stays allocated until a later sweep observes
// obj.WeakCount() == 0 and reclaims it.
func MarkDeadObjectKeepSlot(obj *box.Header) {
	if obj.HasDeadFlag() {
		return
	}
	obj.SetDead()
	if obj.BeginDrop() {
		obj.DropFn()
		obj.FinishDrop()
	}
}

func allAccountedFor(p *page.Header) bool {
	for i := range p.Slots {
		if p.IsAllocated(i) && !p.IsMarked(i) {
			return false
		}
	}
	return true
}

// allocLarge services an allocation that doesn't fit any small-object size
// class: a dedicated multi-page extent registered in the page manager's
// interior-pointer map (spec §4.2).
func (h *LocalHeap) allocLarge(size int, drop func(), trace func(func(*box.Header)), capture func(*[]*box.Header)) (*box.Header, error) {
	numPages := (size + page.PageSize - 1) / page.PageSize
	if numPages < 1 {
		numPages = 1
	}
	p, err := h.mgr.AcquireLarge(numPages, uint64(h.Owner))
	if err != nil {
		return nil, errors.Wrap(err, "heap: allocate large extent")
	}
	obj := &box.Header{}
	obj.Init(drop, trace, capture)
	obj.SetLocation(unsafe.Pointer(p), 0)
	p.Slots[0].Obj = obj
	bitSetAlloc(p)

	h.mu.Lock()
	h.large = append(h.large, p)
	h.mu.Unlock()

	if h.inc.Phase() == incgc.Marking {
		p.Lock()
		p.SetMarked(0)
		p.Unlock()
	}
	return obj, nil
}

func bitSetAlloc(p *page.Header) {
	p.Lock()
	defer p.Unlock()
	_ = p.AllocSlot() // large-object pages have exactly one slot, always index 0
}

// ForEachPage calls fn for every small-object page owned by this heap,
// used by the collector's sweep phase.
func (h *LocalHeap) ForEachPage(fn func(classIdx int, p *page.Header)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for classIdx, cs := range h.classes {
		for _, p := range cs.pages {
			fn(classIdx, p)
		}
	}
}

// ForEachLargePage calls fn for every large-object head page owned by this
// heap.
func (h *LocalHeap) ForEachLargePage(fn func(p *page.Header)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, p := range h.large {
		fn(p)
	}
}

// MarkNeedsSweep flags a page for lazy sweep consideration — called by the
// collector after FinalMark, for any page whose dead-object count rose.
func (h *LocalHeap) MarkNeedsSweep(classIdx int, p *page.Header) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p.Flags |= page.FlagNeedsSweep
	cs := h.classes[classIdx]
	cs.needsSweep = append(cs.needsSweep, p)
	log.WithField("size_class", classIdx).Debug("page queued for lazy sweep")
}

// Manager exposes the heap's page manager, for the collector.
func (h *LocalHeap) Manager() *page.Manager { return h.mgr }

// IncState exposes the heap's incremental state, for the collector.
func (h *LocalHeap) IncState() *incgc.State { return h.inc }
