// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package barrier implements the four write-barrier entry points (spec
// §4.3): generational OLD->YOUNG dirty recording, SATB old-value capture,
// Dijkstra new-value mark-black, and a unified barrier for cross-thread
// or orphan cells. Cells in the root package call these on every mutable
// access; this package never constructs a cell itself.
//
// The teacher has no write-barrier analog — internal/gocore reads one
// frozen heap and never observes a mutation — so this package's shape is
// new, grounded instead on the header bit-discipline internal/box already
// established (an Acquire/Release flag pair, checked under the object's
// own page lock) and generalized to the four operations spec §4.3 lists.
package barrier

import (
	"github.com/XuHaoJun/rudo-sub003/internal/box"
	"github.com/XuHaoJun/rudo-sub003/internal/heap"
	"github.com/XuHaoJun/rudo-sub003/internal/incgc"
	"github.com/XuHaoJun/rudo-sub003/internal/page"
	"github.com/XuHaoJun/rudo-sub003/internal/tcb"
)

// GcCapture is the reflection a cell's payload implements so the SATB
// barrier can enumerate the Gc pointers it held before a mutation (spec
// §4.4). CaptureGcPtrs may return nil; CaptureGcPtrsInto is the canonical
// method and must append, never replace, *buf.
type GcCapture interface {
	CaptureGcPtrs() []*box.Header
	CaptureGcPtrsInto(buf *[]*box.Header)
}

// ownerOK reports whether the current thread may touch p's dirty bits
// directly (spec §4.3 "Thread-ownership check"): either p is unowned
// (owner_thread == 0, e.g. an orphaned or not-yet-claimed page) or it
// belongs to the calling thread.
func ownerOK(p *page.Header, current tcb.ThreadID) bool {
	return p.OwnerThread == 0 || p.OwnerThread == uint64(current)
}

// headerPage resolves obj's owning page, or nil if obj is nil or the
// page looks stale. Barriers are best-effort against a garbage pointer
// (spec §7 "Internal inconsistency... silently skip the operation").
func headerPage(obj *box.Header) *page.Header {
	if obj == nil {
		return nil
	}
	ref, _ := obj.Location()
	if ref == nil {
		return nil
	}
	p := (*page.Header)(ref)
	if !p.Valid() {
		return nil
	}
	return p
}

// Generational records an OLD->YOUNG write on obj's slot if obj's
// containing object is OLD (spec §4.3 item 1): page generation > 0 OR
// GEN_OLD_FLAG set on the box itself. Both are checked, since a page can
// be promoted before its first-time allocations are, and vice versa.
// Falls through (does nothing) if the current thread doesn't own obj's
// page — the caller is expected to have already routed that case to
// Unified instead.
func Generational(obj *box.Header, h *heap.LocalHeap, current tcb.ThreadID) {
	p := headerPage(obj)
	if p == nil {
		return
	}
	_, slot := obj.Location()
	p.Lock()
	defer p.Unlock()
	if !ownerOK(p, current) {
		return
	}
	if p.Generation == 0 && !obj.HasGenOldFlag() {
		return
	}
	if p.IsDirty(slot) {
		return
	}
	p.SetDirty(slot)
	h.Dirty.Record(p)
}

// SATBPreWrite is the pre-write SATB barrier (spec §4.3 item 2): while
// incremental marking is active (Snapshot, Marking or FinalMark), captures old's
// embedded Gc pointers into the thread-local SATB buffer. On overflow,
// requests SatbBufferOverflow fallback and stops recording for the rest
// of this call — the caller is not expected to retry.
func SATBPreWrite(old GcCapture, h *heap.LocalHeap, inc *incgc.State) {
	if !snapshotInFlight(inc) || old == nil {
		return
	}
	var ptrs []*box.Header
	old.CaptureGcPtrsInto(&ptrs)
	for _, ptr := range ptrs {
		if !h.SATB.Record(ptr) {
			inc.RequestFallback(incgc.SatbBufferOverflow)
			return
		}
	}
}

// DijkstraPostWrite is the post-write Dijkstra barrier (spec §4.3 item 3):
// called when a write guard drops, marks newVal black immediately if
// incremental marking is active. Required for write-guard cells because
// the mutation may land long after the initial SATB snapshot at
// acquisition time.
func DijkstraPostWrite(newVal GcCapture, inc *incgc.State) {
	if !snapshotInFlight(inc) || newVal == nil {
		return
	}
	var ptrs []*box.Header
	newVal.CaptureGcPtrsInto(&ptrs)
	for _, ptr := range ptrs {
		incgc.ShadeGray(ptr)
	}
}

// Unified is the cross-thread/orphan barrier (spec §4.3 item 4): performs
// the generational and SATB steps atomically with respect to each other
// (both are taken under the page lock) and, since the calling thread does
// not own obj's page, records the dirty page into orphanDirty (the
// process-wide dirty list the collector drains for orphaned/foreign-owned
// pages — there is no owning LocalHeap to hand it to) and old's pointers
// into the process-global cross-thread SATB buffer instead of a
// thread-local one.
func Unified(obj *box.Header, old GcCapture, orphanDirty *heap.DirtyList, inc *incgc.State) {
	p := headerPage(obj)
	if p != nil {
		_, slot := obj.Location()
		p.Lock()
		defer p.Unlock()
		isOld := p.Generation > 0 || obj.HasGenOldFlag()
		if isOld && !p.IsDirty(slot) {
			p.SetDirty(slot)
			orphanDirty.Record(p)
		}
	}
	if !snapshotInFlight(inc) || old == nil {
		return
	}
	var ptrs []*box.Header
	old.CaptureGcPtrsInto(&ptrs)
	for _, ptr := range ptrs {
		inc.GlobalSATB.Record(ptr, inc)
	}
}

// snapshotInFlight reports whether the incremental state machine is past
// Snapshot and not yet done marking, i.e. whether barriers must actually
// record anything (spec §4.7: SATB correctness is only required "any
// pointer reachable at the moment of Snapshot").
func snapshotInFlight(inc *incgc.State) bool {
	switch inc.Phase() {
	case incgc.Snapshot, incgc.Marking, incgc.FinalMark:
		return true
	default:
		return false
	}
}
