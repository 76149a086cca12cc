// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package box implements GcBox, the single heap-object header shape the rest
// of the collector operates on. It mirrors the header-plus-payload structure
// the teacher's gocore package reconstructs from a core dump (see
// internal/gocore/object.go's per-object mark-bit bookkeeping), except here
// the header is live and mutated directly by mutators and the collector
// rather than reconstructed after the fact.
package box

import (
	"sync/atomic"
	"unsafe"
)

// Packed layout of the weak-count-plus-flags word. The low 40 bits hold the
// weak count; the high bits hold the three header flags. Packing them into
// one word lets DEAD_FLAG/UNDER_CONSTRUCTION_FLAG/GEN_OLD_FLAG be read or
// written atomically alongside the weak count without a second CAS.
const (
	weakCountBits = 40
	weakCountMask = uint64(1)<<weakCountBits - 1

	deadFlag             = uint64(1) << (weakCountBits + 0)
	underConstructionFlag = uint64(1) << (weakCountBits + 1)
	genOldFlag           = uint64(1) << (weakCountBits + 2)

	maxRefCount  = ^uint64(0) >> 1 // saturate well below overflow
	maxWeakCount = weakCountMask - 1
)

// Dropping states, in order. Once a box reaches Dropped it never goes back.
const (
	Live = int32(iota)
	DropInProgress
	Dropped
)

// Header is the type-erased portion of a GcBox: the part the collector,
// barriers, and handle tables touch without knowing the payload type T.
// The payload is not stored inline: it lives in separate memory that the
// DropFn/TraceFn/CaptureFn closures installed at allocation refer to (see
// the rudogc package's Gc[T], which allocates it).
type Header struct {
	refCount atomic.Uint64
	weak     atomic.Uint64 // low 40 bits: weak count; high bits: flags

	dropping atomic.Int32

	// DropFn, TraceFn and CaptureFn are type-erased handlers installed at
	// allocation time. After the value is physically dropped they are
	// swapped to no-op so a lazily-swept slot can be revisited safely.
	DropFn    func()
	TraceFn   func(visit func(child *Header))
	CaptureFn func(buf *[]*Header)

	// pageRef and slotIdx let internal/barrier and internal/heap find the
	// page (and slot within it) backing this header without internal/box
	// importing internal/page, which already imports internal/box for its
	// slot table and would otherwise create a cycle. Set once at
	// allocation by internal/heap, never touched by this package.
	pageRef unsafe.Pointer
	slotIdx int32
}

// SetLocation records which page and slot this header was allocated into.
func (h *Header) SetLocation(pageRef unsafe.Pointer, slot int) {
	h.pageRef = pageRef
	h.slotIdx = int32(slot)
}

// Location returns the page and slot recorded by SetLocation.
func (h *Header) Location() (pageRef unsafe.Pointer, slot int) {
	return h.pageRef, int(h.slotIdx)
}

// Init resets a header for a freshly allocated or freshly recycled slot.
// ref_count starts at 1 (the allocator's own handle); weak count and flags
// start clear.
func (h *Header) Init(drop func(), trace func(visit func(child *Header)), capture func(buf *[]*Header)) {
	h.refCount.Store(1)
	h.weak.Store(0)
	h.dropping.Store(Live)
	h.DropFn = drop
	h.TraceFn = trace
	h.CaptureFn = capture
}

// InitImmortal is Init followed by setting GEN_OLD_FLAG, for zero-sized-type
// singletons (spec §8 boundary behavior): ref_count starts at 1. IncRef and
// DecRef treat the header like any other; nothing here pins the count.
func (h *Header) InitImmortal(drop func(), trace func(visit func(child *Header)), capture func(buf *[]*Header)) {
	h.Init(drop, trace, capture)
	h.weak.Store(genOldFlag) // borrow GEN_OLD_FLAG's bit range; immortals are never swept
}

// NoOpDrop, NoOpTrace and NoOpCapture are installed over a box's function
// pointers once its value has been physically dropped, so a slot that is
// revisited by lazy sweep (because a weak reference still lives) never
// re-runs the real handlers.
func NoOpDrop()                                  {}
func NoOpTrace(visit func(child *Header))         {}
func NoOpCapture(buf *[]*Header)                  {}

// IncRef increments the strong count. Relaxed: callers that need
// happens-before ordering (e.g. the first clone after construction) get it
// from the existing reference they cloned from. Saturates instead of
// wrapping on pathological ref counts.
func (h *Header) IncRef() {
	for {
		v := h.refCount.Load()
		if v >= maxRefCount {
			return
		}
		if h.refCount.CompareAndSwap(v, v+1) {
			return
		}
	}
}

// DecRef decrements the strong count and reports whether this was the last
// strong reference (1 -> 0). Uses AcqRel so that the thread observing "last"
// synchronizes with every prior decrement, matching the drop-synchronization
// requirement in spec §4.1.
func (h *Header) DecRef() (wasLast bool) {
	v := h.refCount.Add(^uint64(0)) // fetch_sub(1) via two's complement
	return v == 0
}

// RefCount returns the current strong count.
func (h *Header) RefCount() uint64 {
	return h.refCount.Load()
}

// TryIncRefFromZero attempts to resurrect a box whose strong count is
// currently zero (weak upgrade / handle creation). It succeeds iff, in the
// observed compare-and-swap, ref_count == 0 AND DEAD_FLAG is clear. The
// dead-flag check happens inside the CAS retry loop itself (spec §9 open
// question 2) — checking it only once before the loop would let a
// concurrent drop set DEAD_FLAG in the window between the check and the
// CAS, resurrecting a box whose value has already been destroyed.
func (h *Header) TryIncRefFromZero() bool {
	for {
		w := h.weak.Load()
		if w&deadFlag != 0 {
			return false
		}
		if h.refCount.Load() != 0 {
			return false
		}
		if h.refCount.CompareAndSwap(0, 1) {
			// Re-check dead flag: a drop that raced us may have set it
			// between our load and the successful CAS.
			if h.weak.Load()&deadFlag != 0 {
				h.refCount.Store(0)
				return false
			}
			return true
		}
	}
}

// IncWeak increments the weak count, saturating rather than overflowing into
// the flag bits.
func (h *Header) IncWeak() {
	for {
		w := h.weak.Load()
		cnt := w & weakCountMask
		if cnt >= maxWeakCount {
			return
		}
		if h.weak.CompareAndSwap(w, w+1) {
			return
		}
	}
}

// DecWeak decrements the weak count and reports whether it reached zero.
func (h *Header) DecWeak() (wasLastWeak bool) {
	for {
		w := h.weak.Load()
		cnt := w & weakCountMask
		if cnt == 0 {
			return true
		}
		nw := (w &^ weakCountMask) | (cnt - 1)
		if h.weak.CompareAndSwap(w, nw) {
			return cnt-1 == 0
		}
	}
}

// WeakCount returns the current weak count (flags masked out).
func (h *Header) WeakCount() uint64 {
	return h.weak.Load() & weakCountMask
}

func (h *Header) setFlag(flag uint64) {
	for {
		w := h.weak.Load()
		if w&flag != 0 {
			return
		}
		if h.weak.CompareAndSwap(w, w|flag) {
			return
		}
	}
}

func (h *Header) clearFlag(flag uint64) {
	for {
		w := h.weak.Load()
		if w&flag == 0 {
			return
		}
		if h.weak.CompareAndSwap(w, w&^flag) {
			return
		}
	}
}

// SetDead sets DEAD_FLAG with Release semantics: once observed by an
// Acquire load, value is guaranteed logically invalid (spec §3 header
// invariant a).
func (h *Header) SetDead() { h.setFlag(deadFlag) }

// HasDeadFlag loads DEAD_FLAG with Acquire semantics.
func (h *Header) HasDeadFlag() bool { return h.weak.Load()&deadFlag != 0 }

// SetUnderConstruction marks the box as mid cyclic-init. Cleared on
// successful construction; left set (alongside SetDead, via the caller) if
// the init closure panics, per spec §9's cyclic-init guidance.
func (h *Header) SetUnderConstruction() { h.setFlag(underConstructionFlag) }

// ClearUnderConstruction clears the construction flag.
func (h *Header) ClearUnderConstruction() { h.clearFlag(underConstructionFlag) }

// IsUnderConstruction reports whether UNDER_CONSTRUCTION_FLAG is set.
func (h *Header) IsUnderConstruction() bool { return h.weak.Load()&underConstructionFlag != 0 }

// SetGenOld sets GEN_OLD_FLAG with Release semantics — the promoter's
// write. Barrier-side reads use HasGenOldFlag's Acquire load to synchronize.
func (h *Header) SetGenOld() { h.setFlag(genOldFlag) }

// ClearGenOld clears GEN_OLD_FLAG. Deallocation of a free slot must call
// this before the slot is relinked onto a free list, or a later allocation
// into the same memory would be misclassified as old by the generational
// barrier (spec §4.2).
func (h *Header) ClearGenOld() { h.clearFlag(genOldFlag) }

// HasGenOldFlag loads GEN_OLD_FLAG with Acquire semantics.
func (h *Header) HasGenOldFlag() bool { return h.weak.Load()&genOldFlag != 0 }

// DroppingState returns 0 (live), 1 (drop in progress) or 2 (dropped).
func (h *Header) DroppingState() int32 { return h.dropping.Load() }

// BeginDrop transitions Live -> DropInProgress. Reports false if another
// goroutine already began (or finished) dropping this box.
func (h *Header) BeginDrop() bool {
	return h.dropping.CompareAndSwap(Live, DropInProgress)
}

// FinishDrop transitions DropInProgress -> Dropped and swaps the function
// pointers to no-ops so a lazily-swept slot can be revisited safely (spec
// §9 "dynamic dispatch over trace/drop").
func (h *Header) FinishDrop() {
	h.DropFn = NoOpDrop
	h.TraceFn = NoOpTrace
	h.CaptureFn = NoOpCapture
	h.dropping.Store(Dropped)
}

// ResetForReuse clears all header state before a slot is relinked onto a
// free list, per spec §4.2: GEN_OLD_FLAG and every other per-object flag
// must be cleared before relinking.
func (h *Header) ResetForReuse() {
	h.refCount.Store(0)
	h.weak.Store(0)
	h.dropping.Store(Live)
	h.DropFn = NoOpDrop
	h.TraceFn = NoOpTrace
	h.CaptureFn = NoOpCapture
}

// Reclaimable reports whether ref_count == 0 and weak_count == 0 (mod
// flags), the condition under which physical reclamation is permitted
// (spec §3 header invariant b).
func (h *Header) Reclaimable() bool {
	return h.refCount.Load() == 0 && h.WeakCount() == 0
}
