// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package page implements the BiBOP (Big Bag of Pages) layout: a page
// manager handing out page-aligned address ranges, a per-size-class small
// object page, and an interior-pointer map for multi-page large objects.
//
// The teacher's analog is internal/core's address-space model — a process
// maps virtual memory, and internal/core.Process answers "what mapping
// covers address a" via a multi-level page table (see
// internal/core/process.go's pageTable field and findMapping). Here the
// question is "what page (and, for large objects, what head page) covers
// address a", answered the same way: a fast structural lookup keyed by
// page-aligned address rather than a linear scan.
package page

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
)

// PageSize is the size, in bytes, of one page-manager page. Real object
// payloads never span a page boundary except for large objects, which get
// a dedicated multi-page extent (see Manager.AcquireLarge).
const PageSize = 8192

// Page flags (spec §3 PageHeader.flags).
const (
	FlagLarge = 1 << iota
	FlagOrphan
	FlagNeedsSweep
	FlagAllDead
)

// sizeClasses are the small-object size classes, in ascending order. Any
// requested size larger than the last entry is a large object.
var sizeClasses = []int{
	8, 16, 24, 32, 48, 64, 80, 96, 112, 128,
	160, 192, 224, 256, 320, 384, 448, 512,
	640, 768, 896, 1024, 1280, 1536, 1792, 2048,
	2560, 3072, 3584, 4096, 5120, 6144, 7168, 8192,
}

// SizeClassFor returns the size class index for a requested allocation
// size, or -1 if the size must be served as a large object.
func SizeClassFor(size int) int {
	for i, c := range sizeClasses {
		if size <= c {
			return i
		}
	}
	return -1
}

// ClassSize returns the object size, in bytes, of size class idx.
func ClassSize(idx int) int { return sizeClasses[idx] }

// NumClasses is the number of small-object size classes.
func NumClasses() int { return len(sizeClasses) }

// magic validates that a Header actually is one, a cheap defense against
// the "stale/garbage pointer" case spec §7 says barriers must tolerate
// (skip silently rather than crash the mutator).
const magic = uint32(0xb1b0_9a9e)

// Header is the per-page header: one per small-object page, and one per
// large-object head page. A large object's tail pages carry Magic == 0 so
// that a barrier that lands on a tail page (having masked an address down
// to a page boundary instead of consulting the interior-pointer map) fails
// the validity check instead of misinterpreting tail bytes as a header.
type Header struct {
	mu sync.Mutex

	Magic     uint32
	SizeClass int // index into sizeClasses; irrelevant (ignored) if FlagLarge
	Flags     uint32
	Generation uint32
	OwnerThread uint64

	// mgr is the Manager this page's memory was acquired from, set by
	// AcquireSmall/AcquireLarge. Lets a holder of just a *box.Header (via
	// Location()) release a dead large object's extent without needing its
	// own Manager reference threaded through.
	mgr *Manager

	Base     uintptr // page-aligned base address of this page (or extent, for large)
	NumPages int     // 1 for small pages; >=1 for large object extents

	// Slots holds one entry per object-sized slot on this page. For a
	// small-object page, len(Slots) == PageSize/ClassSize(SizeClass). For
	// a large object, len(Slots) == 1.
	Slots []Slot

	AllocatedBitmap []uint64 // bit i set => slot i is allocated
	MarkBitmap      []uint64 // bit i set => slot i's object survived this mark
	DirtyBitmap     []uint64 // bit i set => slot i holds an OLD->YOUNG pointer

	FreeListHead int // index of first free slot, or -1
	DeadCount    int

	onDirtyList bool // guards against double-enqueue on a LocalHeap's dirty list
}

// OnDirtyList reports whether this page is currently linked onto a dirty
// list. Caller must hold the page lock.
func (h *Header) OnDirtyList() bool { return h.onDirtyList }

// MarkOnDirtyList and ClearOnDirtyList flip the guard flag. Caller must
// hold the page lock.
func (h *Header) MarkOnDirtyList()  { h.onDirtyList = true }
func (h *Header) ClearOnDirtyList() { h.onDirtyList = false }

// Slot is the payload carried by one object-sized slot on a page. Slot.Obj
// is nil when the slot is free. The page manager never touches Obj's
// fields directly — allocation, sweep and barrier logic live in
// internal/heap, internal/collector and internal/barrier.
type Slot struct {
	Obj  *box.Header
	Next int // free-list link when Obj == nil; -1 at list tail
}

// Valid reports whether h looks like a genuine page header, rather than
// garbage a stale or interior pointer happened to land on.
func (h *Header) Valid() bool {
	return h != nil && h.Magic == magic
}

// Manager returns the Manager this page's memory was acquired from.
func (h *Header) Manager() *Manager { return h.mgr }

func bitmapWords(n int) int { return (n + 63) / 64 }

// NewSmallHeader allocates bookkeeping (not backing memory — callers get
// that from a Manager) for a small-object page of the given size class.
func NewSmallHeader(base uintptr, sizeClass int, owner uint64) *Header {
	n := PageSize / ClassSize(sizeClass)
	h := &Header{
		Magic:        magic,
		SizeClass:    sizeClass,
		Base:         base,
		NumPages:     1,
		Slots:        make([]Slot, n),
		OwnerThread:  owner,
		FreeListHead: -1,
	}
	h.AllocatedBitmap = make([]uint64, bitmapWords(n))
	h.MarkBitmap = make([]uint64, bitmapWords(n))
	h.DirtyBitmap = make([]uint64, bitmapWords(n))
	for i := n - 1; i >= 0; i-- {
		h.Slots[i].Next = h.FreeListHead
		h.FreeListHead = i
	}
	return h
}

// NewLargeHeader allocates bookkeeping for a large-object head page
// spanning numPages pages.
func NewLargeHeader(base uintptr, numPages int, owner uint64) *Header {
	h := &Header{
		Magic:        magic,
		SizeClass:    -1,
		Flags:        FlagLarge,
		Base:         base,
		NumPages:     numPages,
		Slots:        make([]Slot, 1),
		OwnerThread:  owner,
		FreeListHead: -1,
	}
	h.AllocatedBitmap = make([]uint64, 1)
	h.MarkBitmap = make([]uint64, 1)
	h.DirtyBitmap = make([]uint64, 1)
	return h
}

func bitGet(bm []uint64, i int) bool { return bm[i/64]&(uint64(1)<<(uint(i)%64)) != 0 }
func bitSet(bm []uint64, i int)      { bm[i/64] |= uint64(1) << (uint(i) % 64) }
func bitClear(bm []uint64, i int)    { bm[i/64] &^= uint64(1) << (uint(i) % 64) }

// Lock and Unlock expose the page's own mutex to internal/heap so that
// slot allocation, sweep, and barrier dirty-bit updates serialize per page
// rather than needing a heap-wide lock. Barriers that touch a page's dirty
// bits must already have verified thread ownership (spec §4.3) before
// calling Lock — this type does not re-check ownership.
func (h *Header) Lock()   { h.mu.Lock() }
func (h *Header) Unlock() { h.mu.Unlock() }

// AllocSlot pops a free slot from this page's free list. Caller must hold
// the page lock. Returns -1 if the page is full.
func (h *Header) AllocSlot() int {
	i := h.FreeListHead
	if i < 0 {
		return -1
	}
	h.FreeListHead = h.Slots[i].Next
	bitSet(h.AllocatedBitmap, i)
	return i
}

// FreeSlot links slot i back onto the free list. Caller must hold the page
// lock and must have already called box.Header.ResetForReuse to reset per-
// object flags (GEN_OLD_FLAG etc. — see spec §4.2) before relinking.
func (h *Header) FreeSlot(i int) {
	h.Slots[i].Obj = nil
	bitClear(h.AllocatedBitmap, i)
	bitClear(h.MarkBitmap, i)
	bitClear(h.DirtyBitmap, i)
	h.Slots[i].Next = h.FreeListHead
	h.FreeListHead = i
}

// IsAllocated, IsMarked, IsDirty and their Set/Clear counterparts give
// bitmap access keyed by slot index.
func (h *Header) IsAllocated(i int) bool { return bitGet(h.AllocatedBitmap, i) }
func (h *Header) IsMarked(i int) bool    { return bitGet(h.MarkBitmap, i) }
func (h *Header) SetMarked(i int)        { bitSet(h.MarkBitmap, i) }

// ClearMarks zeroes the mark bitmap at the start of a collection cycle.
func (h *Header) ClearMarks() {
	for i := range h.MarkBitmap {
		h.MarkBitmap[i] = 0
	}
}

func (h *Header) IsDirty(i int) bool { return bitGet(h.DirtyBitmap, i) }
func (h *Header) SetDirty(i int)         { bitSet(h.DirtyBitmap, i) }
func (h *Header) ClearDirty(i int)       { bitClear(h.DirtyBitmap, i) }

// SlotIndex computes which slot an address belongs to, given the page's
// base and size class. Valid only for small-object pages.
func (h *Header) SlotIndex(addr uintptr) (int, error) {
	if h.Flags&FlagLarge != 0 {
		return 0, errors.New("page: SlotIndex called on a large-object head page")
	}
	if addr < h.Base || addr >= h.Base+uintptr(PageSize) {
		return 0, errors.Errorf("page: address %#x not within page base %#x", addr, h.Base)
	}
	return int(addr-h.Base) / ClassSize(h.SizeClass), nil
}
