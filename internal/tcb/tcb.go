// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tcb implements ThreadControlBlock, the per-thread registration
// record shared between a mutator and the collector coordinator (spec §3,
// §4.8). Its closest teacher analog is internal/gocore/root.go's
// per-goroutine root bookkeeping (p.goroutines, g.regRoots, g.frames) —
// there it is reconstructed after the fact from a core dump; here it is
// maintained live by the thread itself and read by the coordinator at a
// safepoint.
package tcb

import (
	"sync"
	"sync/atomic"

	"github.com/XuHaoJun/rudo-sub003/internal/lockutil"
)

// ThreadID identifies a registered mutator thread. 0 is reserved to mean
// "no owner"/orphaned, matching the page-ownership convention in
// internal/page and internal/heap.
type ThreadID uint64

// HeapOwner is the minimal surface TCB needs from its thread's LocalHeap.
// Defined here (rather than importing internal/heap directly) to avoid a
// package cycle: internal/heap imports this package (for ThreadID), and
// TCB holds a HeapOwner.
type HeapOwner interface {
	// FlushSATB drains the thread-local SATB buffer onto the mark
	// worklist. The coordinator calls it on every LocalHeap directly at
	// the start of each mark slice (spec §4.7).
	FlushSATB()
}

// TCB is a ThreadControlBlock, shared between the owning thread and the
// collector. When the thread exits, the coordinator removes its TCB from
// the live-thread set and migrates its roots to the orphan table; a
// GcHandle refers to its origin thread by ThreadID and holds no reference
// to the TCB.
type TCB struct {
	ID ThreadID

	// Heap is the thread's LocalHeap, reachable only through the
	// HeapOwner seam described above.
	Heap HeapOwner

	gcRequested atomic.Bool
	parkMu      sync.Mutex
	parkCond    *sync.Cond
	parked      bool

	alive atomic.Bool // false once the owning thread has exited

	rootsMu lockutil.Mutex
	roots   CrossThreadRootTable
}

// New constructs a TCB for a freshly registered thread.
func New(id ThreadID, heap HeapOwner) *TCB {
	t := &TCB{ID: id, Heap: heap}
	t.parkCond = sync.NewCond(&t.parkMu)
	t.alive.Store(true)
	t.roots.init()
	return t
}

// Alive reports whether the owning thread is still registered.
func (t *TCB) Alive() bool { return t.alive.Load() }

// MarkDead flips Alive() to false. Called once by the thread-exit path,
// after its cross-thread roots have been migrated to the orphan table
// (internal/roots.Orphan.Absorb).
func (t *TCB) MarkDead() { t.alive.Store(false) }

// Roots returns the TCB's cross-thread root table. Callers must respect
// the global lock order (spec §4.6): LocalHeap < IncrementalMarkState <
// GcRequest < CrossThreadRootTable — never acquire a heap or incremental-
// state lock while already holding this table's lock.
func (t *TCB) Roots() *CrossThreadRootTable { return &t.roots }

// RootsMu exposes the table's own lock so handle operations (which must
// run "under origin TCB's root-table lock", spec §4.6) can take it
// directly rather than through a method that would otherwise need to
// re-enter.
func (t *TCB) RootsMu() *lockutil.Mutex { return &t.rootsMu }
