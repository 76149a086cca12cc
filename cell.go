// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rudogc

import (
	"sync"
	"sync/atomic"

	"github.com/XuHaoJun/rudo-sub003/internal/barrier"
	"github.com/XuHaoJun/rudo-sub003/internal/box"
	"github.com/XuHaoJun/rudo-sub003/internal/page"
)

// cellOwner is the minimal view a cell needs of the Gc value it is
// embedded in, so a mutation through the cell can fire the right write
// barrier against the *enclosing* box (spec §4.3: barriers fire on the
// box that holds the mutated field, not on some header the cell invents
// for itself).
type cellOwner interface {
	GcHeader() *box.Header
}

// captureOfAddr adapts whatever GcCapture or Traceable implementation vp's
// pointee provides into a GcCapture, trying the pointer receiver first
// (the common case for a mutable cell payload) and falling back to the
// value. Returns nil if the payload implements neither — a plain
// non-Gc-bearing field, which is the common case and costs nothing extra
// at barrier time.
func captureOfAddr[T any](vp *T) GcCapture {
	if c, ok := any(vp).(GcCapture); ok {
		return c
	}
	if t, ok := any(vp).(Traceable); ok {
		return AsGcCapture(t)
	}
	if c, ok := any(*vp).(GcCapture); ok {
		return c
	}
	if t, ok := any(*vp).(Traceable); ok {
		return AsGcCapture(t)
	}
	return nil
}

// dispatchBarriers runs the full write-barrier sequence a cell commit
// needs (spec §4.3): the generational or unified dirty-page record
// (depending on whether the calling mutator owns obj's page), SATB
// capture of the pre-mutation pointers, and the Dijkstra post-write mark
// of the post-mutation pointers.
func dispatchBarriers(obj *box.Header, old, newVal GcCapture, m *Mutator) {
	if crossThread(obj, m) {
		barrier.Unified(obj, captureAdapter{old}, &m.rt.coord.OrphanDirty, m.rt.coord.IncState())
	} else {
		barrier.Generational(obj, m.heap, m.id)
		barrier.SATBPreWrite(captureAdapter{old}, m.heap, m.rt.coord.IncState())
	}
	barrier.DijkstraPostWrite(captureAdapter{newVal}, m.rt.coord.IncState())
}

// dispatchGenerationalOnly runs just the dirty-page record, the escape
// hatch borrow_mut_gen_only uses (spec §6) for mutations a caller can
// prove never replace a Gc pointer.
func dispatchGenerationalOnly(obj *box.Header, m *Mutator) {
	if crossThread(obj, m) {
		barrier.Unified(obj, nil, &m.rt.coord.OrphanDirty, m.rt.coord.IncState())
	} else {
		barrier.Generational(obj, m.heap, m.id)
	}
}

// crossThread reports whether obj's page is owned by a thread other than
// m, meaning the unified cross-thread barrier must be used instead of the
// plain generational one (spec §4.3 "Thread-ownership check").
func crossThread(obj *box.Header, m *Mutator) bool {
	ref, _ := obj.Location()
	if ref == nil {
		return false
	}
	p := (*page.Header)(ref)
	return p.OwnerThread != 0 && p.OwnerThread != uint64(m.id)
}

// GcCell[T] is a single-owner interior-mutability cell (spec §6
// "GcCell::borrow/borrow_mut/borrow_mut_gen_only"), the Go analog of
// RefCell<T>: it enforces at runtime that a mutable borrow never overlaps
// any other borrow, panicking instead of racing, but does not itself
// coordinate across threads — it assumes the enclosing Gc value's single-
// owner discipline, the same assumption RefCell makes.
type GcCell[T any] struct {
	owner *box.Header
	state atomic.Int32 // 0: free, >0: N active readers, -1: writer
	v     T
}

// NewGcCell constructs a cell embedded in owner's box.
func NewGcCell[T any](owner cellOwner, value T) *GcCell[T] {
	return &GcCell[T]{owner: owner.GcHeader(), v: value}
}

// Borrow returns a copy of the current value, panicking if the cell is
// currently mutably borrowed.
func (c *GcCell[T]) Borrow() T {
	for {
		s := c.state.Load()
		if s < 0 {
			panic("rudogc: GcCell.Borrow: already mutably borrowed")
		}
		if c.state.CompareAndSwap(s, s+1) {
			defer c.state.Add(-1)
			return c.v
		}
	}
}

// BorrowMut runs mutate with exclusive access to the value, panicking if
// the cell is already borrowed (mutably or otherwise), then fires the
// generational, SATB and Dijkstra barriers against the enclosing box
// (spec §4.3, §6).
func (c *GcCell[T]) BorrowMut(m *Mutator, mutate func(*T)) {
	if !c.state.CompareAndSwap(0, -1) {
		panic("rudogc: GcCell.BorrowMut: already borrowed")
	}
	old := captureOfAddr(&c.v)
	mutate(&c.v)
	newVal := captureOfAddr(&c.v)
	c.state.Store(0)
	dispatchBarriers(c.owner, old, newVal, m)
}

// BorrowMutGenOnly is BorrowMut's escape hatch (spec §6
// "borrow_mut_gen_only"): runs only the generational/unified barrier,
// skipping SATB capture and the Dijkstra mark. Correct only when the
// caller can prove the mutation never replaces a Gc pointer the cell
// holds — e.g. mutating a plain counter field alongside Gc fields that
// are untouched.
func (c *GcCell[T]) BorrowMutGenOnly(m *Mutator, mutate func(*T)) {
	if !c.state.CompareAndSwap(0, -1) {
		panic("rudogc: GcCell.BorrowMutGenOnly: already borrowed")
	}
	mutate(&c.v)
	c.state.Store(0)
	dispatchGenerationalOnly(c.owner, m)
}

// GcRwLock[T] is a multi-reader/single-writer cell (spec §6
// "GcRwLock::read/try_read/write/try_write"), safe across threads.
type GcRwLock[T any] struct {
	owner *box.Header
	mu    sync.RWMutex
	v     T
}

// NewGcRwLock constructs a lock embedded in owner's box.
func NewGcRwLock[T any](owner cellOwner, value T) *GcRwLock[T] {
	return &GcRwLock[T]{owner: owner.GcHeader(), v: value}
}

// Read blocks for a shared read lock and returns a copy of the value.
func (l *GcRwLock[T]) Read() T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.v
}

// TryRead attempts a non-blocking shared read.
func (l *GcRwLock[T]) TryRead() (T, bool) {
	if !l.mu.TryRLock() {
		var zero T
		return zero, false
	}
	defer l.mu.RUnlock()
	return l.v, true
}

// GcRwLockWriteGuard is returned by Write/TryWrite. Unlock must be called
// exactly once to release the lock and run the write barriers; both the
// blocking and non-blocking acquisition paths produce the same guard type
// so they apply identical barriers on release (spec §8 testable property
// 4, "barrier parity" between blocking and try_* variants).
type GcRwLockWriteGuard[T any] struct {
	lock *GcRwLock[T]
	m    *Mutator
	old  GcCapture
	done bool
}

// Value returns a pointer to the locked value, valid until Unlock.
func (g *GcRwLockWriteGuard[T]) Value() *T { return &g.lock.v }

// Unlock commits the mutation's barriers and releases the write lock.
func (g *GcRwLockWriteGuard[T]) Unlock() {
	if g.done {
		return
	}
	g.done = true
	newVal := captureOfAddr(&g.lock.v)
	dispatchBarriers(g.lock.owner, g.old, newVal, g.m)
	g.lock.mu.Unlock()
}

// Write blocks for the exclusive write lock.
func (l *GcRwLock[T]) Write(m *Mutator) *GcRwLockWriteGuard[T] {
	l.mu.Lock()
	return &GcRwLockWriteGuard[T]{lock: l, m: m, old: captureOfAddr(&l.v)}
}

// TryWrite attempts a non-blocking exclusive write lock.
func (l *GcRwLock[T]) TryWrite(m *Mutator) (*GcRwLockWriteGuard[T], bool) {
	if !l.mu.TryLock() {
		return nil, false
	}
	return &GcRwLockWriteGuard[T]{lock: l, m: m, old: captureOfAddr(&l.v)}, true
}

// GcMutex[T] is a plain mutual-exclusion cell (spec §6
// "GcMutex::lock/try_lock").
type GcMutex[T any] struct {
	owner *box.Header
	mu    sync.Mutex
	v     T
}

// NewGcMutex constructs a mutex embedded in owner's box.
func NewGcMutex[T any](owner cellOwner, value T) *GcMutex[T] {
	return &GcMutex[T]{owner: owner.GcHeader(), v: value}
}

// GcMutexGuard is returned by Lock/TryLock; see GcRwLockWriteGuard for why
// both acquisition paths share one guard type.
type GcMutexGuard[T any] struct {
	lock *GcMutex[T]
	m    *Mutator
	old  GcCapture
	done bool
}

// Value returns a pointer to the locked value, valid until Unlock.
func (g *GcMutexGuard[T]) Value() *T { return &g.lock.v }

// Unlock commits the mutation's barriers and releases the mutex.
func (g *GcMutexGuard[T]) Unlock() {
	if g.done {
		return
	}
	g.done = true
	newVal := captureOfAddr(&g.lock.v)
	dispatchBarriers(g.lock.owner, g.old, newVal, g.m)
	g.lock.mu.Unlock()
}

// Lock blocks for the mutex.
func (l *GcMutex[T]) Lock(m *Mutator) *GcMutexGuard[T] {
	l.mu.Lock()
	return &GcMutexGuard[T]{lock: l, m: m, old: captureOfAddr(&l.v)}
}

// TryLock attempts a non-blocking lock.
func (l *GcMutex[T]) TryLock(m *Mutator) (*GcMutexGuard[T], bool) {
	if !l.mu.TryLock() {
		return nil, false
	}
	return &GcMutexGuard[T]{lock: l, m: m, old: captureOfAddr(&l.v)}, true
}

// GcThreadSafeCell[T] is the simplest thread-safe cell (spec §6
// "GcThreadSafeCell::borrow/borrow_mut"): every access, read or write,
// takes the same internal mutex and runs through a closure, with no
// separate guard type to misuse across goroutines.
type GcThreadSafeCell[T any] struct {
	owner *box.Header
	mu    sync.Mutex
	v     T
}

// NewGcThreadSafeCell constructs a cell embedded in owner's box.
func NewGcThreadSafeCell[T any](owner cellOwner, value T) *GcThreadSafeCell[T] {
	return &GcThreadSafeCell[T]{owner: owner.GcHeader(), v: value}
}

// Borrow runs read with shared access to the value.
func (c *GcThreadSafeCell[T]) Borrow(read func(T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	read(c.v)
}

// BorrowMut runs mutate with exclusive access, then fires the write
// barriers against the enclosing box.
func (c *GcThreadSafeCell[T]) BorrowMut(m *Mutator, mutate func(*T)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := captureOfAddr(&c.v)
	mutate(&c.v)
	newVal := captureOfAddr(&c.v)
	dispatchBarriers(c.owner, old, newVal, m)
}
