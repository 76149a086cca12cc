// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcb

import "github.com/XuHaoJun/rudo-sub003/internal/box"

// HandleID identifies one entry in a CrossThreadRootTable (or, once its
// thread has exited, in the global orphan table — spec §3 OrphanRootTable,
// keyed by (thread_id, handle_id)).
type HandleID uint64

// RootPtr is the minimal view a root table needs of a GcBox: enough to
// keep it registered as a root (IncRef/DecRef) and enough for the
// collector's root scan to shade it gray (GcHeader) without this package
// depending on the concrete handle type the public API constructs.
type RootPtr interface {
	IncRef()
	DecRef() bool
	GcHeader() *box.Header
}

// CrossThreadRootTable is the ground truth of reachability from a foreign
// thread (spec §3): "the root table entry is the ground truth of
// reachability from a foreign thread; the ref-count is only an auxiliary
// signal."
type CrossThreadRootTable struct {
	nextID uint64
	strong map[HandleID]RootPtr
}

func (rt *CrossThreadRootTable) init() {
	rt.strong = make(map[HandleID]RootPtr)
}

// Insert allocates a fresh HandleID for ptr and registers it. Caller must
// already hold the table's lock (TCB.RootsMu / Orphan's own lock).
func (rt *CrossThreadRootTable) Insert(ptr RootPtr) HandleID {
	rt.nextID++
	id := HandleID(rt.nextID)
	rt.strong[id] = ptr
	return id
}

// Lookup returns the registered pointer for id, and whether it was found.
func (rt *CrossThreadRootTable) Lookup(id HandleID) (RootPtr, bool) {
	p, ok := rt.strong[id]
	return p, ok
}

// Remove unregisters id, returning the pointer it held (for callers that
// still need to decrement a ref count after removal) and whether it was
// present.
func (rt *CrossThreadRootTable) Remove(id HandleID) (RootPtr, bool) {
	p, ok := rt.strong[id]
	if ok {
		delete(rt.strong, id)
	}
	return p, ok
}

// Len reports the number of registered roots, used by the collector's
// root scan (spec §4.6 "GC integration").
func (rt *CrossThreadRootTable) Len() int { return len(rt.strong) }

// Each calls fn for every registered root. Caller must hold the table's
// lock for the duration of the call if concurrent mutation must be
// excluded; the root scan during Snapshot runs stop-the-world, so no lock
// is strictly required there, but callers outside STW must still acquire
// it.
func (rt *CrossThreadRootTable) Each(fn func(HandleID, RootPtr)) {
	for id, p := range rt.strong {
		fn(id, p)
	}
}
