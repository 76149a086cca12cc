// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package roots implements the non-stack root sources spec §3/§4.6 names:
// the process-global OrphanRootTable and explicit handle scopes. Its
// id-issuing pattern is grounded on internal/gocore/root.go's
// makeMemRoot/makeCompositeRoot, which issue a monotonically increasing
// root id per enumerated root; here the id is a HandleID issued per
// registered cross-thread handle rather than per stack root.
package roots

import (
	"github.com/XuHaoJun/rudo-sub003/internal/lockutil"
	"github.com/XuHaoJun/rudo-sub003/internal/tcb"
)

// orphanKey identifies one migrated cross-thread root: the thread it
// originated on plus its HandleID within that thread's table.
type orphanKey struct {
	thread tcb.ThreadID
	handle tcb.HandleID
}

// Orphan is the process-global orphan root table (spec §3): when a thread
// that owns a TCB exits, all entries in its CrossThreadRootTable migrate
// here keyed by (thread_id, handle_id). An entry stays until Remove
// deletes it (GcHandle.Unregister); dropping a handle does not remove it.
type Orphan struct {
	mu      lockutil.Mutex
	entries map[orphanKey]tcb.RootPtr
}

// NewOrphanTable constructs an empty orphan table.
func NewOrphanTable() *Orphan {
	return &Orphan{entries: make(map[orphanKey]tcb.RootPtr)}
}

// Absorb migrates every entry from a terminated thread's root table into
// the orphan table. Called once, by the thread-exit path, after the
// source table will no longer be mutated.
func (o *Orphan) Absorb(thread tcb.ThreadID, table *tcb.CrossThreadRootTable) {
	o.mu.Lock()
	defer o.mu.Unlock()
	table.Each(func(id tcb.HandleID, p tcb.RootPtr) {
		o.entries[orphanKey{thread, id}] = p
	})
}

// Lookup returns the root registered for (thread, handle), if any.
func (o *Orphan) Lookup(thread tcb.ThreadID, handle tcb.HandleID) (tcb.RootPtr, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p, ok := o.entries[orphanKey{thread, handle}]
	return p, ok
}

// Remove deletes the entry for (thread, handle), returning the pointer it
// held and whether it was present.
func (o *Orphan) Remove(thread tcb.ThreadID, handle tcb.HandleID) (tcb.RootPtr, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	k := orphanKey{thread, handle}
	p, ok := o.entries[k]
	if ok {
		delete(o.entries, k)
	}
	return p, ok
}

// Each calls fn for every orphaned root, used by the collector's root scan
// (spec §4.6 "GC integration": "the collector's root scan iterates every
// live TCB's CrossThreadRootTable.strong and the global orphan table").
func (o *Orphan) Each(fn func(tcb.ThreadID, tcb.HandleID, tcb.RootPtr)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for k, p := range o.entries {
		fn(k.thread, k.handle, p)
	}
}

// Len reports the number of orphaned roots.
func (o *Orphan) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}
