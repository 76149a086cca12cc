// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rudogc

import (
	"fmt"

	"github.com/XuHaoJun/rudo-sub003/internal/tcb"
)

// GcHandle[T] is a strong cross-thread handle (spec §4.6): a reference
// usable from any thread to resolve a value owned by its origin thread,
// registered in that thread's CrossThreadRootTable (or, once the origin
// thread exits, the process-wide orphan table — spec's "a handle
// continues to resolve after its origin exits").
type GcHandle[T any] struct {
	origin tcb.ThreadID
	id     tcb.HandleID
	rt     *Runtime
}

// CrossThreadHandle registers g in m's cross-thread root table and
// returns a handle to it, keeping the value alive independent of g's own
// lifetime (spec §4.1 "Gc::cross_thread_handle"). The registration itself
// holds one strong reference; the caller's own g is untouched.
func (g Gc[T]) CrossThreadHandle(m *Mutator) GcHandle[T] {
	kept := g.Clone()
	m.tc.RootsMu().Lock()
	id := m.tc.Roots().Insert(kept)
	m.tc.RootsMu().Unlock()
	return GcHandle[T]{origin: m.id, id: id, rt: m.rt}
}

// Resolve produces a strong Gc[T] from the handle. Panics unless the
// calling mutator is the handle's origin thread (spec §4.6: resolution is
// restricted to the origin thread, even after migration to the orphan
// table, since the orphan table exists to keep the value alive for a
// still-valid handle, not to let a foreign thread dereference across
// threads it was never meant to cross).
func (h GcHandle[T]) Resolve(m *Mutator) Gc[T] {
	g, ok := h.TryResolve(m)
	if !ok {
		panic(fmt.Sprintf("rudogc: GcHandle.Resolve: not resolvable on thread %d (origin %d)", m.id, h.origin))
	}
	return g
}

// TryResolve is Resolve without the panic (spec §4.6 "try_resolve"):
// reports ok=false on a thread mismatch or a handle that has since been
// unregistered/dropped.
func (h GcHandle[T]) TryResolve(m *Mutator) (Gc[T], bool) {
	if m.id != h.origin {
		return Gc[T]{}, false
	}
	root, ok := h.rt.coord.LookupRoot(h.origin, h.id)
	if !ok {
		return Gc[T]{}, false
	}
	g, ok := root.(Gc[T])
	if !ok {
		return Gc[T]{}, false
	}
	return g.Clone(), true
}

// Clone increments the registered entry's strong count and returns a new
// handle referring to the same table entry (spec §4.6 "GcHandle::clone").
// This does not re-register a fresh entry; both handles share one table
// slot, so dropping either alone does not unregister it — see Drop.
func (h GcHandle[T]) Clone() GcHandle[T] {
	if root, ok := h.rt.coord.LookupRoot(h.origin, h.id); ok {
		root.IncRef()
	}
	return h
}

// Drop releases this handle's strong reference without unregistering the
// table entry (spec §4.6 "GcHandle::drop" decrements ref_count but leaves
// the entry, since other handles or the entry's own keep-alive reference
// may still need it; compare Unregister).
func (h GcHandle[T]) Drop() {
	if root, ok := h.rt.coord.LookupRoot(h.origin, h.id); ok {
		root.DecRef()
	}
}

// Unregister removes the table entry entirely, releasing its keep-alive
// reference (spec §4.6 "GcHandle::unregister"). Any other handle sharing
// this entry becomes invalid.
func (h GcHandle[T]) Unregister() {
	root, ok := h.rt.coord.RemoveRoot(h.origin, h.id)
	if ok {
		root.DecRef()
	}
}

// IsValid reports whether the table entry this handle refers to still
// exists (spec §4.6 "GcHandle::is_valid").
func (h GcHandle[T]) IsValid() bool {
	_, ok := h.rt.coord.LookupRoot(h.origin, h.id)
	return ok
}

// Downgrade returns a WeakCrossThreadHandle to the same entry (spec §4.1
// "Gc::weak_cross_thread_handle" / §4.6).
func (h GcHandle[T]) Downgrade() WeakCrossThreadHandle[T] {
	if root, ok := h.rt.coord.LookupRoot(h.origin, h.id); ok {
		root.GcHeader().IncWeak()
	}
	return WeakCrossThreadHandle[T]{origin: h.origin, id: h.id, rt: h.rt}
}

// WeakCrossThreadHandle[T] is the weak counterpart of GcHandle[T] (spec
// §4.1 "weak_cross_thread_handle"): it tracks a cross-thread table entry
// without keeping its value alive.
type WeakCrossThreadHandle[T any] struct {
	origin tcb.ThreadID
	id     tcb.HandleID
	rt     *Runtime
}

// Upgrade attempts to produce a strong GcHandle[T], succeeding only if
// both the calling mutator is the origin thread and the entry is still
// registered with a live value.
func (w WeakCrossThreadHandle[T]) Upgrade(m *Mutator) (GcHandle[T], bool) {
	if m.id != w.origin {
		return GcHandle[T]{}, false
	}
	root, ok := w.rt.coord.LookupRoot(w.origin, w.id)
	if !ok {
		return GcHandle[T]{}, false
	}
	if !root.GcHeader().TryIncRefFromZero() {
		if root.GcHeader().HasDeadFlag() {
			return GcHandle[T]{}, false
		}
		root.IncRef()
	}
	return GcHandle[T]{origin: w.origin, id: w.id, rt: w.rt}, true
}
