// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rudogc

import (
	"fmt"
	"unsafe"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
	"github.com/XuHaoJun/rudo-sub003/internal/heap"
)

// Dropper lets a payload type run cleanup when its last strong reference
// is released (spec §4.1 "drop_fn"). Go has no destructor equivalent to
// hook automatically, so this is the explicit opt-in: a payload that
// doesn't implement Dropper simply gets no drop callback, and its storage
// is reclaimed by Go's own garbage collector once the Gc[T] box itself
// becomes unreachable.
type Dropper interface {
	GcDrop()
}

// Gc[T] is a strong, thread-affine reference to a collector-managed value
// of type T (spec §4.1). It pairs a *box.Header — the type-erased
// bookkeeping the collector, barriers, and root tables operate on — with
// a *T holding the actual value. Unlike spec's header-plus-inline-payload
// layout, T here lives in ordinary Go-heap memory allocated by new(T):
// internal/heap's BiBOP pages size and place *box.Header values only, and
// Go generics cannot safely lay out an arbitrary T's bytes inline after a
// fixed struct without unsafe per-instantiation code the teacher never
// needed. See DESIGN.md for the full rationale.
type Gc[T any] struct {
	h *box.Header
	v *T
}

// NewGc allocates a fresh Gc[T] on m's heap with an initial strong count
// of one. If T implements Dropper, GcDrop runs when the last strong
// reference is released; if it implements Traceable or GcCapture, those
// are wired into the box's type-erased trace/capture handlers so the
// tracing mark phase and the SATB barrier can see through to T's own Gc
// fields.
func NewGc[T any](m *Mutator, value T) (Gc[T], error) {
	v := new(T)
	*v = value
	h, err := m.heap.Alloc(sizeOf[T](), dropFnFor(v), traceFnFor(v), captureFnFor(v))
	if err != nil {
		return Gc[T]{}, fmt.Errorf("rudogc: allocate: %w", err)
	}
	return Gc[T]{h: h, v: v}, nil
}

// NewCyclicWeak allocates a Gc[T] whose construction closure receives a
// Weak[T] referring to the very value being built, so T's fields can
// store self- or mutually-referential weak pointers (spec §9's cyclic-
// init guidance). The box carries UNDER_CONSTRUCTION_FLAG for the
// closure's duration; Upgrade/TryUpgrade on the Weak[T] it was handed
// fail while the flag is set, so a concurrent thread can never observe a
// half-built T through it. If init panics, the box is marked dead rather
// than completing construction, and the panic propagates to the caller.
func NewCyclicWeak[T any](m *Mutator, init func(self Weak[T]) T) (g Gc[T], err error) {
	v := new(T)
	h, allocErr := m.heap.Alloc(sizeOf[T](), dropFnFor(v), traceFnFor(v), captureFnFor(v))
	if allocErr != nil {
		return Gc[T]{}, fmt.Errorf("rudogc: allocate: %w", allocErr)
	}
	h.SetUnderConstruction()
	self := Weak[T]{h: h, v: v}

	defer func() {
		if r := recover(); r != nil {
			h.SetDead()
			panic(r)
		}
	}()
	*v = init(self)
	h.ClearUnderConstruction()
	return Gc[T]{h: h, v: v}, nil
}

// sizeOf reports the static size of T, used only to pick a BiBOP size
// class for the box header's own bookkeeping slot (see Gc[T]'s doc
// comment: T's actual storage is a separate Go-heap allocation, not the
// slot this size class governs).
func sizeOf[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

func dropFnFor[T any](v *T) func() {
	return func() {
		if d, ok := any(v).(Dropper); ok {
			d.GcDrop()
		}
	}
}

func traceFnFor[T any](v *T) func(func(*box.Header)) {
	return func(visit func(*box.Header)) {
		t, ok := any(v).(Traceable)
		if !ok {
			return
		}
		t.Trace(func(r Ref) {
			if r.h != nil {
				visit(r.h)
			}
		})
	}
}

func captureFnFor[T any](v *T) func(*[]*box.Header) {
	return func(buf *[]*box.Header) {
		c, ok := any(v).(GcCapture)
		if !ok {
			return
		}
		captureAdapter{c}.CaptureGcPtrsInto(buf)
	}
}

// Value returns a pointer to the managed value. The pointer remains valid
// only as long as this Gc[T] (or any reference derived from it) is
// reachable; dereferencing it after the last strong reference has been
// released is a use-after-drop bug the spec places on the caller (§7:
// "caller obligation, not detected").
func (g Gc[T]) Value() *T { return g.v }

// IncRef increments the strong count, satisfying tcb.RootPtr /
// roots.ScopedPtr so a Gc[T] can be pushed directly onto a Scope or a
// cross-thread root table without an extra wrapper type.
func (g Gc[T]) IncRef() { g.h.IncRef() }

// DecRef decrements the strong count, dropping T's value (via Dropper, if
// implemented) when it reaches zero. Reports whether this was the last
// strong reference. Per spec §3 Lifecycle item 2: if no weak references
// survive, the box is dropped and its slot returned to the free list
// synchronously, right here; otherwise DEAD_FLAG is set so a later
// Weak.TryUpgrade correctly refuses to resurrect it, mirroring the
// discipline the sweep-driven reclaim path already applies (see
// internal/heap.sweepPageSlots, internal/collector/sweep.go).
func (g Gc[T]) DecRef() bool {
	last := g.h.DecRef()
	if last {
		if g.h.WeakCount() == 0 {
			heap.ReclaimDeadObject(g.h)
		} else {
			heap.MarkDeadObjectKeepSlot(g.h)
		}
	}
	return last
}

// GcHeader returns the box header backing this value, for root tables and
// the collector's root scan.
func (g Gc[T]) GcHeader() *box.Header { return g.h }

// Clone returns a new Gc[T] sharing the same box, incrementing the strong
// count (spec §4.1 "Gc::clone").
func (g Gc[T]) Clone() Gc[T] {
	g.h.IncRef()
	return g
}

// Downgrade returns a Weak[T] to the same value without affecting the
// strong count (spec §4.1 "Gc::downgrade").
func (g Gc[T]) Downgrade() Weak[T] {
	g.h.IncWeak()
	return Weak[T]{h: g.h, v: g.v}
}

// Trace implements Traceable for a Gc[T] held directly inside another
// Gc's payload: visiting it shades the referenced box, it never descends
// into T itself (the collector traces through T's own Trace/GcCapture
// implementation when it marks that box, not transitively through every
// holder of a reference to it).
func (g Gc[T]) Trace(visit func(Ref)) {
	if g.h != nil {
		visit(Ref{h: g.h})
	}
}

// CaptureGcPtrs and CaptureGcPtrsInto implement GcCapture for a Gc[T]
// embedded directly in another payload, for the same reason Trace does:
// a single Ref to this box.
func (g Gc[T]) CaptureGcPtrs() []Ref {
	if g.h == nil {
		return nil
	}
	return []Ref{{h: g.h}}
}

func (g Gc[T]) CaptureGcPtrsInto(buf *[]Ref) {
	if g.h != nil {
		*buf = append(*buf, Ref{h: g.h})
	}
}

// IsZero reports whether g was never initialized (the Go analog of a null
// Gc<T>, which spec's model otherwise disallows).
func (g Gc[T]) IsZero() bool { return g.h == nil }
