// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rudogc

import "github.com/XuHaoJun/rudo-sub003/internal/box"

// Weak[T] is a non-owning reference to a collector-managed value (spec
// §4.1 "Weak<T>"). It keeps the box's header alive (via the weak count)
// without keeping T's value alive, and must be upgraded to a Gc[T] before
// the value can be read.
type Weak[T any] struct {
	h *box.Header
	v *T
}

// Upgrade attempts to produce a strong Gc[T], reporting ok=false if the
// value has already been dropped or is still under construction (spec
// §9's cyclic-init guidance: a Weak handed to an in-progress
// NewCyclicWeak closure must not let a concurrent thread observe a
// half-built T).
func (w Weak[T]) Upgrade() (g Gc[T], ok bool) {
	return w.TryUpgrade()
}

// TryUpgrade is Upgrade under its spec name (spec §4.1 "try_upgrade");
// both names exist because the original API distinguishes a
// possibly-panicking accessor from an explicit fallible one, a
// distinction this reference always makes fallible.
func (w Weak[T]) TryUpgrade() (Gc[T], bool) {
	if w.h == nil || w.h.IsUnderConstruction() || w.h.DroppingState() != box.Live {
		return Gc[T]{}, false
	}
	if !w.h.TryIncRefFromZero() {
		// TryIncRefFromZero fails when ref_count was already > 0 or when
		// DEAD_FLAG is set. In the first case a live strong reference
		// exists elsewhere, so a plain increment suffices.
		if w.h.HasDeadFlag() {
			return Gc[T]{}, false
		}
		w.h.IncRef()
	}
	return Gc[T]{h: w.h, v: w.v}, true
}

// Clone returns a new Weak[T] to the same box, incrementing the weak
// count (spec §4.1 "Weak::clone").
func (w Weak[T]) Clone() Weak[T] {
	if w.h != nil {
		w.h.IncWeak()
	}
	return w
}

// Drop releases this weak reference, decrementing the weak count. A
// Weak[T] value is otherwise immutable Go data with no finalizer, so
// callers that want deterministic release must call this explicitly
// (spec's Drop trait has no direct Go analog outside an explicit method).
func (w Weak[T]) Drop() {
	if w.h != nil {
		w.h.DecWeak()
	}
}

// StrongCount returns the box's current strong count (spec §4.1
// "Weak::strong_count").
func (w Weak[T]) StrongCount() uint64 {
	if w.h == nil {
		return 0
	}
	return w.h.RefCount()
}

// WeakCount returns the box's current weak count (spec §4.1
// "Weak::weak_count").
func (w Weak[T]) WeakCount() uint64 {
	if w.h == nil {
		return 0
	}
	return w.h.WeakCount()
}

// IsAlive reports whether the referenced value is still live: not dead,
// not mid-drop, and still has a nonzero strong count (spec §9 open
// question 4 — checked this way, specifically, so that IsAlive agrees
// with Upgrade().ok under quiescent conditions rather than racing it on
// DEAD_FLAG alone).
func (w Weak[T]) IsAlive() bool {
	if w.h == nil {
		return false
	}
	return !w.h.HasDeadFlag() && w.h.DroppingState() == box.Live && w.h.RefCount() > 0
}

// IsZero reports whether w was never initialized.
func (w Weak[T]) IsZero() bool { return w.h == nil }

// Trace implements Traceable for a Weak[T] embedded in another payload.
// It emits no Ref, so marking never follows a weak edge and a weak
// reference never keeps its referent alive. Weak edges are not traced.
func (w Weak[T]) Trace(visit func(Ref)) {}

// CaptureGcPtrs and CaptureGcPtrsInto implement GcCapture for symmetry
// with Gc[T]; a weak edge contributes nothing to SATB capture either,
// for the same reason Trace is a no-op.
func (w Weak[T]) CaptureGcPtrs() []Ref         { return nil }
func (w Weak[T]) CaptureGcPtrsInto(buf *[]Ref) {}
