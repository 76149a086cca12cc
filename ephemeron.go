// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rudogc

// Ephemeron[K, V] holds a weak key and a strong value whose liveness is
// conditional on the key's (spec §4.5): tracing only visits the value if
// the key is still alive at the moment of tracing. This accepts the
// TOCTOU imprecision spec §9 discusses explicitly — a key that dies in
// the instant after this check but before FinalMark completes keeps its
// value alive for one extra cycle rather than being collected early,
// which is the conservative direction to err in.
type Ephemeron[K, V any] struct {
	key   Weak[K]
	value Gc[V]
}

// NewEphemeron constructs an Ephemeron over an existing weak key and
// strong value. The value's own strong reference is retained by the
// ephemeron until it is dropped or the key dies and a sweep reclaims it.
func NewEphemeron[K, V any](key Weak[K], value Gc[V]) Ephemeron[K, V] {
	return Ephemeron[K, V]{key: key, value: value}
}

// Key returns the ephemeron's weak key.
func (e Ephemeron[K, V]) Key() Weak[K] { return e.key }

// Value returns the ephemeron's Gc value, regardless of the key's
// liveness — reading it directly bypasses the conditional-trace
// liveness policy, the same way dereferencing a Gc[T] after its last
// strong reference is a caller obligation elsewhere in this package.
func (e Ephemeron[K, V]) Value() Gc[V] { return e.value }

// Clone returns a new Ephemeron sharing the same key and value,
// incrementing the key's weak count and the value's strong count (spec
// §9.3: Ephemeron::clone on a dead or dropping value panics, matching
// Gc::clone's own behavior, since cloning a value already mid-drop can
// never produce a valid new strong reference).
func (e Ephemeron[K, V]) Clone() Ephemeron[K, V] {
	if e.value.h != nil && (e.value.h.HasDeadFlag() || e.value.h.DroppingState() != 0) {
		panic("rudogc: Ephemeron.Clone: value is dead or dropping")
	}
	return Ephemeron[K, V]{key: e.key.Clone(), value: e.value.Clone()}
}

// Trace implements Traceable: visits the value's box only if the key is
// still alive (spec §4.5, §8 testable property 7, "ephemeron conditional
// trace").
func (e Ephemeron[K, V]) Trace(visit func(Ref)) {
	if e.key.IsAlive() {
		e.value.Trace(visit)
	}
}

// CaptureGcPtrs and CaptureGcPtrsInto implement GcCapture with the same
// conditional-liveness policy as Trace, so the SATB pre-write barrier
// doesn't keep a value alive past its key's death either.
func (e Ephemeron[K, V]) CaptureGcPtrs() []Ref {
	var out []Ref
	e.CaptureGcPtrsInto(&out)
	return out
}

func (e Ephemeron[K, V]) CaptureGcPtrsInto(buf *[]Ref) {
	if e.key.IsAlive() {
		e.value.CaptureGcPtrsInto(buf)
	}
}
