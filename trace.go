// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rudogc

import "github.com/XuHaoJun/rudo-sub003/internal/box"

// Ref is an opaque reference to one GcBox header, handed to a Traceable's
// visit callback. Host code never constructs or inspects a Ref directly —
// it only ever receives one from Trace and hands it straight back to the
// collector via the visit function. This keeps internal/box out of the
// import graph of any package that only wants to implement Traceable.
type Ref struct{ h *box.Header }

// Traceable lets a value describe the Gc pointers it directly holds, so
// the tracing mark phase can visit them (spec §4.4, §6). A payload type
// with no Gc fields never needs to implement this; Gc[T], Weak[T] and
// Ephemeron[K,V] implement it themselves.
type Traceable interface {
	Trace(visit func(Ref))
}

// GcCapture lets a cell's payload enumerate the Gc pointers it held
// *before* a mutation, for the SATB pre-write barrier (spec §4.3, §4.4).
// PtrCapture, SliceCapture, MapCapture and MultiCapture below implement it
// for pointers, slices, maps and composites. The cell types in cell.go do
// not implement it.
type GcCapture interface {
	CaptureGcPtrs() []Ref
	CaptureGcPtrsInto(buf *[]Ref)
}

// traceableCapture adapts a Traceable into a GcCapture, for payload types
// that only bothered to implement the simpler of the two interfaces —
// tracing and SATB capture enumerate the same set of pointers.
type traceableCapture struct{ t Traceable }

func (c traceableCapture) CaptureGcPtrs() []Ref {
	var out []Ref
	c.CaptureGcPtrsInto(&out)
	return out
}

func (c traceableCapture) CaptureGcPtrsInto(buf *[]Ref) {
	if c.t == nil {
		return
	}
	c.t.Trace(func(r Ref) { *buf = append(*buf, r) })
}

// AsGcCapture adapts any Traceable to GcCapture when a payload type
// implements only Trace.
func AsGcCapture(t Traceable) GcCapture { return traceableCapture{t} }

// captureAdapter bridges the public GcCapture a cell's payload implements
// to internal/barrier's GcCapture, which speaks in *box.Header instead of
// Ref. It is the only place in this package that unwraps a Ref for
// internal/barrier; gc.go's traceFnFor unwraps Refs for the tracer.
type captureAdapter struct{ c GcCapture }

func (a captureAdapter) CaptureGcPtrs() []*box.Header {
	var out []*box.Header
	a.CaptureGcPtrsInto(&out)
	return out
}

func (a captureAdapter) CaptureGcPtrsInto(buf *[]*box.Header) {
	if a.c == nil {
		return
	}
	var refs []Ref
	a.c.CaptureGcPtrsInto(&refs)
	for _, r := range refs {
		if r.h != nil {
			*buf = append(*buf, r.h)
		}
	}
}

// PtrCapture implements GcCapture for a single optional Gc-like reference
// — the Go analog of spec §4.4's "Option<Gc<T>>" entry. Embed it, or call
// it directly, when a payload holds exactly one nullable Gc pointer.
type PtrCapture struct{ Ref Ref }

func (p PtrCapture) CaptureGcPtrs() []Ref {
	if p.Ref.h == nil {
		return nil
	}
	return []Ref{p.Ref}
}

func (p PtrCapture) CaptureGcPtrsInto(buf *[]Ref) {
	if p.Ref.h != nil {
		*buf = append(*buf, p.Ref)
	}
}

// SliceCapture implements GcCapture for a slice of Refs — the Go analog
// of spec §4.4's Vec/VecDeque/LinkedList/HashSet/BTreeSet entries, all of
// which reduce to "iterate and capture every element".
type SliceCapture []Ref

func (s SliceCapture) CaptureGcPtrs() []Ref { return append([]Ref(nil), s...) }

func (s SliceCapture) CaptureGcPtrsInto(buf *[]Ref) {
	*buf = append(*buf, s...)
}

// MapCapture implements GcCapture for a map keyed or valued by Refs — the
// Go analog of spec §4.4's HashMap/BTreeMap entry: both the keys and the
// values are captured, since either may be the only path keeping a Gc
// alive.
type MapCapture struct {
	Keys   []Ref
	Values []Ref
}

func (m MapCapture) CaptureGcPtrs() []Ref {
	var out []Ref
	m.CaptureGcPtrsInto(&out)
	return out
}

func (m MapCapture) CaptureGcPtrsInto(buf *[]Ref) {
	*buf = append(*buf, m.Keys...)
	*buf = append(*buf, m.Values...)
}

// MultiCapture composes several GcCapture values into one — the Go analog
// of spec §4.4's "Arc<T>, Rc<T>, Box<T>" entries, which each just forward
// to their pointee, and of a struct with several Gc-bearing fields.
type MultiCapture []GcCapture

func (m MultiCapture) CaptureGcPtrs() []Ref {
	var out []Ref
	m.CaptureGcPtrsInto(&out)
	return out
}

func (m MultiCapture) CaptureGcPtrsInto(buf *[]Ref) {
	for _, c := range m {
		if c != nil {
			c.CaptureGcPtrsInto(buf)
		}
	}
}
