// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rudogc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPtrCaptureSkipsEmptyRef(t *testing.T) {
	var p PtrCapture
	assert.Empty(t, p.CaptureGcPtrs())
}

func TestPtrCaptureReturnsItsRef(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	g, err := NewGc(m, 1)
	require.NoError(t, err)

	p := PtrCapture{Ref: Ref{h: g.GcHeader()}}
	assert.Equal(t, []Ref{{h: g.GcHeader()}}, p.CaptureGcPtrs())
}

func TestSliceCaptureReturnsAllElements(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	g1, err := NewGc(m, 1)
	require.NoError(t, err)
	g2, err := NewGc(m, 2)
	require.NoError(t, err)

	s := SliceCapture{{h: g1.GcHeader()}, {h: g2.GcHeader()}}
	assert.Len(t, s.CaptureGcPtrs(), 2)

	var buf []Ref
	s.CaptureGcPtrsInto(&buf)
	assert.Len(t, buf, 2)
}

func TestMapCaptureReturnsKeysAndValues(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	k, err := NewGc(m, "k")
	require.NoError(t, err)
	v, err := NewGc(m, "v")
	require.NoError(t, err)

	mc := MapCapture{Keys: []Ref{{h: k.GcHeader()}}, Values: []Ref{{h: v.GcHeader()}}}
	got := mc.CaptureGcPtrs()
	require.Len(t, got, 2)
	assert.Equal(t, k.GcHeader(), got[0].h)
	assert.Equal(t, v.GcHeader(), got[1].h)
}

func TestMultiCaptureComposesSeveralCaptures(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	g1, err := NewGc(m, 1)
	require.NoError(t, err)
	g2, err := NewGc(m, 2)
	require.NoError(t, err)

	multi := MultiCapture{
		PtrCapture{Ref: Ref{h: g1.GcHeader()}},
		nil,
		SliceCapture{{h: g2.GcHeader()}},
	}
	assert.Len(t, multi.CaptureGcPtrs(), 2)
}

type traceableStruct struct {
	held Ref
}

func (s traceableStruct) Trace(visit func(Ref)) {
	if s.held != (Ref{}) {
		visit(s.held)
	}
}

func TestAsGcCaptureAdaptsATraceable(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	g, err := NewGc(m, 1)
	require.NoError(t, err)

	s := traceableStruct{held: Ref{h: g.GcHeader()}}
	cap := AsGcCapture(s)

	refs := cap.CaptureGcPtrs()
	require.Len(t, refs, 1)
	assert.Equal(t, g.GcHeader(), refs[0].h)
}

func TestAsGcCaptureOnNilTraceableIsEmpty(t *testing.T) {
	cap := AsGcCapture(nil)
	assert.Empty(t, cap.CaptureGcPtrs())
}
