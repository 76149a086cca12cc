// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package incgc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
	"github.com/XuHaoJun/rudo-sub003/internal/page"
)

func newShadeableObject(p *page.Header, slot int) *box.Header {
	h := &box.Header{}
	h.Init(box.NoOpDrop, box.NoOpTrace, box.NoOpCapture)
	h.SetLocation(unsafe.Pointer(p), slot)
	return h
}

func TestShadeGraySetsMarkAndPushesOnce(t *testing.T) {
	s := NewState(true, 100, 0, 16)
	Register(s)

	p := page.NewSmallHeader(0x9000, page.SizeClassFor(32), 1)
	slot := p.AllocSlot()
	require.GreaterOrEqual(t, slot, 0)
	obj := newShadeableObject(p, slot)

	ShadeGray(obj)
	assert.True(t, p.IsMarked(slot))
	assert.Equal(t, int64(1), s.Worklist.Len())

	ShadeGray(obj)
	assert.Equal(t, int64(1), s.Worklist.Len(), "already-marked object must not be enqueued twice")
}

func TestShadeGrayNilIsNoOp(t *testing.T) {
	s := NewState(true, 100, 0, 16)
	Register(s)
	ShadeGray(nil)
	assert.Equal(t, int64(0), s.Worklist.Len())
}

func TestShadeGrayUnlocatedObjectIsNoOp(t *testing.T) {
	s := NewState(true, 100, 0, 16)
	Register(s)
	obj := &box.Header{}
	obj.Init(box.NoOpDrop, box.NoOpTrace, box.NoOpCapture)
	ShadeGray(obj)
	assert.Equal(t, int64(0), s.Worklist.Len())
}
