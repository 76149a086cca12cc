// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package incgc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
)

func TestGlobalSATBRecordUntilFull(t *testing.T) {
	g := NewGlobalSATB(2)
	s := NewState(true, 100, 0, 2)

	require.True(t, g.Record(&box.Header{}, s))
	require.True(t, g.Record(&box.Header{}, s))
	assert.False(t, g.Record(&box.Header{}, s), "buffer at capacity should reject and request fallback")

	requested, reason := s.FallbackRequested()
	assert.True(t, requested)
	assert.Equal(t, SatbBufferOverflow, reason)
}

func TestGlobalSATBDrainEmptiesAndReturnsAll(t *testing.T) {
	g := NewGlobalSATB(10)
	s := NewState(true, 100, 0, 10)
	a, b := &box.Header{}, &box.Header{}
	g.Record(a, s)
	g.Record(b, s)

	out := g.Drain()
	assert.ElementsMatch(t, []*box.Header{a, b}, out)
	assert.Nil(t, g.Drain(), "second drain on an empty buffer returns nil")
}
