// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package incgc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseTransitionsFollowTheRing(t *testing.T) {
	s := NewState(true, 100, 0, 16)
	assert.Equal(t, Idle, s.Phase())

	require.True(t, s.BeginSnapshot())
	assert.Equal(t, Snapshot, s.Phase())
	require.True(t, s.BeginMarking())
	assert.Equal(t, Marking, s.Phase())
	require.True(t, s.BeginFinalMark())
	assert.Equal(t, FinalMark, s.Phase())
	require.True(t, s.BeginSweeping())
	assert.Equal(t, Sweeping, s.Phase())
	require.True(t, s.BeginIdle())
	assert.Equal(t, Idle, s.Phase())
}

func TestPhaseTransitionRejectsOutOfOrder(t *testing.T) {
	s := NewState(true, 100, 0, 16)
	assert.False(t, s.BeginMarking(), "cannot skip Snapshot")
	assert.False(t, s.BeginFinalMark())
	assert.False(t, s.BeginSweeping())
	assert.False(t, s.BeginIdle())
	assert.Equal(t, Idle, s.Phase())
}

func TestOnlyOneConcurrentTransitionWins(t *testing.T) {
	s := NewState(true, 100, 0, 16)
	var wg sync.WaitGroup
	results := make([]bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.BeginSnapshot()
		}(i)
	}
	wg.Wait()

	var wins int
	for _, r := range results {
		if r {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, Snapshot, s.Phase())
}

func TestBeginIdleClearsFallbackAndBumpsCycles(t *testing.T) {
	s := NewState(true, 100, 0, 16)
	require.True(t, s.BeginSnapshot())
	require.True(t, s.BeginMarking())
	s.RequestFallback(SliceTimeout)
	require.True(t, s.BeginFinalMark())
	require.True(t, s.BeginSweeping())
	require.True(t, s.BeginIdle())

	requested, reason := s.FallbackRequested()
	assert.False(t, requested)
	assert.Equal(t, NoFallback, reason)

	cycles, fallbacks, _, _ := s.Stats()
	assert.Equal(t, int64(1), cycles)
	assert.Equal(t, int64(1), fallbacks)
}

func TestRequestFallbackFirstReasonWins(t *testing.T) {
	s := NewState(true, 100, 0, 16)
	s.RequestFallback(SatbBufferOverflow)
	s.RequestFallback(DirtyPageThreshold)

	requested, reason := s.FallbackRequested()
	assert.True(t, requested)
	assert.Equal(t, SatbBufferOverflow, reason)

	_, fallbacks, _, _ := s.Stats()
	assert.Equal(t, int64(1), fallbacks, "second request must not bump the counter again")
}

func TestMarkedCounterAddAndReset(t *testing.T) {
	s := NewState(true, 100, 0, 16)
	s.AddMarked(5)
	s.AddMarked(3)
	_, _, marked, _ := s.Stats()
	assert.Equal(t, int64(8), marked)

	s.ResetMarked()
	_, _, marked2, _ := s.Stats()
	assert.Equal(t, int64(0), marked2)
}

func TestSliceBudgetRoundTrips(t *testing.T) {
	s := NewState(false, 42, 1000, 16)
	assert.False(t, s.Enabled())
	objects, deadline := s.SliceBudget()
	assert.Equal(t, int64(42), objects)
	assert.Equal(t, int64(1000), deadline)
}
