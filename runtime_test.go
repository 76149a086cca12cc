// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rudogc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMutatorRegistersDistinctThreadIDs(t *testing.T) {
	rt := New()
	defer rt.Close()

	m1 := rt.NewMutator()
	m2 := rt.NewMutator()
	defer m1.Close()
	defer m2.Close()

	assert.NotEqual(t, m1.ID(), m2.ID())
	assert.Same(t, rt, m1.Runtime())
}

func TestRuntimeCollectRunsFullCycleAndReportsIdle(t *testing.T) {
	rt := New()
	defer rt.Close()
	m := rt.NewMutator()
	defer m.Close()

	_, err := NewGc(m, 7)
	require.NoError(t, err)

	require.NoError(t, rt.Collect())
	snap := rt.Snapshot()
	assert.Equal(t, "idle", snap.Phase)
	assert.Equal(t, int64(1), snap.CyclesCompleted)
}

func TestRuntimeCloseStopsScheduledTicker(t *testing.T) {
	rt := New(WithMajorEvery(time.Millisecond))
	m := rt.NewMutator()
	defer m.Close()

	rt.Close()
	assert.Equal(t, time.Millisecond, rt.Config().majorEvery)
}

func TestMutatorCheckSafepointIsANoOpWithoutPendingRequest(t *testing.T) {
	rt := New()
	defer rt.Close()
	m := rt.NewMutator()
	defer m.Close()

	assert.NotPanics(t, func() { m.CheckSafepoint() })
}
