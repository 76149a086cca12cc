// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rudogc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEphemeronTraceVisitsValueOnlyWhileKeyAlive(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)

	keyGc, err := NewGc(m, "key")
	require.NoError(t, err)
	keyWeak := keyGc.Downgrade()
	valGc, err := NewGc(m, 99)
	require.NoError(t, err)

	eph := NewEphemeron(keyWeak, valGc)

	var visited []Ref
	eph.Trace(func(r Ref) { visited = append(visited, r) })
	assert.Len(t, visited, 1)

	require.True(t, keyGc.DecRef())
	visited = nil
	eph.Trace(func(r Ref) { visited = append(visited, r) })
	assert.Empty(t, visited, "a dead key must stop the value from being traced")

	keyWeak.Drop()
}

func TestEphemeronCaptureFollowsSameLivenessPolicyAsTrace(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)

	keyGc, err := NewGc(m, "key")
	require.NoError(t, err)
	keyWeak := keyGc.Downgrade()
	valGc, err := NewGc(m, 1)
	require.NoError(t, err)

	eph := NewEphemeron(keyWeak, valGc)
	assert.Len(t, eph.CaptureGcPtrs(), 1)

	require.True(t, keyGc.DecRef())
	assert.Empty(t, eph.CaptureGcPtrs())

	keyWeak.Drop()
}

func TestEphemeronKeyAndValueAccessors(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)

	keyGc, err := NewGc(m, "key")
	require.NoError(t, err)
	keyWeak := keyGc.Downgrade()
	valGc, err := NewGc(m, 7)
	require.NoError(t, err)

	eph := NewEphemeron(keyWeak, valGc)
	assert.Equal(t, keyWeak.h, eph.Key().h)
	assert.Equal(t, 7, *eph.Value().Value())

	keyGc.DecRef()
	keyWeak.Drop()
}

func TestEphemeronCloneClonesKeyAndValueWhenValueIsAlive(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)

	keyGc, err := NewGc(m, "key")
	require.NoError(t, err)
	keyWeak := keyGc.Downgrade()
	valGc, err := NewGc(m, 3)
	require.NoError(t, err)

	eph := NewEphemeron(keyWeak, valGc)
	clone := eph.Clone()

	assert.Equal(t, uint64(2), valGc.GcHeader().RefCount())
	assert.Equal(t, uint64(2), keyWeak.WeakCount())
	assert.Equal(t, 3, *clone.Value().Value())

	keyGc.DecRef()
	keyWeak.Drop()
	clone.Key().Drop()
}

func TestEphemeronClonePanicsWhenValueIsDead(t *testing.T) {
	rt, m := newTestRuntimeAndMutator(t)

	keyGc, err := NewGc(m, "key")
	require.NoError(t, err)
	keyWeak := keyGc.Downgrade()
	valGc, err := NewGc(m, 1)
	require.NoError(t, err)
	valWeak := valGc.Downgrade() // keeps the slot allocated-but-dead across the sweep

	require.True(t, valGc.DecRef())
	require.NoError(t, rt.Collect())

	eph := NewEphemeron(keyWeak, valGc)
	assert.Panics(t, func() { eph.Clone() })

	keyWeak.Drop()
	valWeak.Drop()
}
