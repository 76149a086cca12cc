// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rudogc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGcCellBorrowReturnsCurrentValue(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	owner, err := NewGc(m, 0)
	require.NoError(t, err)

	cell := NewGcCell[int](owner, 5)
	assert.Equal(t, 5, cell.Borrow())
}

func TestGcCellBorrowMutAppliesMutation(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	owner, err := NewGc(m, 0)
	require.NoError(t, err)

	cell := NewGcCell[int](owner, 5)
	cell.BorrowMut(m, func(v *int) { *v = 9 })
	assert.Equal(t, 9, cell.Borrow())
}

func TestGcCellBorrowPanicsWhileMutablyBorrowed(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	owner, err := NewGc(m, 0)
	require.NoError(t, err)

	cell := NewGcCell[int](owner, 5)
	cell.state.Store(-1) // simulate an in-flight mutable borrow
	assert.Panics(t, func() { cell.Borrow() })
}

func TestGcCellBorrowMutPanicsWhileAlreadyBorrowed(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	owner, err := NewGc(m, 0)
	require.NoError(t, err)

	cell := NewGcCell[int](owner, 5)
	cell.state.Store(1) // simulate an active reader
	assert.Panics(t, func() { cell.BorrowMut(m, func(v *int) {}) })
}

func TestGcCellBorrowMutGenOnlySkipsBarriersButStillMutates(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	owner, err := NewGc(m, 0)
	require.NoError(t, err)

	cell := NewGcCell[int](owner, 1)
	cell.BorrowMutGenOnly(m, func(v *int) { *v = 2 })
	assert.Equal(t, 2, cell.Borrow())
}

func TestGcRwLockReadReflectsLastWrite(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	owner, err := NewGc(m, 0)
	require.NoError(t, err)

	lock := NewGcRwLock[int](owner, 1)
	guard := lock.Write(m)
	*guard.Value() = 42
	guard.Unlock()

	assert.Equal(t, 42, lock.Read())
}

func TestGcRwLockTryWriteFailsWhileWriteHeld(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	owner, err := NewGc(m, 0)
	require.NoError(t, err)

	lock := NewGcRwLock[int](owner, 1)
	guard := lock.Write(m)

	_, ok := lock.TryWrite(m)
	assert.False(t, ok)
	guard.Unlock()

	_, ok = lock.TryWrite(m)
	assert.True(t, ok)
}

func TestGcRwLockWriteGuardUnlockIsIdempotent(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	owner, err := NewGc(m, 0)
	require.NoError(t, err)

	lock := NewGcRwLock[int](owner, 1)
	guard := lock.Write(m)
	guard.Unlock()
	assert.NotPanics(t, func() { guard.Unlock() })
}

func TestGcMutexLockThenUnlockAppliesMutation(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	owner, err := NewGc(m, 0)
	require.NoError(t, err)

	mu := NewGcMutex[int](owner, 1)
	guard := mu.Lock(m)
	*guard.Value() = 3
	guard.Unlock()

	guard2 := mu.Lock(m)
	assert.Equal(t, 3, *guard2.Value())
	guard2.Unlock()
}

func TestGcMutexTryLockFailsWhileHeld(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	owner, err := NewGc(m, 0)
	require.NoError(t, err)

	mu := NewGcMutex[int](owner, 1)
	guard := mu.Lock(m)

	_, ok := mu.TryLock(m)
	assert.False(t, ok)
	guard.Unlock()
}

func TestGcThreadSafeCellBorrowAndBorrowMut(t *testing.T) {
	_, m := newTestRuntimeAndMutator(t)
	owner, err := NewGc(m, 0)
	require.NoError(t, err)

	cell := NewGcThreadSafeCell[int](owner, 1)
	cell.BorrowMut(m, func(v *int) { *v = 8 })

	var seen int
	cell.Borrow(func(v int) { seen = v })
	assert.Equal(t, 8, seen)
}
