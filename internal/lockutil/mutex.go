// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !deadlock

// Package lockutil picks the mutex implementation used by every lock-
// order-sensitive type in this tree (internal/heap, internal/tcb,
// internal/incgc): a plain sync.Mutex by default, or
// github.com/sasha-s/go-deadlock under `-tags deadlock`, which records
// acquisition order at runtime and panics with a cycle report if the
// global lock order (spec §4.6: LocalHeap < IncrementalMarkState <
// GcRequest < CrossThreadRootTable) is ever violated. This keeps the
// deadlock detector's per-lock bookkeeping off the hot allocation path in
// production builds while still making testable property 6 (no lock-order
// inversion) mechanically checkable in CI/debug builds.
package lockutil

import "sync"

// Mutex is a plain sync.Mutex in production builds.
type Mutex = sync.Mutex

// RWMutex is a plain sync.RWMutex in production builds.
type RWMutex = sync.RWMutex
