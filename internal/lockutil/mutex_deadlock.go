// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build deadlock

package lockutil

import "github.com/sasha-s/go-deadlock"

// Mutex is go-deadlock's lock-order-checked mutex under `-tags deadlock`.
type Mutex = deadlock.Mutex

// RWMutex is go-deadlock's lock-order-checked rwmutex under `-tags deadlock`.
type RWMutex = deadlock.RWMutex
