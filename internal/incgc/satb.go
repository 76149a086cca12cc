// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package incgc

import (
	"sync"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
)

// GlobalSATB is the process-global cross-thread SATB buffer (spec §3
// IncrementalMarkState, §4.3 "unified barrier"): foreign-thread and orphan
// cell writes push old pointer values here instead of into a per-thread
// buffer, since there is no safe per-thread buffer to use from another
// thread's context. Bounded; overflow requests a fallback exactly like
// the per-thread SATBBuffer in internal/heap.
type GlobalSATB struct {
	mu  sync.Mutex
	buf []*box.Header
	cap int
}

// NewGlobalSATB constructs a buffer bounded at capacity entries.
func NewGlobalSATB(capacity int) *GlobalSATB {
	return &GlobalSATB{cap: capacity}
}

// Record appends ptr, reporting false (and requesting SatbBufferOverflow
// fallback on the given state) if the buffer is full.
func (g *GlobalSATB) Record(ptr *box.Header, s *State) bool {
	g.mu.Lock()
	full := len(g.buf) >= g.cap
	if !full {
		g.buf = append(g.buf, ptr)
	}
	g.mu.Unlock()
	if full {
		s.RequestFallback(SatbBufferOverflow)
		return false
	}
	return true
}

// Drain returns and clears the buffer, called by the coordinator at slice
// boundaries and at FinalMark.
func (g *GlobalSATB) Drain() []*box.Header {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.buf) == 0 {
		return nil
	}
	out := g.buf
	g.buf = nil
	return out
}
