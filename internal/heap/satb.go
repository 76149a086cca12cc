// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"sync"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
)

// SATBBuffer is the thread-local Snapshot-At-The-Beginning buffer (spec
// §3 LocalHeap: "a thread-local SATB buffer (bounded, with overflow
// signaling)"). The pre-write barrier (internal/barrier) appends old
// pointer values here before a mutation takes effect; the buffer is
// drained at slice boundaries and its contents pushed gray (spec §4.7).
type SATBBuffer struct {
	mu   sync.Mutex
	buf  []*box.Header
	cap  int
}

// NewSATBBuffer constructs a buffer bounded at capacity entries.
func NewSATBBuffer(capacity int) *SATBBuffer {
	return &SATBBuffer{cap: capacity}
}

// Record appends ptr to the buffer. Reports false if the buffer is full —
// the caller (the SATB barrier) must, on false, request a fallback
// (incgc.SatbBufferOverflow) and skip further recording for the current
// slice (spec §4.3 item 2), rather than blocking or dropping silently.
func (b *SATBBuffer) Record(ptr *box.Header) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) >= b.cap {
		return false
	}
	b.buf = append(b.buf, ptr)
	return true
}

// Drain returns and clears the buffer's contents.
func (b *SATBBuffer) Drain() []*box.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf) == 0 {
		return nil
	}
	out := b.buf
	b.buf = nil
	return out
}

// Len reports the current buffer occupancy.
func (b *SATBBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}
