// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package incgc

import (
	"sync/atomic"
	"unsafe"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
)

type node struct {
	val  *box.Header
	next unsafe.Pointer // *node
}

// Worklist is the lock-free MPMC gray-object queue (spec §5: "a lock-free
// MPMC queue (unbounded, backed by segmented allocation)"). It is
// implemented as a Treiber stack: LIFO rather than FIFO, which is
// immaterial for a mark worklist (trace order doesn't affect correctness,
// only cache locality) and needs no helper segment allocator beyond Go's
// own allocator providing each node — "segmented allocation" here is Go's
// GC amortizing small allocations the same way a bump-pointer segment
// would.
type Worklist struct {
	head unsafe.Pointer // *node
	size atomic.Int64
}

// Push adds obj to the worklist.
func (w *Worklist) Push(obj *box.Header) {
	n := &node{val: obj}
	for {
		old := atomic.LoadPointer(&w.head)
		n.next = old
		if atomic.CompareAndSwapPointer(&w.head, old, unsafe.Pointer(n)) {
			w.size.Add(1)
			return
		}
	}
}

// Pop removes and returns an object from the worklist, or (nil, false) if
// empty.
func (w *Worklist) Pop() (*box.Header, bool) {
	for {
		old := atomic.LoadPointer(&w.head)
		if old == nil {
			return nil, false
		}
		n := (*node)(old)
		if atomic.CompareAndSwapPointer(&w.head, old, n.next) {
			w.size.Add(-1)
			return n.val, true
		}
	}
}

// Len returns an approximate size (exact only in the absence of
// concurrent Push/Pop, e.g. under STW).
func (w *Worklist) Len() int64 { return w.size.Load() }

// Drain pops everything currently on the worklist, calling fn for each.
// Used at FinalMark to drain the worklist to exhaustion (spec §4.7).
func (w *Worklist) Drain(fn func(*box.Header)) {
	for {
		v, ok := w.Pop()
		if !ok {
			return
		}
		fn(v)
	}
}
