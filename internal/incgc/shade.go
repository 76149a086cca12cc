// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package incgc

import (
	"github.com/XuHaoJun/rudo-sub003/internal/box"
	"github.com/XuHaoJun/rudo-sub003/internal/page"
)

// ShadeGray marks obj reachable (sets its page mark bit) if it wasn't
// already, and pushes it onto the worklist so its own referents get
// traced. This is the "discipline to avoid duplicate enqueue via the mark
// bit" spec §5 requires: the mark bit check-and-set happens under the
// object's page lock, so two racing shaders of the same object enqueue it
// at most once.
//
// SATB buffer drains (internal/heap.SATBBuffer.Drain) and the collector's
// root scan both shade this way. The Dijkstra post-write barrier
// (internal/barrier) also calls this for the newly written pointer: spec
// §4.3 describes that barrier as marking "directly...not merely
// enqueued", which we read as "synchronously, before the guard-drop
// returns" rather than "skip tracing its children" — skipping the enqueue
// would leave the new value's own referents unmarked whenever it is the
// only path keeping them alive, which would be unsound.
func ShadeGray(obj *box.Header) {
	if obj == nil {
		return
	}
	pageRef, slot := obj.Location()
	if pageRef == nil {
		return
	}
	p := (*page.Header)(pageRef)
	if !p.Valid() {
		return
	}
	p.Lock()
	already := p.IsMarked(slot)
	if !already {
		p.SetMarked(slot)
	}
	p.Unlock()
	if !already {
		globalState().Worklist.Push(obj)
	}
}

// activeState holds the process-global incremental state that ShadeGray
// targets. internal/collector sets this once at startup (Register);
// package-global because GcBox mutation sites (internal/barrier) have no
// natural place to thread a *State through every call without polluting
// every cell type's API with a State parameter.
var activeState *State

// Register installs the process-wide incremental state. Called once by
// the collector at construction.
func Register(s *State) { activeState = s }

func globalState() *State { return activeState }
