// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package roots

import (
	"sync"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
	"github.com/XuHaoJun/rudo-sub003/internal/tcb"
)

// ScopedPtr is the minimal view a Scope needs of a rooted value: enough to
// hold it alive for the scope's lifetime (IncRef/DecRef), release it on
// Close, and let the collector's root scan shade it gray (GcHeader).
type ScopedPtr interface {
	IncRef()
	DecRef() bool
	GcHeader() *box.Header
}

// Scope is an explicit handle scope (spec §3 "Root sources": "explicit
// handle scopes (synchronous + async)"). A mutator opens a scope before a
// span of work that creates Gc pointers it wants to guarantee stay live
// without an explicit Gc variable for each one (e.g. while walking a large
// structure), pushes onto it, and closes it when done. Scopes are
// registered in a process-global set so the collector's root scan can walk
// every open scope on every thread, synchronous or async, without needing
// a stack-scanning mechanism (spec's explicit non-goal: "roots are
// explicit handles and registered stacks, not conservatively scanned").
type Scope struct {
	owner tcb.ThreadID

	mu    sync.Mutex
	items []ScopedPtr
}

var (
	registryMu sync.Mutex
	registry   = map[*Scope]struct{}{}
)

// NewScope opens a new handle scope owned by the given thread and
// registers it for root scanning.
func NewScope(owner tcb.ThreadID) *Scope {
	s := &Scope{owner: owner}
	registryMu.Lock()
	registry[s] = struct{}{}
	registryMu.Unlock()
	return s
}

// Push adds ptr to the scope, incrementing its strong count. The caller
// retains its own reference independently; Push does not consume it.
func (s *Scope) Push(ptr ScopedPtr) {
	ptr.IncRef()
	s.mu.Lock()
	s.items = append(s.items, ptr)
	s.mu.Unlock()
}

// Close releases every pointer the scope is holding and unregisters the
// scope. A Scope must not be reused after Close.
func (s *Scope) Close() {
	s.mu.Lock()
	items := s.items
	s.items = nil
	s.mu.Unlock()
	for _, p := range items {
		p.DecRef()
	}
	registryMu.Lock()
	delete(registry, s)
	registryMu.Unlock()
}

// Each calls fn for every item currently held by the scope. Used by the
// root scan; safe to call concurrently with Push (not with Close, which
// the STW Snapshot phase excludes by construction since mutators are
// parked).
func (s *Scope) Each(fn func(ScopedPtr)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.items {
		fn(p)
	}
}

// Owner returns the thread that owns this scope.
func (s *Scope) Owner() tcb.ThreadID { return s.owner }

// AllScopes returns a snapshot of every currently open scope, for the
// collector's root scan (spec §4.7 Snapshot: "every thread's allocation
// stack" generalizes, for this collector, to every thread's open handle
// scopes).
func AllScopes() []*Scope {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]*Scope, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	return out
}
