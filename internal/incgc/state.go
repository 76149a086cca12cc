// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package incgc implements the incremental mark state machine (spec
// §4.7): Idle -> Snapshot -> Marking -> FinalMark -> Sweeping, with a
// fallback edge from Marking straight to FinalMark. It has no direct
// teacher analog — golang.org/x/debug reads one frozen core dump and never
// marks concurrently with a live mutator — but its gray worklist
// generalizes internal/gocore/object.go's markObjects worklist (there a
// plain `var q []Object` LIFO stack consumed to exhaustion in one
// uninterrupted pass; here the same gray-stack idea is split across
// bounded slices and made safe for concurrent push/pop from multiple
// mutators).
package incgc

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/XuHaoJun/rudo-sub003/internal/gclog"
)

// Phase is one state of the incremental mark state machine.
type Phase int32

const (
	Idle Phase = iota
	Snapshot
	Marking
	FinalMark
	Sweeping
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Snapshot:
		return "snapshot"
	case Marking:
		return "marking"
	case FinalMark:
		return "final-mark"
	case Sweeping:
		return "sweeping"
	default:
		return "unknown"
	}
}

// FallbackReason explains why the state machine is being pushed from
// concurrent Marking straight to a stop-the-world FinalMark (spec §4.7,
// §7 "resource exhaustion").
type FallbackReason int32

const (
	NoFallback FallbackReason = iota
	SatbBufferOverflow
	DirtyPageThreshold
	SliceTimeout
	WorklistUnbounded
)

func (r FallbackReason) String() string {
	switch r {
	case NoFallback:
		return "none"
	case SatbBufferOverflow:
		return "satb-buffer-overflow"
	case DirtyPageThreshold:
		return "dirty-page-threshold"
	case SliceTimeout:
		return "slice-timeout"
	case WorklistUnbounded:
		return "worklist-unbounded"
	default:
		return "unknown"
	}
}

var log = gclog.Component("incgc")

// State is the process-global incremental mark state (spec §3
// IncrementalMarkState). Every mutation of phase goes through CAS (spec
// §4.7: "must be performed via CAS on the phase atomic, not load-then-
// store, to prevent two coordinators from bypassing Snapshot or
// Marking").
type State struct {
	phase atomic.Int32

	enabled atomic.Bool

	fallbackRequested atomic.Bool
	fallbackReason     atomic.Int32

	Worklist   Worklist
	GlobalSATB *GlobalSATB

	sliceObjects   atomic.Int64
	sliceDeadlineNs atomic.Int64

	objectsMarkedThisCycle atomic.Int64
	dirtyPagesSeen         atomic.Int64
	cyclesCompleted        atomic.Int64
	fallbacksTriggered     atomic.Int64
}

// NewState constructs an incremental mark state machine in Idle, with
// incremental marking enabled and the given per-slice budgets.
func NewState(enabled bool, sliceObjects int64, sliceDeadlineNs int64, crossThreadSatbCapacity int) *State {
	s := &State{}
	s.phase.Store(int32(Idle))
	s.enabled.Store(enabled)
	s.sliceObjects.Store(sliceObjects)
	s.sliceDeadlineNs.Store(sliceDeadlineNs)
	s.GlobalSATB = NewGlobalSATB(crossThreadSatbCapacity)
	return s
}

// Phase returns the current phase (Acquire load).
func (s *State) Phase() Phase { return Phase(s.phase.Load()) }

// Enabled reports whether incremental marking is enabled; false forces
// pure STW collection (spec §6 "incremental.enabled").
func (s *State) Enabled() bool { return s.enabled.Load() }

// SetEnabled toggles incremental marking. Only safe to call while Idle;
// callers (internal/collector) are expected to check Phase() first.
func (s *State) SetEnabled(v bool) { s.enabled.Store(v) }

// SliceBudget returns the configured per-slice object count and wall-clock
// deadline.
func (s *State) SliceBudget() (objects int64, deadlineNs int64) {
	return s.sliceObjects.Load(), s.sliceDeadlineNs.Load()
}

// transition attempts phase from -> to via CAS, logging on success.
func (s *State) transition(from, to Phase) bool {
	ok := s.phase.CompareAndSwap(int32(from), int32(to))
	if ok {
		log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Debug("phase transition")
	}
	return ok
}

// BeginSnapshot transitions Idle -> Snapshot. Called by the coordinator
// under STW, before pushing roots onto the worklist.
func (s *State) BeginSnapshot() bool { return s.transition(Idle, Snapshot) }

// BeginMarking transitions Snapshot -> Marking, releasing mutators back to
// concurrent execution.
func (s *State) BeginMarking() bool { return s.transition(Snapshot, Marking) }

// BeginFinalMark transitions Marking -> FinalMark (normal completion or
// fallback — both land here).
func (s *State) BeginFinalMark() bool { return s.transition(Marking, FinalMark) }

// BeginSweeping transitions FinalMark -> Sweeping.
func (s *State) BeginSweeping() bool { return s.transition(FinalMark, Sweeping) }

// BeginIdle transitions Sweeping -> Idle, completing a cycle. Fallback is
// recoverable (spec §4.7): the next major cycle returns to Idle and may
// try incremental again, so this also clears any pending fallback request.
func (s *State) BeginIdle() bool {
	ok := s.transition(Sweeping, Idle)
	if ok {
		s.fallbackRequested.Store(false)
		s.fallbackReason.Store(int32(NoFallback))
		s.cyclesCompleted.Add(1)
	}
	return ok
}

// RequestFallback sets fallback_requested with the given reason (spec §7:
// "Set fallback_requested(reason); next safepoint promotes to FinalMark").
// Idempotent: the first reason observed wins.
func (s *State) RequestFallback(reason FallbackReason) {
	if s.fallbackRequested.CompareAndSwap(false, true) {
		s.fallbackReason.Store(int32(reason))
		s.fallbacksTriggered.Add(1)
		log.WithField("reason", reason.String()).Warn("fallback requested")
	}
}

// FallbackRequested reports whether a fallback to STW FinalMark is
// pending, and why.
func (s *State) FallbackRequested() (bool, FallbackReason) {
	if !s.fallbackRequested.Load() {
		return false, NoFallback
	}
	return true, FallbackReason(s.fallbackReason.Load())
}

// Stats returns plain counters for internal/gcstat's Snapshot.
func (s *State) Stats() (cycles, fallbacks, marked, dirtyPages int64) {
	return s.cyclesCompleted.Load(), s.fallbacksTriggered.Load(), s.objectsMarkedThisCycle.Load(), s.dirtyPagesSeen.Load()
}

// AddMarked and ResetMarked track the per-cycle marked-object counter,
// used both for the histogram/breakdown-style introspection in
// internal/gcstat and for recognizing an unbounded worklist (spec §4.7
// fallback trigger "worklist_unbounded").
func (s *State) AddMarked(n int64)  { s.objectsMarkedThisCycle.Add(n) }
func (s *State) ResetMarked()       { s.objectsMarkedThisCycle.Store(0) }
func (s *State) AddDirtyPages(n int64) { s.dirtyPagesSeen.Add(n) }
