// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gcstat assembles plain-data introspection snapshots of the
// collector's current state, for cmd/gcinspect and for hosts that want to
// expose GC health without reaching into internal/collector directly.
//
// Grounded on cmd/viewcore's overview/breakdown commands (internal/gocore
// exposes per-type byte totals and reachability counts purely for
// reporting, never for control flow) — this package plays the same role,
// one step removed from a live Coordinator instead of a parsed core file.
package gcstat

import (
	"github.com/XuHaoJun/rudo-sub003/internal/incgc"
	"github.com/XuHaoJun/rudo-sub003/internal/page"
)

// Snapshot is a point-in-time, GC-safe-to-read copy of collector state.
type Snapshot struct {
	Phase              string
	FallbackRequested  bool
	FallbackReason      string
	CyclesCompleted    int64
	FallbacksTriggered int64
	ObjectsMarked      int64
	DirtyPagesSeen     int64

	SmallPages PageCounts
	LargePages PageCounts
}

// PageCounts tallies pages by coarse status, across every heap a
// Coordinator has ever registered (including orphaned ones).
type PageCounts struct {
	Total     int
	NeedsSweep int
	AllDead   int
	Orphan    int
	Generation0 int
	GenerationN int
}

// Source is the minimal view gcstat needs of a collector.Coordinator,
// defined here rather than imported directly to avoid gcstat depending on
// the heavier collector package just to read its counters.
type Source interface {
	IncState() *incgc.State
	WalkPages(fn func(small bool, p *page.Header))
}

// Take assembles a Snapshot from src.
func Take(src Source) Snapshot {
	inc := src.IncState()
	cycles, fallbacks, marked, dirty := inc.Stats()
	requested, reason := inc.FallbackRequested()

	s := Snapshot{
		Phase:              inc.Phase().String(),
		FallbackRequested:  requested,
		FallbackReason:      reason.String(),
		CyclesCompleted:    cycles,
		FallbacksTriggered: fallbacks,
		ObjectsMarked:      marked,
		DirtyPagesSeen:     dirty,
	}
	src.WalkPages(func(small bool, p *page.Header) {
		counts := &s.LargePages
		if small {
			counts = &s.SmallPages
		}
		counts.Total++
		if p.Flags&page.FlagNeedsSweep != 0 {
			counts.NeedsSweep++
		}
		if p.Flags&page.FlagAllDead != 0 {
			counts.AllDead++
		}
		if p.Flags&page.FlagOrphan != 0 {
			counts.Orphan++
		}
		if p.Generation == 0 {
			counts.Generation0++
		} else {
			counts.GenerationN++
		}
	})
	return s
}
