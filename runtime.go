// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rudogc is the public surface of the collector: a Runtime a host
// process constructs once, and a Mutator each participating thread
// registers before it allocates Gc values. Everything under internal/ is
// orchestration; this package is the thing application code imports.
package rudogc

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/XuHaoJun/rudo-sub003/internal/collector"
	"github.com/XuHaoJun/rudo-sub003/internal/gclog"
	"github.com/XuHaoJun/rudo-sub003/internal/gcstat"
	"github.com/XuHaoJun/rudo-sub003/internal/heap"
	"github.com/XuHaoJun/rudo-sub003/internal/incgc"
	"github.com/XuHaoJun/rudo-sub003/internal/page"
	"github.com/XuHaoJun/rudo-sub003/internal/tcb"
)

var log = gclog.Component("rudogc")

// Runtime owns the process-wide collector state: the page manager, the
// incremental mark state machine, and every registered Mutator. Go has no
// analog of the teacher's single frozen process to attach to — there is
// exactly one of these per host process, constructed once at startup.
type Runtime struct {
	cfg   Config
	coord *collector.Coordinator

	nextThread atomic.Uint64

	stopMajor chan struct{}
	majorWg   sync.WaitGroup
}

// New constructs a Runtime. Segments backing the page manager come from
// the host's virtual memory via internal/page's unix.Mmap-backed source.
func New(opts ...Option) *Runtime {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	inc := incgc.NewState(cfg.incrementalEnabled, cfg.sliceObjects, cfg.sliceDeadline.Nanoseconds(), cfg.crossThreadSatbCapacity)
	mgr := page.NewManager(nil)
	r := &Runtime{
		cfg:   cfg,
		coord: collector.New(mgr, inc, cfg.markWorkers),
	}
	if cfg.majorEvery > 0 {
		r.startMajorCycleTicker()
	}
	return r
}

// Config returns the runtime's effective configuration.
func (r *Runtime) Config() Config { return r.cfg }

// startMajorCycleTicker runs Collect on generational.major_every, stopped
// by Close. A fixed ticker rather than a deadline recomputed per
// collection, matching spec §6's "every" phrasing literally.
func (r *Runtime) startMajorCycleTicker() {
	r.stopMajor = make(chan struct{})
	r.majorWg.Add(1)
	go func() {
		defer r.majorWg.Done()
		t := time.NewTicker(r.cfg.majorEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				if err := r.Collect(); err != nil {
					log.WithError(err).Error("scheduled major cycle failed")
				}
			case <-r.stopMajor:
				return
			}
		}
	}()
}

// Collect runs one full major collection cycle synchronously: Snapshot,
// Marking, FinalMark, Sweep (spec §4.7). Safe to call concurrently with
// mutators; it is not safe to call concurrently with itself — spec's
// "one coordinator, one cycle in flight at a time" (§3) is enforced by
// the phase machine's CAS discipline, which simply rejects the second
// caller's BeginSnapshot.
func (r *Runtime) Collect() error {
	return r.coord.RunMajorCycle()
}

// Snapshot returns a plain-data introspection snapshot of the collector's
// current state (spec §6's introspection surface), for tooling like
// cmd/gcinspect or a host's own diagnostics endpoint.
func (r *Runtime) Snapshot() gcstat.Snapshot {
	return gcstat.Take(r.coord)
}

// Close stops the scheduled collection ticker, if any. It does not wait
// for or unregister any Mutator — callers are expected to Close every
// Mutator themselves first.
func (r *Runtime) Close() {
	if r.stopMajor != nil {
		close(r.stopMajor)
		r.majorWg.Wait()
	}
}

// Mutator is a registered participant in this Runtime: spec §3's "OS
// thread registered with the collector". Go has no OS-thread-local
// storage a library can hook the way the spec's TCB-per-OS-thread model
// assumes, so registration here is explicit: a goroutine that wants to
// allocate Gc values calls Runtime.NewMutator once and uses the returned
// Mutator for every allocation it performs, instead of the collector
// discovering threads implicitly.
type Mutator struct {
	id   tcb.ThreadID
	tc   *tcb.TCB
	heap *heap.LocalHeap
	rt   *Runtime
}

// NewMutator registers a new Mutator with the runtime, constructing its
// LocalHeap and ThreadControlBlock (spec §3).
func (r *Runtime) NewMutator() *Mutator {
	id := tcb.ThreadID(r.nextThread.Add(1))
	tc, h := r.coord.RegisterThread(id, r.cfg.satbBufferCapacity)
	return &Mutator{id: id, tc: tc, heap: h, rt: r}
}

// ID returns the mutator's ThreadID, used to compare against a
// GcHandle's origin thread (spec §4.6 "Resolve... panics unless the
// calling thread is the origin thread").
func (m *Mutator) ID() tcb.ThreadID { return m.id }

// Runtime returns the owning Runtime.
func (m *Mutator) Runtime() *Runtime { return m.rt }

// CheckSafepoint cooperates with a pending stop-the-world request, or
// opportunistically performs one incremental mark slice if none is
// pending (spec §4.7, §4.8). Host code is expected to call this at loop
// back-edges and allocation-heavy boundaries, mirroring the generated
// back-edge checks spec §4.8 assumes a compiled mutator has.
func (m *Mutator) CheckSafepoint() {
	m.tc.CheckSafepoint(func() { m.rt.coord.MarkSlice() })
}

// Close unregisters the mutator: its cross-thread roots migrate to the
// runtime's orphan table and its owned pages are flagged orphan so the
// next major cycle sweeps them eagerly rather than waiting on an
// allocator that no longer exists (spec §4.2, §4.7).
func (m *Mutator) Close() {
	m.rt.coord.UnregisterThread(m.id)
}
