// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package collector implements the mark-sweep pipeline and the
// incremental state machine's orchestration (spec §4.7, §4.8): a
// Coordinator owns the page manager, the process-wide incremental state,
// every registered thread's TCB and LocalHeap, the orphan root table, and
// the process-wide dirty list used for orphaned/foreign-owned pages.
//
// The teacher's closest analog is internal/gocore's two-pass object walk
// (markObjects for reachability, then the free/in-use span classification
// in process.go) — both pick apart a heap into live vs. dead. The
// difference is this pass runs against a live, mutating heap instead of
// one frozen core dump, so it needs the safepoint coordination and
// snapshot/overflow bookkeeping the teacher never had to do.
package collector

import (
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
	"github.com/XuHaoJun/rudo-sub003/internal/gclog"
	"github.com/XuHaoJun/rudo-sub003/internal/heap"
	"github.com/XuHaoJun/rudo-sub003/internal/incgc"
	"github.com/XuHaoJun/rudo-sub003/internal/lockutil"
	"github.com/XuHaoJun/rudo-sub003/internal/page"
	"github.com/XuHaoJun/rudo-sub003/internal/roots"
	"github.com/XuHaoJun/rudo-sub003/internal/tcb"
)

var log = gclog.Component("collector")

// safepointPollInterval is how often stopTheWorld re-checks whether every
// registered thread has parked. Mutators are expected to hit a safepoint
// check within a few allocations or back-edges, so this stays short.
const safepointPollInterval = 50 * time.Microsecond

// Coordinator is the process-wide collector (spec §3's "one collector
// coordinator, may be one of the mutators"). One Coordinator per process;
// constructed once at host startup.
type Coordinator struct {
	Manager *page.Manager
	Inc     *incgc.State
	Orphan  *roots.Orphan

	// OrphanDirty is the dirty list internal/barrier.Unified records into
	// for cross-thread and orphan-owned pages, since those pages have no
	// live owning LocalHeap to hand a dirty page to.
	OrphanDirty heap.DirtyList

	mu      lockutil.Mutex
	threads map[tcb.ThreadID]*tcb.TCB
	heaps   map[tcb.ThreadID]*heap.LocalHeap

	// workers is how many goroutines runMarking fans the worklist out to
	// (spec §4.7 "optional worker threads"). 1 means the sequential loop;
	// the worklist is a lock-free MPMC queue either way, so this is purely
	// a throughput knob, never a correctness one.
	workers int
}

// New constructs a Coordinator. satbBufferCapacity and
// crossThreadSatbCapacity come from Config (spec §6
// "incremental.satb_buffer_capacity" / "incremental.cross_thread_satb_capacity").
// workers configures the optional concurrent-marking worker pool (spec §4.7);
// values less than 1 are treated as 1 (sequential marking).
func New(mgr *page.Manager, inc *incgc.State, workers int) *Coordinator {
	if workers < 1 {
		workers = 1
	}
	c := &Coordinator{
		Manager: mgr,
		Inc:     inc,
		Orphan:  roots.NewOrphanTable(),
		threads: make(map[tcb.ThreadID]*tcb.TCB),
		heaps:   make(map[tcb.ThreadID]*heap.LocalHeap),
		workers: workers,
	}
	incgc.Register(inc)
	return c
}

// RegisterThread constructs a LocalHeap and TCB for a newly registered
// mutator thread and returns both.
func (c *Coordinator) RegisterThread(id tcb.ThreadID, satbCapacity int) (*tcb.TCB, *heap.LocalHeap) {
	h := heap.New(id, c.Manager, c.Inc, satbCapacity)
	t := tcb.New(id, h)
	c.mu.Lock()
	c.threads[id] = t
	c.heaps[id] = h
	c.mu.Unlock()
	log.WithField("thread", id).Debug("thread registered")
	return t, h
}

// UnregisterThread marks a thread's TCB dead and migrates its cross-thread
// roots to the orphan table (spec §3 OrphanRootTable). The thread's
// LocalHeap and its pages are kept around — spec §4.2/§4.7 treat their
// pages as "orphan pages": reclaimed eagerly at the next major cycle's
// sweep phase rather than lazily by an allocator that no longer exists.
func (c *Coordinator) UnregisterThread(id tcb.ThreadID) {
	c.mu.Lock()
	t, ok := c.threads[id]
	delete(c.threads, id)
	c.mu.Unlock()
	if !ok {
		return
	}
	t.RootsMu().Lock()
	c.Orphan.Absorb(id, t.Roots())
	t.RootsMu().Unlock()
	t.MarkDead()

	if h, ok := c.heaps[id]; ok {
		h.ForEachPage(func(_ int, p *page.Header) {
			p.Lock()
			p.Flags |= page.FlagOrphan
			p.Unlock()
		})
		h.ForEachLargePage(func(p *page.Header) {
			p.Lock()
			p.Flags |= page.FlagOrphan
			p.Unlock()
		})
	}
	log.WithField("thread", id).Debug("thread unregistered, roots migrated to orphan table")
}

// Thread returns the TCB registered for id, if its thread is still live.
// Used by LookupRoot and RemoveRoot to find the origin thread's own root
// table rather than the orphan table while that thread is still
// registered.
func (c *Coordinator) Thread(id tcb.ThreadID) (*tcb.TCB, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.threads[id]
	return t, ok
}

// LookupRoot finds the root table entry registered as (thread, handle),
// checking the thread's own live CrossThreadRootTable first and falling
// back to the orphan table if the thread has since exited (spec §4.6
// "a handle continues to resolve after its origin thread exits, via the
// orphan table").
func (c *Coordinator) LookupRoot(thread tcb.ThreadID, id tcb.HandleID) (tcb.RootPtr, bool) {
	if t, ok := c.Thread(thread); ok {
		t.RootsMu().Lock()
		p, found := t.Roots().Lookup(id)
		t.RootsMu().Unlock()
		if found {
			return p, true
		}
	}
	return c.Orphan.Lookup(thread, id)
}

// RemoveRoot unregisters (thread, handle) from wherever it currently
// lives — the thread's own table if still live, the orphan table
// otherwise — returning the entry removed.
func (c *Coordinator) RemoveRoot(thread tcb.ThreadID, id tcb.HandleID) (tcb.RootPtr, bool) {
	if t, ok := c.Thread(thread); ok {
		t.RootsMu().Lock()
		p, found := t.Roots().Remove(id)
		t.RootsMu().Unlock()
		if found {
			return p, true
		}
	}
	return c.Orphan.Remove(thread, id)
}

// liveThreads returns a snapshot of every currently registered TCB.
func (c *Coordinator) liveThreads() []*tcb.TCB {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*tcb.TCB, 0, len(c.threads))
	for _, t := range c.threads {
		out = append(out, t)
	}
	return out
}

// allHeaps returns a snapshot of every LocalHeap this coordinator has ever
// registered, including ones whose owning thread has since exited.
func (c *Coordinator) allHeaps() []*heap.LocalHeap {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*heap.LocalHeap, 0, len(c.heaps))
	for _, h := range c.heaps {
		out = append(out, h)
	}
	return out
}

// IncState exposes the incremental mark state, satisfying
// internal/gcstat.Source.
func (c *Coordinator) IncState() *incgc.State { return c.Inc }

// WalkPages calls fn for every page (small or large) across every
// registered heap, satisfying internal/gcstat.Source.
func (c *Coordinator) WalkPages(fn func(small bool, p *page.Header)) {
	for _, h := range c.allHeaps() {
		h.ForEachPage(func(_ int, p *page.Header) { fn(true, p) })
		h.ForEachLargePage(func(p *page.Header) { fn(false, p) })
	}
}

// stopTheWorld requests a safepoint on every live thread and blocks until
// each has either parked or exited. Called at Snapshot and FinalMark.
func (c *Coordinator) stopTheWorld() {
	threads := c.liveThreads()
	for _, t := range threads {
		t.RequestSafepoint()
	}
	for _, t := range threads {
		for t.Alive() && !t.Parked() {
			time.Sleep(safepointPollInterval)
		}
	}
}

// resumeWorld clears every live thread's safepoint request, waking parked
// mutators.
func (c *Coordinator) resumeWorld() {
	for _, t := range c.liveThreads() {
		t.ClearSafepoint()
	}
}

// RunMajorCycle drives the incremental state machine through one full
// cycle: Snapshot (STW) -> Marking (concurrent, driven by MarkSlice calls
// from safepoints and/or this loop) -> FinalMark (STW) -> Sweeping ->
// Idle. If c.Inc is configured with incremental marking disabled, Marking
// still runs but entirely within this call (no mutator concurrency is
// assumed either way — this method does not itself yield).
func (c *Coordinator) RunMajorCycle() error {
	snapshotDirty, err := c.beginSnapshot()
	if err != nil {
		return err
	}
	c.scanDirtyPages(snapshotDirty)
	c.runMarking()
	overflowDirty, err := c.finalMark()
	if err != nil {
		return err
	}
	if err := c.sweep(append(snapshotDirty, overflowDirty...)); err != nil {
		return err
	}
	if !c.Inc.BeginIdle() {
		return errors.New("collector: BeginIdle CAS failed, phase machine out of sync")
	}
	return nil
}

// beginSnapshot stops the world, clears every page's mark bitmap, takes
// the dirty-page snapshot (spec §4.7 "Snapshot / dirty-page race
// invariant" — this is the first of the two DirtyList.Take() calls;
// internal/heap.DirtyList's doc comment explains why calling it exactly
// twice is sufficient), pushes every root gray, and transitions
// Snapshot -> Marking before resuming mutators.
func (c *Coordinator) beginSnapshot() ([]*page.Header, error) {
	c.stopTheWorld()
	defer c.resumeWorld()

	if !c.Inc.BeginSnapshot() {
		return nil, errors.New("collector: BeginSnapshot CAS failed, phase machine out of sync")
	}
	var snapshotDirty []*page.Header
	for _, h := range c.allHeaps() {
		h.ForEachPage(func(_ int, p *page.Header) {
			p.Lock()
			p.ClearMarks()
			p.Unlock()
		})
		h.ForEachLargePage(func(p *page.Header) {
			p.Lock()
			p.ClearMarks()
			p.Unlock()
		})
		snapshotDirty = append(snapshotDirty, h.Dirty.Take()...)
	}
	snapshotDirty = append(snapshotDirty, c.OrphanDirty.Take()...)
	c.Inc.ResetMarked()
	c.scanRoots()
	if !c.Inc.BeginMarking() {
		return nil, errors.New("collector: BeginMarking CAS failed, phase machine out of sync")
	}
	return snapshotDirty, nil
}

// scanRoots pushes every root gray (spec §4.7 Snapshot: "root set...
// pushed onto the worklist as gray"): explicit handle scopes, every live
// thread's CrossThreadRootTable, and the orphan table.
func (c *Coordinator) scanRoots() {
	for _, scope := range roots.AllScopes() {
		scope.Each(func(p roots.ScopedPtr) {
			incgc.ShadeGray(p.GcHeader())
		})
	}
	for _, t := range c.liveThreads() {
		t.RootsMu().Lock()
		t.Roots().Each(func(_ tcb.HandleID, p tcb.RootPtr) {
			incgc.ShadeGray(p.GcHeader())
		})
		t.RootsMu().Unlock()
	}
	c.Orphan.Each(func(_ tcb.ThreadID, _ tcb.HandleID, p tcb.RootPtr) {
		incgc.ShadeGray(p.GcHeader())
	})
}

// runMarking drains the worklist to exhaustion in bounded slices, honoring
// the configured per-slice budget, until either the worklist is empty or a
// fallback has been requested. With no separate mutator threads driving
// MarkSlice concurrently (this process is the only marker in that case),
// this single call performs the entire concurrent-marking phase; in a
// real embedding, mutators' safepoint checks call MarkSlice too and this
// loop simply keeps making progress between them.
func (c *Coordinator) runMarking() {
	if c.workers <= 1 {
		c.runMarkingSequential()
		return
	}
	c.runMarkingConcurrent()
}

func (c *Coordinator) runMarkingSequential() {
	for {
		if requested, _ := c.Inc.FallbackRequested(); requested {
			return
		}
		if c.Inc.Worklist.Len() == 0 {
			return
		}
		c.MarkSlice()
	}
}

// runMarkingConcurrent fans the same slice loop out across c.workers
// goroutines via an errgroup, relying on Worklist's lock-free Pop and
// MarkSlice's own SATB-flush-then-slice structure to make each worker's
// contribution independently correct; MarkSlice itself never needs a
// lock, so workers never block each other beyond CAS retries on the
// worklist's head pointer.
func (c *Coordinator) runMarkingConcurrent() {
	g := new(errgroup.Group)
	for i := 0; i < c.workers; i++ {
		g.Go(func() error {
			for {
				if requested, _ := c.Inc.FallbackRequested(); requested {
					return nil
				}
				if c.Inc.Worklist.Len() == 0 {
					return nil
				}
				c.MarkSlice()
			}
		})
	}
	_ = g.Wait() // worker loop bodies never return an error
}

// MarkSlice pops and traces up to the configured object budget from the
// worklist, flushing every heap's SATB buffer first so newly-recorded old
// values join the gray set before this slice's budget is spent on them
// (spec §4.7 Marking row: "SATB buffers flushed at slice boundaries").
// Exposed for tcb.CheckSafepoint's opportunistic slice execution.
func (c *Coordinator) MarkSlice() {
	for _, h := range c.allHeaps() {
		h.FlushSATB()
	}
	for _, ptr := range c.Inc.GlobalSATB.Drain() {
		incgc.ShadeGray(ptr)
	}

	budget, deadlineNs := c.Inc.SliceBudget()
	deadline := time.Now().Add(time.Duration(deadlineNs))
	var marked int64
	for marked < budget {
		if deadlineNs > 0 && time.Now().After(deadline) {
			c.Inc.RequestFallback(incgc.SliceTimeout)
			break
		}
		obj, ok := c.Inc.Worklist.Pop()
		if !ok {
			break
		}
		trace(obj)
		marked++
	}
	c.Inc.AddMarked(marked)
}

// trace invokes obj's TraceFn, shading every referent gray. Best-effort
// against a swept or nil-trace object (spec §8 property 8: "mark_object_
// black and any barrier are no-ops on a swept slot").
func trace(obj *box.Header) {
	if obj == nil || obj.TraceFn == nil {
		return
	}
	obj.TraceFn(func(child *box.Header) {
		incgc.ShadeGray(child)
	})
}
