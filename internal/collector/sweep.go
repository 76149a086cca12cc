// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collector

import (
	"github.com/pkg/errors"

	"github.com/XuHaoJun/rudo-sub003/internal/box"
	"github.com/XuHaoJun/rudo-sub003/internal/incgc"
	"github.com/XuHaoJun/rudo-sub003/internal/page"
)

// finalMark stops the world, transitions Marking -> FinalMark, drains
// every SATB buffer (each thread-local one and the cross-thread one),
// scans the dirty-page overflow (the second DirtyList.Take() call) for
// OLD->YOUNG pointers written after the snapshot, and drains the worklist
// to exhaustion. The FinalMark -> Sweeping transition is left for the
// caller's sweep step (spec §4.7 FinalMark row).
func (c *Coordinator) finalMark() ([]*page.Header, error) {
	c.stopTheWorld()
	defer c.resumeWorld()

	if !c.Inc.BeginFinalMark() {
		return nil, errors.New("collector: BeginFinalMark CAS failed, phase machine out of sync")
	}

	for _, h := range c.allHeaps() {
		for _, ptr := range h.SATB.Drain() {
			incgc.ShadeGray(ptr)
		}
	}
	for _, ptr := range c.Inc.GlobalSATB.Drain() {
		incgc.ShadeGray(ptr)
	}

	var overflowDirty []*page.Header
	for _, h := range c.allHeaps() {
		overflowDirty = append(overflowDirty, h.Dirty.Take()...)
	}
	overflowDirty = append(overflowDirty, c.OrphanDirty.Take()...)
	c.scanDirtyPages(overflowDirty)

	for {
		obj, ok := c.Inc.Worklist.Pop()
		if !ok {
			break
		}
		trace(obj)
	}
	return overflowDirty, nil
}

// scanDirtyPages shades every OLD->YOUNG pointer recorded on the given
// pages, both the snapshot set and the overflow set — spec §4.7 demands
// consumers process the union of both, never the snapshot alone.
func (c *Coordinator) scanDirtyPages(pages []*page.Header) {
	c.Inc.AddDirtyPages(int64(len(pages)))
	for _, p := range pages {
		var dirty []*box.Header
		p.Lock()
		for i := range p.Slots {
			if p.IsDirty(i) && p.Slots[i].Obj != nil {
				dirty = append(dirty, p.Slots[i].Obj)
			}
		}
		p.Unlock()
		// ShadeGray takes the object's page lock itself.
		for _, obj := range dirty {
			incgc.ShadeGray(obj)
		}
	}
}

// sweep reclaims unmarked objects and promotes survivors (spec §4.7
// Sweeping row). Large objects and orphan-owned pages are swept eagerly,
// right here; ordinary small-object pages on a live thread's heap are
// only flagged FlagNeedsSweep so the owning LocalHeap's lazy sweep does
// the actual reclamation on its own allocation path, per spec's explicit
// "lazy for small objects, eager for large objects and orphan pages".
func (c *Coordinator) sweep(dirtyPages []*page.Header) error {
	if !c.Inc.BeginSweeping() {
		return errors.New("collector: BeginSweeping CAS failed, phase machine out of sync")
	}
	_ = dirtyPages // already consumed by scanDirtyPages before sweep begins

	for _, h := range c.allHeaps() {
		h.ForEachPage(func(classIdx int, p *page.Header) {
			if sweepOrPromotePage(p) {
				return
			}
			if p.Flags&page.FlagOrphan != 0 {
				eagerSweepPage(p)
			} else {
				h.MarkNeedsSweep(classIdx, p)
			}
		})
		h.ForEachLargePage(func(p *page.Header) {
			promoteOrSweepLarge(p, h.Manager())
		})
	}
	return nil
}

// sweepOrPromotePage promotes every marked slot on p (sets GEN_OLD_FLAG,
// clears its dirty bit since the write that dirtied it is now visible to
// any future trace) and reports whether the page has no dead slot (true =>
// nothing further for this cycle to do; FlagAllDead is set in that case
// only if the page has no live slot either).
func sweepOrPromotePage(p *page.Header) bool {
	p.Lock()
	defer p.Unlock()
	anyDead := false
	anyLive := false
	for i := range p.Slots {
		if !p.IsAllocated(i) {
			continue
		}
		if p.IsMarked(i) {
			if obj := p.Slots[i].Obj; obj != nil {
				obj.SetGenOld()
			}
			if p.IsDirty(i) {
				p.ClearDirty(i)
			}
			anyLive = true
		} else {
			anyDead = true
		}
	}
	if anyLive {
		p.Generation++
	}
	if anyDead {
		return false
	}
	if !anyLive {
		p.Flags |= page.FlagAllDead
	}
	return true
}

// eagerSweepPage physically reclaims every unmarked, weak-count-zero slot
// on an orphan page immediately, since no allocator will ever lazily
// revisit it.
func eagerSweepPage(p *page.Header) {
	p.Lock()
	defer p.Unlock()
	allDead := true
	for i := range p.Slots {
		if !p.IsAllocated(i) {
			continue
		}
		if p.IsMarked(i) {
			allDead = false
			continue
		}
		obj := p.Slots[i].Obj
		if obj == nil {
			continue
		}
		if obj.WeakCount() == 0 {
			reclaim(obj)
			p.FreeSlot(i)
			p.DeadCount++
		} else {
			markDeadKeepSlot(obj)
			allDead = false
		}
	}
	if allDead {
		p.Flags |= page.FlagAllDead
	}
}

// promoteOrSweepLarge promotes a surviving large object or eagerly
// reclaims a dead one, returning its extent to the page manager.
func promoteOrSweepLarge(p *page.Header, mgr *page.Manager) {
	p.Lock()
	marked := p.IsMarked(0)
	obj := p.Slots[0].Obj
	if marked && obj != nil {
		obj.SetGenOld()
		p.Generation++
	}
	p.Unlock()
	if marked || obj == nil {
		return
	}
	if obj.WeakCount() == 0 {
		reclaim(obj)
		releaseLarge(p, mgr)
	} else {
		markDeadKeepSlot(obj)
	}
}

func releaseLarge(p *page.Header, mgr *page.Manager) {
	if err := mgr.Release(p); err != nil {
		log.WithError(err).Warn("failed to release large object extent")
	}
}

func reclaim(obj *box.Header) {
	if obj.BeginDrop() {
		obj.DropFn()
		obj.FinishDrop()
	}
	obj.ResetForReuse()
}

func markDeadKeepSlot(obj *box.Header) {
	if !obj.HasDeadFlag() {
		obj.SetDead()
		if obj.BeginDrop() {
			obj.DropFn()
			obj.FinishDrop()
		}
	}
}
