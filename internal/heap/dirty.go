// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import (
	"sync"

	"github.com/XuHaoJun/rudo-sub003/internal/page"
)

// DirtyList is a LocalHeap's remembered-set page list (spec §3: "a dirty-
// page list plus its snapshot overflow"). The generational write barrier
// (internal/barrier) enqueues a page here the first time one of its slots
// is dirtied since the last drain; Header.OnDirtyList guards against
// double-enqueue.
//
// Take() both returns and clears the current contents. Calling it twice —
// once when the collector takes its Snapshot (spec §4.7), once again at
// FinalMark — implements the snapshot/overflow race invariant for free:
// the first Take() is "the snapshot"; anything a barrier records between
// the two calls naturally accumulates in the list and is returned, whole,
// by the second Take() as "the overflow". Every dirty-page consumer must
// still process the union of both results (spec §4.7 "Snapshot / dirty-
// page race invariant").
type DirtyList struct {
	mu    sync.Mutex
	pages []*page.Header
}

// Record enqueues p if it is not already on the list. Caller must hold
// p's page lock (the barrier already does, to set the dirty bit itself).
func (d *DirtyList) Record(p *page.Header) {
	if p.OnDirtyList() {
		return
	}
	p.MarkOnDirtyList()
	d.mu.Lock()
	d.pages = append(d.pages, p)
	d.mu.Unlock()
}

// Take returns and clears the list, clearing each page's on-list flag
// under its own page lock so a subsequent barrier write can re-enqueue it.
func (d *DirtyList) Take() []*page.Header {
	d.mu.Lock()
	pages := d.pages
	d.pages = nil
	d.mu.Unlock()
	for _, p := range pages {
		p.Lock()
		p.ClearOnDirtyList()
		p.Unlock()
	}
	return pages
}

// Len reports the current list length.
func (d *DirtyList) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pages)
}
