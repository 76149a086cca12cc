// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package heap

import "github.com/XuHaoJun/rudo-sub003/internal/page"

// tlab is the thread-local allocation buffer for one size class: a bump
// cursor into the currently-owned page's free list. Maintaining the
// current page separately from the page set lets the hot allocation path
// (spec §4.2 step 1) avoid a set lookup on every allocation.
type tlab struct {
	page *page.Header
}

// alloc attempts a bump allocation from the TLAB's current page. Caller
// must hold t.page's lock if page != nil; returns -1 if the current page
// has no room left (full or absent).
func (t *tlab) alloc() (*page.Header, int) {
	if t.page == nil {
		return nil, -1
	}
	i := t.page.AllocSlot()
	if i < 0 {
		return nil, -1
	}
	return t.page, i
}
