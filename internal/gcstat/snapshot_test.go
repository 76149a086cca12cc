// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcstat

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/XuHaoJun/rudo-sub003/internal/incgc"
	"github.com/XuHaoJun/rudo-sub003/internal/page"
)

type fakeSource struct {
	inc   *incgc.State
	pages []struct {
		small bool
		p     *page.Header
	}
}

func (f *fakeSource) IncState() *incgc.State { return f.inc }
func (f *fakeSource) WalkPages(fn func(small bool, p *page.Header)) {
	for _, e := range f.pages {
		fn(e.small, e.p)
	}
}

func (f *fakeSource) addPage(small bool, p *page.Header) {
	f.pages = append(f.pages, struct {
		small bool
		p     *page.Header
	}{small, p})
}

func TestTakeReflectsPhaseAndFallback(t *testing.T) {
	inc := incgc.NewState(true, 100, 0, 16)
	inc.RequestFallback(incgc.DirtyPageThreshold)
	src := &fakeSource{inc: inc}

	snap := Take(src)
	assert.Equal(t, incgc.Idle.String(), snap.Phase)
	assert.True(t, snap.FallbackRequested)
	assert.Equal(t, incgc.DirtyPageThreshold.String(), snap.FallbackReason)
}

func TestTakeCountsPagesByKindAndState(t *testing.T) {
	inc := incgc.NewState(true, 100, 0, 16)
	src := &fakeSource{inc: inc}

	smallYoung := page.NewSmallHeader(0x1000, page.SizeClassFor(32), 1)
	smallOld := page.NewSmallHeader(0x2000, page.SizeClassFor(32), 1)
	smallOld.Generation = 1
	smallOrphan := page.NewSmallHeader(0x3000, page.SizeClassFor(32), 0)
	smallOrphan.Flags |= page.FlagOrphan
	largeDead := page.NewLargeHeader(0x4000, 2, 1)
	largeDead.Flags |= page.FlagAllDead

	src.addPage(true, smallYoung)
	src.addPage(true, smallOld)
	src.addPage(true, smallOrphan)
	src.addPage(false, largeDead)

	snap := Take(src)
	assert.Equal(t, 3, snap.SmallPages.Total)
	assert.Equal(t, 2, snap.SmallPages.Generation0)
	assert.Equal(t, 1, snap.SmallPages.GenerationN)
	assert.Equal(t, 1, snap.SmallPages.Orphan)
	assert.Equal(t, 1, snap.LargePages.Total)
	assert.Equal(t, 1, snap.LargePages.AllDead)
}
