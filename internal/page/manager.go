// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package page

import (
	"sync"

	"github.com/pkg/errors"
)

// Manager is the process-global page manager (spec §3 component 1): it
// hands out page-aligned memory to LocalHeaps and maintains the large-
// object interior-pointer map. It does not itself track which pages belong
// to which thread's small-object page set — that bookkeeping lives in
// internal/heap, which is the actual owner of allocated pages; Manager
// only brokers acquisition/release of the underlying memory.
type Manager struct {
	seg SegmentSource

	mu       sync.Mutex
	segments map[uintptr][]byte // live backing memory, keyed by segment base

	Interior *InteriorMap
}

// NewManager constructs a page manager over the given segment source. Pass
// nil to use the platform default (mmap on unix, a plain fallback
// elsewhere — see segment_unix.go / segment_other.go).
func NewManager(seg SegmentSource) *Manager {
	if seg == nil {
		seg = NewSegmentSource()
	}
	return &Manager{
		seg:      seg,
		segments: make(map[uintptr][]byte),
		Interior: NewInteriorMap(),
	}
}

// AcquireSmall returns a freshly mapped small-object page for sizeClass,
// owned by owner.
func (m *Manager) AcquireSmall(sizeClass int, owner uint64) (*Header, error) {
	base, mem, err := m.seg.Acquire(PageSize)
	if err != nil {
		return nil, errors.Wrap(err, "page manager: acquire small page")
	}
	m.mu.Lock()
	m.segments[base] = mem
	m.mu.Unlock()
	h := NewSmallHeader(base, sizeClass, owner)
	h.mgr = m
	return h, nil
}

// AcquireLarge returns a freshly mapped multi-page extent for a large
// object, registering it in the interior-pointer map.
func (m *Manager) AcquireLarge(numPages int, owner uint64) (*Header, error) {
	base, mem, err := m.seg.Acquire(numPages * PageSize)
	if err != nil {
		return nil, errors.Wrap(err, "page manager: acquire large extent")
	}
	m.mu.Lock()
	m.segments[base] = mem
	m.mu.Unlock()
	h := NewLargeHeader(base, numPages, owner)
	h.mgr = m
	m.Interior.Insert(h)
	return h, nil
}

// Release returns a page's backing memory to the segment source. For
// large objects the caller must have already removed h from the interior
// map (Release does so itself, defensively).
func (m *Manager) Release(h *Header) error {
	if h.Flags&FlagLarge != 0 {
		m.Interior.Remove(h)
	}
	m.mu.Lock()
	mem, ok := m.segments[h.Base]
	delete(m.segments, h.Base)
	m.mu.Unlock()
	if !ok {
		return errors.Errorf("page manager: release of unknown segment base %#x", h.Base)
	}
	return m.seg.Release(mem)
}
