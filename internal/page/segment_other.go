// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package page

import "unsafe"

// plainSegmentSource is the non-unix fallback: a plain over-aligned Go
// allocation. It cannot return memory to the OS early (Release is a no-op
// and the backing array is reclaimed by Go's own GC once unreferenced),
// which is acceptable here since the page manager is itself layered over
// Go's allocator on platforms without direct mmap access via x/sys/unix.
type plainSegmentSource struct{}

// NewSegmentSource returns the platform segment source.
func NewSegmentSource() SegmentSource { return plainSegmentSource{} }

func (plainSegmentSource) Acquire(nBytes int) (uintptr, []byte, error) {
	b := make([]byte, nBytes+PageSize)
	base := uintptr(unsafe.Pointer(&b[0]))
	aligned := (base + uintptr(PageSize) - 1) &^ (uintptr(PageSize) - 1)
	off := aligned - base
	b = b[off : off+uintptr(nBytes)]
	return aligned, b, nil
}

func (plainSegmentSource) Release(mem []byte) error { return nil }
