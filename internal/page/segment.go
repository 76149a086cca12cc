// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package page

// SegmentSource hands out and reclaims page-aligned address ranges. It is
// the "physical page allocator" spec §1 treats as an external collaborator
// — this package only needs it to return aligned, addressable memory, not
// to manage it.
type SegmentSource interface {
	Acquire(nBytes int) (base uintptr, mem []byte, err error)
	Release(mem []byte) error
}
