// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tcb

// RequestSafepoint sets gc_requested with Release semantics (spec §4.8).
// Called by the coordinator before a stop-the-world phase.
func (t *TCB) RequestSafepoint() {
	t.gcRequested.Store(true)
}

// ClearSafepoint clears gc_requested with Release semantics and wakes any
// thread parked on it. Must be called with Release (not Relaxed) so that
// work done during the STW phase happens-before a parked mutator resumes
// and observes it.
func (t *TCB) ClearSafepoint() {
	t.gcRequested.Store(false)
	t.parkMu.Lock()
	t.parked = false
	t.parkCond.Broadcast()
	t.parkMu.Unlock()
}

// CheckSafepoint is invoked by generated code at back-edges, allocation
// slow paths, and (optionally) an explicit yield. If a safepoint has been
// requested, the calling thread parks and signals its parked state; it
// returns once the coordinator has cleared the request. sliceFn, if
// non-nil, is invoked instead of parking when no STW safepoint has been
// requested — its role is to opportunistically perform one incremental
// mark slice during concurrent Marking (spec §4.7, §4.8).
func (t *TCB) CheckSafepoint(sliceFn func()) {
	if !t.gcRequested.Load() {
		if sliceFn != nil {
			sliceFn()
		}
		return
	}
	t.parkMu.Lock()
	t.parked = true
	for t.gcRequested.Load() {
		t.parkCond.Wait()
	}
	t.parkMu.Unlock()
}

// Parked reports whether the thread is currently parked at a safepoint —
// used by the coordinator's wait loop to tell when every registered thread
// has reached the safepoint.
func (t *TCB) Parked() bool {
	t.parkMu.Lock()
	defer t.parkMu.Unlock()
	return t.parked
}

// GCRequested reports the current value of gc_requested (Acquire load).
func (t *TCB) GCRequested() bool { return t.gcRequested.Load() }
