// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rudogc

import "time"

// Config holds the tuning knobs spec §6 names. There is nothing in the
// teacher or the wider retrieval pack that loads GC tuning from a file or
// environment, so this follows the plain functional-options idiom rather
// than reaching for a config-loading library (see DESIGN.md).
type Config struct {
	incrementalEnabled      bool
	sliceObjects            int64
	sliceDeadline           time.Duration
	dirtyPageThreshold      int64
	satbBufferCapacity      int
	crossThreadSatbCapacity int
	majorEvery              time.Duration
	lazySweep               bool
	markWorkers             int
}

// defaultConfig mirrors the values a production embedding would pick:
// incremental marking on, a modest per-slice budget, generous buffers.
func defaultConfig() Config {
	return Config{
		incrementalEnabled:      true,
		sliceObjects:            2000,
		sliceDeadline:           2 * time.Millisecond,
		dirtyPageThreshold:      4096,
		satbBufferCapacity:      4096,
		crossThreadSatbCapacity: 4096,
		majorEvery:              0,
		lazySweep:               true,
		markWorkers:             1,
	}
}

// Option configures a Runtime at construction.
type Option func(*Config)

// WithIncrementalMarking sets incremental.enabled (spec §6). The value is
// passed to the incremental state (incgc.State.Enabled), but the collector
// does not consult it: every major cycle resumes mutators between
// Snapshot and FinalMark whether it is set or not.
func WithIncrementalMarking(enabled bool) Option {
	return func(c *Config) { c.incrementalEnabled = enabled }
}

// WithSliceBudget sets incremental.slice_objects and
// incremental.slice_deadline_ms.
func WithSliceBudget(objects int64, deadline time.Duration) Option {
	return func(c *Config) {
		c.sliceObjects = objects
		c.sliceDeadline = deadline
	}
}

// WithDirtyPageThreshold sets incremental.dirty_page_threshold. The value
// is recorded in Config only: nothing compares the dirty-page count
// against it, so it never triggers a DirtyPageThreshold fallback.
func WithDirtyPageThreshold(n int64) Option {
	return func(c *Config) { c.dirtyPageThreshold = n }
}

// WithSATBBufferCapacity sets incremental.satb_buffer_capacity (per-thread)
// and incremental.cross_thread_satb_capacity (global).
func WithSATBBufferCapacity(perThread, crossThread int) Option {
	return func(c *Config) {
		c.satbBufferCapacity = perThread
		c.crossThreadSatbCapacity = crossThread
	}
}

// WithMajorEvery sets generational.major_every: how often a major
// collection is triggered. Zero means "only on explicit Collect calls".
func WithMajorEvery(d time.Duration) Option {
	return func(c *Config) { c.majorEvery = d }
}

// WithLazySweep sets sweep.lazy. The value is recorded in Config only; the
// collector does not consult it. Small-object pages on a live thread's
// heap are always swept lazily by their allocator, and large objects and
// orphan pages always eagerly (spec §4.7).
func WithLazySweep(lazy bool) Option {
	return func(c *Config) { c.lazySweep = lazy }
}

// WithMarkWorkers sets how many goroutines concurrently drain the mark
// worklist during a major cycle's Marking phase (spec §4.7 "optional
// worker threads"). n < 1 is treated as 1 (sequential marking, the
// default).
func WithMarkWorkers(n int) Option {
	return func(c *Config) { c.markWorkers = n }
}
