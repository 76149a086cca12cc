// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gclog is the shared structured-logging entry point for the
// collector packages (internal/heap, internal/collector, internal/incgc).
// The teacher never needed a logging library of its own — cmd/viewcore
// writes straight to os.Stderr with fmt.Fprintf — but a live incremental
// collector has state transitions and fallback events worth recording with
// fields, so this package generalizes that into one logrus.Entry factory
// rather than letting each package construct its own logger ad hoc.
package gclog

import "github.com/sirupsen/logrus"

// base is the package-wide logger. Collector code should never log on the
// allocation or barrier hot path; every call site in this tree is a phase
// transition, a fallback, or a sweep/promotion summary.
var base = logrus.New()

// Component returns a logger entry tagged with the given component name.
func Component(name string) *logrus.Entry {
	return base.WithField("component", name)
}

// SetLevel adjusts the shared logger's verbosity (internal/heap and
// friends never need finer control than this).
func SetLevel(level logrus.Level) { base.SetLevel(level) }

// SetOutput redirects the shared logger so log lines can be captured or
// silenced. A nil writer is ignored.
func SetOutput(w interface{ Write([]byte) (int, error) }) {
	if w == nil {
		return
	}
	base.SetOutput(w)
}
