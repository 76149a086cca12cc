// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The gcinspect tool is a command-line tool for exploring the state of a
// running rudo-gc collector. Unlike viewcore, which parses an already-
// dumped core file, this collector never leaves its own process — so
// gcinspect runs in-process too: it builds its own demo Runtime and a
// handful of mutators with live allocations, the way a host embedding
// rudo-gc would wire its own Runtime into this same command tree (see
// NewRootCmd). Run "gcinspect help" for a list of commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/XuHaoJun/rudo-sub003"
)

// demoPayload is a small self-referential-capable type used to populate
// the demo Runtime with enough live and garbage structure for stats and
// the repl to show something other than zeroes.
type demoPayload struct {
	tag  string
	next rudogc.Weak[demoPayload]
}

func (d *demoPayload) Trace(visit func(rudogc.Ref)) {}

func newDemoRuntime() (*rudogc.Runtime, *rudogc.Mutator) {
	rt := rudogc.New()
	m := rt.NewMutator()
	for i := 0; i < 64; i++ {
		_, _ = rudogc.NewGc(m, demoPayload{tag: fmt.Sprintf("demo-%d", i)})
	}
	return rt, m
}

// NewRootCmd builds the gcinspect command tree against rt. A host
// embedding rudo-gc calls this directly with its own Runtime instead of
// the demo one main() constructs, and adds the returned command to its
// own cobra tree.
func NewRootCmd(rt *rudogc.Runtime) *cobra.Command {
	root := &cobra.Command{
		Use:   "gcinspect",
		Short: "inspect a running rudo-gc collector",
	}
	root.AddCommand(newStatsCmd(rt))
	root.AddCommand(newCollectCmd(rt))
	root.AddCommand(newReplCmd(rt))
	return root
}

func main() {
	rt, _ := newDemoRuntime()
	defer rt.Close()

	if err := NewRootCmd(rt).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
