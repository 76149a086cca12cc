// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/XuHaoJun/rudo-sub003"
	"github.com/XuHaoJun/rudo-sub003/internal/gcstat"
)

func newStatsCmd(rt *rudogc.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "print a snapshot of the collector's current state",
		RunE: func(cmd *cobra.Command, args []string) error {
			printStats(rt)
			return nil
		},
	}
}

func printStats(rt *rudogc.Runtime) {
	snap := rt.Snapshot()

	t := tabwriter.NewWriter(os.Stdout, 0, 0, 1, ' ', 0)
	fmt.Fprintf(t, "phase\t%s\n", snap.Phase)
	fmt.Fprintf(t, "cycles completed\t%d\n", snap.CyclesCompleted)
	fmt.Fprintf(t, "fallbacks triggered\t%d\n", snap.FallbacksTriggered)
	fmt.Fprintf(t, "fallback pending\t%v\n", snap.FallbackRequested)
	if snap.FallbackRequested {
		fmt.Fprintf(t, "fallback reason\t%s\n", snap.FallbackReason)
	}
	fmt.Fprintf(t, "marked this cycle\t%d\n", snap.ObjectsMarked)
	fmt.Fprintf(t, "dirty pages seen\t%d\n", snap.DirtyPagesSeen)
	t.Flush()

	fmt.Println()
	printPageCounts(os.Stdout, "small pages", snap.SmallPages)
	printPageCounts(os.Stdout, "large pages", snap.LargePages)
}

func printPageCounts(w *os.File, label string, c gcstat.PageCounts) {
	t := tabwriter.NewWriter(w, 0, 0, 1, ' ', tabwriter.AlignRight)
	fmt.Fprintf(t, "%s\t\n", label)
	fmt.Fprintf(t, "total\t%d\n", c.Total)
	fmt.Fprintf(t, "generation 0\t%d\n", c.Generation0)
	fmt.Fprintf(t, "generation N\t%d\n", c.GenerationN)
	fmt.Fprintf(t, "needs sweep\t%d\n", c.NeedsSweep)
	fmt.Fprintf(t, "all dead\t%d\n", c.AllDead)
	fmt.Fprintf(t, "orphan\t%d\n", c.Orphan)
	t.Flush()
}

func newCollectCmd(rt *rudogc.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "run one major collection cycle synchronously",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rt.Collect(); err != nil {
				return err
			}
			printStats(rt)
			return nil
		},
	}
}
