// Copyright 2024 The rudo-gc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/XuHaoJun/rudo-sub003"
)

func newReplCmd(rt *rudogc.Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "start an interactive session against the collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl(rt)
		},
	}
}

// runRepl reads one command per line and dispatches it through the same
// cobra tree NewRootCmd builds, so "stats" and "collect" behave
// identically whether typed here or run as "gcinspect stats" from a
// shell.
func runRepl(rt *rudogc.Runtime) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "gcinspect> ",
		HistoryFile:     "",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("gcinspect: start repl: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err == io.EOF || err == readline.ErrInterrupt {
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}
		root := NewRootCmd(rt)
		root.SetArgs(strings.Fields(line))
		if err := root.Execute(); err != nil {
			fmt.Println(err)
		}
	}
}
