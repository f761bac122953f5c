// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/subcommands"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engine"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/filters"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/logging"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/packages"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/transport"
)

// runCmd implements the "run" subcommand.
type runCmd struct {
	agentExe    string
	agentX86Exe string
	addinsDir   string
	workDir     string
	trace       string
	tests       string
	where       string
	runtime     string
	x86         bool
	skipNonTest bool
	maxAgents   int
	timeout     time.Duration
}

func (*runCmd) Name() string { return "run" }

func (*runCmd) Synopsis() string { return "run tests in one or more test binaries" }

func (*runCmd) Usage() string {
	return `run [flags] <binary>...:
	Runs the tests in the given binaries, each in an isolated agent
	process, and prints a summary.

`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.agentExe, "agent", "", "path to the agent executable (default: next to this executable)")
	f.StringVar(&c.agentX86Exe, "agent-x86", "", "path to the 32-bit agent executable")
	f.StringVar(&c.addinsDir, "addins", "", "extension directory to scan (default: addins next to this executable)")
	f.StringVar(&c.workDir, "workdir", "", "working directory for the hosted binaries")
	f.StringVar(&c.trace, "trace", "", "internal trace level passed to agents")
	f.StringVar(&c.tests, "test", "", "comma-separated list of fully qualified test names to run")
	f.StringVar(&c.where, "where", "", "filter clause combined with -test selections")
	f.StringVar(&c.runtime, "runtime", "", "override the target runtime (e.g. net-4.5)")
	f.BoolVar(&c.x86, "x86", false, "run the tests in a 32-bit agent")
	f.BoolVar(&c.skipNonTest, "skip-non-tests", false, "report binaries without a test framework as skipped")
	f.IntVar(&c.maxAgents, "max-agents", 0, "maximum number of concurrent agents (0 = unlimited)")
	f.DurationVar(&c.timeout, "timeout", 0, "overall run timeout (0 = none)")
}

func (c *runCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "run: at least one test binary is required")
		return subcommands.ExitUsageError
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	pkg := packages.New(f.Args()...)
	if c.runtime != "" {
		pkg.AddSetting(packages.SettingTargetRuntimeFramework, c.runtime)
	}
	if c.workDir != "" {
		pkg.AddSetting(packages.SettingWorkDirectory, c.workDir)
	}
	if c.trace != "" {
		pkg.AddSetting(packages.SettingInternalTraceLevel, c.trace)
	}
	if c.x86 {
		pkg.AddSetting(packages.SettingRunAsX86, true)
	}
	if c.skipNonTest {
		pkg.AddSetting(packages.SettingSkipNonTestAssemblies, true)
	}

	b := filters.NewBuilder()
	for _, name := range strings.Split(c.tests, ",") {
		if name = strings.TrimSpace(name); name != "" {
			b.AddTest(name)
		}
	}
	if c.where != "" {
		b.SelectWhere(c.where)
	}

	var cfg engine.Config
	cfg.AgentExe = c.agentExe
	cfg.AgentX86Exe = c.agentX86Exe
	cfg.MaxAgents = c.maxAgents
	if c.addinsDir != "" {
		cfg.AddinsDirs = []string{c.addinsDir}
	}

	e, err := engine.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return subcommands.ExitFailure
	}
	defer e.Close(ctx)

	listener := func(ev *transport.Event) {
		if ev.Type == transport.EventLog {
			logging.Debug(ctx, ev.Body)
		}
	}
	res, err := e.Run(ctx, pkg, listener, b.Build())
	if err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		return subcommands.ExitFailure
	}

	s := res.Summary
	fmt.Printf("Test Run Summary\n")
	fmt.Printf("  Overall result: %s\n", s.Result)
	fmt.Printf("  Test Count: %d, Passed: %d, Failed: %d, Warnings: %d, Inconclusive: %d, Skipped: %d\n",
		s.Total, s.Passed, s.Failed, s.Warnings, s.Inconclusive, s.Skipped)

	if s.Failed > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
