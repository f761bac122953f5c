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

	"github.com/google/subcommands"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/inspect"
)

// inspectCmd implements the "inspect" subcommand.
type inspectCmd struct{}

func (*inspectCmd) Name() string { return "inspect" }

func (*inspectCmd) Synopsis() string { return "print metadata of test binaries" }

func (*inspectCmd) Usage() string {
	return `inspect <binary>...:
	Reads each binary's metadata without loading it and prints the target
	runtime, referenced assemblies and bitness.

`
}

func (*inspectCmd) SetFlags(f *flag.FlagSet) {}

func (*inspectCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "inspect: at least one test binary is required")
		return subcommands.ExitUsageError
	}

	status := subcommands.ExitSuccess
	for _, path := range f.Args() {
		report, err := inspect.Inspect(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "inspect: %s: %v\n", path, err)
			status = subcommands.ExitFailure
			continue
		}
		fmt.Printf("%s:\n", path)
		fmt.Printf("  Target runtime: %s\n", report.TargetRuntime)
		if report.TargetFrameworkName != "" {
			fmt.Printf("  Target framework: %s\n", report.TargetFrameworkName)
		}
		fmt.Printf("  Requires x86: %v\n", report.RequiresX86)
		fmt.Printf("  IL only: %v\n", report.ILOnly)
		if len(report.References) > 0 {
			fmt.Printf("  References: %s\n", strings.Join(report.References, ", "))
		}
	}
	return status
}
