// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package agent

import (
	"flag"
	"io"

	"github.com/google/uuid"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/command"
)

// Options are the agent's runtime parameters, assembled by the launcher
// into the command line:
//
//	<agent-id> <agency-url> --pid=<controller-pid> [--trace=<level>]
//	[--debug-agent] [--work=<dir>]
type Options struct {
	// AgentID identifies this agent to the agency.
	AgentID uuid.UUID
	// AgencyURL is the controller callback endpoint, e.g. tcp://127.0.0.1:4700.
	AgencyURL string
	// ControllerPID is the process id of the controller.
	ControllerPID int
	// TraceLevel selects the internal trace verbosity; empty disables
	// tracing to stderr.
	TraceLevel string
	// DebugAgent makes the agent log its process id so a debugger can be
	// attached; the agent does not wait for one before serving.
	DebugAgent bool
	// WorkDir is the working directory for the hosted binary.
	WorkDir string
}

// readArgs parses the agent command line. clArgs is typically os.Args[1:].
func readArgs(clArgs []string, stderr io.Writer) (*Options, error) {
	if len(clArgs) < 2 {
		return nil, command.NewStatusErrorf(statusBadArgs, "usage: testcentric-agent <agent-id> <agency-url> [flags]")
	}
	id, err := uuid.Parse(clArgs[0])
	if err != nil {
		return nil, command.NewStatusErrorf(statusBadArgs, "bad agent id %q: %v", clArgs[0], err)
	}
	opts := &Options{AgentID: id, AgencyURL: clArgs[1]}

	fs := flag.NewFlagSet("testcentric-agent", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.IntVar(&opts.ControllerPID, "pid", 0, "process id of the controlling process")
	fs.StringVar(&opts.TraceLevel, "trace", "", "internal trace level")
	fs.BoolVar(&opts.DebugAgent, "debug-agent", false, "log the process id for attaching a debugger")
	fs.StringVar(&opts.WorkDir, "work", "", "working directory for the hosted binary")
	if err := fs.Parse(clArgs[2:]); err != nil {
		return nil, command.NewStatusErrorf(statusBadArgs, "bad agent flags: %v", err)
	}
	return opts, nil
}
