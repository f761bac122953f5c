// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package agent implements the worker process hosting one test binary.
//
// The agent dials the agency's callback endpoint, announces itself with the
// AgentStarted handshake, and serves driver commands until a Stop frame
// arrives. It hosts at most one driver at a time; a Load command selects
// and replaces the driver for the named binary.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/agency"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/command"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/drivers"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/drivers/fakeframework"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/inspect"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/logging"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/packages"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/results"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/transport"
)

// Exit statuses. Zero is a clean run; a status from 1 to maxFailureStatus
// is the count of failed tests, per the legacy convention; statusBadArgs
// reports an unusable command line; statusInternalFailure is the unsigned
// rendering of -1 and reports an internal failure.
const (
	statusSuccess         = 0
	statusBadArgs         = 254
	statusInternalFailure = 255

	// maxFailureStatus caps the failed-test count so it cannot collide
	// with the internal statuses.
	maxFailureStatus = 250
)

// dialTimeout bounds the callback connection attempt.
const dialTimeout = 30 * time.Second

// Run is the agent entry point. clArgs is typically os.Args[1:]. The
// returned status is the process exit code.
func Run(ctx context.Context, clArgs []string, stderr io.Writer) int {
	opts, err := readArgs(clArgs, stderr)
	if err != nil {
		return command.WriteError(stderr, err)
	}

	addr := strings.TrimPrefix(opts.AgencyURL, "tcp://")
	netConn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return command.WriteError(stderr, command.NewStatusErrorf(statusInternalFailure,
			"agent %s cannot reach agency at %s: %v", opts.AgentID, opts.AgencyURL, err))
	}
	conn := transport.NewAgentConn(netConn)
	defer conn.Close()

	// Agent logs are mirrored to the controller as Log events; tracing
	// additionally writes them to stderr.
	logger := logging.NewMultiLogger(logging.NewSinkLogger(logging.LevelDebug, false, logging.NewFuncSink(func(msg string) {
		conn.SendEvent(&transport.Event{Type: transport.EventLog, Body: msg})
	})))
	if opts.TraceLevel != "" {
		logger.AddLogger(logging.NewSinkLogger(traceLevel(opts.TraceLevel), true, logging.NewWriterSink(stderr)))
	}
	ctx = logging.AttachLogger(ctx, logger)

	if opts.WorkDir != "" {
		if err := os.Chdir(opts.WorkDir); err != nil {
			return command.WriteError(stderr, command.NewStatusErrorf(statusInternalFailure,
				"cannot enter work directory %s: %v", opts.WorkDir, err))
		}
	}

	if err := conn.SendEvent(&transport.Event{Type: transport.EventAgentStarted, Body: opts.AgentID.String()}); err != nil {
		return command.WriteError(stderr, command.NewStatusErrorf(statusInternalFailure, "handshake failed: %v", err))
	}
	logging.Debugf(ctx, "Agent %s connected to %s", opts.AgentID, opts.AgencyURL)
	if opts.DebugAgent {
		logging.Infof(ctx, "Agent %s is running as pid %d; attach a debugger now", opts.AgentID, os.Getpid())
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if opts.ControllerPID > 0 {
		// Closing the channel unblocks the serve loop's read.
		go watchController(ctx, opts.ControllerPID, func() {
			cancel()
			conn.Close()
		})
	}

	h := &handler{
		conn: conn,
		service: drivers.NewService(
			drivers.NewNUnitFactory(drivers.NewProviderSet(fakeframework.Provider{})),
		),
	}
	if err := conn.Serve(ctx, h.handle); err != nil {
		command.WriteError(stderr, err)
		return statusInternalFailure
	}
	if h.failed > maxFailureStatus {
		return maxFailureStatus
	}
	return h.failed
}

// watchController polls for the controller process and shuts the agent
// down once it is gone, so orphaned agents do not outlive their controller.
func watchController(ctx context.Context, pid int, shutdown func()) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			alive, err := process.PidExists(int32(pid))
			if err == nil && !alive {
				logging.Infof(ctx, "Controller process %d is gone; exiting", pid)
				shutdown()
				return
			}
		}
	}
}

func traceLevel(level string) logging.Level {
	if strings.EqualFold(level, "debug") || strings.EqualFold(level, "verbose") {
		return logging.LevelDebug
	}
	return logging.LevelInfo
}

// handler owns the agent's driver and dispatches channel commands to it.
type handler struct {
	conn    *transport.AgentConn
	service *drivers.Service
	driver  drivers.Driver
	failed  int
}

func (h *handler) handle(ctx context.Context, cmd *transport.Command) (string, error) {
	switch cmd.Name {
	case agency.CommandLoad:
		return h.load(ctx, cmd.Args)
	case agency.CommandCountTestCases:
		if err := h.requireDriver(); err != nil {
			return "", err
		}
		n, err := h.driver.CountTestCases(ctx, arg(cmd.Args, 0))
		if err != nil {
			return "", err
		}
		return fmt.Sprint(n), nil
	case agency.CommandExplore:
		if err := h.requireDriver(); err != nil {
			return "", err
		}
		return h.driver.Explore(ctx, arg(cmd.Args, 0))
	case agency.CommandRun:
		return h.run(ctx, arg(cmd.Args, 0))
	case agency.CommandStopRun:
		if err := h.requireDriver(); err != nil {
			return "", err
		}
		return "", h.driver.StopRun(ctx, arg(cmd.Args, 0) == "true")
	default:
		return "", engineerr.Newf(engineerr.ProtocolError, "unknown command %q", cmd.Name)
	}
}

func (h *handler) requireDriver() error {
	if h.driver == nil {
		return engineerr.New(engineerr.NotLoaded, "no test binary has been loaded")
	}
	return nil
}

// load inspects the binary, selects a driver for its framework and loads
// it. A later Load replaces the current driver.
func (h *handler) load(ctx context.Context, args []string) (string, error) {
	binaryPath := arg(args, 0)
	settings := map[string]string{}
	if raw := arg(args, 1); raw != "" {
		var generic map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &generic); err != nil {
			return "", engineerr.Wrap(engineerr.ProtocolError, err, "malformed package settings")
		}
		for k, v := range generic {
			settings[k] = fmt.Sprint(v)
		}
	}

	logging.Debugf(ctx, "Loading %s", binaryPath)
	report, err := inspect.Inspect(binaryPath)
	if err != nil {
		return "", err
	}
	skip := strings.EqualFold(settings[packages.SettingSkipNonTestAssemblies], "true")
	h.driver = h.service.GetDriver(report, skip)
	return h.driver.Load(ctx, settings)
}

// run executes the selected tests, forwarding progress reports as events,
// and accumulates the failed-test count for the exit status.
func (h *handler) run(ctx context.Context, filter string) (string, error) {
	if err := h.requireDriver(); err != nil {
		return "", err
	}
	listener := func(report string) {
		h.conn.SendEvent(&transport.Event{Type: transport.EventProgress, Body: report})
	}
	resultXML, err := h.driver.Run(ctx, listener, filter)
	if err != nil {
		return "", err
	}
	if summary, err := results.ParseSummary(resultXML); err == nil {
		h.failed += summary.Failed
	}
	return resultXML, nil
}

func arg(args []string, i int) string {
	if i >= len(args) {
		return ""
	}
	return args[i]
}
