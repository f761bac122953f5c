// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package agency

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"

	"github.com/OndrejCopak-eaton/testcentric-engine/errors"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/packages"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/transport"
)

// Command names understood by agents. These are the wire-level names; the
// agent keeps the matching handler table.
const (
	CommandLoad           = "Load"
	CommandCountTestCases = "CountTestCases"
	CommandExplore        = "Explore"
	CommandRun            = "Run"
	CommandStopRun        = "StopRun"
)

// Agent is the controller-side proxy of one agent process. Commands are
// forwarded over the agent channel; the record is marked Running for the
// duration of each command.
type Agent struct {
	agency *Agency
	rec    *record
}

// ID returns the agent id.
func (ag *Agent) ID() uuid.UUID {
	return ag.rec.id
}

// Launcher returns the name of the launcher that produced the agent.
func (ag *Agent) Launcher() string {
	return ag.rec.launcher
}

// call forwards one command, maintaining the Ready/Running transition and
// mapping channel death onto the recorded crash.
func (ag *Agent) call(ctx context.Context, name string, args ...string) (string, error) {
	rec := ag.rec

	rec.mu.Lock()
	if rec.status != StatusReady {
		status := rec.status
		crash := rec.crash
		rec.mu.Unlock()
		if crash != nil {
			return "", crash
		}
		return "", errors.Errorf("agent %s is %s, not Ready", rec.id, status)
	}
	rec.status = StatusRunning
	conn := rec.conn
	rec.mu.Unlock()

	payload, err := conn.Call(ctx, name, args...)

	rec.mu.Lock()
	if rec.status == StatusRunning {
		rec.status = StatusReady
	}
	crash := rec.crash
	rec.mu.Unlock()

	if err != nil && crash != nil {
		return "", crash
	}
	return payload, err
}

// Load asks the agent to load the package's binary and returns the XML
// test tree.
func (ag *Agent) Load(ctx context.Context, pkg *packages.TestPackage) (string, error) {
	settings, err := json.Marshal(pkg.Settings)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode package settings")
	}
	return ag.call(ctx, CommandLoad, pkg.FullName, string(settings))
}

// CountTestCases returns the number of test cases the filter selects.
func (ag *Agent) CountTestCases(ctx context.Context, filter string) (int, error) {
	payload, err := ag.call(ctx, CommandCountTestCases, filter)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(payload)
	if err != nil {
		return 0, engineerr.Wrapf(engineerr.ProtocolError, err, "agent returned malformed count %q", payload)
	}
	return n, nil
}

// Explore returns the XML description of the tests the filter selects.
func (ag *Agent) Explore(ctx context.Context, filter string) (string, error) {
	return ag.call(ctx, CommandExplore, filter)
}

// Run executes the selected tests. Events emitted by the agent during the
// run are delivered to listener in emission order; the returned XML result
// arrives after the last event.
func (ag *Agent) Run(ctx context.Context, listener transport.EventHandler, filter string) (string, error) {
	rec := ag.rec
	rec.mu.Lock()
	rec.listener = listener
	rec.mu.Unlock()
	defer func() {
		rec.mu.Lock()
		rec.listener = nil
		rec.mu.Unlock()
	}()
	return ag.call(ctx, CommandRun, filter)
}

// StopRun stops the current run. A cooperative stop (force=false) is
// forwarded to the agent; a forced stop is implemented by terminating the
// agent process, never cooperatively.
func (ag *Agent) StopRun(ctx context.Context, force bool) error {
	if force {
		rec := ag.rec
		rec.mu.Lock()
		dead := rec.status == StatusDead
		rec.mu.Unlock()
		if dead {
			return nil
		}
		return rec.proc.Kill()
	}
	_, err := ag.call(ctx, CommandStopRun, "false")
	return err
}
