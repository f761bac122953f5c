// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package agency spawns, tracks and reclaims agent processes.
//
// The agency owns a TCP endpoint agents call back to. Spawning an agent
// registers a pending handshake keyed by agent id, starts the process built
// by the selected launcher, and waits for the agent to connect and announce
// itself. After the handshake the agent is Ready and commands are forwarded
// over its channel; an observed process exit in any state other than
// Stopping is a crash.
package agency

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/OndrejCopak-eaton/testcentric-engine/errors"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/launchers"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/logging"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/packages"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/transport"
)

// Status is the lifecycle state of an agent record. Transitions are totally
// ordered per record.
type Status string

// Agent record states.
const (
	StatusLaunching Status = "Launching"
	StatusReady     Status = "Ready"
	StatusRunning   Status = "Running"
	StatusStopping  Status = "Stopping"
	StatusDead      Status = "Dead"
)

// Config parameterizes an Agency.
type Config struct {
	// Launchers are consulted in order; the first accepting a package wins.
	Launchers []launchers.Launcher
	// HandshakeTimeout bounds the wait for an agent's callback connection.
	// Defaults to 30 seconds.
	HandshakeTimeout time.Duration
	// StopTimeout bounds the wait for a graceful agent exit on release.
	// Defaults to 10 seconds.
	StopTimeout time.Duration
	// Clock drives all bounded waits. Defaults to the wall clock; tests
	// substitute a fake.
	Clock clock.Clock
	// ListenAddr is the TCP address of the callback endpoint. Defaults to
	// an ephemeral localhost port.
	ListenAddr string
	// AgentExe, when set, enables SweepStaleAgents to find leftover agent
	// processes from earlier runs.
	AgentExe string
}

// record tracks one agent. The agency owns the record exclusively; the
// record owns its process.
type record struct {
	id        uuid.UUID
	launcher  string
	proc      *launchers.Process
	createdAt time.Time

	mu       sync.Mutex
	status   Status
	conn     *transport.Conn
	listener transport.EventHandler
	crash    error
}

func (r *record) setStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = s
}

func (r *record) getStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// dispatchEvent forwards an event to the listener registered for the
// current Run command, if any.
func (r *record) dispatchEvent(ev *transport.Event) {
	r.mu.Lock()
	l := r.listener
	r.mu.Unlock()
	if l != nil {
		l(ev)
	}
}

// Agency selects launchers, spawns agents, and tracks them by id.
type Agency struct {
	cfg Config
	clk clock.Clock
	ln  net.Listener
	url string

	mu      sync.Mutex
	records map[uuid.UUID]*record
	pending map[uuid.UUID]chan net.Conn
	closed  bool
}

// New starts an agency listening on its callback endpoint.
func New(ctx context.Context, cfg Config) (*Agency, error) {
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = 30 * time.Second
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewClock()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, errors.Wrap(err, "failed to start agency endpoint")
	}
	a := &Agency{
		cfg:     cfg,
		clk:     cfg.Clock,
		ln:      ln,
		url:     "tcp://" + ln.Addr().String(),
		records: map[uuid.UUID]*record{},
		pending: map[uuid.UUID]chan net.Conn{},
	}
	go a.acceptLoop(ctx)
	logging.Debugf(ctx, "Agency listening at %s", a.url)
	return a, nil
}

// URL returns the callback endpoint passed to agent processes.
func (a *Agency) URL() string {
	return a.url
}

// acceptLoop admits agent callback connections. The first frame on each
// connection must be the AgentStarted handshake event naming a pending
// agent id.
func (a *Agency) acceptLoop(ctx context.Context) {
	for {
		conn, err := a.ln.Accept()
		if err != nil {
			return // listener closed
		}
		go a.admit(ctx, conn)
	}
}

func (a *Agency) admit(ctx context.Context, conn net.Conn) {
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	f, err := transport.ReadFrame(conn)
	if err != nil {
		logging.Infof(ctx, "Dropping agent connection with bad handshake: %v", err)
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	ev, err := transport.DecodeHandshake(f)
	if err != nil {
		logging.Infof(ctx, "Dropping agent connection: %v", err)
		conn.Close()
		return
	}
	id, err := uuid.Parse(ev.Body)
	if err != nil {
		logging.Infof(ctx, "Dropping agent connection with bad id %q", ev.Body)
		conn.Close()
		return
	}

	a.mu.Lock()
	ch, ok := a.pending[id]
	delete(a.pending, id)
	a.mu.Unlock()
	if !ok {
		logging.Infof(ctx, "Dropping connection from unknown agent %s", id)
		conn.Close()
		return
	}
	ch <- conn
}

// selectLauncher returns the first launcher accepting pkg.
func (a *Agency) selectLauncher(pkg *packages.TestPackage) (launchers.Launcher, error) {
	for _, l := range a.cfg.Launchers {
		if l.CanCreateProcess(pkg) {
			return l, nil
		}
	}
	return nil, engineerr.Newf(engineerr.NoSuitableAgent,
		"no launcher accepts target runtime %q of package %s",
		pkg.StringSetting(packages.SettingTargetRuntimeFramework, ""), pkg.Name)
}

// GetAgent selects a launcher for pkg, spawns an agent process, completes
// the handshake and returns a Ready agent proxy.
func (a *Agency) GetAgent(ctx context.Context, pkg *packages.TestPackage) (*Agent, error) {
	launcher, err := a.selectLauncher(pkg)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	hs := make(chan net.Conn, 1)
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil, errors.New("agency is closed")
	}
	a.pending[id] = hs
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.pending, id)
		a.mu.Unlock()
	}()

	rec := &record{
		id:        id,
		launcher:  launcher.Info().Name,
		createdAt: a.clk.Now(),
		status:    StatusLaunching,
	}

	proc, err := launcher.CreateProcess(id, a.url, pkg)
	if err != nil {
		rec.setStatus(StatusDead)
		return nil, engineerr.Wrapf(engineerr.AgentLaunchFailed, err, "launcher %s failed to build a process", rec.launcher)
	}
	rec.proc = proc
	logging.Debugf(ctx, "Launching agent %s via %s", id, rec.launcher)
	if err := proc.Start(); err != nil {
		rec.setStatus(StatusDead)
		return nil, engineerr.Wrapf(engineerr.AgentLaunchFailed, err, "agent %s did not start", id)
	}

	timer := a.clk.NewTimer(a.cfg.HandshakeTimeout)
	defer timer.Stop()
	select {
	case netConn := <-hs:
		rec.conn = transport.NewConn(netConn, rec.dispatchEvent)
		rec.setStatus(StatusReady)
	case <-proc.Exited():
		rec.setStatus(StatusDead)
		return nil, engineerr.Newf(engineerr.AgentLaunchFailed, "agent %s exited with code %d before handshake", id, proc.ExitCode())
	case <-timer.C():
		a.destroy(rec)
		drainHandshake(hs)
		return nil, engineerr.Newf(engineerr.AgentLaunchFailed, "agent %s handshake timed out", id)
	case <-ctx.Done():
		a.destroy(rec)
		drainHandshake(hs)
		return nil, engineerr.Wrapf(engineerr.AgentLaunchFailed, ctx.Err(), "agent %s launch canceled", id)
	}

	a.mu.Lock()
	a.records[id] = rec
	a.mu.Unlock()
	go a.watch(ctx, rec)

	logging.Debugf(ctx, "Agent %s is ready", id)
	return &Agent{agency: a, rec: rec}, nil
}

// watch observes the agent process and records its death. An exit in any
// state other than Stopping (or Dead, once ReleaseAgent has seen the exit)
// is a crash.
func (a *Agency) watch(ctx context.Context, rec *record) {
	<-rec.proc.Exited()
	code := rec.proc.ExitCode()

	rec.mu.Lock()
	prev := rec.status
	if prev == StatusDead {
		prev = StatusStopping
	}
	rec.status = StatusDead
	if prev != StatusStopping {
		rec.crash = engineerr.Newf(engineerr.AgentCrashed, "agent %s crashed with exit code %d", rec.id, code)
	}
	conn := rec.conn
	rec.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if prev != StatusStopping {
		logging.Infof(ctx, "Agent %s crashed with exit code %d", rec.id, code)
	} else {
		logging.Debugf(ctx, "Agent %s exited with code %d", rec.id, code)
	}

	a.mu.Lock()
	delete(a.records, rec.id)
	a.mu.Unlock()
}

// drainHandshake closes a connection that lost the race against a spawn
// timeout.
func drainHandshake(hs chan net.Conn) {
	select {
	case conn := <-hs:
		conn.Close()
	default:
	}
}

// destroy kills a process that failed to reach Ready and waits for the
// exit, so a Dead record never has a running process.
func (a *Agency) destroy(rec *record) {
	if rec.proc != nil && rec.proc.Running() {
		rec.proc.Kill()
		<-rec.proc.Exited()
	}
	rec.setStatus(StatusDead)
}

// ReleaseAgent asks an agent to stop and reclaims its process. A graceful
// exit is awaited up to StopTimeout; afterwards the process is killed.
func (a *Agency) ReleaseAgent(ctx context.Context, agent *Agent) error {
	rec := agent.rec
	rec.mu.Lock()
	if rec.status == StatusDead {
		rec.mu.Unlock()
		return nil
	}
	rec.status = StatusStopping
	conn := rec.conn
	rec.mu.Unlock()

	logging.Debugf(ctx, "Stopping agent %s", rec.id)
	if conn != nil {
		if err := conn.SendStop(); err != nil {
			logging.Debugf(ctx, "Stop frame to agent %s failed: %v", rec.id, err)
		}
	}

	timer := a.clk.NewTimer(a.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-rec.proc.Exited():
	case <-timer.C():
		logging.Infof(ctx, "Agent %s did not exit in time; killing", rec.id)
		rec.proc.Kill()
		<-rec.proc.Exited()
	}
	rec.setStatus(StatusDead)
	return nil
}

// GetAgentRecordStatus reports the status of a tracked agent, or StatusDead
// for unknown ids.
func (a *Agency) GetAgentRecordStatus(id uuid.UUID) Status {
	a.mu.Lock()
	rec, ok := a.records[id]
	a.mu.Unlock()
	if !ok {
		return StatusDead
	}
	return rec.getStatus()
}

// SweepStaleAgents terminates leftover agent processes from earlier engine
// runs: processes running the configured agent executable that this agency
// is not tracking.
func (a *Agency) SweepStaleAgents(ctx context.Context) {
	if a.cfg.AgentExe == "" {
		return
	}
	procs, err := process.Processes()
	if err != nil {
		logging.Infof(ctx, "Failed to list processes while looking for stale agents: %v", err)
		return
	}

	tracked := map[int32]bool{int32(os.Getpid()): true}
	a.mu.Lock()
	for _, rec := range a.records {
		tracked[int32(rec.proc.Pid())] = true
	}
	a.mu.Unlock()

	for _, p := range procs {
		if tracked[p.Pid] {
			continue
		}
		exe, err := p.Exe()
		if err != nil || exe != a.cfg.AgentExe {
			continue
		}
		logging.Infof(ctx, "Terminating stale agent process %d", p.Pid)
		if err := p.Terminate(); err != nil {
			logging.Infof(ctx, "Failed to terminate stale agent %d: %v", p.Pid, err)
		}
	}
}

// Close shuts the endpoint down and reclaims every live agent.
func (a *Agency) Close(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	var live []*record
	for _, rec := range a.records {
		live = append(live, rec)
	}
	a.mu.Unlock()

	for _, rec := range live {
		a.ReleaseAgent(ctx, &Agent{agency: a, rec: rec})
	}
	return a.ln.Close()
}

// String describes the agency for logs.
func (a *Agency) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return fmt.Sprintf("agency at %s tracking %d agent(s)", strings.TrimPrefix(a.url, "tcp://"), len(a.records))
}
