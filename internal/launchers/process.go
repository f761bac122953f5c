// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package launchers

import (
	"context"
	"os"
	"os/exec"
	"syscall"

	"github.com/OndrejCopak-eaton/testcentric-engine/errors"
)

// Process is an unstarted agent process built by a launcher. The agency
// starts it, observes its exit, and terminates it when reclaiming the
// agent.
type Process struct {
	cmd    *exec.Cmd
	waitCh chan error
}

// NewProcess constructs an unstarted process. workDir may be empty to
// inherit the controller's working directory.
func NewProcess(exe string, args []string, workDir string) *Process {
	cmd := exec.Command(exe, args...)
	cmd.Dir = workDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return &Process{cmd: cmd}
}

// Start launches the process.
func (p *Process) Start() error {
	if err := p.cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", p.cmd.Path)
	}
	p.waitCh = make(chan error, 1)
	go func() { p.waitCh <- p.cmd.Wait() }()
	return nil
}

// Pid returns the process id. Valid only after Start.
func (p *Process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

// Path returns the executable the process runs.
func (p *Process) Path() string {
	return p.cmd.Path
}

// Exited returns a channel that yields the Wait error once the process
// exits. Each call returns its own channel, which delivers exactly one
// value, so every caller observes the exit.
func (p *Process) Exited() <-chan error {
	ch := make(chan error, 1)
	go func() {
		err := <-p.waitCh
		// Re-arm so later callers observe the same outcome.
		p.waitCh <- err
		ch <- err
	}()
	return ch
}

// Wait blocks until the process exits or ctx is canceled. On cancellation
// the process keeps running; the caller decides whether to kill it.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case err := <-p.waitCh:
		// Re-arm so later callers observe the same outcome.
		p.waitCh <- err
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the process has been started and has not exited.
func (p *Process) Running() bool {
	if p.cmd.Process == nil {
		return false
	}
	select {
	case err := <-p.waitCh:
		p.waitCh <- err
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code after the process has exited, or -1 if it
// was killed or has not exited.
func (p *Process) ExitCode() int {
	if p.cmd.ProcessState == nil {
		return -1
	}
	return p.cmd.ProcessState.ExitCode()
}

// Terminate asks the process to exit with SIGTERM.
func (p *Process) Terminate() error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return p.cmd.Process.Signal(syscall.SIGTERM)
}

// Kill forcibly ends the process.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	return p.cmd.Process.Kill()
}
