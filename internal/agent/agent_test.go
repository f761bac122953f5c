// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package agent_test

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/agency"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/agent"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/drivers/fakeframework"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/inspect/inspecttest"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/transport"
)

// startAgent runs the agent entry point against an in-test endpoint and
// returns the controller conn once the handshake arrives.
func startAgent(t *testing.T, onEvent transport.EventHandler) (*transport.Conn, uuid.UUID, <-chan int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	id := uuid.New()
	status := make(chan int, 1)
	go func() {
		status <- agent.Run(context.Background(),
			[]string{id.String(), "tcp://" + ln.Addr().String(), "--pid=1"}, io.Discard)
	}()

	netConn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	f, err := transport.ReadFrame(netConn)
	if err != nil {
		t.Fatalf("reading handshake: %v", err)
	}
	ev, err := transport.DecodeHandshake(f)
	if err != nil {
		t.Fatalf("decoding handshake: %v", err)
	}
	if ev.Body != id.String() {
		t.Fatalf("handshake id = %q; want %q", ev.Body, id)
	}
	conn := transport.NewConn(netConn, onEvent)
	t.Cleanup(func() { conn.Close() })
	return conn, id, status
}

// writeMockBinary fabricates a loadable binary and returns its path.
func writeMockBinary(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mock.tests.dll")
	inspecttest.MustWrite(path, inspecttest.Assembly{})
	inspecttest.MustWrite(filepath.Join(dir, "nunit.framework.dll"), inspecttest.Assembly{})
	if err := inspecttest.WriteDeps(path, "nunit.framework/3.13.2"); err != nil {
		t.Fatal(err)
	}
	if err := fakeframework.WriteMockAssemblyManifest(path, false); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAgentServesCommandsAndExitsWithFailureCount(t *testing.T) {
	conn, _, status := startAgent(t, nil)
	ctx := context.Background()

	if _, err := conn.Call(ctx, agency.CommandRun, "<filter></filter>"); engineerr.KindOf(err) != engineerr.NotLoaded {
		t.Errorf("Run before Load = %v; want NotLoaded", err)
	}

	path := writeMockBinary(t)
	if _, err := conn.Call(ctx, agency.CommandLoad, path, "{}"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if n, err := conn.Call(ctx, agency.CommandCountTestCases, "<filter></filter>"); err != nil || n != "31" {
		t.Errorf("CountTestCases = %q, %v; want \"31\", nil", n, err)
	}
	if _, err := conn.Call(ctx, agency.CommandRun, "<filter></filter>"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if err := conn.SendStop(); err != nil {
		t.Fatalf("SendStop failed: %v", err)
	}
	select {
	case code := <-status:
		// The mock assembly has five failing tests; the agent exits with
		// that count per the legacy convention.
		if code != 5 {
			t.Errorf("exit status = %d; want 5", code)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("agent did not exit after Stop")
	}
}

func TestAgentForwardsLogsAsEvents(t *testing.T) {
	logs := make(chan string, 100)
	conn, _, _ := startAgent(t, func(ev *transport.Event) {
		if ev.Type == transport.EventLog {
			select {
			case logs <- ev.Body:
			default:
			}
		}
	})

	// Loading emits at least one debug log, mirrored over the channel.
	path := writeMockBinary(t)
	if _, err := conn.Call(context.Background(), agency.CommandLoad, path, "{}"); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	select {
	case <-logs:
	case <-time.After(5 * time.Second):
		t.Error("no log events were forwarded")
	}
}

func TestAgentRejectsUnknownCommand(t *testing.T) {
	conn, _, _ := startAgent(t, nil)
	_, err := conn.Call(context.Background(), "Bogus")
	if kind := engineerr.KindOf(err); kind != engineerr.ProtocolError {
		t.Errorf("unknown command error = %v; want ProtocolError", err)
	}
}

func TestReadArgsValidation(t *testing.T) {
	if code := agent.Run(context.Background(), nil, io.Discard); code == 0 {
		t.Error("Run with no args unexpectedly succeeded")
	}
	if code := agent.Run(context.Background(), []string{"not-a-uuid", "tcp://127.0.0.1:1"}, io.Discard); code == 0 {
		t.Error("Run with a bad agent id unexpectedly succeeded")
	}
}
