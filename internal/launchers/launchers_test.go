// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package launchers_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/launchers"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/packages"
)

func pkgFor(target string) *packages.TestPackage {
	p := packages.New("/tests/my.tests.dll")
	if target != "" {
		p.AddSetting(packages.SettingTargetRuntimeFramework, target)
	}
	return p
}

// matching returns the names of the built-in launchers accepting the
// package, in declaration order.
func matching(target string) []string {
	var names []string
	for _, l := range launchers.Builtin(launchers.Config{AgentExe: "/engine/agents/testcentric-agent"}) {
		if l.CanCreateProcess(pkgFor(target)) {
			names = append(names, l.Info().Name)
		}
	}
	return names
}

func TestLauncherMatching(t *testing.T) {
	for _, tc := range []struct {
		target string
		want   []string
	}{
		{"net-2.0", []string{"Net20AgentLauncher", "Net40AgentLauncher"}},
		{"net-3.5", []string{"Net20AgentLauncher", "Net40AgentLauncher"}},
		{"net-4.0", []string{"Net40AgentLauncher"}},
		{"net-4.8", []string{"Net40AgentLauncher"}},
		{"mono-2.0", []string{"Net20AgentLauncher", "Net40AgentLauncher"}},
		{"netcore-1.1", []string{"NetCore21AgentLauncher", "NetCore31AgentLauncher", "Net50AgentLauncher"}},
		{"netcore-2.1", []string{"NetCore21AgentLauncher", "NetCore31AgentLauncher", "Net50AgentLauncher"}},
		{"netcore-3.1", []string{"NetCore31AgentLauncher", "Net50AgentLauncher"}},
		{"netcore-5.0", []string{"Net50AgentLauncher"}},
		{"netcore-6.0", nil},
		{"", nil},
		{"java-1.8", nil},
	} {
		if diff := cmp.Diff(matching(tc.target), tc.want); diff != "" {
			t.Errorf("target %q: matching launchers mismatch (-got +want):\n%s", tc.target, diff)
		}
	}
}

func TestCreateProcessUsesAgentExecutable(t *testing.T) {
	pkg := pkgFor("net-4.0")
	pkg.AddSetting(packages.SettingInternalTraceLevel, "Debug")
	pkg.AddSetting(packages.SettingDebugAgent, true)
	pkg.AddSetting(packages.SettingWorkDirectory, "/work")

	id := uuid.New()
	ls := launchers.Builtin(launchers.Config{AgentExe: "/engine/agents/testcentric-agent"})
	proc, err := ls[1].CreateProcess(id, "tcp://127.0.0.1:9000", pkg)
	if err != nil {
		t.Fatalf("CreateProcess failed: %v", err)
	}

	if proc.Path() != "/engine/agents/testcentric-agent" {
		t.Errorf("Path = %q; want the agent executable", proc.Path())
	}
	if proc.Running() {
		t.Error("Running() = true for an unstarted process")
	}
}

func TestCreateProcessPicksX86Exe(t *testing.T) {
	pkg := pkgFor("net-4.0")
	pkg.AddSetting(packages.SettingRunAsX86, true)

	cfg := launchers.Config{
		AgentExe:    "/engine/agents/testcentric-agent",
		AgentX86Exe: "/engine/agents/testcentric-agent-x86",
	}
	proc, err := launchers.Builtin(cfg)[1].CreateProcess(uuid.New(), "tcp://127.0.0.1:9000", pkg)
	if err != nil {
		t.Fatalf("CreateProcess failed: %v", err)
	}
	if !strings.HasSuffix(proc.Path(), "-x86") {
		t.Errorf("Path = %q; want the x86 agent executable", proc.Path())
	}
}
