// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	gotesting "testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/agent"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/drivers/fakeframework"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engine"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/inspect/inspecttest"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/packages"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/results"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/transport"
)

// TestMain lets the built-in launchers re-execute this test binary as the
// agent: an agent command line leads with the agent id.
func TestMain(m *gotesting.M) {
	if len(os.Args) > 2 {
		if _, err := uuid.Parse(os.Args[1]); err == nil {
			os.Exit(agent.Run(context.Background(), os.Args[1:], os.Stderr))
		}
	}
	os.Exit(m.Run())
}

func newEngine(t *gotesting.T) *engine.Engine {
	t.Helper()
	exe, err := os.Executable()
	if err != nil {
		t.Fatal(err)
	}
	e, err := engine.New(context.Background(), engine.Config{
		AgentExe:   exe,
		AddinsDirs: []string{},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close(context.Background()) })
	return e
}

// writeMockBinary fabricates a mock binary targeting the given variant and
// returns its path.
func writeMockBinary(t *gotesting.T, netcore bool) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "mock.tests.dll")
	inspecttest.MustWrite(path, inspecttest.Assembly{})
	inspecttest.MustWrite(filepath.Join(dir, "nunit.framework.dll"), inspecttest.Assembly{})
	if netcore {
		if err := inspecttest.WriteRuntimeConfig(path, "netcoreapp2.1"); err != nil {
			t.Fatal(err)
		}
	}
	if err := inspecttest.WriteDeps(path, "nunit.framework/3.13.2"); err != nil {
		t.Fatal(err)
	}
	if err := fakeframework.WriteMockAssemblyManifest(path, netcore); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunMockAssemblyVariants(t *gotesting.T) {
	for _, tc := range []struct {
		name    string
		netcore bool
		target  string
		want    results.Summary
	}{
		{"net45", false, "net-4.5", results.Summary{Total: 31, Passed: 18, Failed: 5, Warnings: 0, Inconclusive: 1, Skipped: 7, Result: "Failed"}},
		{"netcore21", true, "netcore-2.1", results.Summary{Total: 36, Passed: 23, Failed: 5, Warnings: 1, Inconclusive: 1, Skipped: 7, Result: "Failed"}},
	} {
		t.Run(tc.name, func(t *gotesting.T) {
			e := newEngine(t)
			pkg := packages.New(writeMockBinary(t, tc.netcore))
			pkg.AddSetting(packages.SettingTargetRuntimeFramework, tc.target)

			res, err := e.Run(context.Background(), pkg, nil, "<filter></filter>")
			if err != nil {
				t.Fatalf("Run failed: %v", err)
			}
			if diff := cmp.Diff(res.Summary, tc.want); diff != "" {
				t.Errorf("summary mismatch (-got +want):\n%s", diff)
			}
		})
	}
}

func TestRunAggregatePackage(t *gotesting.T) {
	e := newEngine(t)
	pkg := packages.New(writeMockBinary(t, false), writeMockBinary(t, false))
	pkg.AddSetting(packages.SettingTargetRuntimeFramework, "net-4.5")

	var mu sync.Mutex
	events := 0
	res, err := e.Run(context.Background(), pkg, func(ev *transport.Event) {
		if ev.Type == transport.EventProgress {
			mu.Lock()
			events++
			mu.Unlock()
		}
	}, "<filter></filter>")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if res.Summary.Total != 62 || res.Summary.Failed != 10 {
		t.Errorf("aggregate summary = %+v; want total 62, failed 10", res.Summary)
	}
	if len(res.ResultXML) != 2 {
		t.Errorf("got %d result documents; want 2", len(res.ResultXML))
	}
	mu.Lock()
	if events != 2*2*31 {
		t.Errorf("got %d progress events; want %d", events, 2*2*31)
	}
	mu.Unlock()
}

func TestRunTargetRuntimeFromInspection(t *gotesting.T) {
	// Without an explicit TargetRuntimeFramework setting the engine derives
	// it from the binary's metadata.
	e := newEngine(t)
	pkg := packages.New(writeMockBinary(t, true))

	res, err := e.Run(context.Background(), pkg, nil, "<filter></filter>")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Summary.Total != 36 {
		t.Errorf("total = %d; want 36", res.Summary.Total)
	}
	if got := pkg.StringSetting(packages.SettingTargetRuntimeFramework, ""); got != "netcore-2.1" {
		t.Errorf("TargetRuntimeFramework = %q; want netcore-2.1", got)
	}
}

func TestRunUnsupportedRuntime(t *gotesting.T) {
	e := newEngine(t)
	pkg := packages.New(writeMockBinary(t, false))
	pkg.AddSetting(packages.SettingTargetRuntimeFramework, "netcore-7.0")

	_, err := e.Run(context.Background(), pkg, nil, "<filter></filter>")
	if kind := engineerr.KindOf(err); kind != engineerr.NoSuitableAgent {
		t.Errorf("error kind = %v; want %v", kind, engineerr.NoSuitableAgent)
	}
}

func TestExplore(t *gotesting.T) {
	e := newEngine(t)
	pkg := packages.New(writeMockBinary(t, false))
	pkg.AddSetting(packages.SettingTargetRuntimeFramework, "net-4.5")

	doc, err := e.Explore(context.Background(), pkg, "<filter></filter>")
	if err != nil {
		t.Fatalf("Explore failed: %v", err)
	}
	if doc == "" {
		t.Error("Explore returned an empty document")
	}
}
