// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package fakeframework_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/drivers/fakeframework"
)

func newMockController(t *testing.T, netcore bool) *fakeframework.Controller {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mock.tests.dll")
	if err := fakeframework.WriteMockAssemblyManifest(path, netcore); err != nil {
		t.Fatal(err)
	}
	c, err := fakeframework.NewController(path)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCountTests(t *testing.T) {
	c := newMockController(t, false)
	n, err := c.CountTests("")
	if err != nil {
		t.Fatalf("CountTests failed: %v", err)
	}
	if n != 31 {
		t.Errorf("CountTests = %d; want 31", n)
	}
}

func TestCountTestsExcludesExplicit(t *testing.T) {
	c := newMockController(t, true)
	n, err := c.CountTests("")
	if err != nil {
		t.Fatalf("CountTests failed: %v", err)
	}
	if n != 36 {
		t.Errorf("CountTests = %d; want 36 (explicit test not selected)", n)
	}
}

func TestExplicitTestRunsWhenSelected(t *testing.T) {
	c := newMockController(t, true)
	filter := "<filter><test>MockAssembly.Tests.Explicit01</test></filter>"
	n, err := c.CountTests(filter)
	if err != nil {
		t.Fatalf("CountTests failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("CountTests = %d; want 1", n)
	}

	result, err := c.RunTests(filter, func(string) {})
	if err != nil {
		t.Fatalf("RunTests failed: %v", err)
	}
	want := `passed="1"`
	if !strings.Contains(result, want) {
		t.Errorf("RunTests result %q does not contain %q", result, want)
	}
}

func TestStopRunEndsRunEarly(t *testing.T) {
	c := newMockController(t, false)
	ran := 0
	_, err := c.RunTests("", func(report string) {
		ran++
		if ran == 4 {
			c.StopRun(false)
		}
	})
	if err != nil {
		t.Fatalf("RunTests failed: %v", err)
	}
	// Two reports per case; the stop lands during the second case, so far
	// fewer than the 62 reports of a full run arrive.
	if ran >= 62 {
		t.Errorf("got %d progress reports; want an early stop", ran)
	}
}

func TestMissingManifest(t *testing.T) {
	if _, err := fakeframework.NewController(filepath.Join(t.TempDir(), "no.dll")); err == nil {
		t.Error("NewController unexpectedly succeeded")
	}
}
