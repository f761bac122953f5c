// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package fakeframework

import "fmt"

// MockAssemblySuite is the suite name of the reference mock assembly.
const MockAssemblySuite = "MockAssembly"

// mockSpec describes the outcome mix of a mock assembly variant.
type mockSpec struct {
	passed, failed, warnings, inconclusive, skipped, explicit int
}

// The reference mock assembly ships in two variants. The desktop build has
// 31 test cases; the netcore build adds a handful of cases including one
// explicit test, so a full run totals 36 with the explicit case reported
// among the skips.
var (
	mockNet     = mockSpec{passed: 18, failed: 5, warnings: 0, inconclusive: 1, skipped: 7}
	mockNetCore = mockSpec{passed: 23, failed: 5, warnings: 1, inconclusive: 1, skipped: 6, explicit: 1}
)

func (s mockSpec) tests() []TestCase {
	var out []TestCase
	add := func(n int, outcome Outcome, label string) {
		for i := 1; i <= n; i++ {
			out = append(out, TestCase{
				Name:    fmt.Sprintf("MockAssembly.Tests.%s%02d", label, i),
				Outcome: outcome,
			})
		}
	}
	add(s.passed, Passed, "Passing")
	add(s.failed, Failed, "Failing")
	add(s.warnings, Warning, "Warning")
	add(s.inconclusive, Inconclusive, "Inconclusive")
	add(s.skipped, Skipped, "Ignored")
	add(s.explicit, Explicit, "Explicit")
	return out
}

// MockAssemblyTests returns the test list of the reference mock assembly
// for the desktop or netcore variant.
func MockAssemblyTests(netcore bool) []TestCase {
	if netcore {
		return mockNetCore.tests()
	}
	return mockNet.tests()
}

// WriteMockAssemblyManifest writes the mock assembly's test manifest next
// to the binary at binaryPath.
func WriteMockAssemblyManifest(binaryPath string, netcore bool) error {
	return WriteManifest(binaryPath, MockAssemblySuite, MockAssemblyTests(netcore))
}
