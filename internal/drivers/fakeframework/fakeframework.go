// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package fakeframework is an in-process stand-in for a test framework
// controller.
//
// A controller is built from a manifest sidecar (<binary>.tests.yaml)
// describing the binary's test cases and their outcomes. The controller
// exposes the NUnit controller surface by method name, which is how the
// driver invokes it, so engine behavior can be exercised end to end without
// a real framework. The reference mock assembly fixtures live here too.
package fakeframework

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"

	"github.com/OndrejCopak-eaton/testcentric-engine/errors"
)

// Outcome is the declared result of one test case.
type Outcome string

// Test outcomes.
const (
	Passed       Outcome = "Passed"
	Failed       Outcome = "Failed"
	Warning      Outcome = "Warning"
	Inconclusive Outcome = "Inconclusive"
	Skipped      Outcome = "Skipped"
	// Explicit tests run only when selected by name. An unselected explicit
	// test is reported as skipped without counting toward the run total.
	Explicit Outcome = "Explicit"
)

// TestCase is one declared test.
type TestCase struct {
	Name    string  `yaml:"name"`
	Outcome Outcome `yaml:"outcome"`
}

// manifest is the on-disk test description sidecar.
type manifest struct {
	Suite string     `yaml:"suite"`
	Tests []TestCase `yaml:"tests"`
}

// ManifestPath derives the manifest sidecar path for a binary.
func ManifestPath(binaryPath string) string {
	base := strings.TrimSuffix(binaryPath, filepath.Ext(binaryPath))
	return base + ".tests.yaml"
}

// WriteManifest writes a test manifest sidecar for the binary at
// binaryPath.
func WriteManifest(binaryPath, suite string, tests []TestCase) error {
	data, err := yaml.Marshal(&manifest{Suite: suite, Tests: tests})
	if err != nil {
		return err
	}
	return os.WriteFile(ManifestPath(binaryPath), data, 0644)
}

// Controller implements the framework controller surface for one binary.
// Its methods are resolved by name through the driver's controller handle.
type Controller struct {
	assemblyPath string
	suite        string
	tests        []TestCase

	mu            sync.Mutex
	stopRequested bool
}

// Provider resolves controllers for the fake framework. It registers under
// the NUnit framework name so binaries referencing nunit.framework are
// driven by it.
type Provider struct{}

// FrameworkName implements drivers.ControllerProvider.
func (Provider) FrameworkName() string { return "nunit.framework" }

// CreateController implements drivers.ControllerProvider.
func (Provider) CreateController(assemblyPath string, settings map[string]string) (interface{}, error) {
	return NewController(assemblyPath)
}

// NewController builds a controller from the binary's manifest sidecar.
func NewController(assemblyPath string) (*Controller, error) {
	path := ManifestPath(assemblyPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "no test manifest for %s", assemblyPath)
	}
	var m manifest
	if err := yaml.UnmarshalStrict(data, &m); err != nil {
		return nil, errors.Wrapf(err, "malformed test manifest %s", path)
	}
	if m.Suite == "" {
		m.Suite = filepath.Base(assemblyPath)
	}
	return &Controller{assemblyPath: assemblyPath, suite: m.Suite, tests: m.Tests}, nil
}

// parseFilter extracts the test names selected by a filter document. An
// empty selection means the filter imposes no name constraint.
func parseFilter(filter string) (map[string]bool, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return nil, nil
	}
	dec := xml.NewDecoder(strings.NewReader(filter))
	names := map[string]bool{}
	var inTest bool
	for {
		tok, err := dec.Token()
		if tok == nil {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "malformed filter")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inTest = t.Name.Local == "test"
		case xml.CharData:
			if inTest {
				names[string(t)] = true
			}
		case xml.EndElement:
			inTest = false
		}
	}
	if len(names) == 0 {
		return nil, nil
	}
	return names, nil
}

// selected returns the tests a filter picks. With no name constraint every
// non-explicit test is selected; explicit tests run only when named.
func (c *Controller) selected(filter string) ([]TestCase, error) {
	names, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}
	var out []TestCase
	for _, tc := range c.tests {
		if names == nil {
			if tc.Outcome != Explicit {
				out = append(out, tc)
			}
		} else if names[tc.Name] {
			out = append(out, tc)
		}
	}
	return out, nil
}

// LoadTests reports the test tree.
func (c *Controller) LoadTests() (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<test-suite type="Assembly" name=%q fullname=%q testcasecount="%d">`,
		c.suite, c.assemblyPath, len(c.tests))
	for _, tc := range c.tests {
		fmt.Fprintf(&sb, `<test-case name=%q/>`, tc.Name)
	}
	sb.WriteString(`</test-suite>`)
	return sb.String(), nil
}

// CountTests counts the tests a filter selects.
func (c *Controller) CountTests(filter string) (int, error) {
	sel, err := c.selected(filter)
	if err != nil {
		return 0, err
	}
	return len(sel), nil
}

// ExploreTests describes the tests a filter selects.
func (c *Controller) ExploreTests(filter string) (string, error) {
	sel, err := c.selected(filter)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, `<test-suite type="Assembly" name=%q testcasecount="%d">`, c.suite, len(sel))
	for _, tc := range sel {
		fmt.Fprintf(&sb, `<test-case name=%q/>`, tc.Name)
	}
	sb.WriteString(`</test-suite>`)
	return sb.String(), nil
}

// RunTests executes the selected tests, reporting per-case progress through
// report, and returns the run result. A cooperative stop request ends the
// run after the case in progress.
func (c *Controller) RunTests(filter string, report func(string)) (string, error) {
	sel, err := c.selected(filter)
	if err != nil {
		return "", err
	}
	names, err := parseFilter(filter)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.stopRequested = false
	c.mu.Unlock()

	counts := map[Outcome]int{}
	var cases strings.Builder
	ran := 0
	for _, tc := range sel {
		c.mu.Lock()
		stopped := c.stopRequested
		c.mu.Unlock()
		if stopped {
			break
		}
		report(fmt.Sprintf(`<start-test name=%q/>`, tc.Name))
		outcome := tc.Outcome
		if outcome == Explicit {
			// Reached only via explicit selection; an explicitly selected
			// test runs and passes.
			outcome = Passed
		}
		counts[outcome]++
		fmt.Fprintf(&cases, `<test-case name=%q result=%q/>`, tc.Name, outcome)
		report(fmt.Sprintf(`<test-case name=%q result=%q/>`, tc.Name, outcome))
		ran++
	}

	// Unselected explicit tests appear as skipped cases without joining
	// the run total.
	extraSkipped := 0
	if names == nil {
		for _, tc := range c.tests {
			if tc.Outcome == Explicit {
				extraSkipped++
				fmt.Fprintf(&cases, `<test-case name=%q result="Skipped"><reason>explicit</reason></test-case>`, tc.Name)
			}
		}
	}

	result := "Passed"
	if counts[Failed] > 0 {
		result = "Failed"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb,
		`<test-run name=%q testcasecount="%d" total="%d" passed="%d" failed="%d" warnings="%d" inconclusive="%d" skipped="%d" result=%q>`,
		c.suite, len(sel), ran,
		counts[Passed], counts[Failed], counts[Warning], counts[Inconclusive], counts[Skipped]+extraSkipped,
		result)
	sb.WriteString(cases.String())
	sb.WriteString(`</test-run>`)
	return sb.String(), nil
}

// StopRun asks the controller to end the current run cooperatively.
func (c *Controller) StopRun(force bool) error {
	if force {
		return errors.New("forced stop is not implemented by the framework")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopRequested = true
	return nil
}
