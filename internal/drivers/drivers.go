// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package drivers bridges the engine to framework-specific test
// controllers inside an agent.
//
// A driver owns the loaded test binary and the framework controller driving
// it. The controller surface is late-bound: the framework backing a test
// binary is unknown when the engine is built, so controllers are resolved
// through providers and invoked by method name.
package drivers

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/inspect"
)

// State is the lifecycle state of a driver.
type State string

// Driver states.
const (
	StateUnloaded State = "Unloaded"
	StateLoaded   State = "Loaded"
	StateRunning  State = "Running"
	StateStopped  State = "Stopped"
)

// EventSink receives progress reports during a run, in emission order. The
// report content is opaque to the engine.
type EventSink func(report string)

// Driver is the in-agent contract for one loaded test binary.
type Driver interface {
	// Load loads the binary and returns the XML test tree.
	Load(ctx context.Context, settings map[string]string) (string, error)
	// CountTestCases returns the number of test cases the filter selects.
	CountTestCases(ctx context.Context, filter string) (int, error)
	// Explore returns the XML description of the tests the filter selects.
	Explore(ctx context.Context, filter string) (string, error)
	// Run executes the selected tests, reporting progress to listener, and
	// returns the XML result.
	Run(ctx context.Context, listener EventSink, filter string) (string, error)
	// StopRun requests a cooperative stop. force is never supported at the
	// driver level; forced stops are an agency concern.
	StopRun(ctx context.Context, force bool) error
}

// driverState guards the lifecycle shared by driver implementations.
type driverState struct {
	mu    sync.Mutex
	state State
}

func (s *driverState) get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == "" {
		return StateUnloaded
	}
	return s.state
}

func (s *driverState) set(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// requireLoaded fails with NotLoaded for operations arriving before a
// successful Load.
func (s *driverState) requireLoaded(op string) error {
	if st := s.get(); st == StateUnloaded {
		return engineerr.Newf(engineerr.NotLoaded, "%s requires a loaded test binary", op)
	}
	return nil
}

// Factory produces a driver for binaries referencing a framework it knows.
type Factory interface {
	// IsSupportedReference reports whether the referenced assembly name
	// belongs to this factory's framework. Matching is case-insensitive.
	IsSupportedReference(ref string) bool
	// Create builds a driver for the inspected binary. ref is the matched
	// framework reference.
	Create(report *inspect.Report, ref string) Driver
}

// Service selects the driver for a test binary. At most one driver exists
// per agent at a time; a later selection replaces the earlier driver.
type Service struct {
	factories []Factory
}

// NewService creates a driver service consulting the given factories in
// order.
func NewService(factories ...Factory) *Service {
	return &Service{factories: factories}
}

// GetDriver finds the framework referenced by the inspected binary and
// dispatches to the matching factory. When no reference matches, the result
// depends on skipNonTest: a skipped-assembly driver, or an invalid-binary
// driver surfacing FrameworkNotFound.
func (s *Service) GetDriver(report *inspect.Report, skipNonTest bool) Driver {
	for _, ref := range report.References {
		for _, f := range s.factories {
			if f.IsSupportedReference(ref) {
				return f.Create(report, ref)
			}
		}
	}
	if skipNonTest {
		return &skippedDriver{report: report}
	}
	return NewInvalidBinaryDriver(engineerr.Newf(engineerr.FrameworkNotFound,
		"no known test framework is referenced by %s (references: %s)",
		report.Path, strings.Join(report.References, ", ")))
}

// skippedSuiteXML renders the synthetic result for a binary that is not
// run: the whole suite is reported as skipped.
func skippedSuiteXML(path, reason string) string {
	return fmt.Sprintf(
		`<test-suite type="Assembly" name=%q result="Skipped" total="0" passed="0" failed="0" warnings="0" inconclusive="0" skipped="0"><reason>%s</reason></test-suite>`,
		path, reason)
}
