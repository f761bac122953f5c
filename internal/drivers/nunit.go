// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package drivers

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/filters"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/inspect"
)

// nunitFrameworkName is the reference that selects the NUnit driver.
const nunitFrameworkName = "nunit.framework"

// frameworkControllerTypeName is the well-known controller type the NUnit
// framework exposes.
const frameworkControllerTypeName = "NUnit.Framework.Api.FrameworkController"

// controllerMethods is the single place the controller method names live.
var controllerMethods = struct {
	Load, Count, Explore, Run, StopRun string
}{
	Load:    "LoadTests",
	Count:   "CountTests",
	Explore: "ExploreTests",
	Run:     "RunTests",
	StopRun: "StopRun",
}

// NUnitFactory produces drivers for binaries referencing nunit.framework.
type NUnitFactory struct {
	providers *ProviderSet
}

// NewNUnitFactory creates the factory backed by the given providers.
func NewNUnitFactory(providers *ProviderSet) *NUnitFactory {
	return &NUnitFactory{providers: providers}
}

// IsSupportedReference matches the NUnit framework reference,
// case-insensitively.
func (f *NUnitFactory) IsSupportedReference(ref string) bool {
	return strings.EqualFold(ref, nunitFrameworkName)
}

// Create builds an in-process driver for the binary.
func (f *NUnitFactory) Create(report *inspect.Report, ref string) Driver {
	return &nunitDriver{factoryProviders: f.providers, report: report, ref: ref}
}

// nunitDriver drives a binary through the NUnit controller surface.
type nunitDriver struct {
	factoryProviders *ProviderSet
	report           *inspect.Report
	ref              string

	state      driverState
	controller controllerHandle
}

// Load resolves the framework assembly on disk, obtains a controller and
// loads the test binary.
//
// The framework reference matched case-insensitively, but resolution of the
// on-disk file appends ".dll" to the reference's simple name; a framework
// packaged under a different file name is not found, and the attempted
// paths are reported.
func (d *nunitDriver) Load(ctx context.Context, settings map[string]string) (string, error) {
	dir := filepath.Dir(d.report.Path)
	attempted := []string{
		filepath.Join(dir, d.ref+".dll"),
		filepath.Join(dir, nunitFrameworkName+".dll"),
	}
	found := ""
	for _, p := range attempted {
		if _, err := os.Stat(p); err == nil {
			found = p
			break
		}
	}
	if found == "" {
		return "", engineerr.Newf(engineerr.FrameworkNotFound,
			"test framework %s referenced by %s was not found; attempted: %s",
			d.ref, d.report.Path, strings.Join(attempted, ", "))
	}

	provider := d.factoryProviders.Lookup(d.ref)
	if provider == nil {
		return "", engineerr.Newf(engineerr.FrameworkNotFound,
			"no controller provider for framework %s", d.ref)
	}
	controller, err := provider.CreateController(d.report.Path, settings)
	if err != nil {
		return "", engineerr.Wrapf(engineerr.DriverError, err,
			"failed to create %s for %s", frameworkControllerTypeName, d.report.Path)
	}
	d.controller = newControllerHandle(controller)

	tree, err := d.controller.invokeString(controllerMethods.Load)
	if err != nil {
		return "", err
	}
	d.state.set(StateLoaded)
	return tree, nil
}

func (d *nunitDriver) CountTestCases(ctx context.Context, filter string) (int, error) {
	if err := d.state.requireLoaded("CountTestCases"); err != nil {
		return 0, err
	}
	return d.controller.invokeInt(controllerMethods.Count, filter)
}

func (d *nunitDriver) Explore(ctx context.Context, filter string) (string, error) {
	if err := d.state.requireLoaded("Explore"); err != nil {
		return "", err
	}
	return d.controller.invokeString(controllerMethods.Explore, filter)
}

// Run executes the selected tests. When the pre-check shows the filter
// excludes the whole binary, a synthetic skipped suite is returned without
// invoking the framework.
func (d *nunitDriver) Run(ctx context.Context, listener EventSink, filter string) (string, error) {
	if err := d.state.requireLoaded("Run"); err != nil {
		return "", err
	}
	if d.state.get() == StateStopped {
		return "", engineerr.New(engineerr.DriverError, "the run was stopped; reload to run again")
	}

	if !filters.IsEmpty(filter) {
		n, err := d.controller.invokeInt(controllerMethods.Count, filter)
		if err != nil {
			return "", err
		}
		if n == 0 {
			return skippedSuiteXML(d.report.Path, "filter excludes all tests"), nil
		}
	}

	if listener == nil {
		listener = func(string) {}
	}
	d.state.set(StateRunning)
	result, err := d.controller.invokeString(controllerMethods.Run, filter, (func(string))(listener))
	if err != nil {
		d.state.set(StateLoaded)
		return "", err
	}
	d.state.set(StateLoaded)
	return result, nil
}

// StopRun requests a cooperative stop. Forced stops are rejected: the agent
// process is terminated by the agency instead.
func (d *nunitDriver) StopRun(ctx context.Context, force bool) error {
	if force {
		return engineerr.New(engineerr.ForceStopNotSupported, "force stop is not supported by drivers")
	}
	if err := d.state.requireLoaded("StopRun"); err != nil {
		return err
	}
	if _, err := d.controller.invoke(controllerMethods.StopRun, false); err != nil {
		return err
	}
	d.state.set(StateStopped)
	return nil
}
