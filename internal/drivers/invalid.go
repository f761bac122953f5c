// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package drivers

import (
	"context"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/inspect"
)

// invalidBinaryDriver carries the reason a binary cannot be driven and
// surfaces it on every operation.
type invalidBinaryDriver struct {
	reason error
}

// NewInvalidBinaryDriver creates a driver that fails every operation with
// the given reason.
func NewInvalidBinaryDriver(reason error) Driver {
	return &invalidBinaryDriver{reason: reason}
}

func (d *invalidBinaryDriver) Load(ctx context.Context, settings map[string]string) (string, error) {
	return "", d.reason
}

func (d *invalidBinaryDriver) CountTestCases(ctx context.Context, filter string) (int, error) {
	return 0, d.reason
}

func (d *invalidBinaryDriver) Explore(ctx context.Context, filter string) (string, error) {
	return "", d.reason
}

func (d *invalidBinaryDriver) Run(ctx context.Context, listener EventSink, filter string) (string, error) {
	return "", d.reason
}

func (d *invalidBinaryDriver) StopRun(ctx context.Context, force bool) error {
	if force {
		return engineerr.New(engineerr.ForceStopNotSupported, "force stop is not supported by drivers")
	}
	return d.reason
}

// skippedDriver handles binaries that reference no test framework when the
// package opted in to skipping non-test assemblies. Load reports a skipped
// suite instead of failing; the other operations behave as an empty
// assembly.
type skippedDriver struct {
	state  driverState
	report *inspect.Report
}

func (d *skippedDriver) Load(ctx context.Context, settings map[string]string) (string, error) {
	d.state.set(StateLoaded)
	return skippedSuiteXML(d.report.Path, "does not reference a test framework"), nil
}

func (d *skippedDriver) CountTestCases(ctx context.Context, filter string) (int, error) {
	if err := d.state.requireLoaded("CountTestCases"); err != nil {
		return 0, err
	}
	return 0, nil
}

func (d *skippedDriver) Explore(ctx context.Context, filter string) (string, error) {
	if err := d.state.requireLoaded("Explore"); err != nil {
		return "", err
	}
	return skippedSuiteXML(d.report.Path, "does not reference a test framework"), nil
}

func (d *skippedDriver) Run(ctx context.Context, listener EventSink, filter string) (string, error) {
	if err := d.state.requireLoaded("Run"); err != nil {
		return "", err
	}
	return skippedSuiteXML(d.report.Path, "does not reference a test framework"), nil
}

func (d *skippedDriver) StopRun(ctx context.Context, force bool) error {
	if force {
		return engineerr.New(engineerr.ForceStopNotSupported, "force stop is not supported by drivers")
	}
	return d.state.requireLoaded("StopRun")
}
