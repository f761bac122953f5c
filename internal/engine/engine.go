// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package engine assembles the engine services: the extension registry,
// the launcher list and the agency, threaded with one HostRuntime value
// computed at startup.
package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/agency"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/extensions"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/inspect"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/launchers"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/logging"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/packages"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/results"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/transport"
)

// Built-in extension points.
const (
	// DriverFactoriesPath accepts framework driver factories.
	DriverFactoriesPath = "/Engine/DriverFactories"
	// eventListenerType is the type-level extension point for run event
	// listeners; its path derives from the type's simple name.
	eventListenerType = "TestCentric.Engine.ITestEventListener"
)

// defaultHostFramework identifies the runtime hosting the engine when the
// caller does not say otherwise.
const defaultHostFramework = ".NETCoreApp,Version=v3.1"

// Config parameterizes an Engine.
type Config struct {
	// AgentExe and AgentX86Exe locate the agent executables. AgentExe
	// defaults to "testcentric-agent" next to the running executable.
	AgentExe    string
	AgentX86Exe string
	// AddinsDirs are scanned for extensions. Missing directories are
	// skipped. Defaults to "addins" next to the running executable.
	AddinsDirs []string
	// HostFramework names the framework hosting the engine; it gates which
	// extensions can load.
	HostFramework string
	// MaxAgents bounds how many agents run concurrently for an aggregate
	// package. Defaults to the number of sub-packages.
	MaxAgents int
	// HandshakeTimeout and StopTimeout pass through to the agency.
	HandshakeTimeout time.Duration
	StopTimeout      time.Duration
}

// Engine is the controller-side entry point for loading and running test
// packages.
type Engine struct {
	cfg      Config
	registry *extensions.Registry
	agency   *agency.Agency
}

// New builds the engine services and runs extension discovery.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.HostFramework == "" {
		cfg.HostFramework = defaultHostFramework
	}
	exeDir := ""
	if exe, err := os.Executable(); err == nil {
		exeDir = filepath.Dir(exe)
	}
	if cfg.AgentExe == "" && exeDir != "" {
		cfg.AgentExe = filepath.Join(exeDir, "testcentric-agent")
	}
	if cfg.AddinsDirs == nil && exeDir != "" {
		cfg.AddinsDirs = []string{filepath.Join(exeDir, "addins")}
	}

	registry, err := extensions.NewRegistry(cfg.HostFramework)
	if err != nil {
		return nil, err
	}
	if err := registry.RegisterExtensionPoint(launchers.ExtensionPointPath, "TestCentric.Engine.IAgentLauncher", "agent launchers"); err != nil {
		return nil, err
	}
	if err := registry.RegisterExtensionPoint(DriverFactoriesPath, "TestCentric.Engine.IDriverFactory", "framework driver factories"); err != nil {
		return nil, err
	}
	if err := registry.RegisterTypeExtensionPoint(eventListenerType, "run event listeners"); err != nil {
		return nil, err
	}

	var dirs []string
	for _, dir := range cfg.AddinsDirs {
		if _, err := os.Stat(dir); err == nil {
			dirs = append(dirs, dir)
		}
	}
	if err := registry.Discover(ctx, dirs...); err != nil {
		return nil, err
	}

	launcherList := launchers.Builtin(launchers.Config{AgentExe: cfg.AgentExe, AgentX86Exe: cfg.AgentX86Exe})
	extra, err := extensions.ExtensionsOf[launchers.Launcher](registry)
	if err != nil {
		return nil, err
	}
	launcherList = append(launcherList, extra...)

	ag, err := agency.New(ctx, agency.Config{
		Launchers:        launcherList,
		HandshakeTimeout: cfg.HandshakeTimeout,
		StopTimeout:      cfg.StopTimeout,
		AgentExe:         cfg.AgentExe,
	})
	if err != nil {
		return nil, err
	}
	ag.SweepStaleAgents(ctx)

	return &Engine{cfg: cfg, registry: registry, agency: ag}, nil
}

// Registry exposes the extension registry.
func (e *Engine) Registry() *extensions.Registry {
	return e.registry
}

// Agency exposes the agency.
func (e *Engine) Agency() *agency.Agency {
	return e.agency
}

// InspectPackage inspects a leaf package's binary and backfills the image
// settings agent selection relies on.
func (e *Engine) InspectPackage(pkg *packages.TestPackage) (*inspect.Report, error) {
	report, err := inspect.Inspect(pkg.FullName)
	if err != nil {
		return nil, err
	}
	if pkg.StringSetting(packages.SettingTargetRuntimeFramework, "") == "" {
		pkg.AddSetting(packages.SettingTargetRuntimeFramework, report.TargetRuntime.String())
	}
	if report.TargetFrameworkName != "" {
		pkg.AddSetting(packages.SettingImageTargetFrameworkName, report.TargetFrameworkName)
	}
	pkg.AddSetting(packages.SettingImageRequiresX86, report.RequiresX86)
	for _, ref := range report.References {
		if strings.EqualFold(ref, "nunit.framework") {
			pkg.AddSetting(packages.SettingImageTestFrameworkRef, ref)
			break
		}
	}
	return report, nil
}

// RunResult aggregates the outcome of running a package.
type RunResult struct {
	// Summary folds the counters of every executed binary.
	Summary results.Summary
	// ResultXML holds one result document per executed binary, in
	// completion order.
	ResultXML []string
}

// Run executes every leaf of pkg. Leaves run concurrently, each on its own
// agent; events from all agents are interleaved into listener.
func (e *Engine) Run(ctx context.Context, pkg *packages.TestPackage, listener transport.EventHandler, filter string) (*RunResult, error) {
	leaves := pkg.Select()

	res := &RunResult{Summary: results.Summary{Result: "Passed"}}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	if e.cfg.MaxAgents > 0 {
		g.SetLimit(e.cfg.MaxAgents)
	}
	for _, leaf := range leaves {
		leaf := leaf
		g.Go(func() error {
			xml, err := e.runLeaf(ctx, leaf, listener, filter)
			if err != nil {
				return err
			}
			summary, err := results.ParseSummary(xml)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			res.ResultXML = append(res.ResultXML, xml)
			res.Summary.Add(summary)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

func (e *Engine) runLeaf(ctx context.Context, pkg *packages.TestPackage, listener transport.EventHandler, filter string) (string, error) {
	if _, err := e.InspectPackage(pkg); err != nil {
		return "", err
	}

	agent, err := e.agency.GetAgent(ctx, pkg)
	if err != nil {
		return "", err
	}
	defer e.agency.ReleaseAgent(ctx, agent)

	logging.Debugf(ctx, "Running %s on agent %s (%s)", pkg.Name, agent.ID(), agent.Launcher())
	if _, err := agent.Load(ctx, pkg); err != nil {
		return "", err
	}
	return agent.Run(ctx, listener, filter)
}

// Explore loads a leaf package and returns the XML description of the
// tests the filter selects.
func (e *Engine) Explore(ctx context.Context, pkg *packages.TestPackage, filter string) (string, error) {
	if _, err := e.InspectPackage(pkg); err != nil {
		return "", err
	}
	agent, err := e.agency.GetAgent(ctx, pkg)
	if err != nil {
		return "", err
	}
	defer e.agency.ReleaseAgent(ctx, agent)
	if _, err := agent.Load(ctx, pkg); err != nil {
		return "", err
	}
	return agent.Explore(ctx, filter)
}

// Close reclaims every agent and shuts the agency down.
func (e *Engine) Close(ctx context.Context) error {
	return e.agency.Close(ctx)
}
