// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package launchers defines the agent launcher plugin kind.
//
// A launcher advertises which target runtimes it can host and knows how to
// construct an agent process for a test package. The agency consults the
// launchers in declaration order and uses the first that accepts a package.
package launchers

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/packages"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/runtimes"
)

// AgentKind distinguishes how a launcher hosts test binaries.
type AgentKind string

// Agent kinds.
const (
	// LocalProcess agents run in a separate process on this machine.
	LocalProcess AgentKind = "LocalProcess"
	// InProcess agents run inside the controller process. No built-in
	// launcher produces one; the kind exists for extensions.
	InProcess AgentKind = "InProcess"
)

// AgentInfo describes a launcher to the engine and its extensions.
type AgentInfo struct {
	Name string
	Kind AgentKind
}

// Launcher is the agent launcher plugin contract.
type Launcher interface {
	// Info describes the launcher.
	Info() AgentInfo
	// CanCreateProcess reports whether the launcher can host the package,
	// judged from its TargetRuntimeFramework setting.
	CanCreateProcess(pkg *packages.TestPackage) bool
	// CreateProcess constructs an unstarted agent process wired to call
	// back to agencyURL and identify itself as agentID.
	CreateProcess(agentID uuid.UUID, agencyURL string, pkg *packages.TestPackage) (*Process, error)
}

// ExtensionPointPath is where launcher extensions register.
const ExtensionPointPath = "/Engine/AgentLaunchers"

// Config locates the agent executables used by the built-in launchers.
type Config struct {
	// AgentExe is the agent executable path.
	AgentExe string
	// AgentX86Exe hosts packages that require a 32-bit process. When empty,
	// AgentExe is used for those too.
	AgentX86Exe string
}

// processLauncher is the shared implementation of the built-in launchers.
type processLauncher struct {
	name    string
	cfg     Config
	accepts func(target runtimes.RuntimeID) bool
}

func (l *processLauncher) Info() AgentInfo {
	return AgentInfo{Name: l.name, Kind: LocalProcess}
}

func (l *processLauncher) CanCreateProcess(pkg *packages.TestPackage) bool {
	tag := pkg.StringSetting(packages.SettingTargetRuntimeFramework, "")
	if tag == "" {
		return false
	}
	target, err := runtimes.Parse(tag)
	if err != nil {
		return false
	}
	return l.accepts(target)
}

func (l *processLauncher) CreateProcess(agentID uuid.UUID, agencyURL string, pkg *packages.TestPackage) (*Process, error) {
	exe := l.cfg.AgentExe
	if l.cfg.AgentX86Exe != "" && runAsX86(pkg) {
		exe = l.cfg.AgentX86Exe
	}

	args := []string{agentID.String(), agencyURL, fmt.Sprintf("--pid=%d", os.Getpid())}
	if level := pkg.StringSetting(packages.SettingInternalTraceLevel, ""); level != "" {
		args = append(args, "--trace="+level)
	}
	if pkg.BoolSetting(packages.SettingDebugAgent, false) {
		args = append(args, "--debug-agent")
	}
	workDir := pkg.StringSetting(packages.SettingWorkDirectory, "")
	if workDir != "" {
		args = append(args, "--work="+workDir)
	}
	return NewProcess(exe, args, workDir), nil
}

func runAsX86(pkg *packages.TestPackage) bool {
	return pkg.BoolSetting(packages.SettingRunAsX86, false) ||
		pkg.BoolSetting(packages.SettingImageRequiresX86, false)
}

// versionAtMost reports target.Framework <= (major, minor).
func versionAtMost(target runtimes.RuntimeID, major, minor int) bool {
	fw := target.Framework
	if fw.Major != major {
		return fw.Major < major
	}
	return fw.Minor <= minor
}

func isDesktopFamily(f runtimes.Family) bool {
	return f == runtimes.FamilyNet || f == runtimes.FamilyMono
}

// Builtin constructs the built-in launchers in their declaration order:
// Net20, Net40, NetCore21, NetCore31, Net50. The agency preserves this
// order when matching.
func Builtin(cfg Config) []Launcher {
	return []Launcher{
		&processLauncher{name: "Net20AgentLauncher", cfg: cfg, accepts: func(t runtimes.RuntimeID) bool {
			return isDesktopFamily(t.Family) && !t.Framework.IsAny() && t.Framework.Major < 4
		}},
		&processLauncher{name: "Net40AgentLauncher", cfg: cfg, accepts: func(t runtimes.RuntimeID) bool {
			return isDesktopFamily(t.Family)
		}},
		&processLauncher{name: "NetCore21AgentLauncher", cfg: cfg, accepts: func(t runtimes.RuntimeID) bool {
			return t.Family == runtimes.FamilyNetCore && versionAtMost(t, 2, 1)
		}},
		&processLauncher{name: "NetCore31AgentLauncher", cfg: cfg, accepts: func(t runtimes.RuntimeID) bool {
			return t.Family == runtimes.FamilyNetCore && versionAtMost(t, 3, 1)
		}},
		&processLauncher{name: "Net50AgentLauncher", cfg: cfg, accepts: func(t runtimes.RuntimeID) bool {
			return t.Family == runtimes.FamilyNetCore && versionAtMost(t, 5, 0)
		}},
	}
}
