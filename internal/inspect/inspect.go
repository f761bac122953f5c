// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package inspect reads metadata from a test binary without loading it.
//
// Three sources are consulted: the build-emitted runtime configuration
// sidecar (<binary>.runtimeconfig.json), the dependency manifest sidecar
// (<binary>.deps.json), and the portable executable headers of the binary
// itself. The report feeds agent selection and driver selection; the binary
// is never executed in the controller process.
package inspect

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/runtimes"
)

// Report describes a test binary.
type Report struct {
	// Path is the inspected binary.
	Path string
	// TargetRuntime is the runtime the binary was built for.
	TargetRuntime runtimes.RuntimeID
	// TargetFrameworkName is the build-emitted framework name, when known
	// (e.g. ".NETFramework,Version=v4.5" or "netcoreapp3.1").
	TargetFrameworkName string
	// References lists simple names of referenced assemblies.
	References []string
	// RequiresX86 reports whether the binary must run in a 32-bit process.
	RequiresX86 bool
	// ILOnly reports whether the binary contains only managed code.
	ILOnly bool
}

// runtimeConfig mirrors the runtimeOptions document emitted next to
// netcore binaries.
type runtimeConfig struct {
	RuntimeOptions struct {
		TFM       string `json:"tfm"`
		Framework struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"framework"`
	} `json:"runtimeOptions"`
}

// depsManifest mirrors the dependency manifest emitted next to binaries by
// SDK-style builds. Library keys take the form "<name>/<version>".
type depsManifest struct {
	Libraries map[string]struct {
		Type string `json:"type"`
	} `json:"libraries"`
}

// Inspect reads metadata for the binary at path.
func Inspect(path string) (*Report, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, engineerr.Wrapf(engineerr.BadBinary, err, "cannot stat %s", path)
	}

	report := &Report{Path: path}

	cfgPath := sidecarPath(path, ".runtimeconfig.json")
	if cfg, err := readRuntimeConfig(cfgPath); err != nil {
		return nil, err
	} else if cfg != nil {
		report.TargetFrameworkName = cfg.RuntimeOptions.TFM
	}

	pi, err := readPE(path)
	if err != nil {
		return nil, err
	}
	report.RequiresX86 = pi.Requires32Bit
	report.ILOnly = pi.ILOnly

	switch {
	case report.TargetFrameworkName != "":
		id, err := runtimes.ParseFrameworkName(report.TargetFrameworkName)
		if err != nil {
			return nil, err
		}
		report.TargetRuntime = id
	case pi.Managed && pi.RuntimeVersion != "":
		id, err := runtimes.Parse(string(runtimes.FamilyNet) + "-" + strings.TrimPrefix(pi.RuntimeVersion, "v"))
		if err != nil {
			return nil, engineerr.Wrapf(engineerr.BadBinary, err, "bad runtime version %q in %s", pi.RuntimeVersion, path)
		}
		report.TargetRuntime = id
	default:
		return nil, engineerr.Newf(engineerr.BadBinary, "%s is not a managed test binary", path)
	}

	refs, err := readReferences(path)
	if err != nil {
		return nil, err
	}
	report.References = refs
	return report, nil
}

// sidecarPath derives the path of a build sidecar file from the binary path
// by replacing the extension.
func sidecarPath(binary, suffix string) string {
	base := strings.TrimSuffix(binary, filepath.Ext(binary))
	return base + suffix
}

// readRuntimeConfig parses a runtimeconfig sidecar. A missing file is not
// an error; a malformed one is.
func readRuntimeConfig(path string) (*runtimeConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, engineerr.Wrapf(engineerr.BadBinary, err, "cannot read %s", path)
	}
	var cfg runtimeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, engineerr.Wrapf(engineerr.BadBinary, err, "malformed runtime configuration %s", path)
	}
	return &cfg, nil
}

// readReferences collects referenced assembly simple names. The dependency
// manifest sidecar is authoritative when present; otherwise assemblies
// located next to the binary are taken as its reference closure, which is
// how non-SDK framework builds lay out their output.
func readReferences(binary string) ([]string, error) {
	depsPath := sidecarPath(binary, ".deps.json")
	data, err := os.ReadFile(depsPath)
	if err == nil {
		var deps depsManifest
		if err := json.Unmarshal(data, &deps); err != nil {
			return nil, engineerr.Wrapf(engineerr.BadBinary, err, "malformed dependency manifest %s", depsPath)
		}
		var refs []string
		for key := range deps.Libraries {
			name := key
			if i := strings.IndexByte(key, '/'); i >= 0 {
				name = key[:i]
			}
			refs = append(refs, name)
		}
		sort.Strings(refs)
		return refs, nil
	} else if !os.IsNotExist(err) {
		return nil, engineerr.Wrapf(engineerr.BadBinary, err, "cannot read %s", depsPath)
	}

	entries, err := os.ReadDir(filepath.Dir(binary))
	if err != nil {
		return nil, engineerr.Wrapf(engineerr.BadBinary, err, "cannot scan %s", filepath.Dir(binary))
	}
	var refs []string
	self := strings.ToLower(filepath.Base(binary))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".dll") {
			continue
		}
		if strings.ToLower(name) == self {
			continue
		}
		refs = append(refs, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	sort.Strings(refs)
	return refs, nil
}
