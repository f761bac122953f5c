// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runtimes

import (
	"strconv"
	"strings"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
)

// Framework identifier prefixes appearing in target framework names emitted
// by build systems (e.g. ".NETFramework,Version=v4.5").
const (
	netFrameworkIdentifier = ".NETFramework"
	netCoreAppIdentifier   = ".NETCoreApp"
	netStandardIdentifier  = ".NETStandard"
)

// rejectedPlatforms are target platforms the engine refuses to host.
var rejectedPlatforms = []string{
	"Silverlight",
	".NETPortable",
	".NETStandard",
	".NETCompactFramework",
}

// RejectedPlatform returns the name of the rejected platform frameworkName
// targets, or an empty string if it is acceptable.
func RejectedPlatform(frameworkName string) string {
	for _, p := range rejectedPlatforms {
		if strings.HasPrefix(frameworkName, p) {
			return p
		}
	}
	return ""
}

// ParseFrameworkName converts a target framework name into a RuntimeID. Two
// encodings are understood: the display form "<identifier>,Version=v<maj>.<min>"
// and the compact moniker form ("net48", "netcoreapp3.1", "net5.0").
func ParseFrameworkName(name string) (RuntimeID, error) {
	if p := RejectedPlatform(name); p != "" {
		return RuntimeID{}, engineerr.Newf(engineerr.UnsupportedPlatform, "platform %s is not supported", p)
	}

	if idx := strings.Index(name, ",Version=v"); idx >= 0 {
		ident := name[:idx]
		ver := name[idx+len(",Version=v"):]
		v, _, err := parseVersion(ver)
		if err != nil {
			return RuntimeID{}, engineerr.Wrapf(engineerr.UnsupportedRuntime, err, "bad target framework name %q", name)
		}
		switch ident {
		case netFrameworkIdentifier:
			return New(FamilyNet, v.Major, v.Minor), nil
		case netCoreAppIdentifier:
			return New(FamilyNetCore, v.Major, v.Minor), nil
		}
		return RuntimeID{}, engineerr.Newf(engineerr.UnsupportedRuntime, "unknown framework identifier %q", ident)
	}

	return parseMoniker(name)
}

// parseMoniker parses compact target framework monikers such as "net48",
// "netcoreapp2.1" and "net5.0".
func parseMoniker(m string) (RuntimeID, error) {
	switch {
	case strings.HasPrefix(m, "netcoreapp"):
		v, _, err := parseVersion(m[len("netcoreapp"):])
		if err != nil {
			return RuntimeID{}, engineerr.Wrapf(engineerr.UnsupportedRuntime, err, "bad target framework moniker %q", m)
		}
		return New(FamilyNetCore, v.Major, v.Minor), nil
	case strings.HasPrefix(m, "netstandard"):
		return RuntimeID{}, engineerr.Newf(engineerr.UnsupportedPlatform, "platform .NETStandard is not supported")
	case strings.HasPrefix(m, "net"):
		rest := m[len("net"):]
		if rest == "" {
			return RuntimeID{}, engineerr.Newf(engineerr.UnsupportedRuntime, "bad target framework moniker %q", m)
		}
		if strings.Contains(rest, ".") {
			// Dotted versions are SDK-style monikers: net5.0 and later run
			// on the netcore family.
			v, _, err := parseVersion(rest)
			if err != nil {
				return RuntimeID{}, engineerr.Wrapf(engineerr.UnsupportedRuntime, err, "bad target framework moniker %q", m)
			}
			if v.Major >= 5 {
				return New(FamilyNetCore, v.Major, v.Minor), nil
			}
			return New(FamilyNet, v.Major, v.Minor), nil
		}
		// Undotted digits name a .NET Framework version, e.g. net48.
		major, err := strconv.Atoi(rest[:1])
		if err != nil {
			return RuntimeID{}, engineerr.Newf(engineerr.UnsupportedRuntime, "bad target framework moniker %q", m)
		}
		// Each remaining digit is one version component; any third digit
		// (e.g. the 2 in net472) does not affect family matching.
		minor := 0
		if len(rest) > 1 {
			if minor, err = strconv.Atoi(rest[1:2]); err != nil {
				return RuntimeID{}, engineerr.Newf(engineerr.UnsupportedRuntime, "bad target framework moniker %q", m)
			}
		}
		return New(FamilyNet, major, minor), nil
	}
	return RuntimeID{}, engineerr.Newf(engineerr.UnsupportedRuntime, "unknown target framework moniker %q", m)
}
