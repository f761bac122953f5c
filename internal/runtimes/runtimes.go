// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package runtimes identifies managed runtimes that test binaries target.
//
// A RuntimeID is the canonical tag of the form "<family>-<major>.<minor>"
// (e.g. "net-4.0", "netcore-3.1"). The Supports relation decides whether a
// runtime hosted by an agent can execute a binary built for another runtime.
package runtimes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
)

// Family is the broad kind of managed runtime.
type Family string

// Known runtime families.
const (
	FamilyNet     Family = "net"
	FamilyNetCore Family = "netcore"
	FamilyMono    Family = "mono"
	FamilyAny     Family = "any"
)

// knownFamilies is the set of parseable family names.
var knownFamilies = map[Family]bool{
	FamilyNet:     true,
	FamilyNetCore: true,
	FamilyMono:    true,
	FamilyAny:     true,
}

// Version is a dotted version number. Components that are unknown are
// negative; comparisons skip negative components on either side.
type Version struct {
	Major, Minor, Build int
}

// NoVersion is the version placeholder carried by any-version runtime ids.
var NoVersion = Version{0, 0, -1}

// IsAny reports whether v is the zero version that matches everything.
func (v Version) IsAny() bool {
	return v.Major == 0 && v.Minor == 0
}

// String formats v, omitting negative components.
func (v Version) String() string {
	if v.Build < 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// matches compares two versions component-wise, ignoring components that are
// negative on either side.
func (v Version) matches(o Version) bool {
	pairs := [][2]int{{v.Major, o.Major}, {v.Minor, o.Minor}, {v.Build, o.Build}}
	for _, p := range pairs {
		if p[0] < 0 || p[1] < 0 {
			continue
		}
		if p[0] != p[1] {
			return false
		}
	}
	return true
}

// RuntimeID identifies a target runtime as a family plus framework and CLR
// versions.
type RuntimeID struct {
	Family    Family
	Framework Version // two-component framework version
	CLR       Version // three-component CLR version
}

// Any matches every concrete runtime id.
var Any = RuntimeID{Family: FamilyAny, Framework: NoVersion, CLR: NoVersion}

// clrForFramework maps a framework version to the CLR version hosting it for
// the given family. The netcore family has no separate CLR versioning, so
// the framework version passes through.
func clrForFramework(f Family, fw Version) Version {
	switch f {
	case FamilyNet, FamilyMono:
		switch {
		case fw.IsAny():
			return NoVersion
		case fw.Major == 1 && fw.Minor == 0:
			return Version{1, 0, 3705}
		case fw.Major == 1:
			return Version{1, 1, 4322}
		case fw.Major < 4:
			return Version{2, 0, 50727}
		default:
			return Version{4, 0, 30319}
		}
	default:
		return Version{fw.Major, fw.Minor, -1}
	}
}

// frameworkForCLR maps a CLR version back to the framework version it
// implies for the given family.
func frameworkForCLR(f Family, clr Version) Version {
	switch f {
	case FamilyNet, FamilyMono:
		// CLR 2.0.50727 hosts frameworks 2.0 through 3.5; without more
		// information the lowest framework version is assumed.
		return Version{clr.Major, clr.Minor, -1}
	default:
		return Version{clr.Major, clr.Minor, -1}
	}
}

// New constructs a RuntimeID for a family and two-component framework
// version, deriving the CLR version from the family mapping table.
func New(f Family, major, minor int) RuntimeID {
	fw := Version{major, minor, -1}
	if fw.IsAny() {
		fw = NoVersion
	}
	return RuntimeID{Family: f, Framework: fw, CLR: clrForFramework(f, fw)}
}

// Parse parses a runtime tag. Three shapes are accepted: a bare family name
// ("net"), a version prefixed by "v" ("v4.5"), and the hyphenated canonical
// form ("net-4.0"). A version with three components is interpreted as a CLR
// version; a version with two components is a framework version.
func Parse(s string) (RuntimeID, error) {
	if s == "" {
		return RuntimeID{}, engineerr.New(engineerr.UnsupportedRuntime, "empty runtime tag")
	}

	family := FamilyAny
	ver := ""
	switch {
	case strings.HasPrefix(s, "v"):
		ver = s[1:]
	case strings.Contains(s, "-"):
		parts := strings.SplitN(s, "-", 2)
		family, ver = Family(parts[0]), parts[1]
	default:
		family = Family(s)
	}

	if !knownFamilies[family] {
		return RuntimeID{}, engineerr.Newf(engineerr.UnsupportedRuntime, "unknown runtime family in %q", s)
	}
	if ver == "" {
		return RuntimeID{Family: family, Framework: NoVersion, CLR: NoVersion}, nil
	}

	v, n, err := parseVersion(ver)
	if err != nil {
		return RuntimeID{}, engineerr.Wrapf(engineerr.UnsupportedRuntime, err, "bad version in runtime tag %q", s)
	}
	if n == 3 {
		// A three-component version is a CLR version.
		return RuntimeID{Family: family, Framework: frameworkForCLR(family, v), CLR: v}, nil
	}
	return RuntimeID{Family: family, Framework: v, CLR: clrForFramework(family, v)}, nil
}

// MustParse is like Parse but panics on error. It is intended for use with
// built-in constant tags.
func MustParse(s string) RuntimeID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// parseVersion parses a dotted version with two or three components,
// returning the component count.
func parseVersion(s string) (Version, int, error) {
	parts := strings.Split(s, ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Version{}, 0, fmt.Errorf("version %q must have 2 or 3 components", s)
	}
	nums := make([]int, 3)
	nums[2] = -1
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, 0, fmt.Errorf("version %q has a malformed component %q", s, p)
		}
		nums[i] = n
	}
	return Version{nums[0], nums[1], nums[2]}, len(parts), nil
}

// String returns the canonical tag. Any-version ids render as the bare
// family name, and the fully wild id renders as "any".
func (r RuntimeID) String() string {
	if r.Framework.IsAny() {
		return string(r.Family)
	}
	return fmt.Sprintf("%s-%d.%d", r.Family, r.Framework.Major, r.Framework.Minor)
}

// IsAny reports whether r matches every concrete runtime id.
func (r RuntimeID) IsAny() bool {
	return r.Family == FamilyAny && r.Framework.IsAny()
}

// Supports reports whether a binary targeting target can run on r.
//
// The relation is reflexive but neither symmetric nor antisymmetric: a
// newer framework supports binaries built for an older one of the same
// family and CLR, but not vice versa.
func (r RuntimeID) Supports(target RuntimeID) bool {
	if r.Family != FamilyAny && target.Family != FamilyAny && r.Family != target.Family {
		return false
	}
	if r.Framework.IsAny() || target.Framework.IsAny() {
		return true
	}
	return r.CLR.matches(target.CLR) &&
		r.Framework.Major >= target.Framework.Major &&
		r.Framework.Minor >= target.Framework.Minor
}
