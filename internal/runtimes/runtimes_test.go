// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package runtimes_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/runtimes"
)

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want runtimes.RuntimeID
	}{
		{"net", runtimes.RuntimeID{Family: runtimes.FamilyNet, Framework: runtimes.NoVersion, CLR: runtimes.NoVersion}},
		{"mono", runtimes.RuntimeID{Family: runtimes.FamilyMono, Framework: runtimes.NoVersion, CLR: runtimes.NoVersion}},
		{"any", runtimes.Any},
		{"net-2.0", runtimes.RuntimeID{Family: runtimes.FamilyNet, Framework: runtimes.Version{2, 0, -1}, CLR: runtimes.Version{2, 0, 50727}}},
		{"net-3.5", runtimes.RuntimeID{Family: runtimes.FamilyNet, Framework: runtimes.Version{3, 5, -1}, CLR: runtimes.Version{2, 0, 50727}}},
		{"net-4.5", runtimes.RuntimeID{Family: runtimes.FamilyNet, Framework: runtimes.Version{4, 5, -1}, CLR: runtimes.Version{4, 0, 30319}}},
		{"net-1.0", runtimes.RuntimeID{Family: runtimes.FamilyNet, Framework: runtimes.Version{1, 0, -1}, CLR: runtimes.Version{1, 0, 3705}}},
		{"net-1.1", runtimes.RuntimeID{Family: runtimes.FamilyNet, Framework: runtimes.Version{1, 1, -1}, CLR: runtimes.Version{1, 1, 4322}}},
		{"netcore-3.1", runtimes.RuntimeID{Family: runtimes.FamilyNetCore, Framework: runtimes.Version{3, 1, -1}, CLR: runtimes.Version{3, 1, -1}}},
		{"v4.5", runtimes.RuntimeID{Family: runtimes.FamilyAny, Framework: runtimes.Version{4, 5, -1}, CLR: runtimes.Version{4, 5, -1}}},
		{"net-4.0.30319", runtimes.RuntimeID{Family: runtimes.FamilyNet, Framework: runtimes.Version{4, 0, -1}, CLR: runtimes.Version{4, 0, 30319}}},
		{"net-2.0.50727", runtimes.RuntimeID{Family: runtimes.FamilyNet, Framework: runtimes.Version{2, 0, -1}, CLR: runtimes.Version{2, 0, 50727}}},
	} {
		got, err := runtimes.Parse(tc.in)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", tc.in, err)
			continue
		}
		if diff := cmp.Diff(got, tc.want); diff != "" {
			t.Errorf("Parse(%q) mismatch (-got +want):\n%s", tc.in, diff)
		}
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"", "java", "java-1.8", "net-x.y", "net-1", "net-1.2.3.4"} {
		if _, err := runtimes.Parse(in); err == nil {
			t.Errorf("Parse(%q) unexpectedly succeeded", in)
		} else if kind := engineerr.KindOf(err); kind != engineerr.UnsupportedRuntime {
			t.Errorf("Parse(%q) error kind = %v; want %v", in, kind, engineerr.UnsupportedRuntime)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"net", "netcore", "mono", "any", "net-2.0", "net-3.5", "net-4.0", "net-4.5", "netcore-2.1", "netcore-3.1", "netcore-5.0", "mono-4.0"} {
		id, err := runtimes.Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", s, err)
		}
		if got := id.String(); got != s {
			t.Errorf("Parse(%q).String() = %q; want %q", s, got, s)
		}
		back, err := runtimes.Parse(id.String())
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", id.String(), err)
		}
		if diff := cmp.Diff(back, id); diff != "" {
			t.Errorf("round trip of %q mismatch (-got +want):\n%s", s, diff)
		}
	}
}

func TestSupportsReflexive(t *testing.T) {
	for _, s := range []string{"net", "net-2.0", "net-4.5", "netcore-3.1", "mono-4.0", "any"} {
		id := runtimes.MustParse(s)
		if !id.Supports(id) {
			t.Errorf("%v.Supports(itself) = false; want true", id)
		}
	}
}

func TestSupportsAny(t *testing.T) {
	for _, s := range []string{"net-2.0", "net-4.5", "netcore-3.1", "mono"} {
		id := runtimes.MustParse(s)
		if !runtimes.Any.Supports(id) {
			t.Errorf("any.Supports(%v) = false; want true", id)
		}
		if !id.Supports(runtimes.Any) {
			t.Errorf("%v.Supports(any) = false; want true", id)
		}
	}
}

func TestSupportsTruthTable(t *testing.T) {
	for _, tc := range []struct {
		a, b string
		want bool
	}{
		// Same CLR, newer framework supports older.
		{"net-3.5", "net-2.0", true},
		{"net-2.0", "net-3.5", false},
		{"net-4.5", "net-4.0", true},
		{"net-4.0", "net-4.5", false},
		// Different CLR generations never match.
		{"net-4.0", "net-2.0", false},
		{"net-2.0", "net-4.0", false},
		// Family mismatch.
		{"net-4.0", "mono-4.0", false},
		{"netcore-3.1", "net-4.5", false},
		// Any-version family tag supports every version of the family.
		{"net", "net-4.5", true},
		{"net", "net-2.0", true},
		{"net-2.0", "net", true},
		// netcore versions pass the CLR check only when equal.
		{"netcore-3.1", "netcore-2.1", false},
		{"netcore-2.1", "netcore-2.1", true},
	} {
		a, b := runtimes.MustParse(tc.a), runtimes.MustParse(tc.b)
		if got := a.Supports(b); got != tc.want {
			t.Errorf("%s.Supports(%s) = %v; want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestParseFrameworkName(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want string
	}{
		{".NETFramework,Version=v4.5", "net-4.5"},
		{".NETFramework,Version=v2.0", "net-2.0"},
		{".NETCoreApp,Version=v3.1", "netcore-3.1"},
		{".NETCoreApp,Version=v5.0", "netcore-5.0"},
		{"netcoreapp2.1", "netcore-2.1"},
		{"net5.0", "netcore-5.0"},
		{"net48", "net-4.8"},
		{"net472", "net-4.7"},
		{"net35", "net-3.5"},
	} {
		got, err := runtimes.ParseFrameworkName(tc.in)
		if err != nil {
			t.Errorf("ParseFrameworkName(%q) failed: %v", tc.in, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseFrameworkName(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseFrameworkNameRejectedPlatforms(t *testing.T) {
	for _, in := range []string{
		"Silverlight,Version=v5.0",
		".NETPortable,Version=v4.5",
		".NETStandard,Version=v2.0",
		".NETCompactFramework,Version=v3.5",
		"netstandard2.0",
	} {
		_, err := runtimes.ParseFrameworkName(in)
		if err == nil {
			t.Errorf("ParseFrameworkName(%q) unexpectedly succeeded", in)
			continue
		}
		if kind := engineerr.KindOf(err); kind != engineerr.UnsupportedPlatform {
			t.Errorf("ParseFrameworkName(%q) error kind = %v; want %v", in, kind, engineerr.UnsupportedPlatform)
		}
	}
}
