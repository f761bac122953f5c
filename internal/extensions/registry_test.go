// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package extensions_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/extensions"
)

const hostNet = ".NETFramework,Version=v4.6"
const hostCore = ".NETCoreApp,Version=v3.1"

// write places a file with the given content under dir.
func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// newRegistry creates a registry with the standard test extension point.
func newRegistry(t *testing.T, hostFramework string) *extensions.Registry {
	t.Helper()
	r, err := extensions.NewRegistry(hostFramework)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterExtensionPoint("/Engine/Reporters", "Engine.IReporter", "result reporters"); err != nil {
		t.Fatal(err)
	}
	return r
}

const reporterExtension = `
assembly:
  name: acme.reporter
  version: 1.0.0
  targetFramework: .NETFramework,Version=v4.5
extensions:
  - type: Acme.Reporters.TeamReporter
    path: /Engine/Reporters
    description: posts results to chat
    properties:
      - name: Channel
        value: builds
      - name: Channel
        value: alerts
`

func TestDiscoverPlainDirectory(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "acme.reporter.dll", reporterExtension)

	r := newRegistry(t, hostNet)
	if err := r.Discover(context.Background(), dir); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	nodes := r.GetExtensionNodes("/Engine/Reporters")
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes; want 1", len(nodes))
	}
	n := nodes[0]
	if n.TypeName != "Acme.Reporters.TeamReporter" {
		t.Errorf("TypeName = %q; want %q", n.TypeName, "Acme.Reporters.TeamReporter")
	}
	if !n.Enabled() {
		t.Error("Enabled() = false; want true")
	}
	if diff := cmp.Diff(n.Properties("Channel"), []string{"builds", "alerts"}); diff != "" {
		t.Errorf("Properties(Channel) mismatch (-got +want):\n%s", diff)
	}
}

func TestDiscoverRunsOnce(t *testing.T) {
	r := newRegistry(t, hostNet)
	if err := r.Discover(context.Background(), t.TempDir()); err != nil {
		t.Fatalf("first Discover failed: %v", err)
	}
	if err := r.Discover(context.Background(), t.TempDir()); err == nil {
		t.Error("second Discover unexpectedly succeeded")
	}
}

func TestManifestOverridesDirectoryScan(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "listed.dll", strings.Replace(reporterExtension, "acme.reporter", "listed", 1))
	write(t, dir, "unlisted.dll", strings.Replace(reporterExtension, "acme.reporter", "unlisted", 1))
	write(t, dir, "engine.addins", "listed.dll  # only this one\n")

	r := newRegistry(t, hostNet)
	if err := r.Discover(context.Background(), dir); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	nodes := r.GetExtensionNodes("/Engine/Reporters")
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes; want 1", len(nodes))
	}
	if got := filepath.Base(nodes[0].AssemblyPath); got != "listed.dll" {
		t.Errorf("AssemblyPath base = %q; want %q", got, "listed.dll")
	}
}

func TestManifestDirectoryAndWildcardEntries(t *testing.T) {
	root := t.TempDir()
	write(t, root, "addins/first.dll", strings.Replace(reporterExtension, "acme.reporter", "first", 1))
	write(t, root, "extra/second.dll", strings.Replace(reporterExtension, "acme.reporter", "second", 1))
	write(t, root, "engine.addins", strings.Join([]string{
		"# extension locations",
		"",
		`addins\`,
		"extra/*.dll",
	}, "\n"))

	r := newRegistry(t, hostNet)
	if err := r.Discover(context.Background(), root); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	var names []string
	for _, n := range r.GetExtensionNodes("/Engine/Reporters") {
		names = append(names, filepath.Base(n.AssemblyPath))
	}
	if diff := cmp.Diff(names, []string{"first.dll", "second.dll"}); diff != "" {
		t.Errorf("node order mismatch (-got +want):\n%s", diff)
	}
	if !r.GetExtensionNodes("/Engine/Reporters")[1].FromWildcard {
		t.Error("wildcard-discovered node not marked FromWildcard")
	}
}

func TestWildcardFailuresAreWarnings(t *testing.T) {
	root := t.TempDir()
	write(t, root, "extra/broken.dll", "{{{ not metadata")
	write(t, root, "engine.addins", "extra/*.dll\n")

	r := newRegistry(t, hostNet)
	if err := r.Discover(context.Background(), root); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(r.Warnings()) == 0 {
		t.Error("no warnings recorded for broken wildcard candidate")
	}
}

func TestExplicitFailuresAreFatal(t *testing.T) {
	root := t.TempDir()
	write(t, root, "broken.dll", "{{{ not metadata")
	write(t, root, "engine.addins", "broken.dll\n")

	r := newRegistry(t, hostNet)
	err := r.Discover(context.Background(), root)
	if err == nil {
		t.Fatal("Discover unexpectedly succeeded")
	}
	if kind := engineerr.KindOf(err); kind != engineerr.ExtensionLoadError {
		t.Errorf("error kind = %v; want %v", kind, engineerr.ExtensionLoadError)
	}
}

func TestDeduplicateByVersion(t *testing.T) {
	root := t.TempDir()
	old := strings.Replace(reporterExtension, "version: 1.0.0", "version: 1.2.0", 1)
	new_ := strings.Replace(reporterExtension, "version: 1.0.0", "version: 1.10.0", 1)
	write(t, root, "a/acme.reporter.dll", old)
	write(t, root, "b/acme.reporter.dll", new_)
	write(t, root, "engine.addins", "a/\nb/\n")

	r := newRegistry(t, hostNet)
	if err := r.Discover(context.Background(), root); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	nodes := r.GetExtensionNodes("/Engine/Reporters")
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes; want 1", len(nodes))
	}
	if nodes[0].AssemblyVersion != "1.10.0" {
		t.Errorf("AssemblyVersion = %q; want %q (higher version wins)", nodes[0].AssemblyVersion, "1.10.0")
	}
}

const deducedExtension = `
assembly:
  name: acme.deduced
  version: 1.0.0
extensions:
  - type: Acme.Reporters.FancyReporter
    implements: [Acme.IFancy, Engine.IReporter]
    bases: [Acme.ReporterBase]
`

func TestDeducePathFromInterface(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "acme.deduced.dll", deducedExtension)

	r := newRegistry(t, hostNet)
	if err := r.Discover(context.Background(), dir); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	nodes := r.GetExtensionNodes("/Engine/Reporters")
	if len(nodes) != 1 {
		t.Fatalf("got %d nodes; want 1", len(nodes))
	}
	if nodes[0].Path != "/Engine/Reporters" {
		t.Errorf("Path = %q; want %q", nodes[0].Path, "/Engine/Reporters")
	}
}

func TestDeducedPathEqualsExplicitPath(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	write(t, dirA, "explicit.dll", strings.Replace(reporterExtension, "acme.reporter", "explicit", 1))
	write(t, dirB, "deduced.dll", deducedExtension)

	for _, dir := range []string{dirA, dirB} {
		r := newRegistry(t, hostNet)
		if err := r.Discover(context.Background(), dir); err != nil {
			t.Fatalf("Discover failed: %v", err)
		}
		nodes := r.GetExtensionNodes("/Engine/Reporters")
		if len(nodes) != 1 || nodes[0].Path != "/Engine/Reporters" {
			t.Errorf("dir %s: nodes bound to %v; want one node at /Engine/Reporters", dir, nodes)
		}
	}
}

func TestDeduceFromBaseType(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "based.dll", `
assembly:
  name: acme.based
  version: 1.0.0
extensions:
  - type: Acme.SpecialReporter
    bases: [Acme.Intermediate, Engine.IReporter]
`)

	r := newRegistry(t, hostNet)
	if err := r.Discover(context.Background(), dir); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if nodes := r.GetExtensionNodes("/Engine/Reporters"); len(nodes) != 1 {
		t.Fatalf("got %d nodes; want 1", len(nodes))
	}
}

func TestNoExtensionPoint(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "stray.dll", `
assembly:
  name: acme.stray
  version: 1.0.0
extensions:
  - type: Acme.Unbindable
    implements: [Acme.INothing]
`)

	r := newRegistry(t, hostNet)
	err := r.Discover(context.Background(), dir)
	if kind := engineerr.KindOf(err); kind != engineerr.NoExtensionPoint {
		t.Errorf("error kind = %v; want %v", kind, engineerr.NoExtensionPoint)
	}
}

func TestAmbiguousExtensionPoint(t *testing.T) {
	r := newRegistry(t, hostNet)
	if err := r.RegisterExtensionPoint("/Engine/AltReporters", "Engine.IReporter", ""); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	write(t, dir, "acme.deduced.dll", deducedExtension)

	err := r.Discover(context.Background(), dir)
	if kind := engineerr.KindOf(err); kind != engineerr.AmbiguousExtensionPoint {
		t.Errorf("error kind = %v; want %v", kind, engineerr.AmbiguousExtensionPoint)
	}
}

func TestDuplicateExtensionPoint(t *testing.T) {
	r := newRegistry(t, hostNet)
	err := r.RegisterExtensionPoint("/Engine/Reporters", "Other.Type", "")
	if kind := engineerr.KindOf(err); kind != engineerr.DuplicateExtensionPoint {
		t.Errorf("error kind = %v; want %v", kind, engineerr.DuplicateExtensionPoint)
	}
}

func TestEngineVersionGate(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "future.dll", `
assembly:
  name: acme.future
  version: 1.0.0
extensions:
  - type: Acme.FutureReporter
    path: /Engine/Reporters
    engineVersion: "99.0"
`)

	r := newRegistry(t, hostNet)
	if err := r.Discover(context.Background(), dir); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if nodes := r.GetExtensionNodes("/Engine/Reporters"); len(nodes) != 0 {
		t.Errorf("got %d nodes; want 0 (engine version gate)", len(nodes))
	}
}

func TestHostFrameworkGate(t *testing.T) {
	coreExt := `
assembly:
  name: acme.core
  version: 1.0.0
  targetFramework: .NETCoreApp,Version=v3.1
extensions:
  - type: Acme.CoreReporter
    path: /Engine/Reporters
`
	standardExt := `
assembly:
  name: acme.standard
  version: 1.0.0
  targetFramework: .NETStandard,Version=v2.0
extensions:
  - type: Acme.StandardReporter
    path: /Engine/Reporters
`
	netExt := strings.Replace(reporterExtension, "acme.reporter", "acme.net", 1)

	for _, tc := range []struct {
		host string
		want []string
	}{
		{hostNet, []string{"Acme.StandardReporter", "Acme.Reporters.TeamReporter"}},
		{hostCore, []string{"Acme.CoreReporter", "Acme.StandardReporter"}},
	} {
		dir := t.TempDir()
		write(t, dir, "a.core.dll", coreExt)
		write(t, dir, "b.standard.dll", standardExt)
		write(t, dir, "c.net.dll", netExt)

		r := newRegistry(t, tc.host)
		if err := r.Discover(context.Background(), dir); err != nil {
			t.Fatalf("Discover failed for host %s: %v", tc.host, err)
		}
		var got []string
		for _, n := range r.GetExtensionNodes("/Engine/Reporters") {
			got = append(got, n.TypeName)
		}
		if diff := cmp.Diff(got, tc.want); diff != "" {
			t.Errorf("host %s: nodes mismatch (-got +want):\n%s", tc.host, diff)
		}
	}
}

func TestNetStandardHostRejected(t *testing.T) {
	_, err := extensions.NewRegistry(".NETStandard,Version=v2.0")
	if err == nil {
		t.Fatal("NewRegistry unexpectedly succeeded")
	}
	if kind := engineerr.KindOf(err); kind != engineerr.UnsupportedPlatform {
		t.Errorf("error kind = %v; want %v", kind, engineerr.UnsupportedPlatform)
	}
}

type fakeReporter struct{ made int }

func TestExtensionObjectCached(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "acme.reporter.dll", reporterExtension)

	made := 0
	r := newRegistry(t, hostNet)
	r.RegisterFactory("Acme.Reporters.TeamReporter", func() interface{} {
		made++
		return &fakeReporter{made: made}
	})
	if err := r.Discover(context.Background(), dir); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	n := r.GetExtensionNodes("/Engine/Reporters")[0]
	first, err := n.ExtensionObject()
	if err != nil {
		t.Fatalf("ExtensionObject failed: %v", err)
	}
	second, err := n.ExtensionObject()
	if err != nil {
		t.Fatalf("ExtensionObject failed: %v", err)
	}
	if first != second {
		t.Error("ExtensionObject returned different instances")
	}
	if made != 1 {
		t.Errorf("factory called %d times; want 1", made)
	}
}

func TestExtensionsOf(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "acme.reporter.dll", reporterExtension)

	r := newRegistry(t, hostNet)
	r.RegisterFactory("Acme.Reporters.TeamReporter", func() interface{} {
		return &fakeReporter{}
	})
	if err := r.Discover(context.Background(), dir); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	objs, err := extensions.ExtensionsOf[*fakeReporter](r)
	if err != nil {
		t.Fatalf("ExtensionsOf failed: %v", err)
	}
	if len(objs) != 1 {
		t.Fatalf("got %d objects; want 1", len(objs))
	}

	// Disabled nodes are not materialized.
	if !r.EnableExtension("Acme.Reporters.TeamReporter", false) {
		t.Fatal("EnableExtension found no nodes")
	}
	objs, err = extensions.ExtensionsOf[*fakeReporter](r)
	if err != nil {
		t.Fatalf("ExtensionsOf failed: %v", err)
	}
	if len(objs) != 0 {
		t.Errorf("got %d objects after disable; want 0", len(objs))
	}
}

func TestEnableExtensionIdempotent(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "acme.reporter.dll", reporterExtension)

	r := newRegistry(t, hostNet)
	if err := r.Discover(context.Background(), dir); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	r.EnableExtension("Acme.Reporters.TeamReporter", true)
	r.EnableExtension("Acme.Reporters.TeamReporter", true)
	if !r.GetExtensionNodes("/Engine/Reporters")[0].Enabled() {
		t.Error("node disabled after two enable calls")
	}
}

func TestRegisterRootAssembly(t *testing.T) {
	dir := t.TempDir()
	root := write(t, dir, "engine.api.dll", `
assembly:
  name: engine.api
  version: 2.0.0
extensionPoints:
  - path: /Engine/NUnitV2Drivers
    type: Engine.IDriverFactory
    description: driver factories
typeExtensionPoints:
  - type: Engine.Services.IService
    description: engine services
`)

	r := newRegistry(t, hostNet)
	if err := r.RegisterRootAssembly(root); err != nil {
		t.Fatalf("RegisterRootAssembly failed: %v", err)
	}

	if ep := r.GetExtensionPoint("/Engine/NUnitV2Drivers"); ep == nil || ep.TypeName != "Engine.IDriverFactory" {
		t.Errorf("assembly-level point = %+v; want type Engine.IDriverFactory", ep)
	}
	if ep := r.GetExtensionPoint("/Engine/TypeExtensions/IService"); ep == nil || ep.TypeName != "Engine.Services.IService" {
		t.Errorf("type-level point = %+v; want type Engine.Services.IService", ep)
	}
	if ep, err := r.GetExtensionPointForType("Engine.Services.IService"); err != nil || ep == nil || ep.Path != "/Engine/TypeExtensions/IService" {
		t.Errorf("GetExtensionPointForType = %v, %v; want the type-level point", ep, err)
	}
}
