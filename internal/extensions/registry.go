// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package extensions discovers and indexes engine extensions.
//
// Extension points are named slots declared by the engine and by root
// assemblies. Extensions are provided by addin assemblies found by walking
// the addins directories, honoring .addins manifests. Discovery runs exactly
// once at startup; afterwards the registry is immutable except for per-node
// enablement flags and lazily materialized extension objects.
package extensions

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/OndrejCopak-eaton/testcentric-engine/errors"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
	"github.com/OndrejCopak-eaton/testcentric-engine/internal/logging"
)

// compatibleEngineVersion is the newest extension API version this engine
// can host. Extensions declaring a later EngineVersion are skipped.
var compatibleEngineVersion = assemblyVersion{2, 0, 0}

// typeExtensionPrefix is the path prefix of type-level extension points.
const typeExtensionPrefix = "/Engine/TypeExtensions/"

// frameworkClass is a coarse classification of target frameworks used by
// the host compatibility gate.
type frameworkClass int

const (
	classUnknown frameworkClass = iota
	classNetFramework
	classNetCore
	classNetStandard
)

func classify(frameworkName string) frameworkClass {
	switch {
	case frameworkName == "":
		return classUnknown
	case strings.HasPrefix(frameworkName, ".NETStandard"), strings.HasPrefix(frameworkName, "netstandard"):
		return classNetStandard
	case strings.HasPrefix(frameworkName, ".NETCoreApp"), strings.HasPrefix(frameworkName, "netcoreapp"):
		return classNetCore
	case strings.HasPrefix(frameworkName, ".NETFramework"):
		return classNetFramework
	case strings.HasPrefix(frameworkName, "net"):
		// Compact monikers: dotted versions of 5.0 or later are netcore.
		rest := strings.TrimPrefix(frameworkName, "net")
		if dot := strings.IndexByte(rest, '.'); dot > 1 || (dot == 1 && rest[0] >= '5') {
			return classNetCore
		}
		return classNetFramework
	default:
		return classUnknown
	}
}

// candidate is an assembly admitted to the discovery arena.
type candidate struct {
	path         string
	fromWildcard bool
	md           *AssemblyMetadata
	version      assemblyVersion
}

// Registry indexes extension points and extensions.
type Registry struct {
	hostClass frameworkClass

	points    []*ExtensionPoint
	pathIndex map[string]*ExtensionPoint
	typeIndex map[string][]*ExtensionPoint
	factories map[string]func() interface{}

	// arena holds candidate assemblies in discovery order; byName maps an
	// assembly simple name to its arena index.
	arena  []*candidate
	byName map[string]int

	visited    map[string]bool
	discovered bool
	warnings   []string
}

// NewRegistry creates a registry for a host running on the given target
// framework. A .NET Standard host is rejected: it identifies a class
// library, not a runnable host.
func NewRegistry(hostFramework string) (*Registry, error) {
	class := classify(hostFramework)
	if class == classNetStandard {
		return nil, engineerr.Newf(engineerr.UnsupportedPlatform, "%s cannot host the engine", hostFramework)
	}
	if class == classUnknown {
		return nil, engineerr.Newf(engineerr.UnsupportedRuntime, "unknown host framework %q", hostFramework)
	}
	return &Registry{
		hostClass: class,
		pathIndex: map[string]*ExtensionPoint{},
		typeIndex: map[string][]*ExtensionPoint{},
		factories: map[string]func() interface{}{},
		byName:    map[string]int{},
		visited:   map[string]bool{},
	}, nil
}

// RegisterExtensionPoint declares an extension point. All points must be
// declared before Discover runs.
func (r *Registry) RegisterExtensionPoint(path, typeName, description string) error {
	if _, ok := r.pathIndex[path]; ok {
		return engineerr.Newf(engineerr.DuplicateExtensionPoint, "extension point %s declared twice", path)
	}
	ep := &ExtensionPoint{Path: path, TypeName: typeName, Description: description}
	r.points = append(r.points, ep)
	r.pathIndex[path] = ep
	r.typeIndex[typeName] = append(r.typeIndex[typeName], ep)
	return nil
}

// RegisterTypeExtensionPoint declares a type-level extension point whose
// path is derived from the type's simple name.
func (r *Registry) RegisterTypeExtensionPoint(typeName, description string) error {
	return r.RegisterExtensionPoint(typeExtensionPrefix+simpleName(typeName), typeName, description)
}

// RegisterRootAssembly reads extension point declarations from a root
// assembly's metadata document.
func (r *Registry) RegisterRootAssembly(path string) error {
	md, err := readMetadata(path)
	if err != nil {
		return err
	}
	for _, decl := range md.ExtensionPoints {
		if err := r.RegisterExtensionPoint(decl.Path, decl.Type, decl.Description); err != nil {
			return err
		}
	}
	for _, decl := range md.TypeExtensionPoints {
		if err := r.RegisterTypeExtensionPoint(decl.Type, decl.Description); err != nil {
			return err
		}
	}
	return nil
}

// RegisterFactory associates an extension type name with a constructor.
// Materializing a node of that type calls the constructor with no
// arguments.
func (r *Registry) RegisterFactory(typeName string, ctor func() interface{}) {
	r.factories[typeName] = ctor
}

// Discover scans the given addins directories. It must be called exactly
// once, after all extension points and factories are registered.
func (r *Registry) Discover(ctx context.Context, dirs ...string) error {
	if r.discovered {
		return errors.New("extension discovery already ran")
	}
	r.discovered = true

	for _, dir := range dirs {
		if err := r.processDirectory(ctx, dir, false); err != nil {
			return err
		}
	}
	for _, c := range r.arena {
		if err := r.processAssembly(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// processDirectory walks one directory. If the directory contains any
// addins manifests, only the paths they list are processed; otherwise every
// assembly in the directory is a candidate.
func (r *Registry) processDirectory(ctx context.Context, dir string, fromWildcard bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if fromWildcard {
			r.warnf(ctx, "Skipping unreadable directory %s: %v", dir, err)
			return nil
		}
		return engineerr.Wrapf(engineerr.ExtensionLoadError, err, "cannot scan addins directory %s", dir)
	}

	var manifests, assemblies []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch {
		case strings.EqualFold(filepath.Ext(e.Name()), manifestSuffix):
			manifests = append(manifests, filepath.Join(dir, e.Name()))
		case strings.EqualFold(filepath.Ext(e.Name()), ".dll"):
			assemblies = append(assemblies, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(manifests)
	sort.Strings(assemblies)

	if len(manifests) == 0 {
		for _, path := range assemblies {
			if err := r.processCandidate(ctx, path, fromWildcard); err != nil {
				return err
			}
		}
		return nil
	}

	for _, manifest := range manifests {
		mes, err := readManifest(manifest)
		if err != nil {
			return err
		}
		for _, me := range mes {
			if err := r.processManifestEntry(ctx, dir, me, fromWildcard); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) processManifestEntry(ctx context.Context, dir string, me manifestEntry, fromWildcard bool) error {
	full := me.Path
	if !filepath.IsAbs(full) {
		full = filepath.Join(dir, full)
	}
	switch {
	case me.IsWildcard:
		// Candidates found through a wildcard are tainted transitively:
		// their load failures demote to warnings.
		matches, err := filepath.Glob(strings.TrimSuffix(full, "/"))
		if err != nil {
			return engineerr.Wrapf(engineerr.ExtensionLoadError, err, "bad wildcard %q in manifest", me.Path)
		}
		for _, m := range matches {
			fi, err := os.Stat(m)
			if err != nil {
				r.warnf(ctx, "Skipping unreadable path %s: %v", m, err)
				continue
			}
			if fi.IsDir() {
				if err := r.processDirectory(ctx, m, true); err != nil {
					return err
				}
			} else if err := r.processCandidate(ctx, m, true); err != nil {
				return err
			}
		}
		return nil
	case me.IsDir:
		return r.processDirectory(ctx, strings.TrimSuffix(full, "/"), fromWildcard)
	default:
		return r.processCandidate(ctx, full, fromWildcard)
	}
}

// processCandidate reads one assembly's metadata and admits it to the
// arena, deduplicating by simple name.
func (r *Registry) processCandidate(ctx context.Context, path string, fromWildcard bool) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if r.visited[abs] {
		return nil
	}
	r.visited[abs] = true

	md, err := readMetadata(abs)
	if err != nil {
		if fromWildcard {
			r.warnf(ctx, "Skipping %s: %v", abs, err)
			return nil
		}
		return err
	}

	c := &candidate{
		path:         abs,
		fromWildcard: fromWildcard,
		md:           md,
		version:      parseAssemblyVersion(md.Assembly.Version),
	}
	if idx, ok := r.byName[md.Assembly.Name]; ok {
		prev := r.arena[idx]
		if c.version.less(prev.version) || c.version == prev.version {
			logging.Debugf(ctx, "Skipping %s: assembly %s %s already registered", abs, md.Assembly.Name, prev.md.Assembly.Version)
			return nil
		}
		logging.Debugf(ctx, "Assembly %s %s replaces version %s", md.Assembly.Name, md.Assembly.Version, prev.md.Assembly.Version)
		r.arena[idx] = c
		return nil
	}
	r.byName[md.Assembly.Name] = len(r.arena)
	r.arena = append(r.arena, c)
	return nil
}

// processAssembly applies the compatibility gates and binds the assembly's
// extensions to extension points.
func (r *Registry) processAssembly(ctx context.Context, c *candidate) error {
	if !r.canHost(classify(c.md.Assembly.TargetFramework)) {
		r.warnf(ctx, "Skipping %s: target framework %q cannot be hosted", c.path, c.md.Assembly.TargetFramework)
		return nil
	}

	for _, decl := range c.md.Extensions {
		if decl.EngineVersion != "" && compatibleEngineVersion.less(parseAssemblyVersion(decl.EngineVersion)) {
			logging.Debugf(ctx, "Skipping extension %s: requires engine version %s", decl.Type, decl.EngineVersion)
			continue
		}

		path := decl.Path
		if path == "" {
			var err error
			if path, err = r.deducePath(decl); err != nil {
				return err
			}
		}
		ep := r.pathIndex[path]
		if ep == nil {
			return engineerr.Newf(engineerr.NoExtensionPoint, "extension %s names unknown extension point %s", decl.Type, path)
		}

		enabled := decl.Enabled == nil || *decl.Enabled
		props := map[string][]string{}
		for _, p := range decl.Properties {
			props[p.Name] = append(props[p.Name], p.Value)
		}
		node := &ExtensionNode{
			AssemblyPath:    c.path,
			AssemblyVersion: c.md.Assembly.Version,
			TypeName:        decl.Type,
			TargetFramework: c.md.Assembly.TargetFramework,
			Path:            path,
			Description:     decl.Description,
			FromWildcard:    c.fromWildcard,
			properties:      props,
			factory:         r.factories[decl.Type],
			enabled:         enabled,
		}
		ep.extensions = append(ep.extensions, node)
	}
	return nil
}

// canHost applies the host framework gate: a .NET Framework host rejects
// netcore extensions; a netcore host accepts only netcore and netstandard
// extensions. Unclassified assemblies pass.
func (r *Registry) canHost(class frameworkClass) bool {
	switch r.hostClass {
	case classNetFramework:
		return class != classNetCore
	case classNetCore:
		return class == classNetCore || class == classNetStandard || class == classUnknown
	default:
		return true
	}
}

// deducePath finds the extension point for an extension with no explicit
// path. The type itself is checked first, then each implemented interface
// in declaration order, then the base chain.
func (r *Registry) deducePath(decl ExtensionDecl) (string, error) {
	names := make([]string, 0, 1+len(decl.Implements)+len(decl.Bases))
	names = append(names, decl.Type)
	names = append(names, decl.Implements...)
	names = append(names, decl.Bases...)

	for _, name := range names {
		switch pts := r.typeIndex[name]; len(pts) {
		case 0:
		case 1:
			return pts[0].Path, nil
		default:
			return "", engineerr.Newf(engineerr.AmbiguousExtensionPoint, "type %s matches multiple extension points expecting %s", decl.Type, name)
		}
	}
	return "", engineerr.Newf(engineerr.NoExtensionPoint, "no extension point accepts type %s", decl.Type)
}

// GetExtensionPoint returns the point with the given path, or nil.
func (r *Registry) GetExtensionPoint(path string) *ExtensionPoint {
	return r.pathIndex[path]
}

// GetExtensionPointForType returns the point expecting the given type name.
// An error is returned when more than one point expects the type.
func (r *Registry) GetExtensionPointForType(typeName string) (*ExtensionPoint, error) {
	switch pts := r.typeIndex[typeName]; len(pts) {
	case 0:
		return nil, nil
	case 1:
		return pts[0], nil
	default:
		return nil, engineerr.Newf(engineerr.AmbiguousExtensionPoint, "multiple extension points expect type %s", typeName)
	}
}

// ExtensionPoints returns all points in declaration order.
func (r *Registry) ExtensionPoints() []*ExtensionPoint {
	return append([]*ExtensionPoint(nil), r.points...)
}

// GetExtensionNodes returns the nodes bound to a path in installation
// order. Unknown paths yield an empty slice.
func (r *Registry) GetExtensionNodes(path string) []*ExtensionNode {
	ep := r.pathIndex[path]
	if ep == nil {
		return nil
	}
	return ep.Extensions()
}

// allNodes returns every node in installation order across points.
func (r *Registry) allNodes() []*ExtensionNode {
	var nodes []*ExtensionNode
	for _, ep := range r.points {
		nodes = append(nodes, ep.extensions...)
	}
	return nodes
}

// EnableExtension toggles every node whose type name matches. It reports
// whether any node matched.
func (r *Registry) EnableExtension(typeName string, enabled bool) bool {
	found := false
	for _, n := range r.allNodes() {
		if n.TypeName == typeName {
			n.SetEnabled(enabled)
			found = true
		}
	}
	return found
}

// Warnings returns the non-fatal problems recorded during discovery.
func (r *Registry) Warnings() []string {
	return append([]string(nil), r.warnings...)
}

func (r *Registry) warnf(ctx context.Context, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.warnings = append(r.warnings, msg)
	logging.Info(ctx, msg)
}

// simpleName returns the portion of a dotted type name after the last dot.
func simpleName(typeName string) string {
	if i := strings.LastIndexByte(typeName, '.'); i >= 0 {
		return typeName[i+1:]
	}
	return typeName
}

// ExtensionsOf materializes the enabled extension objects assignable to T,
// in installation order across all points.
func ExtensionsOf[T any](r *Registry) ([]T, error) {
	var out []T
	for _, n := range r.allNodes() {
		if !n.Enabled() {
			continue
		}
		obj, err := n.ExtensionObject()
		if err != nil {
			return nil, err
		}
		if t, ok := obj.(T); ok {
			out = append(out, t)
		}
	}
	return out, nil
}
