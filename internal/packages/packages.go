// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package packages defines TestPackage, the unit of work handed to the
// engine.
//
// A package is either a leaf, naming one test binary on disk, or an
// aggregate grouping an ordered list of sub-packages. Settings added to an
// aggregate propagate to its sub-packages unless a sub-package overrides
// them.
package packages

import (
	"fmt"
	"path/filepath"
	"strconv"
	"sync/atomic"
)

// Recognized setting names.
const (
	SettingTargetRuntimeFramework   = "TargetRuntimeFramework"
	SettingImageTargetFrameworkName = "ImageTargetFrameworkName"
	SettingImageTestFrameworkRef    = "ImageTestFrameworkReference"
	SettingImageRequiresX86         = "ImageRequiresX86"
	SettingRunAsX86                 = "RunAsX86"
	SettingDebugTests               = "DebugTests"
	SettingDebugAgent               = "DebugAgent"
	SettingInternalTraceLevel       = "InternalTraceLevel"
	SettingLoadUserProfile          = "LoadUserProfile"
	SettingWorkDirectory            = "WorkDirectory"
	SettingSkipNonTestAssemblies    = "SkipNonTestAssemblies"
)

// nextID is the source of process-unique package ids.
var nextID uint64

// TestPackage is a request to execute one or more test binaries.
type TestPackage struct {
	// ID uniquely identifies the package within this process.
	ID string
	// Name is the file name portion of FullName, empty for an anonymous
	// aggregate.
	Name string
	// FullName is the full path of the binary for a leaf package, empty for
	// an aggregate.
	FullName string
	// SubPackages holds the ordered sub-packages of an aggregate, nil for a
	// leaf.
	SubPackages []*TestPackage
	// Settings maps setting names to scalar values.
	Settings map[string]interface{}
}

// New creates a package for the given binary paths. A single path yields a
// leaf package; multiple paths yield an anonymous aggregate with one leaf
// sub-package per path.
func New(paths ...string) *TestPackage {
	if len(paths) == 1 {
		return newLeaf(paths[0])
	}
	p := &TestPackage{ID: allocateID(), Settings: map[string]interface{}{}}
	for _, path := range paths {
		p.SubPackages = append(p.SubPackages, newLeaf(path))
	}
	return p
}

func newLeaf(path string) *TestPackage {
	full, err := filepath.Abs(path)
	if err != nil {
		full = path
	}
	return &TestPackage{
		ID:       allocateID(),
		Name:     filepath.Base(full),
		FullName: full,
		Settings: map[string]interface{}{},
	}
}

func allocateID() string {
	return strconv.FormatUint(atomic.AddUint64(&nextID, 1), 10)
}

// IsLeaf reports whether p names a binary rather than grouping sub-packages.
func (p *TestPackage) IsLeaf() bool {
	return len(p.SubPackages) == 0
}

// AddSubPackage appends sub to p's sub-package list and copies p's settings
// into it, keeping values sub has already overridden.
func (p *TestPackage) AddSubPackage(sub *TestPackage) {
	p.SubPackages = append(p.SubPackages, sub)
	for name, value := range p.Settings {
		if _, ok := sub.Settings[name]; !ok {
			sub.setSetting(name, value)
		}
	}
}

// AddSetting sets a setting on p and, recursively, on every sub-package
// that has not overridden it.
func (p *TestPackage) AddSetting(name string, value interface{}) {
	p.setSetting(name, value)
	for _, sub := range p.SubPackages {
		if _, ok := sub.Settings[name]; !ok {
			sub.AddSetting(name, value)
		}
	}
}

func (p *TestPackage) setSetting(name string, value interface{}) {
	if p.Settings == nil {
		p.Settings = map[string]interface{}{}
	}
	p.Settings[name] = value
}

// GetSetting returns the value of a setting, or def if unset.
func (p *TestPackage) GetSetting(name string, def interface{}) interface{} {
	if v, ok := p.Settings[name]; ok {
		return v
	}
	return def
}

// StringSetting returns a setting converted to a string, or def if unset.
func (p *TestPackage) StringSetting(name, def string) string {
	v, ok := p.Settings[name]
	if !ok {
		return def
	}
	return fmt.Sprint(v)
}

// BoolSetting returns a setting converted to a bool, or def if unset or not
// convertible.
func (p *TestPackage) BoolSetting(name string, def bool) bool {
	switch v := p.Settings[name].(type) {
	case nil:
		return def
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}

// Select returns the leaf packages under p, in depth-first order. A leaf
// package selects itself.
func (p *TestPackage) Select() []*TestPackage {
	if p.IsLeaf() {
		return []*TestPackage{p}
	}
	var leaves []*TestPackage
	for _, sub := range p.SubPackages {
		leaves = append(leaves, sub.Select()...)
	}
	return leaves
}
