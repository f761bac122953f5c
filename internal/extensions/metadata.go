// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package extensions

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
)

// AssemblyMetadata is the metadata document carried by an extension
// assembly. It is read without loading any code.
type AssemblyMetadata struct {
	Assembly struct {
		// Name is the assembly simple name, unique per registry after
		// version deduplication.
		Name string `yaml:"name"`
		// Version is the assembly version, e.g. "1.2.0".
		Version string `yaml:"version"`
		// TargetFramework names the framework the assembly was built for.
		TargetFramework string `yaml:"targetFramework"`
	} `yaml:"assembly"`

	// ExtensionPoints lists assembly-level extension point declarations.
	ExtensionPoints []PointDecl `yaml:"extensionPoints"`
	// TypeExtensionPoints lists type-level extension point declarations.
	TypeExtensionPoints []TypePointDecl `yaml:"typeExtensionPoints"`
	// Extensions lists the extension types the assembly provides.
	Extensions []ExtensionDecl `yaml:"extensions"`
}

// PointDecl is an assembly-level extension point declaration.
type PointDecl struct {
	Path        string `yaml:"path"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// TypePointDecl is a type-level extension point declaration. Its path
// defaults to /Engine/TypeExtensions/<TypeName>.
type TypePointDecl struct {
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
}

// ExtensionDecl describes one extension type.
type ExtensionDecl struct {
	// Type is the full type name of the extension.
	Type string `yaml:"type"`
	// Path explicitly binds the extension to an extension point. When
	// empty, the path is deduced from the type hierarchy.
	Path string `yaml:"path"`
	// Description is a human-readable summary.
	Description string `yaml:"description"`
	// Enabled defaults to true.
	Enabled *bool `yaml:"enabled"`
	// EngineVersion is the minimum engine version the extension requires.
	EngineVersion string `yaml:"engineVersion"`
	// Implements lists the interfaces the type implements, innermost first,
	// including those inherited through other interfaces.
	Implements []string `yaml:"implements"`
	// Bases lists the base type chain, immediate base first, excluding the
	// root object type.
	Bases []string `yaml:"bases"`
	// Properties carries named property values; a name may repeat.
	Properties []PropertyDecl `yaml:"properties"`
}

// PropertyDecl is a single name/value property on an extension.
type PropertyDecl struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

// readMetadata parses the metadata document of the assembly at path.
func readMetadata(path string) (*AssemblyMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, engineerr.Wrapf(engineerr.ExtensionLoadError, err, "cannot read extension assembly %s", path)
	}
	var md AssemblyMetadata
	if err := yaml.UnmarshalStrict(data, &md); err != nil {
		return nil, engineerr.Wrapf(engineerr.ExtensionLoadError, err, "cannot read metadata of %s", path)
	}
	if md.Assembly.Name == "" {
		return nil, engineerr.Newf(engineerr.ExtensionLoadError, "%s declares no assembly name", path)
	}
	return &md, nil
}

// assemblyVersion is a dotted assembly version ordered component-wise.
type assemblyVersion [3]int

// parseAssemblyVersion parses up to three dotted numeric components.
// Malformed or missing components parse as zero.
func parseAssemblyVersion(s string) assemblyVersion {
	var v assemblyVersion
	for i, p := range strings.SplitN(s, ".", 3) {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		v[i] = n
	}
	return v
}

// less orders versions component-wise.
func (v assemblyVersion) less(o assemblyVersion) bool {
	for i := range v {
		if v[i] != o[i] {
			return v[i] < o[i]
		}
	}
	return false
}
