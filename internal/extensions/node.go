// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package extensions

import (
	"sync"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
)

// ExtensionPoint is a named slot accepting extensions. Paths are unique
// across a registry.
type ExtensionPoint struct {
	// Path uniquely identifies the point, e.g. "/Engine/AgentLaunchers".
	Path string
	// TypeName is the full name of the type extensions must provide.
	TypeName string
	// Description is a human-readable summary.
	Description string

	// extensions holds the bound nodes in installation order.
	extensions []*ExtensionNode
}

// Extensions returns the bound nodes in installation order.
func (ep *ExtensionPoint) Extensions() []*ExtensionNode {
	return append([]*ExtensionNode(nil), ep.extensions...)
}

// ExtensionNode is one registered extension. The backing object is
// materialized lazily, at most once.
type ExtensionNode struct {
	// AssemblyPath is the assembly the extension came from.
	AssemblyPath string
	// AssemblyVersion is the declared assembly version.
	AssemblyVersion string
	// TypeName is the full name of the extension type.
	TypeName string
	// TargetFramework names the framework the assembly was built for.
	TargetFramework string
	// Path is the extension point the node is bound to.
	Path string
	// Description is a human-readable summary.
	Description string
	// FromWildcard marks nodes discovered through wildcard expansion.
	FromWildcard bool

	// properties is a multimap of named property values.
	properties map[string][]string

	// factory constructs the backing object; nil when no factory is
	// registered for TypeName.
	factory func() interface{}

	// mu guards the mutable fields below. The rest of the node is immutable
	// after discovery.
	mu      sync.Mutex
	enabled bool
	object  interface{}
	made    bool
}

// Enabled reports whether the node is enabled.
func (n *ExtensionNode) Enabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enabled
}

// SetEnabled toggles the node.
func (n *ExtensionNode) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Properties returns the values recorded for a property name, in
// declaration order.
func (n *ExtensionNode) Properties(name string) []string {
	return append([]string(nil), n.properties[name]...)
}

// PropertyNames returns the set of declared property names.
func (n *ExtensionNode) PropertyNames() []string {
	names := make([]string, 0, len(n.properties))
	for name := range n.properties {
		names = append(names, name)
	}
	return names
}

// ExtensionObject materializes the backing object. The first call
// constructs it through the registered factory; later calls return the same
// instance.
func (n *ExtensionNode) ExtensionObject() (interface{}, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.made {
		return n.object, nil
	}
	if n.factory == nil {
		return nil, engineerr.Newf(engineerr.ExtensionLoadError, "no factory registered for extension type %s", n.TypeName)
	}
	n.object = n.factory()
	n.made = true
	return n.object, nil
}
