// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package filters builds the XML test filters understood by framework
// drivers.
//
// The engine treats filter content as opaque beyond well-formedness; this
// package only guarantees the envelope structure and character escaping.
package filters

import "strings"

// Empty is the filter that selects every test.
const Empty = "<filter></filter>"

// escaper rewrites characters that are significant in XML text content.
var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

// Builder accumulates test selections and an optional where-clause and
// renders them as a filter document.
type Builder struct {
	tests []string
	where string
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddTest adds a fully qualified test name to the selection.
func (b *Builder) AddTest(name string) {
	b.tests = append(b.tests, name)
}

// SelectWhere sets the where-clause. The clause must already be rendered as
// a filter element; it is embedded without modification.
func (b *Builder) SelectWhere(clause string) {
	b.where = clause
}

// Build renders the filter. Multiple test selections are joined under <or>;
// a where-clause is combined with the selections under <and>.
func (b *Builder) Build() string {
	var parts []string

	switch len(b.tests) {
	case 0:
	case 1:
		parts = append(parts, "<test>"+escaper.Replace(b.tests[0])+"</test>")
	default:
		var sb strings.Builder
		sb.WriteString("<or>")
		for _, t := range b.tests {
			sb.WriteString("<test>")
			sb.WriteString(escaper.Replace(t))
			sb.WriteString("</test>")
		}
		sb.WriteString("</or>")
		parts = append(parts, sb.String())
	}

	if b.where != "" {
		parts = append(parts, b.where)
	}

	switch len(parts) {
	case 0:
		return Empty
	case 1:
		return "<filter>" + parts[0] + "</filter>"
	default:
		return "<filter><and>" + strings.Join(parts, "") + "</and></filter>"
	}
}

// IsEmpty reports whether text is a filter that selects every test.
func IsEmpty(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || t == Empty || t == "<filter/>"
}
