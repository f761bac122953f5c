// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package extensions

import (
	"bufio"
	"os"
	"strings"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/engineerr"
)

// manifestSuffix is the extension of addins-manifest files.
const manifestSuffix = ".addins"

// manifestEntry is one non-blank line of an addins manifest.
type manifestEntry struct {
	// Path is the entry with backslashes normalized to forward slashes.
	Path string
	// IsDir reports directory-scan semantics (trailing slash).
	IsDir bool
	// IsWildcard reports that the entry needs glob expansion.
	IsWildcard bool
}

// readManifest parses an addins manifest file.
//
// Grammar: one entry per line; a '#' starts a comment running to the end of
// the line; blank lines are ignored. An entry ending in '/' is a directory,
// an entry containing '*' is a wildcard, anything else names an assembly.
func readManifest(path string) ([]manifestEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, engineerr.Wrapf(engineerr.ExtensionLoadError, err, "cannot open manifest %s", path)
	}
	defer f.Close()

	var entries []manifestEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		line = strings.ReplaceAll(line, `\`, "/")
		entries = append(entries, manifestEntry{
			Path:       line,
			IsDir:      strings.HasSuffix(line, "/"),
			IsWildcard: strings.Contains(line, "*"),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, engineerr.Wrapf(engineerr.ExtensionLoadError, err, "cannot read manifest %s", path)
	}
	return entries, nil
}
