// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package command_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/command"
)

func TestWriteErrorStatusError(t *testing.T) {
	var buf bytes.Buffer
	err := command.NewStatusErrorf(7, "seven %s", "failures")
	if status := command.WriteError(&buf, err); status != 7 {
		t.Errorf("WriteError = %d; want 7", status)
	}
	if got := buf.String(); got != "seven failures\n" {
		t.Errorf("output = %q; want %q", got, "seven failures\n")
	}
}

func TestWriteErrorPlainError(t *testing.T) {
	var buf bytes.Buffer
	if status := command.WriteError(&buf, errors.New("boom")); status != 1 {
		t.Errorf("WriteError = %d; want 1", status)
	}
	if got := buf.String(); got != "boom\n" {
		t.Errorf("output = %q; want %q", got, "boom\n")
	}
}

func TestStatus(t *testing.T) {
	if got := command.NewStatusErrorf(3, "x").Status(); got != 3 {
		t.Errorf("Status() = %d; want 3", got)
	}
}
