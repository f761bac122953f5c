// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package errors_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/OndrejCopak-eaton/testcentric-engine/errors"
)

func TestNew(t *testing.T) {
	err := errors.New("meow")
	if msg := err.Error(); msg != "meow" {
		t.Errorf("Error() = %q; want %q", msg, "meow")
	}
}

func TestErrorf(t *testing.T) {
	err := errors.Errorf("meow %d", 28)
	if msg := err.Error(); msg != "meow 28" {
		t.Errorf("Error() = %q; want %q", msg, "meow 28")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("cause")
	err := errors.Wrap(cause, "context")
	if msg := err.Error(); msg != "context: cause" {
		t.Errorf("Error() = %q; want %q", msg, "context: cause")
	}
	if !errors.Is(err, cause) {
		t.Error("Is(err, cause) = false; want true")
	}
}

func TestWrapNil(t *testing.T) {
	err := errors.Wrap(nil, "context")
	if msg := err.Error(); msg != "context" {
		t.Errorf("Error() = %q; want %q", msg, "context")
	}
}

func TestFormatStack(t *testing.T) {
	err := errors.Wrap(errors.New("inner"), "outer")
	s := fmt.Sprintf("%+v", err)
	if !strings.Contains(s, "outer") || !strings.Contains(s, "inner") {
		t.Errorf("%%+v = %q; should contain both messages", s)
	}
	if !strings.Contains(s, "errors_test.TestFormatStack") {
		t.Errorf("%%+v = %q; should contain the creation site", s)
	}
}
