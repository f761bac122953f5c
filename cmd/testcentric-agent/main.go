// Copyright 2025 The TestCentric Engine Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package main implements the testcentric-agent executable, the worker
// process hosting one test binary on behalf of the engine.
package main

import (
	"context"
	"os"

	"github.com/OndrejCopak-eaton/testcentric-engine/internal/agent"
)

func main() {
	os.Exit(agent.Run(context.Background(), os.Args[1:], os.Stderr))
}
