// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtimectx

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kestrelseq/kestrel/internal/config"
)

func TestPathsResolvePrefersInstallDir(t *testing.T) {
	dir := t.TempDir()
	helper := filepath.Join(dir, "helper-tool")
	if err := os.WriteFile(helper, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	p := &Paths{InstallDir: dir}
	got, err := p.Resolve("helper-tool")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != helper {
		t.Fatalf("Resolve = %q, want %q", got, helper)
	}
}

func TestPathsResolveFallsBackToPATH(t *testing.T) {
	p := &Paths{InstallDir: t.TempDir()}
	got, err := p.Resolve("ls")
	if err != nil {
		t.Skipf("no ls on PATH in this environment: %v", err)
	}
	if got == "" {
		t.Fatalf("Resolve returned empty path")
	}
}

func TestNewBundlesGuardAndPaths(t *testing.T) {
	opt := config.Default()
	ctx := New(opt, "/opt/kestrel")
	if ctx.Guard == nil || ctx.Paths == nil {
		t.Fatalf("New left a nil field: %+v", ctx)
	}
	if ctx.Paths.InstallDir != "/opt/kestrel" {
		t.Fatalf("InstallDir = %q, want /opt/kestrel", ctx.Paths.InstallDir)
	}
}
