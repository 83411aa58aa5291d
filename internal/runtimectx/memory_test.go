// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtimectx

import (
	"testing"

	"github.com/kestrelseq/kestrel/internal/config"
	"github.com/kestrelseq/kestrel/internal/errs"
)

func TestGuardOffIgnoresAllocation(t *testing.T) {
	g := NewGuard(config.MemoryOff)
	err := g.Do("sort", func() error {
		_ = make([]byte, 1<<20)
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestGuardStrictReportsAllocation(t *testing.T) {
	g := NewGuard(config.MemoryStrict)
	var sink []byte
	err := g.Do("sort", func() error {
		sink = make([]byte, 4<<20)
		return nil
	})
	if err == nil {
		t.Fatalf("expected a violation error for a 4MiB allocation in strict mode")
	}
	var kindErr *errs.Error
	if e, ok := err.(*errs.Error); ok {
		kindErr = e
	}
	if kindErr == nil || kindErr.Kind != errs.Resource {
		t.Fatalf("err = %v, want a *errs.Error with Kind=Resource", err)
	}
	_ = sink
}

func TestGuardPropagatesFnErrorOverViolation(t *testing.T) {
	g := NewGuard(config.MemoryStrict)
	wantErr := errs.New(errs.Internal, "test", nil)
	err := g.Do("sort", func() error {
		_ = make([]byte, 1<<20)
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("Do error = %v, want the function's own error %v", err, wantErr)
	}
}

func TestGuardExitWithoutEnterIsNoop(t *testing.T) {
	g := NewGuard(config.MemoryStrict)
	if err := g.Exit(); err != nil {
		t.Fatalf("Exit without Enter: %v", err)
	}
}
