// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package runtimectx

import (
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/kestrelseq/kestrel/internal/config"
	"github.com/kestrelseq/kestrel/internal/errs"
)

// Guard is the malloc-block stand-in of spec §5's "Memory discipline":
// it wraps a caller-chosen critical section and reports whether any
// heap growth happened while the section was active. cmd/kestrel guards
// only the binindex.Build call; the parallel sorts in internal/psort
// and internal/match run outside any Guard section.
//
// Go has no malloc hook to intercept individual allocations, so Guard
// approximates the original's exact interception with a before/after
// sample of runtime.MemStats.TotalAlloc around the guarded section.
// That is coarser than a true allocator hook — a goroutine outside the
// guarded section can allocate concurrently and be misattributed — but
// it catches an accidental allocation newly introduced into the guarded
// code path.
type Guard struct {
	mode config.MemoryControl

	mu       sync.Mutex
	active   bool
	label    string
	baseline uint64
}

// NewGuard creates a Guard that reacts to violations according to mode.
func NewGuard(mode config.MemoryControl) *Guard {
	return &Guard{mode: mode}
}

// Enter marks the start of a critical section labeled label. Only one
// section may be active at a time; callers nest by labeling distinct
// phases, not by calling Enter re-entrantly.
func (g *Guard) Enter(label string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.mode == config.MemoryOff {
		g.active = true
		g.label = label
		return
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	g.active = true
	g.label = label
	g.baseline = ms.TotalAlloc
}

// Exit ends the active critical section and reports a violation per
// the configured MemoryControl: ignored when off, logged when warning,
// returned as a Resource error when strict.
func (g *Guard) Exit() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return nil
	}
	g.active = false
	if g.mode == config.MemoryOff {
		return nil
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	delta := ms.TotalAlloc - g.baseline
	if delta == 0 {
		return nil
	}
	switch g.mode {
	case config.MemoryWarn:
		log.Printf("runtimectx: %d bytes allocated during blocked section %q", delta, g.label)
		return nil
	case config.MemoryStrict:
		return errs.New(errs.Resource, "runtimectx.Guard.Exit",
			fmt.Errorf("%d bytes allocated during blocked section %q", delta, g.label))
	default:
		return nil
	}
}

// Do runs fn inside a guarded section labeled label, returning fn's
// error or, if fn succeeds, any violation Exit reports.
func (g *Guard) Do(label string, fn func() error) error {
	g.Enter(label)
	err := fn()
	if exitErr := g.Exit(); exitErr != nil && err == nil {
		err = exitErr
	}
	return err
}
