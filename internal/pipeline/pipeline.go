// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package pipeline implements the three-slot tile pipeline controller of
// spec §4.11: load, compute and flush stages overlap across adjacent
// tiles, each stage holding at most one tile at a time, tiles processed
// in descending total-read-length order.
package pipeline

import (
	"sort"
	"sync"

	"github.com/kestrelseq/kestrel/internal/match"
	"github.com/kestrelseq/kestrel/internal/selector"
	"github.com/kestrelseq/kestrel/internal/storage"
)

// Tile is one unit of pipeline work: a tile identifier and its total
// read length, used only to order the queue (longest first, per spec
// §4.11's "make memory usage predictable and stream progress").
type Tile struct {
	ID              int
	TotalReadLength int
}

// Loaded is the handoff value from the load stage to the compute stage:
// a tile's matches plus a means of reading its clusters' bases.
type Loaded struct {
	Matches []match.Match
	Reads   selector.ClusterReads
}

// LoadFunc loads one tile's matches and cluster reads.
type LoadFunc func(tile Tile) (Loaded, error)

// FlushFunc is called for one tile after the controller has run
// Storage.PrepareFlush and Storage.Flush for it, and receives that
// tile's selector result.
type FlushFunc func(tile Tile, result selector.Result) error

// slot identifies one of the controller's three stages.
type slot int

const (
	slotLoad slot = iota
	slotCompute
	slotFlush
	numSlots
)

// Controller is the single mutex/condition-variable-guarded three-slot
// gate of spec §4.11. At most one tile holds each slot at a time, and
// tiles acquire a slot strictly in arrival order, so tile N+1 can start
// loading while tile N is computing and tile N-1 is flushing.
type Controller struct {
	Selector *selector.Selector
	Storage  storage.FragmentStorage
	Load     LoadFunc
	Flush    FlushFunc

	mu         sync.Mutex
	cond       *sync.Cond
	occupied   [numSlots]bool
	nextTicket [numSlots]int
	failed     error
}

// New creates a Controller ready to Run a tile queue.
func New(sel *selector.Selector, store storage.FragmentStorage, load LoadFunc, flush FlushFunc) *Controller {
	c := &Controller{Selector: sel, Storage: store, Load: load, Flush: flush}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// acquire blocks until ticket is next in line for s and s is free, then
// marks it occupied. It returns the controller's failure, if any worker
// has already reported one, without granting the slot — this is the
// "refuse new slot acquisitions" half of spec §4.11's non-cooperative
// cancellation.
func (c *Controller) acquire(s slot, ticket int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for (c.occupied[s] || c.nextTicket[s] != ticket) && c.failed == nil {
		c.cond.Wait()
	}
	if c.failed != nil {
		return c.failed
	}
	c.occupied[s] = true
	return nil
}

func (c *Controller) release(s slot, ticket int) {
	c.mu.Lock()
	c.occupied[s] = false
	c.nextTicket[s] = ticket + 1
	c.mu.Unlock()
	c.cond.Broadcast()
}

// fail records the first worker error and wakes every blocked acquire
// so remaining workers abort instead of starting new stages. Tiles
// already mid-flush are left to finish or fail on their own; no attempt
// is made to complete or discard their partial bins here, per spec
// §4.11 — that is downstream code's job when it reads BinMetadata.
func (c *Controller) fail(err error) {
	c.mu.Lock()
	if c.failed == nil {
		c.failed = err
	}
	c.mu.Unlock()
	c.cond.Broadcast()
}

// Run processes tiles in descending TotalReadLength order, one goroutine
// per tile, each goroutine passing through load, compute and flush in
// strict slot order. It returns the first error any tile's stage
// reported, after every goroutine has exited.
func (c *Controller) Run(tiles []Tile) error {
	ordered := append([]Tile(nil), tiles...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].TotalReadLength > ordered[j].TotalReadLength
	})

	var wg sync.WaitGroup
	for i, tile := range ordered {
		wg.Add(1)
		go func(ticket int, tile Tile) {
			defer wg.Done()
			c.runTile(ticket, tile)
		}(i, tile)
	}
	wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.failed
}

func (c *Controller) runTile(ticket int, tile Tile) {
	if err := c.acquire(slotLoad, ticket); err != nil {
		return
	}
	loaded, err := c.Load(tile)
	c.release(slotLoad, ticket)
	if err != nil {
		c.fail(err)
		return
	}

	if err := c.acquire(slotCompute, ticket); err != nil {
		return
	}
	result, err := c.Selector.Run(tile.ID, loaded.Matches, loaded.Reads)
	c.release(slotCompute, ticket)
	if err != nil {
		c.fail(err)
		return
	}

	if err := c.acquire(slotFlush, ticket); err != nil {
		return
	}
	err = c.flushTile(tile, result)
	c.release(slotFlush, ticket)
	if err != nil {
		c.fail(err)
		return
	}
}

func (c *Controller) flushTile(tile Tile, result selector.Result) error {
	if err := c.Storage.PrepareFlush(); err != nil {
		return err
	}
	if err := c.Storage.Flush(); err != nil {
		return err
	}
	if c.Flush != nil {
		return c.Flush(tile, result)
	}
	return nil
}
