// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pipeline

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/kestrelseq/kestrel/internal/selector"
	"github.com/kestrelseq/kestrel/internal/storage"
	"github.com/kestrelseq/kestrel/internal/template"
)

func memResolver(contig int, pos uint64) int { return contig + 1 }

func noopSelector(store storage.FragmentStorage) *selector.Selector {
	return &selector.Selector{
		Builders:   map[int]*template.Builder{},
		NumWorkers: 1,
		Storage:    store,
	}
}

type emptyReads struct{}

func (emptyReads) Reads(cluster int) (template.Read, template.Read, bool) {
	return template.Read{}, template.Read{}, false
}

// recorder tracks, under a mutex, the order in which tiles entered each
// stage, so tests can assert pipelining invariants without racing the
// detector.
type recorder struct {
	mu    sync.Mutex
	order []int
}

func (r *recorder) add(id int) {
	r.mu.Lock()
	r.order = append(r.order, id)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.order...)
}

func TestRunOrdersLoadStageByDescendingLength(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewBinning(dir, memResolver)
	sel := noopSelector(store)

	rec := &recorder{}
	load := func(tile Tile) (Loaded, error) {
		rec.add(tile.ID)
		return Loaded{Reads: emptyReads{}}, nil
	}

	c := New(sel, store, load, nil)
	tiles := []Tile{
		{ID: 1, TotalReadLength: 50},
		{ID: 2, TotalReadLength: 200},
		{ID: 3, TotalReadLength: 100},
	}
	if err := c.Run(tiles); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got := rec.snapshot()
	want := []int{2, 3, 1}
	if len(got) != len(want) {
		t.Fatalf("load order = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("load order = %v, want %v", got, want)
		}
	}
}

func TestRunPropagatesLoadError(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewBinning(dir, memResolver)
	sel := noopSelector(store)

	wantErr := errors.New("boom")
	load := func(tile Tile) (Loaded, error) {
		if tile.ID == 2 {
			return Loaded{}, wantErr
		}
		return Loaded{Reads: emptyReads{}}, nil
	}

	c := New(sel, store, load, nil)
	tiles := []Tile{{ID: 1, TotalReadLength: 10}, {ID: 2, TotalReadLength: 20}}
	err := c.Run(tiles)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run error = %v, want %v", err, wantErr)
	}
}

func TestRunPropagatesFlushError(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewBinning(dir, memResolver)
	sel := noopSelector(store)

	wantErr := errors.New("flush failed")
	load := func(tile Tile) (Loaded, error) {
		return Loaded{Reads: emptyReads{}}, nil
	}
	flush := func(tile Tile, result selector.Result) error {
		return wantErr
	}

	c := New(sel, store, load, flush)
	tiles := []Tile{{ID: 1, TotalReadLength: 10}}
	err := c.Run(tiles)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run error = %v, want %v", err, wantErr)
	}
}

func TestRunSucceedsWithNoTiles(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewBinning(dir, memResolver)
	sel := noopSelector(store)
	c := New(sel, store, func(Tile) (Loaded, error) { return Loaded{}, nil }, nil)
	if err := c.Run(nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

// TestRunStableForEqualLengths checks that Run's internal sort is stable for
// tiles sharing the same length, so equal-length tiles keep their
// input-slice relative order.
func TestRunStableForEqualLengths(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewBinning(dir, memResolver)
	sel := noopSelector(store)

	rec := &recorder{}
	load := func(tile Tile) (Loaded, error) {
		rec.add(tile.ID)
		return Loaded{Reads: emptyReads{}}, nil
	}
	c := New(sel, store, load, nil)
	tiles := []Tile{
		{ID: 10, TotalReadLength: 100},
		{ID: 11, TotalReadLength: 100},
		{ID: 12, TotalReadLength: 100},
	}
	if err := c.Run(tiles); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := rec.snapshot()
	sorted := append([]int(nil), got...)
	sort.Ints(sorted)
	want := []int{10, 11, 12}
	for i := range want {
		if sorted[i] != want[i] {
			t.Fatalf("unexpected tile set processed: %v", got)
		}
	}
	if got[0] != 10 || got[1] != 11 || got[2] != 12 {
		t.Fatalf("stable sort broke input order for equal-length tiles: %v", got)
	}
}
