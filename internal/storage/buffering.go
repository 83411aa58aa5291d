// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kestrelseq/kestrel/internal/errs"
	"github.com/kestrelseq/kestrel/internal/stats"
	"github.com/kestrelseq/kestrel/internal/template"
)

type bufferedRecord struct {
	bin     int
	barcode int
	cat     stats.Category
	data    []byte
	gap     int
	cigar   int
}

// pageBuffer is one double-buffered page: Add calls append to the
// active half while a prior page's inactive half is flushed.
type pageBuffer struct {
	mu      sync.Mutex
	active  []bufferedRecord
	flushed []bufferedRecord
}

func (p *pageBuffer) add(r bufferedRecord) {
	p.mu.Lock()
	p.active = append(p.active, r)
	p.mu.Unlock()
}

// swap moves active into flushed and starts a fresh active slice.
func (p *pageBuffer) swap() {
	p.mu.Lock()
	p.flushed, p.active = p.active, nil
	p.mu.Unlock()
}

// Buffering is the double-buffered FragmentStorage variant of spec
// §4.10: Add calls land in a per-tile buffer page; PrepareFlush swaps
// pages, and Flush sorts the swapped-out page by bin and writes one
// bin per worker in parallel while the next tile's Add calls continue
// against the fresh active page.
type Buffering struct {
	dir     string
	resolve BinResolver
	workers int

	page *pageBuffer

	mu   sync.Mutex
	meta map[int]*BinMetadata
}

// NewBuffering creates a Buffering variant writing bin files under dir,
// flushing with up to workers parallel writers (one bin per worker).
func NewBuffering(dir string, resolve BinResolver, workers int) *Buffering {
	if workers < 1 {
		workers = 1
	}
	return &Buffering{dir: dir, resolve: resolve, workers: workers, page: &pageBuffer{}, meta: make(map[int]*BinMetadata)}
}

// Add implements FragmentStorage, buffering a template's record(s) in
// memory for the next Flush.
func (s *Buffering) Add(t Template, arena *template.CigarArena) error {
	f1 := t.Fragments[0]
	bin1 := UnalignedBin
	if !f1.Unmapped {
		bin1 = s.resolve(f1.Contig, f1.Position)
	}

	if !t.Paired {
		rec := recordFromFragment(f1, f1, arena, t.Barcode, t.Tile, t.Cluster, UnalignedBin, t.ReadQual1, false)
		data := rec.Marshal()
		s.page.add(bufferedRecord{bin: bin1, barcode: t.Barcode, cat: category(f1, false), data: data, gap: int(rec.GapCount), cigar: len(rec.Cigar)})
		return nil
	}

	f2 := t.Fragments[1]
	bin2 := UnalignedBin
	if !f2.Unmapped {
		bin2 = s.resolve(f2.Contig, f2.Position)
	}
	rec1 := recordFromFragment(f1, f2, arena, t.Barcode, t.Tile, t.Cluster, bin2, t.ReadQual1, true)
	rec2 := recordFromFragment(f2, f1, arena, t.Barcode, t.Tile, t.Cluster, bin1, t.ReadQual2, true)
	d1, d2 := rec1.Marshal(), rec2.Marshal()
	s.page.add(bufferedRecord{bin: bin1, barcode: t.Barcode, cat: category(f1, true), data: d1, gap: int(rec1.GapCount), cigar: len(rec1.Cigar)})
	s.page.add(bufferedRecord{bin: bin2, barcode: t.Barcode, cat: category(f2, true), data: d2, gap: int(rec2.GapCount), cigar: len(rec2.Cigar)})
	return nil
}

// PrepareFlush swaps the active buffer page out so Add calls for the
// next tile can proceed concurrently with Flush sorting and writing
// the swapped-out page.
func (s *Buffering) PrepareFlush() error {
	s.page.swap()
	return nil
}

// Flush sorts the prepared page by bin and writes each bin's records
// to its file, one bin per flush worker, running up to s.workers in
// parallel.
func (s *Buffering) Flush() error {
	s.page.mu.Lock()
	records := s.page.flushed
	s.page.flushed = nil
	s.page.mu.Unlock()

	if len(records) == 0 {
		return nil
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].bin < records[j].bin })

	groups := make(map[int][]bufferedRecord)
	for _, r := range records {
		groups[r.bin] = append(groups[r.bin], r)
	}

	var g errgroup.Group
	g.SetLimit(s.workers)
	for bin, recs := range groups {
		bin, recs := bin, recs
		g.Go(func() error { return s.flushBin(bin, recs) })
	}
	return g.Wait()
}

func (s *Buffering) flushBin(bin int, recs []bufferedRecord) error {
	path := filepath.Join(s.dir, fmt.Sprintf("bin-%06d.dat", bin))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errs.NewPath(errs.IO, "storage.Buffering.flushBin", path, err)
	}
	defer f.Close()

	s.mu.Lock()
	m, ok := s.meta[bin]
	if !ok {
		m = &BinMetadata{Index: bin, Path: path}
		s.meta[bin] = m
	}
	s.mu.Unlock()

	for _, r := range recs {
		if _, err := f.Write(r.data); err != nil {
			return errs.NewPath(errs.IO, "storage.Buffering.flushBin", path, err)
		}
		s.mu.Lock()
		m.addRecord(r.barcode, r.cat, r.gap, r.cigar, len(r.data))
		s.mu.Unlock()
	}
	return f.Sync()
}

// Resize is a no-op: the buffer grows on demand.
func (s *Buffering) Resize(int) error { return nil }

// Close flushes any remaining buffered records and returns every bin's
// metadata.
func (s *Buffering) Close() ([]BinMetadata, error) {
	if err := s.PrepareFlush(); err != nil {
		return nil, err
	}
	if err := s.Flush(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []BinMetadata
	for _, m := range s.meta {
		out = append(out, *m)
	}
	return out, nil
}
