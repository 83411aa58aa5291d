// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kestrelseq/kestrel/internal/errs"
	"github.com/kestrelseq/kestrel/internal/stats"
	"github.com/kestrelseq/kestrel/internal/template"
)

// numLockStripes is the fixed mutex-array size bins share, per spec
// §4.10's "bins share a fixed array of mutexes modulo table size".
const numLockStripes = 256

// Template is the pair of fragments the selector hands to storage for
// one cluster, plus the metadata needed to route and record it.
type Template struct {
	Fragments [2]template.Fragment // only [0] is valid for single-ended
	Paired    bool
	Tile      int
	Barcode   int
	Cluster   int
	ReadQual1 []byte // ReadQual1/2 parallel quality bytes for Fragments[0]/[1]
	ReadQual2 []byte
}

// BinResolver maps a (contig, position) pair to a bin index, backed by
// internal/binindex.Map.BinOf.
type BinResolver func(contig int, pos uint64) int

// FragmentStorage is the shared interface of spec §4.10's two binning
// strategies: `{add, prepareFlush, flush, resize, close}`.
type FragmentStorage interface {
	Add(t Template, arena *template.CigarArena) error
	PrepareFlush() error
	Flush() error
	Resize(clusters int) error
	Close() ([]BinMetadata, error)
}

func category(f template.Fragment, paired bool) stats.Category {
	switch {
	case f.Unmapped:
		return stats.NoMatch
	case !paired:
		return stats.SingleEnded
	case f.Reverse:
		return stats.ReverseIndexed
	default:
		return stats.ForwardIndexed
	}
}

func packBaseQual(read []byte, reverse bool) []byte {
	if !reverse {
		return append([]byte(nil), read...)
	}
	out := make([]byte, len(read))
	for i, b := range read {
		base := (b >> 2) & 3
		qual := b & 0xfc
		out[len(read)-1-i] = qual | (3 - base)
	}
	return out
}

func fStrandPosition(f template.Fragment) uint64 {
	// Bit 0 carries strand (1 = reverse), remaining bits the position,
	// matching the packed fStrandPosition field named in spec §6.
	p := f.Position << 1
	if f.Reverse {
		p |= 1
	}
	return p
}

func recordFromFragment(f, mate template.Fragment, arena *template.CigarArena, barcode, tile, cluster, mateBin int, qual []byte, paired bool) Record {
	var flags Flags
	if paired {
		flags |= FlagPaired
	}
	if f.Reverse {
		flags |= FlagReverse
	}
	if f.Unmapped {
		flags |= FlagUnmapped
	}
	if f.SecondOfPair {
		flags |= FlagSecondRead
	}
	if f.ProperPair {
		flags |= FlagProperPair
	}
	return Record{
		FStrandPosition:     fStrandPosition(f),
		Flags:               flags,
		Barcode:             int32(barcode),
		Cluster:             int32(cluster),
		Tile:                int32(tile),
		MateFStrandPosition: fStrandPosition(mate),
		MateStorageBin:      int32(mateBin),
		GapCount:            int32(f.GapCount),
		BaseQual:            packBaseQual(qual, f.Reverse),
		Cigar:               f.Cigar(arena),
	}
}

// Binning is the direct FragmentStorage variant of spec §4.10: each
// Add call appends straight to the bin file(s) the fragment(s) resolve
// to, under a fixed stripe of mutexes.
type Binning struct {
	dir     string
	resolve BinResolver

	locks [numLockStripes]sync.Mutex

	filesMu sync.Mutex
	files   map[int]*os.File
	meta    map[int]*BinMetadata
}

// NewBinning creates a Binning variant writing bin files under dir.
func NewBinning(dir string, resolve BinResolver) *Binning {
	return &Binning{dir: dir, resolve: resolve, files: make(map[int]*os.File), meta: make(map[int]*BinMetadata)}
}

func (b *Binning) lockFor(bin int) *sync.Mutex { return &b.locks[bin%numLockStripes] }

func (b *Binning) fileFor(bin int) (*os.File, error) {
	b.filesMu.Lock()
	defer b.filesMu.Unlock()
	if f, ok := b.files[bin]; ok {
		return f, nil
	}
	path := filepath.Join(b.dir, fmt.Sprintf("bin-%06d.dat", bin))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errs.NewPath(errs.IO, "storage.Binning.fileFor", path, err)
	}
	b.files[bin] = f
	b.meta[bin] = &BinMetadata{Index: bin, Path: path}
	return f, nil
}

// recordEntry is one record awaiting a write under an already-resolved
// bin's lock.
type recordEntry struct {
	rec     Record
	barcode int
	cat     stats.Category
}

func (b *Binning) writeRecord(bin int, rec Record, barcode int, cat stats.Category) error {
	return b.writeRecords(bin, []recordEntry{{rec, barcode, cat}})
}

// writeRecords appends every entry to bin under a single acquisition of
// that bin's lock, so records written together (a pair's two fragments
// sharing a bin) land adjacent in the file with nothing else able to
// interleave, per spec §4.10 step 4.
func (b *Binning) writeRecords(bin int, entries []recordEntry) error {
	f, err := b.fileFor(bin)
	if err != nil {
		return err
	}
	l := b.lockFor(bin)
	l.Lock()
	defer l.Unlock()
	for _, e := range entries {
		data := e.rec.Marshal()
		if _, err := f.Write(data); err != nil {
			return errs.NewPath(errs.IO, "storage.Binning.writeRecords", f.Name(), err)
		}
		b.meta[bin].addRecord(e.barcode, e.cat, int(e.rec.GapCount), len(e.rec.Cigar), len(data))
	}
	return nil
}

// Add implements FragmentStorage. Single-ended templates use
// Fragments[0] only; for a paired template whose two fragments share a
// bin, both are written together under that bin's single lock to
// preserve record adjacency, as spec §4.10 step 4 requires.
func (b *Binning) Add(t Template, arena *template.CigarArena) error {
	f1 := t.Fragments[0]
	bin1 := UnalignedBin
	if !f1.Unmapped {
		bin1 = b.resolve(f1.Contig, f1.Position)
	}

	if !t.Paired {
		rec := recordFromFragment(f1, f1, arena, t.Barcode, t.Tile, t.Cluster, UnalignedBin, t.ReadQual1, false)
		return b.writeRecord(bin1, rec, t.Barcode, category(f1, false))
	}

	f2 := t.Fragments[1]
	bin2 := UnalignedBin
	if !f2.Unmapped {
		bin2 = b.resolve(f2.Contig, f2.Position)
	}

	rec1 := recordFromFragment(f1, f2, arena, t.Barcode, t.Tile, t.Cluster, bin2, t.ReadQual1, true)
	rec2 := recordFromFragment(f2, f1, arena, t.Barcode, t.Tile, t.Cluster, bin1, t.ReadQual2, true)

	if bin1 == bin2 {
		return b.writeRecords(bin1, []recordEntry{
			{rec1, t.Barcode, category(f1, true)},
			{rec2, t.Barcode, category(f2, true)},
		})
	}

	// Different bins: acquire locks in fixed (ascending bin index)
	// order to avoid deadlock between concurrent templates that
	// straddle the same two bins in opposite order.
	first, second := bin1, bin2
	firstRec, secondRec := rec1, rec2
	firstFragment, secondFragment := f1, f2
	if second < first {
		first, second = second, first
		firstRec, secondRec = secondRec, firstRec
		firstFragment, secondFragment = secondFragment, firstFragment
	}
	if err := b.writeRecord(first, firstRec, t.Barcode, category(firstFragment, true)); err != nil {
		return err
	}
	return b.writeRecord(second, secondRec, t.Barcode, category(secondFragment, true))
}

// PrepareFlush is a no-op for Binning: writes are already durable bin
// appends, so there is nothing to stage.
func (b *Binning) PrepareFlush() error { return nil }

// Flush syncs every open bin file.
func (b *Binning) Flush() error {
	b.filesMu.Lock()
	defer b.filesMu.Unlock()
	for _, f := range b.files {
		if err := f.Sync(); err != nil {
			return errs.NewPath(errs.IO, "storage.Binning.Flush", f.Name(), err)
		}
	}
	return nil
}

// Resize is a no-op for Binning: it holds no per-cluster buffers.
func (b *Binning) Resize(int) error { return nil }

// Close flushes and closes every bin file, returning their metadata.
func (b *Binning) Close() ([]BinMetadata, error) {
	b.filesMu.Lock()
	defer b.filesMu.Unlock()
	var out []BinMetadata
	for bin, f := range b.files {
		if err := f.Close(); err != nil {
			return nil, errs.NewPath(errs.IO, "storage.Binning.Close", f.Name(), err)
		}
		out = append(out, *b.meta[bin])
	}
	return out, nil
}
