// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package binindex implements the BinIndexMap of spec §3/§4.6: a
// function from reference position to output bin index, built from a
// match.Distribution and an outputBinSize.
package binindex

import (
	"fmt"

	"github.com/biogo/store/interval"

	"github.com/kestrelseq/kestrel/internal/errs"
	"github.com/kestrelseq/kestrel/internal/match"
)

// Unaligned is the reserved bin index for unmapped fragments.
const Unaligned = 0

// Map resolves a (contig, position) pair to an output bin index.
// Index 0 is reserved for the unaligned bin; aligned bins are numbered
// from 1 in contig, then position, order.
type Map struct {
	trees  []interval.IntTree
	bins   []match.OutputBin
	starts []int // starts[c] is the first bin index (>=1) on contig c
}

// Build constructs a Map from the output bins produced by
// match.Distribution.BuildOutputBins, which are assumed sorted by
// (contig, start) and non-overlapping within a contig.
func Build(outputBins []match.OutputBin, numContigs int) (*Map, error) {
	m := &Map{
		trees:  make([]interval.IntTree, numContigs),
		bins:   outputBins,
		starts: make([]int, numContigs),
	}

	nextID := 1
	contigStart := -1
	for i, b := range outputBins {
		if b.Contig < 0 || b.Contig >= numContigs {
			return nil, errs.New(errs.Internal, "binindex.Build", fmt.Errorf("bin %d: contig %d out of range", i, b.Contig))
		}
		if b.Contig != contigStart {
			m.starts[b.Contig] = nextID
			contigStart = b.Contig
		}
		iv := binInterval{id: uintptr(nextID), start: int(b.Start), end: int(b.End)}
		if err := m.trees[b.Contig].Insert(iv, true); err != nil {
			return nil, errs.New(errs.Internal, "binindex.Build", err)
		}
		nextID++
	}
	for c := range m.trees {
		m.trees[c].AdjustRanges()
	}
	return m, nil
}

// BinOf returns the output bin index for position pos on contig.
// Positions with no covering bin (outside the built range) fall back to
// the unaligned bin.
func (m *Map) BinOf(contig int, pos uint64) int {
	if contig < 0 || contig >= len(m.trees) {
		return Unaligned
	}
	q := binInterval{start: int(pos), end: int(pos) + 1}
	hits := m.trees[contig].Get(q)
	if len(hits) == 0 {
		return Unaligned
	}
	return int(hits[0].ID())
}

// NumBins returns the total number of bins, including the reserved
// unaligned bin.
func (m *Map) NumBins() int { return len(m.bins) + 1 }

type binInterval struct {
	id         uintptr
	start, end int
}

func (b binInterval) Overlap(r interval.IntRange) bool {
	return b.start < r.End && r.Start < b.end
}
func (b binInterval) ID() uintptr { return b.id }
func (b binInterval) Range() interval.IntRange {
	return interval.IntRange{Start: b.start, End: b.end}
}
