// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import "github.com/biogo/store/step"

// count is a step.Equaler wrapping a per-position match tally, the
// element type stored in a Distribution's per-contig step.Vector.
type count int

func (c count) Equal(e step.Equaler) bool {
	o, ok := e.(count)
	return ok && c == o
}

// Distribution is the coarse per-contig match-position histogram of
// spec §4.6, gathered during a lightweight dry-run pass and later used
// to derive the output BinIndexMap. Per-position hit counts are held in
// a step.Vector (a run-length-encoded value-per-position structure),
// mirroring cmd/cmpint/main.go's use of step.Vector to accumulate
// per-base annotation tallies; BuildOutputBins folds the runs into the
// fixed-width coarse buckets the bin-boundary algorithm needs.
type Distribution struct {
	binSize uint64
	vecs    []*step.Vector
	lengths []uint64
}

// NewDistribution allocates a Distribution over numContigs contigs,
// each contigLen[i] bases long, with coarse buckets of binSize bases.
func NewDistribution(contigLen []uint64, binSize uint64) *Distribution {
	if binSize == 0 {
		binSize = 1
	}
	d := &Distribution{binSize: binSize, vecs: make([]*step.Vector, len(contigLen)), lengths: contigLen}
	for i, n := range contigLen {
		length := int(n)
		if length < 1 {
			length = 1
		}
		v, err := step.New(0, length, count(0))
		if err != nil {
			panic(err) // only fails on invalid length, a programmer error
		}
		d.vecs[i] = v
	}
	return d
}

// Add records one match at position offset on contig.
func (d *Distribution) Add(contig int, offset uint64) {
	if contig < 0 || contig >= len(d.vecs) {
		return
	}
	start := int(offset)
	end := start + 1
	if end > d.vecs[contig].Len() {
		return
	}
	err := d.vecs[contig].ApplyRange(start, end, func(e step.Equaler) step.Equaler {
		return e.(count) + 1
	})
	if err != nil {
		panic(err)
	}
}

// AddPosition is a convenience wrapper over Add for an ordinary
// (non-sentinel) Position.
func (d *Distribution) AddPosition(p Position) {
	if p.IsSentinel() {
		return
	}
	d.Add(p.Contig(), p.Offset())
}

// Contigs returns the number of contigs the distribution covers.
func (d *Distribution) Contigs() int { return len(d.vecs) }

// Bins folds the step-vector runs for contig into fixed binSize-wide
// coarse buckets, returning one count per bucket.
func (d *Distribution) Bins(contig int) []int {
	v := d.vecs[contig]
	n := uint64(v.Len())
	nb := n / d.binSize
	if n%d.binSize != 0 {
		nb++
	}
	buckets := make([]int, nb)
	v.Do(func(start, end int, e step.Equaler) {
		c := int(e.(count))
		if c == 0 {
			return
		}
		for pos := start; pos < end; pos++ {
			buckets[uint64(pos)/d.binSize] += c
		}
	})
	return buckets
}

// BinSize returns the fixed coarse-bin width in bases.
func (d *Distribution) BinSize() uint64 { return d.binSize }

// OutputBin is one entry of the output-bin map built from a
// Distribution: a contiguous, single-contig half-open genomic interval
// together with the total coarse match count assigned to it.
type OutputBin struct {
	Contig     int
	Start, End uint64 // [Start, End) in bases
	Count      int
}

// BuildOutputBins closes a bin and starts a new one whenever adding the
// next coarse bucket's count would exceed outputBinSize, never letting a
// bin cross a contig boundary. Bin index 0 is reserved for the unaligned
// bin by the caller; BuildOutputBins only returns the aligned bins,
// which the caller numbers starting at 1.
func (d *Distribution) BuildOutputBins(outputBinSize int) []OutputBin {
	var out []OutputBin
	for contig := range d.vecs {
		buckets := d.Bins(contig)
		var cur *OutputBin
		for i, c := range buckets {
			start := uint64(i) * d.binSize
			end := start + d.binSize
			if cur != nil && cur.Count+c > outputBinSize {
				out = append(out, *cur)
				cur = nil
			}
			if cur == nil {
				cur = &OutputBin{Contig: contig, Start: start, End: end}
			}
			cur.Count += c
			cur.End = end
		}
		if cur != nil {
			out = append(out, *cur)
		}
	}
	return out
}
