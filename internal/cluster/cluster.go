// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cluster defines the cluster-stream types the selector consumes
// from the external base-call readers (BCL/BCL.bgzf/FASTQ/BAM), per
// spec §6 "Input — cluster stream". The readers themselves are external
// collaborators; this package only fixes the interface.
package cluster

import "github.com/kestrelseq/kestrel/internal/oligo"

// Call is one packed (base, quality) byte: bits [7:2] are the 6-bit
// quality score, bits [1:0] are the 2-bit base. A Call of 0 means N
// (quality is then meaningless and read as 0).
type Call byte

// NCall is the sentinel packed value representing an N base-call.
const NCall Call = 0

// Pack encodes a base/quality pair into a Call. isN, when true, produces
// NCall regardless of the base/quality arguments.
func Pack(base oligo.Base, quality byte, isN bool) Call {
	if isN {
		return NCall
	}
	q := quality & 0x3f
	if q == 0 {
		// Reserve the all-zero pattern for N so a real quality-0
		// call is nudged to 1; BCL quality scores are practically
		// never exactly zero for a called base.
		q = 1
	}
	return Call(q<<2 | byte(base&3))
}

// Base returns the 2-bit base and whether the call is a real base (not N).
func (c Call) Base() (oligo.Base, bool) {
	if c == NCall {
		return 0, false
	}
	return oligo.Base(c & 3), true
}

// Quality returns the 6-bit quality score, or 0 for an N call.
func (c Call) Quality() byte {
	if c == NCall {
		return 0
	}
	return byte(c>>2) & 0x3f
}

// QualityTable re-bins quality scores through a caller-supplied 256-entry
// lookup table (spec §6 qScoreBin/qScoreBinValues).
type QualityTable [256]byte

// Identity is the no-op quality table.
func Identity() *QualityTable {
	var t QualityTable
	for i := range t {
		t[i] = byte(i)
	}
	return &t
}

// Rebin returns a copy of c with its quality passed through t.
func (t *QualityTable) Rebin(c Call) Call {
	if c == NCall || t == nil {
		return c
	}
	b, _ := c.Base()
	return Pack(b, t[c.Quality()], false)
}

// Tile is one tile's dense, column-major cluster array: Calls[cluster][cycle].
type Tile struct {
	Lane, Number int
	NumClusters  int
	NumCycles    int
	Calls        [][]Call // len(Calls) == NumClusters, len(Calls[i]) == NumCycles
	PF           []bool   // pass-filter flag per cluster
	X, Y         []int32  // optional pixel coordinates per cluster, used only for stats
	Barcode      []int    // resolved barcode index per cluster
}

// TotalReadLength returns the sum of all cycles, used to order tiles in
// descending length for the pipeline controller's scheduling policy.
func (t *Tile) TotalReadLength() int {
	return t.NumClusters * t.NumCycles
}

// Read describes one read (R1, R2, index reads, ...) as a contiguous
// cycle range within a tile's cycles.
type Read struct {
	Name         string
	Offset       int // first cycle, 0-based
	Length       int
	SecondOfPair bool
}

// ReadSchedule is the ordered list of reads making up one cluster's
// cycles, derived from a use-bases-mask or supplied directly.
type ReadSchedule []Read

// Reads returns a copy of every read in the schedule, in order; Read has
// no index-read marker, so no entry is filtered out.
func (s ReadSchedule) Reads() []Read {
	out := make([]Read, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	return out
}

// PairedEnd reports whether the schedule describes two sequenced reads.
func (s ReadSchedule) PairedEnd() bool {
	n := 0
	for range s {
		n++
	}
	return n >= 2
}
