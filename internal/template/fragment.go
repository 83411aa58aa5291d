// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package template implements the per-cluster template builder of spec
// §4.7: candidate fragment alignment, gapped/semialigned refinement,
// adapter and overlap clipping, pair scoring, and MAPQ.
package template

import "github.com/biogo/hts/sam"

// State is a fragment's position in the per-fragment state machine of
// spec §4.7: raw → (adapter-clipped?) → aligned|semi-aligned|unaligned
// → (semialigned-clipped?) → (overlap-clipped?) → emitted.
type State int

const (
	Raw State = iota
	AdapterClipped
	Aligned
	SemiAligned
	Unaligned
	SemialignedClipped
	OverlapClipped
	Emitted
)

// CigarArena owns the CIGAR byte buffers for every fragment built for
// one cluster. Fragments reference their CIGAR by (offset, length) into
// the arena rather than holding their own slice, avoiding
// self-referential lifetimes per spec §9's "cyclic ownership" note.
type CigarArena struct {
	ops []sam.CigarOp
}

// Append adds ops to the arena and returns the (offset, length) span
// identifying them.
func (a *CigarArena) Append(ops []sam.CigarOp) (offset, length int) {
	offset = len(a.ops)
	a.ops = append(a.ops, ops...)
	return offset, len(ops)
}

// Slice returns the CIGAR ops for the given (offset, length) span.
func (a *CigarArena) Slice(offset, length int) []sam.CigarOp {
	return a.ops[offset : offset+length]
}

// Fragment is the metadata for one end of one cluster, per spec §3.
type Fragment struct {
	ReadIndex int
	Reverse   bool
	Contig    int
	Position  uint64

	CigarOffset, CigarLength int

	MismatchCount int
	ObservedLen   int
	Score         int
	GapCount      int

	State State

	Paired      bool
	SecondOfPair bool
	ProperPair  bool
	Unmapped    bool

	MatePosition uint64
	MateContig   int
}

// Cigar returns the fragment's CIGAR ops from arena.
func (f *Fragment) Cigar(arena *CigarArena) []sam.CigarOp {
	return arena.Slice(f.CigarOffset, f.CigarLength)
}
