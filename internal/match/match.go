// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package match implements the match finder and supporting data
// structures of spec §4.5 and §4.6.
package match

import "github.com/kestrelseq/kestrel/internal/seed"

// Position is a reference-index position record: a 64-bit value whose
// top bits carry the contig id and a neighbor flag, or one of the two
// sentinel values. It mirrors spec §3's packed mask-file position.
type Position uint64

const (
	positionValueBits = 40
	positionValueMask = 1<<positionValueBits - 1

	contigShift = positionValueBits
	contigBits  = 22
	contigMask  = 1<<contigBits - 1

	neighborBit = uint64(1) << 63

	// TooManyMatch is the sentinel position recorded when a k-mer's
	// genomic occurrence count exceeds repeatThreshold.
	TooManyMatch Position = Position(1)<<62 | Position(contigMask)<<contigShift
	// NoMatch is the sentinel position for a seed with no index entry.
	NoMatch Position = Position(1)<<61 | Position(contigMask)<<contigShift
)

// NewPosition packs a contig id, 0-based offset within the contig, and
// neighbor flag into a Position.
func NewPosition(contig int, offset uint64, hasNeighbors bool) Position {
	p := Position(offset&positionValueMask) | Position(uint64(contig)&contigMask)<<contigShift
	if hasNeighbors {
		p |= Position(neighborBit)
	}
	return p
}

func (p Position) Contig() int { return int(uint64(p) >> contigShift & contigMask) }
func (p Position) Offset() uint64 { return uint64(p) & positionValueMask }
func (p Position) HasNeighbors() bool { return uint64(p)&neighborBit != 0 }
func (p Position) IsTooManyMatch() bool { return p == TooManyMatch }
func (p Position) IsNoMatch() bool      { return p == NoMatch }
func (p Position) IsSentinel() bool     { return p.IsTooManyMatch() || p.IsNoMatch() }

// A Position carries no strand: a match's strand is the reverse flag of
// its seed ID (seed.ID.Reverse), since sentinel positions carry no
// strand.

// Match is (seed_id, reference_position) per spec §3.
type Match struct {
	SeedID   seed.ID
	Position Position
}

// Less orders matches by (tile, barcode, cluster, seed-index, position),
// the scan order the selector relies on to find per-cluster runs.
func (m Match) Less(n Match) bool {
	if m.SeedID != n.SeedID {
		return m.SeedID.Less(n.SeedID)
	}
	return m.Position < n.Position
}

// ByClusterOrder sorts a slice of Match by (tile, barcode, cluster,
// seed-index, position).
type ByClusterOrder []Match

func (s ByClusterOrder) Len() int           { return len(s) }
func (s ByClusterOrder) Less(i, j int) bool { return s[i].Less(s[j]) }
func (s ByClusterOrder) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
