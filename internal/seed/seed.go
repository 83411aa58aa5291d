// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package seed implements the seed type and seed generator of spec §4.3.
package seed

import (
	"fmt"

	"github.com/kestrelseq/kestrel/internal/oligo"
)

// ID packs (tile, barcode, cluster, seed-index, reverse?) into 64 bits
// with fixed bit widths, matching spec §3's Seed data model.
type ID uint64

const (
	tileBits      = 10
	barcodeBits   = 10
	clusterBits   = 28
	seedIndexBits = 7
	reverseBits   = 1

	reverseShift   = 0
	seedIndexShift = reverseShift + reverseBits
	clusterShift   = seedIndexShift + seedIndexBits
	barcodeShift   = clusterShift + clusterBits
	tileShift      = barcodeShift + barcodeBits

	tileMask      = 1<<tileBits - 1
	barcodeMask   = 1<<barcodeBits - 1
	clusterMask   = 1<<clusterBits - 1
	seedIndexMask = 1<<seedIndexBits - 1
	reverseMask   = 1<<reverseBits - 1

	// MaxCluster, MaxTile, MaxBarcode, MaxSeedIndex are the largest
	// values representable in each ID field.
	MaxCluster   = 1<<clusterBits - 1
	MaxTile      = 1<<tileBits - 1
	MaxBarcode   = 1<<barcodeBits - 1
	MaxSeedIndex = 1<<seedIndexBits - 1
)

// Pack builds a seed ID from its component fields. It panics if any
// field overflows its allotted bit width, since that is a configuration
// error that should be caught before seed generation begins (a flow
// cell with more tiles/clusters than the field widths support).
func Pack(tile, barcode, cluster, seedIndex int, reverse bool) ID {
	if tile < 0 || tile > MaxTile {
		panic(fmt.Sprintf("seed: tile %d out of range", tile))
	}
	if barcode < 0 || barcode > MaxBarcode {
		panic(fmt.Sprintf("seed: barcode %d out of range", barcode))
	}
	if cluster < 0 || cluster > MaxCluster {
		panic(fmt.Sprintf("seed: cluster %d out of range", cluster))
	}
	if seedIndex < 0 || seedIndex > MaxSeedIndex {
		panic(fmt.Sprintf("seed: seed index %d out of range", seedIndex))
	}
	var r uint64
	if reverse {
		r = 1
	}
	return ID(uint64(tile)<<tileShift |
		uint64(barcode)<<barcodeShift |
		uint64(cluster)<<clusterShift |
		uint64(seedIndex)<<seedIndexShift |
		r<<reverseShift)
}

func (id ID) Tile() int      { return int(uint64(id) >> tileShift & tileMask) }
func (id ID) Barcode() int   { return int(uint64(id) >> barcodeShift & barcodeMask) }
func (id ID) Cluster() int   { return int(uint64(id) >> clusterShift & clusterMask) }
func (id ID) SeedIndex() int { return int(uint64(id) >> seedIndexShift & seedIndexMask) }
func (id ID) Reverse() bool  { return uint64(id)>>reverseShift&reverseMask != 0 }

// Less reports whether id sorts before other under the canonical
// (tile, barcode, cluster, seed-index, reverse) order; this is exactly
// numeric order on the packed value, since fields are packed most- to
// least-significant in that order.
func (id ID) Less(other ID) bool { return id < other }

// Seed is (kmer_value, seed_id) per spec §3.
type Seed struct {
	Kmer oligo.Kmer
	ID   ID
}

// nKmer is the dedicated N-seed sentinel: the maximal Kmer value for a
// given width. Permuting an all-ones bit pattern by quarter-block
// rearrangement is the identity, so this sentinel sorts to the end of
// every permutation's sort order without special-casing the sort or
// join logic, and reorder restores it unchanged.
func nKmer(w oligo.Width) oligo.Kmer {
	k := oligo.Kmer{Hi: ^uint64(0), Lo: ^uint64(0)}
	bits := uint(2 * w)
	switch {
	case bits >= 128:
	case bits >= 64:
		k.Hi &= uint64(1)<<(bits-64) - 1
	default:
		k.Hi = 0
		k.Lo &= uint64(1)<<bits - 1
	}
	return k
}

// IsN reports whether k is the N-seed sentinel for width w.
func IsN(k oligo.Kmer, w oligo.Width) bool { return k == nKmer(w) }
