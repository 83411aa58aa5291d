// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package refidx implements the reference-index contract of spec §3/§4.2:
// contigs, mask-file storage, reference metadata, and the supplemented
// packed-bitset neighbor-flag format.
package refidx

import "github.com/kestrelseq/kestrel/internal/oligo"

// Contig is one reference sequence: load order, output (karyotype)
// order, name, validated bases, and BAM SQ header metadata.
type Contig struct {
	Index          int
	KaryotypeIndex int
	Name           string
	Bases          []oligo.Base

	FileOffset int64
	FileSize   int64
	ACGTCount  [4]int64

	SQAssembly string // SAM SQ "AS" field
	SQURI      string // SAM SQ "UR" field
	SQMD5      string // SAM SQ "M5" field
}

// TotalBases returns the contig's sequence length in bases.
func (c *Contig) TotalBases() int64 { return int64(len(c.Bases)) }

// ValidKaryotype reports whether the KaryotypeIndex values of contigs
// form a permutation of [0, len(contigs)), per spec §3's invariant.
func ValidKaryotype(contigs []Contig) bool {
	seen := make([]bool, len(contigs))
	for _, c := range contigs {
		if c.KaryotypeIndex < 0 || c.KaryotypeIndex >= len(contigs) {
			return false
		}
		if seen[c.KaryotypeIndex] {
			return false
		}
		seen[c.KaryotypeIndex] = true
	}
	return true
}
