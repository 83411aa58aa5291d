// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package template

// RestOfGenomeCorrection is a per-barcode MAPQ correction accounting
// for the fraction of the genome not covered by the currently loaded
// reference subset. When aligning against a partial reference (e.g. a
// single chromosome extracted for testing) the second-best alignment
// score computed from that subset understates the true competition a
// full-genome search would find, inflating MAPQ; this correction
// subtracts an estimated number of MAPQ points proportional to the
// excluded fraction.
type RestOfGenomeCorrection struct {
	// LoadedBases is the total base count of the reference subset
	// actually indexed.
	LoadedBases int64
	// GenomeBases is the total base count of the organism's genome the
	// subset was drawn from. If zero, no correction is applied.
	GenomeBases int64
}

// Correction returns the number of MAPQ points to subtract.
func (r RestOfGenomeCorrection) Correction() int {
	if r.GenomeBases <= 0 || r.LoadedBases <= 0 || r.LoadedBases >= r.GenomeBases {
		return 0
	}
	excludedFraction := 1 - float64(r.LoadedBases)/float64(r.GenomeBases)
	// Scale so a fully-excluded genome (fraction -> 1, degenerate) would
	// remove the entire MAPQ range; a wholly loaded genome removes none.
	return int(excludedFraction * 60)
}

// Apply subtracts the correction from mapq, clamping at zero.
func (r RestOfGenomeCorrection) Apply(mapq int) int {
	mapq -= r.Correction()
	if mapq < 0 {
		mapq = 0
	}
	return mapq
}
