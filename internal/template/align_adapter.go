// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package template

import (
	"github.com/biogo/biogo/align"
	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/seq/linear"
	"github.com/biogo/hts/sam"

	"github.com/kestrelseq/kestrel/internal/config"
	"github.com/kestrelseq/kestrel/internal/oligo"
)

// gapScorer builds the align.SW scoring matrix for a config.GapScoring
// scheme. align.SW takes a linear gap-open cost and a substitution
// matrix indexed by the four-letter DNA alphabet; mismatches and
// matches both come from that matrix, so gap-extend is applied
// separately by gappedAlign once the raw alignment is scored (spec §4.7
// step 3). The scheme's MinExtend value is not used by the aligner.
func gapScorer(sc config.GapScoring) align.SW {
	m := make([][]int, 4)
	for i := range m {
		m[i] = make([]int, 4)
		for j := range m[i] {
			if i == j {
				m[i][j] = sc.Match
			} else {
				m[i][j] = sc.Mismatch
			}
		}
	}
	return align.SW{Matrix: m, GapOpen: sc.GapOpen}
}

// baseLetters maps an oligo.Base to the DNA alphabet's letter.
var baseLetters = [4]alphabet.Letter{'A', 'C', 'G', 'T'}

func toSeq(name string, bases []oligo.Base) *linear.Seq {
	letters := make(alphabet.Letters, len(bases))
	for i, b := range bases {
		letters[i] = baseLetters[b&3]
	}
	s := linear.NewSeq(name, letters, alphabet.DNAgapped)
	return s
}

// gappedAlign scores a gapped alignment of read against ref using the
// configured scoring scheme, returning the resulting CIGAR ops (query
// orientation: read consuming M/I, reference consuming M/D), the
// alignment score, and the number of gap-opening events.
//
// Grounded on align.SW's feat.Pair-block result: each returned pair
// covers a run where both sides advance together (a match/mismatch
// run, folded into one CigarMatch op since the CIGAR M code does not
// distinguish the two), or where only one side advances (a gap).
func gappedAlign(sc config.GapScoring, read, ref []oligo.Base) (ops []sam.CigarOp, refStart, score, gapCount int, err error) {
	aligner := gapScorer(sc)
	a := toSeq("ref", ref)
	b := toSeq("read", read)
	pairs, alnErr := aligner.Align(a, b)
	if alnErr != nil {
		return nil, 0, 0, 0, alnErr
	}
	if len(pairs) == 0 {
		return nil, 0, 0, 0, nil
	}
	refStart = pairs[0].Features()[0].Start()

	for _, p := range pairs {
		fs := p.Features()
		refRun := fs[0].Len()
		readRun := fs[1].Len()
		switch {
		case refRun == readRun && refRun > 0:
			ops = append(ops, sam.NewCigarOp(sam.CigarMatch, refRun))
			score += matchRunScore(sc, read, ref, fs[1].Start(), fs[0].Start(), refRun)
		case refRun == 0 && readRun > 0:
			ops = append(ops, sam.NewCigarOp(sam.CigarInsertion, readRun))
			score += sc.GapOpen + sc.GapExtend*readRun
			gapCount++
		case readRun == 0 && refRun > 0:
			ops = append(ops, sam.NewCigarOp(sam.CigarDeletion, refRun))
			score += sc.GapOpen + sc.GapExtend*refRun
			gapCount++
		}
	}
	return ops, refStart, score, gapCount, nil
}

func matchRunScore(sc config.GapScoring, read, ref []oligo.Base, readStart, refStart, n int) int {
	s := 0
	for i := 0; i < n; i++ {
		if read[readStart+i] == ref[refStart+i] {
			s += sc.Match
		} else {
			s += sc.Mismatch
		}
	}
	return s
}
