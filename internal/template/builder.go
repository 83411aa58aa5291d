// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package template

import (
	"github.com/biogo/hts/sam"

	"github.com/kestrelseq/kestrel/internal/config"
	"github.com/kestrelseq/kestrel/internal/match"
	"github.com/kestrelseq/kestrel/internal/oligo"
	"github.com/kestrelseq/kestrel/internal/tls"
)

// Read is one sequenced end of a cluster: its called bases, in 5'->3'
// sequencing order, and their per-base quality bytes, which
// BaseQualityCutoff trimming reads (spec §4.7 step 2).
type Read struct {
	Bases []oligo.Base
	Qual  []byte
}

// Candidate is a single seed-derived placement for one read, prior to
// alignment: a contig, strand and starting offset within the
// reference the read is believed to overlap. SeedID is the id of the
// seed that produced it, carried through only for ScatterRepeats tie
// breaking (spec §4.7 step 5).
type Candidate struct {
	Contig   int
	Position uint64
	Reverse  bool
	SeedID   uint64
}

// ReferenceView supplies the bases of a contig to the builder; callers
// back it with the loaded refidx.Contig slices.
type ReferenceView interface {
	Bases(contig int) []oligo.Base
}

// Builder builds per-cluster templates from match-derived candidates,
// implementing spec §4.7 steps 1-8.
type Builder struct {
	Config config.GapScoring
	Opt    config.Options
	Ref    ReferenceView
	Arena  *CigarArena
	ROGC   RestOfGenomeCorrection
}

// reverseComplement returns the reverse complement of bases.
func reverseComplement(bases []oligo.Base) []oligo.Base {
	out := make([]oligo.Base, len(bases))
	for i, b := range bases {
		out[len(bases)-1-i] = 3 - b // A<->T (0,3), C<->G (1,2)
	}
	return out
}

// candidateWindow returns the reference window a candidate's read
// should be aligned against, padded by the read length on both sides
// to give the gapped aligner room to place indels, clamped to the
// contig's extent (spec §4.7 step 1's "drop off-contig spans").
func (b *Builder) candidateWindow(c Candidate, readLen int) (ref []oligo.Base, windowStart uint64, ok bool) {
	bases := b.Ref.Bases(c.Contig)
	pad := readLen
	start := int(c.Position) - pad
	if start < 0 {
		start = 0
	}
	end := int(c.Position) + readLen + pad
	if end > len(bases) {
		end = len(bases)
	}
	if start >= end {
		return nil, 0, false
	}
	return bases[start:end], uint64(start), true
}

// lowQualityTrimLen returns how many bases at the 3' end of qual, in
// original 5'->3' sequencing order, are contiguously below cutoff, per
// spec §4.7 step 2. Trimming is disabled (returns 0) when cutoff is 0.
func lowQualityTrimLen(qual []byte, cutoff byte) int {
	if cutoff == 0 {
		return 0
	}
	n := 0
	for i := len(qual) - 1; i >= 0 && qual[i] < cutoff; i-- {
		n++
	}
	return n
}

// appendQualityClip records clip trimmed 3' bases as a soft-clip op,
// on whichever end of ops corresponds to the read's 3' end once
// reverse-complemented into reference orientation.
func appendQualityClip(ops []sam.CigarOp, clip int, reverse bool) []sam.CigarOp {
	if clip == 0 {
		return ops
	}
	clipOp := sam.NewCigarOp(sam.CigarSoftClipped, clip)
	if reverse {
		out := make([]sam.CigarOp, 0, len(ops)+1)
		out = append(out, clipOp)
		return append(out, ops...)
	}
	return append(ops, clipOp)
}

// semialignedMinMatch is the fixed run length spec §4.7 step 7 requires
// before a semialigned end is considered resolved.
const semialignedMinMatch = 5

// ApplySemialignedClip trims a semi-aligned fragment's ends per spec
// §4.7 step 7, rebuilding the same oriented, quality-trimmed read bases
// and reference window buildOne used to align it, so CIGAR-relative
// indexing stays consistent with any adapter clip already applied.
func (b *Builder) ApplySemialignedClip(f *Fragment, rd Read) bool {
	if f.State != SemiAligned {
		return false
	}
	clip := lowQualityTrimLen(rd.Qual, b.Opt.BaseQualityCutoff)
	trimmed := rd.Bases[:len(rd.Bases)-clip]
	readBases := trimmed
	if f.Reverse {
		readBases = reverseComplement(trimmed)
	}
	refBases := b.Ref.Bases(f.Contig)
	start := int(f.Position)
	if start > len(refBases) {
		start = len(refBases)
	}
	return ClipSemialigned(f, b.Arena, readBases, refBases[start:], semialignedMinMatch)
}

// buildOne aligns one read against one candidate placement, producing
// a Fragment in Aligned, SemiAligned, or Unaligned state. Bases trimmed
// by BaseQualityCutoff are excluded from alignment entirely and carried
// back only as a trailing (or, reverse-complemented, leading) CIGAR
// soft-clip, so the trim never competes for score or mismatch budget.
func (b *Builder) buildOne(rd Read, c Candidate, readIndex int) Fragment {
	clip := lowQualityTrimLen(rd.Qual, b.Opt.BaseQualityCutoff)
	trimmed := rd.Bases[:len(rd.Bases)-clip]

	readBases := trimmed
	if c.Reverse {
		readBases = reverseComplement(trimmed)
	}

	refWindow, windowStart, ok := b.candidateWindow(c, len(readBases))
	if !ok {
		return Fragment{ReadIndex: readIndex, Reverse: c.Reverse, State: Unaligned, Unmapped: true}
	}

	f := Fragment{ReadIndex: readIndex, Reverse: c.Reverse, Contig: c.Contig}

	if b.Opt.AvoidSmithWaterman {
		offset := int(c.Position) - int(windowStart)
		if offset < 0 {
			offset = 0
		}
		if offset > len(refWindow) {
			offset = len(refWindow)
		}
		ops, score, mm := ungappedAlign(b.Config, readBases, refWindow[offset:])
		f.CigarOffset, f.CigarLength = b.Arena.Append(appendQualityClip(ops, clip, c.Reverse))
		f.Position = windowStart + uint64(offset)
		f.Score = score
		f.MismatchCount = mm
		f.ObservedLen = len(rd.Bases)
		f.State = Aligned
		return f
	}

	ops, refStart, score, gaps, err := gappedAlign(b.Config, readBases, refWindow)
	if err != nil || len(ops) == 0 {
		return Fragment{ReadIndex: readIndex, Reverse: c.Reverse, State: Unaligned, Unmapped: true}
	}

	mm := mismatchCount(ops, readBases, refWindow[refStart:])
	state := Aligned
	if gaps > 0 {
		if gaps > 1 || mm > b.Opt.GappedMismatchesMax || b.Opt.SemialignedGapLimit <= 0 {
			state = SemiAligned
		}
	}

	f.CigarOffset, f.CigarLength = b.Arena.Append(appendQualityClip(ops, clip, c.Reverse))
	f.Position = windowStart + uint64(refStart)
	f.Score = score
	f.GapCount = gaps
	f.MismatchCount = mm
	f.ObservedLen = len(rd.Bases)
	f.State = state
	return f
}

// ungappedAlign is the fast path used when AvoidSmithWaterman is set:
// a single fixed-offset comparison with no indel search, per spec
// §4.7's fallback note for reads where gapped refinement is disabled.
func ungappedAlign(sc config.GapScoring, read, ref []oligo.Base) (ops []sam.CigarOp, score, mismatches int) {
	n := len(read)
	if n > len(ref) {
		n = len(ref)
	}
	for i := 0; i < n; i++ {
		if read[i] == ref[i] {
			score += sc.Match
		} else {
			score += sc.Mismatch
			mismatches++
		}
	}
	ops = append(ops, sam.NewCigarOp(sam.CigarMatch, n))
	if len(read) > n {
		ops = append(ops, sam.NewCigarOp(sam.CigarSoftClipped, len(read)-n))
	}
	return ops, score, mismatches
}

func mismatchCount(ops []sam.CigarOp, read, ref []oligo.Base) int {
	ri, fi := 0, 0
	mm := 0
	for _, op := range ops {
		n := op.Len()
		switch op.Type() {
		case sam.CigarMatch:
			for i := 0; i < n; i++ {
				if ri+i < len(read) && fi+i < len(ref) && read[ri+i] != ref[fi+i] {
					mm++
				}
			}
			ri += n
			fi += n
		case sam.CigarInsertion, sam.CigarSoftClipped:
			ri += n
		case sam.CigarDeletion:
			fi += n
		}
	}
	return mm
}

// scatterHash mixes a seed key into a well-distributed 64-bit value
// (the MurmurHash3 fmix64 finalizer), used by ScatterRepeats to
// pick deterministically among equally-scored tied candidates (spec
// §4.7 step 5's `hash(seed_id) mod tie_count`). Deterministic input
// gives deterministic output, matching scenario S6's "two runs over
// identical data give identical fragments".
func scatterHash(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}

// PairResult is the chosen best template for a cluster's two reads.
type PairResult struct {
	Fragments []Fragment
	MAPQ      int
	TLen      int
}

// BuildPair builds the best-scoring template for a paired cluster
// across every combination of the two reads' candidate placements,
// applying the insert-size penalty from an already-stabilized
// Estimator, and computes MAPQ from the best-vs-second-best score gap
// (spec §4.7 steps 4-6).
func (b *Builder) BuildPair(rd1, rd2 Read, cand1, cand2 []Candidate, tlStats tls.Stats) PairResult {
	type scored struct {
		f1, f2  Fragment
		score   int
		seedKey uint64
	}
	var all []scored
	for _, c1 := range cand1 {
		for _, c2 := range cand2 {
			f1 := b.buildOne(rd1, c1, 0)
			f2 := b.buildOne(rd2, c2, 1)
			f1.Paired, f2.Paired = true, true
			f2.SecondOfPair = true

			pairScore := f1.Score + f2.Score
			if !f1.Unmapped && !f2.Unmapped && f1.Contig == f2.Contig {
				tlen := templateLength(f1, f2)
				model := orientationModel(f1, f2)
				pairScore -= tls.InsertSizePenalty(tlStats, tlen, model)
			}
			all = append(all, scored{f1, f2, pairScore, c1.SeedID ^ c2.SeedID})
		}
	}
	if len(all) == 0 {
		return PairResult{Fragments: []Fragment{
			{ReadIndex: 0, Unmapped: true, State: Unaligned},
			{ReadIndex: 1, SecondOfPair: true, Unmapped: true, State: Unaligned},
		}, MAPQ: dodgyMAPQ(b.Opt)}
	}

	maxScore := all[0].score
	for _, s := range all {
		if s.score > maxScore {
			maxScore = s.score
		}
	}
	var tied []int
	for i, s := range all {
		if s.score == maxScore {
			tied = append(tied, i)
		}
	}
	best := tied[0]
	if b.Opt.ScatterRepeats && len(tied) > 1 {
		best = tied[scatterHash(all[tied[0]].seedKey)%uint64(len(tied))]
	}
	second := -1
	for i := range all {
		if i == best {
			continue
		}
		if second == -1 || all[i].score > all[second].score {
			second = i
		}
	}

	bestPair := all[best]
	mapq := mapqFromGap(bestPair.score, all, second, b.Opt)
	mapq = b.ROGC.Apply(mapq)

	tlen := 0
	if !bestPair.f1.Unmapped && !bestPair.f2.Unmapped && bestPair.f1.Contig == bestPair.f2.Contig {
		tlen = templateLength(bestPair.f1, bestPair.f2)
		bestPair.f1.ProperPair = tls.InsertSizePenalty(tlStats, tlen, orientationModel(bestPair.f1, bestPair.f2)) == 0
		bestPair.f2.ProperPair = bestPair.f1.ProperPair
	}
	bestPair.f1.MatePosition, bestPair.f1.MateContig = bestPair.f2.Position, bestPair.f2.Contig
	bestPair.f2.MatePosition, bestPair.f2.MateContig = bestPair.f1.Position, bestPair.f1.Contig

	return PairResult{Fragments: []Fragment{bestPair.f1, bestPair.f2}, MAPQ: mapq, TLen: tlen}
}

func mapqFromGap(bestScore int, all []struct {
	f1, f2  Fragment
	score   int
	seedKey uint64
}, second int, opt config.Options) int {
	if second < 0 {
		return dodgyMAPQ(opt)
	}
	gap := bestScore - all[second].score
	if gap < 0 {
		gap = 0
	}
	if gap > 60 {
		gap = 60
	}
	if gap < opt.MapqThreshold {
		return 0
	}
	return gap
}

func dodgyMAPQ(opt config.Options) int {
	d := opt.DodgyAlignmentScore
	switch {
	case d.Unknown:
		return 255
	case d.Unaligned:
		return 0
	default:
		return d.Fixed
	}
}

// templateLength is the observed template length (insert size) for a
// proper pair: the span from the leftmost mapped base to the
// rightmost, inclusive.
func templateLength(f1, f2 Fragment) int {
	start := f1.Position
	end := f2.Position + uint64(f2.ObservedLen)
	if f2.Position < f1.Position {
		start = f2.Position
		end = f1.Position + uint64(f1.ObservedLen)
	}
	return int(end - start)
}

// orientationModel classifies a pair's relative strand and order into
// one of the eight tls.Model values.
func orientationModel(f1, f2 Fragment) tls.Model {
	idx := 0
	if f1.Reverse {
		idx |= 1 << 2
	}
	if f2.Reverse {
		idx |= 1 << 1
	}
	if f2.Position < f1.Position {
		idx |= 1
	}
	// Collapse the 8-bit raw classification into the 8 named models in
	// a fixed, deterministic order; exact naming only matters for
	// grouping consistency within one run, not for any external format.
	return tls.Model(idx % 8)
}
