// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package template

import (
	"github.com/biogo/hts/sam"

	"github.com/kestrelseq/kestrel/internal/oligo"
)

// Adapter is one per-barcode adapter pattern, spec §4.7 step 4.
type Adapter struct {
	Sequence     []oligo.Base
	StrandBound  bool // true if the adapter only applies to the forward strand
}

// ClipAdapter marks the overhang past the first occurrence of any
// adapter as soft-clipped, replacing the fragment's trailing CIGAR ops
// with a CigarSoftClipped run. It reports whether a clip was applied.
func ClipAdapter(f *Fragment, arena *CigarArena, readBases []oligo.Base, adapters []Adapter) bool {
	best := -1
	for _, a := range adapters {
		if a.StrandBound && f.Reverse {
			continue
		}
		if i := indexAdapter(readBases, a.Sequence); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	if best < 0 {
		return false
	}
	clipFromReadOffset(f, arena, best)
	f.State = AdapterClipped
	return true
}

func indexAdapter(read, adapter []oligo.Base) int {
	if len(adapter) == 0 || len(adapter) > len(read) {
		return -1
	}
	for i := 0; i+len(adapter) <= len(read); i++ {
		match := true
		for j, b := range adapter {
			if read[i+j] != b {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// clipFromReadOffset rewrites a fragment's CIGAR so that every read
// base from readOffset onward becomes soft-clipped, leaving bases
// before it untouched.
func clipFromReadOffset(f *Fragment, arena *CigarArena, readOffset int) {
	ops := f.Cigar(arena)
	var kept []sam.CigarOp
	consumed := 0
	clippedReadBases := 0
	for _, op := range ops {
		n := op.Len()
		if !consumesRead(op.Type()) {
			if consumed >= readOffset {
				clippedReadBases += refOnlyAsClip(op.Type(), n)
				continue
			}
			kept = append(kept, op)
			continue
		}
		if consumed+n <= readOffset {
			kept = append(kept, op)
			consumed += n
			continue
		}
		keep := readOffset - consumed
		if keep > 0 {
			kept = append(kept, sam.NewCigarOp(op.Type(), keep))
		}
		clippedReadBases += n - keep
		consumed += n
	}
	if clippedReadBases > 0 {
		kept = append(kept, sam.NewCigarOp(sam.CigarSoftClipped, clippedReadBases))
	}
	f.CigarOffset, f.CigarLength = arena.Append(kept)
}

func consumesRead(t sam.CigarOpType) bool {
	switch t {
	case sam.CigarMatch, sam.CigarInsertion, sam.CigarSoftClipped, sam.CigarEqual, sam.CigarMismatch:
		return true
	default:
		return false
	}
}

// refOnlyAsClip is a no-op helper kept for symmetry with the read-only
// branch above: reference-only ops (deletions) past the clip point are
// simply dropped, contributing no clipped read bases.
func refOnlyAsClip(sam.CigarOpType, int) int { return 0 }

// ClipSemialigned trims either end of a fragment's CIGAR until at
// least minMatch consecutive matching bases are seen, per spec §4.7
// step 7.
func ClipSemialigned(f *Fragment, arena *CigarArena, readBases, refBases []oligo.Base, minMatch int) bool {
	ops := f.Cigar(arena)
	if len(ops) == 0 {
		return false
	}
	// Walk from the start clipping leading ops until minMatch
	// consecutive matches are found; then do the same from the end.
	leadClip := leadingClipLen(ops, readBases, refBases, minMatch)
	trailClip := leadingClipLen(reverseOps(ops), reverseBases(readBases), reverseBases(refBases), minMatch)

	if leadClip == 0 && trailClip == 0 {
		return false
	}
	newOps := applyEndClips(ops, leadClip, trailClip)
	f.CigarOffset, f.CigarLength = arena.Append(newOps)
	f.State = SemialignedClipped
	return true
}

func leadingClipLen(ops []sam.CigarOp, read, ref []oligo.Base, minMatch int) int {
	ri, fi := 0, 0
	run := 0
	clip := 0
	for _, op := range ops {
		n := op.Len()
		if op.Type() != sam.CigarMatch {
			if run >= minMatch {
				break
			}
			clip += readConsumed(op.Type(), n)
			continue
		}
		for i := 0; i < n; i++ {
			if ri+i < len(read) && fi+i < len(ref) && read[ri+i] == ref[fi+i] {
				run++
			} else {
				run = 0
			}
			if run >= minMatch {
				return clip + 1 - run
			}
			clip++
		}
		ri += n
		fi += n
	}
	return clip
}

func readConsumed(t sam.CigarOpType, n int) int {
	if consumesRead(t) {
		return n
	}
	return 0
}

func reverseOps(ops []sam.CigarOp) []sam.CigarOp {
	out := make([]sam.CigarOp, len(ops))
	for i, op := range ops {
		out[len(ops)-1-i] = op
	}
	return out
}

func reverseBases(b []oligo.Base) []oligo.Base {
	out := make([]oligo.Base, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func applyEndClips(ops []sam.CigarOp, lead, trail int) []sam.CigarOp {
	var out []sam.CigarOp
	if lead > 0 {
		out = append(out, sam.NewCigarOp(sam.CigarSoftClipped, lead))
	}
	remaining := clipOpsBy(ops, lead, trail)
	out = append(out, remaining...)
	if trail > 0 {
		out = append(out, sam.NewCigarOp(sam.CigarSoftClipped, trail))
	}
	return out
}

// clipOpsBy drops lead read-bases from the front and trail read-bases
// from the back of ops, returning what remains (reference-only ops
// such as deletions at either exposed edge are dropped too).
func clipOpsBy(ops []sam.CigarOp, lead, trail int) []sam.CigarOp {
	total := 0
	for _, op := range ops {
		total += readConsumed(op.Type(), op.Len())
	}
	keepFrom, keepTo := lead, total-trail
	if keepTo < keepFrom {
		keepTo = keepFrom
	}
	var out []sam.CigarOp
	pos := 0
	for _, op := range ops {
		n := op.Len()
		if !consumesRead(op.Type()) {
			if pos >= keepFrom && pos < keepTo {
				out = append(out, op)
			}
			continue
		}
		start, end := pos, pos+n
		lo, hi := start, end
		if lo < keepFrom {
			lo = keepFrom
		}
		if hi > keepTo {
			hi = keepTo
		}
		if hi > lo {
			out = append(out, sam.NewCigarOp(op.Type(), hi-lo))
		}
		pos += n
	}
	return out
}

// ClipOverlap soft-clips the overlapping region of the lower-quality
// end when two fragments of a proper pair overlap, per spec §4.7 step
// 8. quality1/quality2 are mean base qualities used to decide which
// end yields.
func ClipOverlap(f1, f2 *Fragment, arena *CigarArena, quality1, quality2 float64) bool {
	if f1.Contig != f2.Contig || f1.Unmapped || f2.Unmapped {
		return false
	}
	end1 := f1.Position + uint64(f1.ObservedLen)
	end2 := f2.Position + uint64(f2.ObservedLen)
	overlapStart := f1.Position
	if f2.Position > overlapStart {
		overlapStart = f2.Position
	}
	overlapEnd := end1
	if end2 < overlapEnd {
		overlapEnd = end2
	}
	if overlapEnd <= overlapStart {
		return false
	}
	overlap := int(overlapEnd - overlapStart)

	loser := f1
	if quality2 < quality1 {
		loser = f2
	}

	if loser.Reverse {
		clipOpsByInPlace(loser, arena, 0, overlap)
	} else {
		clipOpsByInPlace(loser, arena, overlap, 0)
	}
	loser.State = OverlapClipped
	return true
}

func clipOpsByInPlace(f *Fragment, arena *CigarArena, lead, trail int) {
	ops := f.Cigar(arena)
	newOps := applyEndClips(ops, lead, trail)
	f.CigarOffset, f.CigarLength = arena.Append(newOps)
}
