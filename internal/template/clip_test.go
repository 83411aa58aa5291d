// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package template

import (
	"testing"

	"github.com/biogo/hts/sam"
)

func newFragmentWithOps(arena *CigarArena, ops []sam.CigarOp) Fragment {
	f := Fragment{}
	f.CigarOffset, f.CigarLength = arena.Append(ops)
	return f
}

func opsEqual(a, b []sam.CigarOp) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type() != b[i].Type() || a[i].Len() != b[i].Len() {
			return false
		}
	}
	return true
}

func TestClipAdapterFindsFirstOccurrence(t *testing.T) {
	arena := &CigarArena{}
	f := newFragmentWithOps(arena, []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 20)})
	read := bases("ACGTACGTACGTAGATCGGA") // AGATCGGA adapter starting at 12
	adapters := []Adapter{{Sequence: bases("AGATCGGA")}}

	clipped := ClipAdapter(&f, arena, read, adapters)
	if !clipped {
		t.Fatalf("expected adapter clip")
	}
	if f.State != AdapterClipped {
		t.Fatalf("State = %v, want AdapterClipped", f.State)
	}
	ops := f.Cigar(arena)
	want := []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 12), sam.NewCigarOp(sam.CigarSoftClipped, 8)}
	if !opsEqual(ops, want) {
		t.Fatalf("ops = %v, want %v", ops, want)
	}
}

func TestClipAdapterNoMatchIsNoop(t *testing.T) {
	arena := &CigarArena{}
	f := newFragmentWithOps(arena, []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 8)})
	read := bases("ACGTACGT")
	adapters := []Adapter{{Sequence: bases("TTTTTTTT")}}
	if ClipAdapter(&f, arena, read, adapters) {
		t.Fatalf("expected no clip")
	}
}

func TestClipAdapterRespectsStrandBound(t *testing.T) {
	arena := &CigarArena{}
	f := newFragmentWithOps(arena, []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 12)})
	f.Reverse = true
	read := bases("ACGTACGTAGAT")
	adapters := []Adapter{{Sequence: bases("AGAT"), StrandBound: true}}
	if ClipAdapter(&f, arena, read, adapters) {
		t.Fatalf("strand-bound adapter should not apply to reverse fragment")
	}
}

func TestClipSemialignedTrimsMismatchedEnd(t *testing.T) {
	arena := &CigarArena{}
	// 20 bases: first 5 mismatch, remaining 15 match.
	read := bases("TTTTTACGTACGTACGTACG")
	ref := bases("AAAAAACGTACGTACGTACG")
	f := newFragmentWithOps(arena, []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 20)})

	clipped := ClipSemialigned(&f, arena, read, ref, 5)
	if !clipped {
		t.Fatalf("expected semialigned clip")
	}
	if f.State != SemialignedClipped {
		t.Fatalf("State = %v, want SemialignedClipped", f.State)
	}
}

func TestClipSemialignedNoopWhenAllMatch(t *testing.T) {
	arena := &CigarArena{}
	read := bases("ACGTACGTACGT")
	ref := bases("ACGTACGTACGT")
	f := newFragmentWithOps(arena, []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 12)})
	if ClipSemialigned(&f, arena, read, ref, 5) {
		t.Fatalf("expected no clip when fully matching")
	}
}

func TestClipOverlapClipsLowerQualityEnd(t *testing.T) {
	arena := &CigarArena{}
	f1 := newFragmentWithOps(arena, []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 20)})
	f1.Position, f1.ObservedLen = 100, 20
	f2 := newFragmentWithOps(arena, []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 20)})
	f2.Position, f2.ObservedLen, f2.Reverse = 110, 20, true

	clipped := ClipOverlap(&f1, &f2, arena, 30, 20)
	if !clipped {
		t.Fatalf("expected overlap clip")
	}
	if f2.State != OverlapClipped {
		t.Fatalf("lower-quality fragment f2 should be clipped, got state on f1=%v f2=%v", f1.State, f2.State)
	}
}

func TestClipOverlapNoopWhenNoOverlap(t *testing.T) {
	arena := &CigarArena{}
	f1 := newFragmentWithOps(arena, []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 10)})
	f1.Position, f1.ObservedLen = 0, 10
	f2 := newFragmentWithOps(arena, []sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 10)})
	f2.Position, f2.ObservedLen = 100, 10
	if ClipOverlap(&f1, &f2, arena, 30, 30) {
		t.Fatalf("expected no clip for non-overlapping fragments")
	}
}
