// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package template

import (
	"testing"

	"github.com/kestrelseq/kestrel/internal/config"
	"github.com/kestrelseq/kestrel/internal/oligo"
	"github.com/kestrelseq/kestrel/internal/tls"
)

func bases(s string) []oligo.Base {
	out := make([]oligo.Base, len(s))
	for i, c := range s {
		v, ok := oligo.Encode(byte(c))
		if !ok {
			panic("bad base")
		}
		out[i] = v
	}
	return out
}

type constRef struct {
	contigs [][]oligo.Base
}

func (r constRef) Bases(contig int) []oligo.Base { return r.contigs[contig] }

func TestReverseComplement(t *testing.T) {
	got := reverseComplement(bases("ACGT"))
	want := bases("ACGT") // palindrome under reverse-complement
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("reverseComplement(ACGT) = %v, want %v", got, want)
		}
	}
}

func TestBuildOneExactMatch(t *testing.T) {
	ref := constRef{contigs: [][]oligo.Base{bases("TTTTACGTACGTACGTACGTTTTT")}}
	opt := config.Default()
	opt.AvoidSmithWaterman = true // exercise the fixed-offset fast path
	b := &Builder{
		Config: config.BWAGapScoring,
		Opt:    opt,
		Ref:    ref,
		Arena:  &CigarArena{},
	}
	rd := Read{Bases: bases("ACGTACGTACGTACGT")}
	cand := Candidate{Contig: 0, Position: 4}
	f := b.buildOne(rd, cand, 0)
	if f.Unmapped {
		t.Fatalf("expected mapped fragment")
	}
	if f.MismatchCount != 0 {
		t.Fatalf("MismatchCount = %d, want 0", f.MismatchCount)
	}
}

func TestBuildPairNoCandidatesIsUnmapped(t *testing.T) {
	ref := constRef{contigs: [][]oligo.Base{bases("ACGTACGTACGT")}}
	b := &Builder{Config: config.BWAGapScoring, Opt: config.Default(), Ref: ref, Arena: &CigarArena{}}
	res := b.BuildPair(Read{Bases: bases("ACGT")}, Read{Bases: bases("ACGT")}, nil, nil, tls.Stats{})
	if len(res.Fragments) != 2 {
		t.Fatalf("len(Fragments) = %d, want 2", len(res.Fragments))
	}
	if !res.Fragments[0].Unmapped || !res.Fragments[1].Unmapped {
		t.Fatalf("expected both fragments unmapped")
	}
}

func TestDodgyMAPQVariants(t *testing.T) {
	cases := []struct {
		name string
		d    config.DodgyAlignmentScore
		want int
	}{
		{"unknown", config.DodgyAlignmentScore{Unknown: true}, 255},
		{"unaligned", config.DodgyAlignmentScore{Unaligned: true}, 0},
		{"fixed", config.DodgyAlignmentScore{Fixed: 37}, 37},
	}
	for _, c := range cases {
		opt := config.Default()
		opt.DodgyAlignmentScore = c.d
		if got := dodgyMAPQ(opt); got != c.want {
			t.Errorf("%s: dodgyMAPQ = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestTemplateLength(t *testing.T) {
	f1 := Fragment{Position: 100, ObservedLen: 50}
	f2 := Fragment{Position: 200, ObservedLen: 50}
	if got := templateLength(f1, f2); got != 150 {
		t.Fatalf("templateLength = %d, want 150", got)
	}
	// Order-independent.
	if got := templateLength(f2, f1); got != 150 {
		t.Fatalf("templateLength(reversed) = %d, want 150", got)
	}
}

func TestRestOfGenomeCorrectionZeroWhenFullyLoaded(t *testing.T) {
	r := RestOfGenomeCorrection{LoadedBases: 1000, GenomeBases: 1000}
	if r.Correction() != 0 {
		t.Fatalf("Correction = %d, want 0", r.Correction())
	}
}

func TestRestOfGenomeCorrectionPositiveWhenPartial(t *testing.T) {
	r := RestOfGenomeCorrection{LoadedBases: 500, GenomeBases: 1000}
	if c := r.Correction(); c <= 0 || c > 60 {
		t.Fatalf("Correction = %d, want in (0,60]", c)
	}
	want := 10 - r.Correction()
	if want < 0 {
		want = 0
	}
	if r.Apply(10) != want {
		t.Fatalf("Apply mismatch")
	}
}
