// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import (
	"testing"

	"github.com/kestrelseq/kestrel/internal/oligo"
	"github.com/kestrelseq/kestrel/internal/seed"
)

// memMaskFile is an in-memory MaskFile used by tests, serving
// pre-sorted records from a slice.
type memMaskFile struct {
	recs []RefRecord
	pos  int
}

func (m *memMaskFile) Next() (RefRecord, bool, error) {
	if m.pos >= len(m.recs) {
		return RefRecord{}, false, nil
	}
	r := m.recs[m.pos]
	m.pos++
	return r, true, nil
}

func (m *memMaskFile) Close() error { return nil }

func kmerOf(t *testing.T, s string, w oligo.Width) oligo.Kmer {
	t.Helper()
	k, ok := oligo.FromBases([]byte(s), w)
	if !ok {
		t.Fatalf("FromBases(%q): invalid bases", s)
	}
	return k
}

func TestFindExactMatch(t *testing.T) {
	w := oligo.W16
	refSeq := "AAAACCCCGGGGTTTT"
	k := kmerOf(t, refSeq, w)

	s := seed.Seed{Kmer: k, ID: seed.Pack(0, 0, 0, 0, false)}

	opener := func(permName string, prefix uint64, maskWidth uint) (MaskFile, error) {
		perm := permOf(permName)
		permKmer := perm.Apply(k, w)
		return &memMaskFile{recs: []RefRecord{
			{Kmer: permKmer, Position: NewPosition(3, 1000, false)},
		}}, nil
	}

	matches, err := Find([]seed.Seed{s}, opener, Options{Width: w, MaskWidth: 8, RepeatThreshold: 10, Threads: 2})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	count := 0
	for _, m := range matches {
		if m.SeedID == s.ID && m.Position.Contig() == 3 && m.Position.Offset() == 1000 {
			count++
		}
	}
	if count == 0 {
		t.Fatalf("expected exact match to be found under at least one permutation, got %d hits total (all matches: %+v)", count, matches)
	}
}

func TestFindEmitsTooManyMatchForClusterWithNoMatch(t *testing.T) {
	w := oligo.W16
	refSeq := "AAAACCCCGGGGTTTT"
	k := kmerOf(t, refSeq, w)
	s := seed.Seed{Kmer: k, ID: seed.Pack(0, 0, 0, 0, false)}

	opener := func(permName string, prefix uint64, maskWidth uint) (MaskFile, error) {
		perm := permOf(permName)
		permKmer := perm.Apply(k, w)
		return &memMaskFile{recs: []RefRecord{
			{Kmer: permKmer, Position: TooManyMatch},
		}}, nil
	}

	matches, err := Find([]seed.Seed{s}, opener, Options{Width: w, MaskWidth: 8, RepeatThreshold: 10, Threads: 1})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	sentinels := 0
	for _, m := range matches {
		if m.Position.IsTooManyMatch() {
			sentinels++
		}
	}
	if sentinels == 0 {
		t.Fatalf("expected at least one TooManyMatch sentinel, got none")
	}
}

func TestFindRejectsOutOfOrderMaskFile(t *testing.T) {
	w := oligo.W16
	refSeq := "AAAACCCCGGGGTTTT"
	k := kmerOf(t, refSeq, w)
	other := kmerOf(t, "TTTTGGGGCCCCAAAA", w)
	s := seed.Seed{Kmer: k, ID: seed.Pack(0, 0, 0, 0, false)}

	opener := func(permName string, prefix uint64, maskWidth uint) (MaskFile, error) {
		return &memMaskFile{recs: []RefRecord{
			{Kmer: other, Position: NewPosition(0, 1, false)},
			{Kmer: k, Position: NewPosition(0, 2, false)},
		}}, nil
	}
	// other > k under ABCD's identity ordering when k sorts before other,
	// forcing an out-of-order sequence for at least the ABCD pass.
	if !k.Less(other) {
		t.Skip("fixture ordering assumption violated")
	}

	_, err := Find([]seed.Seed{s}, opener, Options{Width: w, MaskWidth: 8, RepeatThreshold: 10, Threads: 1})
	if err == nil {
		t.Fatalf("expected error for out-of-order mask file")
	}
}

func permOf(name string) oligo.Permutation {
	for _, p := range oligo.Permutations {
		if p.Name == name {
			return p
		}
	}
	panic("unknown permutation " + name)
}
