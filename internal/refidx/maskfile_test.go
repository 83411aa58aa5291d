// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refidx

import (
	"path/filepath"
	"testing"

	"github.com/kestrelseq/kestrel/internal/match"
	"github.com/kestrelseq/kestrel/internal/oligo"
)

func TestMaskFileWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mask-16-0000.dat")

	kmers := []string{
		"AAAACCCCGGGGTTTT",
		"AAAACCCCGGGGTTTA",
		"CCCCGGGGTTTTAAAA",
	}
	sortedKmers := make([]oligo.Kmer, len(kmers))
	for i, s := range kmers {
		k, ok := oligo.FromBases([]byte(s), oligo.W16)
		if !ok {
			t.Fatalf("FromBases(%q) failed", s)
		}
		sortedKmers[i] = k
	}
	// Sort ascending for the writer's ordering requirement.
	for i := 1; i < len(sortedKmers); i++ {
		for j := i; j > 0 && sortedKmers[j].Less(sortedKmers[j-1]); j-- {
			sortedKmers[j], sortedKmers[j-1] = sortedKmers[j-1], sortedKmers[j]
		}
	}

	w, err := CreateMaskFile(path)
	if err != nil {
		t.Fatalf("CreateMaskFile: %v", err)
	}
	for i, k := range sortedKmers {
		if err := w.Put(k, match.NewPosition(0, uint64(i*100), false)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mf, err := OpenMaskFile(path)
	if err != nil {
		t.Fatalf("OpenMaskFile: %v", err)
	}
	defer mf.Close()

	var got []match.RefRecord
	for {
		rec, ok, err := mf.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, rec)
	}
	if len(got) != len(sortedKmers) {
		t.Fatalf("len(got) = %d, want %d", len(got), len(sortedKmers))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Kmer.Less(got[i-1].Kmer) {
			t.Fatalf("records not sorted at index %d", i)
		}
	}
}

func TestMaskFilePathIsStableAndDistinctPerPrefix(t *testing.T) {
	p1 := MaskFilePath("/ref", "ABCD", 0x1, 16)
	p2 := MaskFilePath("/ref", "ABCD", 0x2, 16)
	if p1 == p2 {
		t.Fatalf("distinct prefixes produced the same path: %q", p1)
	}
	if got := MaskFilePath("/ref", "ABCD", 0x1, 16); got != p1 {
		t.Fatalf("MaskFilePath not stable: %q != %q", got, p1)
	}
	if filepath.Dir(p1) != filepath.Join("/ref", "ABCD") {
		t.Fatalf("MaskFilePath(%q) not under the permutation subdirectory", p1)
	}
}

func TestMaskFileAllowsRepeatedKmerAtDistinctPositions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mask-repeat.dat")
	k, ok := oligo.FromBases([]byte("AAAACCCCGGGGTTTT"), oligo.W16)
	if !ok {
		t.Fatalf("FromBases failed")
	}

	w, err := CreateMaskFile(path)
	if err != nil {
		t.Fatalf("CreateMaskFile: %v", err)
	}
	positions := []match.Position{
		match.NewPosition(0, 10, false),
		match.NewPosition(0, 200, false),
		match.NewPosition(1, 5, false),
	}
	for _, p := range positions {
		if err := w.Put(k, p); err != nil {
			t.Fatalf("Put repeated kmer at %v: %v", p, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	mf, err := OpenMaskFile(path)
	if err != nil {
		t.Fatalf("OpenMaskFile: %v", err)
	}
	defer mf.Close()

	var got []match.Position
	for {
		rec, ok, err := mf.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		if rec.Kmer != k {
			t.Fatalf("unexpected kmer in repeat-only file: %v", rec.Kmer)
		}
		got = append(got, rec.Position)
	}
	if len(got) != len(positions) {
		t.Fatalf("len(got) = %d, want %d (every occurrence of a repeated kmer must survive)", len(got), len(positions))
	}
}

func TestMaskFileWriterRejectsOutOfOrderPut(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mask.dat")
	w, err := CreateMaskFile(path)
	if err != nil {
		t.Fatalf("CreateMaskFile: %v", err)
	}
	defer w.Close()

	kA, _ := oligo.FromBases([]byte("AAAACCCCGGGGTTTT"), oligo.W16)
	kB, _ := oligo.FromBases([]byte("AAAACCCCGGGGTTTA"), oligo.W16)
	// kB < kA lexicographically (T > A in last base), so inserting kA
	// then kB is out of order if kB sorts first.
	var lo, hi oligo.Kmer
	if kB.Less(kA) {
		lo, hi = kB, kA
	} else {
		lo, hi = kA, kB
	}
	if err := w.Put(hi, match.NewPosition(0, 0, false)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := w.Put(lo, match.NewPosition(0, 1, false)); err == nil {
		t.Fatalf("expected error for out-of-order Put")
	}
}
