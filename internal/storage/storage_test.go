// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package storage

import (
	"bytes"
	"os"
	"testing"

	"github.com/biogo/hts/sam"

	"github.com/kestrelseq/kestrel/internal/template"
)

func fixedResolver(bin int) BinResolver {
	return func(contig int, pos uint64) int { return bin }
}

func pairTemplate(arena *template.CigarArena) Template {
	var f1, f2 template.Fragment
	f1.CigarOffset, f1.CigarLength = arena.Append([]sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 36)})
	f2.CigarOffset, f2.CigarLength = arena.Append([]sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 36)})
	f1.SecondOfPair, f2.SecondOfPair = false, true
	return Template{
		Fragments: [2]template.Fragment{f1, f2},
		Paired:    true,
		Tile:      1,
		Barcode:   0,
		Cluster:   5,
		ReadQual1: make([]byte, 36),
		ReadQual2: make([]byte, 36),
	}
}

func TestBinningAddSameBinWritesBothAdjacent(t *testing.T) {
	dir := t.TempDir()
	arena := &template.CigarArena{}
	b := NewBinning(dir, fixedResolver(3))

	tpl := pairTemplate(arena)
	if err := b.Add(tpl, arena); err != nil {
		t.Fatalf("Add: %v", err)
	}
	metas, err := b.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("len(metas) = %d, want 1", len(metas))
	}
	data, err := os.ReadFile(metas[0].Path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	rec1, n1, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal rec1: %v", err)
	}
	_, _, err = Unmarshal(data[n1:])
	if err != nil {
		t.Fatalf("Unmarshal rec2: %v", err)
	}
	if rec1.Cluster != 5 {
		t.Fatalf("Cluster = %d, want 5", rec1.Cluster)
	}
}

func TestBinningAddDifferentBinsRoutesEach(t *testing.T) {
	dir := t.TempDir()
	arena := &template.CigarArena{}
	var f1, f2 template.Fragment
	f1.CigarOffset, f1.CigarLength = arena.Append([]sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 10)})
	f2.CigarOffset, f2.CigarLength = arena.Append([]sam.CigarOp{sam.NewCigarOp(sam.CigarMatch, 10)})
	f1.Contig, f2.Contig = 0, 1

	callCount := 0
	resolve := func(contig int, pos uint64) int {
		callCount++
		return contig + 1
	}
	b := NewBinning(dir, resolve)
	tpl := Template{
		Fragments: [2]template.Fragment{f1, f2},
		Paired:    true,
		ReadQual1: make([]byte, 10),
		ReadQual2: make([]byte, 10),
	}
	if err := b.Add(tpl, arena); err != nil {
		t.Fatalf("Add: %v", err)
	}
	metas, err := b.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("len(metas) = %d, want 2", len(metas))
	}
}

func TestBufferingFlushWritesAllRecords(t *testing.T) {
	dir := t.TempDir()
	arena := &template.CigarArena{}
	s := NewBuffering(dir, fixedResolver(1), 2)

	for i := 0; i < 5; i++ {
		tpl := pairTemplate(arena)
		if err := s.Add(tpl, arena); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	metas, err := s.Close()
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("len(metas) = %d, want 1", len(metas))
	}
	if metas[0].PerBarcode[0].ByCategory[0]+metas[0].PerBarcode[0].ByCategory[1]+
		metas[0].PerBarcode[0].ByCategory[2]+metas[0].PerBarcode[0].ByCategory[3] != 10 {
		t.Fatalf("expected 10 total fragment records, got counters %+v", metas[0].PerBarcode[0])
	}
}

func TestManifestRoundTrip(t *testing.T) {
	m := NewManifest("/ref/metadata.xml", []string{"BC1", "BC2"}, []BinMetadata{
		{Index: 1, Path: "/bins/bin-000001.dat", DataSize: 100},
	})
	var buf bytes.Buffer
	if err := WriteManifest(&buf, m); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	got, err := ReadManifest(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadManifest: %v", err)
	}
	if got.ReferenceMetadata != m.ReferenceMetadata || len(got.Bins) != 1 || len(got.Barcodes) != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
