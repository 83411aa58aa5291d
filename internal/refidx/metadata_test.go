// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refidx

import (
	"bytes"
	"testing"
)

func TestMetadataRoundTrip(t *testing.T) {
	m := &Metadata{
		Version: CurrentReferenceFormatVersion,
		Contigs: []Contig{
			{Index: 0, KaryotypeIndex: 1, Name: "chr2", SQAssembly: "GRCh38", SQMD5: "abc"},
			{Index: 1, KaryotypeIndex: 0, Name: "chr1", SQAssembly: "GRCh38", SQMD5: "def"},
		},
		ContigFiles: []string{"chr2.fa", "chr1.fa"},
		MaskFiles: []MaskFileEntry{
			{Path: "mask-32-0000.dat", SeedLength: 32, MaskWidth: 8, MaskValue: 0, TotalKmers: 1000},
		},
	}

	var buf bytes.Buffer
	if err := WriteMetadata(&buf, m); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}

	got, err := ReadMetadata(&buf)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if len(got.Contigs) != 2 {
		t.Fatalf("len(Contigs) = %d, want 2", len(got.Contigs))
	}
	if got.Contigs[0].Name != "chr2" || got.Contigs[1].Name != "chr1" {
		t.Errorf("contig order not preserved: %+v", got.Contigs)
	}
	if got.Contigs[0].KaryotypeIndex != 1 || got.Contigs[1].KaryotypeIndex != 0 {
		t.Errorf("karyotype indices not preserved: %+v", got.Contigs)
	}
	if got.ContigFiles[0] != "chr2.fa" {
		t.Errorf("contig file not preserved: %v", got.ContigFiles)
	}
	if len(got.MaskFiles) != 1 || got.MaskFiles[0].Path != "mask-32-0000.dat" {
		t.Errorf("mask file entries not preserved: %+v", got.MaskFiles)
	}
}

func TestReadMetadataRejectsBadVersion(t *testing.T) {
	m := &Metadata{Version: CurrentReferenceFormatVersion + 1}
	var buf bytes.Buffer
	if err := WriteMetadata(&buf, m); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	if _, err := ReadMetadata(&buf); err == nil {
		t.Fatalf("expected error for out-of-range format version")
	}
}

func TestReadMetadataRejectsBadKaryotype(t *testing.T) {
	m := &Metadata{
		Version: CurrentReferenceFormatVersion,
		Contigs: []Contig{
			{Index: 0, KaryotypeIndex: 0, Name: "a"},
			{Index: 1, KaryotypeIndex: 0, Name: "b"}, // duplicate karyotype index
		},
		ContigFiles: []string{"a.fa", "b.fa"},
	}
	var buf bytes.Buffer
	if err := WriteMetadata(&buf, m); err != nil {
		t.Fatalf("WriteMetadata: %v", err)
	}
	if _, err := ReadMetadata(&buf); err == nil {
		t.Fatalf("expected error for invalid karyotype permutation")
	}
}
