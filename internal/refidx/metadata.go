// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refidx

import (
	"encoding/xml"
	"fmt"
	"io"

	"github.com/kestrelseq/kestrel/internal/errs"
)

// Reference format versions accepted by ReadMetadata, per spec §6.
const (
	CurrentReferenceFormatVersion = 3
	OldestSupportedFormatVersion  = 1
)

// MaskFileEntry is one mask file's metadata row.
type MaskFileEntry struct {
	Path       string `xml:"path,attr"`
	SeedLength int    `xml:"seedLength,attr"`
	MaskWidth  uint   `xml:"maskWidth,attr"`
	MaskValue  uint64 `xml:"maskValue,attr"`
	TotalKmers int64  `xml:"totalKmers,attr"`
}

type contigEntry struct {
	Index          int    `xml:"index,attr"`
	KaryotypeIndex int    `xml:"karyotypeIndex,attr"`
	Name           string `xml:"name,attr"`
	File           string `xml:"file,attr"`
	Offset         int64  `xml:"offset,attr"`
	Size           int64  `xml:"size,attr"`
	TotalBases     int64  `xml:"totalBases,attr"`
	ACount         int64  `xml:"aCount,attr"`
	CCount         int64  `xml:"cCount,attr"`
	GCount         int64  `xml:"gCount,attr"`
	TCount         int64  `xml:"tCount,attr"`
	SQAssembly     string `xml:"sqAssembly,attr"`
	SQURI          string `xml:"sqURI,attr"`
	SQMD5          string `xml:"sqMD5,attr"`
}

type metadataDoc struct {
	XMLName xml.Name        `xml:"reference"`
	Version int             `xml:"formatVersion,attr"`
	Contigs []contigEntry   `xml:"contigs>contig"`
	Masks   []MaskFileEntry `xml:"maskFiles>maskFile"`
}

// Metadata is the parsed reference-metadata document: contig table plus
// mask-file table.
type Metadata struct {
	Version      int
	Contigs      []Contig
	ContigFiles  []string // per-contig source FASTA path, index-aligned with Contigs
	MaskFiles    []MaskFileEntry
}

// ReadMetadata parses a reference-metadata document from r, rejecting
// any format version outside [OldestSupportedFormatVersion,
// CurrentReferenceFormatVersion].
func ReadMetadata(r io.Reader) (*Metadata, error) {
	var doc metadataDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errs.New(errs.Format, "refidx.ReadMetadata", err)
	}
	if doc.Version < OldestSupportedFormatVersion || doc.Version > CurrentReferenceFormatVersion {
		return nil, errs.New(errs.Format, "refidx.ReadMetadata",
			fmt.Errorf("reference format version %d outside supported range [%d,%d]",
				doc.Version, OldestSupportedFormatVersion, CurrentReferenceFormatVersion))
	}

	m := &Metadata{Version: doc.Version, MaskFiles: doc.Masks}
	for _, c := range doc.Contigs {
		m.Contigs = append(m.Contigs, Contig{
			Index:          c.Index,
			KaryotypeIndex: c.KaryotypeIndex,
			Name:           c.Name,
			FileOffset:     c.Offset,
			FileSize:       c.Size,
			ACGTCount:      [4]int64{c.ACount, c.CCount, c.GCount, c.TCount},
			SQAssembly:     c.SQAssembly,
			SQURI:          c.SQURI,
			SQMD5:          c.SQMD5,
		})
		m.ContigFiles = append(m.ContigFiles, c.File)
	}
	if !ValidKaryotype(m.Contigs) {
		return nil, errs.New(errs.Format, "refidx.ReadMetadata", fmt.Errorf("karyotype indices are not a permutation of [0,N)"))
	}
	return m, nil
}

// WriteMetadata serializes m to w in the same format ReadMetadata
// consumes, preserving contig order, karyotype indices, and mask paths
// per spec §8's round-trip property.
func WriteMetadata(w io.Writer, m *Metadata) error {
	doc := metadataDoc{Version: m.Version, Masks: m.MaskFiles}
	for i, c := range m.Contigs {
		file := ""
		if i < len(m.ContigFiles) {
			file = m.ContigFiles[i]
		}
		doc.Contigs = append(doc.Contigs, contigEntry{
			Index:          c.Index,
			KaryotypeIndex: c.KaryotypeIndex,
			Name:           c.Name,
			File:           file,
			Offset:         c.FileOffset,
			Size:           c.FileSize,
			TotalBases:     c.TotalBases(),
			ACount:         c.ACGTCount[0],
			CCount:         c.ACGTCount[1],
			GCount:         c.ACGTCount[2],
			TCount:         c.ACGTCount[3],
			SQAssembly:     c.SQAssembly,
			SQURI:          c.SQURI,
			SQMD5:          c.SQMD5,
		})
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errs.New(errs.Format, "refidx.WriteMetadata", err)
	}
	return nil
}
