// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package storage

import (
	"encoding/xml"
	"io"

	"github.com/kestrelseq/kestrel/internal/errs"
)

// Manifest is the supplemented hand-off contract to the downstream
// variant caller (originally CasavaIntegration): a listing of the bin
// files this run produced, the reference-metadata path they were built
// against, and the barcode list, so a downstream consumer can locate
// everything without re-deriving it from bin contents.
type Manifest struct {
	XMLName         xml.Name      `xml:"Manifest"`
	ReferenceMetadata string      `xml:"ReferenceMetadata"`
	Barcodes        []string      `xml:"Barcodes>Barcode"`
	Bins            []ManifestBin `xml:"Bins>Bin"`
}

// ManifestBin is one bin's entry in the Manifest.
type ManifestBin struct {
	Index                  int    `xml:"index,attr"`
	Path                   string `xml:"path,attr"`
	FirstReferencePosition uint64 `xml:"firstReferencePosition,attr"`
	Length                 uint64 `xml:"length,attr"`
	DataSize               int64  `xml:"dataSize,attr"`
}

// NewManifest builds a Manifest from the bin metadata a run's storage
// Close call returned.
func NewManifest(referenceMetadataPath string, barcodes []string, bins []BinMetadata) Manifest {
	m := Manifest{ReferenceMetadata: referenceMetadataPath, Barcodes: barcodes}
	for _, b := range bins {
		m.Bins = append(m.Bins, ManifestBin{
			Index:                  b.Index,
			Path:                   b.Path,
			FirstReferencePosition: b.FirstReferencePosition,
			Length:                 b.Length,
			DataSize:               b.DataSize,
		})
	}
	return m
}

// WriteManifest writes m to w as indented XML.
func WriteManifest(w io.Writer, m Manifest) error {
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(m); err != nil {
		return errs.New(errs.IO, "storage.WriteManifest", err)
	}
	return nil
}

// ReadManifest reads a Manifest previously written by WriteManifest.
func ReadManifest(r io.Reader) (Manifest, error) {
	var m Manifest
	if err := xml.NewDecoder(r).Decode(&m); err != nil {
		return Manifest{}, errs.New(errs.Format, "storage.ReadManifest", err)
	}
	return m, nil
}
