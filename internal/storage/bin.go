// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package storage

import "github.com/kestrelseq/kestrel/internal/stats"

// UnalignedBin is the reserved bin index for unmapped pairs, matching
// internal/binindex.Unaligned.
const UnalignedBin = 0

// BinMetadata is the per-bin summary record of spec §6's "Output — bin
// metadata".
type BinMetadata struct {
	Index               int
	FirstReferencePosition uint64
	Length              uint64
	Path                string
	ChunkCountHint      int
	DataSize            int64
	PerBarcode          map[int]*stats.BarcodeCounters
	GapCount            int64
	CigarLength         int64
}

// addRecord folds one written record's size and counters into m. It is
// the only mutator of BinMetadata counters, so "monotonically
// non-decreasing" (spec §4.10) holds by construction: every field is
// only ever incremented.
func (m *BinMetadata) addRecord(barcode int, cat stats.Category, gapCount, cigarLen, recordSize int) {
	m.DataSize += int64(recordSize)
	m.GapCount += int64(gapCount)
	m.CigarLength += int64(cigarLen)
	if m.PerBarcode == nil {
		m.PerBarcode = make(map[int]*stats.BarcodeCounters)
	}
	b, ok := m.PerBarcode[barcode]
	if !ok {
		b = &stats.BarcodeCounters{}
		m.PerBarcode[barcode] = b
	}
	b.ByCategory[cat]++
	b.GapCount += int64(gapCount)
	b.CigarLen += int64(cigarLen)
}
