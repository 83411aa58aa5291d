// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package storage implements the fragment bin-file storage of spec
// §4.10: a packed binary fragment record format, the Binning (direct)
// and Buffering FragmentStorage variants, and the CasavaIntegration
// hand-off manifest.
package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/biogo/hts/sam"

	"github.com/kestrelseq/kestrel/internal/errs"
)

// recordMagic identifies the start of a fragment record, per spec §6's
// "every appended record begins with a magic value" invariant.
const recordMagic uint32 = 0x4b534651 // "KSFQ"

// Flags packs the per-fragment boolean flags carried in a record header.
type Flags uint16

const (
	FlagPaired Flags = 1 << iota
	FlagReverse
	FlagUnmapped
	FlagSecondRead
	FlagProperPair
)

// Record is one fragment's on-disk representation, matching spec §6's
// "Output — bin files" layout exactly: a fixed header, a packed
// base+quality run, then a CIGAR op array.
type Record struct {
	FStrandPosition     uint64
	Flags               Flags
	Barcode             int32
	Cluster             int32
	Tile                int32
	CigarLength         int32
	ReadLength          int32
	MateFStrandPosition uint64
	MateStorageBin      int32
	TotalLength         int32
	GapCount            int32

	// BaseQual holds ReadLength packed (base_2bit<<2 | quality_6bit)
	// bytes, already reverse-complemented by the caller if the
	// fragment is reverse-aligned.
	BaseQual []byte
	// Cigar holds CigarLength ops in BAM-convention packing (op in the
	// low 4 bits, length in the high 28 bits), matching sam.CigarOp's
	// own in-memory representation exactly.
	Cigar []sam.CigarOp
}

const headerSize = 4 + 8 + 2 + 4 + 4 + 4 + 4 + 4 + 8 + 4 + 4 + 4

// Marshal serializes r to its on-disk byte form. TotalLength is
// computed and overwritten to equal the bytes actually written, per
// spec §4.10's "total length in the header equals bytes actually
// written" invariant.
func (r Record) Marshal() []byte {
	r.CigarLength = int32(len(r.Cigar))
	r.ReadLength = int32(len(r.BaseQual))
	r.TotalLength = int32(headerSize + len(r.BaseQual) + 4*len(r.Cigar))

	buf := bytes.NewBuffer(make([]byte, 0, r.TotalLength))
	order := binary.LittleEndian
	var b8 [8]byte
	var b4 [4]byte

	order.PutUint32(b4[:], recordMagic)
	buf.Write(b4[:])
	order.PutUint64(b8[:], r.FStrandPosition)
	buf.Write(b8[:])
	order.PutUint16(b4[:2], uint16(r.Flags))
	buf.Write(b4[:2])
	order.PutUint32(b4[:], uint32(r.Barcode))
	buf.Write(b4[:])
	order.PutUint32(b4[:], uint32(r.Cluster))
	buf.Write(b4[:])
	order.PutUint32(b4[:], uint32(r.Tile))
	buf.Write(b4[:])
	order.PutUint32(b4[:], uint32(r.CigarLength))
	buf.Write(b4[:])
	order.PutUint32(b4[:], uint32(r.ReadLength))
	buf.Write(b4[:])
	order.PutUint64(b8[:], r.MateFStrandPosition)
	buf.Write(b8[:])
	order.PutUint32(b4[:], uint32(r.MateStorageBin))
	buf.Write(b4[:])
	order.PutUint32(b4[:], uint32(r.TotalLength))
	buf.Write(b4[:])
	order.PutUint32(b4[:], uint32(r.GapCount))
	buf.Write(b4[:])

	buf.Write(r.BaseQual)
	for _, op := range r.Cigar {
		order.PutUint32(b4[:], uint32(op))
		buf.Write(b4[:])
	}
	return buf.Bytes()
}

// Unmarshal decodes one Record from the front of data, returning the
// number of bytes consumed. It returns a *errs.Error of Kind Format if
// the magic is wrong or the declared total length does not match the
// available data.
func Unmarshal(data []byte) (Record, int, error) {
	if len(data) < headerSize {
		return Record{}, 0, errs.New(errs.Format, "storage.Unmarshal", fmt.Errorf("truncated record header: %d bytes available", len(data)))
	}
	order := binary.LittleEndian
	var r Record
	magic := order.Uint32(data[0:4])
	if magic != recordMagic {
		return Record{}, 0, errs.New(errs.Format, "storage.Unmarshal", fmt.Errorf("bad record magic %#x", magic))
	}
	r.FStrandPosition = order.Uint64(data[4:12])
	r.Flags = Flags(order.Uint16(data[12:14]))
	r.Barcode = int32(order.Uint32(data[14:18]))
	r.Cluster = int32(order.Uint32(data[18:22]))
	r.Tile = int32(order.Uint32(data[22:26]))
	r.CigarLength = int32(order.Uint32(data[26:30]))
	r.ReadLength = int32(order.Uint32(data[30:34]))
	r.MateFStrandPosition = order.Uint64(data[34:42])
	r.MateStorageBin = int32(order.Uint32(data[42:46]))
	r.TotalLength = int32(order.Uint32(data[46:50]))
	r.GapCount = int32(order.Uint32(data[50:54]))

	want := headerSize + int(r.ReadLength) + 4*int(r.CigarLength)
	if int(r.TotalLength) != want {
		return Record{}, 0, errs.New(errs.Format, "storage.Unmarshal", fmt.Errorf("record total length %d does not match computed %d", r.TotalLength, want))
	}
	if len(data) < want {
		return Record{}, 0, errs.New(errs.Format, "storage.Unmarshal", fmt.Errorf("truncated record body: need %d bytes, have %d", want, len(data)))
	}

	body := data[headerSize:want]
	r.BaseQual = append([]byte(nil), body[:r.ReadLength]...)
	cigarBytes := body[r.ReadLength:]
	r.Cigar = make([]sam.CigarOp, r.CigarLength)
	for i := range r.Cigar {
		r.Cigar[i] = sam.CigarOp(order.Uint32(cigarBytes[4*i : 4*i+4]))
	}
	return r, want, nil
}
