// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refidx

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kestrelseq/kestrel/internal/errs"
)

// Bitset is a packed bit array, one bit per k-mer in load order, used to
// carry the neighbor-flag computed by the offline neighbors finder
// (spec §4.2) back into the mask-file build. This supplements the
// distilled spec with the original's BitsetLoader/BitsetSaver file
// format.
type Bitset struct {
	n    int
	bits []uint64
}

// NewBitset allocates a Bitset over n positions, all initially clear.
func NewBitset(n int) *Bitset {
	return &Bitset{n: n, bits: make([]uint64, (n+63)/64)}
}

// Len returns the number of addressable bits.
func (b *Bitset) Len() int { return b.n }

// Set marks bit i.
func (b *Bitset) Set(i int) { b.bits[i/64] |= 1 << uint(i%64) }

// Test reports whether bit i is set.
func (b *Bitset) Test(i int) bool { return b.bits[i/64]&(1<<uint(i%64)) != 0 }

const bitsetMagic = uint32(0x4b424954) // "KBIT"

// SaveBitset writes b to w as a fixed 8-byte magic+count header followed
// by the packed words, little-endian throughout, mirroring the
// original's BitsetSaver file layout.
func SaveBitset(w io.Writer, b *Bitset) error {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], bitsetMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(b.n))
	if _, err := w.Write(hdr[:]); err != nil {
		return errs.New(errs.IO, "refidx.SaveBitset", err)
	}
	buf := make([]byte, 8*len(b.bits))
	for i, word := range b.bits {
		binary.LittleEndian.PutUint64(buf[i*8:], word)
	}
	if _, err := w.Write(buf); err != nil {
		return errs.New(errs.IO, "refidx.SaveBitset", err)
	}
	return nil
}

// LoadBitset reads a Bitset previously written by SaveBitset.
func LoadBitset(r io.Reader) (*Bitset, error) {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errs.New(errs.IO, "refidx.LoadBitset", err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != bitsetMagic {
		return nil, errs.New(errs.Format, "refidx.LoadBitset", fmt.Errorf("bad bitset magic"))
	}
	n := int(binary.LittleEndian.Uint32(hdr[4:8]))
	b := NewBitset(n)
	buf := make([]byte, 8*len(b.bits))
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, errs.New(errs.IO, "refidx.LoadBitset", err)
	}
	for i := range b.bits {
		b.bits[i] = binary.LittleEndian.Uint64(buf[i*8:])
	}
	return b, nil
}
