// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package refidx

import (
	"encoding/binary"
	"fmt"
	"io"
	"path/filepath"

	"modernc.org/kv"

	"github.com/kestrelseq/kestrel/internal/errs"
	"github.com/kestrelseq/kestrel/internal/match"
	"github.com/kestrelseq/kestrel/internal/oligo"
)

// MaskFilePath returns the on-disk path of the mask file holding
// permuted k-mers whose top maskWidth bits equal prefix, for the given
// permutation, under the reference directory dir. cmd/kestrel-buildindex
// writes here; cmd/kestrel's MaskFileOpener reads from here. Exact byte
// layout beyond this naming is not otherwise prescribed.
func MaskFilePath(dir, permutation string, prefix uint64, maskWidth uint) string {
	return filepath.Join(dir, permutation, fmt.Sprintf("%0*x.kv", (maskWidth+3)/4, prefix))
}

// MarshalKey encodes a permuted k-mer as a 16-byte big-endian key (Hi
// then Lo), so that lexicographic byte order on the key matches
// oligo.Kmer.Less, letting a kv.DB opened with the default (nil, hence
// bytes.Compare) comparator serve as a sorted mask file directly —
// mirroring cmd/ins/fragment.go's use of modernc.org/kv for an
// externally-sorted on-disk store.
func MarshalKey(k oligo.Kmer) []byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], k.Hi)
	binary.BigEndian.PutUint64(b[8:16], k.Lo)
	return b[:]
}

// UnmarshalKey is the inverse of MarshalKey.
func UnmarshalKey(b []byte) oligo.Kmer {
	return oligo.Kmer{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}
}

// MarshalValue encodes a match.Position as an 8-byte big-endian value.
func MarshalValue(p match.Position) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(p))
	return b[:]
}

// UnmarshalValue is the inverse of MarshalValue.
func UnmarshalValue(b []byte) match.Position {
	return match.Position(binary.BigEndian.Uint64(b))
}

// MaskFileWriter builds a new mask file on disk. Records must be
// inserted in ascending (Kmer, Position) order; CreateMaskFile batches
// writes into transactions the way cmd/ins/fragment.go's merge does.
type MaskFileWriter struct {
	db      *kv.DB
	n       int
	inTx    bool
	lastKey []byte
}

const maskFileBatchSize = 4096

// CreateMaskFile creates a new, empty mask file at path.
func CreateMaskFile(path string) (*MaskFileWriter, error) {
	db, err := kv.Create(path, &kv.Options{})
	if err != nil {
		return nil, errs.NewPath(errs.IO, "refidx.CreateMaskFile", path, err)
	}
	return &MaskFileWriter{db: db}, nil
}

// Put appends one (kmer, position) record. A k-mer that recurs at
// several genome positions (ordinary in any real reference) gets one
// record per occurrence; the on-disk key is (kmer, position) so repeats
// sort contiguously by kmer without colliding, matching
// match.mergeJoin's expectation of reading every occurrence of a shared
// k-mer off the same mask file. Records must arrive in non-decreasing
// (Kmer, Position) order; Put returns a Format error otherwise.
func (w *MaskFileWriter) Put(k oligo.Kmer, p match.Position) error {
	key := append(MarshalKey(k), MarshalValue(p)...)
	if w.lastKey != nil && string(key) < string(w.lastKey) {
		return errs.New(errs.Format, "refidx.MaskFileWriter.Put", fmt.Errorf("record out of order"))
	}
	w.lastKey = key

	if w.n%maskFileBatchSize == 0 {
		if w.inTx {
			if err := w.db.Commit(); err != nil {
				return errs.New(errs.IO, "refidx.MaskFileWriter.Put", err)
			}
		}
		if err := w.db.BeginTransaction(); err != nil {
			return errs.New(errs.IO, "refidx.MaskFileWriter.Put", err)
		}
		w.inTx = true
	}
	w.n++
	if err := w.db.Set(key, MarshalValue(p)); err != nil {
		return errs.New(errs.IO, "refidx.MaskFileWriter.Put", err)
	}
	return nil
}

// Close flushes any open transaction and closes the underlying file.
func (w *MaskFileWriter) Close() error {
	if w.inTx {
		if err := w.db.Commit(); err != nil {
			w.db.Close()
			return errs.New(errs.IO, "refidx.MaskFileWriter.Close", err)
		}
	}
	if err := w.db.Close(); err != nil {
		return errs.New(errs.IO, "refidx.MaskFileWriter.Close", err)
	}
	return nil
}

// KVMaskFile adapts an on-disk mask file to the match.MaskFile
// interface the match finder streams from.
type KVMaskFile struct {
	db  *kv.DB
	it  *kv.Enumerator
	err error
}

// OpenMaskFile opens an existing mask file read-only and positions the
// reader at its first record.
func OpenMaskFile(path string) (*KVMaskFile, error) {
	db, err := kv.Open(path, &kv.Options{})
	if err != nil {
		return nil, errs.NewPath(errs.IO, "refidx.OpenMaskFile", path, err)
	}
	it, err := db.SeekFirst()
	if err != nil && err != io.EOF {
		db.Close()
		return nil, errs.NewPath(errs.IO, "refidx.OpenMaskFile", path, err)
	}
	return &KVMaskFile{db: db, it: it, err: err}, nil
}

// Next implements match.MaskFile.
func (m *KVMaskFile) Next() (match.RefRecord, bool, error) {
	if m.it == nil || m.err == io.EOF {
		return match.RefRecord{}, false, nil
	}
	k, v, err := m.it.Next()
	if err == io.EOF {
		m.err = io.EOF
		return match.RefRecord{}, false, nil
	}
	if err != nil {
		return match.RefRecord{}, false, errs.New(errs.IO, "refidx.KVMaskFile.Next", err)
	}
	return match.RefRecord{Kmer: UnmarshalKey(k), Position: UnmarshalValue(v)}, true, nil
}

// Close implements match.MaskFile.
func (m *KVMaskFile) Close() error {
	if err := m.db.Close(); err != nil {
		return errs.New(errs.IO, "refidx.KVMaskFile.Close", err)
	}
	return nil
}
