// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package oligo

// Quarter indices into a k-mer split into four equal-width blocks, A
// being the most significant (first bases of the oligo) and D the least
// significant (last bases).
const (
	A = 0
	B = 1
	C = 2
	D = 3
)

// Permutation rearranges the four quarter-blocks of a k-mer. Order[i]
// names which original quarter (A, B, C or D) is placed at output
// position i, so Order = [B, C, D, A] implements the BCDA permutation.
type Permutation struct {
	Name  string
	Order [4]int
}

// Permutations are the six rearrangements used by the match finder,
// chosen so that any k-mer with up to 2 mismatches spread across any two
// quarters becomes a 2-quarter-exact-prefix match under at least one of
// them.
var Permutations = [6]Permutation{
	{Name: "ABCD", Order: [4]int{A, B, C, D}},
	{Name: "BCDA", Order: [4]int{B, C, D, A}},
	{Name: "CDAB", Order: [4]int{C, D, A, B}},
	{Name: "ACBD", Order: [4]int{A, C, B, D}},
	{Name: "BDAC", Order: [4]int{B, D, A, C}},
	{Name: "ADBC", Order: [4]int{A, D, B, C}},
}

// quarterWidth returns the base-width of one quarter of a w-base k-mer.
// w must be divisible by 4, which holds for all supported Width values.
func quarterWidth(w Width) Width { return w / 4 }

// extractQuarters splits k into its four quarter values, each a right-
// aligned bit pattern of 2*quarterWidth(w) bits, in A,B,C,D order.
func extractQuarters(k Kmer, w Width) [4]uint64 {
	qw := uint(2 * quarterWidth(w))
	total := uint(2 * w)
	var out [4]uint64
	for i := 0; i < 4; i++ {
		// Quarter i (0=A) occupies bits [total-(i+1)*qw, total-i*qw).
		offset := total - uint(i+1)*qw
		out[i] = bitsAt(k, offset, qw)
	}
	return out
}

// assembleQuarters is the inverse of extractQuarters: it packs the four
// quarter values, given in the order they should appear from most to
// least significant, back into a Kmer.
func assembleQuarters(q [4]uint64, w Width) Kmer {
	qw := uint(2 * quarterWidth(w))
	var k Kmer
	for i := 0; i < 4; i++ {
		k = setBitsAt(k, uint(4-1-i)*qw, qw, q[i])
	}
	return k
}

// bitsAt extracts width bits starting at bit offset offset (0 = least
// significant bit) from the 128-bit pair (Hi<<64 | Lo).
func bitsAt(k Kmer, offset, width uint) uint64 {
	if width == 64 {
		if offset == 0 {
			return k.Lo
		}
		return (k.Lo >> offset) | (k.Hi << (64 - offset))
	}
	mask := uint64(1)<<width - 1
	switch {
	case offset+width <= 64:
		return (k.Lo >> offset) & mask
	case offset >= 64:
		return (k.Hi >> (offset - 64)) & mask
	default:
		lowBits := 64 - offset
		low := k.Lo >> offset
		high := k.Hi & (uint64(1)<<(width-lowBits) - 1)
		return low | high<<lowBits
	}
}

// setBitsAt returns k with its width bits starting at offset replaced by
// the low width bits of v.
func setBitsAt(k Kmer, offset, width uint, v uint64) Kmer {
	if width < 64 {
		v &= uint64(1)<<width - 1
	}
	switch {
	case width == 64 && offset == 0:
		k.Lo = v
		return k
	case offset+width <= 64:
		mask := uint64(1)<<width - 1
		k.Lo = (k.Lo &^ (mask << offset)) | (v << offset)
		return k
	case offset >= 64:
		shift := offset - 64
		mask := uint64(1)<<width - 1
		k.Hi = (k.Hi &^ (mask << shift)) | (v << shift)
		return k
	default:
		lowBits := 64 - offset
		lowMask := uint64(1)<<lowBits - 1
		k.Lo = (k.Lo &^ (lowMask << offset)) | ((v & lowMask) << offset)
		highBits := width - lowBits
		highMask := uint64(1)<<highBits - 1
		k.Hi = (k.Hi &^ highMask) | ((v >> lowBits) & highMask)
		return k
	}
}

// Quarters splits k into its four quarter values, each a right-aligned
// bit pattern of 2*quarterWidth(w) bits, in A,B,C,D order. It is exposed
// for callers, such as the match finder, that need to compare individual
// quarters directly.
func Quarters(k Kmer, w Width) [4]uint64 { return extractQuarters(k, w) }

// Apply rearranges the quarters of k according to p, returning the
// permuted k-mer.
func (p Permutation) Apply(k Kmer, w Width) Kmer {
	q := extractQuarters(k, w)
	var permuted [4]uint64
	for i, src := range p.Order {
		permuted[i] = q[src]
	}
	return assembleQuarters(permuted, w)
}

// Reorder restores the original base order of a k-mer that was permuted
// by p, i.e. Reorder(Apply(k)) == k.
func (p Permutation) Reorder(k Kmer, w Width) Kmer {
	q := extractQuarters(k, w)
	var restored [4]uint64
	for i, src := range p.Order {
		// q[i] holds the quarter that was originally at position src.
		restored[src] = q[i]
	}
	return assembleQuarters(restored, w)
}
