// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package seed

import (
	"sort"

	"github.com/kestrelseq/kestrel/internal/cluster"
	"github.com/kestrelseq/kestrel/internal/oligo"
)

// Schedule gives, for each read name in a cluster.ReadSchedule, the list
// of within-read cycle offsets at which a seed of the configured width
// starts (spec §4.3's "seed schedule").
type Schedule map[string][]int

// AutoSchedule builds the default "auto" seed schedule for a read of the
// given length and seed width w: one seed at the start and, if room
// remains, one seed ending at the read's last base, per
// firstPassSeeds-style defaults (spec §6 seedDescriptor=auto and
// firstPassSeeds). firstPassSeeds == 1 gives the start seed only; any
// other value, including values <= 0, gives the two-seed schedule, so
// at most two seeds are produced per read.
func AutoSchedule(readLength int, w oligo.Width, firstPassSeeds int) []int {
	if readLength < int(w) {
		return nil
	}
	if firstPassSeeds == 1 || readLength == int(w) {
		return []int{0}
	}
	last := readLength - int(w)
	if last == 0 {
		return []int{0}
	}
	return []int{0, last}
}

// Generate builds the forward+reverse seed vector for one tile following
// spec §4.3: for every cluster whose barcode maps to a reference,
// for every read, for every configured seed offset, a forward and a
// reverse-complement seed is produced; a seed covering any N base is
// replaced on both strands by the dedicated N-seed sentinel so it never
// matches the reference index.
//
// The k-th seed of a read gets seed index 2k when the read is not
// SecondOfPair and 2k+1 when it is, so odd seed indices identify the
// second read of a pair.
//
// refOf resolves a cluster's barcode to a reference identifier; clusters
// whose barcode has no reference (refOf's second return is false) are
// skipped entirely, matching the "mapped to an unmapped reference"
// exclusion in spec §4.3.
func Generate(t *cluster.Tile, reads cluster.ReadSchedule, sched Schedule, w oligo.Width, refOf func(barcode int) (ref int, ok bool)) []Seed {
	seeds := make([]Seed, 0, t.NumClusters*len(reads)*2)
	for c := 0; c < t.NumClusters; c++ {
		barcode := 0
		if c < len(t.Barcode) {
			barcode = t.Barcode[c]
		}
		if _, ok := refOf(barcode); !ok {
			continue
		}
		calls := t.Calls[c]
		for _, r := range reads {
			offsets := sched[r.Name]
			for si, off := range offsets {
				if off+int(w) > r.Length {
					continue
				}
				start := r.Offset + off
				fwd, hasN := buildForward(calls, start, w)
				var rev oligo.Kmer
				if hasN {
					fwd = nKmer(w)
					rev = nKmer(w)
				} else {
					rev = oligo.ReverseComplement(fwd, w)
				}
				idx := 2 * si
				if r.SecondOfPair {
					idx++
				}
				seeds = append(seeds,
					Seed{Kmer: fwd, ID: Pack(t.Number, barcode, c, idx, false)},
					Seed{Kmer: rev, ID: Pack(t.Number, barcode, c, idx, true)},
				)
			}
		}
	}
	return seeds
}

// buildForward walks cycles [start, start+w) in ascending order, shifting
// each cycle's base into a forward k-mer shift register, matching the
// cycle-ordered walk described in spec §4.3. It reports whether any
// cycle in the window was an N call.
func buildForward(calls []cluster.Call, start int, w oligo.Width) (oligo.Kmer, bool) {
	var k oligo.Kmer
	hasN := false
	for cycle := start; cycle < start+int(w); cycle++ {
		base, ok := calls[cycle].Base()
		if !ok {
			hasN = true
			base = 0
		}
		k = oligo.Push(k, base, w)
	}
	return k, hasN
}

// PartitionByReference groups seeds by reference index while keeping
// each reference's range contiguous, returning the partitioned slice and
// a map from each reference index to its [start, end) range in that
// slice. References appear in ascending index order; seeds whose barcode
// has no reference are dropped. Partitioning is stable so that within a
// reference the original relative order, and hence later per-range sort
// determinism, is preserved.
func PartitionByReference(seeds []Seed, refOf func(barcode int) (ref int, ok bool)) (partitioned []Seed, refRanges map[int][2]int) {
	byRef := make(map[int][]Seed)
	order := make([]int, 0)
	for _, s := range seeds {
		ref, ok := refOf(s.ID.Barcode())
		if !ok {
			continue
		}
		if _, seen := byRef[ref]; !seen {
			order = append(order, ref)
		}
		byRef[ref] = append(byRef[ref], s)
	}
	sort.Ints(order)
	partitioned = make([]Seed, 0, len(seeds))
	refRanges = make(map[int][2]int, len(order))
	for _, ref := range order {
		start := len(partitioned)
		partitioned = append(partitioned, byRef[ref]...)
		refRanges[ref] = [2]int{start, len(partitioned)}
	}
	return partitioned, refRanges
}

// ByKmerThenID sorts a slice of Seed by (kmer, seed_id), the order
// required before handing seeds to the match finder.
type ByKmerThenID []Seed

func (s ByKmerThenID) Len() int      { return len(s) }
func (s ByKmerThenID) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s ByKmerThenID) Less(i, j int) bool {
	if c := s[i].Kmer.Compare(s[j].Kmer); c != 0 {
		return c < 0
	}
	return s[i].ID.Less(s[j].ID)
}
