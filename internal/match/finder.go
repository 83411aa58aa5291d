// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import (
	"fmt"

	"github.com/kestrelseq/kestrel/internal/errs"
	"github.com/kestrelseq/kestrel/internal/oligo"
	"github.com/kestrelseq/kestrel/internal/psort"
	"github.com/kestrelseq/kestrel/internal/seed"
)

// RefRecord is one sorted entry from a mask file: a permuted reference
// k-mer together with the packed position it occurs at.
type RefRecord struct {
	Kmer     oligo.Kmer
	Position Position
}

// MaskFile streams the sorted reference records whose permuted k-mer
// shares a given top-W-bit mask. Implementations (internal/refidx) back
// this with a modernc.org/kv store opened read-only.
type MaskFile interface {
	// Next returns the next record in ascending Kmer order, or ok=false
	// at end of file.
	Next() (rec RefRecord, ok bool, err error)
	// Close releases the underlying file handle.
	Close() error
}

// MaskFileOpener resolves the mask file matching the top maskWidth bits
// of a permuted k-mer prefix.
type MaskFileOpener func(permutation string, prefix uint64, maskWidth uint) (MaskFile, error)

// Options configures a single match-finding pass.
type Options struct {
	Width           oligo.Width
	MaskWidth       uint
	RepeatThreshold int
	IncludeNeighbors bool
	Threads         int
}

// Find runs the match finder of spec §4.5 over seeds, for every
// permutation in turn, opening mask files through open. It returns the
// concatenated, globally sorted (tile, barcode, cluster, seed-index,
// position) match stream handed to the selector.
func Find(seeds []seed.Seed, open MaskFileOpener, opt Options) ([]Match, error) {
	base := make([]seed.Seed, len(seeds))
	copy(base, seeds)

	var all []Match
	// clusterHasMatch tracks, for TooManyMatch sentinel suppression,
	// whether a cluster (identified by its seed ID with the seed-index
	// and reverse bits masked off) has already produced any match in
	// this pass. Spec §4.5 step 3: emit the sentinel only when the
	// cluster still has no matches.
	clusterHasMatch := make(map[seed.ID]bool)

	for _, perm := range oligo.Permutations {
		permuted := make([]seed.Seed, len(base))
		for i, s := range base {
			permuted[i] = seed.Seed{Kmer: perm.Apply(s.Kmer, opt.Width), ID: s.ID}
		}

		psort.Sort(byPermutedKmer(permuted), threadsOrOne(opt.Threads))

		found, err := findOnePermutation(permuted, perm.Name, open, opt, clusterHasMatch)
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}

	psort.Sort(ByClusterOrder(all), threadsOrOne(opt.Threads))
	return all, nil
}

func threadsOrOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

func findOnePermutation(permuted []seed.Seed, permName string, open MaskFileOpener, opt Options, clusterHasMatch map[seed.ID]bool) ([]Match, error) {
	var out []Match

	i := 0
	for i < len(permuted) {
		prefix := topBits(permuted[i].Kmer, opt.Width, opt.MaskWidth)
		j := i
		for j < len(permuted) && topBits(permuted[j].Kmer, opt.Width, opt.MaskWidth) == prefix {
			j++
		}
		group := permuted[i:j]

		mf, err := open(permName, prefix, opt.MaskWidth)
		if err != nil {
			return nil, errs.NewPath(errs.IO, "match.Find", fmt.Sprintf("mask:%s:%x", permName, prefix), err)
		}

		matched, err := mergeJoin(group, mf, permName, opt, clusterHasMatch)
		closeErr := mf.Close()
		if err != nil {
			return nil, err
		}
		if closeErr != nil {
			return nil, errs.New(errs.IO, "match.Find", closeErr)
		}
		out = append(out, matched...)

		i = j
	}
	return out, nil
}

// mergeJoin streams mf, comparing each reference record's k-mer against
// the sorted group of seeds sharing its prefix, in ascending Kmer order
// from both sides. A mask file whose records are found out of order is
// a fatal error per spec §4.5 failure semantics.
func mergeJoin(group []seed.Seed, mf MaskFile, permName string, opt Options, clusterHasMatch map[seed.ID]bool) ([]Match, error) {
	var out []Match
	perSeedCount := make(map[seed.ID]int)

	var prevKmer oligo.Kmer
	havePrev := false

	for {
		rec, ok, err := mf.Next()
		if err != nil {
			return nil, errs.New(errs.Format, "match.mergeJoin", err)
		}
		if !ok {
			break
		}
		if havePrev && rec.Kmer.Less(prevKmer) {
			return nil, errs.New(errs.Format, "match.mergeJoin", fmt.Errorf("mask file records out of order"))
		}
		prevKmer = rec.Kmer
		havePrev = true

		lo, hi := seedRange(group, rec.Kmer)
		for k := lo; k < hi; k++ {
			s := group[k]
			clusterID := clusterKey(s.ID)

			if rec.Position.IsTooManyMatch() {
				if clusterHasMatch[clusterID] {
					continue
				}
				out = append(out, Match{SeedID: s.ID, Position: TooManyMatch})
				continue
			}

			mismatchC, mismatchD := quarterMismatches(s.Kmer, rec.Kmer, opt.Width)
			if !Accept(permName, mismatchC, mismatchD) {
				continue
			}

			if rec.Position.HasNeighbors() && !opt.IncludeNeighbors {
				continue
			}

			perSeedCount[s.ID]++
			if opt.RepeatThreshold > 0 && perSeedCount[s.ID] > opt.RepeatThreshold {
				if !clusterHasMatch[clusterID] {
					out = append(out, Match{SeedID: s.ID, Position: TooManyMatch})
				}
				continue
			}

			clusterHasMatch[clusterID] = true
			out = append(out, Match{SeedID: s.ID, Position: rec.Position})
		}
	}
	return out, nil
}

// clusterKey strips the seed-index and reverse bits from an ID,
// identifying the cluster the seed belongs to.
func clusterKey(id seed.ID) seed.ID {
	return seed.Pack(id.Tile(), id.Barcode(), id.Cluster(), 0, false)
}

// seedRange returns the [lo, hi) slice bounds of the seeds in group
// whose Kmer equals k. group is assumed sorted by Kmer.
func seedRange(group []seed.Seed, k oligo.Kmer) (lo, hi int) {
	lo = searchSeeds(group, k, false)
	hi = searchSeeds(group, k, true)
	return lo, hi
}

func searchSeeds(group []seed.Seed, k oligo.Kmer, upper bool) int {
	i, j := 0, len(group)
	for i < j {
		mid := (i + j) / 2
		var less bool
		if upper {
			less = !k.Less(group[mid].Kmer)
		} else {
			less = group[mid].Kmer.Less(k)
		}
		if less {
			i = mid + 1
		} else {
			j = mid
		}
	}
	return i
}

// quarterMismatches counts base mismatches between the seed and
// reference k-mers in quarters C and D (the third and fourth quarters
// of the permuted, width-wide representation).
func quarterMismatches(seedKmer, refKmer oligo.Kmer, w oligo.Width) (mismatchC, mismatchD int) {
	quarterW := int(w) / 4
	seedQ := oligo.Quarters(seedKmer, w)
	refQ := oligo.Quarters(refKmer, w)
	mismatchC = countMismatches(seedQ[oligo.C], refQ[oligo.C], quarterW)
	mismatchD = countMismatches(seedQ[oligo.D], refQ[oligo.D], quarterW)
	return mismatchC, mismatchD
}

func countMismatches(a, b uint64, bases int) int {
	n := 0
	for i := 0; i < bases; i++ {
		shift := uint(i * 2)
		if (a>>shift)&3 != (b>>shift)&3 {
			n++
		}
	}
	return n
}

// topBits extracts the top maskWidth bits of k's 2*w-bit representation.
func topBits(k oligo.Kmer, w oligo.Width, maskWidth uint) uint64 {
	return oligo.TopBits(k, w, maskWidth)
}

type byPermutedKmer []seed.Seed

func (s byPermutedKmer) Len() int           { return len(s) }
func (s byPermutedKmer) Less(i, j int) bool { return s[i].Kmer.Less(s[j].Kmer) }
func (s byPermutedKmer) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
