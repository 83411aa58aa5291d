// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stats implements the per-barcode/tile/read counters of spec
// §4's Stats module, accumulated thread-locally by the selector and
// folded into tile-level totals.
package stats

// Category classifies one emitted fragment for the per-barcode counters
// of spec §3's Bin counter set.
type Category int

const (
	ForwardIndexed Category = iota
	ReverseIndexed
	SingleEnded
	NoMatch
	numCategories
)

// BarcodeCounters holds the per-category fragment counts, gap count and
// total CIGAR length for one barcode.
type BarcodeCounters struct {
	ByCategory [numCategories]int64
	GapCount   int64
	CigarLen   int64
}

// Add folds other into c in place.
func (c *BarcodeCounters) Add(other BarcodeCounters) {
	for i := range c.ByCategory {
		c.ByCategory[i] += other.ByCategory[i]
	}
	c.GapCount += other.GapCount
	c.CigarLen += other.CigarLen
}

// Counters is the full counter set for one tile: per-barcode fragment
// counters plus read-level totals (reads seen, reads aligned, bases
// called). It satisfies spec §8 property 5's associative fold
// requirement: Add is commutative and associative over the thread-local
// shards the selector produces.
type Counters struct {
	ByBarcode map[int]*BarcodeCounters

	ReadsSeen    int64
	ReadsAligned int64
	BasesCalled  int64
}

// New returns an empty Counters ready to accumulate.
func New() *Counters {
	return &Counters{ByBarcode: make(map[int]*BarcodeCounters)}
}

// RecordFragment increments the counters for one emitted fragment.
func (c *Counters) RecordFragment(barcode int, cat Category, gapCount, cigarLen int, aligned bool) {
	b, ok := c.ByBarcode[barcode]
	if !ok {
		b = &BarcodeCounters{}
		c.ByBarcode[barcode] = b
	}
	b.ByCategory[cat]++
	b.GapCount += int64(gapCount)
	b.CigarLen += int64(cigarLen)

	c.ReadsSeen++
	if aligned {
		c.ReadsAligned++
	}
}

// Add folds other into c in place, merging per-barcode maps. Add is
// safe to call repeatedly across however many thread-local shards the
// selector produced; the result does not depend on fold order.
func (c *Counters) Add(other *Counters) {
	if other == nil {
		return
	}
	for bc, oc := range other.ByBarcode {
		bcCounters, ok := c.ByBarcode[bc]
		if !ok {
			bcCounters = &BarcodeCounters{}
			c.ByBarcode[bc] = bcCounters
		}
		bcCounters.Add(*oc)
	}
	c.ReadsSeen += other.ReadsSeen
	c.ReadsAligned += other.ReadsAligned
	c.BasesCalled += other.BasesCalled
}
