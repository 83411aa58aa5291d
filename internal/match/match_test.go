// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import (
	"testing"

	"github.com/kestrelseq/kestrel/internal/seed"
)

func TestPositionRoundTrip(t *testing.T) {
	cases := []struct {
		contig       int
		offset       uint64
		hasNeighbors bool
	}{
		{0, 0, false},
		{1, 12345, true},
		{contigMask - 1, positionValueMask, true},
	}
	for _, c := range cases {
		p := NewPosition(c.contig, c.offset, c.hasNeighbors)
		if p.Contig() != c.contig {
			t.Errorf("Contig() = %d, want %d", p.Contig(), c.contig)
		}
		if p.Offset() != c.offset {
			t.Errorf("Offset() = %d, want %d", p.Offset(), c.offset)
		}
		if p.HasNeighbors() != c.hasNeighbors {
			t.Errorf("HasNeighbors() = %v, want %v", p.HasNeighbors(), c.hasNeighbors)
		}
		if p.IsSentinel() {
			t.Errorf("ordinary position reported as sentinel")
		}
	}
}

func TestSentinelsAreDistinctAndNotOrdinary(t *testing.T) {
	if !TooManyMatch.IsTooManyMatch() || TooManyMatch.IsNoMatch() {
		t.Errorf("TooManyMatch misclassified")
	}
	if !NoMatch.IsNoMatch() || NoMatch.IsTooManyMatch() {
		t.Errorf("NoMatch misclassified")
	}
	if TooManyMatch == NoMatch {
		t.Errorf("sentinels must be distinct")
	}
	ordinary := NewPosition(contigMask, positionValueMask, true)
	if ordinary.IsSentinel() {
		t.Errorf("max-valued ordinary position collided with a sentinel")
	}
}

func TestMatchLessOrdersBySeedIDThenPosition(t *testing.T) {
	idLow := seed.Pack(0, 0, 0, 0, false)
	idHigh := seed.Pack(0, 0, 0, 1, false)

	a := Match{SeedID: idLow, Position: NewPosition(5, 100, false)}
	b := Match{SeedID: idLow, Position: NewPosition(5, 200, false)}
	if !a.Less(b) {
		t.Errorf("expected same-seed match with smaller position to sort first")
	}

	c := Match{SeedID: idHigh, Position: NewPosition(0, 0, false)}
	if !a.Less(c) {
		t.Errorf("expected smaller seed id to sort first regardless of position")
	}
}

func TestByClusterOrderSort(t *testing.T) {
	matches := ByClusterOrder{
		{SeedID: seed.Pack(0, 0, 1, 0, false), Position: NewPosition(0, 50, false)},
		{SeedID: seed.Pack(0, 0, 0, 0, false), Position: NewPosition(0, 10, false)},
		{SeedID: seed.Pack(0, 0, 0, 0, false), Position: NewPosition(0, 5, false)},
	}
	sortSlice(matches)
	for i := 1; i < len(matches); i++ {
		if matches[i-1].Less(matches[i]) == false && matches[i].Less(matches[i-1]) {
			t.Fatalf("not sorted at %d", i)
		}
	}
}

func sortSlice(s ByClusterOrder) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s.Less(j, j-1); j-- {
			s.Swap(j, j-1)
		}
	}
}
