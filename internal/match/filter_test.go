// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import "testing"

func TestFilterTableABCDAcceptsAllLowMismatchPatterns(t *testing.T) {
	patterns := []mismatchPair{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {2, 0}}
	for _, p := range patterns {
		if !Accept("ABCD", p.c, p.d) {
			t.Errorf("ABCD rejected (%d,%d), want accept", p.c, p.d)
		}
	}
}

func TestFilterTableBCDAAcceptsNothing(t *testing.T) {
	for c := 0; c <= 2; c++ {
		for d := 0; d <= 2-c; d++ {
			if Accept("BCDA", c, d) {
				t.Errorf("BCDA accepted (%d,%d), want reject", c, d)
			}
		}
	}
}

// TestFilterTablesOpenQuestionA documents a preserved-as-is quirk: the
// (1,1) pattern is accepted by ABCD and also by each of CDAB, ACBD,
// BDAC and ADBC, so a cluster whose mismatches fall as (1,1) under more
// than one of those permutations is reported more than once. This
// mirrors the source's own filter tables rather than correcting them.
func TestFilterTablesOpenQuestionA(t *testing.T) {
	acceptingOnePOne := 0
	for _, name := range []string{"ABCD", "BCDA", "CDAB", "ACBD", "BDAC", "ADBC"} {
		if Accept(name, 1, 1) {
			acceptingOnePOne++
		}
	}
	if acceptingOnePOne != 5 {
		t.Errorf("permutations accepting (1,1) = %d, want 5 (open question a)", acceptingOnePOne)
	}
}

func TestAcceptRejectsOverTwoMismatches(t *testing.T) {
	if Accept("ABCD", 2, 1) {
		t.Errorf("Accept should reject any pattern with mismatchC+mismatchD > 2")
	}
}

func TestAcceptUnknownPermutation(t *testing.T) {
	if Accept("ZZZZ", 0, 0) {
		t.Errorf("unknown permutation name must not accept")
	}
}
