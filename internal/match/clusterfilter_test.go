// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import "testing"

func TestFilterZeroCeilingKeepsEverything(t *testing.T) {
	f := Filter{}
	matches := make([]Match, 100)
	if !f.Keep(matches) {
		t.Errorf("zero ceiling should never discard a cluster")
	}
}

func TestFilterDropsOverCeiling(t *testing.T) {
	f := Filter{Ceiling: 2}
	matches := []Match{
		{Position: NewPosition(0, 1, false)},
		{Position: NewPosition(0, 2, false)},
		{Position: NewPosition(0, 3, false)},
	}
	if f.Keep(matches) {
		t.Errorf("cluster with 3 matches should be dropped under ceiling 2")
	}
}

func TestFilterIgnoresSentinelsWhenCounting(t *testing.T) {
	f := Filter{Ceiling: 1}
	matches := []Match{
		{Position: NewPosition(0, 1, false)},
		{Position: NoMatch},
		{Position: TooManyMatch},
	}
	if !f.Keep(matches) {
		t.Errorf("sentinel positions should not count toward the ceiling")
	}
}
