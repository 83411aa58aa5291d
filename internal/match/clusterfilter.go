// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

// Filter is the supplemented pre-selector cluster filter: it discards a
// whole cluster's matches before template building starts when the
// cluster's total non-sentinel match count exceeds a configured
// ceiling, so obviously over-repetitive clusters never reach the
// expensive template builder.
type Filter struct {
	// Ceiling is the maximum number of non-sentinel matches a cluster
	// may have before it is discarded. Zero disables the filter.
	Ceiling int
}

// Keep reports whether clusterMatches should proceed to template
// building. All of matches is assumed to belong to one cluster.
func (f Filter) Keep(clusterMatches []Match) bool {
	if f.Ceiling <= 0 {
		return true
	}
	n := 0
	for _, m := range clusterMatches {
		if !m.Position.IsSentinel() {
			n++
			if n > f.Ceiling {
				return false
			}
		}
	}
	return true
}
