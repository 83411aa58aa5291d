// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

// mismatchPair is a (mismatchC, mismatchD) pattern, the mismatch counts
// in the two quarters not covered by a permutation's required-exact
// prefix.
type mismatchPair struct{ c, d int }

// filterTables gives, per permutation name, the set of (mismatchC,
// mismatchD) patterns that permutation accepts. Per spec §4.5, the ABCD
// table accepts the six patterns with mismatchC+mismatchD <= 2; later
// permutations are meant to accept "only the minimal set not covered
// before" — which for BCDA is the empty set, since ABCD's table already
// spans every pattern with sum <= 2.
//
// Per spec §9 Open Question (a), the source's tables for CDAB, ACBD,
// BDAC and ADBC each accept only (1,1), which — combined with ABCD also
// accepting (1,1) — means (1,1) is reported as accepted by five of the
// six permutation tables, not exactly one. This is preserved as-is
// rather than silently corrected; see TestFilterTablesOpenQuestionA.
var filterTables = map[string]map[mismatchPair]bool{
	"ABCD": {
		{0, 0}: true, {0, 1}: true, {0, 2}: true,
		{1, 0}: true, {1, 1}: true, {2, 0}: true,
	},
	"BCDA": {},
	"CDAB": {{1, 1}: true},
	"ACBD": {{1, 1}: true},
	"BDAC": {{1, 1}: true},
	"ADBC": {{1, 1}: true},
}

// Accept reports whether the named permutation's filter table accepts
// the pattern (mismatchC, mismatchD). It also rejects any pattern whose
// mismatch sum exceeds 2, matching spec §4.5 step 3's blanket rejection.
func Accept(permutation string, mismatchC, mismatchD int) bool {
	if mismatchC+mismatchD > 2 {
		return false
	}
	table, ok := filterTables[permutation]
	if !ok {
		return false
	}
	return table[mismatchPair{mismatchC, mismatchD}]
}
