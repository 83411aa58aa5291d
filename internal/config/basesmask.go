// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kestrelseq/kestrel/internal/cluster"
)

// BasesMask parses a use-bases-mask string such as "Y*,I8,Y*" into a
// ReadSchedule. This supplements spec.md, which takes the read schedule
// as a given input; it is ported in spirit from the original source's
// UseBasesMaskGrammar (a boost::spirit PEG grammar), reimplemented here
// as a small hand-written scanner since the core doesn't otherwise need
// a parser-combinator dependency.
//
// Each comma-separated segment describes one physical read's cycles as
// a string of 'y' (sequenced base), 'i' (index/barcode base) or 'n'
// (skipped cycle), each optionally followed by a repeat count, or by '*'
// meaning "consume the rest of this segment's cycle allotment".
// cycleCounts gives the number of cycles allotted to each comma-separated
// segment, in order.
func BasesMask(mask string, cycleCounts []int) (cluster.ReadSchedule, error) {
	segments := strings.Split(mask, ",")
	if len(segments) > len(cycleCounts) {
		return nil, fmt.Errorf("basesmask %q has more segments than cycle counts", mask)
	}

	var schedule cluster.ReadSchedule
	cycle := 0
	readIndex := 0
	for i, seg := range segments {
		budget := cycleCounts[i]
		used := 0
		runes := []byte(seg)
		for j := 0; j < len(runes); j++ {
			c := runes[j]
			var kind byte
			switch c {
			case 'Y', 'y':
				kind = 'y'
			case 'I', 'i':
				kind = 'i'
			case 'N', 'n':
				kind = 'n'
			default:
				return nil, fmt.Errorf("basesmask %q: invalid character %q", mask, c)
			}

			count := 1
			star := false
			if j+1 < len(runes) && runes[j+1] == '*' {
				star = true
				j++
			} else {
				digits := 0
				for j+1 < len(runes) && runes[j+1] >= '0' && runes[j+1] <= '9' {
					digits++
					j++
				}
				if digits > 0 {
					n, err := strconv.Atoi(string(runes[j-digits+1 : j+1]))
					if err != nil {
						return nil, fmt.Errorf("basesmask %q: %w", mask, err)
					}
					count = n
				}
			}
			if star {
				count = budget - used
			}
			if count < 0 {
				return nil, fmt.Errorf("basesmask %q: segment %d exceeds its cycle budget", mask, i)
			}

			if kind == 'y' && count > 0 {
				name := fmt.Sprintf("R%d", readIndex+1)
				schedule = append(schedule, cluster.Read{
					Name:         name,
					Offset:       cycle,
					Length:       count,
					SecondOfPair: readIndex == 1,
				})
				readIndex++
			}
			cycle += count
			used += count
		}
		if used > budget {
			return nil, fmt.Errorf("basesmask %q: segment %d uses %d cycles, budget is %d", mask, i, used, budget)
		}
	}
	return schedule, nil
}
