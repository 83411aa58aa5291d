// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import "testing"

func TestBasesMaskPairedWithIndex(t *testing.T) {
	// R1: 100 cycles, index: 8 cycles, R2: 100 cycles.
	sched, err := BasesMask("Y*,I8,Y*", []int{100, 8, 100})
	if err != nil {
		t.Fatalf("BasesMask: %v", err)
	}
	if len(sched) != 2 {
		t.Fatalf("len(sched) = %d, want 2", len(sched))
	}
	if sched[0].Offset != 0 || sched[0].Length != 100 || sched[0].SecondOfPair {
		t.Errorf("R1 = %+v, want offset 0 length 100 not-second", sched[0])
	}
	if sched[1].Offset != 108 || sched[1].Length != 100 || !sched[1].SecondOfPair {
		t.Errorf("R2 = %+v, want offset 108 length 100 second", sched[1])
	}
}

func TestBasesMaskSingleEnded(t *testing.T) {
	sched, err := BasesMask("Y*", []int{36})
	if err != nil {
		t.Fatalf("BasesMask: %v", err)
	}
	if len(sched) != 1 || sched[0].Length != 36 {
		t.Fatalf("sched = %+v", sched)
	}
}

func TestBasesMaskSkippedCycles(t *testing.T) {
	sched, err := BasesMask("N1Y34N1", []int{36})
	if err != nil {
		t.Fatalf("BasesMask: %v", err)
	}
	if len(sched) != 1 || sched[0].Offset != 1 || sched[0].Length != 34 {
		t.Fatalf("sched = %+v", sched)
	}
}

func TestBasesMaskRejectsOverBudget(t *testing.T) {
	if _, err := BasesMask("Y40", []int{36}); err == nil {
		t.Errorf("expected error for segment exceeding its cycle budget")
	}
}

func TestBasesMaskRejectsInvalidChar(t *testing.T) {
	if _, err := BasesMask("Z10", []int{10}); err == nil {
		t.Errorf("expected error for invalid character")
	}
}
