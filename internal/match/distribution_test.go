// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package match

import "testing"

func TestDistributionAddAndBins(t *testing.T) {
	d := NewDistribution([]uint64{1000}, 100)
	d.Add(0, 5)
	d.Add(0, 150)
	d.Add(0, 151)
	bins := d.Bins(0)
	if bins[0] != 1 {
		t.Errorf("bin 0 count = %d, want 1", bins[0])
	}
	if bins[1] != 2 {
		t.Errorf("bin 1 count = %d, want 2", bins[1])
	}
}

func TestDistributionAddPositionSkipsSentinels(t *testing.T) {
	d := NewDistribution([]uint64{1000}, 100)
	d.AddPosition(TooManyMatch)
	d.AddPosition(NoMatch)
	for _, c := range d.Bins(0) {
		if c != 0 {
			t.Fatalf("sentinel position was counted into distribution")
		}
	}
}

func TestBuildOutputBinsNeverCrossesContigs(t *testing.T) {
	d := NewDistribution([]uint64{250, 250}, 100)
	for i := 0; i < 3; i++ {
		d.Add(0, uint64(i*100))
		d.Add(1, uint64(i*100))
	}
	bins := d.BuildOutputBins(1)
	for _, b := range bins {
		if b.Contig != 0 && b.Contig != 1 {
			t.Fatalf("unexpected contig %d", b.Contig)
		}
	}
	seenContig := -1
	for _, b := range bins {
		if b.Contig < seenContig {
			t.Fatalf("bins not grouped by contig in order: %+v", bins)
		}
		seenContig = b.Contig
	}
}

func TestBuildOutputBinsRespectsOutputBinSize(t *testing.T) {
	d := NewDistribution([]uint64{1000}, 10)
	for i := 0; i < 100; i++ {
		d.Add(0, uint64(i*10))
	}
	bins := d.BuildOutputBins(25)
	for _, b := range bins {
		if b.Count > 25 {
			// Only the last bin of a contig may exceed outputBinSize.
			last := bins[len(bins)-1]
			if b != last {
				t.Errorf("non-final bin %+v exceeds outputBinSize", b)
			}
		}
	}
}
