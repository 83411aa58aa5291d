// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package psort

import (
	"math/rand"
	"sort"
	"testing"
)

type intSlice []int

func (s intSlice) Len() int           { return len(s) }
func (s intSlice) Less(i, j int) bool { return s[i] < s[j] }
func (s intSlice) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }

func TestSortEmptyAndSingleton(t *testing.T) {
	var empty intSlice
	Sort(empty, 4)

	single := intSlice{42}
	Sort(single, 4)
	if single[0] != 42 {
		t.Errorf("singleton mutated: got %d", single[0])
	}
}

func TestSortMatchesStandardLibrary(t *testing.T) {
	sizes := []int{2, 3, 10, 100, 1000, 5000}
	for _, n := range sizes {
		r := rand.New(rand.NewSource(int64(n)))
		data := make(intSlice, n)
		for i := range data {
			data[i] = r.Intn(1000)
		}
		want := make(intSlice, n)
		copy(want, data)
		sort.Sort(want)

		Sort(data, 4)
		for i := range data {
			if data[i] != want[i] {
				t.Fatalf("n=%d: mismatch at index %d: got %d, want %d", n, i, data[i], want[i])
			}
		}
	}
}

func TestSortWithSingleThread(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	data := make(intSlice, 2000)
	for i := range data {
		data[i] = r.Intn(10000)
	}
	want := make(intSlice, len(data))
	copy(want, data)
	sort.Sort(want)

	Sort(data, 1)
	for i := range data {
		if data[i] != want[i] {
			t.Fatalf("mismatch at index %d: got %d, want %d", i, data[i], want[i])
		}
	}
}

func TestSortAllEqualElements(t *testing.T) {
	data := make(intSlice, 500)
	for i := range data {
		data[i] = 7
	}
	Sort(data, 8)
	for i, v := range data {
		if v != 7 {
			t.Fatalf("index %d: got %d, want 7", i, v)
		}
	}
}

func TestSortAlreadySorted(t *testing.T) {
	data := make(intSlice, 300)
	for i := range data {
		data[i] = i
	}
	Sort(data, 6)
	for i, v := range data {
		if v != i {
			t.Fatalf("index %d: got %d, want %d", i, v, i)
		}
	}
}

func TestSortReverseSorted(t *testing.T) {
	n := 300
	data := make(intSlice, n)
	for i := range data {
		data[i] = n - i
	}
	Sort(data, 6)
	for i := 1; i < len(data); i++ {
		if data[i-1] > data[i] {
			t.Fatalf("not sorted at %d: %d > %d", i, data[i-1], data[i])
		}
	}
}
