// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package psort implements the work-stealing parallel quicksort of
// spec §4.4, used to sort seeds and matches under a fixed memory budget.
package psort

import (
	"sort"
	"sync"
)

// Interface is the subset of sort.Interface the parallel sorter needs;
// it is satisfied by sort.Interface itself.
type Interface interface {
	Len() int
	Less(i, j int) bool
	Swap(i, j int)
}

type rangeItem struct {
	begin, end int
}

func (r rangeItem) size() int { return r.end - r.begin }

// rangeHeap is a max-heap on range size, so the largest pending range is
// always popped first.
type rangeHeap []rangeItem

func (h rangeHeap) Len() int           { return len(h) }
func (h rangeHeap) Less(i, j int) bool { return h[i].size() > h[j].size() }
func (h rangeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

// Sort sorts data in place using up to threads worker goroutines. A
// range is handed off to sequential sort once its size drops to or below
// total/threads/100; larger ranges are partitioned around the
// mid-element pivot, with the smaller half pushed back onto a shared
// max-heap of pending ranges while the worker continues on the larger
// half without giving up its slot. This matches spec §4.4's fallback
// threshold and "push the smaller, continue on the larger" rule.
func Sort(data Interface, threads int) {
	n := data.Len()
	if n < 2 {
		return
	}
	if threads < 1 {
		threads = 1
	}

	thresh := n / threads / 100
	if thresh < 1 {
		thresh = 1
	}

	var (
		mu   sync.Mutex
		cond = sync.NewCond(&mu)
		h    = &rangeHeap{{0, n}}
		busy int
	)

	worker := func() {
		for {
			mu.Lock()
			for h.Len() == 0 && busy > 0 {
				cond.Wait()
			}
			if h.Len() == 0 && busy == 0 {
				mu.Unlock()
				return
			}
			r := sortPop(h)
			busy++
			mu.Unlock()

			for r.size() > thresh {
				lo, hi := partitionMidpoint(data, r.begin, r.end)
				left := rangeItem{r.begin, lo}
				right := rangeItem{hi, r.end}
				var smaller, larger rangeItem
				if left.size() < right.size() {
					smaller, larger = left, right
				} else {
					smaller, larger = right, left
				}
				if smaller.size() > 0 {
					mu.Lock()
					sortPush(h, smaller)
					cond.Broadcast()
					mu.Unlock()
				}
				r = larger
			}
			sequentialSort(data, r.begin, r.end)

			mu.Lock()
			busy--
			cond.Broadcast()
			mu.Unlock()
		}
	}

	var wg sync.WaitGroup
	wg.Add(threads)
	for i := 0; i < threads; i++ {
		go func() {
			defer wg.Done()
			worker()
		}()
	}
	wg.Wait()
}

func sortPop(h *rangeHeap) rangeItem {
	old := *h
	n := len(old)
	// Manual max-heap pop (avoids container/heap's interface{}
	// boxing on the hot path and keeps this partitioning section
	// allocation-free, per spec §4.4/§5's malloc-block discipline).
	top := old[0]
	old[0] = old[n-1]
	*h = old[:n-1]
	down(*h, 0)
	return top
}

func sortPush(h *rangeHeap, item rangeItem) {
	*h = append(*h, item)
	up(*h, len(*h)-1)
}

func up(h rangeHeap, i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !h.Less(i, parent) {
			return
		}
		h.Swap(i, parent)
		i = parent
	}
}

func down(h rangeHeap, i int) {
	n := len(h)
	for {
		left := 2*i + 1
		if left >= n {
			return
		}
		smallest := left
		if right := left + 1; right < n && h.Less(right, left) {
			smallest = right
		}
		if !h.Less(smallest, i) {
			return
		}
		h.Swap(i, smallest)
		i = smallest
	}
}

// partitionMidpoint performs an in-place Lomuto partition of
// data[begin:end) around the mid-element pivot, returning [lo, hi) such
// that data[begin:lo) are all strictly less than the pivot, data[hi:end)
// are all not less than it, and the pivot itself sits at index lo (so
// hi == lo+1). No allocation occurs in this function.
func partitionMidpoint(data Interface, begin, end int) (lo, hi int) {
	mid := begin + (end-begin)/2
	last := end - 1
	data.Swap(mid, last)
	store := begin
	for i := begin; i < last; i++ {
		if data.Less(i, last) {
			data.Swap(i, store)
			store++
		}
	}
	data.Swap(store, last)
	return store, store + 1
}

// sequentialSort sorts data[begin:end) with the standard library's
// introsort, used once a range is small enough that parallel overhead
// outweighs the benefit.
func sequentialSort(data Interface, begin, end int) {
	sort.Sort(&subrange{data, begin, end})
}

type subrange struct {
	data       Interface
	begin, end int
}

func (s *subrange) Len() int           { return s.end - s.begin }
func (s *subrange) Less(i, j int) bool { return s.data.Less(s.begin+i, s.begin+j) }
func (s *subrange) Swap(i, j int)      { s.data.Swap(s.begin+i, s.begin+j) }
