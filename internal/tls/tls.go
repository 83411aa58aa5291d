// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tls implements the template-length (insert-size) estimator of
// spec §4.8: a running five-number summary plus dominant orientation
// model, frozen once stable.
package tls

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Model is one of the eight paired-orientation classes.
type Model int

const (
	FFp Model = iota
	FRp
	RFp
	RRp
	FFm
	FRm
	RFm
	RRm
)

func (m Model) String() string {
	names := [...]string{"FFp", "FRp", "RFp", "RRp", "FFm", "FRm", "RFm", "RRm"}
	if int(m) < 0 || int(m) >= len(names) {
		return "unknown"
	}
	return names[m]
}

// Stats is the frozen template-length statistics record of spec §3.
type Stats struct {
	Min, Max         int
	Median           float64
	LowStddev, HighStddev float64
	Model0, Model1   Model
	Stable           bool
}

// Observation is one well-aligned pair's length and orientation, fed to
// the estimator.
type Observation struct {
	Length int
	Model  Model
}

// Estimator accumulates observations per barcode until the five-number
// summary stabilizes between batches and one model reaches a strict
// majority.
type Estimator struct {
	batchSize int
	tolerance float64

	lengths    []float64
	modelCount [8]int
	prevStats  Stats
	haveStats  bool
	frozen     *Stats
}

// New creates an Estimator that checks for stability every batchSize
// observations, requiring the five-number summary to move by less than
// tolerance between successive batches.
func New(batchSize int, tolerance float64) *Estimator {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Estimator{batchSize: batchSize, tolerance: tolerance}
}

// Add records one observation. It returns the frozen Stats once the
// estimator becomes stable; subsequent calls are no-ops and keep
// returning the same frozen record.
func (e *Estimator) Add(obs Observation) (Stats, bool) {
	if e.frozen != nil {
		return *e.frozen, true
	}

	e.lengths = append(e.lengths, float64(obs.Length))
	e.modelCount[obs.Model]++

	if len(e.lengths)%e.batchSize != 0 {
		return Stats{}, false
	}

	cur := e.summarize()
	if e.haveStats && e.within(e.prevStats, cur) && e.hasMajorityModel() {
		e.frozen = &cur
		e.frozen.Stable = true
		return *e.frozen, true
	}
	e.prevStats = cur
	e.haveStats = true
	return Stats{}, false
}

// Frozen reports the frozen Stats, if any, without mutating state.
func (e *Estimator) Frozen() (Stats, bool) {
	if e.frozen == nil {
		return Stats{}, false
	}
	return *e.frozen, true
}

// Freeze forces the estimator to emit a frozen record from whatever
// observations it has so far, used for single-ended data and small
// samples that never reach batchSize, per spec §4.8's "unstable" path.
func (e *Estimator) Freeze() Stats {
	if e.frozen != nil {
		return *e.frozen
	}
	s := e.summarize()
	s.Stable = false
	return s
}

func (e *Estimator) summarize() Stats {
	if len(e.lengths) == 0 {
		return Stats{}
	}
	sorted := make([]float64, len(e.lengths))
	copy(sorted, e.lengths)
	sort.Float64s(sorted)

	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	lowQ := stat.Quantile(0.16, stat.Empirical, sorted, nil)
	highQ := stat.Quantile(0.84, stat.Empirical, sorted, nil)

	m0, m1 := e.topTwoModels()

	return Stats{
		Min:        int(sorted[0]),
		Max:        int(sorted[len(sorted)-1]),
		Median:     median,
		LowStddev:  median - lowQ,
		HighStddev: highQ - median,
		Model0:     m0,
		Model1:     m1,
	}
}

func (e *Estimator) topTwoModels() (Model, Model) {
	type mc struct {
		m Model
		c int
	}
	var counts []mc
	for m, c := range e.modelCount {
		counts = append(counts, mc{Model(m), c})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].c > counts[j].c })
	m0 := counts[0].m
	m1 := m0
	if len(counts) > 1 {
		m1 = counts[1].m
	}
	return m0, m1
}

func (e *Estimator) hasMajorityModel() bool {
	total := 0
	for _, c := range e.modelCount {
		total += c
	}
	if total == 0 {
		return false
	}
	for _, c := range e.modelCount {
		if c*2 > total {
			return true
		}
	}
	return false
}

// within reports whether every field of a and b agrees to within
// e.tolerance, using gonum/floats' absolute-tolerance comparison rather
// than a hand-rolled diff.
func (e *Estimator) within(a, b Stats) bool {
	return floats.EqualWithinAbs(float64(a.Min), float64(b.Min), e.tolerance) &&
		floats.EqualWithinAbs(a.LowStddev, b.LowStddev, e.tolerance) &&
		floats.EqualWithinAbs(a.Median, b.Median, e.tolerance) &&
		floats.EqualWithinAbs(a.HighStddev, b.HighStddev, e.tolerance) &&
		floats.EqualWithinAbs(float64(a.Max), float64(b.Max), e.tolerance)
}

// InsertSizePenalty returns the paired-alignment score penalty of spec
// §4.7: zero when length falls within [s.Min, s.Max] under the expected
// orientation model, a large constant otherwise.
func InsertSizePenalty(s Stats, length int, model Model) int {
	const largePenalty = 1 << 16
	if !s.Stable {
		return 0
	}
	if model != s.Model0 && model != s.Model1 {
		return largePenalty
	}
	if length < s.Min || length > s.Max {
		return largePenalty
	}
	return 0
}
