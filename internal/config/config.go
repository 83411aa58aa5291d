// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds the core's recognized options (spec §6) and
// validates them at start-up, before any tile is processed, as required
// by spec §7's "Option" error kind.
package config

import (
	"fmt"

	"github.com/kestrelseq/kestrel/internal/errs"
	"github.com/kestrelseq/kestrel/internal/oligo"
)

// KeepUnaligned selects how unaligned fragments are handled.
type KeepUnaligned int

const (
	Discard KeepUnaligned = iota
	Front
	Back
)

func ParseKeepUnaligned(s string) (KeepUnaligned, error) {
	switch s {
	case "discard", "":
		return Discard, nil
	case "front":
		return Front, nil
	case "back":
		return Back, nil
	default:
		return 0, fmt.Errorf("unknown keepUnaligned value %q", s)
	}
}

// DodgyAlignmentScore selects the MAPQ reported for a cluster whose best
// alignment score is indeterminate.
type DodgyAlignmentScore struct {
	Unknown   bool // report the sentinel 255
	Unaligned bool // report as unaligned (MAPQ 0)
	Fixed     int  // otherwise, a fixed value in 0..254
}

// MemoryControl selects how the malloc-block hook reacts to an
// allocation during a critical section (spec §5).
type MemoryControl int

const (
	MemoryOff MemoryControl = iota
	MemoryWarn
	MemoryStrict
)

func ParseMemoryControl(s string) (MemoryControl, error) {
	switch s {
	case "off", "":
		return MemoryOff, nil
	case "warning":
		return MemoryWarn, nil
	case "strict":
		return MemoryStrict, nil
	default:
		return 0, fmt.Errorf("unknown memoryControl value %q", s)
	}
}

// RealignGaps selects the scope of gap realignment, per spec §6.
type RealignGaps int

const (
	RealignNo RealignGaps = iota
	RealignSample
	RealignProject
	RealignAll
)

func ParseRealignGaps(s string) (RealignGaps, error) {
	switch s {
	case "no", "":
		return RealignNo, nil
	case "sample":
		return RealignSample, nil
	case "project":
		return RealignProject, nil
	case "all":
		return RealignAll, nil
	default:
		return 0, fmt.Errorf("unknown realignGaps value %q", s)
	}
}

// GapScoring holds the {match, mismatch, gap-open, gap-extend, min-extend}
// scheme used by the gapped aligner. BWAGapScoring and ELANDGapScoring
// are the named presets (bwa, eland); no parser for an explicit
// m:mm:go:ge:me string exists.
type GapScoring struct {
	Match, Mismatch     int
	GapOpen, GapExtend  int
	MinExtend           int
}

var (
	// BWAGapScoring matches bwa's default scoring scheme.
	BWAGapScoring = GapScoring{Match: 1, Mismatch: -4, GapOpen: -6, GapExtend: -1, MinExtend: 20}
	// ELANDGapScoring matches ELAND's default scoring scheme.
	ELANDGapScoring = GapScoring{Match: 2, Mismatch: -4, GapOpen: -8, GapExtend: -2, MinExtend: 15}
)

// Options holds every recognized configuration value from spec §6.
type Options struct {
	SeedLength       oligo.Width
	RepeatThreshold  int
	SeedDescriptor   string // "auto", "all", or colon-delimited offsets per read
	FirstPassSeeds   int
	BaseQualityCutoff byte
	GapScoring       GapScoring
	GappedMismatchesMax int
	AvoidSmithWaterman  bool
	SemialignedGapLimit int
	MapqThreshold       int
	ClipSemialigned     bool
	ClipOverlapping     bool
	KeepUnaligned       KeepUnaligned
	ScatterRepeats      bool
	DodgyAlignmentScore DodgyAlignmentScore
	MemoryControl       MemoryControl
	MemoryLimitGB       int
	QScoreBin           bool
	QScoreBinValues     *[256]byte
	RealignGaps         RealignGaps
	IgnoreMissingBcls   bool
}

// Default returns the option set used when nothing overrides it.
func Default() Options {
	return Options{
		SeedLength:          oligo.W32,
		RepeatThreshold:     16,
		SeedDescriptor:      "auto",
		FirstPassSeeds:      2,
		BaseQualityCutoff:   0,
		GapScoring:          BWAGapScoring,
		GappedMismatchesMax: 1,
		SemialignedGapLimit: 3,
		MapqThreshold:       0,
		KeepUnaligned:       Discard,
		DodgyAlignmentScore: DodgyAlignmentScore{Unknown: true},
		MemoryControl:       MemoryOff,
		MemoryLimitGB:       0,
		RealignGaps:         RealignNo,
	}
}

// Validate checks option combinations that are only meaningful together,
// returning a fatal *errs.Error of Kind Option on failure. Per spec §7
// this must run before any tile is processed.
func (o Options) Validate() error {
	if !o.SeedLength.Valid() {
		return errs.New(errs.Option, "config.Validate", fmt.Errorf("seedLength must be 16, 32 or 64, got %d", o.SeedLength))
	}
	if o.RepeatThreshold < 0 {
		return errs.New(errs.Option, "config.Validate", fmt.Errorf("repeatThreshold must be >= 0, got %d", o.RepeatThreshold))
	}
	if o.QScoreBinValues != nil && !o.QScoreBin {
		return errs.New(errs.Option, "config.Validate", fmt.Errorf("qScoreBinValues set with qScoreBin=false"))
	}
	if o.FirstPassSeeds <= 0 && o.SeedDescriptor == "auto" {
		if o.SemialignedGapLimit <= 0 {
			return errs.New(errs.Option, "config.Validate", fmt.Errorf("firstPassSeeds=%d with seedDescriptor=auto yields no usable seeds on short reads", o.FirstPassSeeds))
		}
		// With semialignedGapLimit > 0 this combination is accepted, and
		// seed.AutoSchedule treats firstPassSeeds <= 0 as the two-seed
		// schedule; see spec §9 Open Question (b).
	}
	d := o.DodgyAlignmentScore
	if !d.Unknown && !d.Unaligned && (d.Fixed < 0 || d.Fixed > 254) {
		return errs.New(errs.Option, "config.Validate", fmt.Errorf("dodgyAlignmentScore fixed value must be 0..254, got %d", d.Fixed))
	}
	if o.MemoryControl == MemoryStrict && o.MemoryLimitGB <= 0 {
		return errs.New(errs.Option, "config.Validate", fmt.Errorf("memoryControl=strict requires memoryLimit > 0"))
	}
	return nil
}
