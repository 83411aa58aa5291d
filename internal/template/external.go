// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package template

import (
	"os/exec"

	"github.com/biogo/external"

	"github.com/kestrelseq/kestrel/internal/config"
)

// RealignTool describes an external gap-realignment command invoked
// when config.RealignGaps is RealignSample, RealignProject, or
// RealignAll (spec §6's realignGaps option). It follows the same
// struct-tag argument-building convention the blast package uses for
// NCBI+ BLAST, rather than hand-assembling an argument slice.
type RealignTool struct {
	// Cmd names the realigner binary; defaults to "gatk3-realigner" if
	// empty.
	Cmd string `buildarg:"{{if .}}{{.}}{{else}}gatk3-realigner{{end}}"`

	Reference string `buildarg:"{{with .}}-R{{split}}{{.}}{{end}}"` // -R <fasta>
	Input     string `buildarg:"{{with .}}-I{{split}}{{.}}{{end}}"` // -I <bin-file>
	Targets   string `buildarg:"{{with .}}-targetIntervals{{split}}{{.}}{{end}}"`
	Output    string `buildarg:"{{with .}}-o{{split}}{{.}}{{end}}"` // -o <bin-file>
	Threads   int    `buildarg:"{{if .}}-nt{{split}}{{.}}{{end}}"`  // -nt <n>

	// ExtraFlags is passed through as additional flags.
	ExtraFlags []string
}

// BuildCommand assembles the exec.Cmd for the configured realigner
// invocation.
func (r RealignTool) BuildCommand() (*exec.Cmd, error) {
	cl := external.Must(external.Build(r))
	return exec.Command(cl[0], append(cl[1:], r.ExtraFlags...)...), nil
}

// ShouldRealign reports whether scope allows realigning the bin
// identified by isSample/isProject flags. RealignAll always realigns;
// RealignSample only realigns the bin holding the full sample;
// RealignProject only realigns the bin holding the full project.
func ShouldRealign(scope config.RealignGaps, isSample, isProject bool) bool {
	switch scope {
	case config.RealignAll:
		return true
	case config.RealignSample:
		return isSample
	case config.RealignProject:
		return isProject
	default:
		return false
	}
}
