// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package errs provides the typed error kinds surfaced by the core
// pipeline, matching the error design in spec §7: each kind is either
// fatal (I/O, Format, Resource, Option, Internal) or is handled locally
// by the caller and never reaches this package.
package errs

import "fmt"

// Kind classifies a fatal error raised anywhere in the pipeline.
type Kind int

const (
	// IO covers missing or unreadable mask, bin, or base-call files.
	IO Kind = iota
	// Format covers unsupported reference versions, unsorted mask
	// files, and bin records whose header doesn't match their bytes.
	Format
	// Resource covers memory-cap violations and ulimit failures.
	Resource
	// Option covers invalid configuration combinations, caught before
	// any tile is processed.
	Option
	// Internal covers assertion failures in sort, BinIndexMap, or the
	// template builder.
	Internal
)

func (k Kind) String() string {
	switch k {
	case IO:
		return "I/O"
	case Format:
		return "format"
	case Resource:
		return "resource"
	case Option:
		return "option"
	case Internal:
		return "internal invariant"
	default:
		return "unknown"
	}
}

// Error is a fatal error tagged with its Kind so a single top-level
// handler can decide the process exit code without re-deriving the
// cause from the wrapped message.
type Error struct {
	Kind Kind
	Op   string // operation that failed, e.g. "refidx.OpenMaskFile"
	Path string // file path, if applicable
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s: %v", e.Kind, e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a fatal error of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// NewPath wraps err as a fatal error of the given kind, identifying the
// file that caused it.
func NewPath(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// ExitCode returns the process exit code a top-level handler should use
// for err, defaulting to 1 for errors not tagged with a Kind.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if !asError(err, &e) {
		return 1
	}
	switch e.Kind {
	case IO:
		return 2
	case Format:
		return 3
	case Resource:
		return 4
	case Option:
		return 5
	case Internal:
		return 134 // conventional "aborted" code, core-dump-adjacent
	default:
		return 1
	}
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
