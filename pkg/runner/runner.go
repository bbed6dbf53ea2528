package runner

import (
	"context"

	"github.com/pkg/errors"
)

// ErrTimeout is returned when the subject did not finish within its
// time limit. Artifacts of a timed out run may be partial or absent.
var ErrTimeout = errors.New("subject timed out")

// Request is one subject invocation.
type Request struct {
	// Input is the DIMACS text handed to the subject.
	Input []byte
	// ResetCoverage asks the harness to zero the coverage counters
	// before running, as the baseline run does.
	ResetCoverage bool
}

// Result describes a completed run. A nonzero exit code is a normal
// completion.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	// CoverageReports are the paths of the per-file coverage reports.
	CoverageReports []string
	// SanitizerLog is the path of the sanitizer diagnostic stream.
	SanitizerLog string
}

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 . Runner

// Runner invokes the subject. Run blocks until the subject finishes,
// the timeout fires (ErrTimeout) or ctx is cancelled.
type Runner interface {
	Run(ctx context.Context, req Request) (*Result, error)
}
