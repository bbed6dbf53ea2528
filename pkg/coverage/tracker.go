package coverage

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Snapshot maps a source file identifier to cumulative per-line
// execution counts.
type Snapshot map[string][]uint64

// Copy returns a deep copy of s.
func (s Snapshot) Copy() Snapshot {
	out := make(Snapshot, len(s))
	for file, counts := range s {
		c := make([]uint64, len(counts))
		copy(c, counts)
		out[file] = c
	}
	return out
}

// Covered returns the number of lines with a nonzero count.
func (s Snapshot) Covered() int {
	n := 0
	for _, counts := range s {
		for _, c := range counts {
			if c > 0 {
				n++
			}
		}
	}
	return n
}

// Files returns the file identifiers of s in sorted order.
func (s Snapshot) Files() []string {
	files := make([]string, 0, len(s))
	for file := range s {
		files = append(files, file)
	}
	sort.Strings(files)
	return files
}

// Delta is the pointwise difference between two snapshots. Entries are
// signed because a reset of the counters makes them go down.
type Delta map[string][]int64

// Lines returns how many lines changed count.
func (d Delta) Lines() int {
	n := 0
	for _, counts := range d {
		for _, c := range counts {
			if c != 0 {
				n++
			}
		}
	}
	return n
}

// LengthMismatchError reports that a file's line count changed between
// two snapshots. The instrumented subject changed shape, so no delta
// computed against the baseline can be trusted.
type LengthMismatchError struct {
	File     string
	Previous int
	Current  int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("coverage for %s changed length from %d to %d lines", e.File, e.Previous, e.Current)
}

// Tracker decides whether a run reached lines that the immediately
// preceding run had not reached. It keeps a rolling baseline: after
// every Record, the recorded snapshot becomes the baseline.
type Tracker struct {
	previous Snapshot
	logger   logrus.FieldLogger
}

// NewTracker returns a Tracker whose baseline is a copy of baseline.
func NewTracker(baseline Snapshot, logger logrus.FieldLogger) *Tracker {
	if baseline == nil {
		baseline = Snapshot{}
	}
	return &Tracker{previous: baseline.Copy(), logger: logger}
}

// Baseline returns a copy of the current baseline.
func (t *Tracker) Baseline() Snapshot {
	return t.previous.Copy()
}

// Record compares current against the baseline. The run is interesting
// iff some line had a zero count in the baseline and a nonzero count in
// current. Files missing from the baseline compare against zeros; files
// missing from current keep their baseline. A length mismatch is fatal
// and leaves the baseline untouched.
func (t *Tracker) Record(current Snapshot) (bool, Delta, error) {
	delta := make(Delta, len(current))
	interesting := false
	for _, file := range current.Files() {
		counts := current[file]
		prev, ok := t.previous[file]
		if !ok {
			prev = make([]uint64, len(counts))
		}
		if len(prev) != len(counts) {
			return false, nil, &LengthMismatchError{File: file, Previous: len(prev), Current: len(counts)}
		}
		d := make([]int64, len(counts))
		for i, c := range counts {
			if prev[i] == 0 && c > 0 {
				interesting = true
			}
			d[i] = int64(c) - int64(prev[i])
		}
		delta[file] = d
	}

	next := current.Copy()
	for file, counts := range t.previous {
		if _, ok := next[file]; !ok {
			next[file] = counts
		}
	}
	t.previous = next

	if t.logger != nil {
		t.logger.WithFields(logrus.Fields{
			"interesting": interesting,
			"changed":     delta.Lines(),
			"covered":     current.Covered(),
		}).Debug("recorded coverage")
	}
	return interesting, delta, nil
}
