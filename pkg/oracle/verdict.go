package oracle

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/go-air/gini/dimacs"
	"github.com/go-air/gini/z"
	"github.com/pkg/errors"

	"github.com/operator-framework/satfuzz/pkg/runner"
	"github.com/operator-framework/satfuzz/pkg/transform"
)

// Conventional solver exit codes.
const (
	exitSatisfiable   = 10
	exitUnsatisfiable = 20
)

// solution collects the status line of a solver output.
type solution struct {
	result int
	seen   bool
}

func (s *solution) Solution(r int) {
	s.result = r
	s.seen = true
}

func (s *solution) Value(z.Lit) {}

func (s *solution) Eof() {}

// ParseVerdict reads the "s SATISFIABLE" / "s UNSATISFIABLE" /
// "s UNKNOWN" status line from solver output. Everything except status
// lines is ignored; output without one is UNKNOWN.
func ParseVerdict(output []byte) (transform.Label, error) {
	var status bytes.Buffer
	sc := bufio.NewScanner(bytes.NewReader(output))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "s ") {
			status.WriteString(line)
			status.WriteByte('\n')
		}
	}
	if err := sc.Err(); err != nil {
		return transform.Unknown, errors.Wrap(err, "scanning solver output")
	}
	if status.Len() == 0 {
		return transform.Unknown, nil
	}

	var s solution
	if err := dimacs.ReadSolve(&status, &s); err != nil {
		return transform.Unknown, errors.Wrap(err, "parsing solver status")
	}
	switch {
	case !s.seen:
		return transform.Unknown, nil
	case s.result == satisfiable:
		return transform.Sat, nil
	case s.result == unsatisfiable:
		return transform.Unsat, nil
	}
	return transform.Unknown, nil
}

// FromResult returns the subject's verdict for a completed run: its
// status line if it printed one, else the conventional exit code.
func FromResult(res *runner.Result) transform.Label {
	if res == nil {
		return transform.Unknown
	}
	if l, err := ParseVerdict(res.Stdout); err == nil && l != transform.Unknown {
		return l
	}
	switch res.ExitCode {
	case exitSatisfiable:
		return transform.Sat
	case exitUnsatisfiable:
		return transform.Unsat
	}
	return transform.Unknown
}
