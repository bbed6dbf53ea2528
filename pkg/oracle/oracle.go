package oracle

import (
	"time"

	"github.com/go-air/gini"
	"github.com/go-air/gini/z"

	"github.com/operator-framework/satfuzz/pkg/cnf"
	"github.com/operator-framework/satfuzz/pkg/transform"
)

const (
	satisfiable   = 1
	unsatisfiable = -1

	DefaultMaxLiterals  = 2000
	DefaultMaxVariables = 10000
	DefaultTimeout      = 2 * time.Second
)

// Oracle computes reference verdicts for small formulas with an
// embedded solver. It is a cross-check for the subject, not a source of
// truth for large inputs: formulas above the literal limit, and solves
// that run out of time, are UNKNOWN. The variable bound matters on its
// own because the solver sizes its state by the largest variable index,
// which a parsed formula with few literals can still make huge.
type Oracle struct {
	maxLiterals  int
	maxVariables int
	timeout      time.Duration
}

type Option func(o *Oracle)

func WithMaxLiterals(n int) Option {
	return func(o *Oracle) {
		o.maxLiterals = n
	}
}

func WithMaxVariables(n int) Option {
	return func(o *Oracle) {
		o.maxVariables = n
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *Oracle) {
		o.timeout = d
	}
}

func New(options ...Option) *Oracle {
	o := &Oracle{maxLiterals: DefaultMaxLiterals, maxVariables: DefaultMaxVariables, timeout: DefaultTimeout}
	for _, option := range options {
		option(o)
	}
	return o
}

// Accepts reports whether f is small enough to be solved.
func (o *Oracle) Accepts(f *cnf.Formula) bool {
	return f.Cost() <= o.maxLiterals && f.Variables() <= o.maxVariables
}

// Verdict solves f if it is small enough.
func (o *Oracle) Verdict(f *cnf.Formula) transform.Label {
	if !o.Accepts(f) {
		return transform.Unknown
	}
	return Solve(f, o.timeout)
}

// Solve decides f with a time limit.
func Solve(f *cnf.Formula, timeout time.Duration) transform.Label {
	g := gini.NewV(f.Variables())
	for i := 0; i < f.NumClauses(); i++ {
		for _, l := range f.Clause(i) {
			g.Add(z.Dimacs2Lit(int(l)))
		}
		g.Add(z.LitNull)
	}
	switch g.Try(timeout) {
	case satisfiable:
		return transform.Sat
	case unsatisfiable:
		return transform.Unsat
	}
	return transform.Unknown
}
