package fuzzer

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/operator-framework/satfuzz/pkg/cnf"
	"github.com/operator-framework/satfuzz/pkg/corpus"
	"github.com/operator-framework/satfuzz/pkg/coverage"
	"github.com/operator-framework/satfuzz/pkg/generator"
	"github.com/operator-framework/satfuzz/pkg/metrics"
	"github.com/operator-framework/satfuzz/pkg/modes"
	"github.com/operator-framework/satfuzz/pkg/runner"
	"github.com/operator-framework/satfuzz/pkg/sanitizer"
	"github.com/operator-framework/satfuzz/pkg/store"
	"github.com/operator-framework/satfuzz/pkg/transform"
)

const ubMode = "ub"

// Combination says how a round's input was merged with a retained one.
type Combination int

const (
	NotCombined Combination = iota
	Union
	Disjoint
)

func (c Combination) String() string {
	switch c {
	case Union:
		return "union"
	case Disjoint:
		return "disjoint"
	}
	return "none"
}

// Outcome describes one UB round.
type Outcome struct {
	Shape modes.Shape
	// Mutated is set when the round started from a retained input
	// instead of a freshly generated formula. Mutations is the number
	// of transforms applied to it.
	Mutated     bool
	Mutations   int
	Combination Combination
	Variables   int
	Clauses     int

	TimedOut    bool
	ExitCode    int
	Interesting bool
	// Slot is the interesting-pool slot that was written, or -1.
	Slot      int
	Findings  sanitizer.Findings
	Admission corpus.Admission
	// Crashed is set when the sanitizer reported an error that could
	// not be classified.
	Crashed bool
}

// Label names the most significant result of the round.
func (o Outcome) Label() string {
	switch {
	case o.TimedOut:
		return "timeout"
	case o.Admission.Admitted:
		return "sanitizer"
	case o.Interesting:
		return "interesting"
	case len(o.Findings) > 0:
		return "known-finding"
	case o.Crashed:
		return "crash"
	}
	return "boring"
}

// Session is the state of one UB fuzzing campaign: the rolling
// coverage baseline, both corpus pools and the random sources that
// build inputs. A Session is driven from a single goroutine.
type Session struct {
	runner runner.Runner
	store  *store.Store
	rnd    *rand.Rand
	logger logrus.FieldLogger

	generator   *generator.Generator
	library     *transform.Library
	selector    *modes.Selector
	interesting *corpus.InterestingPool
	sanitizer   *corpus.SanitizerPool
	params      UBParams

	tracker *coverage.Tracker
	rounds  int
}

func NewSession(r runner.Runner, st *store.Store, rnd *rand.Rand, opts ...Option) (*Session, error) {
	o, err := newOptions(rnd, opts)
	if err != nil {
		return nil, err
	}
	return &Session{
		runner:      r,
		store:       st,
		rnd:         rnd,
		logger:      o.logger.WithField("mode", ubMode),
		generator:   o.generator,
		library:     o.library,
		selector:    o.selector,
		interesting: o.interesting,
		sanitizer:   o.sanitizer,
		params:      o.ub,
	}, nil
}

func (s *Session) Interesting() *corpus.InterestingPool {
	return s.interesting
}

func (s *Session) Sanitizer() *corpus.SanitizerPool {
	return s.sanitizer
}

// Baseline runs the subject once on an empty formula with its coverage
// counters reset, and makes the resulting snapshot the baseline that
// the first round is compared against.
func (s *Session) Baseline(ctx context.Context) error {
	res, err := s.runner.Run(ctx, runner.Request{
		Input:         cnf.Encode(cnf.New(0, nil), s.rnd),
		ResetCoverage: true,
	})
	if err != nil {
		return errors.Wrap(err, "baseline run")
	}
	snapshot, err := coverage.ReadSnapshot(res.CoverageReports)
	if err != nil {
		return errors.Wrap(err, "reading baseline coverage")
	}
	s.tracker = coverage.NewTracker(snapshot, s.logger)
	metrics.SetCoveredLines(snapshot.Covered())
	s.logger.WithFields(logrus.Fields{
		"files":   len(snapshot),
		"covered": snapshot.Covered(),
	}).Info("established coverage baseline")
	return nil
}

// Run plays rounds until n rounds were played, ctx is cancelled, or a
// round fails. n == 0 plays until cancelled. Cancellation is not an
// error.
func (s *Session) Run(ctx context.Context, n int) error {
	for i := 0; n == 0 || i < n; i++ {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := s.Round(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
	return nil
}

// Round builds one input, runs the subject on it and classifies the
// result. A timed out round is discarded. Errors are fatal for the
// campaign, most notably a *coverage.LengthMismatchError.
func (s *Session) Round(ctx context.Context) (Outcome, error) {
	if s.tracker == nil {
		if err := s.Baseline(ctx); err != nil {
			return Outcome{Slot: -1}, err
		}
	}
	s.rounds++

	f, out := s.generate()
	logger := s.logger.WithFields(logrus.Fields{
		"round":       s.rounds,
		"variables":   out.Variables,
		"clauses":     out.Clauses,
		"malformed":   f.Malformed(),
		"mutated":     out.Mutated,
		"mutations":   out.Mutations,
		"combination": out.Combination,
	})

	start := time.Now()
	res, err := s.runner.Run(ctx, runner.Request{Input: cnf.Encode(f, s.rnd)})
	if errors.Is(err, runner.ErrTimeout) {
		logger.Info("subject timed out, discarding round")
		out.TimedOut = true
		s.interesting.Miss()
		metrics.EmitRound(ubMode, out.Label())
		return out, nil
	}
	if err != nil {
		return out, errors.Wrap(err, "running subject")
	}
	metrics.ObserveSubjectDuration(time.Since(start).Seconds())
	out.ExitCode = res.ExitCode

	if err := s.classify(f, res, &out, logger); err != nil {
		return out, err
	}
	metrics.EmitRound(ubMode, out.Label())
	metrics.SetPoolSize(metrics.InterestingPool, s.interesting.Len())
	metrics.SetPoolSize(metrics.SanitizerPool, s.sanitizer.Len())
	logger.WithField("outcome", out.Label()).Debug("round finished")
	return out, nil
}

func (s *Session) generate() (*cnf.Formula, Outcome) {
	shape := s.selector.Next()
	shape.Malformed = s.rnd.Float64() < s.params.MalformedProbability
	out := Outcome{Shape: shape, Slot: -1}

	var f *cnf.Formula
	if s.rnd.Float64() < s.params.MutateProbability {
		if entry, ok := s.interesting.Random(s.rnd); ok {
			chained := s.library.Chain(entry.Formula, transform.Identity, s.params.ChainDepth, s.params.ContinueProbability)
			f = chained.Formula.WithMalformed(shape.Malformed)
			out.Mutated = true
			out.Mutations = len(chained.Steps)
		}
	}
	if f == nil {
		f = s.generator.Generate(shape.Params)
	}

	if s.interesting.Len() >= s.params.UnionMinEntries && s.rnd.Float64() < s.params.UnionProbability {
		if other, ok := s.interesting.Random(s.rnd); ok {
			if s.rnd.Float64() < s.params.DisjointShare {
				f = transform.CombineDisjoint(f, other.Formula)
				out.Combination = Disjoint
			} else {
				f = transform.CombineUnion(f, other.Formula)
				out.Combination = Union
			}
			f = f.WithMalformed(shape.Malformed)
		}
	}

	out.Variables = f.Variables()
	out.Clauses = f.NumClauses()
	return f, out
}

func (s *Session) classify(f *cnf.Formula, res *runner.Result, out *Outcome, logger logrus.FieldLogger) error {
	snapshot, err := coverage.ReadSnapshot(res.CoverageReports)
	if err != nil {
		return errors.Wrap(err, "reading coverage")
	}
	interesting, delta, err := s.tracker.Record(snapshot)
	if err != nil {
		return err
	}
	metrics.SetCoveredLines(snapshot.Covered())

	findings, crashed, err := readFindings(res.SanitizerLog)
	if err != nil {
		return err
	}
	out.Findings = findings
	out.Crashed = crashed && len(findings) == 0
	for _, finding := range findings {
		metrics.EmitFinding(finding.Kind.Label())
	}
	if out.Crashed {
		logger.Warn("sanitizer reported an error that could not be classified")
	}

	out.Interesting = interesting
	if interesting {
		out.Slot = s.interesting.Admit(f, delta)
		path, err := s.store.WriteInteresting(out.Slot, f)
		if err != nil {
			return err
		}
		logger.WithFields(logrus.Fields{
			"slot":  out.Slot,
			"lines": delta.Lines(),
			"path":  path,
		}).Info("new coverage")
	} else {
		s.interesting.Miss()
	}

	out.Admission = s.sanitizer.Offer(f, findings)
	if out.Admission.Admitted {
		path, err := s.store.WriteSanitizer(out.Admission.Slot, f, findings)
		if err != nil {
			return err
		}
		if out.Admission.Evicted != corpus.NoEviction {
			metrics.EmitEviction(out.Admission.Evicted.String())
		}
		logger.WithFields(logrus.Fields{
			"slot":     out.Admission.Slot,
			"findings": len(findings),
			"evicted":  out.Admission.Evicted,
			"path":     path,
		}).Info("retained sanitizer finding")
	}
	return nil
}

// readFindings classifies a sanitizer log. A missing log has no
// findings.
func readFindings(path string) (sanitizer.Findings, bool, error) {
	if path == "" {
		return nil, false, nil
	}
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "reading sanitizer log")
	}
	findings, err := sanitizer.Parse(bytes.NewReader(b))
	if err != nil {
		return nil, false, errors.Wrap(err, "parsing sanitizer log")
	}
	return findings, sanitizer.Crashed(string(b)), nil
}
