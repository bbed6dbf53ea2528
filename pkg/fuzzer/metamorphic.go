package fuzzer

import (
	"context"
	"fmt"
	"math/rand"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/operator-framework/satfuzz/pkg/cnf"
	"github.com/operator-framework/satfuzz/pkg/corpus"
	"github.com/operator-framework/satfuzz/pkg/coverage"
	"github.com/operator-framework/satfuzz/pkg/metrics"
	"github.com/operator-framework/satfuzz/pkg/oracle"
	"github.com/operator-framework/satfuzz/pkg/runner"
	"github.com/operator-framework/satfuzz/pkg/store"
	"github.com/operator-framework/satfuzz/pkg/transform"
)

const funcMode = "func"

// maxDuplicateRun bounds how many structurally identical follow-ups in
// a row are drawn before a seed is treated as having no more distinct
// follow-ups.
const maxDuplicateRun = 64

// Report summarizes the follow-ups produced for one seed.
type Report struct {
	Seed string
	// Small is set when follow-ups were executed.
	Small bool
	// Baseline is the seed's verdict, from the subject or the oracle.
	Baseline   transform.Label
	Executed   int
	Kept       int
	Predicted  int
	Violations int
	// Duplicates counts drawn follow-ups that were discarded because an
	// identical formula was already produced for the seed.
	Duplicates int
	GaveUp     bool
}

// Metamorphic derives follow-up formulas from seed files, each paired
// with the satisfiability relation it has to the seed.
type Metamorphic struct {
	runner  runner.Runner
	store   *store.Store
	rnd     *rand.Rand
	logger  logrus.FieldLogger
	library *transform.Library
	oracle  *oracle.Oracle
	params  FuncParams
}

func NewMetamorphic(r runner.Runner, st *store.Store, rnd *rand.Rand, opts ...Option) (*Metamorphic, error) {
	o, err := newOptions(rnd, opts)
	if err != nil {
		return nil, err
	}
	return &Metamorphic{
		runner:  r,
		store:   st,
		rnd:     rnd,
		logger:  o.logger.WithField("mode", funcMode),
		library: o.library,
		oracle:  o.oracle,
		params:  o.fn,
	}, nil
}

// Run processes every seed in order. Seeds that cannot be parsed are
// skipped. Cancellation stops between seeds and is not an error.
func (m *Metamorphic) Run(ctx context.Context, seeds []string) ([]Report, error) {
	var reports []Report
	for _, path := range seeds {
		if ctx.Err() != nil {
			return reports, nil
		}
		report, err := m.Seed(ctx, path)
		if errors.Is(err, errUnreadableSeed) {
			m.logger.WithField("seed", path).WithError(err).Warn("skipping seed")
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return reports, nil
			}
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

var errUnreadableSeed = errors.New("unreadable seed")

type followUp struct {
	transform.Chained
	executed bool
}

// Seed produces the follow-ups of one seed file. A small seed is run
// first to establish its coverage and verdict; then chained follow-ups
// are run one by one and kept while they reach new lines, until enough
// are kept or too many in a row were not interesting. The remaining
// slots, or all of them for a large seed, are filled with follow-ups
// that are never run. A follow-up identical to the seed or to an
// earlier follow-up is drawn again, so a seed with few distinct
// follow-ups ends up with fewer files.
func (m *Metamorphic) Seed(ctx context.Context, path string) (Report, error) {
	report := Report{Seed: path, Baseline: transform.Unknown}
	logger := m.logger.WithField("seed", path)

	seed, err := store.ReadFormula(path)
	if err != nil {
		return report, errors.Wrap(errUnreadableSeed, err.Error())
	}
	if err := m.store.CopySeed(path); err != nil {
		return report, err
	}

	report.Small = seed.Literals() < m.params.SmallLiterals || seed.NumClauses() < m.params.SmallClauses
	var tracker *coverage.Tracker
	if report.Small {
		res, err := m.runner.Run(ctx, runner.Request{Input: cnf.Encode(seed, m.rnd), ResetCoverage: true})
		switch {
		case errors.Is(err, runner.ErrTimeout):
			logger.Info("seed timed out, follow-ups will not be executed")
			report.Small = false
		case err != nil:
			return report, errors.Wrap(err, "running seed")
		default:
			snapshot, err := coverage.ReadSnapshot(res.CoverageReports)
			if err != nil {
				return report, errors.Wrap(err, "reading seed coverage")
			}
			tracker = coverage.NewTracker(snapshot, logger)
			report.Baseline = oracle.FromResult(res)
		}
	}
	if report.Baseline == transform.Unknown && m.oracle != nil {
		report.Baseline = m.oracle.Verdict(seed)
	}
	logger = logger.WithFields(logrus.Fields{
		"small":    report.Small,
		"baseline": report.Baseline,
	})

	seen := newFormulaSet(logger)
	seen.add(seed)
	dupRun := 0
	duplicate := func(f *cnf.Formula) bool {
		if seen.add(f) {
			dupRun = 0
			return false
		}
		report.Duplicates++
		dupRun++
		return true
	}

	var kept []followUp
	if report.Small {
		pool := corpus.NewInterestingPool(m.params.FollowUps, m.params.GiveUpAfter)
		for pool.Len() < m.params.FollowUps && !pool.GaveUp() && dupRun < maxDuplicateRun {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			chained := m.chain(seed)
			if duplicate(chained.Formula) {
				continue
			}
			res, err := m.runner.Run(ctx, runner.Request{Input: cnf.Encode(chained.Formula, m.rnd)})
			report.Executed++
			if errors.Is(err, runner.ErrTimeout) {
				pool.Miss()
				continue
			}
			if err != nil {
				return report, errors.Wrap(err, "running follow-up")
			}
			snapshot, err := coverage.ReadSnapshot(res.CoverageReports)
			if err != nil {
				return report, errors.Wrap(err, "reading follow-up coverage")
			}
			interesting, delta, err := tracker.Record(snapshot)
			if err != nil {
				return report, err
			}
			violation, err := m.check(path, report.Executed, chained, report.Baseline, res, logger)
			if err != nil {
				return report, err
			}
			if violation {
				report.Violations++
			}
			if !interesting {
				pool.Miss()
				continue
			}
			pool.Admit(chained.Formula, delta)
			kept = append(kept, followUp{Chained: chained, executed: true})
		}
		report.Kept = len(kept)
		report.GaveUp = pool.GaveUp()
	}

	dupRun = 0
	for len(kept) < m.params.FollowUps && dupRun < maxDuplicateRun {
		chained := m.chain(seed)
		if duplicate(chained.Formula) {
			continue
		}
		kept = append(kept, followUp{Chained: chained})
		report.Predicted++
	}
	if len(kept) < m.params.FollowUps {
		logger.WithField("distinct", len(kept)).Info("seed has no more distinct follow-ups")
	}

	for i, fu := range kept {
		if err := m.store.WriteFollowUp(path, i, fu.Formula, fu.Relation); err != nil {
			return report, err
		}
		if fu.executed {
			metrics.EmitFollowUp(metrics.Executed)
		} else {
			metrics.EmitFollowUp(metrics.Predicted)
		}
	}
	logger.WithFields(logrus.Fields{
		"executed":   report.Executed,
		"kept":       report.Kept,
		"predicted":  report.Predicted,
		"violations": report.Violations,
		"duplicates": report.Duplicates,
		"gaveUp":     report.GaveUp,
	}).Info("seed done")
	return report, nil
}

// formulaSet remembers formulas by structural hash.
type formulaSet struct {
	hashes map[uint64]struct{}
	logger logrus.FieldLogger
}

func newFormulaSet(logger logrus.FieldLogger) *formulaSet {
	return &formulaSet{hashes: make(map[uint64]struct{}), logger: logger}
}

// add reports whether f was not in the set yet. A formula that cannot
// be hashed is always treated as new.
func (s *formulaSet) add(f *cnf.Formula) bool {
	h, err := f.Hash()
	if err != nil {
		s.logger.WithError(err).Debug("hashing formula")
		return true
	}
	if _, ok := s.hashes[h]; ok {
		return false
	}
	s.hashes[h] = struct{}{}
	return true
}

func (m *Metamorphic) chain(seed *cnf.Formula) transform.Chained {
	return m.library.Chain(seed, transform.Identity, m.params.ChainDepth, m.params.ContinueProbability)
}

// check compares the subject's verdict on the n-th executed follow-up
// with what its relation predicts from the seed's verdict, and
// persists the follow-up if they contradict each other.
func (m *Metamorphic) check(seedPath string, n int, fu transform.Chained, baseline transform.Label, res *runner.Result, logger logrus.FieldLogger) (bool, error) {
	want := fu.Relation.Of(baseline)
	got := oracle.FromResult(res)
	if want == transform.Unknown || got == transform.Unknown || got == want {
		return false, nil
	}
	steps := make([]string, 0, len(fu.Steps))
	for _, s := range fu.Steps {
		steps = append(steps, s.Kind.String())
	}
	note := fmt.Sprintf("seed %s, expected %s, subject answered %s\nsteps: %s", baseline, want, got, strings.Join(steps, ", "))
	logger.WithFields(logrus.Fields{
		"followUp": n,
		"expected": want,
		"answered": got,
		"steps":    steps,
	}).Warn("satisfiability relation violated")
	metrics.EmitViolation()
	return true, m.store.WriteViolation(seedPath, n, fu.Formula, note)
}
