package fuzzer

import (
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/operator-framework/satfuzz/pkg/corpus"
	"github.com/operator-framework/satfuzz/pkg/generator"
	"github.com/operator-framework/satfuzz/pkg/modes"
	"github.com/operator-framework/satfuzz/pkg/oracle"
	"github.com/operator-framework/satfuzz/pkg/transform"
)

// UBParams tunes how a Session builds its inputs.
type UBParams struct {
	MalformedProbability float64
	// MutateProbability is the chance that a round mutates a retained
	// interesting input through a transform chain instead of using the
	// freshly generated formula.
	MutateProbability float64
	// UnionProbability is the chance that a round combines its input
	// with a retained interesting input, once the pool holds
	// UnionMinEntries. DisjointShare of those combinations rename the
	// retained input's variables apart.
	UnionProbability float64
	UnionMinEntries  int
	DisjointShare    float64

	ChainDepth          int
	ContinueProbability float64
}

func DefaultUBParams() UBParams {
	return UBParams{
		MalformedProbability: 0.05,
		MutateProbability:    0.3,
		UnionProbability:     0.2,
		UnionMinEntries:      10,
		DisjointShare:        0.5,
		ChainDepth:           3,
		ContinueProbability:  transform.DefaultContinueProbability,
	}
}

// FuncParams tunes the metamorphic loop.
type FuncParams struct {
	FollowUps   int
	GiveUpAfter int
	// Seeds with fewer than SmallLiterals literals or fewer than
	// SmallClauses clauses are executed for every follow-up.
	SmallLiterals int
	SmallClauses  int

	ChainDepth          int
	ContinueProbability float64
}

func DefaultFuncParams() FuncParams {
	return FuncParams{
		FollowUps:           50,
		GiveUpAfter:         corpus.DefaultGiveUpAfter,
		SmallLiterals:       10000,
		SmallClauses:        500,
		ChainDepth:          5,
		ContinueProbability: transform.DefaultContinueProbability,
	}
}

type options struct {
	logger      logrus.FieldLogger
	generator   *generator.Generator
	library     *transform.Library
	selector    *modes.Selector
	interesting *corpus.InterestingPool
	sanitizer   *corpus.SanitizerPool
	oracle      *oracle.Oracle
	ub          UBParams
	fn          FuncParams
}

type Option func(o *options)

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithGenerator(g *generator.Generator) Option {
	return func(o *options) {
		o.generator = g
	}
}

func WithLibrary(l *transform.Library) Option {
	return func(o *options) {
		o.library = l
	}
}

func WithSelector(s *modes.Selector) Option {
	return func(o *options) {
		o.selector = s
	}
}

func WithInterestingPool(p *corpus.InterestingPool) Option {
	return func(o *options) {
		o.interesting = p
	}
}

func WithSanitizerPool(p *corpus.SanitizerPool) Option {
	return func(o *options) {
		o.sanitizer = p
	}
}

// WithOracle lets the metamorphic loop decide small seeds the subject
// gave no verdict for.
func WithOracle(o *oracle.Oracle) Option {
	return func(opts *options) {
		opts.oracle = o
	}
}

func WithUBParams(p UBParams) Option {
	return func(o *options) {
		o.ub = p
	}
}

func WithFuncParams(p FuncParams) Option {
	return func(o *options) {
		o.fn = p
	}
}

func newOptions(rnd *rand.Rand, opts []Option) (*options, error) {
	o := &options{
		ub: DefaultUBParams(),
		fn: DefaultFuncParams(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = logrus.StandardLogger()
	}
	if o.generator == nil {
		o.generator = generator.New(rnd, generator.WithLiteralBudget(modes.LiteralBudget))
	}
	if o.library == nil {
		o.library = transform.NewLibrary(rnd, o.generator)
	}
	if o.selector == nil {
		s, err := modes.NewSelector(rnd)
		if err != nil {
			return nil, err
		}
		o.selector = s
	}
	if o.interesting == nil {
		o.interesting = corpus.NewInterestingPool(corpus.DefaultInterestingCapacity, corpus.DefaultGiveUpAfter)
	}
	if o.sanitizer == nil {
		o.sanitizer = corpus.NewSanitizerPool(corpus.DefaultSanitizerCapacity, rnd)
	}
	return o, nil
}
