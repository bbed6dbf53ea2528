package config

import (
	"encoding/json"
	"math/rand"
	"os"
	"time"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/operator-framework/satfuzz/pkg/corpus"
	"github.com/operator-framework/satfuzz/pkg/modes"
	"github.com/operator-framework/satfuzz/pkg/oracle"
	"github.com/operator-framework/satfuzz/pkg/runner"
	"github.com/operator-framework/satfuzz/pkg/transform"
)

type Mode string

const (
	ModeUB   Mode = "ub"
	ModeFunc Mode = "func"
)

// Negation names for the add-negated-clauses transform.
const (
	NegateUnits  = "units"
	NegateClause = "clause"
)

// Duration is a time.Duration that reads and writes as a Go duration
// string ("10s") in config files.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return errors.Wrap(err, "duration must be a string such as \"10s\"")
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", s)
	}
	d.Duration = parsed
	return nil
}

// UB tunes the undefined-behavior hunting loop.
type UB struct {
	// MalformedProbability is the share of generated inputs with a
	// broken header.
	MalformedProbability float64 `json:"malformedProbability"`
	// MutateProbability is the share of rounds that mutate a retained
	// interesting input instead of generating a fresh one.
	MutateProbability float64 `json:"mutateProbability"`
	// UnionProbability is the share of rounds that combine the input
	// with a retained interesting one, once UnionMinEntries are retained.
	UnionProbability float64 `json:"unionProbability"`
	UnionMinEntries  int     `json:"unionMinEntries"`
	// DisjointShare is the share of combinations that rename the
	// retained input's variables apart.
	DisjointShare float64 `json:"disjointShare"`

	InterestingCapacity int `json:"interestingCapacity"`
	SanitizerCapacity   int `json:"sanitizerCapacity"`

	ChainDepth          int     `json:"chainDepth"`
	ContinueProbability float64 `json:"continueProbability"`
}

// Func tunes the metamorphic loop.
type Func struct {
	FollowUps   int `json:"followUps"`
	GiveUpAfter int `json:"giveUpAfter"`
	// A seed is executed repeatedly when it has fewer than SmallLiterals
	// literals or fewer than SmallClauses clauses.
	SmallLiterals int `json:"smallLiterals"`
	SmallClauses  int `json:"smallClauses"`

	ChainDepth          int     `json:"chainDepth"`
	ContinueProbability float64 `json:"continueProbability"`

	// OracleMaxLiterals bounds the seeds the embedded solver decides
	// when the subject gives no verdict. Zero disables the oracle.
	OracleMaxLiterals int `json:"oracleMaxLiterals"`
	// OracleMaxVariables bounds the largest variable index the embedded
	// solver accepts.
	OracleMaxVariables int      `json:"oracleMaxVariables"`
	OracleTimeout      Duration `json:"oracleTimeout"`
}

type Config struct {
	Subject string `json:"subject"`
	Inputs  string `json:"inputs,omitempty"`
	Mode    Mode   `json:"mode"`
	Seed    int64  `json:"seed"`

	Output  string   `json:"output"`
	WorkDir string   `json:"workDir"`
	Harness string   `json:"harness"`
	Timeout Duration `json:"timeout"`
	// Rounds bounds the UB loop; zero runs until interrupted.
	Rounds int `json:"rounds"`
	// RateLimit caps subject starts per second; zero is unlimited.
	RateLimit   float64 `json:"rateLimit,omitempty"`
	MetricsAddr string  `json:"metricsAddr,omitempty"`
	// TLSCert and TLSKey switch the metrics endpoint to https. The pair
	// is reloaded when it changes on disk.
	TLSCert   string `json:"tlsCert,omitempty"`
	TLSKey    string `json:"tlsKey,omitempty"`
	Profiling bool   `json:"profiling,omitempty"`

	LiteralBudget   int                `json:"literalBudget"`
	VariableWeights map[string]float64 `json:"variableWeights,omitempty"`
	ClauseWeights   map[string]float64 `json:"clauseWeights,omitempty"`
	Negation        string             `json:"negation"`
	MaxNewClauses   int                `json:"maxNewClauses"`
	MaxNegated      int                `json:"maxNegated"`
	MaxNewVariables int                `json:"maxNewVariables"`

	UB   UB   `json:"ub"`
	Func Func `json:"func"`
}

func Default() *Config {
	return &Config{
		Mode:            ModeUB,
		Seed:            1,
		Output:          "out",
		WorkDir:         ".",
		Harness:         runner.DefaultHarness,
		Timeout:         Duration{runner.DefaultTimeout},
		LiteralBudget:   modes.LiteralBudget,
		Negation:        NegateUnits,
		MaxNewClauses:   10,
		MaxNegated:      10,
		MaxNewVariables: 5,
		UB: UB{
			MalformedProbability: 0.05,
			MutateProbability:    0.3,
			UnionProbability:     0.2,
			UnionMinEntries:      10,
			DisjointShare:        0.5,
			InterestingCapacity:  corpus.DefaultInterestingCapacity,
			SanitizerCapacity:    corpus.DefaultSanitizerCapacity,
			ChainDepth:           3,
			ContinueProbability:  transform.DefaultContinueProbability,
		},
		Func: Func{
			FollowUps:           50,
			GiveUpAfter:         corpus.DefaultGiveUpAfter,
			SmallLiterals:       10000,
			SmallClauses:        500,
			ChainDepth:          5,
			ContinueProbability: transform.DefaultContinueProbability,
			OracleMaxLiterals:   oracle.DefaultMaxLiterals,
			OracleMaxVariables:  oracle.DefaultMaxVariables,
			OracleTimeout:       Duration{2 * time.Second},
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, errors.Wrapf(err, "parsing config %s", path)
	}
	return c, nil
}

// AddFlags binds the command-line overrides of c to fs.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Subject, "subject", c.Subject, "path to the solver under test")
	fs.StringVar(&c.Inputs, "inputs", c.Inputs, "seed corpus file or directory, ignored in ub mode")
	fs.StringVar((*string)(&c.Mode), "mode", string(c.Mode), "fuzzing mode: ub or func")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "seed for the random number generator")
	fs.StringVar(&c.Output, "output", c.Output, "directory for persisted test cases")
	fs.StringVar(&c.WorkDir, "workdir", c.WorkDir, "directory the harness runs in")
	fs.StringVar(&c.Harness, "harness", c.Harness, "script that runs the subject and collects coverage")
	fs.IntVar(&c.Rounds, "rounds", c.Rounds, "number of ub rounds, 0 runs until interrupted")
	fs.DurationVar(&c.Timeout.Duration, "timeout", c.Timeout.Duration, "time limit for one subject run")
	fs.Float64Var(&c.RateLimit, "rate-limit", c.RateLimit, "maximum subject runs per second, 0 is unlimited")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "address to serve prometheus metrics on, empty disables")
	fs.StringVar(&c.TLSCert, "tls-cert", c.TLSCert, "path to the metrics server certificate")
	fs.StringVar(&c.TLSKey, "tls-key", c.TLSKey, "path to the metrics server key")
	fs.BoolVar(&c.Profiling, "profiling", c.Profiling, "serve pprof endpoints next to the metrics")
}

// Validate checks c after defaults, file and flags were applied.
func (c *Config) Validate() error {
	if c.Subject == "" {
		return errors.New("a subject is required")
	}
	switch c.Mode {
	case ModeUB:
	case ModeFunc:
		if c.Inputs == "" {
			return errors.New("func mode requires a seed corpus")
		}
	default:
		return errors.Errorf("unknown mode %q, must be %q or %q", c.Mode, ModeUB, ModeFunc)
	}
	if c.Timeout.Duration <= 0 {
		return errors.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.Rounds < 0 {
		return errors.Errorf("rounds must not be negative, got %d", c.Rounds)
	}
	if c.RateLimit < 0 {
		return errors.Errorf("rate limit must not be negative, got %v", c.RateLimit)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided for TLS to be enabled")
	}
	if c.LiteralBudget < 1 {
		return errors.Errorf("literal budget must be positive, got %d", c.LiteralBudget)
	}
	if _, err := c.NegationMode(); err != nil {
		return err
	}
	for name, p := range map[string]float64{
		"ub.malformedProbability":  c.UB.MalformedProbability,
		"ub.mutateProbability":     c.UB.MutateProbability,
		"ub.unionProbability":      c.UB.UnionProbability,
		"ub.disjointShare":         c.UB.DisjointShare,
		"ub.continueProbability":   c.UB.ContinueProbability,
		"func.continueProbability": c.Func.ContinueProbability,
	} {
		if p < 0 || p > 1 {
			return errors.Errorf("%s must be within [0, 1], got %v", name, p)
		}
	}
	if c.UB.ChainDepth < 1 || c.Func.ChainDepth < 1 {
		return errors.New("chain depth must be positive")
	}
	if c.Func.OracleMaxLiterals > 0 && c.Func.OracleMaxVariables < 1 {
		return errors.Errorf("func.oracleMaxVariables must be positive when the oracle is enabled, got %d", c.Func.OracleMaxVariables)
	}
	if c.Func.FollowUps < 1 {
		return errors.Errorf("func.followUps must be positive, got %d", c.Func.FollowUps)
	}
	options, err := c.SelectorOptions()
	if err != nil {
		return err
	}
	if _, err := modes.NewSelector(rand.New(rand.NewSource(c.Seed)), options...); err != nil {
		return errors.Wrap(err, "invalid mode weights")
	}
	return nil
}

// NegationMode maps the configured negation name to the transform
// library's variant.
func (c *Config) NegationMode() (transform.Negation, error) {
	switch c.Negation {
	case "", NegateUnits:
		return transform.NegateAsUnits, nil
	case NegateClause:
		return transform.NegateAsClause, nil
	}
	return 0, errors.Errorf("unknown negation %q, must be %q or %q", c.Negation, NegateUnits, NegateClause)
}

// SelectorOptions converts the configured mode weights, keyed by mode
// name, into selector options.
func (c *Config) SelectorOptions() ([]modes.Option, error) {
	var options []modes.Option
	if len(c.VariableWeights) > 0 {
		weights := make(map[modes.VariableMode]float64, len(c.VariableWeights))
		byName := make(map[string]modes.VariableMode, len(modes.VariableModes))
		for _, m := range modes.VariableModes {
			byName[m.String()] = m
		}
		for name, w := range c.VariableWeights {
			m, ok := byName[name]
			if !ok {
				return nil, errors.Errorf("unknown variable mode %q", name)
			}
			weights[m] = w
		}
		options = append(options, modes.WithVariableWeights(weights))
	}
	if len(c.ClauseWeights) > 0 {
		weights := make(map[modes.ClauseMode]float64, len(c.ClauseWeights))
		byName := make(map[string]modes.ClauseMode, len(modes.ClauseModes))
		for _, m := range modes.ClauseModes {
			byName[m.String()] = m
		}
		for name, w := range c.ClauseWeights {
			m, ok := byName[name]
			if !ok {
				return nil, errors.Errorf("unknown clause mode %q", name)
			}
			weights[m] = w
		}
		options = append(options, modes.WithClauseWeights(weights))
	}
	return options, nil
}
