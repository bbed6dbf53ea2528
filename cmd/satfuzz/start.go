package main

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/operator-framework/satfuzz/pkg/config"
	"github.com/operator-framework/satfuzz/pkg/corpus"
	"github.com/operator-framework/satfuzz/pkg/fuzzer"
	"github.com/operator-framework/satfuzz/pkg/generator"
	"github.com/operator-framework/satfuzz/pkg/lib/server"
	"github.com/operator-framework/satfuzz/pkg/lib/signals"
	"github.com/operator-framework/satfuzz/pkg/modes"
	"github.com/operator-framework/satfuzz/pkg/oracle"
	"github.com/operator-framework/satfuzz/pkg/runner"
	"github.com/operator-framework/satfuzz/pkg/store"
	"github.com/operator-framework/satfuzz/pkg/transform"
	"github.com/operator-framework/satfuzz/pkg/version"
)

type options struct {
	configPath string
	debug      bool
	version    bool

	config *config.Config
}

func newRootCmd() *cobra.Command {
	o := options{config: config.Default()}

	cmd := &cobra.Command{
		Use:          "satfuzz",
		Short:        "Coverage and sanitizer guided fuzzer for DIMACS SAT solvers",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.version {
				fmt.Print(version.String())
				return nil
			}

			logger := logrus.New()
			if o.debug {
				logger.SetLevel(logrus.DebugLevel)
			}
			logger.Infof("log level %s", logger.Level)

			cfg, err := o.load(cmd.Flags())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(signals.Context(logger))
			defer cancel()

			return run(ctx, logger, cfg)
		},
	}

	cmd.Flags().StringVar(&o.configPath, "config", "", "path to a YAML config file, flags take precedence")
	cmd.Flags().BoolVar(&o.debug, "debug", false, "use debug log level")
	cmd.Flags().BoolVar(&o.version, "version", false, "displays the satfuzz version")
	o.config.AddFlags(cmd.Flags())

	return cmd
}

// load applies the config file, if any, and then every flag the user
// set explicitly on top of it.
func (o *options) load(flags *pflag.FlagSet) (*config.Config, error) {
	cfg := o.config
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		overrides := pflag.NewFlagSet("overrides", pflag.ContinueOnError)
		loaded.AddFlags(overrides)
		var setErr error
		flags.Visit(func(f *pflag.Flag) {
			if overrides.Lookup(f.Name) == nil || setErr != nil {
				return
			}
			setErr = overrides.Set(f.Name, f.Value.String())
		})
		if setErr != nil {
			return nil, errors.Wrap(setErr, "applying flag overrides")
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, logger *logrus.Logger, cfg *config.Config) error {
	rnd := rand.New(rand.NewSource(cfg.Seed))
	logger.WithFields(logrus.Fields{
		"mode":    cfg.Mode,
		"seed":    cfg.Seed,
		"subject": cfg.Subject,
		"output":  cfg.Output,
	}).Info("starting")

	st, err := store.New(cfg.Output, rnd)
	if err != nil {
		return err
	}

	execOptions := []runner.ExecOption{
		runner.WithHarness(cfg.Harness),
		runner.WithWorkDir(cfg.WorkDir),
		runner.WithTimeout(cfg.Timeout.Duration),
		runner.WithLogger(logger),
	}
	if cfg.RateLimit > 0 {
		execOptions = append(execOptions, runner.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)))
	}
	subject, err := runner.NewExec(cfg.Subject, execOptions...)
	if err != nil {
		return err
	}

	negation, err := cfg.NegationMode()
	if err != nil {
		return err
	}
	selectorOptions, err := cfg.SelectorOptions()
	if err != nil {
		return err
	}
	selector, err := modes.NewSelector(rnd, selectorOptions...)
	if err != nil {
		return err
	}
	gen := generator.New(rnd, generator.WithLiteralBudget(cfg.LiteralBudget))
	fuzzOptions := []fuzzer.Option{
		fuzzer.WithLogger(logger),
		fuzzer.WithGenerator(gen),
		fuzzer.WithSelector(selector),
		fuzzer.WithLibrary(transform.NewLibrary(rnd, gen,
			transform.WithNegation(negation),
			transform.WithMaxNewClauses(cfg.MaxNewClauses),
			transform.WithMaxNegated(cfg.MaxNegated),
			transform.WithMaxNewVariables(cfg.MaxNewVariables),
		)),
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if cfg.MetricsAddr != "" {
		srv, err := server.New(cfg.MetricsAddr,
			server.WithLogger(logger),
			server.WithTLS(cfg.TLSCert, cfg.TLSKey),
			server.WithProfiling(cfg.Profiling),
		)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	g.Go(func() error {
		defer cancel()
		switch cfg.Mode {
		case config.ModeFunc:
			return runFunc(gctx, logger, cfg, subject, st, rnd, fuzzOptions)
		default:
			return runUB(gctx, logger, cfg, subject, st, rnd, fuzzOptions)
		}
	})

	return g.Wait()
}

func runUB(ctx context.Context, logger *logrus.Logger, cfg *config.Config, subject runner.Runner, st *store.Store, rnd *rand.Rand, opts []fuzzer.Option) error {
	opts = append(opts,
		fuzzer.WithUBParams(fuzzer.UBParams{
			MalformedProbability: cfg.UB.MalformedProbability,
			MutateProbability:    cfg.UB.MutateProbability,
			UnionProbability:     cfg.UB.UnionProbability,
			UnionMinEntries:      cfg.UB.UnionMinEntries,
			DisjointShare:        cfg.UB.DisjointShare,
			ChainDepth:           cfg.UB.ChainDepth,
			ContinueProbability:  cfg.UB.ContinueProbability,
		}),
		fuzzer.WithInterestingPool(corpus.NewInterestingPool(cfg.UB.InterestingCapacity, corpus.DefaultGiveUpAfter)),
		fuzzer.WithSanitizerPool(corpus.NewSanitizerPool(cfg.UB.SanitizerCapacity, rnd)),
	)
	session, err := fuzzer.NewSession(subject, st, rnd, opts...)
	if err != nil {
		return err
	}
	if err := session.Run(ctx, cfg.Rounds); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{
		"interesting": session.Interesting().Len(),
		"admitted":    session.Interesting().Admitted(),
		"sanitizer":   session.Sanitizer().Len(),
		"findings":    session.Sanitizer().Known(),
	}).Info("ub campaign finished")
	return nil
}

func runFunc(ctx context.Context, logger *logrus.Logger, cfg *config.Config, subject runner.Runner, st *store.Store, rnd *rand.Rand, opts []fuzzer.Option) error {
	seeds, err := store.Seeds(cfg.Inputs)
	if err != nil {
		return err
	}
	opts = append(opts, fuzzer.WithFuncParams(fuzzer.FuncParams{
		FollowUps:           cfg.Func.FollowUps,
		GiveUpAfter:         cfg.Func.GiveUpAfter,
		SmallLiterals:       cfg.Func.SmallLiterals,
		SmallClauses:        cfg.Func.SmallClauses,
		ChainDepth:          cfg.Func.ChainDepth,
		ContinueProbability: cfg.Func.ContinueProbability,
	}))
	if cfg.Func.OracleMaxLiterals > 0 {
		opts = append(opts, fuzzer.WithOracle(oracle.New(
			oracle.WithMaxLiterals(cfg.Func.OracleMaxLiterals),
			oracle.WithMaxVariables(cfg.Func.OracleMaxVariables),
			oracle.WithTimeout(cfg.Func.OracleTimeout.Duration),
		)))
	}
	m, err := fuzzer.NewMetamorphic(subject, st, rnd, opts...)
	if err != nil {
		return err
	}
	reports, err := m.Run(ctx, seeds)
	if err != nil {
		return err
	}
	violations := 0
	for _, r := range reports {
		violations += r.Violations
	}
	logger.WithFields(logrus.Fields{
		"seeds":      len(seeds),
		"processed":  len(reports),
		"violations": violations,
	}).Info("func campaign finished")
	return nil
}
