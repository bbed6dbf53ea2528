package fuzzer

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/operator-framework/satfuzz/pkg/cnf"
	"github.com/operator-framework/satfuzz/pkg/generator"
	"github.com/operator-framework/satfuzz/pkg/oracle"
	"github.com/operator-framework/satfuzz/pkg/runner"
	"github.com/operator-framework/satfuzz/pkg/runner/runnerfakes"
	"github.com/operator-framework/satfuzz/pkg/store"
	"github.com/operator-framework/satfuzz/pkg/transform"
)

// statusLine answers like a solver that decides req correctly, or the
// opposite when lying is set.
func statusLine(req runner.Request, lying bool) string {
	f, err := cnf.Parse(bytes.NewReader(req.Input))
	Expect(err).NotTo(HaveOccurred())
	verdict := oracle.Solve(f, 5*time.Second)
	if lying {
		switch verdict {
		case transform.Sat:
			verdict = transform.Unsat
		case transform.Unsat:
			verdict = transform.Sat
		}
	}
	switch verdict {
	case transform.Sat:
		return "s SATISFIABLE\n"
	case transform.Unsat:
		return "s UNSATISFIABLE\n"
	}
	return "s UNKNOWN\n"
}

var _ = ginkgo.Describe("Metamorphic", func() {
	var (
		ctx      context.Context
		rnd      *rand.Rand
		subj     *subject
		fake     *runnerfakes.FakeRunner
		outDir   string
		seedPath string
		params   FuncParams
		opts     []Option
		m        *Metamorphic
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		rnd = rand.New(rand.NewSource(11))
		subj = newSubject(ginkgo.GinkgoT().TempDir())
		fake = &runnerfakes.FakeRunner{}
		fake.RunCalls(subj.run)

		seeds := ginkgo.GinkgoT().TempDir()
		seedPath = filepath.Join(seeds, "small.cnf")
		Expect(os.WriteFile(seedPath, []byte("c three variables\np cnf 3 2\n1 -2 0\n2 3 0\n"), 0o644)).To(Succeed())

		outDir = ginkgo.GinkgoT().TempDir()
		params = DefaultFuncParams()
		params.FollowUps = 5
		params.GiveUpAfter = 3
		opts = []Option{WithLogger(quietLogger())}
	})

	ginkgo.JustBeforeEach(func() {
		st, err := store.New(outDir, rnd)
		Expect(err).NotTo(HaveOccurred())
		m, err = NewMetamorphic(fake, st, rnd, append(opts, WithFuncParams(params))...)
		Expect(err).NotTo(HaveOccurred())
	})

	seedDir := func() string {
		return filepath.Join(outDir, "func", "small")
	}

	ginkgo.Context("with a small seed reaching new lines on every follow-up", func() {
		ginkgo.BeforeEach(func() {
			subj.hits = growing(100)
		})

		ginkgo.It("executes and keeps follow-ups until enough are collected", func() {
			report, err := m.Seed(ctx, seedPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Small).To(BeTrue())
			Expect(report.Executed).To(Equal(5))
			Expect(report.Kept).To(Equal(5))
			Expect(report.Predicted).To(BeZero())
			Expect(fake.RunCallCount()).To(Equal(6))

			_, first := fake.RunArgsForCall(0)
			Expect(first.ResetCoverage).To(BeTrue())

			Expect(filepath.Join(seedDir(), "seed.cnf")).To(BeAnExistingFile())
			for i := 0; i < 5; i++ {
				Expect(filepath.Join(seedDir(), cnfName(i))).To(BeAnExistingFile())
				text, err := os.ReadFile(filepath.Join(seedDir(), txtName(i)))
				Expect(err).NotTo(HaveOccurred())
				rel, err := transform.ParseRelation(bytes.NewReader(text))
				Expect(err).NotTo(HaveOccurred())
				Expect(rel.Usable()).To(BeTrue())
			}
		})
	})

	ginkgo.Context("with a small seed whose follow-ups reach nothing new", func() {
		ginkgo.It("gives up and fills the remaining slots without execution", func() {
			report, err := m.Seed(ctx, seedPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.GaveUp).To(BeTrue())
			Expect(report.Executed).To(Equal(3))
			Expect(report.Kept).To(BeZero())
			Expect(report.Predicted).To(Equal(5))
			Expect(fake.RunCallCount()).To(Equal(4))
			Expect(filepath.Join(seedDir(), cnfName(4))).To(BeAnExistingFile())
		})
	})

	ginkgo.Context("with a seed too large to execute", func() {
		ginkgo.BeforeEach(func() {
			params.SmallLiterals = 1
			params.SmallClauses = 1
			opts = append(opts, WithOracle(oracle.New()))
		})

		ginkgo.It("never runs the subject and takes the verdict from the oracle", func() {
			report, err := m.Seed(ctx, seedPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Small).To(BeFalse())
			Expect(report.Baseline).To(Equal(transform.Sat))
			Expect(report.Predicted).To(Equal(5))
			Expect(fake.RunCallCount()).To(BeZero())
		})
	})

	ginkgo.Context("with a subject that decides correctly", func() {
		ginkgo.BeforeEach(func() {
			params.FollowUps = 20
			subj.hits = growing(100)
			subj.stdout = func(_ int, req runner.Request) string {
				return statusLine(req, false)
			}
		})

		ginkgo.It("records no violations", func() {
			report, err := m.Seed(ctx, seedPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Baseline).To(Equal(transform.Sat))
			Expect(report.Violations).To(BeZero())
			Expect(filepath.Join(seedDir(), "violations")).NotTo(BeADirectory())
		})
	})

	ginkgo.Context("with a subject that contradicts every verdict after the seed", func() {
		ginkgo.BeforeEach(func() {
			params.FollowUps = 20
			subj.hits = growing(100)
			subj.stdout = func(n int, req runner.Request) string {
				return statusLine(req, n > 0)
			}
		})

		ginkgo.It("persists the contradicted follow-ups as violations", func() {
			report, err := m.Seed(ctx, seedPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Baseline).To(Equal(transform.Sat))
			Expect(report.Violations).To(BeNumerically(">", 0))

			entries, err := os.ReadDir(filepath.Join(seedDir(), "violations"))
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(2 * report.Violations))
		})
	})

	ginkgo.Context("with a seed that has only two distinct follow-ups", func() {
		ginkgo.BeforeEach(func() {
			Expect(os.WriteFile(seedPath, []byte("p cnf 0 0\n"), 0o644)).To(Succeed())
			params.SmallLiterals = 0
			params.SmallClauses = 0
			params.ChainDepth = 1
			lib := transform.NewLibrary(rnd, generator.New(rnd), transform.WithMaxNewVariables(1))
			opts = append(opts, WithLibrary(lib))
		})

		ginkgo.It("writes each distinct follow-up once", func() {
			report, err := m.Seed(ctx, seedPath)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Small).To(BeFalse())
			Expect(report.Predicted).To(Equal(2))
			Expect(report.Duplicates).To(BeNumerically(">=", maxDuplicateRun))
			Expect(fake.RunCallCount()).To(BeZero())

			seed, err := store.ReadFormula(seedPath)
			Expect(err).NotTo(HaveOccurred())
			var written []*cnf.Formula
			for i := 0; i < 2; i++ {
				f, err := store.ReadFormula(filepath.Join(seedDir(), cnfName(i)))
				Expect(err).NotTo(HaveOccurred())
				Expect(f.Equal(seed)).To(BeFalse())
				written = append(written, f)
			}
			Expect(written[0].Equal(written[1])).To(BeFalse())
			Expect(filepath.Join(seedDir(), cnfName(2))).NotTo(BeAnExistingFile())
		})
	})

	ginkgo.It("skips seeds that cannot be read", func() {
		missing := filepath.Join(ginkgo.GinkgoT().TempDir(), "missing.cnf")
		reports, err := m.Run(ctx, []string{missing, seedPath})
		Expect(err).NotTo(HaveOccurred())
		Expect(reports).To(HaveLen(1))
		Expect(reports[0].Seed).To(Equal(seedPath))
	})
})

func cnfName(i int) string {
	return strconv.Itoa(i) + ".cnf"
}

func txtName(i int) string {
	return strconv.Itoa(i) + ".txt"
}
