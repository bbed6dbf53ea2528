package fuzzer

import (
	"bytes"
	"context"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"

	"github.com/operator-framework/satfuzz/pkg/cnf"
	"github.com/operator-framework/satfuzz/pkg/corpus"
	"github.com/operator-framework/satfuzz/pkg/coverage"
	"github.com/operator-framework/satfuzz/pkg/generator"
	"github.com/operator-framework/satfuzz/pkg/runner"
	"github.com/operator-framework/satfuzz/pkg/runner/runnerfakes"
	"github.com/operator-framework/satfuzz/pkg/sanitizer"
	"github.com/operator-framework/satfuzz/pkg/store"
	"github.com/operator-framework/satfuzz/pkg/transform"
)

var _ = ginkgo.Describe("Session", func() {
	var (
		ctx     context.Context
		rnd     *rand.Rand
		subj    *subject
		fake    *runnerfakes.FakeRunner
		st      *store.Store
		outDir  string
		session *Session
		params  UBParams
		extra   []Option
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		rnd = rand.New(rand.NewSource(7))
		subj = newSubject(ginkgo.GinkgoT().TempDir())
		fake = &runnerfakes.FakeRunner{}
		fake.RunCalls(subj.run)

		outDir = ginkgo.GinkgoT().TempDir()
		var err error
		st, err = store.New(outDir, rnd)
		Expect(err).NotTo(HaveOccurred())

		params = DefaultUBParams()
		params.MalformedProbability = 0
		extra = nil
	})

	ginkgo.JustBeforeEach(func() {
		var err error
		session, err = NewSession(fake, st, rnd, append([]Option{
			WithSelector(tinySelector(rnd)),
			WithUBParams(params),
			WithLogger(quietLogger()),
		}, extra...)...)
		Expect(err).NotTo(HaveOccurred())
	})

	ginkgo.It("runs a coverage-reset baseline before the first round", func() {
		_, err := session.Round(ctx)
		Expect(err).NotTo(HaveOccurred())

		Expect(fake.RunCallCount()).To(Equal(2))
		_, baseline := fake.RunArgsForCall(0)
		Expect(baseline.ResetCoverage).To(BeTrue())
		parsed, err := cnf.Parse(bytes.NewReader(baseline.Input))
		Expect(err).NotTo(HaveOccurred())
		Expect(parsed.NumClauses()).To(BeZero())

		_, round := fake.RunArgsForCall(1)
		Expect(round.ResetCoverage).To(BeFalse())
	})

	ginkgo.Context("when every run reaches a new line", func() {
		ginkgo.BeforeEach(func() {
			subj.hits = growing(64)
		})

		ginkgo.It("retains and persists each input at its pool slot", func() {
			for i := 0; i < 3; i++ {
				out, err := session.Round(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Interesting).To(BeTrue())
				Expect(out.Slot).To(Equal(i))
				Expect(out.Label()).To(Equal("interesting"))
			}
			Expect(session.Interesting().Len()).To(Equal(3))
			Expect(session.Interesting().SinceLastInteresting()).To(BeZero())

			persisted, err := store.ReadFormula(filepath.Join(outDir, "interesting", "2.cnf"))
			Expect(err).NotTo(HaveOccurred())
			Expect(persisted.Equal(session.Interesting().Entries()[2].Formula)).To(BeTrue())
		})
	})

	ginkgo.Context("when coverage does not change", func() {
		ginkgo.It("counts misses and retains nothing", func() {
			Expect(session.Run(ctx, 4)).To(Succeed())
			Expect(fake.RunCallCount()).To(Equal(5))
			Expect(session.Interesting().Len()).To(BeZero())
			Expect(session.Interesting().SinceLastInteresting()).To(Equal(4))

			entries, err := os.ReadDir(filepath.Join(outDir, "interesting"))
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})

	ginkgo.Context("when every round mutates a retained input", func() {
		var genRnd *rand.Rand

		ginkgo.BeforeEach(func() {
			params.MutateProbability = 1
			params.UnionProbability = 0
			pool := corpus.NewInterestingPool(4, 3)
			pool.Admit(cnf.New(2, []cnf.Clause{{1, -2}, {2}}), coverage.Delta{})
			genRnd = rand.New(rand.NewSource(3))
			extra = []Option{
				WithInterestingPool(pool),
				WithGenerator(generator.New(genRnd)),
				WithLibrary(transform.NewLibrary(rnd, generator.New(rnd))),
			}
		})

		ginkgo.It("never generates a fresh formula", func() {
			for i := 0; i < 3; i++ {
				out, err := session.Round(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Mutated).To(BeTrue())
			}
			untouched := rand.New(rand.NewSource(3))
			Expect(genRnd.Int63()).To(Equal(untouched.Int63()))
		})
	})

	ginkgo.Context("when the subject times out", func() {
		ginkgo.BeforeEach(func() {
			fake.RunCalls(func(ctx context.Context, req runner.Request) (*runner.Result, error) {
				if req.ResetCoverage {
					return subj.run(ctx, req)
				}
				return nil, runner.ErrTimeout
			})
		})

		ginkgo.It("discards the round", func() {
			out, err := session.Round(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.TimedOut).To(BeTrue())
			Expect(out.Label()).To(Equal("timeout"))
			Expect(out.Slot).To(Equal(-1))
			Expect(session.Interesting().Len()).To(BeZero())
			Expect(session.Sanitizer().Len()).To(BeZero())
		})
	})

	ginkgo.Context("when the sanitizer reports a finding", func() {
		ginkgo.BeforeEach(func() {
			subj.log = func(n int) string {
				if n == 0 {
					return ""
				}
				return heapOverflow("/src/solver/parse.c:123:5")
			}
		})

		ginkgo.It("retains the first occurrence as novel and repeats as evictable", func() {
			first, err := session.Round(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Findings).To(ConsistOf(sanitizer.Finding{Kind: sanitizer.HeapBufferOverflow, Location: "/src/solver/parse.c:123:5"}))
			Expect(first.Admission.Admitted).To(BeTrue())
			Expect(first.Label()).To(Equal("sanitizer"))

			_, err = session.Round(ctx)
			Expect(err).NotTo(HaveOccurred())

			entries := session.Sanitizer().Entries()
			Expect(entries).To(HaveLen(2))
			Expect(entries[0].Evictable).To(BeFalse())
			Expect(entries[1].Evictable).To(BeTrue())

			findings, err := os.ReadFile(filepath.Join(outDir, "ub", "0.findings"))
			Expect(err).NotTo(HaveOccurred())
			Expect(string(findings)).To(ContainSubstring("heap-buffer-overflow at /src/solver/parse.c:123:5"))
			Expect(filepath.Join(outDir, "ub", "0.cnf")).To(BeAnExistingFile())
		})
	})

	ginkgo.Context("when a report changes length", func() {
		ginkgo.BeforeEach(func() {
			subj.hits = func(n int, _ runner.Request) []uint64 {
				return make([]uint64, 4+n)
			}
		})

		ginkgo.It("aborts the campaign", func() {
			err := session.Run(ctx, 10)
			var mismatch *coverage.LengthMismatchError
			Expect(errors.As(err, &mismatch)).To(BeTrue())
			Expect(mismatch.Previous).To(Equal(4))
			Expect(mismatch.Current).To(Equal(5))
			Expect(fake.RunCallCount()).To(Equal(2))
		})
	})

	ginkgo.Context("once enough inputs are retained", func() {
		ginkgo.BeforeEach(func() {
			subj.hits = growing(1000)
			params.UnionProbability = 1
			params.UnionMinEntries = 2
			params.MutateProbability = 0
		})

		ginkgo.It("combines every new input with a retained one", func() {
			for i := 0; i < 2; i++ {
				out, err := session.Round(ctx)
				Expect(err).NotTo(HaveOccurred())
				Expect(out.Combination).To(Equal(NotCombined))
			}
			out, err := session.Round(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Combination).NotTo(Equal(NotCombined))
		})
	})

	ginkgo.It("stops without running when the context is already cancelled", func() {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		Expect(session.Run(cancelled, 0)).To(Succeed())
		Expect(fake.RunCallCount()).To(BeZero())
	})
})
