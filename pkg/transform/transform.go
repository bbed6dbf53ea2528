package transform

import (
	"fmt"
	"math/rand"

	"github.com/operator-framework/satfuzz/pkg/cnf"
	"github.com/operator-framework/satfuzz/pkg/generator"
)

// Kind enumerates the transforms whose effect on satisfiability is
// known and which can therefore be chained.
type Kind int

const (
	AddRandomClauses Kind = iota
	AddNegatedClauses
	PermuteLiterals
	DisjunctWithNewVariables
)

// Kinds lists every chainable Kind.
var Kinds = []Kind{AddRandomClauses, AddNegatedClauses, PermuteLiterals, DisjunctWithNewVariables}

func (k Kind) String() string {
	switch k {
	case AddRandomClauses:
		return "add-random-clauses"
	case AddNegatedClauses:
		return "add-negated-clauses"
	case PermuteLiterals:
		return "permute-literals"
	case DisjunctWithNewVariables:
		return "disjunct-with-new-variables"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Negation controls how AddNegatedClauses appends the negation of a
// clause.
type Negation int

const (
	// NegateAsUnits appends one unit clause per negated literal. By De
	// Morgan that conjunction is the exact negation of the picked
	// clause, so a satisfiable input becomes unsatisfiable.
	NegateAsUnits Negation = iota
	// NegateAsClause appends the negated literals as a single clause.
	// That clause is not the negation of the picked one, so nothing
	// is known about a satisfiable input afterwards.
	NegateAsClause
)

// Laws of the individual transforms.
var (
	addClausesLaw  = Relation{Sat: Unknown, Unsat: Unsat, Unknown: Unknown}
	negateUnitsLaw = Relation{Sat: Unsat, Unsat: Unsat, Unknown: Unknown}
)

const (
	defaultMaxNewClauses   = 10
	defaultMaxNegated      = 10
	defaultMaxNewVariables = 5
)

// Library applies transforms using a shared random source and clause
// generator. It is not safe for concurrent use.
type Library struct {
	rnd             *rand.Rand
	gen             *generator.Generator
	negation        Negation
	maxNewClauses   int
	maxNegated      int
	maxNewVariables int
}

type Option func(l *Library)

func WithNegation(n Negation) Option {
	return func(l *Library) {
		l.negation = n
	}
}

// WithMaxNewClauses bounds n in AddRandomClauses when applied through
// Apply or Chain.
func WithMaxNewClauses(n int) Option {
	return func(l *Library) {
		l.maxNewClauses = n
	}
}

// WithMaxNegated bounds how many clauses AddNegatedClauses negates.
func WithMaxNegated(n int) Option {
	return func(l *Library) {
		l.maxNegated = n
	}
}

// WithMaxNewVariables bounds k in DisjunctWithNewVariables when applied
// through Apply or Chain.
func WithMaxNewVariables(k int) Option {
	return func(l *Library) {
		l.maxNewVariables = k
	}
}

func NewLibrary(rnd *rand.Rand, gen *generator.Generator, options ...Option) *Library {
	l := &Library{
		rnd:             rnd,
		gen:             gen,
		negation:        NegateAsUnits,
		maxNewClauses:   defaultMaxNewClauses,
		maxNegated:      defaultMaxNegated,
		maxNewVariables: defaultMaxNewVariables,
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// CombineUnion concatenates the clauses of a and b without renumbering.
// The result ranges over max(a, b) variables. Its satisfiability cannot
// be predicted from the inputs, so it is only used to diversify the
// corpus.
func CombineUnion(a, b *cnf.Formula) *cnf.Formula {
	return cnf.New(max(a.Variables(), b.Variables()), append(a.Clauses(), b.Clauses()...))
}

// CombineDisjoint appends the clauses of b, shifted onto fresh
// variables a.Variables()+1 .. a.Variables()+b.Variables(), after the
// clauses of a. Signs are preserved.
func CombineDisjoint(a, b *cnf.Formula) *cnf.Formula {
	shift := a.Variables()
	clauses := a.Clauses()
	for _, c := range b.Clauses() {
		for i, l := range c {
			if l > 0 {
				c[i] = l + cnf.Literal(shift)
			} else {
				c[i] = l - cnf.Literal(shift)
			}
		}
		clauses = append(clauses, c)
	}
	return cnf.New(shift+b.Variables(), clauses)
}

// AddRandomClauses appends n freshly generated clauses over the same
// variables. Adding constraints keeps an unsatisfiable formula
// unsatisfiable, but may break a satisfiable one.
func (l *Library) AddRandomClauses(f *cnf.Formula, n int) (*cnf.Formula, Relation) {
	clauses := append(f.Clauses(), l.gen.Clauses(f.Variables(), n, f.Variables(), false)...)
	return cnf.New(f.Variables(), clauses), addClausesLaw
}

// AddNegatedClauses picks between 1 and the configured maximum of
// existing clauses (with replacement) and appends the negation of each.
// It reports false if f has no clauses to negate.
func (l *Library) AddNegatedClauses(f *cnf.Formula) (*cnf.Formula, Relation, bool) {
	if f.NumClauses() == 0 {
		return nil, Relation{}, false
	}
	clauses := f.Clauses()
	picks := l.rnd.Intn(max(1, l.maxNegated)) + 1
	for i := 0; i < picks; i++ {
		negated := f.Clause(l.rnd.Intn(f.NumClauses())).Negated()
		if l.negation == NegateAsClause {
			clauses = append(clauses, negated)
			continue
		}
		for _, lit := range negated {
			clauses = append(clauses, cnf.Clause{lit})
		}
	}
	law := negateUnitsLaw
	if l.negation == NegateAsClause {
		law = addClausesLaw
	}
	return cnf.New(f.Variables(), clauses), law, true
}

// PermuteLiterals shuffles the literals inside every clause. Literal
// order within a clause carries no meaning.
func (l *Library) PermuteLiterals(f *cnf.Formula) (*cnf.Formula, Relation) {
	clauses := f.Clauses()
	for _, c := range clauses {
		l.rnd.Shuffle(len(c), func(i, j int) {
			c[i], c[j] = c[j], c[i]
		})
	}
	return cnf.New(f.Variables(), clauses), Identity
}

// DisjunctWithNewVariables introduces k fresh variables, each fixed
// once to a single polarity, and disjoins a random nonempty subset of
// them onto every clause. A unit clause per fresh literal forces it
// false, so every model of the result restricts to a model of f and
// every model of f extends to one of the result.
func (l *Library) DisjunctWithNewVariables(f *cnf.Formula, k int) (*cnf.Formula, Relation) {
	if k < 1 {
		return cnf.New(f.Variables(), f.Clauses()), Identity
	}
	terms := make([]cnf.Literal, k)
	for i := range terms {
		v := cnf.Literal(f.Variables() + i + 1)
		if l.rnd.Intn(2) == 0 {
			v = -v
		}
		terms[i] = v
	}
	clauses := f.Clauses()
	for i, c := range clauses {
		n := l.rnd.Intn(k) + 1
		for _, p := range l.rnd.Perm(k)[:n] {
			c = append(c, terms[p])
		}
		clauses[i] = c
	}
	for _, t := range terms {
		clauses = append(clauses, cnf.Clause{t.Not()})
	}
	return cnf.New(f.Variables()+k, clauses), Identity
}

// Apply runs the transform of the given kind on f and composes its law
// onto rel, the relation between f and the baseline. It reports false
// when the transform is not applicable or the composed relation no
// longer predicts anything.
func (l *Library) Apply(kind Kind, f *cnf.Formula, rel Relation) (*cnf.Formula, Relation, bool) {
	var (
		out *cnf.Formula
		law Relation
	)
	switch kind {
	case AddRandomClauses:
		if f.Variables() < 1 {
			return nil, Relation{}, false
		}
		out, law = l.AddRandomClauses(f, l.rnd.Intn(max(1, l.maxNewClauses))+1)
	case AddNegatedClauses:
		var ok bool
		if out, law, ok = l.AddNegatedClauses(f); !ok {
			return nil, Relation{}, false
		}
	case PermuteLiterals:
		out, law = l.PermuteLiterals(f)
	case DisjunctWithNewVariables:
		out, law = l.DisjunctWithNewVariables(f, l.rnd.Intn(max(1, l.maxNewVariables))+1)
	default:
		return nil, Relation{}, false
	}
	composed := rel.Then(law)
	if !composed.Usable() {
		return nil, Relation{}, false
	}
	return out.WithMalformed(f.Malformed()), composed, true
}
