package generator

import (
	"math/rand"

	"github.com/operator-framework/satfuzz/pkg/cnf"
)

// DefaultLiteralBudget bounds clause length times variable count for a
// single generated clause, keeping subject execution time bounded.
const DefaultLiteralBudget = 2000000

// Params describes the shape of a formula to generate.
type Params struct {
	Variables int
	Clauses   int
	// MaxClauseLength bounds the length of each clause. Zero means
	// Variables.
	MaxClauseLength int
	Malformed       bool
	// Redundant allows repeated variables within a clause. Non-redundant
	// clauses can never be longer than Variables.
	Redundant bool
}

// Generator builds random clauses and formulas. A Generator is not safe
// for concurrent use because it shares its random source.
type Generator struct {
	rnd    *rand.Rand
	budget int

	// displaced records the virtual pool positions that were swapped
	// while sampling a clause. It is cleared after every clause.
	displaced map[int]int
}

type Option func(g *Generator)

// WithLiteralBudget overrides DefaultLiteralBudget.
func WithLiteralBudget(budget int) Option {
	return func(g *Generator) {
		g.budget = budget
	}
}

func New(rnd *rand.Rand, options ...Option) *Generator {
	g := &Generator{
		rnd:       rnd,
		budget:    DefaultLiteralBudget,
		displaced: make(map[int]int),
	}
	for _, option := range options {
		option(g)
	}
	if g.budget < 1 {
		g.budget = 1
	}
	return g
}

// LiteralBudget returns the configured budget.
func (g *Generator) LiteralBudget() int {
	return g.budget
}

// capLength truncates length so that length*variables stays within the
// literal budget.
func (g *Generator) capLength(variables, length int) int {
	if variables > 0 && length > g.budget/variables {
		length = g.budget / variables
	}
	if length < 1 {
		length = 1
	}
	return length
}

// Clause returns a random clause of the given length over variables.
//
// In non-redundant mode a literal is drawn uniformly from the pool of
// 2*variables signed literals, and both it and its negation are removed
// from the pool. Removing a literal together with its negation is the
// same as removing the variable, so the pool is kept as a virtual
// array of variables with swap-to-end-and-shrink removal, and the sign
// is drawn separately. Length is clamped to variables in this mode.
//
// In redundant mode literals are drawn with replacement.
func (g *Generator) Clause(variables, length int, redundant bool) cnf.Clause {
	if variables < 1 {
		return cnf.Clause{}
	}
	length = g.capLength(variables, length)
	if redundant {
		c := make(cnf.Clause, length)
		for i := range c {
			c[i] = g.literal(g.rnd.Intn(variables) + 1)
		}
		return c
	}

	if length > variables {
		length = variables
	}
	c := make(cnf.Clause, length)
	remaining := variables
	for i := range c {
		j := g.rnd.Intn(remaining)
		c[i] = g.literal(g.at(j))
		remaining--
		g.displaced[j] = g.at(remaining)
	}
	for k := range g.displaced {
		delete(g.displaced, k)
	}
	return c
}

// at returns the variable stored at position i of the virtual pool.
func (g *Generator) at(i int) int {
	if v, ok := g.displaced[i]; ok {
		return v
	}
	return i + 1
}

func (g *Generator) literal(v int) cnf.Literal {
	if g.rnd.Intn(2) == 0 {
		return cnf.Literal(-v)
	}
	return cnf.Literal(v)
}

// Clauses returns n clauses over variables, each with a length drawn
// uniformly from [1, maxLength].
func (g *Generator) Clauses(variables, n, maxLength int, redundant bool) []cnf.Clause {
	if variables < 1 || n < 1 {
		return nil
	}
	if maxLength < 1 {
		maxLength = variables
	}
	if !redundant && maxLength > variables {
		maxLength = variables
	}
	maxLength = g.capLength(variables, maxLength)
	out := make([]cnf.Clause, n)
	for i := range out {
		out[i] = g.Clause(variables, g.rnd.Intn(maxLength)+1, redundant)
	}
	return out
}

// Generate builds a fresh formula from p. A formula over zero variables
// has no clauses.
func (g *Generator) Generate(p Params) *cnf.Formula {
	clauses := g.Clauses(p.Variables, p.Clauses, p.MaxClauseLength, p.Redundant)
	return cnf.New(p.Variables, clauses).WithMalformed(p.Malformed)
}

// Formula builds a fresh non-redundant formula with clause lengths in
// [1, variables].
func (g *Generator) Formula(variables, clauses int, malformed bool) *cnf.Formula {
	return g.Generate(Params{Variables: variables, Clauses: clauses, Malformed: malformed})
}
