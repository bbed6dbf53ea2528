package cnf

import (
	"strconv"
	"strings"

	"github.com/mitchellh/hashstructure"
)

// Literal is a nonzero DIMACS literal. Its magnitude is the 1-based
// variable index and its sign is the polarity.
type Literal int

// Var returns the variable index of the literal.
func (l Literal) Var() int {
	if l < 0 {
		return int(-l)
	}
	return int(l)
}

// Not returns the negation of l.
func (l Literal) Not() Literal {
	return -l
}

func (l Literal) String() string {
	return strconv.Itoa(int(l))
}

// Clause is a disjunction of literals. Order is not semantically
// meaningful but is preserved by serialization.
type Clause []Literal

// Redundant reports whether some variable occurs more than once in c,
// either as a repeated literal or together with its negation.
func (c Clause) Redundant() bool {
	seen := make(map[int]struct{}, len(c))
	for _, l := range c {
		if _, ok := seen[l.Var()]; ok {
			return true
		}
		seen[l.Var()] = struct{}{}
	}
	return false
}

// Negated returns the literal-wise negation of c.
func (c Clause) Negated() Clause {
	out := make(Clause, len(c))
	for i, l := range c {
		out[i] = l.Not()
	}
	return out
}

// Copy returns a copy of c that shares no memory with it.
func (c Clause) Copy() Clause {
	if c == nil {
		return Clause{}
	}
	out := make(Clause, len(c))
	copy(out, c)
	return out
}

func (c Clause) String() string {
	var b strings.Builder
	writeClause(&b, c)
	return strings.TrimSuffix(b.String(), "\n")
}

// Formula is an immutable CNF formula. Values are created by New (or
// by the generator, transforms and Parse, which all go through New)
// and are never modified afterwards.
type Formula struct {
	variables int
	clauses   []Clause
	malformed bool
}

// New returns a Formula over the given number of variables. The clauses
// are copied.
func New(variables int, clauses []Clause) *Formula {
	if variables < 0 {
		variables = 0
	}
	cs := make([]Clause, len(clauses))
	for i, c := range clauses {
		cs[i] = c.Copy()
	}
	return &Formula{variables: variables, clauses: cs}
}

// adopt builds a Formula that takes ownership of clauses. Callers in
// this package must not retain references to them.
func adopt(variables int, clauses []Clause) *Formula {
	return &Formula{variables: variables, clauses: clauses}
}

// Variables returns the declared variable count.
func (f *Formula) Variables() int {
	return f.variables
}

// NumClauses returns the number of clauses.
func (f *Formula) NumClauses() int {
	return len(f.clauses)
}

// Clause returns a copy of the i-th clause.
func (f *Formula) Clause(i int) Clause {
	return f.clauses[i].Copy()
}

// Clauses returns a deep copy of the clause list.
func (f *Formula) Clauses() []Clause {
	out := make([]Clause, len(f.clauses))
	for i, c := range f.clauses {
		out[i] = c.Copy()
	}
	return out
}

// Malformed reports whether serialization through an Encoder emits a
// corrupted header.
func (f *Formula) Malformed() bool {
	return f.malformed
}

// WithMalformed returns a Formula with the same clauses and the given
// header mode. Clause storage is shared, which is safe because neither
// value is ever mutated.
func (f *Formula) WithMalformed(malformed bool) *Formula {
	return &Formula{variables: f.variables, clauses: f.clauses, malformed: malformed}
}

// Literals returns the total number of literal occurrences.
func (f *Formula) Literals() int {
	n := 0
	for _, c := range f.clauses {
		n += len(c)
	}
	return n
}

// Cost estimates how expensive the formula is to hand to the subject.
// It is the literal count, with each empty clause counted once.
func (f *Formula) Cost() int {
	n := 0
	for _, c := range f.clauses {
		if len(c) == 0 {
			n++
			continue
		}
		n += len(c)
	}
	return n
}

// MaxVariable returns the largest variable index used by any literal.
func (f *Formula) MaxVariable() int {
	max := 0
	for _, c := range f.clauses {
		for _, l := range c {
			if l.Var() > max {
				max = l.Var()
			}
		}
	}
	return max
}

// WellFormed reports whether every literal is nonzero and within the
// declared variable count.
func (f *Formula) WellFormed() bool {
	for _, c := range f.clauses {
		for _, l := range c {
			if l == 0 || l.Var() > f.variables {
				return false
			}
		}
	}
	return true
}

// identity is the structural part of a Formula. The header mode is
// deliberately absent: malformed headers are re-randomized on every
// encode and must not influence identity.
type identity struct {
	Variables int
	Clauses   [][]int
}

func (f *Formula) identity() identity {
	cs := make([][]int, len(f.clauses))
	for i, c := range f.clauses {
		ls := make([]int, len(c))
		for j, l := range c {
			ls[j] = int(l)
		}
		cs[i] = ls
	}
	return identity{Variables: f.variables, Clauses: cs}
}

// Hash returns a structural hash over the variable count and the
// ordered clause list.
func (f *Formula) Hash() (uint64, error) {
	return hashstructure.Hash(f.identity(), nil)
}

// Equal reports whether f and other have the same variable count and
// the same ordered clauses.
func (f *Formula) Equal(other *Formula) bool {
	if f == nil || other == nil {
		return f == other
	}
	if f.variables != other.variables || len(f.clauses) != len(other.clauses) {
		return false
	}
	for i, c := range f.clauses {
		o := other.clauses[i]
		if len(c) != len(o) {
			return false
		}
		for j := range c {
			if c[j] != o[j] {
				return false
			}
		}
	}
	return true
}

// String returns the canonical DIMACS text of f. The header is always
// well formed; use an Encoder to honour Malformed.
func (f *Formula) String() string {
	var b strings.Builder
	b.WriteString(Header(f.variables, len(f.clauses)))
	b.WriteByte('\n')
	for _, c := range f.clauses {
		writeClause(&b, c)
	}
	return b.String()
}

func writeClause(b *strings.Builder, c Clause) {
	for _, l := range c {
		b.WriteString(strconv.Itoa(int(l)))
		b.WriteByte(' ')
	}
	b.WriteString("0\n")
}
