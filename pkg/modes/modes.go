package modes

import (
	"fmt"
	"math/rand"
)

// LiteralBudget bounds clauses*maxClauseLength for every clause mode.
// Generation and solving get slow enough past this point that the
// subject times out for no interesting reason.
const LiteralBudget = 1000000

// uberVariables is the fixed variable count of the Uber mode.
const uberVariables = 20000

// VariableMode selects the regime the variable count is drawn from.
type VariableMode int

const (
	Small VariableMode = iota
	Medium
	Large
	XLarge
	XXLarge
	Uber
)

var variableModeNames = [...]string{"SMALL", "MEDIUM", "LARGE", "XLARGE", "XXLARGE", "UBER"}

// VariableModes lists every VariableMode in declaration order.
var VariableModes = []VariableMode{Small, Medium, Large, XLarge, XXLarge, Uber}

func (m VariableMode) String() string {
	if m < 0 || int(m) >= len(variableModeNames) {
		return fmt.Sprintf("VariableMode(%d)", int(m))
	}
	return variableModeNames[m]
}

// Range returns the inclusive bounds of the mode's variable count.
func (m VariableMode) Range() (int, int) {
	switch m {
	case Small:
		return 1, 5
	case Medium:
		return 6, 30
	case Large:
		return 31, 100
	case XLarge:
		return 101, 1000
	case XXLarge:
		return 1001, 5000
	default:
		return uberVariables, uberVariables
	}
}

// Variables draws a variable count uniformly from the mode's range.
func (m VariableMode) Variables(rnd *rand.Rand) int {
	lo, hi := m.Range()
	return between(rnd, lo, hi)
}

// ClauseMode selects how clause count and clause length relate to the
// variable count.
type ClauseMode int

const (
	ManyAndShort ClauseMode = iota
	Balanced
	FewAndLong
	ManyAndLong
	// Special is reserved for extreme-value stress patterns and
	// currently behaves like Balanced.
	Special
)

var clauseModeNames = [...]string{"MANY_AND_SHORT", "BALANCED", "FEW_AND_LONG", "MANY_AND_LONG", "SPECIAL"}

// ClauseModes lists every ClauseMode in declaration order.
var ClauseModes = []ClauseMode{ManyAndShort, Balanced, FewAndLong, ManyAndLong, Special}

func (m ClauseMode) String() string {
	if m < 0 || int(m) >= len(clauseModeNames) {
		return fmt.Sprintf("ClauseMode(%d)", int(m))
	}
	return clauseModeNames[m]
}

// manyAndLongLimit is the variable count above which ManyAndLong falls
// back to Balanced.
const manyAndLongLimit = 500

// Parameters returns the clause count and maximum clause length for a
// formula over the given number of variables. The product of the two
// never exceeds LiteralBudget and the length is at least 1.
func (m ClauseMode) Parameters(rnd *rand.Rand, variables int) (clauses, maxLength int) {
	if variables < 1 {
		variables = 1
	}
	switch m {
	case ManyAndShort:
		clauses = between(rnd, min(100000, 10*variables), min(500000, 200*variables))
		maxLength = min(LiteralBudget/clauses, max(3, variables/20))
	case FewAndLong:
		clauses = between(rnd, max(1, variables/20), max(1, variables*2/5))
		maxLength = min(LiteralBudget/clauses, between(rnd, variables+1, 40*variables))
	case ManyAndLong:
		if variables > manyAndLongLimit {
			return Balanced.Parameters(rnd, variables)
		}
		clauses = between(rnd, 10*variables, 50*variables)
		maxLength = between(rnd, variables+1, min(LiteralBudget/clauses, 30*variables))
	default:
		clauses = between(rnd, variables, 3*variables)
		maxLength = min(LiteralBudget/clauses, variables)
	}
	if maxLength < 1 {
		maxLength = 1
	}
	return clauses, maxLength
}

// between draws uniformly from [lo, hi]. If the range is empty it
// returns hi, the tighter of the two bounds in every caller.
func between(rnd *rand.Rand, lo, hi int) int {
	if hi <= lo {
		return hi
	}
	return lo + rnd.Intn(hi-lo+1)
}
