package modes

import (
	"fmt"
	"math"
	"math/rand"
	"strings"

	"github.com/operator-framework/satfuzz/pkg/generator"
)

const weightTolerance = 1e-9

// DefaultVariableWeights skews towards Medium and Large formulas.
var DefaultVariableWeights = map[VariableMode]float64{
	Small:   0.10,
	Medium:  0.30,
	Large:   0.30,
	XLarge:  0.20,
	XXLarge: 0.08,
	Uber:    0.02,
}

// DefaultClauseWeights skews towards the first three clause modes.
var DefaultClauseWeights = map[ClauseMode]float64{
	ManyAndShort: 0.30,
	Balanced:     0.30,
	FewAndLong:   0.25,
	ManyAndLong:  0.10,
	Special:      0.05,
}

// WeightsError reports a categorical distribution that does not sum
// to one or has a negative weight.
type WeightsError struct {
	Distribution string
	Sum          float64
	Negative     []string
}

func (e WeightsError) Error() string {
	if len(e.Negative) > 0 {
		return fmt.Sprintf("%s weights must not be negative: %s", e.Distribution, strings.Join(e.Negative, ", "))
	}
	return fmt.Sprintf("%s weights must sum to 1, got %g", e.Distribution, e.Sum)
}

// Shape is one draw of the selector: the modes that were chosen and the
// generator parameters they produced.
type Shape struct {
	VariableMode VariableMode
	ClauseMode   ClauseMode
	generator.Params
}

// Selector draws formula shapes from two independent categorical
// distributions, resampled on every call to Next.
type Selector struct {
	rnd             *rand.Rand
	variableWeights []float64
	clauseWeights   []float64
}

type Option func(s *Selector) error

func WithVariableWeights(weights map[VariableMode]float64) Option {
	return func(s *Selector) error {
		w, err := cumulative("variable", len(VariableModes), func(i int) (string, float64) {
			return VariableModes[i].String(), weights[VariableModes[i]]
		})
		if err != nil {
			return err
		}
		s.variableWeights = w
		return nil
	}
}

func WithClauseWeights(weights map[ClauseMode]float64) Option {
	return func(s *Selector) error {
		w, err := cumulative("clause", len(ClauseModes), func(i int) (string, float64) {
			return ClauseModes[i].String(), weights[ClauseModes[i]]
		})
		if err != nil {
			return err
		}
		s.clauseWeights = w
		return nil
	}
}

var defaults = []Option{
	func(s *Selector) error {
		if s.variableWeights == nil {
			return WithVariableWeights(DefaultVariableWeights)(s)
		}
		return nil
	},
	func(s *Selector) error {
		if s.clauseWeights == nil {
			return WithClauseWeights(DefaultClauseWeights)(s)
		}
		return nil
	},
}

// NewSelector returns a Selector drawing from rnd. Given the same seed,
// the sequence of shapes is reproducible.
func NewSelector(rnd *rand.Rand, options ...Option) (*Selector, error) {
	s := &Selector{rnd: rnd}
	for _, option := range append(options, defaults...) {
		if err := option(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func cumulative(name string, n int, weight func(int) (string, float64)) ([]float64, error) {
	out := make([]float64, n)
	sum := 0.0
	var negative []string
	for i := 0; i < n; i++ {
		label, w := weight(i)
		if w < 0 {
			negative = append(negative, label)
		}
		sum += w
		out[i] = sum
	}
	if len(negative) > 0 || math.Abs(sum-1) > weightTolerance {
		return nil, WeightsError{Distribution: name, Sum: sum, Negative: negative}
	}
	out[n-1] = 1
	return out, nil
}

func pick(rnd *rand.Rand, cdf []float64) int {
	x := rnd.Float64()
	for i, c := range cdf {
		if x < c {
			return i
		}
	}
	return len(cdf) - 1
}

// VariableMode draws a variable mode.
func (s *Selector) VariableMode() VariableMode {
	return VariableModes[pick(s.rnd, s.variableWeights)]
}

// ClauseMode draws a clause mode.
func (s *Selector) ClauseMode() ClauseMode {
	return ClauseModes[pick(s.rnd, s.clauseWeights)]
}

// Next draws a variable mode, a variable count, a clause mode and the
// clause parameters for that count. Shapes whose maximum clause length
// exceeds the variable count are marked redundant, since no
// non-redundant clause can be that long.
func (s *Selector) Next() Shape {
	vm := s.VariableMode()
	variables := vm.Variables(s.rnd)
	cm := s.ClauseMode()
	clauses, maxLength := cm.Parameters(s.rnd, variables)
	return Shape{
		VariableMode: vm,
		ClauseMode:   cm,
		Params: generator.Params{
			Variables:       variables,
			Clauses:         clauses,
			MaxClauseLength: maxLength,
			Redundant:       maxLength > variables,
		},
	}
}
