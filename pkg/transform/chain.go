package transform

import (
	"github.com/operator-framework/satfuzz/pkg/cnf"
)

// DefaultContinueProbability is the chance that Chain applies another
// transform after a successful one.
const DefaultContinueProbability = 0.5

// Step records one successful transform of a chain.
type Step struct {
	Kind     Kind
	Relation Relation
}

// Chained is the result of Chain.
type Chained struct {
	Formula  *cnf.Formula
	Relation Relation
	Steps    []Step
}

// Chain applies up to maxDepth transforms to f, starting from rel. Each
// step tries the chainable kinds in a fresh random order until one
// yields a usable prediction. If every kind fails, the chain stops and
// returns what it has so far, which is f itself when the first step
// fails. After a successful step the chain continues with probability
// pContinue.
func (l *Library) Chain(f *cnf.Formula, rel Relation, maxDepth int, pContinue float64) Chained {
	result := Chained{Formula: f, Relation: rel}
	order := make([]Kind, len(Kinds))
	for depth := 0; depth < maxDepth; depth++ {
		copy(order, Kinds)
		l.rnd.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		applied := false
		for _, kind := range order {
			out, composed, ok := l.Apply(kind, result.Formula, result.Relation)
			if !ok {
				continue
			}
			result.Formula = out
			result.Relation = composed
			result.Steps = append(result.Steps, Step{Kind: kind, Relation: composed})
			applied = true
			break
		}
		if !applied || l.rnd.Float64() >= pContinue {
			break
		}
	}
	return result
}
