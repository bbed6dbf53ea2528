package transform

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// Label is a satisfiability status.
type Label int

const (
	Sat Label = iota
	Unsat
	Unknown
)

func (l Label) String() string {
	switch l {
	case Sat:
		return "SAT"
	case Unsat:
		return "UNSAT"
	case Unknown:
		return "UNKNOWN"
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// ParseLabel is the inverse of Label.String.
func ParseLabel(s string) (Label, error) {
	switch strings.TrimSpace(s) {
	case "SAT":
		return Sat, nil
	case "UNSAT":
		return Unsat, nil
	case "UNKNOWN":
		return Unknown, nil
	}
	return Unknown, errors.Errorf("unknown satisfiability label %q", s)
}

// Relation maps the true status of a baseline formula to the predicted
// status of a derived formula: if the baseline is X, the derived
// formula is r[X].
type Relation [3]Label

// Identity is the relation of a transform that preserves satisfiability.
var Identity = Relation{Sat: Sat, Unsat: Unsat, Unknown: Unknown}

// Of returns the predicted status for a baseline status.
func (r Relation) Of(baseline Label) Label {
	if baseline < Sat || baseline > Unknown {
		return Unknown
	}
	return r[baseline]
}

// Then composes r with next: the result predicts what next predicts for
// the formula r predicted. Unknown always maps to Unknown.
func (r Relation) Then(next Relation) Relation {
	return Relation{
		Sat:     next.Of(r[Sat]),
		Unsat:   next.Of(r[Unsat]),
		Unknown: Unknown,
	}
}

// Usable reports whether the relation predicts anything at all, i.e.
// not both SAT and UNSAT collapse to UNKNOWN.
func (r Relation) Usable() bool {
	return r[Sat] != Unknown || r[Unsat] != Unknown
}

// String renders the persisted text form, one "X->Y" line per known
// baseline.
func (r Relation) String() string {
	return fmt.Sprintf("SAT->%s\nUNSAT->%s\n", r[Sat], r[Unsat])
}

// ParseRelation reads the text form produced by String.
func ParseRelation(rd io.Reader) (Relation, error) {
	r := Relation{Sat: Unknown, Unsat: Unknown, Unknown: Unknown}
	sc := bufio.NewScanner(rd)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "->", 2)
		if len(parts) != 2 {
			return r, errors.Errorf("malformed relation line %q", line)
		}
		from, err := ParseLabel(parts[0])
		if err != nil {
			return r, err
		}
		to, err := ParseLabel(parts[1])
		if err != nil {
			return r, err
		}
		if from == Unknown {
			continue
		}
		r[from] = to
	}
	return r, errors.Wrap(sc.Err(), "reading relation")
}
