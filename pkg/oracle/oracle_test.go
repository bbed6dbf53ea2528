package oracle

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operator-framework/satfuzz/pkg/cnf"
	"github.com/operator-framework/satfuzz/pkg/runner"
	"github.com/operator-framework/satfuzz/pkg/transform"
)

func TestSolve(t *testing.T) {
	type tc struct {
		Name     string
		Formula  *cnf.Formula
		Expected transform.Label
	}
	for _, tt := range []tc{
		{
			Name:     "Empty",
			Formula:  cnf.New(0, nil),
			Expected: transform.Sat,
		},
		{
			Name:     "Satisfiable",
			Formula:  cnf.New(3, []cnf.Clause{{1, -2}, {2, 3}, {-1, -3}}),
			Expected: transform.Sat,
		},
		{
			Name:     "Contradiction",
			Formula:  cnf.New(1, []cnf.Clause{{1}, {-1}}),
			Expected: transform.Unsat,
		},
		{
			Name: "AllAssignmentsExcluded",
			Formula: cnf.New(2, []cnf.Clause{
				{1, 2}, {1, -2}, {-1, 2}, {-1, -2},
			}),
			Expected: transform.Unsat,
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			assert.Equal(t, tt.Expected, Solve(tt.Formula, time.Second))
		})
	}
}

func TestVerdictRespectsLiteralLimit(t *testing.T) {
	f := cnf.New(1, []cnf.Clause{{1}, {-1}})
	assert.Equal(t, transform.Unsat, New().Verdict(f))

	o := New(WithMaxLiterals(1))
	assert.False(t, o.Accepts(f))
	assert.Equal(t, transform.Unknown, o.Verdict(f))
}

func TestVerdictRespectsVariableLimit(t *testing.T) {
	f, err := cnf.Parse(strings.NewReader("p cnf 1 1\n1 -2000000000 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, f.Cost())

	o := New()
	assert.False(t, o.Accepts(f))
	assert.Equal(t, transform.Unknown, o.Verdict(f))

	assert.Equal(t, transform.Sat, New(WithMaxVariables(3)).Verdict(cnf.New(3, []cnf.Clause{{1, -3}})))
	assert.False(t, New(WithMaxVariables(2)).Accepts(cnf.New(3, []cnf.Clause{{1, -3}})))
}

func TestParseVerdict(t *testing.T) {
	type tc struct {
		Name     string
		Output   string
		Expected transform.Label
	}
	for _, tt := range []tc{
		{Name: "Satisfiable", Output: "c solving\ns SATISFIABLE\nv 1 -2 0\n", Expected: transform.Sat},
		{Name: "Unsatisfiable", Output: "c solving\ns UNSATISFIABLE\n", Expected: transform.Unsat},
		{Name: "Unknown", Output: "s UNKNOWN\n", Expected: transform.Unknown},
		{Name: "NoStatus", Output: "c interrupted\n", Expected: transform.Unknown},
		{Name: "Empty", Output: "", Expected: transform.Unknown},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			l, err := ParseVerdict([]byte(tt.Output))
			assert.NoError(t, err)
			assert.Equal(t, tt.Expected, l)
		})
	}
}

func TestFromResult(t *testing.T) {
	assert.Equal(t, transform.Unknown, FromResult(nil))
	assert.Equal(t, transform.Sat, FromResult(&runner.Result{ExitCode: 10}))
	assert.Equal(t, transform.Unsat, FromResult(&runner.Result{ExitCode: 20}))
	assert.Equal(t, transform.Unknown, FromResult(&runner.Result{ExitCode: 1}))
	assert.Equal(t, transform.Unsat, FromResult(&runner.Result{ExitCode: 10, Stdout: []byte("s UNSATISFIABLE\n")}))
}
