package modes

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSelectorRejectsBadWeights(t *testing.T) {
	type tc struct {
		Name    string
		Options []Option
		Error   string
	}
	for _, tt := range []tc{
		{
			Name:    "VariableSumBelowOne",
			Options: []Option{WithVariableWeights(map[VariableMode]float64{Small: 0.5})},
			Error:   "variable weights must sum to 1, got 0.5",
		},
		{
			Name: "NegativeClauseWeight",
			Options: []Option{WithClauseWeights(map[ClauseMode]float64{
				ManyAndShort: 1.5,
				Balanced:     -0.5,
			})},
			Error: "clause weights must not be negative: BALANCED",
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			_, err := NewSelector(rand.New(rand.NewSource(1)), tt.Options...)
			require.Error(t, err)
			var werr WeightsError
			require.ErrorAs(t, err, &werr)
			assert.Equal(t, tt.Error, err.Error())
		})
	}
}

func TestSelectorHonoursWeights(t *testing.T) {
	s, err := NewSelector(rand.New(rand.NewSource(2)),
		WithVariableWeights(map[VariableMode]float64{Large: 1}),
		WithClauseWeights(map[ClauseMode]float64{Balanced: 0.5, FewAndLong: 0.5}),
	)
	require.NoError(t, err)

	counts := map[ClauseMode]int{}
	for i := 0; i < 1000; i++ {
		shape := s.Next()
		assert.Equal(t, Large, shape.VariableMode)
		counts[shape.ClauseMode]++
	}
	assert.Len(t, counts, 2)
	assert.InDelta(t, 500, counts[Balanced], 100)
}

func TestNextMarksLongShapesRedundant(t *testing.T) {
	s, err := NewSelector(rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	for i := 0; i < 500; i++ {
		shape := s.Next()
		assert.Equal(t, shape.MaxClauseLength > shape.Variables, shape.Redundant)
	}
}

func TestSelectorIsReproducible(t *testing.T) {
	a, err := NewSelector(rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	b, err := NewSelector(rand.New(rand.NewSource(9)))
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
}
