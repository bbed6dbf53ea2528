package corpus

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/operator-framework/satfuzz/pkg/sanitizer"
)

func finding(location string) sanitizer.Finding {
	return sanitizer.Finding{Kind: sanitizer.HeapBufferOverflow, Location: location}
}

func TestSanitizerPoolIgnoresEmptyFindings(t *testing.T) {
	p := NewSanitizerPool(2, rand.New(rand.NewSource(1)))
	a := p.Offer(formula(1), nil)
	assert.False(t, a.Admitted)
	assert.Equal(t, -1, a.Slot)
	assert.Zero(t, p.Len())
}

func TestSanitizerPoolMarksSeenFindingsEvictable(t *testing.T) {
	p := NewSanitizerPool(3, rand.New(rand.NewSource(1)))
	p.Offer(formula(1), sanitizer.Findings{finding("a"), finding("b")})
	a := p.Offer(formula(2), sanitizer.Findings{finding("a"), finding("a")})
	require.True(t, a.Admitted)

	entries := p.Entries()
	assert.False(t, entries[0].Evictable)
	assert.True(t, entries[1].Evictable)
	assert.Equal(t, sanitizer.Findings{finding("a")}, entries[1].Findings)
	assert.Equal(t, 2, p.Known())
}

func TestSanitizerPoolRejectsSeenFindingsWhenFull(t *testing.T) {
	p := NewSanitizerPool(2, rand.New(rand.NewSource(1)))
	p.Offer(formula(1), sanitizer.Findings{finding("a")})
	p.Offer(formula(2), sanitizer.Findings{finding("b")})

	a := p.Offer(formula(3), sanitizer.Findings{finding("b"), finding("a")})
	assert.False(t, a.Admitted)
	assert.Equal(t, 2, p.Len())
}

func TestSanitizerPoolEviction(t *testing.T) {
	type tc struct {
		Name    string
		Fill    []sanitizer.Findings
		Offer   sanitizer.Findings
		Slot    int
		Evicted Eviction
	}
	for _, tt := range []tc{
		{
			Name: "EvictableFirst",
			Fill: []sanitizer.Findings{
				{finding("a")},
				{finding("b")},
				{finding("a")},
			},
			Offer:   sanitizer.Findings{finding("c")},
			Slot:    2,
			Evicted: EvictedEvictable,
		},
		{
			Name: "RedundantNext",
			Fill: []sanitizer.Findings{
				{finding("a")},
				{finding("b")},
				{finding("a"), finding("c")},
			},
			Offer:   sanitizer.Findings{finding("d")},
			Slot:    0,
			Evicted: EvictedRedundant,
		},
		{
			Name: "RandomLast",
			Fill: []sanitizer.Findings{
				{finding("a")},
				{finding("b")},
				{finding("c")},
			},
			Offer:   sanitizer.Findings{finding("d")},
			Slot:    -1,
			Evicted: EvictedRandom,
		},
	} {
		t.Run(tt.Name, func(t *testing.T) {
			p := NewSanitizerPool(len(tt.Fill), rand.New(rand.NewSource(1)))
			for i, fs := range tt.Fill {
				require.True(t, p.Offer(formula(i+1), fs).Admitted)
			}

			a := p.Offer(formula(99), tt.Offer)
			require.True(t, a.Admitted)
			assert.Equal(t, tt.Evicted, a.Evicted)
			if tt.Slot >= 0 {
				assert.Equal(t, tt.Slot, a.Slot)
			}

			entries := p.Entries()
			require.Len(t, entries, len(tt.Fill))
			assert.Equal(t, 99, entries[a.Slot].Formula.Variables())
			assert.False(t, entries[a.Slot].Evictable)
		})
	}
}

func TestSanitizerPoolKnownTracksEvictions(t *testing.T) {
	p := NewSanitizerPool(1, rand.New(rand.NewSource(1)))
	p.Offer(formula(1), sanitizer.Findings{finding("a")})
	p.Offer(formula(2), sanitizer.Findings{finding("b")})
	assert.Equal(t, 1, p.Known())

	// "a" left with the evicted entry, so it is novel again.
	a := p.Offer(formula(3), sanitizer.Findings{finding("a")})
	assert.True(t, a.Admitted)
}
