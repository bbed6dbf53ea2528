package corpus

import (
	"math/rand"
	"sync"

	"github.com/operator-framework/satfuzz/pkg/cnf"
	"github.com/operator-framework/satfuzz/pkg/coverage"
)

const (
	DefaultInterestingCapacity = 200
	DefaultGiveUpAfter         = 15
)

// Entry is a retained input together with the coverage change it
// produced.
type Entry struct {
	Formula *cnf.Formula
	Delta   coverage.Delta
}

// InterestingPool is a bounded FIFO of inputs that reached new lines.
// It also counts consecutive rounds without an admission, which callers
// use to stop searching for follow-ups.
type InterestingPool struct {
	mu          sync.Mutex
	capacity    int
	giveUpAfter int
	// ring holds the entries; next is the slot the next admission
	// writes, which is also the oldest entry once the ring is full.
	ring      []Entry
	next      int
	admitted  int
	sinceLast int
}

func NewInterestingPool(capacity, giveUpAfter int) *InterestingPool {
	if capacity < 1 {
		capacity = DefaultInterestingCapacity
	}
	if giveUpAfter < 1 {
		giveUpAfter = DefaultGiveUpAfter
	}
	return &InterestingPool{
		capacity:    capacity,
		giveUpAfter: giveUpAfter,
		ring:        make([]Entry, 0, capacity),
	}
}

// Admit appends an entry, evicting the oldest one when the pool is
// full, and resets the miss streak. It returns the slot that was
// written, for persistence.
func (p *InterestingPool) Admit(f *cnf.Formula, delta coverage.Delta) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	slot := p.next
	e := Entry{Formula: f, Delta: delta}
	if len(p.ring) < p.capacity {
		p.ring = append(p.ring, e)
	} else {
		p.ring[slot] = e
	}
	p.next = (p.next + 1) % p.capacity
	p.admitted++
	p.sinceLast = 0
	return slot
}

// Miss records a round that produced nothing interesting.
func (p *InterestingPool) Miss() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinceLast++
}

// SinceLastInteresting returns the current miss streak.
func (p *InterestingPool) SinceLastInteresting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sinceLast
}

// GaveUp reports whether the miss streak reached the give-up threshold.
func (p *InterestingPool) GaveUp() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sinceLast >= p.giveUpAfter
}

// ResetStreak clears the miss streak without admitting anything.
func (p *InterestingPool) ResetStreak() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinceLast = 0
}

func (p *InterestingPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.ring)
}

// Admitted returns the total number of admissions, including evicted
// ones.
func (p *InterestingPool) Admitted() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.admitted
}

// Entries returns the retained entries, oldest first.
func (p *InterestingPool) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, 0, len(p.ring))
	if len(p.ring) < p.capacity {
		return append(out, p.ring...)
	}
	out = append(out, p.ring[p.next:]...)
	return append(out, p.ring[:p.next]...)
}

// Random returns a uniformly chosen entry, or false if the pool is
// empty.
func (p *InterestingPool) Random(rnd *rand.Rand) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ring) == 0 {
		return Entry{}, false
	}
	return p.ring[rnd.Intn(len(p.ring))], true
}
