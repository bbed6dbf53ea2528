package corpus

import (
	"math/rand"
	"sync"

	"github.com/operator-framework/satfuzz/pkg/cnf"
	"github.com/operator-framework/satfuzz/pkg/sanitizer"
)

const DefaultSanitizerCapacity = 20

// SanitizerEntry is a retained input that triggered sanitizer findings.
// Evictable entries were not novel when admitted and are the first to
// go when room is needed.
type SanitizerEntry struct {
	Formula   *cnf.Formula
	Findings  sanitizer.Findings
	Evictable bool
}

// Eviction describes why a slot was freed.
type Eviction int

const (
	NoEviction Eviction = iota
	EvictedEvictable
	EvictedRedundant
	EvictedRandom
)

func (e Eviction) String() string {
	switch e {
	case EvictedEvictable:
		return "evictable"
	case EvictedRedundant:
		return "redundant"
	case EvictedRandom:
		return "random"
	}
	return "none"
}

// Admission is the result of SanitizerPool.Offer.
type Admission struct {
	Admitted bool
	Slot     int
	Evicted  Eviction
}

// SanitizerPool is a bounded pool of inputs that triggered sanitizer
// findings, admitted by finding novelty. Admission and eviction depend
// on the order of offers, so all access goes through one mutex.
type SanitizerPool struct {
	mu       sync.Mutex
	rnd      *rand.Rand
	capacity int
	entries  []SanitizerEntry
	// known counts, per finding, how many retained entries contain it.
	known map[sanitizer.Finding]int
}

func NewSanitizerPool(capacity int, rnd *rand.Rand) *SanitizerPool {
	if capacity < 1 {
		capacity = DefaultSanitizerCapacity
	}
	return &SanitizerPool{
		rnd:      rnd,
		capacity: capacity,
		entries:  make([]SanitizerEntry, 0, capacity),
		known:    make(map[sanitizer.Finding]int),
	}
}

// Offer considers f, which produced findings, for retention.
//
// A finding set is already seen when each of its findings occurs in
// some retained entry. While the pool has room, every nonempty set is
// admitted and marked evictable iff it was already seen. Once full,
// already seen sets are rejected; a novel set takes the slot of the
// first evictable entry, else of the first entry whose findings are all
// covered by the rest of the pool, else of a random entry.
func (p *SanitizerPool) Offer(f *cnf.Formula, findings sanitizer.Findings) Admission {
	if len(findings) == 0 {
		return Admission{Slot: -1}
	}
	findings = dedupe(findings)

	p.mu.Lock()
	defer p.mu.Unlock()

	seen := findings.CoveredBy(p.known)
	if len(p.entries) < p.capacity {
		p.entries = append(p.entries, SanitizerEntry{Formula: f, Findings: findings, Evictable: seen})
		p.add(findings)
		return Admission{Admitted: true, Slot: len(p.entries) - 1}
	}
	if seen {
		return Admission{Slot: -1}
	}

	slot, why := p.victim()
	p.remove(p.entries[slot].Findings)
	p.entries[slot] = SanitizerEntry{Formula: f, Findings: findings}
	p.add(findings)
	return Admission{Admitted: true, Slot: slot, Evicted: why}
}

func (p *SanitizerPool) victim() (int, Eviction) {
	for i, e := range p.entries {
		if e.Evictable {
			return i, EvictedEvictable
		}
	}
	for i, e := range p.entries {
		p.remove(e.Findings)
		redundant := e.Findings.CoveredBy(p.known)
		p.add(e.Findings)
		if redundant {
			return i, EvictedRedundant
		}
	}
	return p.rnd.Intn(len(p.entries)), EvictedRandom
}

func (p *SanitizerPool) add(fs sanitizer.Findings) {
	for _, f := range fs {
		p.known[f]++
	}
}

func (p *SanitizerPool) remove(fs sanitizer.Findings) {
	for _, f := range fs {
		if p.known[f] <= 1 {
			delete(p.known, f)
			continue
		}
		p.known[f]--
	}
}

// dedupe drops repeated findings so that counts in known reflect
// entries rather than occurrences.
func dedupe(fs sanitizer.Findings) sanitizer.Findings {
	seen := make(map[sanitizer.Finding]struct{}, len(fs))
	out := make(sanitizer.Findings, 0, len(fs))
	for _, f := range fs {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func (p *SanitizerPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Entries returns a copy of the retained entries in slot order.
func (p *SanitizerPool) Entries() []SanitizerEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SanitizerEntry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Known returns the number of distinct findings across the pool.
func (p *SanitizerPool) Known() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.known)
}
