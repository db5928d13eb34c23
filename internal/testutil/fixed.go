package testutil

import (
	"sync"
	"time"
)

// ZeroJitter is a jitter source that never perturbs a delay.
func ZeroJitter(time.Duration) time.Duration {
	return 0
}

// FixedJitter returns a jitter source that always yields d, clamped to the
// requested bound.
func FixedJitter(d time.Duration) func(time.Duration) time.Duration {
	return func(bound time.Duration) time.Duration {
		if d > bound {
			return bound
		}
		if d < -bound {
			return -bound
		}
		return d
	}
}

// FixedIDGenerator returns the same run ID every time.
//
// This enables deterministic test execution: the same scenario recorded
// twice produces byte-identical store rows.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a generator. An empty id yields
// "test-run-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed ID.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}

// SequenceIDGenerator returns predetermined IDs in order and panics when
// they run out, which catches tests that create more runs than expected.
type SequenceIDGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewSequenceIDGenerator creates a generator over ids.
func NewSequenceIDGenerator(ids ...string) *SequenceIDGenerator {
	return &SequenceIDGenerator{ids: ids}
}

// Generate returns the next ID.
func (g *SequenceIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("SequenceIDGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}
