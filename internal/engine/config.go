package engine

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Config holds playback pacing. All values are durations on the host clock.
type Config struct {
	// TickInterval is the delay between drive-loop ticks (one frame).
	TickInterval time.Duration

	// TypingStep is the nominal delay between reveal steps.
	TypingStep time.Duration

	// TypingJitter bounds the symmetric random offset added to each step.
	TypingJitter time.Duration

	// FreezeDwell is how long an error card holds the master clock.
	FreezeDwell time.Duration
}

// DefaultConfig returns the pacing used by the product: ~60 fps ticks,
// word reveal every 80ms ± 20ms, and an 800ms error dwell.
func DefaultConfig() Config {
	return Config{
		TickInterval: 16 * time.Millisecond,
		TypingStep:   80 * time.Millisecond,
		TypingJitter: 20 * time.Millisecond,
		FreezeDwell:  800 * time.Millisecond,
	}
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	if c.TypingStep < 0 {
		return fmt.Errorf("typing step must be non-negative, got %s", c.TypingStep)
	}
	if c.TypingJitter < 0 {
		return fmt.Errorf("typing jitter must be non-negative, got %s", c.TypingJitter)
	}
	if c.FreezeDwell < 0 {
		return fmt.Errorf("freeze dwell must be non-negative, got %s", c.FreezeDwell)
	}
	return nil
}

// JitterFunc returns a random offset in [-bound, bound].
type JitterFunc func(bound time.Duration) time.Duration

// UniformJitter draws uniformly from [-bound, bound].
func UniformJitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(2*bound)+1)) - bound
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfig replaces the default pacing.
func WithConfig(cfg Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithJitter sets the jitter source. Tests use testutil.ZeroJitter.
func WithJitter(j JitterFunc) Option {
	return func(e *Engine) {
		e.jitter = j
	}
}

// WithLogger sets the logger for lifecycle and misuse messages.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithReveal sets the text reveal strategy. Default: WordReveal.
func WithReveal(r RevealStrategy) Option {
	return func(e *Engine) {
		e.reveal = r
	}
}
