package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/vcav-io/website/internal/engine"
	"github.com/vcav-io/website/internal/scenario"
	"github.com/vcav-io/website/internal/store"
	"github.com/vcav-io/website/internal/testutil"
	"github.com/vcav-io/website/internal/trace"
)

// runLimit bounds virtual time for one suite. Playback that has not
// completed by then is reported as stuck.
const runLimit = 24 * time.Hour

// Result is the outcome of a suite run.
type Result struct {
	// Pass indicates overall success: true if every assertion held.
	Pass bool `json:"pass"`

	// Trace contains every recorded event in seq order.
	Trace []trace.Event `json:"trace"`

	// Errors contains assertion failure messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the engine state after the run.
	Final engine.PlaybackState `json:"final"`

	// HostMS is the virtual host time the run took.
	HostMS int64 `json:"host_ms"`

	// Digest is trace.Digest of Trace. Replays of the same suite agree.
	Digest string `json:"digest"`

	// RunID is set when the trace was written to a store.
	RunID string `json:"run_id,omitempty"`

	samples []sample
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []trace.Event{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// sample is the engine state on one tick.
type sample struct {
	elapsed time.Duration
	phase   scenario.Phase
}

// timeline records the phase in effect on every tick.
type timeline struct {
	engine.NopRenderer
	state   func() engine.PlaybackState
	samples []sample
}

func (tl *timeline) Progress(elapsed, _ time.Duration) {
	tl.samples = append(tl.samples, sample{elapsed: elapsed, phase: tl.state().Phase})
}

// RunOption configures Run.
type RunOption func(*runConfig)

type runConfig struct {
	store  *store.Store
	logger *slog.Logger
}

// WithStore persists the trace as a new run in st.
func WithStore(st *store.Store) RunOption {
	return func(c *runConfig) {
		c.store = st
	}
}

// WithLogger sets the logger handed to the engine. Default: discard.
func WithLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// Run plays the suite's scenario to completion and evaluates its
// assertions.
//
// Execution flow:
// 1. Load the scenario and build an engine on a fresh VirtualHost
// 2. Play at host time 0 and apply each control at its time
// 3. Step the host until playback completes
// 4. Evaluate assertions and optionally persist the trace
//
// Returns an error only if the run itself could not be carried out;
// assertion failures are reported in Result.Errors.
func Run(suite *Suite, opts ...RunOption) (*Result, error) {
	cfg := runConfig{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	for _, opt := range opts {
		opt(&cfg)
	}

	scn, err := scenario.Load(suite.Scenario)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario: %w", err)
	}

	host := testutil.NewVirtualHost()
	rec := trace.NewRecorder(host.Now)
	tl := &timeline{}

	eng, err := engine.New(scn, host, engine.Renderers{rec, tl},
		engine.WithConfig(suite.Config.Apply(engine.DefaultConfig())),
		engine.WithJitter(testutil.ZeroJitter),
		engine.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	tl.state = eng.State

	start := host.Now()
	eng.Play()

	for _, c := range suite.Controls {
		if d := start.Add(time.Duration(c.AtMS) * time.Millisecond).Sub(host.Now()); d > 0 {
			host.Advance(d)
		}
		applyControl(eng, c.Action)
	}

	done := host.RunUntil(func() bool {
		return eng.State().Status == engine.StatusComplete
	}, runLimit)
	if !done {
		return nil, fmt.Errorf("playback did not complete (status %s after %s of host time)",
			eng.State().Status, host.Now().Sub(start))
	}

	result := NewResult()
	result.Trace = rec.Events()
	result.Digest = trace.Digest(result.Trace)
	result.Final = eng.State()
	result.HostMS = host.Now().Sub(start).Milliseconds()
	result.samples = tl.samples

	for _, msg := range EvaluateAssertions(result, suite.Assertions) {
		result.AddError(msg)
	}

	if cfg.store != nil {
		if err := persist(context.Background(), cfg.store, scn, result); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func applyControl(eng *engine.Engine, action string) {
	switch action {
	case ActionPlay:
		eng.Play()
	case ActionPause:
		eng.Pause()
	case ActionReset:
		eng.Reset()
	}
}

func persist(ctx context.Context, st *store.Store, scn *scenario.Scenario, result *Result) error {
	runID, err := st.CreateRun(ctx, scn.ID, scn.Duration)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	if err := st.WriteEvents(ctx, runID, result.Trace); err != nil {
		return fmt.Errorf("failed to record trace: %w", err)
	}
	if err := st.MarkComplete(ctx, runID); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	result.RunID = runID
	return nil
}

// RunFile loads a suite and runs it.
func RunFile(path string, opts ...RunOption) (*Suite, *Result, error) {
	suite, err := LoadSuite(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := Run(suite, opts...)
	if err != nil {
		return suite, nil, fmt.Errorf("suite %s: %w", suite.Name, err)
	}
	return suite, result, nil
}
