package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vcav-io/website/internal/engine"
)

// Suite defines a conformance run: one scenario, its controls and the
// assertions its trace must satisfy.
type Suite struct {
	// Name uniquely identifies this suite. Also the golden file name.
	Name string `yaml:"name"`

	// Description explains what this suite validates.
	Description string `yaml:"description"`

	// Scenario is the path to the scenario file (YAML or CUE).
	// Relative paths are resolved against the suite file location.
	Scenario string `yaml:"scenario"`

	// Config overrides engine pacing. Unset fields keep the defaults.
	Config ConfigOverrides `yaml:"config,omitempty"`

	// Controls are applied in order at their virtual host times.
	Controls []Control `yaml:"controls,omitempty"`

	// Assertions validate the final trace.
	Assertions []Assertion `yaml:"assertions"`
}

// ConfigOverrides mirrors engine.Config in milliseconds.
type ConfigOverrides struct {
	TickMS         *int64 `yaml:"tick_ms,omitempty"`
	TypingStepMS   *int64 `yaml:"typing_step_ms,omitempty"`
	TypingJitterMS *int64 `yaml:"typing_jitter_ms,omitempty"`
	FreezeMS       *int64 `yaml:"freeze_ms,omitempty"`
}

// Apply returns base with every set override applied.
func (o ConfigOverrides) Apply(base engine.Config) engine.Config {
	ms := func(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
	if o.TickMS != nil {
		base.TickInterval = ms(*o.TickMS)
	}
	if o.TypingStepMS != nil {
		base.TypingStep = ms(*o.TypingStepMS)
	}
	if o.TypingJitterMS != nil {
		base.TypingJitter = ms(*o.TypingJitterMS)
	}
	if o.FreezeMS != nil {
		base.FreezeDwell = ms(*o.FreezeMS)
	}
	return base
}

// Control is a transport action applied at a virtual host time.
type Control struct {
	AtMS   int64  `yaml:"at_ms"`
	Action string `yaml:"action"`
}

// Control actions.
const (
	ActionPlay  = "play"
	ActionPause = "pause"
	ActionReset = "reset"
)

// Match selects trace events by kind and a subset of attributes.
type Match struct {
	Kind  string            `yaml:"kind"`
	Attrs map[string]string `yaml:"attrs,omitempty"`
}

// Assertion validates the trace.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": Check an event with kind/attrs appears
	// - "trace_order": Check matches appear in order
	// - "trace_count": Check kind/attrs appears exactly Count times
	// - "phase_at": Check the phase at logical time AtMS
	// - "fired_after": Check when the first match fired
	Type string `yaml:"type"`

	// Kind and Attrs select events (trace_contains, trace_count, fired_after).
	Kind  string            `yaml:"kind,omitempty"`
	Attrs map[string]string `yaml:"attrs,omitempty"`

	// Count is the expected number of matches (trace_count).
	Count int `yaml:"count,omitempty"`

	// Order is the expected event order (trace_order).
	Order []Match `yaml:"order,omitempty"`

	// AtMS and Phase are used by phase_at.
	AtMS  int64  `yaml:"at_ms,omitempty"`
	Phase string `yaml:"phase,omitempty"`

	// MinMS and MaxMS bound host time for fired_after. Either may be unset.
	MinMS *int64 `yaml:"min_ms,omitempty"`
	MaxMS *int64 `yaml:"max_ms,omitempty"`
}

func (a Assertion) match() Match {
	return Match{Kind: a.Kind, Attrs: a.Attrs}
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertPhaseAt       = "phase_at"
	AssertFiredAfter    = "fired_after"
)

// LoadSuite reads and parses a suite YAML file, resolving the scenario path
// relative to the suite. Returns an error if the file doesn't exist, is
// malformed, contains unknown fields (typos), or is missing required fields.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}

	suite, err := ParseSuite(data)
	if err != nil {
		return nil, err
	}

	if !filepath.IsAbs(suite.Scenario) {
		suite.Scenario = filepath.Join(filepath.Dir(path), suite.Scenario)
	}
	if _, err := os.Stat(suite.Scenario); err != nil {
		return nil, fmt.Errorf("invalid suite: scenario file not found: %s", suite.Scenario)
	}

	return suite, nil
}

// ParseSuite parses suite YAML without touching the filesystem.
func ParseSuite(data []byte) (*Suite, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var suite Suite
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&suite); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateSuite(&suite); err != nil {
		return nil, fmt.Errorf("invalid suite: %w", err)
	}

	return &suite, nil
}

// validateSuite checks that required fields are present and valid.
func validateSuite(s *Suite) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Scenario == "" {
		return fmt.Errorf("scenario is required")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	var prev int64
	for i, c := range s.Controls {
		switch c.Action {
		case ActionPlay, ActionPause, ActionReset:
		default:
			return fmt.Errorf("controls[%d]: unknown action %q", i, c.Action)
		}
		if c.AtMS < prev {
			return fmt.Errorf("controls[%d]: at_ms %d is before the previous control (%d)", i, c.AtMS, prev)
		}
		prev = c.AtMS
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(i, &a); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertFiredAfter:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for %s", index, a.Type)
		}
		if a.Type == AssertFiredAfter && a.MinMS == nil && a.MaxMS == nil {
			return fmt.Errorf("assertions[%d]: min_ms or max_ms is required for fired_after", index)
		}
	case AssertTraceOrder:
		if len(a.Order) == 0 {
			return fmt.Errorf("assertions[%d]: order list is required for trace_order", index)
		}
		for j, m := range a.Order {
			if m.Kind == "" {
				return fmt.Errorf("assertions[%d].order[%d]: kind is required", index, j)
			}
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertPhaseAt:
		if a.Phase == "" {
			return fmt.Errorf("assertions[%d]: phase is required for phase_at", index)
		}
		if a.AtMS < 0 {
			return fmt.Errorf("assertions[%d]: at_ms must be non-negative for phase_at", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
