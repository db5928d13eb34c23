package harness

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vcav-io/website/internal/trace"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string        // Assertion type for categorization
	Expected string        // Human-readable expected outcome
	Actual   string        // Human-readable actual outcome
	Trace    []trace.Event // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  %s\n", event)
		}
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(result *Result, a Assertion) error {
	switch a.Type {
	case AssertTraceContains:
		return assertTraceContains(result.Trace, a)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, a)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, a)
	case AssertPhaseAt:
		return assertPhaseAt(result.samples, a)
	case AssertFiredAfter:
		return assertFiredAfter(result.Trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// matches reports whether event has m's kind and every attr in m.
func matches(event trace.Event, m Match) bool {
	if string(event.Kind) != m.Kind {
		return false
	}
	for k, v := range m.Attrs {
		if event.Attrs[k] != v {
			return false
		}
	}
	return true
}

func (m Match) String() string {
	if len(m.Attrs) == 0 {
		return m.Kind
	}
	keys := make([]string, 0, len(m.Attrs))
	for k := range m.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, m.Attrs[k]))
	}
	return m.Kind + " " + strings.Join(parts, " ")
}

// assertTraceContains checks that some event matches kind and attrs.
func assertTraceContains(events []trace.Event, a Assertion) error {
	m := a.match()
	for _, e := range events {
		if matches(e, m) {
			return nil
		}
	}

	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: m.String(),
		Actual:   "not found in trace",
		Trace:    events,
	}
}

// assertTraceOrder checks that matches appear in the given order. Each
// match is searched for after the previous one, so intervening events are
// allowed.
func assertTraceOrder(events []trace.Event, a Assertion) error {
	pos := 0
	for i, m := range a.Order {
		found := -1
		for j := pos; j < len(events); j++ {
			if matches(events[j], m) {
				found = j
				break
			}
		}
		if found < 0 {
			actual := fmt.Sprintf("%s not found after position %d", m, pos)
			if i == 0 {
				actual = fmt.Sprintf("%s not found", m)
			}
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %s", joinMatches(a.Order)),
				Actual:   actual,
				Trace:    events,
			}
		}
		pos = found + 1
	}
	return nil
}

func joinMatches(ms []Match) string {
	parts := make([]string, len(ms))
	for i, m := range ms {
		parts[i] = m.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// assertTraceCount checks that exactly Count events match.
func assertTraceCount(events []trace.Event, a Assertion) error {
	m := a.match()
	count := 0
	for _, e := range events {
		if matches(e, m) {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, m),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    events,
		}
	}
	return nil
}

// assertPhaseAt checks the phase on the first tick whose elapsed time
// reached AtMS.
func assertPhaseAt(samples []sample, a Assertion) error {
	at := time.Duration(a.AtMS) * time.Millisecond
	for _, s := range samples {
		if s.elapsed < at {
			continue
		}
		if string(s.phase) != a.Phase {
			return &AssertionError{
				Type:     AssertPhaseAt,
				Expected: fmt.Sprintf("phase %s at %dms", a.Phase, a.AtMS),
				Actual:   fmt.Sprintf("phase %s (tick at %dms)", s.phase, s.elapsed.Milliseconds()),
			}
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertPhaseAt,
		Expected: fmt.Sprintf("phase %s at %dms", a.Phase, a.AtMS),
		Actual:   "playback never reached that time",
	}
}

// assertFiredAfter checks the host time of the first matching event.
func assertFiredAfter(events []trace.Event, a Assertion) error {
	m := a.match()
	for _, e := range events {
		if !matches(e, m) {
			continue
		}
		if (a.MinMS != nil && e.OffsetMS < *a.MinMS) || (a.MaxMS != nil && e.OffsetMS > *a.MaxMS) {
			return &AssertionError{
				Type:     AssertFiredAfter,
				Expected: fmt.Sprintf("%s within %s", m, window(a.MinMS, a.MaxMS)),
				Actual:   fmt.Sprintf("fired at %dms", e.OffsetMS),
			}
		}
		return nil
	}

	return &AssertionError{
		Type:     AssertFiredAfter,
		Expected: fmt.Sprintf("%s within %s", m, window(a.MinMS, a.MaxMS)),
		Actual:   "never fired",
		Trace:    events,
	}
}

func window(lo, hi *int64) string {
	bound := func(v *int64, open string) string {
		if v == nil {
			return open
		}
		return fmt.Sprintf("%dms", *v)
	}
	return fmt.Sprintf("[%s, %s]", bound(lo, "-inf"), bound(hi, "+inf"))
}
