package scenario

import (
	"errors"
	"fmt"
)

// ErrInvalidScenario is matched by every ValidationError via errors.Is.
var ErrInvalidScenario = errors.New("invalid scenario")

// ValidationError describes the first problem found in a scenario.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidScenario
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Validate checks a scenario before playback. Offsets past the total
// duration are allowed; such events never fire.
func Validate(s *Scenario) error {
	if s == nil {
		return invalid("scenario", "is nil")
	}
	if s.Duration < 0 {
		return invalid("duration_ms", "must be non-negative, got %d", s.Duration.Milliseconds())
	}

	keys := make(map[SessionKey]int)
	cards := make(map[string]int)

	for i, ev := range s.Events {
		field := fmt.Sprintf("events[%d]", i)
		if ev == nil {
			return invalid(field, "event is nil")
		}
		if ev.DueAt() < 0 {
			return invalid(field+".at", "must be non-negative, got %d", ev.DueAt().Milliseconds())
		}

		switch e := ev.(type) {
		case *PhaseTransition:
			if !e.Phase.Valid() {
				return invalid(field+".phase", "unknown phase %q", e.Phase)
			}
		case *ChatMessage:
			if !e.Side.Valid() {
				return invalid(field+".side", "unknown side %q", e.Side)
			}
			if !e.Role.Valid() {
				return invalid(field+".role", "unknown role %q", e.Role)
			}
			// Reveal state is keyed by (side, offset); two messages sharing it
			// would share one typing session.
			if prev, ok := keys[e.Key()]; ok {
				return invalid(field, "duplicate chat key %s (also events[%d])", e.Key(), prev)
			}
			keys[e.Key()] = i
		case *ProtocolCard:
			if e.ID == "" {
				return invalid(field+".card.id", "is required")
			}
			if prev, ok := cards[e.ID]; ok {
				return invalid(field+".card.id", "duplicate card id %q (also events[%d])", e.ID, prev)
			}
			cards[e.ID] = i
			if err := validateLines(field+".card.lines", e.Lines); err != nil {
				return err
			}
			for j, sub := range e.SubCards {
				subField := fmt.Sprintf("%s.card.sub_cards[%d]", field, j)
				if sub.At < 0 {
					return invalid(subField+".at", "must be non-negative, got %d", sub.At.Milliseconds())
				}
				if err := validateLines(subField+".lines", sub.Lines); err != nil {
					return err
				}
			}
		case *SignalEmission:
			// Payload is opaque.
		default:
			return invalid(field, "unsupported event type %T", ev)
		}
	}

	return nil
}

func validateLines(field string, lines []Line) error {
	for i, l := range lines {
		if !l.Kind.Valid() {
			return invalid(fmt.Sprintf("%s[%d].kind", field, i), "unknown line kind %q", l.Kind)
		}
	}
	return nil
}
