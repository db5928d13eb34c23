package scenario

import (
	"fmt"
	"time"
)

// Phase is the coarse narrative stage shown by the renderer.
type Phase string

const (
	PhasePreSession  Phase = "pre-session"
	PhaseProtocol    Phase = "protocol"
	PhasePostSession Phase = "post-session"
)

// InitialPhase is the narrative phase before any transition fires.
const InitialPhase = PhasePreSession

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhasePreSession, PhaseProtocol, PhasePostSession:
		return true
	}
	return false
}

// Side identifies one of the two chat panels.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

func (s Side) Valid() bool {
	return s == SideLeft || s == SideRight
}

// Role distinguishes human-authored messages from automated responses.
type Role string

const (
	RoleHuman     Role = "human"
	RoleResponder Role = "responder"
)

func (r Role) Valid() bool {
	return r == RoleHuman || r == RoleResponder
}

// LineKind is the display style of a single protocol card line.
type LineKind string

const (
	LineKV      LineKind = "kv"
	LineHeading LineKind = "heading"
	LineBlank   LineKind = "blank"
	LineComment LineKind = "comment"
	LineBullet  LineKind = "bullet"
	LinePre     LineKind = "pre"
	LineOK      LineKind = "ok"
	LineError   LineKind = "error"
)

func (k LineKind) Valid() bool {
	switch k {
	case LineKV, LineHeading, LineBlank, LineComment, LineBullet, LinePre, LineOK, LineError:
		return true
	}
	return false
}

// Line is one row of a protocol card. Key and Value are used by kv lines,
// Text by every other kind.
type Line struct {
	Kind  LineKind
	Key   string
	Value string
	Text  string
}

// CardStatus is the optional summary shown at the bottom of a card.
type CardStatus struct {
	OK   bool
	Text string
	Note string
}

// SubCard is a nested block of lines revealed at its own offset.
type SubCard struct {
	At    time.Duration
	Lines []Line
}

// EventKind names the event variants.
type EventKind string

const (
	KindPhase  EventKind = "phase"
	KindChat   EventKind = "chat"
	KindCard   EventKind = "card"
	KindSignal EventKind = "signal"
)

// Event is a unit of scheduled work. The set of implementations is closed.
type Event interface {
	// DueAt is the offset from scenario start at which the event fires.
	DueAt() time.Duration
	Kind() EventKind

	eventMarker()
}

// PhaseTransition moves the narrative to a new phase.
type PhaseTransition struct {
	At    time.Duration
	Phase Phase
}

func (e *PhaseTransition) DueAt() time.Duration { return e.At }
func (e *PhaseTransition) Kind() EventKind      { return KindPhase }
func (*PhaseTransition) eventMarker()           {}

// ChatMessage is a chat bubble revealed with a typing effect.
type ChatMessage struct {
	At   time.Duration
	Side Side
	Role Role
	Name string
	Text string
}

func (e *ChatMessage) DueAt() time.Duration { return e.At }
func (e *ChatMessage) Kind() EventKind      { return KindChat }
func (*ChatMessage) eventMarker()           {}

// Key returns the reveal-state identity of the message.
func (e *ChatMessage) Key() SessionKey {
	return SessionKey{Side: e.Side, At: e.At}
}

// ProtocolCard is a decorative protocol trace card. Error cards make the
// engine hold the master clock briefly after they appear.
type ProtocolCard struct {
	At       time.Duration
	ID       string
	Step     string
	Title    string
	Lines    []Line
	Status   *CardStatus
	SubCards []SubCard
	Error    bool
}

func (e *ProtocolCard) DueAt() time.Duration { return e.At }
func (e *ProtocolCard) Kind() EventKind      { return KindCard }
func (*ProtocolCard) eventMarker()           {}

// SignalEmission carries a pre-serialized payload the engine never inspects.
type SignalEmission struct {
	At      time.Duration
	Payload string
}

func (e *SignalEmission) DueAt() time.Duration { return e.At }
func (e *SignalEmission) Kind() EventKind      { return KindSignal }
func (*SignalEmission) eventMarker()           {}

// SessionKey identifies a chat message for typing purposes.
type SessionKey struct {
	Side Side
	At   time.Duration
}

func (k SessionKey) String() string {
	return fmt.Sprintf("%s@%d", k.Side, k.At.Milliseconds())
}

// Scenario is the complete, immutable timeline.
type Scenario struct {
	ID       string
	Title    string
	Duration time.Duration
	Events   []Event
}

// Count returns the number of events of the given kind.
func (s *Scenario) Count(kind EventKind) int {
	n := 0
	for _, ev := range s.Events {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}
