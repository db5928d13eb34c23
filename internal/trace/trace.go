// Package trace records what a playback engine showed and when.
//
// A Recorder is an engine.Renderer. Each callback becomes an Event stamped
// with a logical sequence number and its offset from the recorder's start
// on the host clock. Traces feed the conformance harness, golden files and
// the SQLite store.
package trace

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vcav-io/website/internal/clock"
	"github.com/vcav-io/website/internal/scenario"
)

// Kind identifies the renderer callback an event came from.
type Kind string

const (
	KindPhase        Kind = "phase"
	KindChatReveal   Kind = "chat-reveal"
	KindChatComplete Kind = "chat-complete"
	KindCard         Kind = "card"
	KindSubCard      Kind = "sub-card"
	KindSignal       Kind = "signal"
	KindProgress     Kind = "progress"
	KindComplete     Kind = "complete"
)

// Event is one recorded callback.
type Event struct {
	Seq      int64             `json:"seq"`
	OffsetMS int64             `json:"offset_ms"`
	Kind     Kind              `json:"kind"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

// Attr returns the named attribute or "".
func (e Event) Attr(name string) string {
	return e.Attrs[name]
}

// String renders the event on one line: "[seq] +offset kind k=v ...".
// Attributes are sorted by name so the output is stable.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d] +%dms %s", e.Seq, e.OffsetMS, e.Kind)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%s", k, quote(e.Attrs[k]))
	}
	return b.String()
}

func quote(v string) string {
	if v == "" || strings.ContainsAny(v, " \t\n\"=") {
		return strconv.Quote(v)
	}
	return v
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithProgress records Progress callbacks. They are dropped by default:
// one per tick makes traces long and tick-rate dependent.
func WithProgress() Option {
	return func(r *Recorder) {
		r.progress = true
	}
}

// WithSeq sets the sequence source. Default: a fresh counter from 0.
func WithSeq(seq *clock.Seq) Option {
	return func(r *Recorder) {
		r.seq = seq
	}
}

// Recorder collects events from engine callbacks.
//
// Thread-safety: callbacks arrive on the engine's loop, but Events and
// Format may be called from any goroutine.
type Recorder struct {
	now      func() time.Time
	start    time.Time
	seq      *clock.Seq
	progress bool

	mu     sync.Mutex
	events []Event
}

// NewRecorder creates a recorder whose offsets count from now().
func NewRecorder(now func() time.Time, opts ...Option) *Recorder {
	r := &Recorder{
		now:   now,
		start: now(),
		seq:   clock.NewSeq(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) record(kind Kind, attrs map[string]string) {
	offset := r.now().Sub(r.start).Milliseconds()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{
		Seq:      r.seq.Next(),
		OffsetMS: offset,
		Kind:     kind,
		Attrs:    attrs,
	})
}

// Events returns a copy of the recorded events in order.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Clear drops every event and restarts offsets from now. The sequence
// keeps counting so events from before and after a clear never collide.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
	r.start = r.now()
}

// Format renders every event with Event.String, one per line.
func (r *Recorder) Format() string {
	return Format(r.Events())
}

// Format renders events one per line with a trailing newline.
func Format(events []Event) string {
	var b strings.Builder
	for _, e := range events {
		b.WriteString(e.String())
		b.WriteByte('\n')
	}
	return b.String()
}

func (r *Recorder) PhaseChanged(p scenario.Phase) {
	r.record(KindPhase, map[string]string{"phase": string(p)})
}

func (r *Recorder) ChatReveal(msg *scenario.ChatMessage, revealed, total int) {
	r.record(KindChatReveal, map[string]string{
		"key":      msg.Key().String(),
		"revealed": fmt.Sprintf("%d/%d", revealed, total),
	})
}

func (r *Recorder) ChatRevealComplete(msg *scenario.ChatMessage) {
	r.record(KindChatComplete, map[string]string{"key": msg.Key().String()})
}

func (r *Recorder) CardRevealed(card *scenario.ProtocolCard) {
	attrs := map[string]string{"id": card.ID}
	if card.Error {
		attrs["error"] = "true"
	}
	r.record(KindCard, attrs)
}

func (r *Recorder) SubCardRevealed(card *scenario.ProtocolCard, sub *scenario.SubCard) {
	r.record(KindSubCard, map[string]string{
		"card": card.ID,
		"at":   strconv.FormatInt(sub.At.Milliseconds(), 10),
	})
}

func (r *Recorder) Signal(payload string) {
	r.record(KindSignal, map[string]string{"payload": payload})
}

func (r *Recorder) Progress(elapsed, total time.Duration) {
	if !r.progress {
		return
	}
	r.record(KindProgress, map[string]string{
		"elapsed": strconv.FormatInt(elapsed.Milliseconds(), 10),
		"total":   strconv.FormatInt(total.Milliseconds(), 10),
	})
}

func (r *Recorder) Complete() {
	r.record(KindComplete, nil)
}
