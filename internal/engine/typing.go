package engine

import (
	"github.com/vcav-io/website/internal/clock"
	"github.com/vcav-io/website/internal/scenario"
)

// typingSession reveals one chat message step by step.
type typingSession struct {
	key   scenario.SessionKey
	msg   *scenario.ChatMessage
	total int   // rune count of msg.Text
	stops []int // cursor positions from the reveal strategy
	idx   int   // stops[idx] is currently revealed
	timer clock.TimerID
}

func (s *typingSession) cursor() int {
	return s.stops[s.idx]
}

func (s *typingSession) done() bool {
	return s.idx == len(s.stops)-1
}

// startTyping opens a session and shows the first stop right away so the
// bubble appears on the tick its message fires.
func (e *Engine) startTyping(msg *scenario.ChatMessage) {
	key := msg.Key()
	if _, exists := e.sessions[key]; exists {
		// Validate rejects duplicate keys; keep the running session.
		e.logger.Warn("typing session already active", "key", key.String())
		return
	}

	text := []rune(msg.Text)
	stops := e.reveal.Stops(text)
	if len(stops) == 0 || stops[len(stops)-1] != len(text) {
		stops = append(stops, len(text))
	}

	s := &typingSession{key: key, msg: msg, total: len(text), stops: stops}
	e.sessions[key] = s
	e.order = append(e.order, key)

	e.renderer.ChatReveal(msg, s.cursor(), s.total)
	e.afterReveal(s)
}

// afterReveal completes the session or arms its next step. The renderer
// may have paused or reset the engine during the reveal callback.
func (e *Engine) afterReveal(s *typingSession) {
	if e.sessions[s.key] != s {
		return // discarded by Reset
	}
	if s.done() {
		e.removeSession(s.key)
		e.renderer.ChatRevealComplete(s.msg)
		return
	}
	// A Play from inside the callback may already have re-armed it.
	if e.status == StatusPlaying && s.timer == 0 {
		e.armStep(s)
	}
}

// armStep schedules the next reveal with fresh jitter.
func (e *Engine) armStep(s *typingSession) {
	delay := e.cfg.TypingStep + e.jitter(e.cfg.TypingJitter)
	if delay < 0 {
		delay = 0
	}
	s.timer = e.host.After(delay, func() {
		e.onTypingStep(s)
	})
}

func (e *Engine) onTypingStep(s *typingSession) {
	if e.sessions[s.key] != s || e.status != StatusPlaying {
		return
	}
	s.timer = 0
	s.idx++

	e.renderer.ChatReveal(s.msg, s.cursor(), s.total)
	e.afterReveal(s)
}

// suspendTyping cancels every pending step. Cursors are kept.
func (e *Engine) suspendTyping() {
	for _, key := range e.order {
		s := e.sessions[key]
		if s.timer != 0 {
			e.host.Cancel(s.timer)
			s.timer = 0
		}
	}
}

// resumeTyping re-arms every session that has no pending step. The
// interrupted delay is not carried over; each session waits a full step.
func (e *Engine) resumeTyping() {
	for _, key := range e.order {
		s := e.sessions[key]
		if s.timer == 0 && !s.done() {
			e.armStep(s)
		}
	}
}

// discardTyping cancels and drops every session without completion
// callbacks.
func (e *Engine) discardTyping() {
	e.suspendTyping()
	e.sessions = make(map[scenario.SessionKey]*typingSession)
	e.order = nil
}

// flushTyping reveals every in-flight message in full and completes it.
// Used when playback reaches its end with messages still typing.
func (e *Engine) flushTyping() {
	e.suspendTyping()

	pending := make([]*typingSession, 0, len(e.order))
	for _, key := range e.order {
		pending = append(pending, e.sessions[key])
	}
	e.sessions = make(map[scenario.SessionKey]*typingSession)
	e.order = nil

	for _, s := range pending {
		e.renderer.ChatReveal(s.msg, s.total, s.total)
		e.renderer.ChatRevealComplete(s.msg)
	}
}

func (e *Engine) removeSession(key scenario.SessionKey) {
	delete(e.sessions, key)
	for i, k := range e.order {
		if k == key {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// ActiveSessions returns the number of messages currently typing.
func (e *Engine) ActiveSessions() int {
	return len(e.sessions)
}
