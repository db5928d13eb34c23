package engine

import (
	"log/slog"
	"time"

	"github.com/vcav-io/website/internal/clock"
	"github.com/vcav-io/website/internal/scenario"
	"github.com/vcav-io/website/internal/schedule"
)

// Engine plays one scenario. See the package documentation for the
// threading model: every method must be called on the host's loop.
type Engine struct {
	scenario *scenario.Scenario
	schedule *schedule.Schedule
	host     clock.Host
	renderer Renderer
	cfg      Config
	jitter   JitterFunc
	reveal   RevealStrategy
	logger   *slog.Logger

	status  Status
	phase   scenario.Phase
	origin  time.Time     // host time at which elapsed was 0; meaningful while playing
	elapsed time.Duration // last computed elapsed; the held value while paused or frozen
	tick    clock.TimerID // pending drive-loop tick, 0 if none
	freeze  *freeze

	// Typing sessions in creation order. Resume re-arms them in this order
	// so jitter draws are reproducible.
	sessions map[scenario.SessionKey]*typingSession
	order    []scenario.SessionKey
}

// freeze is an active error-card hold of the master clock.
type freeze struct {
	start     time.Time     // host time the current stretch of the hold began
	remaining time.Duration // dwell still owed at start
}

// New validates the scenario and builds its schedule. The scenario must
// not be modified afterwards.
func New(s *scenario.Scenario, host clock.Host, r Renderer, opts ...Option) (*Engine, error) {
	if host == nil {
		return nil, &Error{Code: ErrCodeMissingDependency, Message: "host is required"}
	}
	if r == nil {
		return nil, &Error{Code: ErrCodeMissingDependency, Message: "renderer is required"}
	}
	if err := scenario.Validate(s); err != nil {
		return nil, &Error{Code: ErrCodeInvalidScenario, Message: "scenario rejected", Err: err}
	}

	e := &Engine{
		scenario: s,
		host:     host,
		renderer: r,
		cfg:      DefaultConfig(),
		jitter:   UniformJitter,
		reveal:   WordReveal{},
		logger:   slog.Default(),
		status:   StatusIdle,
		phase:    scenario.InitialPhase,
		sessions: make(map[scenario.SessionKey]*typingSession),
	}

	for _, opt := range opts {
		opt(e)
	}

	if err := e.cfg.Validate(); err != nil {
		return nil, &Error{Code: ErrCodeInvalidConfig, Message: "config rejected", Err: err}
	}
	if e.jitter == nil {
		e.jitter = UniformJitter
	}
	if e.reveal == nil {
		e.reveal = WordReveal{}
	}

	e.schedule = schedule.Build(s)

	e.logger.Debug("engine created",
		"scenario", s.ID,
		"entries", e.schedule.Len(),
		"duration_ms", s.Duration.Milliseconds(),
	)

	return e, nil
}

// State returns a snapshot of the playback state.
func (e *Engine) State() PlaybackState {
	elapsed := e.elapsed
	if e.status == StatusPlaying && e.freeze == nil {
		elapsed = e.host.Now().Sub(e.origin)
	}
	return PlaybackState{
		Status:  e.status,
		Phase:   e.phase,
		Elapsed: e.clamp(elapsed),
		Total:   e.scenario.Duration,
	}
}

// Play starts or resumes playback. No-op while playing or complete.
func (e *Engine) Play() {
	switch e.status {
	case StatusPlaying, StatusComplete:
		e.logger.Debug("play ignored", "status", e.status)
		return
	}

	from := e.status
	now := e.host.Now()

	// Re-anchor the clock so elapsed continues from the held value no
	// matter how long the pause lasted.
	e.origin = now.Add(-e.elapsed)
	if e.freeze != nil {
		e.freeze.start = now
	}
	e.status = StatusPlaying

	if from == StatusPaused {
		e.resumeTyping()
	}
	e.scheduleTick()

	e.logger.Debug("playback started",
		"from", from,
		"elapsed_ms", e.elapsed.Milliseconds(),
	)
}

// Pause freezes playback at the current elapsed time. Typing sessions keep
// their cursors. No-op unless playing.
func (e *Engine) Pause() {
	if e.status != StatusPlaying {
		e.logger.Debug("pause ignored", "status", e.status)
		return
	}

	now := e.host.Now()
	e.elapsed = e.clamp(e.advance(now))
	if e.freeze != nil {
		e.freeze.remaining -= now.Sub(e.freeze.start)
	}

	e.cancelTick()
	e.suspendTyping()
	e.status = StatusPaused

	if next, ok := e.schedule.Next(); ok {
		e.logger.Debug("playback paused",
			"elapsed_ms", e.elapsed.Milliseconds(),
			"next_entry_ms", next.Milliseconds(),
		)
	} else {
		e.logger.Debug("playback paused", "elapsed_ms", e.elapsed.Milliseconds())
	}
}

// Reset rewinds to the initial idle state. Nothing scheduled before Reset
// runs afterwards.
func (e *Engine) Reset() {
	e.cancelTick()
	e.discardTyping()
	e.schedule.Reset()

	e.freeze = nil
	e.elapsed = 0
	e.phase = scenario.InitialPhase
	e.status = StatusIdle

	e.logger.Debug("playback reset")
}

// advance returns the elapsed time at host time now, releasing a freeze
// whose dwell has been served.
func (e *Engine) advance(now time.Time) time.Duration {
	if e.freeze != nil {
		frozenFor := now.Sub(e.freeze.start)
		if frozenFor < e.freeze.remaining {
			return e.elapsed
		}

		// Shift by the span actually observed, not the nominal dwell: a
		// throttled host may deliver this tick late.
		e.origin = e.origin.Add(frozenFor)
		e.freeze = nil
		e.logger.Debug("freeze released", "frozen_ms", frozenFor.Milliseconds())
	}

	elapsed := now.Sub(e.origin)
	if elapsed < e.elapsed {
		elapsed = e.elapsed
	}
	return elapsed
}

func (e *Engine) clamp(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > e.scenario.Duration {
		return e.scenario.Duration
	}
	return d
}

func (e *Engine) scheduleTick() {
	e.tick = e.host.After(e.cfg.TickInterval, e.onTick)
}

func (e *Engine) cancelTick() {
	if e.tick != 0 {
		e.host.Cancel(e.tick)
		e.tick = 0
	}
}

// onTick is one iteration of the drive loop.
func (e *Engine) onTick() {
	e.tick = 0
	if e.status != StatusPlaying {
		return
	}

	now := e.host.Now()
	elapsed := e.advance(now)
	e.elapsed = elapsed

	// Take one entry at a time: a renderer may pause or reset from inside
	// a callback, and entries not yet taken must stay unfired.
	for entry := e.schedule.Take(elapsed); entry != nil; entry = e.schedule.Take(elapsed) {
		e.fire(entry, now)
		if e.interrupted() {
			return
		}
	}

	total := e.scenario.Duration
	e.renderer.Progress(e.clamp(elapsed), total)
	if e.interrupted() {
		return
	}

	if elapsed >= total {
		e.complete()
		return
	}
	e.scheduleTick()
}

// interrupted reports whether a renderer callback stopped this tick's work:
// the engine left playing, or a Play from inside the callback already
// armed the next tick.
func (e *Engine) interrupted() bool {
	return e.status != StatusPlaying || e.tick != 0
}

func (e *Engine) fire(entry *schedule.Entry, now time.Time) {
	e.logger.Debug("firing entry",
		"kind", entry.Kind,
		"at_ms", entry.At.Milliseconds(),
		"elapsed_ms", e.elapsed.Milliseconds(),
	)

	switch entry.Kind {
	case schedule.EntryPhase:
		ev := entry.Event.(*scenario.PhaseTransition)
		e.phase = ev.Phase
		e.renderer.PhaseChanged(ev.Phase)

	case schedule.EntryChat:
		e.startTyping(entry.Event.(*scenario.ChatMessage))

	case schedule.EntryCard:
		card := entry.Event.(*scenario.ProtocolCard)
		e.renderer.CardRevealed(card)
		if card.Error && e.status == StatusPlaying {
			e.startFreeze(now, card)
		}

	case schedule.EntrySubCard:
		e.renderer.SubCardRevealed(entry.Parent, entry.SubCard)

	case schedule.EntrySignal:
		e.renderer.Signal(entry.Event.(*scenario.SignalEmission).Payload)
	}
}

func (e *Engine) startFreeze(now time.Time, card *scenario.ProtocolCard) {
	if e.freeze != nil {
		e.logger.Debug("freeze already active; not extended", "card", card.ID)
		return
	}
	if e.cfg.FreezeDwell <= 0 {
		return
	}

	e.freeze = &freeze{start: now, remaining: e.cfg.FreezeDwell}
	e.logger.Debug("freeze started",
		"card", card.ID,
		"elapsed_ms", e.elapsed.Milliseconds(),
		"dwell_ms", e.cfg.FreezeDwell.Milliseconds(),
	)
}

func (e *Engine) complete() {
	e.elapsed = e.scenario.Duration
	e.freeze = nil
	e.status = StatusComplete

	e.flushTyping()
	if e.status != StatusComplete {
		return // reset from inside a reveal callback
	}
	e.renderer.Complete()

	// Entries authored past the total duration never fire.
	e.logger.Info("playback complete",
		"scenario", e.scenario.ID,
		"unfired", e.schedule.Pending(),
	)
}
