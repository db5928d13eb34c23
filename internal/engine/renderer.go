package engine

import (
	"time"

	"github.com/vcav-io/website/internal/scenario"
)

// Renderer receives every visible effect of playback. Implementations must
// not mutate the scenario values they are handed.
type Renderer interface {
	// PhaseChanged fires for each phase transition.
	PhaseChanged(phase scenario.Phase)

	// ChatReveal fires when a typing session starts and on each step.
	// revealed is the number of runes of msg.Text now visible.
	ChatReveal(msg *scenario.ChatMessage, revealed, total int)

	// ChatRevealComplete fires once when a message is fully revealed.
	ChatRevealComplete(msg *scenario.ChatMessage)

	CardRevealed(card *scenario.ProtocolCard)
	SubCardRevealed(card *scenario.ProtocolCard, sub *scenario.SubCard)

	// Signal hands over the opaque payload of a signal emission.
	Signal(payload string)

	// Progress fires on every tick while playing and once at completion.
	// 0 <= elapsed <= total always holds.
	Progress(elapsed, total time.Duration)

	// Complete fires exactly once when playback reaches the total duration.
	Complete()
}

// NopRenderer ignores every callback. Embed it to implement only the
// callbacks you care about.
type NopRenderer struct{}

func (NopRenderer) PhaseChanged(scenario.Phase)                               {}
func (NopRenderer) ChatReveal(*scenario.ChatMessage, int, int)                {}
func (NopRenderer) ChatRevealComplete(*scenario.ChatMessage)                  {}
func (NopRenderer) CardRevealed(*scenario.ProtocolCard)                       {}
func (NopRenderer) SubCardRevealed(*scenario.ProtocolCard, *scenario.SubCard) {}
func (NopRenderer) Signal(string)                                             {}
func (NopRenderer) Progress(time.Duration, time.Duration)                     {}
func (NopRenderer) Complete()                                                 {}

// Renderers fans every callback out to each renderer in order.
type Renderers []Renderer

func (rs Renderers) PhaseChanged(p scenario.Phase) {
	for _, r := range rs {
		r.PhaseChanged(p)
	}
}

func (rs Renderers) ChatReveal(msg *scenario.ChatMessage, revealed, total int) {
	for _, r := range rs {
		r.ChatReveal(msg, revealed, total)
	}
}

func (rs Renderers) ChatRevealComplete(msg *scenario.ChatMessage) {
	for _, r := range rs {
		r.ChatRevealComplete(msg)
	}
}

func (rs Renderers) CardRevealed(card *scenario.ProtocolCard) {
	for _, r := range rs {
		r.CardRevealed(card)
	}
}

func (rs Renderers) SubCardRevealed(card *scenario.ProtocolCard, sub *scenario.SubCard) {
	for _, r := range rs {
		r.SubCardRevealed(card, sub)
	}
}

func (rs Renderers) Signal(payload string) {
	for _, r := range rs {
		r.Signal(payload)
	}
}

func (rs Renderers) Progress(elapsed, total time.Duration) {
	for _, r := range rs {
		r.Progress(elapsed, total)
	}
}

func (rs Renderers) Complete() {
	for _, r := range rs {
		r.Complete()
	}
}
