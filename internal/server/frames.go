package server

import (
	"encoding/json"
	"time"

	"github.com/vcav-io/website/internal/engine"
	"github.com/vcav-io/website/internal/scenario"
)

// Outbound frame types.
const (
	FramePhase        = "phase"
	FrameChatReveal   = "chat-reveal"
	FrameChatComplete = "chat-complete"
	FrameCard         = "card"
	FrameSubCard      = "sub-card"
	FrameSignal       = "signal"
	FrameProgress     = "progress"
	FrameComplete     = "complete"
	FrameState        = "state"
	FrameError        = "error"
)

// Inbound command types.
const (
	CommandPlay  = "play"
	CommandPause = "pause"
	CommandReset = "reset"
	CommandState = "state"
)

// Command is a message from the browser.
type Command struct {
	Type string `json:"type"`
}

type phaseFrame struct {
	Type  string         `json:"type"`
	Phase scenario.Phase `json:"phase"`
}

type chatRevealFrame struct {
	Type     string        `json:"type"`
	Key      string        `json:"key"`
	Side     scenario.Side `json:"side"`
	Role     scenario.Role `json:"role"`
	Name     string        `json:"name"`
	Text     string        `json:"text"` // the revealed prefix
	Revealed int           `json:"revealed"`
	Total    int           `json:"total"`
}

type chatCompleteFrame struct {
	Type string `json:"type"`
	Key  string `json:"key"`
}

type cardFrame struct {
	Type string          `json:"type"`
	Card json.RawMessage `json:"card"`
}

type subCardFrame struct {
	Type    string          `json:"type"`
	CardID  string          `json:"card_id"`
	SubCard json.RawMessage `json:"sub_card"`
}

type signalFrame struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

type progressFrame struct {
	Type      string `json:"type"`
	ElapsedMS int64  `json:"elapsed_ms"`
	TotalMS   int64  `json:"total_ms"`
}

type stateFrame struct {
	Type      string         `json:"type"`
	Scenario  string         `json:"scenario"`
	Status    engine.Status  `json:"status"`
	Phase     scenario.Phase `json:"phase"`
	ElapsedMS int64          `json:"elapsed_ms"`
	TotalMS   int64          `json:"total_ms"`
}

type simpleFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

func newStateFrame(id string, st engine.PlaybackState) stateFrame {
	return stateFrame{
		Type:      FrameState,
		Scenario:  id,
		Status:    st.Status,
		Phase:     st.Phase,
		ElapsedMS: st.Elapsed.Milliseconds(),
		TotalMS:   st.Total.Milliseconds(),
	}
}

// frameRenderer turns engine callbacks into frames on a session.
type frameRenderer struct {
	sess *session
}

func (f frameRenderer) PhaseChanged(p scenario.Phase) {
	f.sess.send(phaseFrame{Type: FramePhase, Phase: p})
}

func (f frameRenderer) ChatReveal(msg *scenario.ChatMessage, revealed, total int) {
	f.sess.send(chatRevealFrame{
		Type:     FrameChatReveal,
		Key:      msg.Key().String(),
		Side:     msg.Side,
		Role:     msg.Role,
		Name:     msg.Name,
		Text:     string([]rune(msg.Text)[:revealed]),
		Revealed: revealed,
		Total:    total,
	})
}

func (f frameRenderer) ChatRevealComplete(msg *scenario.ChatMessage) {
	f.sess.send(chatCompleteFrame{Type: FrameChatComplete, Key: msg.Key().String()})
}

func (f frameRenderer) CardRevealed(card *scenario.ProtocolCard) {
	data, err := scenario.MarshalCardJSON(card)
	if err != nil {
		f.sess.logger.Error("failed to encode card", "card", card.ID, "error", err)
		return
	}
	f.sess.send(cardFrame{Type: FrameCard, Card: data})
}

func (f frameRenderer) SubCardRevealed(card *scenario.ProtocolCard, sub *scenario.SubCard) {
	data, err := scenario.MarshalSubCardJSON(sub)
	if err != nil {
		f.sess.logger.Error("failed to encode sub-card", "card", card.ID, "error", err)
		return
	}
	f.sess.send(subCardFrame{Type: FrameSubCard, CardID: card.ID, SubCard: data})
}

func (f frameRenderer) Signal(payload string) {
	f.sess.send(signalFrame{Type: FrameSignal, Payload: payload})
}

// Progress frames are droppable: the next tick supersedes a lost one.
func (f frameRenderer) Progress(elapsed, total time.Duration) {
	f.sess.trySend(progressFrame{
		Type:      FrameProgress,
		ElapsedMS: elapsed.Milliseconds(),
		TotalMS:   total.Milliseconds(),
	})
}

func (f frameRenderer) Complete() {
	f.sess.send(simpleFrame{Type: FrameComplete})
	f.sess.completed()
}
