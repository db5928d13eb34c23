package engine

import (
	"time"

	"github.com/vcav-io/website/internal/scenario"
)

// Status is the playback lifecycle phase.
type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusPaused
	StatusComplete
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON and logs.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PlaybackState is a snapshot of the engine. It shares nothing with the
// engine's live state.
type PlaybackState struct {
	Status  Status         `json:"status"`
	Phase   scenario.Phase `json:"phase"`
	Elapsed time.Duration  `json:"elapsed"`
	Total   time.Duration  `json:"total"`
}

// Remaining returns Total - Elapsed.
func (s PlaybackState) Remaining() time.Duration {
	return s.Total - s.Elapsed
}

// Fraction returns progress in [0, 1]. An empty scenario counts as done
// once complete and as not started otherwise.
func (s PlaybackState) Fraction() float64 {
	if s.Total <= 0 {
		if s.Status == StatusComplete {
			return 1
		}
		return 0
	}
	return float64(s.Elapsed) / float64(s.Total)
}
