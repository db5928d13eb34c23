// Package schedule turns a scenario into the time-ordered list of entries
// the playback engine drains.
//
// The schedule is built once per engine and only its fired flags change
// afterwards. Entries are sorted ascending by due offset; entries sharing
// an offset keep their authoring order.
package schedule

import (
	"sort"
	"time"

	"github.com/vcav-io/website/internal/scenario"
)

// EntryKind extends the scenario event kinds with sub-cards, which the
// schedule fires as entries of their own.
type EntryKind string

const (
	EntryPhase   EntryKind = EntryKind(scenario.KindPhase)
	EntryChat    EntryKind = EntryKind(scenario.KindChat)
	EntryCard    EntryKind = EntryKind(scenario.KindCard)
	EntrySignal  EntryKind = EntryKind(scenario.KindSignal)
	EntrySubCard EntryKind = "sub-card"
)

// Entry is one scheduled unit of work.
type Entry struct {
	At    time.Duration
	Kind  EntryKind
	Event scenario.Event

	// Set for EntrySubCard only.
	Parent  *scenario.ProtocolCard
	SubCard *scenario.SubCard

	fired bool
}

// Fired reports whether the entry has been handed out by Take.
func (e *Entry) Fired() bool {
	return e.fired
}

// Schedule is the sorted entry list owned by one engine.
type Schedule struct {
	entries []*Entry
	next    int // entries[:next] have all fired
}

// Build derives a schedule from a scenario. It never mutates the scenario.
//
// Sub-cards become their own entries due at max(parent offset, sub-card
// offset) so a sub-card never appears before the card that contains it.
func Build(s *scenario.Scenario) *Schedule {
	entries := make([]*Entry, 0, len(s.Events))
	for _, ev := range s.Events {
		entries = append(entries, &Entry{At: ev.DueAt(), Kind: EntryKind(ev.Kind()), Event: ev})

		card, ok := ev.(*scenario.ProtocolCard)
		if !ok {
			continue
		}
		for i := range card.SubCards {
			sub := &card.SubCards[i]
			at := sub.At
			if at < card.At {
				at = card.At
			}
			entries = append(entries, &Entry{At: at, Kind: EntrySubCard, Event: card, Parent: card, SubCard: sub})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].At < entries[j].At
	})

	return &Schedule{entries: entries}
}

// Take marks and returns the earliest unfired entry whose offset is at or
// before elapsed, or nil if none is due. Each entry is handed out at most
// once between resets.
func (s *Schedule) Take(elapsed time.Duration) *Entry {
	for s.next < len(s.entries) && s.entries[s.next].At <= elapsed {
		e := s.entries[s.next]
		s.next++
		if e.fired {
			continue
		}
		e.fired = true
		return e
	}
	return nil
}

// Reset clears every fired flag without rebuilding.
func (s *Schedule) Reset() {
	for _, e := range s.entries {
		e.fired = false
	}
	s.next = 0
}

// Len returns the number of entries.
func (s *Schedule) Len() int {
	return len(s.entries)
}

// Pending returns the number of entries that have not fired.
func (s *Schedule) Pending() int {
	n := 0
	for _, e := range s.entries {
		if !e.fired {
			n++
		}
	}
	return n
}

// Next returns the offset of the earliest unfired entry.
func (s *Schedule) Next() (time.Duration, bool) {
	if s.next >= len(s.entries) {
		return 0, false
	}
	return s.entries[s.next].At, true
}
