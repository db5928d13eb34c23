package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcav-io/website/internal/scenario"
)

func msec(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func testScenario() *scenario.Scenario {
	return &scenario.Scenario{
		ID:       "sched",
		Duration: msec(1000),
		Events: []scenario.Event{
			&scenario.SignalEmission{At: msec(300), Payload: "late"},
			&scenario.PhaseTransition{At: msec(100), Phase: scenario.PhaseProtocol},
			&scenario.ChatMessage{At: msec(100), Side: scenario.SideLeft, Role: scenario.RoleHuman, Text: "tie"},
			&scenario.ProtocolCard{At: msec(200), ID: "c1", SubCards: []scenario.SubCard{
				{At: msec(250)},
				{At: msec(50)}, // authored before its parent
			}},
		},
	}
}

func TestBuild_SortedStable(t *testing.T) {
	s := Build(testScenario())
	require.Equal(t, 6, s.Len())

	var kinds []EntryKind
	var offsets []time.Duration
	for _, e := range s.entries {
		kinds = append(kinds, e.Kind)
		offsets = append(offsets, e.At)
	}

	assert.Equal(t, []EntryKind{EntryPhase, EntryChat, EntryCard, EntrySubCard, EntrySubCard, EntrySignal}, kinds)
	assert.Equal(t, []time.Duration{msec(100), msec(100), msec(200), msec(200), msec(250), msec(300)}, offsets)
}

func TestBuild_SubCardClampedToParent(t *testing.T) {
	s := Build(testScenario())

	var subs []*Entry
	for _, e := range s.entries {
		if e.Kind == EntrySubCard {
			subs = append(subs, e)
		}
	}
	require.Len(t, subs, 2)
	assert.Equal(t, "c1", subs[0].Parent.ID)
	assert.Equal(t, msec(50), subs[0].SubCard.At, "sub-card data is not rewritten")
	assert.Equal(t, msec(200), subs[0].At)
}

// drain takes every entry due at elapsed, in schedule order.
func drain(s *Schedule, elapsed time.Duration) []*Entry {
	var due []*Entry
	for e := s.Take(elapsed); e != nil; e = s.Take(elapsed) {
		due = append(due, e)
	}
	return due
}

func TestBuild_DoesNotMutateScenario(t *testing.T) {
	scn := testScenario()
	first := scn.Events[0]

	Build(scn)

	assert.Same(t, first, scn.Events[0])
	assert.Equal(t, msec(300), scn.Events[0].DueAt())
}

func TestTake_FiresEachEntryOnce(t *testing.T) {
	s := Build(testScenario())

	assert.Empty(t, drain(s, msec(99)))

	due := drain(s, msec(100))
	require.Len(t, due, 2)
	assert.Equal(t, EntryPhase, due[0].Kind)
	assert.Equal(t, EntryChat, due[1].Kind)
	assert.True(t, due[0].Fired())

	assert.Empty(t, drain(s, msec(100)), "already fired")

	due = drain(s, msec(1000))
	assert.Len(t, due, 4)
	assert.Equal(t, 0, s.Pending())
	assert.Empty(t, drain(s, msec(5000)))
}

func TestTake_AllTiedEntriesDue(t *testing.T) {
	scn := &scenario.Scenario{ID: "ties", Duration: msec(100)}
	for i := 0; i < 5; i++ {
		scn.Events = append(scn.Events, &scenario.SignalEmission{At: msec(10), Payload: string(rune('a' + i))})
	}
	s := Build(scn)

	due := drain(s, msec(10))
	require.Len(t, due, 5)
	for i, e := range due {
		assert.Equal(t, string(rune('a'+i)), e.Event.(*scenario.SignalEmission).Payload)
	}
}

func TestReset_ClearsFiredFlags(t *testing.T) {
	s := Build(testScenario())
	first := drain(s, msec(1000))
	require.Len(t, first, 6)

	s.Reset()
	assert.Equal(t, 6, s.Pending())

	next, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, msec(100), next)

	second := drain(s, msec(1000))
	require.Len(t, second, 6)
	for i := range first {
		assert.Same(t, first[i], second[i], "reset reuses entries in the same order")
	}
}

func TestNext_Exhausted(t *testing.T) {
	s := Build(&scenario.Scenario{ID: "empty"})
	_, ok := s.Next()
	assert.False(t, ok)
	assert.Empty(t, drain(s, time.Hour))
}
