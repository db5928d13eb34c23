package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcav-io/website/internal/scenario"
	"github.com/vcav-io/website/internal/testutil"
)

func reveals(rec *recorder, text string) []int {
	var out []int
	for _, c := range rec.find("reveal") {
		if c.arg == text {
			out = append(out, c.revealed)
		}
	}
	return out
}

func completions(rec *recorder, text string) int {
	n := 0
	for _, c := range rec.find("reveal-complete") {
		if c.arg == text {
			n++
		}
	}
	return n
}

func TestWordReveal_Stops(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []int
	}{
		{"empty", "", []int{0}},
		{"single word", "hello", []int{5}},
		{"three words", "one two three", []int{4, 8, 13}},
		{"trailing space", "hi there ", []int{3, 9}},
		{"double space", "a  b", []int{2, 3, 4}},
		{"multibyte", "café olé", []int{5, 8}},
		{"leading space", " hi there", []int{4, 9}},
		{"leading newline and tab", "\n\tgo", []int{4}},
		{"only whitespace", "   ", []int{3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WordReveal{}.Stops([]rune(tt.text)))
		})
	}
}

func TestTyping_WordByWord(t *testing.T) {
	text := "one two three"
	s := &scenario.Scenario{ID: "typing", Duration: time.Second, Events: []scenario.Event{
		chat(100, scenario.SideLeft, text),
	}}
	e, host, rec := newTestEngine(t, s)

	e.Play()
	host.Advance(msec(100))
	assert.Equal(t, []int{4}, reveals(rec, text), "first word shows on the firing tick")
	assert.Equal(t, 1, e.ActiveSessions())

	host.Advance(msec(160))
	assert.Equal(t, []int{4, 8, 13}, reveals(rec, text))
	assert.Equal(t, 1, completions(rec, text))
	assert.Equal(t, 0, e.ActiveSessions())

	steps := rec.find("reveal")
	assert.Equal(t, msec(100), steps[0].at)
	assert.Equal(t, msec(180), steps[1].at)
	assert.Equal(t, msec(260), steps[2].at)
	for _, c := range steps {
		assert.Equal(t, 13, c.total)
	}

	last := rec.calls[len(rec.calls)-1]
	assert.Equal(t, "reveal-complete", last.kind, "completion follows the final reveal")
}

func TestTyping_JitterShiftsSteps(t *testing.T) {
	text := "a b c"
	s := &scenario.Scenario{ID: "jitter", Duration: time.Second, Events: []scenario.Event{
		chat(100, scenario.SideLeft, text),
	}}
	e, host, rec := newTestEngine(t, s, WithJitter(testutil.FixedJitter(msec(15))))

	e.Play()
	host.Advance(msec(300))

	steps := rec.find("reveal")
	require.Len(t, steps, 3)
	assert.Equal(t, msec(195), steps[1].at)
	assert.Equal(t, msec(290), steps[2].at)
}

func TestTyping_SingleWordCompletesImmediately(t *testing.T) {
	s := &scenario.Scenario{ID: "single", Duration: time.Second, Events: []scenario.Event{
		chat(100, scenario.SideRight, "Understood."),
		chat(200, scenario.SideLeft, ""),
	}}
	e, host, rec := newTestEngine(t, s)

	e.Play()
	host.Advance(msec(100))
	assert.Equal(t, []int{11}, reveals(rec, "Understood."))
	assert.Equal(t, 1, completions(rec, "Understood."))

	host.Advance(msec(100))
	assert.Equal(t, []int{0}, reveals(rec, ""))
	assert.Equal(t, 1, completions(rec, ""))
	assert.Equal(t, 0, e.ActiveSessions())
}

func TestTyping_PauseKeepsCursor(t *testing.T) {
	text := "one two three"
	s := &scenario.Scenario{ID: "pause-typing", Duration: time.Second, Events: []scenario.Event{
		chat(100, scenario.SideLeft, text),
	}}
	e, host, rec := newTestEngine(t, s)

	e.Play()
	host.Advance(msec(200)) // reveals at 100 and 180
	e.Pause()
	require.Equal(t, []int{4, 8}, reveals(rec, text))
	assert.Equal(t, 0, host.Pending())

	host.Skip(time.Hour)
	assert.Equal(t, []int{4, 8}, reveals(rec, text), "no reveal while paused")

	e.Play()
	host.Advance(msec(80))
	assert.Equal(t, []int{4, 8, 13}, reveals(rec, text), "resume continues from the held cursor")
	assert.Equal(t, 1, completions(rec, text))
	assert.Equal(t, msec(280), e.State().Elapsed)
}

func TestTyping_RevealsAreMonotonic(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog"
	s := &scenario.Scenario{ID: "mono", Duration: msec(2000), Events: []scenario.Event{
		chat(0, scenario.SideLeft, text),
	}}
	e, host, rec := newTestEngine(t, s, WithJitter(UniformJitter))

	e.Play()
	host.Advance(msec(150))
	e.Pause()
	host.Skip(time.Minute)
	e.Play()
	runToEnd(t, e, host)

	got := reveals(rec, text)
	require.NotEmpty(t, got)
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1])
	}
	assert.Equal(t, len([]rune(text)), got[len(got)-1])
	assert.Equal(t, 1, completions(rec, text))
}

func TestTyping_SessionsIndependent(t *testing.T) {
	first, second := "a b c", "x y z"
	s := &scenario.Scenario{ID: "keys", Duration: time.Second, Events: []scenario.Event{
		chat(100, scenario.SideLeft, first),
		chat(120, scenario.SideLeft, second),
		chat(120, scenario.SideRight, first),
	}}
	e, host, rec := newTestEngine(t, s)

	e.Play()
	host.Advance(msec(130))
	assert.Equal(t, 3, e.ActiveSessions(), "same side at different offsets does not collide")

	host.Advance(msec(300))
	assert.Equal(t, []int{2, 4, 5}, reveals(rec, second))
	assert.Equal(t, []int{2, 2, 4, 4, 5, 5}, reveals(rec, first))
	assert.Equal(t, 2, completions(rec, first))
	assert.Equal(t, 1, completions(rec, second))
}

func TestTyping_FlushedAtCompletion(t *testing.T) {
	text := "a b c d e f"
	s := &scenario.Scenario{ID: "flush", Duration: msec(500), Events: []scenario.Event{
		chat(450, scenario.SideLeft, text),
	}}
	e, host, rec := newTestEngine(t, s)

	e.Play()
	runToEnd(t, e, host)

	assert.Equal(t, []int{2, 11}, reveals(rec, text))
	assert.Equal(t, 1, completions(rec, text))
	assert.Equal(t, []string{"reveal:" + text, "reveal:" + text, "reveal-complete:" + text, "complete:"}, rec.kinds())
	assert.Equal(t, 0, host.Pending())
}

func TestFreeze_HoldsClockAfterErrorCard(t *testing.T) {
	s := &scenario.Scenario{ID: "freeze", Duration: time.Second, Events: []scenario.Event{
		&scenario.ProtocolCard{At: msec(100), ID: "bad", Error: true},
		&scenario.SignalEmission{At: msec(110), Payload: "after"},
	}}
	e, host, rec := newTestEngine(t, s)

	e.Play()
	host.Advance(msec(500))
	assert.Equal(t, msec(100), e.State().Elapsed, "held during the dwell")
	assert.Empty(t, rec.find("signal"))

	host.Advance(msec(400)) // release at 900
	assert.Equal(t, msec(100), rec.lastProgress())
	assert.Empty(t, rec.find("signal"))

	host.Advance(msec(10))
	assert.Equal(t, msec(110), rec.lastProgress())
	signals := rec.find("signal")
	require.Len(t, signals, 1)
	assert.Equal(t, msec(910), signals[0].at)
}

func TestFreeze_TypingContinuesDuringHold(t *testing.T) {
	text := "one two three"
	s := &scenario.Scenario{ID: "freeze-typing", Duration: time.Second, Events: []scenario.Event{
		chat(90, scenario.SideLeft, text),
		&scenario.ProtocolCard{At: msec(100), ID: "bad", Error: true},
	}}
	e, host, rec := newTestEngine(t, s)

	e.Play()
	host.Advance(msec(400))
	assert.Equal(t, msec(100), e.State().Elapsed)
	assert.Equal(t, 1, completions(rec, text))
}

func TestFreeze_NotExtendedBySecondErrorCard(t *testing.T) {
	s := &scenario.Scenario{ID: "double", Duration: time.Second, Events: []scenario.Event{
		&scenario.ProtocolCard{At: msec(100), ID: "first", Error: true},
		&scenario.ProtocolCard{At: msec(100), ID: "second", Error: true},
	}}
	e, host, rec := newTestEngine(t, s)

	e.Play()
	host.Advance(msec(910))
	assert.Len(t, rec.find("card"), 2)
	assert.Equal(t, msec(110), rec.lastProgress(), "one dwell, not two")
}

func TestFreeze_PauseKeepsRemainingDwell(t *testing.T) {
	s := &scenario.Scenario{ID: "pause-freeze", Duration: time.Second, Events: []scenario.Event{
		&scenario.ProtocolCard{At: msec(100), ID: "bad", Error: true},
	}}
	e, host, rec := newTestEngine(t, s)

	e.Play()
	host.Advance(msec(400)) // 300ms of the dwell served
	e.Pause()
	assert.Equal(t, msec(100), e.State().Elapsed)

	host.Skip(time.Hour)
	e.Play()
	host.Advance(msec(490))
	assert.Equal(t, msec(100), e.State().Elapsed, "500ms still owed after resume")

	host.Advance(msec(20))
	assert.Equal(t, msec(110), rec.lastProgress())
}

func TestFreeze_ThrottledHostShiftsByObservedSpan(t *testing.T) {
	s := &scenario.Scenario{ID: "throttled", Duration: time.Second, Events: []scenario.Event{
		&scenario.ProtocolCard{At: msec(100), ID: "bad", Error: true},
	}}
	e, host, rec := newTestEngine(t, s)

	e.Play()
	host.Advance(msec(100))
	host.Skip(5 * time.Second) // tab in background; the next tick arrives late

	require.True(t, host.Step())
	assert.Equal(t, msec(100), rec.lastProgress(), "no logical time gained from the late tick")

	require.True(t, host.Step())
	assert.Equal(t, msec(110), rec.lastProgress())
}

func TestFreeze_ZeroDwellDisabled(t *testing.T) {
	s := &scenario.Scenario{ID: "nodwell", Duration: time.Second, Events: []scenario.Event{
		&scenario.ProtocolCard{At: msec(100), ID: "bad", Error: true},
	}}
	cfg := testConfig()
	cfg.FreezeDwell = 0
	e, host, rec := newTestEngine(t, s, WithConfig(cfg))

	e.Play()
	host.Advance(msec(110))
	assert.Equal(t, msec(110), rec.lastProgress())
	assert.Nil(t, e.freeze)
}

func TestEngine_ReferenceScenario(t *testing.T) {
	s, err := scenario.Load(filepath.Join("..", "..", "testdata", "scenarios", "handshake.yaml"))
	require.NoError(t, err)

	e, host, rec := newTestEngine(t, s)
	e.Play()
	runToEnd(t, e, host)

	// The 800ms dwell after the error card delays completion by exactly
	// that much.
	assert.Equal(t, msec(31800), host.Since())
	assert.Equal(t, 1, rec.completes)

	held := 0
	for i, p := range rec.progress {
		switch {
		case p.elapsed < msec(12000):
			assert.Equal(t, scenario.PhasePreSession, p.phase, "sample %d at %s", i, p.elapsed)
		case p.elapsed < msec(25000):
			assert.Equal(t, scenario.PhaseProtocol, p.phase, "sample %d at %s", i, p.elapsed)
		default:
			assert.Equal(t, scenario.PhasePostSession, p.phase, "sample %d at %s", i, p.elapsed)
		}
		if p.elapsed == msec(21000) {
			held++
		}
	}
	// Ticks at 21000, 21010, ..., 21800 all report the held value.
	assert.Equal(t, 81, held)

	cards := rec.find("card")
	require.Len(t, cards, 4)
	assert.Equal(t, "verify", cards[2].arg)
	assert.Equal(t, msec(21000), cards[2].at)
	assert.Equal(t, msec(23800), cards[3].at, "later cards shift by the dwell")

	assert.Len(t, rec.find("sub-card"), 1)
	assert.Len(t, rec.find("signal"), 1)
	assert.Len(t, rec.find("reveal-complete"), 6)
	assert.Equal(t, 0, e.ActiveSessions())
}
