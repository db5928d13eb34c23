package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcav-io/website/internal/engine"
	"github.com/vcav-io/website/internal/scenario"
	"github.com/vcav-io/website/internal/store"
	"github.com/vcav-io/website/internal/testutil"
	"github.com/vcav-io/website/internal/trace"
)

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

func fastConfig() engine.Config {
	return engine.Config{
		TickInterval: ms(5),
		TypingStep:   ms(10),
		FreezeDwell:  ms(20),
	}
}

func testScenario() *scenario.Scenario {
	return &scenario.Scenario{ID: "bridge", Title: "Bridge", Duration: ms(150), Events: []scenario.Event{
		&scenario.ChatMessage{At: ms(10), Side: scenario.SideLeft, Role: scenario.RoleHuman, Name: "Alice", Text: "hello there"},
		&scenario.PhaseTransition{At: ms(40), Phase: scenario.PhaseProtocol},
		&scenario.ProtocolCard{At: ms(60), ID: "check", Error: true,
			Lines:    []scenario.Line{{Kind: scenario.LineError, Text: "mismatch"}},
			SubCards: []scenario.SubCard{{At: ms(80)}},
		},
		&scenario.SignalEmission{At: ms(90), Payload: `{"to":"right"}`},
	}}
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	return newTestServerFor(t, testScenario(), opts...)
}

func newTestServerFor(t *testing.T, scn *scenario.Scenario, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	srv, err := New(scn, append([]Option{WithEngineConfig(fastConfig())}, opts...)...)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// readUntil collects frames up to and including the first of type stop.
func readUntil(t *testing.T, conn *websocket.Conn, stop string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for {
		f := readFrame(t, conn)
		frames = append(frames, f)
		if f["type"] == stop {
			return frames
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(Command{Type: typ}))
}

func ofType(frames []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, f := range frames {
		if f["type"] == typ {
			out = append(out, f)
		}
	}
	return out
}

func TestNew_RejectsInvalidScenario(t *testing.T) {
	_, err := New(&scenario.Scenario{ID: "bad", Duration: -1})
	assert.ErrorIs(t, err, scenario.ErrInvalidScenario)

	_, err = New(testScenario(), WithEngineConfig(engine.Config{}))
	assert.Error(t, err)
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok\n", string(body))
}

func TestScenarioEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/scenario")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "bridge", doc["id"])
	assert.Equal(t, float64(150), doc["duration_ms"])
	assert.Len(t, doc["events"], 4)
}

func TestRunsEndpoint_DisabledWithoutStore(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocket_Playback(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	hello := readFrame(t, conn)
	assert.Equal(t, FrameState, hello["type"])
	assert.Equal(t, "idle", hello["status"])
	assert.Equal(t, "pre-session", hello["phase"])
	assert.Equal(t, "bridge", hello["scenario"])

	send(t, conn, CommandPlay)
	frames := readUntil(t, conn, FrameComplete)

	assert.Equal(t, "playing", ofType(frames, FrameState)[0]["status"])

	reveals := ofType(frames, FrameChatReveal)
	require.Len(t, reveals, 2)
	assert.Equal(t, "hello ", reveals[0]["text"])
	assert.Equal(t, "hello there", reveals[1]["text"])
	assert.Equal(t, "left@10", reveals[1]["key"])
	assert.Equal(t, float64(11), reveals[1]["total"])
	assert.Len(t, ofType(frames, FrameChatComplete), 1)

	phases := ofType(frames, FramePhase)
	require.Len(t, phases, 1)
	assert.Equal(t, "protocol", phases[0]["phase"])

	cards := ofType(frames, FrameCard)
	require.Len(t, cards, 1)
	card := cards[0]["card"].(map[string]any)
	assert.Equal(t, "check", card["id"])
	assert.Equal(t, true, card["error"])

	subs := ofType(frames, FrameSubCard)
	require.Len(t, subs, 1)
	assert.Equal(t, "check", subs[0]["card_id"])

	signals := ofType(frames, FrameSignal)
	require.Len(t, signals, 1)
	assert.Equal(t, `{"to":"right"}`, signals[0]["payload"])

	final := readFrame(t, conn)
	assert.Equal(t, FrameState, final["type"])
	assert.Equal(t, "complete", final["status"])
	assert.Equal(t, float64(150), final["elapsed_ms"])
}

func TestWebSocket_PauseAndReset(t *testing.T) {
	long := testScenario()
	long.Duration = time.Minute
	_, ts := newTestServerFor(t, long)
	conn := dial(t, ts)
	readFrame(t, conn) // initial state

	send(t, conn, CommandPause)
	st := readUntil(t, conn, FrameState)
	assert.Equal(t, "idle", st[len(st)-1]["status"], "pause before play is a no-op")

	send(t, conn, CommandPlay)
	readUntil(t, conn, FrameState)

	send(t, conn, CommandPause)
	st = readUntil(t, conn, FrameState)
	paused := st[len(st)-1]
	assert.Equal(t, "paused", paused["status"])

	send(t, conn, CommandReset)
	st = readUntil(t, conn, FrameState)
	reset := st[len(st)-1]
	assert.Equal(t, "idle", reset["status"])
	assert.Equal(t, float64(0), reset["elapsed_ms"])
	assert.Equal(t, "pre-session", reset["phase"])
}

func TestWebSocket_BadCommands(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)
	readFrame(t, conn)

	send(t, conn, "rewind")
	f := readFrame(t, conn)
	assert.Equal(t, FrameError, f["type"])
	assert.Contains(t, f["message"], "rewind")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	f = readFrame(t, conn)
	assert.Equal(t, FrameError, f["type"])
	assert.Equal(t, "invalid JSON message", f["message"])

	send(t, conn, CommandState)
	f = readFrame(t, conn)
	assert.Equal(t, FrameState, f["type"])
}

func TestWebSocket_SessionsAreIndependent(t *testing.T) {
	srv, ts := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)
	readFrame(t, a)
	readFrame(t, b)

	send(t, a, CommandPlay)
	readUntil(t, a, FrameComplete)

	send(t, b, CommandState)
	f := readFrame(t, b)
	assert.Equal(t, "idle", f["status"])

	require.Eventually(t, func() bool { return srv.Sessions() == 2 }, time.Second, 10*time.Millisecond)
	a.Close()
	require.Eventually(t, func() bool { return srv.Sessions() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestWebSocket_RecordsRuns(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "runs.db"),
		store.WithIDGenerator(testutil.NewFixedIDGenerator("run-1")))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, ts := newTestServer(t, WithStore(st))
	conn := dial(t, ts)
	readFrame(t, conn)

	send(t, conn, CommandPlay)
	readUntil(t, conn, FrameComplete)

	var runs []store.Run
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/api/runs")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		runs = nil
		return json.NewDecoder(resp.Body).Decode(&runs) == nil && len(runs) == 1
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "bridge", runs[0].ScenarioID)
	assert.True(t, runs[0].Completed)

	resp, err := http.Get(ts.URL + "/api/runs/run-1/events")
	require.NoError(t, err)
	defer resp.Body.Close()

	var events []trace.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&events))
	require.NotEmpty(t, events)
	assert.Equal(t, trace.KindComplete, events[len(events)-1].Kind)

	resp, err = http.Get(ts.URL + "/api/runs/missing/events")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
