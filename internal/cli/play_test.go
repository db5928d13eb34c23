package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcav-io/website/internal/trace"
)

const tinyScenario = `
id: tiny
duration_ms: 120
events:
  - {kind: chat, at: 10, side: left, role: human, name: Alice, text: "hi there"}
  - {kind: phase, at: 30, phase: protocol}
  - kind: card
    at: 50
    card:
      id: check
      title: Check
      error: true
      lines:
        - {kind: kv, key: session, value: s_1}
        - {kind: error, text: mismatch}
      status: {ok: false, text: rejected}
      sub_cards:
        - at: 60
          lines:
            - {kind: ok, text: retried}
  - {kind: signal, at: 70, payload: ping}
`

func runPlayCmd(t *testing.T, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewPlayCommand(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestPlayCommand_Text(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tiny.yaml", tinyScenario)

	out, err := runPlayCmd(t, "text", path, "--speed", "8")
	require.NoError(t, err)

	assert.Contains(t, out, "▶ tiny")
	assert.Contains(t, out, "chat      left  Alice (human): hi there")
	assert.Contains(t, out, "phase     protocol")
	assert.Contains(t, out, "card      check Check [error]")
	assert.Contains(t, out, "session: s_1")
	assert.Contains(t, out, "✗ mismatch")
	assert.Contains(t, out, "✗ rejected")
	assert.Contains(t, out, "sub-card  check +60ms")
	assert.Contains(t, out, "✓ retried")
	assert.Contains(t, out, "signal    ping")
	assert.Contains(t, out, "complete")
	assert.Contains(t, out, "■ done in")
}

func TestPlayCommand_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tiny.yaml", tinyScenario)

	out, err := runPlayCmd(t, "json", path, "--speed", "8")
	require.NoError(t, err)

	var resp struct {
		Status string     `json:"status"`
		Data   PlayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "tiny", resp.Data.Scenario)
	require.NotEmpty(t, resp.Data.Events)

	// Chat completion races the card in wall time; check it separately.
	var kinds []trace.Kind
	completes := 0
	for _, ev := range resp.Data.Events {
		switch ev.Kind {
		case trace.KindChatReveal:
		case trace.KindChatComplete:
			completes++
		default:
			kinds = append(kinds, ev.Kind)
		}
	}
	assert.Equal(t, 1, completes)
	assert.Equal(t, []trace.Kind{
		trace.KindPhase,
		trace.KindCard,
		trace.KindSubCard,
		trace.KindSignal,
		trace.KindComplete,
	}, kinds)
}

func TestPlayCommand_RecordsRun(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "tiny.yaml", tinyScenario)
	db := filepath.Join(dir, "runs.db")

	out, err := runPlayCmd(t, "json", path, "--speed", "8", "--db", db)
	require.NoError(t, err)

	var resp struct {
		Data PlayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Data.RunID)

	out, err = runTraceCmd(t, "text", "--db", db, resp.Data.RunID)
	require.NoError(t, err)
	assert.Contains(t, out, "Run "+resp.Data.RunID+" (#1) tiny")
	assert.Contains(t, out, "complete\n")
	assert.Contains(t, out, "signal payload=ping")
}

func TestPlayCommand_BadSpeed(t *testing.T) {
	path := writeFile(t, t.TempDir(), "tiny.yaml", tinyScenario)

	_, err := runPlayCmd(t, "text", path, "--speed", "0")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "speed must be positive")
}

func TestPlayCommand_InvalidScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.yaml", "id: bad\nduration_ms: -5\n")

	_, err := runPlayCmd(t, "text", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
