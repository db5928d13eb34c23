package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcav-io/website/internal/testutil"
	"github.com/vcav-io/website/internal/trace"
)

// createTestStore creates a new store in a temp dir for testing.
func createTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleEvents() []trace.Event {
	return []trace.Event{
		{Seq: 1, OffsetMS: 500, Kind: trace.KindChatReveal, Attrs: map[string]string{"key": "left@500", "revealed": "4/46"}},
		{Seq: 2, OffsetMS: 12000, Kind: trace.KindPhase, Attrs: map[string]string{"phase": "protocol"}},
		{Seq: 3, OffsetMS: 31800, Kind: trace.KindComplete},
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_PragmasAndVersion(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"foreign_keys": "1",
		"busy_timeout": "5000",
	} {
		if err := s.verifyPragma(name, want); err != nil {
			t.Error(err)
		}
	}

	version, err := s.schemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
}

func TestCreateRun(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s := createTestStore(t,
		WithIDGenerator(testutil.NewSequenceIDGenerator("run-a", "run-b")),
		WithNow(func() time.Time { return now }),
	)
	ctx := context.Background()

	a, err := s.CreateRun(ctx, "handshake", 31*time.Second)
	require.NoError(t, err)
	b, err := s.CreateRun(ctx, "other", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "run-a", a)
	assert.Equal(t, "run-b", b)

	run, err := s.GetRun(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(1), run.Seq)
	assert.Equal(t, "handshake", run.ScenarioID)
	assert.Equal(t, 31*time.Second, run.Duration)
	assert.True(t, run.CreatedAt.Equal(now))
	assert.False(t, run.Completed)

	_, err = s.CreateRun(ctx, "", time.Second)
	assert.Error(t, err)
}

func TestCreateRun_DefaultIDsAreUUIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a, err := s.CreateRun(ctx, "s", time.Second)
	require.NoError(t, err)
	b, err := s.CreateRun(ctx, "s", time.Second)
	require.NoError(t, err)

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestWriteEvents_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, "handshake", 31*time.Second)
	require.NoError(t, err)
	require.NoError(t, s.WriteEvents(ctx, runID, sampleEvents()))

	got, err := s.ReadEvents(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, sampleEvents(), got)
}

func TestWriteEvents_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, "handshake", time.Minute)
	require.NoError(t, err)

	events := sampleEvents()
	require.NoError(t, s.WriteEvents(ctx, runID, events[:2]))
	require.NoError(t, s.WriteEvents(ctx, runID, events)) // overlaps seq 1-2

	got, err := s.ReadEvents(ctx, runID)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	last, err := s.LastSeq(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), last)
}

func TestWriteEvents_UnknownRunRejected(t *testing.T) {
	s := createTestStore(t)
	err := s.WriteEvents(context.Background(), "missing", sampleEvents())
	assert.Error(t, err, "foreign key must reject orphan events")
}

func TestReadEvents_OrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, "s", time.Minute)
	require.NoError(t, err)

	events := sampleEvents()
	require.NoError(t, s.WriteEvents(ctx, runID, []trace.Event{events[2], events[0], events[1]}))

	got, err := s.ReadEvents(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, e := range got {
		assert.Equal(t, int64(i+1), e.Seq)
	}
}

func TestReadEvents_EmptyNotNil(t *testing.T) {
	s := createTestStore(t)
	got, err := s.ReadEvents(context.Background(), "nothing")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListRuns(t *testing.T) {
	s := createTestStore(t, WithIDGenerator(testutil.NewSequenceIDGenerator("r1", "r2", "r3")))
	ctx := context.Background()

	runs, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	assert.NotNil(t, runs)
	assert.Empty(t, runs)

	for _, id := range []string{"a", "b", "a"} {
		_, err := s.CreateRun(ctx, id, time.Second)
		require.NoError(t, err)
	}
	require.NoError(t, s.WriteEvents(ctx, "r1", sampleEvents()))
	require.NoError(t, s.MarkComplete(ctx, "r1"))

	runs, err = s.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, []string{"r1", "r2", "r3"}, []string{runs[0].ID, runs[1].ID, runs[2].ID})
	assert.Equal(t, 3, runs[0].Events)
	assert.True(t, runs[0].Completed)
	assert.Equal(t, trace.Digest(sampleEvents()), runs[0].Digest)
	assert.Equal(t, 0, runs[1].Events)
	assert.Empty(t, runs[1].Digest)

	runs, err = s.ListRuns(ctx, "a")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[1].ID)
}

func TestGetRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)

	err = s.MarkComplete(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestCountEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, "s", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.WriteEvents(ctx, runID, sampleEvents()))

	n, err := s.CountEvents(ctx, runID, trace.KindPhase)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.CountEvents(ctx, runID, trace.KindCard)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
