package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vcav-io/website/internal/trace"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("run not found")

// Run is one recorded playback.
type Run struct {
	ID         string        `json:"id"`
	Seq        int64         `json:"seq"`
	ScenarioID string        `json:"scenario_id"`
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"created_at"`
	Completed  bool          `json:"completed"`
	Digest     string        `json:"digest,omitempty"` // set by MarkComplete
	Events     int           `json:"events"`
}

const runColumns = `
	r.id, r.seq, r.scenario_id, r.duration_ms, r.created_at, r.completed, r.digest,
	(SELECT COUNT(*) FROM trace_events e WHERE e.run_id = r.id)
`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r          Run
		durationMS int64
		createdAt  string
		completed  int
	)
	if err := row.Scan(&r.ID, &r.Seq, &r.ScenarioID, &durationMS, &createdAt, &completed, &r.Digest, &r.Events); err != nil {
		return Run{}, err
	}

	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return Run{}, fmt.Errorf("parse created_at for run %s: %w", r.ID, err)
	}
	r.CreatedAt = ts
	r.Duration = time.Duration(durationMS) * time.Millisecond
	r.Completed = completed != 0
	return r, nil
}

// GetRun returns one run. Wraps ErrRunNotFound if it does not exist.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run: %w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns every run ordered by seq ascending. An empty scenarioID
// lists all scenarios.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, scenarioID string) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs r`
	var args []any
	if scenarioID != "" {
		query += ` WHERE r.scenario_id = ?`
		args = append(args, scenarioID)
	}
	query += ` ORDER BY r.seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// ReadEvents returns a run's trace ordered by seq ascending.
//
// Returns an empty slice (not nil) if the run has no events.
func (s *Store) ReadEvents(ctx context.Context, runID string) ([]trace.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, offset_ms, kind, attrs
		FROM trace_events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trace events: %w", err)
	}
	defer rows.Close()

	events := []trace.Event{}
	for rows.Next() {
		var (
			e     trace.Event
			kind  string
			attrs string
		)
		if err := rows.Scan(&e.Seq, &e.OffsetMS, &kind, &attrs); err != nil {
			return nil, fmt.Errorf("scan trace event: %w", err)
		}
		e.Kind = trace.Kind(kind)
		if e.Attrs, err = unmarshalAttrs(attrs); err != nil {
			return nil, fmt.Errorf("trace event seq %d: %w", e.Seq, err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trace events: %w", err)
	}

	return events, nil
}

// CountEvents returns how many events of kind a run recorded.
func (s *Store) CountEvents(ctx context.Context, runID string, kind trace.Kind) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM trace_events WHERE run_id = ? AND kind = ?
	`, runID, string(kind)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count trace events: %w", err)
	}
	return n, nil
}

// LastSeq returns the highest event seq stored for a run, or 0. A
// recorder resuming a run starts its counter here (clock.NewSeqAt).
func (s *Store) LastSeq(ctx context.Context, runID string) (int64, error) {
	var seq int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM trace_events WHERE run_id = ?
	`, runID).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
