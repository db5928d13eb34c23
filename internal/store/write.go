package store

import (
	"context"
	"fmt"
	"time"

	"github.com/vcav-io/website/internal/trace"
)

// CreateRun registers a new playback of scenarioID and returns its ID.
// Runs get a seq one past the highest existing one.
func (s *Store) CreateRun(ctx context.Context, scenarioID string, duration time.Duration) (string, error) {
	if scenarioID == "" {
		return "", fmt.Errorf("create run: scenario id is required")
	}

	id := s.ids.Generate()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, seq, scenario_id, duration_ms, created_at)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?, ?, ?)
	`,
		id,
		scenarioID,
		duration.Milliseconds(),
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}

	return id, nil
}

// MarkComplete records that a run played to the end and stores the
// digest of its trace as written so far.
func (s *Store) MarkComplete(ctx context.Context, runID string) error {
	events, err := s.ReadEvents(ctx, runID)
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET completed = 1, digest = ? WHERE id = ?`,
		trace.Digest(events), runID,
	)
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark complete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("mark complete: %w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// WriteEvents appends trace events to a run in one transaction.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency - events already
// stored are silently skipped. The run must exist (foreign key constraint).
func (s *Store) WriteEvents(ctx context.Context, runID string, events []trace.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO trace_events (run_id, seq, offset_ms, kind, attrs)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		attrs, err := marshalAttrs(e.Attrs)
		if err != nil {
			return fmt.Errorf("write events: seq %d: %w", e.Seq, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, e.Seq, e.OffsetMS, string(e.Kind), attrs); err != nil {
			return fmt.Errorf("write events: seq %d: %w", e.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: commit: %w", err)
	}
	return nil
}
