package store

import (
	"context"
	"fmt"
)

// BeginRun inserts a run in the running state and returns its ID.
// An empty run.ID is filled from the store's IDGenerator; a zero StartedAt
// from its clock.
func (s *Store) BeginRun(ctx context.Context, run Run) (string, error) {
	if run.ID == "" {
		run.ID = s.ids.Generate()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, examples_dir, api_url, status)
		VALUES (?, ?, ?, ?, ?)
	`,
		run.ID,
		formatTime(run.StartedAt),
		run.ExamplesDir,
		run.APIURL,
		StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return run.ID, nil
}

// RecordCase appends a case outcome to a run.
// Uses ON CONFLICT(run_id, seq) DO NOTHING for idempotency - recording the
// same seq twice keeps the first row.
//
// Note: The run referenced by RunID must exist (foreign key constraint).
func (s *Store) RecordCase(ctx context.Context, rec CaseRecord) error {
	errsJSON, err := marshalErrors(rec.Errors)
	if err != nil {
		return fmt.Errorf("record case: %w", err)
	}
	outputJSON, err := marshalOutput(rec.Output)
	if err != nil {
		return fmt.Errorf("record case: %w", err)
	}

	pass := 0
	if rec.Pass {
		pass = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cases
		(run_id, seq, name, pass, status_code, duration_ms, request_hash, errors, output)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		rec.RunID,
		rec.Seq,
		rec.Name,
		pass,
		rec.StatusCode,
		rec.DurationMS,
		rec.RequestHash,
		errsJSON,
		outputJSON,
	)
	if err != nil {
		return fmt.Errorf("record case: %w", err)
	}
	return nil
}

// FinishRun stores the totals and marks the run passed or failed.
// Returns ErrRunNotFound if the run does not exist.
func (s *Store) FinishRun(ctx context.Context, runID string, passed, failed int) error {
	status := StatusPassed
	if failed > 0 {
		status = StatusFailed
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, status = ?, passed = ?, failed = ?
		WHERE id = ?
	`,
		formatTime(s.now()),
		status,
		passed,
		failed,
		runID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}
