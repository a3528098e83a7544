package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

type rowScanner interface {
	Scan(dest ...any) error
}

const runColumns = `id, started_at, finished_at, examples_dir, api_url, status, passed, failed`

// ListRuns returns the most recent runs first, ordered by started_at DESC,
// id DESC. A limit <= 0 returns every run.
//
// Returns an empty slice (not nil) if no runs exist.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// GetRun returns one run. Returns ErrRunNotFound if absent.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+`
		FROM runs
		WHERE id = ?
	`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("get run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// ReadCases returns the case rows of a run ordered by seq ASC.
//
// Returns an empty slice (not nil) if the run has no cases.
func (s *Store) ReadCases(ctx context.Context, runID string) ([]CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, seq, name, pass, status_code, duration_ms, request_hash, errors, output
		FROM cases
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query cases: %w", err)
	}
	defer rows.Close()

	cases := []CaseRecord{}
	for rows.Next() {
		var (
			rec      CaseRecord
			pass     int
			errsJSON string
			output   string
		)
		if err := rows.Scan(
			&rec.RunID,
			&rec.Seq,
			&rec.Name,
			&pass,
			&rec.StatusCode,
			&rec.DurationMS,
			&rec.RequestHash,
			&errsJSON,
			&output,
		); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		rec.Pass = pass != 0
		rec.Errors, err = unmarshalErrors(errsJSON)
		if err != nil {
			return nil, err
		}
		rec.Output = json.RawMessage(output)
		cases = append(cases, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return cases, nil
}

// FindCasesByHash returns every recorded case with the given request hash,
// oldest run first.
func (s *Store) FindCasesByHash(ctx context.Context, hash string) ([]CaseRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.run_id, c.seq, c.name, c.pass, c.status_code
		FROM cases c
		JOIN runs r ON c.run_id = r.id
		WHERE c.request_hash = ?
		ORDER BY r.started_at ASC, c.run_id COLLATE BINARY ASC, c.seq ASC
	`, hash)
	if err != nil {
		return nil, fmt.Errorf("query cases by hash: %w", err)
	}
	defer rows.Close()

	cases := []CaseRecord{}
	for rows.Next() {
		rec := CaseRecord{RequestHash: hash}
		var pass int
		if err := rows.Scan(&rec.RunID, &rec.Seq, &rec.Name, &pass, &rec.StatusCode); err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		rec.Pass = pass != 0
		cases = append(cases, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cases: %w", err)
	}
	return cases, nil
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run        Run
		startedAt  string
		finishedAt sql.NullString
	)
	if err := row.Scan(
		&run.ID,
		&startedAt,
		&finishedAt,
		&run.ExamplesDir,
		&run.APIURL,
		&run.Status,
		&run.Passed,
		&run.Failed,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("scan run: %w", err)
	}

	t, err := parseTime(startedAt)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = t

	if finishedAt.Valid {
		t, err := parseTime(finishedAt.String)
		if err != nil {
			return Run{}, err
		}
		run.FinishedAt = &t
	}
	return run, nil
}
