package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// JournalRun is one run as stored in the journal.
type JournalRun struct {
	ID         int64
	Operation  string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Failed     int
}

// JournalEntry is one stored result.
type JournalEntry struct {
	Seq    int
	Result OperationResult
}

// LatestRunID returns the id of the most recent run.
func (j *Journal) LatestRunID(ctx context.Context) (int64, error) {
	var id int64
	err := j.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY id DESC LIMIT 1;`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New("journal contains no runs")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to query latest run: %w", err)
	}
	return id, nil
}

// Run loads a run and its results in batch order.
func (j *Journal) Run(ctx context.Context, runID int64) (JournalRun, []JournalEntry, error) {
	var (
		run        JournalRun
		started    string
		finishedAt sql.NullString
	)
	err := j.db.QueryRowContext(ctx,
		`SELECT id, operation, startedAt, finishedAt, total, failed FROM runs WHERE id = ?;`, runID).
		Scan(&run.ID, &run.Operation, &started, &finishedAt, &run.Total, &run.Failed)
	if errors.Is(err, sql.ErrNoRows) {
		return JournalRun{}, nil, fmt.Errorf("run %d not found in journal", runID)
	}
	if err != nil {
		return JournalRun{}, nil, fmt.Errorf("failed to query run %d: %w", runID, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
		return JournalRun{}, nil, fmt.Errorf("run %d has an invalid start time: %w", runID, err)
	}
	if finishedAt.Valid {
		if run.FinishedAt, err = time.Parse(time.RFC3339, finishedAt.String); err != nil {
			return JournalRun{}, nil, fmt.Errorf("run %d has an invalid finish time: %w", runID, err)
		}
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT seq, identifier, status, reason FROM results WHERE runId = ? ORDER BY seq;`, runID)
	if err != nil {
		return JournalRun{}, nil, fmt.Errorf("failed to query results of run %d: %w", runID, err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var (
			e                  JournalEntry
			identifier, reason sql.NullString
			status             string
		)
		if err := rows.Scan(&e.Seq, &identifier, &status, &reason); err != nil {
			return JournalRun{}, nil, fmt.Errorf("failed to scan result: %w", err)
		}
		e.Result = OperationResult{Identifier: identifier.String, Status: Status(status), Reason: reason.String}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return JournalRun{}, nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return run, entries, nil
}
