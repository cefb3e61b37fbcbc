package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/glebarez/sqlite"
	log "github.com/sirupsen/logrus"
)

// Journal is an optional SQLite record of every run and every result it
// produced, so an old report can be regenerated with the history command.
type Journal struct {
	db *sql.DB
}

func OpenJournal(ctx context.Context, path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// database/sql pools connections; sqlite wants a single writer.
	db.SetMaxOpenConns(1)

	statements := []struct {
		sql  string
		what string
	}{
		{`CREATE TABLE IF NOT EXISTS runs (id INTEGER PRIMARY KEY AUTOINCREMENT, operation TEXT NOT NULL, startedAt TEXT NOT NULL, finishedAt TEXT, total INTEGER NOT NULL DEFAULT 0, failed INTEGER NOT NULL DEFAULT 0);`, "runs table"},
		{`CREATE TABLE IF NOT EXISTS results (runId INTEGER NOT NULL REFERENCES runs(id), seq INTEGER NOT NULL, identifier TEXT, status TEXT NOT NULL, reason TEXT, PRIMARY KEY (runId, seq));`, "results table"},
		{`CREATE INDEX IF NOT EXISTS idx_results_status ON results (runId, status);`, "status index"},
	}
	for _, s := range statements {
		if _, err := db.ExecContext(ctx, s.sql); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s: %w", s.what, err)
		}
	}

	log.Debugf("Journal '%s' is set up.", path)
	return &Journal{db: db}, nil
}

// BeginRun registers a new run and returns its id.
func (j *Journal) BeginRun(ctx context.Context, operation string, started time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (operation, startedAt) VALUES (?, ?);`,
		operation, started.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}
	return res.LastInsertId()
}

// Record stores the result of batch element seq of a run.
func (j *Journal) Record(ctx context.Context, runID int64, seq int, r OperationResult) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO results (runId, seq, identifier, status, reason) VALUES (?, ?, ?, ?, ?);`,
		runID, seq, r.Identifier, string(r.Status), r.Reason)
	if err != nil {
		return fmt.Errorf("failed to record result %d of run %d: %w", seq, runID, err)
	}
	return nil
}

// FinishRun stores the batch totals.
func (j *Journal) FinishRun(ctx context.Context, runID int64, s Summary, finished time.Time) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finishedAt = ?, total = ?, failed = ? WHERE id = ?;`,
		finished.UTC().Format(time.RFC3339), s.Total, s.Failed, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", runID, err)
	}
	return nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}
