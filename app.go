package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries the parsed configuration and the collaborators every command
// needs. connect and now are replaced in tests.
type app struct {
	cfg     Config
	connect func(ctx context.Context, cred Credential, cfg Config) (Directory, error)
	now     func() time.Time
}

func newApp() *app {
	return &app{
		connect: func(ctx context.Context, cred Credential, cfg Config) (Directory, error) {
			s, err := Connect(ctx, cred, cfg)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		now: time.Now,
	}
}

// withDirectory loads the credential, opens a session and hands it to fn.
// The session is closed on every path out, and a close failure is only logged.
func (a *app) withDirectory(ctx context.Context, fn func(Directory) error) error {
	cred, err := LoadCredential(a.cfg.CredentialsPath)
	if err != nil {
		return err
	}
	log.Debugf("Loaded credential %s from %s.", cred, a.cfg.CredentialsPath)

	dir, err := a.connect(ctx, cred, a.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dir.Close(); err != nil {
			log.Warnf("error closing Graph session: %v", err)
		}
	}()

	return fn(dir)
}

// startJournal opens the journal when one is configured. The returned observe
// hook is meant for RunBatch; finish must be called once the batch is done.
// Journal write failures are logged and never stop a batch.
func (a *app) startJournal(ctx context.Context, operation string) (observe func(int, OperationResult), finish func(Summary), err error) {
	if a.cfg.JournalPath == "" {
		return nil, func(Summary) {}, nil
	}

	journal, err := OpenJournal(ctx, a.cfg.JournalPath)
	if err != nil {
		return nil, nil, err
	}
	runID, err := journal.BeginRun(ctx, operation, a.now())
	if err != nil {
		journal.Close()
		return nil, nil, err
	}
	log.Infof("Remark: recording run %d in journal %s.", runID, a.cfg.JournalPath)

	// Results that reach the directory are journalled even after a signal
	// cancels the batch.
	writeCtx := context.WithoutCancel(ctx)
	observe = func(seq int, r OperationResult) {
		if err := journal.Record(writeCtx, runID, seq, r); err != nil {
			log.Warn(err)
		}
	}
	finish = func(s Summary) {
		if err := journal.FinishRun(writeCtx, runID, s, a.now()); err != nil {
			log.Warn(err)
		}
		if err := journal.Close(); err != nil {
			log.Warnf("error closing journal: %v", err)
		}
	}
	return observe, finish, nil
}

// writeReport writes report to the configured output file, or to a
// time-stamped file named after prefix.
func (a *app) writeReport(prefix string, report *Report) error {
	path := a.cfg.OutputFile
	if path == "" {
		path = defaultOutputPath(prefix, a.now())
	}
	if err := WriteReport(path, report, a.cfg.BOM); err != nil {
		return fmt.Errorf("failed to write report %s: %w", path, err)
	}
	log.Infof("Report written to %s (%d rows).", path, len(report.Rows))
	return nil
}

// reportFlags adds --output-file and a --bom flag whose default depends on
// the command.
func (a *app) reportFlags(cmd *cobra.Command, bomDefault bool) *cobra.Command {
	cmd.Flags().StringVarP(&a.cfg.OutputFile, "output-file", "o", "", "Report path (default <Prefix>_<yyyyMMdd_HHmmss>.csv in the working directory).")
	bom := cmd.Flags().Bool("bom", bomDefault, "Start the report with a UTF-8 byte order mark.")
	cmd.PreRun = func(*cobra.Command, []string) {
		a.cfg.BOM = *bom
	}
	return cmd
}

func (a *app) inputFlag(cmd *cobra.Command) *cobra.Command {
	cmd.Flags().StringVarP(&a.cfg.InputFile, "input-file", "i", "", "Input CSV file with a header row.")
	_ = cmd.MarkFlagRequired("input-file")
	return cmd
}
