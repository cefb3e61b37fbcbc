package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func (a *app) healthCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "healthcheck",
		Short: "Check the credential file and authentication, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.healthCheck(cmd.Context())
		},
	}
}

func (a *app) healthCheck(ctx context.Context) error {
	return a.withDirectory(ctx, func(dir Directory) error {
		s, ok := dir.(interface{ Claims() TokenClaims })
		if !ok {
			fmt.Println("Health check OK.")
			return nil
		}
		claims := s.Claims()
		if len(claims.Roles) == 0 {
			log.Warn("The access token carries no application roles; Graph calls will be refused.")
		}
		fmt.Printf("Health check OK: tenant %s, app %s, token valid until %s.\n", claims.TenantID, claims.AppID, formatTime(claims.Expires))
		fmt.Printf("Application roles: %s\n", strings.Join(claims.Roles, ", "))
		return nil
	})
}

func (a *app) historyCommand() *cobra.Command {
	var runID int64
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Export the results of a past run from the journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.exportHistory(cmd.Context(), runID)
		},
	}
	cmd.Flags().Int64Var(&runID, "run-id", 0, "Run to export. Defaults to the most recent run.")
	return a.reportFlags(cmd, true)
}

func (a *app) exportHistory(ctx context.Context, runID int64) error {
	if a.cfg.JournalPath == "" {
		return errors.New("--journal is required for history")
	}
	if _, err := os.Stat(a.cfg.JournalPath); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("journal %s does not exist", a.cfg.JournalPath)
	} else if err != nil {
		return fmt.Errorf("could not stat journal: %w", err)
	}
	journal, err := OpenJournal(ctx, a.cfg.JournalPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	if runID == 0 {
		if runID, err = journal.LatestRunID(ctx); err != nil {
			return err
		}
	}
	run, entries, err := journal.Run(ctx, runID)
	if err != nil {
		return err
	}
	log.Infof("Remark: run %d (%s) started %s: %d processed, %d failed.", run.ID, run.Operation, formatTime(run.StartedAt), run.Total, run.Failed)
	if run.FinishedAt.IsZero() {
		log.Warnf("Run %d never finished; its results may be incomplete.", run.ID)
	}

	report := NewReport("RunId", "Operation", "Seq", "Identifier", "Status", "Error")
	id := strconv.FormatInt(run.ID, 10)
	for _, e := range entries {
		report.Add(id, run.Operation, strconv.Itoa(e.Seq), e.Result.Identifier, string(e.Result.Status), e.Result.Reason)
	}
	return a.writeReport("JournalExport", report)
}
