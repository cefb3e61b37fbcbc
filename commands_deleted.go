package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func (a *app) listDeletedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-deleted",
		Short: "Export the soft-deleted users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDirectory(cmd.Context(), func(dir Directory) error {
				deleted, err := dir.ListDeletedUsers(cmd.Context())
				if err != nil {
					return err
				}
				report := NewReport("Id", "UserPrincipalName", "DeletedDateTime")
				for _, d := range deleted {
					report.Add(d.ID, d.UserPrincipalName, formatTime(d.DeletedDateTime))
				}
				return a.writeReport("DeletedUsersList", report)
			})
		},
	}
	return a.reportFlags(cmd, false)
}

func (a *app) purgeDeletedCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "purge-deleted",
		Short: "Permanently delete every soft-deleted user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.purgeDeleted(cmd.Context())
		},
	}
	return a.reportFlags(cmd, false)
}

func (a *app) purgeDeleted(ctx context.Context) error {
	return a.withDirectory(ctx, func(dir Directory) error {
		deleted, err := dir.ListDeletedUsers(ctx)
		if err != nil {
			return err
		}
		if len(deleted) == 0 {
			log.Info("Remark: no deleted users found, nothing to purge.")
		}

		observe, finish, err := a.startJournal(ctx, "purge-deleted")
		if err != nil {
			return err
		}
		outcomes, summary := RunBatch(ctx, "purge-deleted", deleted,
			func(d DeletedPrincipal) string { return d.ID },
			func(ctx context.Context, d DeletedPrincipal) (struct{}, error) {
				return struct{}{}, dir.PurgeDeletedUser(ctx, d.ID)
			}, observe)
		finish(summary)

		report := NewReport("Id", "UserPrincipalName", "Status", "Error")
		for _, o := range outcomes {
			report.Add(o.Input.ID, o.Input.UserPrincipalName, string(o.Result.Status), o.Result.Reason)
		}
		return a.writeReport("PurgedUsers", report)
	})
}
