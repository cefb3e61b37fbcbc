package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var errMissingUPN = errors.New("missing UserPrincipalName")

func recordKey(r UserRecord) string {
	return r.UserPrincipalName
}

func (a *app) listUsersCommand() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list-users",
		Short: "Export all users to CSV",
		Long:  "Export all users to CSV. The report uses the same columns create-users reads, with Password left blank.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.listUsers(cmd.Context(), filter)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "OData $filter applied to the user listing, e.g. \"department eq 'Sales'\".")
	return a.reportFlags(cmd, true)
}

func (a *app) listUsers(ctx context.Context, filter string) error {
	return a.withDirectory(ctx, func(dir Directory) error {
		users, err := dir.ListUsers(ctx, filter)
		if err != nil {
			return err
		}

		report := NewReport(append(userHeader(), "Id", "AccountEnabled")...)
		for _, u := range users {
			rec := u.Record
			rec.Password = ""
			report.Add(append(userRow(rec), u.ID, strconv.FormatBool(u.AccountEnabled))...)
		}
		return a.writeReport("UsersList", report)
	})
}

func (a *app) createUsersCommand() *cobra.Command {
	var opts createOptions
	cmd := &cobra.Command{
		Use:   "create-users",
		Short: "Create users from a CSV file",
		Long: `Create one user per CSV row. Only non-empty columns are sent. A row without
a Password gets a generated one, reported in the output. SkuId1..SkuId3 are
assigned right after the user is created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.createUsers(cmd.Context(), opts)
		},
	}
	cmd.Flags().BoolVar(&opts.ForceChangePassword, "force-change-password", true, "Require a password change at first sign-in.")
	cmd.Flags().StringVar(&opts.DefaultUsageLocation, "usage-location", "", "Usage location (ISO 3166 code) for rows without UsageLocation. Required by Graph for licensing.")
	return a.reportFlags(a.inputFlag(cmd), true)
}

type createdUser struct {
	ID       string
	Password string
}

func (a *app) createUsers(ctx context.Context, opts createOptions) error {
	records, err := ReadUserRecords(a.cfg.InputFile)
	if err != nil {
		return err
	}

	return a.withDirectory(ctx, func(dir Directory) error {
		observe, finish, err := a.startJournal(ctx, "create-users")
		if err != nil {
			return err
		}
		outcomes, summary := RunBatch(ctx, "create-users", records, recordKey,
			func(ctx context.Context, r UserRecord) (createdUser, error) {
				return createUser(ctx, dir, r, opts)
			}, observe)
		finish(summary)

		report := NewReport("UserPrincipalName", "DisplayName", "Id", "Password", "Status", "Error")
		for _, o := range outcomes {
			report.Add(o.Input.UserPrincipalName, o.Input.DisplayName, o.Output.ID, o.Output.Password, string(o.Result.Status), o.Result.Reason)
		}
		return a.writeReport("CreatedUsers", report)
	})
}

// createUser creates one user and assigns its licenses. When the user exists
// but licensing fails, the id and password are still returned with the error.
func createUser(ctx context.Context, dir Directory, r UserRecord, opts createOptions) (createdUser, error) {
	if r.UserPrincipalName == "" {
		return createdUser{}, errMissingUPN
	}
	nu, _, err := newUserFromRecord(r, opts)
	if err != nil {
		return createdUser{}, err
	}
	skus, err := r.skuIDs()
	if err != nil {
		return createdUser{}, err
	}

	id, err := dir.CreateUser(ctx, nu)
	if err != nil {
		return createdUser{}, err
	}
	out := createdUser{ID: id, Password: nu.Password}
	if len(skus) > 0 {
		if err := dir.AssignLicense(ctx, id, skus); err != nil {
			return out, fmt.Errorf("user created but license assignment failed: %w", err)
		}
	}
	return out, nil
}

func (a *app) deleteUsersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete-users",
		Short: "Delete the users listed in a CSV file",
		Long:  "Soft-delete every UserPrincipalName in the input file. Deleted users stay recoverable until purged.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.deleteUsers(cmd.Context())
		},
	}
	return a.reportFlags(a.inputFlag(cmd), false)
}

func (a *app) deleteUsers(ctx context.Context) error {
	records, err := ReadUserRecords(a.cfg.InputFile)
	if err != nil {
		return err
	}

	return a.withDirectory(ctx, func(dir Directory) error {
		observe, finish, err := a.startJournal(ctx, "delete-users")
		if err != nil {
			return err
		}
		outcomes, summary := RunBatch(ctx, "delete-users", records, recordKey,
			func(ctx context.Context, r UserRecord) (struct{}, error) {
				if r.UserPrincipalName == "" {
					return struct{}{}, errMissingUPN
				}
				return struct{}{}, dir.DeleteUser(ctx, r.UserPrincipalName)
			}, observe)
		finish(summary)

		report := NewReport("UserPrincipalName", "Status", "Error")
		for _, o := range outcomes {
			report.Add(o.Input.UserPrincipalName, string(o.Result.Status), o.Result.Reason)
		}
		return a.writeReport("DeletedUsers", report)
	})
}

func (a *app) issueTAPCommand() *cobra.Command {
	var (
		lifetime   int32
		usableOnce bool
		start      string
	)
	cmd := &cobra.Command{
		Use:   "issue-tap",
		Short: "Issue a temporary access pass to each user in a CSV file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := TAPOptions{LifetimeInMinutes: lifetime, IsUsableOnce: usableOnce}
			if start != "" {
				t, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start %q: %w", start, err)
				}
				opts.Start = t
			}
			return a.issueTAPs(cmd.Context(), opts)
		},
	}
	cmd.Flags().Int32Var(&lifetime, "lifetime", 60, "Pass lifetime in minutes (10 to 43200, within the tenant policy).")
	cmd.Flags().BoolVar(&usableOnce, "usable-once", false, "Make the pass valid for a single sign-in.")
	cmd.Flags().StringVar(&start, "start", "", "RFC3339 start time. Defaults to now.")
	return a.reportFlags(a.inputFlag(cmd), true)
}

func (a *app) issueTAPs(ctx context.Context, opts TAPOptions) error {
	if opts.LifetimeInMinutes < 10 || opts.LifetimeInMinutes > 43200 {
		return fmt.Errorf("lifetime must be between 10 and 43200 minutes")
	}
	records, err := ReadUserRecords(a.cfg.InputFile)
	if err != nil {
		return err
	}

	return a.withDirectory(ctx, func(dir Directory) error {
		observe, finish, err := a.startJournal(ctx, "issue-tap")
		if err != nil {
			return err
		}
		outcomes, summary := RunBatch(ctx, "issue-tap", records, recordKey,
			func(ctx context.Context, r UserRecord) (TemporaryAccessPass, error) {
				if r.UserPrincipalName == "" {
					return TemporaryAccessPass{}, errMissingUPN
				}
				return dir.IssueTemporaryAccessPass(ctx, r.UserPrincipalName, opts)
			}, observe)
		finish(summary)

		report := NewReport("UserPrincipalName", "TemporaryAccessPass", "StartDateTime", "LifetimeInMinutes", "IsUsableOnce", "Status", "Error")
		for _, o := range outcomes {
			tap := o.Output
			var started, lifetime, once string
			if o.Result.Status == StatusSuccess {
				started = formatTime(tap.StartDateTime)
				lifetime = strconv.Itoa(int(tap.LifetimeInMinutes))
				once = strconv.FormatBool(tap.IsUsableOnce)
			}
			report.Add(o.Input.UserPrincipalName, tap.Code, started, lifetime, once, string(o.Result.Status), o.Result.Reason)
		}
		return a.writeReport("TemporaryAccessPasses", report)
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func joinList(values []string) string {
	return strings.Join(values, ";")
}
