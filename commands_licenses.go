package main

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func (a *app) assignLicensesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign-licenses",
		Short: "Assign the SkuId1..SkuId3 columns of a CSV file to each user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.assignLicenses(cmd.Context())
		},
	}
	return a.reportFlags(a.inputFlag(cmd), false)
}

func (a *app) assignLicenses(ctx context.Context) error {
	records, err := ReadUserRecords(a.cfg.InputFile)
	if err != nil {
		return err
	}

	return a.withDirectory(ctx, func(dir Directory) error {
		observe, finish, err := a.startJournal(ctx, "assign-licenses")
		if err != nil {
			return err
		}
		outcomes, summary := RunBatch(ctx, "assign-licenses", records, recordKey,
			func(ctx context.Context, r UserRecord) ([]uuid.UUID, error) {
				if r.UserPrincipalName == "" {
					return nil, errMissingUPN
				}
				skus, err := r.skuIDs()
				if err != nil {
					return nil, err
				}
				if len(skus) == 0 {
					return nil, errors.New("no SkuId given")
				}
				return skus, dir.AssignLicense(ctx, r.UserPrincipalName, skus)
			}, observe)
		finish(summary)

		report := NewReport("UserPrincipalName", "SkuIds", "Status", "Error")
		for _, o := range outcomes {
			ids := make([]string, 0, len(o.Output))
			for _, id := range o.Output {
				ids = append(ids, id.String())
			}
			report.Add(o.Input.UserPrincipalName, joinList(ids), string(o.Result.Status), o.Result.Reason)
		}
		return a.writeReport("AssignedLicenses", report)
	})
}

func (a *app) listLicensesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-licenses",
		Short: "Export every user with the licenses assigned to them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.listLicenses(cmd.Context())
		},
	}
	return a.reportFlags(cmd, true)
}

func (a *app) listLicenses(ctx context.Context) error {
	return a.withDirectory(ctx, func(dir Directory) error {
		skus, err := dir.ListSubscribedSkus(ctx)
		if err != nil {
			return err
		}
		partNumbers := make(map[string]string, len(skus))
		for _, s := range skus {
			partNumbers[s.SkuID] = s.SkuPartNumber
		}

		users, err := dir.ListUsers(ctx, "")
		if err != nil {
			return err
		}

		report := NewReport("UserPrincipalName", "DisplayName", "Id", "AccountEnabled", "SkuPartNumbers", "SkuIds")
		for _, u := range users {
			names := make([]string, 0, len(u.AssignedSkuIDs))
			for _, id := range u.AssignedSkuIDs {
				// A SKU the tenant no longer subscribes to has no part number.
				name, ok := partNumbers[id]
				if !ok {
					name = id
				}
				names = append(names, name)
			}
			report.Add(u.Record.UserPrincipalName, u.Record.DisplayName, u.ID, strconv.FormatBool(u.AccountEnabled), joinList(names), joinList(u.AssignedSkuIDs))
		}
		return a.writeReport("RegisteredUsersList", report)
	})
}

func (a *app) listSkusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-skus",
		Short: "Export the tenant's subscribed SKUs and their consumption",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withDirectory(cmd.Context(), func(dir Directory) error {
				skus, err := dir.ListSubscribedSkus(cmd.Context())
				if err != nil {
					return err
				}
				report := NewReport("SkuId", "SkuPartNumber", "ConsumedUnits", "EnabledUnits")
				for _, s := range skus {
					report.Add(s.SkuID, s.SkuPartNumber, strconv.Itoa(int(s.ConsumedUnits)), strconv.Itoa(int(s.EnabledUnits)))
				}
				return a.writeReport("SubscribedSkus", report)
			})
		},
	}
	return a.reportFlags(cmd, true)
}
