package main

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Directory is the subset of the directory service the commands consume.
// *Session implements it against Microsoft Graph; tests substitute a fake.
type Directory interface {
	ListUsers(ctx context.Context, filter string) ([]DirectoryUser, error)
	CreateUser(ctx context.Context, user NewUser) (string, error)
	DeleteUser(ctx context.Context, id string) error
	AssignLicense(ctx context.Context, userID string, skuIDs []uuid.UUID) error
	IssueTemporaryAccessPass(ctx context.Context, userID string, opts TAPOptions) (TemporaryAccessPass, error)
	ListDeletedUsers(ctx context.Context) ([]DeletedPrincipal, error)
	PurgeDeletedUser(ctx context.Context, id string) error
	ListSubscribedSkus(ctx context.Context) ([]LicenseSku, error)
	Close() error
}

// Optional is a string field that is only sent when present.
type Optional struct {
	value   string
	present bool
}

// Some marks v as present unless it is empty.
func Some(v string) Optional {
	return Optional{value: v, present: v != ""}
}

func (o Optional) Present() bool { return o.present }

func (o Optional) Value() string { return o.value }

// Ptr returns nil when the field is absent, which is what the Graph
// setters expect for "leave at the service default".
func (o Optional) Ptr() *string {
	if !o.present {
		return nil
	}
	v := o.value
	return &v
}

// NewUser is the request body for a user creation. Required fields are plain
// strings; everything else carries a presence flag.
type NewUser struct {
	UserPrincipalName   string
	DisplayName         string
	MailNickname        string
	Password            string
	ForceChangePassword bool
	GivenName           Optional
	Surname             Optional
	JobTitle            Optional
	EmployeeID          Optional
	EmployeeType        Optional
	Department          Optional
	City                Optional
	State               Optional
	Country             Optional
	StreetAddress       Optional
	PostalCode          Optional
	UsageLocation       Optional
}

// DirectoryUser is a user as returned by a listing call.
type DirectoryUser struct {
	ID             string
	AccountEnabled bool
	Record         UserRecord
	AssignedSkuIDs []string
}

// DeletedPrincipal is a soft-deleted user still held in the deleted items container.
type DeletedPrincipal struct {
	ID                string
	UserPrincipalName string
	DeletedDateTime   time.Time
}

type LicenseSku struct {
	SkuID         string
	SkuPartNumber string
	ConsumedUnits int32
	EnabledUnits  int32
}

// TAPOptions controls how a temporary access pass is issued.
// A zero Start lets the service start the pass immediately.
type TAPOptions struct {
	LifetimeInMinutes int32
	IsUsableOnce      bool
	Start             time.Time
}

type TemporaryAccessPass struct {
	Code              string
	StartDateTime     time.Time
	LifetimeInMinutes int32
	IsUsableOnce      bool
}
