package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeDirectory is an in-memory Directory. Any identifier listed in failFor
// makes the matching call fail with that error.
type fakeDirectory struct {
	users   []DirectoryUser
	deleted []DeletedPrincipal
	skus    []LicenseSku
	failFor map[string]error

	created  []NewUser
	removed  []string
	purged   []string
	licensed map[string][]uuid.UUID
	taps     map[string]TAPOptions
	calls    int
	closed   int
}

var _ Directory = (*fakeDirectory)(nil)

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		failFor:  map[string]error{},
		licensed: map[string][]uuid.UUID{},
		taps:     map[string]TAPOptions{},
	}
}

func (f *fakeDirectory) fail(id string) error {
	f.calls++
	return f.failFor[id]
}

func (f *fakeDirectory) ListUsers(_ context.Context, _ string) ([]DirectoryUser, error) {
	f.calls++
	return f.users, nil
}

func (f *fakeDirectory) CreateUser(_ context.Context, u NewUser) (string, error) {
	if err := f.fail(u.UserPrincipalName); err != nil {
		return "", err
	}
	f.created = append(f.created, u)
	return fmt.Sprintf("id-%d", len(f.created)), nil
}

func (f *fakeDirectory) DeleteUser(_ context.Context, id string) error {
	if err := f.fail(id); err != nil {
		return err
	}
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeDirectory) AssignLicense(_ context.Context, userID string, skuIDs []uuid.UUID) error {
	if err := f.fail(userID); err != nil {
		return err
	}
	f.licensed[userID] = append(f.licensed[userID], skuIDs...)
	return nil
}

func (f *fakeDirectory) IssueTemporaryAccessPass(_ context.Context, userID string, opts TAPOptions) (TemporaryAccessPass, error) {
	if err := f.fail(userID); err != nil {
		return TemporaryAccessPass{}, err
	}
	f.taps[userID] = opts
	return TemporaryAccessPass{Code: "tap-" + userID, LifetimeInMinutes: opts.LifetimeInMinutes, IsUsableOnce: opts.IsUsableOnce}, nil
}

func (f *fakeDirectory) ListDeletedUsers(_ context.Context) ([]DeletedPrincipal, error) {
	f.calls++
	return f.deleted, nil
}

func (f *fakeDirectory) PurgeDeletedUser(_ context.Context, id string) error {
	if err := f.fail(id); err != nil {
		return err
	}
	f.purged = append(f.purged, id)
	return nil
}

func (f *fakeDirectory) ListSubscribedSkus(_ context.Context) ([]LicenseSku, error) {
	f.calls++
	return f.skus, nil
}

func (f *fakeDirectory) Close() error {
	f.closed++
	return nil
}

var errInvalidUPN = &GraphError{
	StatusCode: 400,
	Code:       "Request_BadRequest",
	Message:    "Property userPrincipalName is invalid.",
}

// writeCredentials puts a valid credential file in dir and returns its path.
func writeCredentials(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "credentials.json")
	content := `{"tenantId": "11111111-2222-3333-4444-555555555555", "clientId": "app-client", "clientSecret": "s3cr3t"}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// clearCredentialEnv keeps ambient variables from overriding test files.
func clearCredentialEnv(t *testing.T) {
	t.Helper()
	t.Setenv("TENANT_ID", "")
	t.Setenv("CLIENT_ID", "")
	t.Setenv("CLIENT_SECRET", "")
}
