package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/microsoft/kiota-abstractions-go/authentication"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// graphStub serves canned Graph responses and keeps every request it saw.
type graphStub struct {
	mu       sync.Mutex
	requests []capturedRequest
	mux      *http.ServeMux
	srv      *httptest.Server
}

func newGraphStub(t *testing.T) *graphStub {
	t.Helper()
	stub := &graphStub{mux: http.NewServeMux()}
	stub.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get("Content-Encoding") == "gzip" {
			if zr, err := gzip.NewReader(bytes.NewReader(body)); err == nil {
				body, _ = io.ReadAll(zr)
			}
		}
		stub.mu.Lock()
		stub.requests = append(stub.requests, capturedRequest{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
			Body:   body,
		})
		stub.mu.Unlock()
		stub.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(stub.srv.Close)
	return stub
}

func (g *graphStub) handle(pattern string, status int, body string) {
	g.mux.HandleFunc(pattern, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, status, body)
	})
}

func (g *graphStub) captured() []capturedRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]capturedRequest(nil), g.requests...)
}

// session builds a Session that talks to the stub without authentication.
func (g *graphStub) session(t *testing.T) *Session {
	t.Helper()
	adapter, err := msgraphsdk.NewGraphRequestAdapter(&authentication.AnonymousAuthenticationProvider{})
	require.NoError(t, err)
	adapter.SetBaseUrl(g.srv.URL)
	return &Session{
		client:   msgraphsdk.NewGraphServiceClient(adapter),
		limiter:  rate.NewLimiter(rate.Inf, 1),
		pageSize: 2,
	}
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func decodeJSON(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

const (
	skuE3  = "c7df2760-2c81-4ef7-b578-5b5392b571df"
	skuEMS = "efccb6f7-5641-4e0e-bd10-b4976e1bf68e"
	skuPBI = "f30db892-07e9-47e9-837c-80727f46fd3d"
	skuTMS = "3b555118-da6a-4418-894f-7df1e2096870"
)

func TestSessionListUsersFollowsNextLinkWithHeaders(t *testing.T) {
	stub := newGraphStub(t)
	stub.mux.HandleFunc("GET /users", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$skiptoken") == "" {
			writeJSON(w, http.StatusOK, `{
				"@odata.nextLink": "`+stub.srv.URL+`/users?$skiptoken=page2",
				"value": [{
					"id": "id-ada", "accountEnabled": true,
					"userPrincipalName": "ada@contoso.com", "displayName": "Ada Lovelace",
					"department": "Research", "usageLocation": "GB", "mailNickname": "ada",
					"assignedLicenses": [
						{"skuId": "`+skuE3+`", "disabledPlans": []},
						{"skuId": "`+skuEMS+`", "disabledPlans": []},
						{"skuId": "`+skuPBI+`", "disabledPlans": []},
						{"skuId": "`+skuTMS+`", "disabledPlans": []}
					]
				}]
			}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"value": [{"id": "id-alan", "accountEnabled": false, "userPrincipalName": "alan@contoso.com"}]}`)
	})
	hook := logtest.NewGlobal()

	users, err := stub.session(t).ListUsers(context.Background(), "department eq 'Research'")
	require.NoError(t, err)
	require.Len(t, users, 2)

	ada := users[0]
	assert.Equal(t, "id-ada", ada.ID)
	assert.True(t, ada.AccountEnabled)
	assert.Equal(t, "Research", ada.Record.Department)
	assert.Equal(t, "GB", ada.Record.UsageLocation)
	assert.Equal(t, "ada", ada.Record.MailNickname)
	assert.Equal(t, [3]string{skuE3, skuEMS, skuPBI}, ada.Record.SkuIDs)
	assert.Equal(t, []string{skuE3, skuEMS, skuPBI, skuTMS}, ada.AssignedSkuIDs)
	assert.Equal(t, "alan@contoso.com", users[1].Record.UserPrincipalName)
	assert.False(t, users[1].AccountEnabled)
	assert.Empty(t, users[1].Record.SkuIDs[0])

	var warned bool
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, skuTMS) {
			warned = true
		}
	}
	assert.True(t, warned, "a fourth license is reported when it cannot be exported")

	requests := stub.captured()
	require.Len(t, requests, 2)
	first, second := requests[0], requests[1]
	assert.Equal(t, "department eq 'Research'", first.Query.Get("$filter"))
	assert.Equal(t, "true", first.Query.Get("$count"))
	assert.Equal(t, "2", first.Query.Get("$top"))
	assert.Contains(t, first.Query.Get("$select"), "assignedLicenses")
	assert.Equal(t, "eventual", first.Header.Get("ConsistencyLevel"))
	assert.Equal(t, "page2", second.Query.Get("$skiptoken"))
	assert.Equal(t, "eventual", second.Header.Get("ConsistencyLevel"))
}

func TestSessionListUsersWithoutFilter(t *testing.T) {
	stub := newGraphStub(t)
	stub.handle("GET /users", http.StatusOK, `{"value": []}`)

	users, err := stub.session(t).ListUsers(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, users)

	requests := stub.captured()
	require.Len(t, requests, 1)
	assert.False(t, requests[0].Query.Has("$filter"))
	assert.False(t, requests[0].Query.Has("$count"))
	assert.Empty(t, requests[0].Header.Get("ConsistencyLevel"))
}

func TestSessionCreateUserSendsOnlyPresentFields(t *testing.T) {
	stub := newGraphStub(t)
	stub.handle("POST /users", http.StatusCreated, `{"id": "new-id"}`)

	id, err := stub.session(t).CreateUser(context.Background(), NewUser{
		UserPrincipalName:   "ada@contoso.com",
		DisplayName:         "Ada Lovelace",
		MailNickname:        "ada",
		Password:            "Pa55-word-123",
		ForceChangePassword: true,
		Department:          Some("Research"),
		City:                Some(""),
	})
	require.NoError(t, err)
	assert.Equal(t, "new-id", id)

	requests := stub.captured()
	require.Len(t, requests, 1)
	body := decodeJSON(t, requests[0].Body)
	assert.Equal(t, true, body["accountEnabled"])
	assert.Equal(t, "ada@contoso.com", body["userPrincipalName"])
	assert.Equal(t, "Ada Lovelace", body["displayName"])
	assert.Equal(t, "ada", body["mailNickname"])
	assert.Equal(t, "Research", body["department"])
	for _, absent := range []string{"city", "givenName", "surname", "jobTitle", "usageLocation", "employeeId"} {
		assert.NotContains(t, body, absent)
	}
	profile, ok := body["passwordProfile"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Pa55-word-123", profile["password"])
	assert.Equal(t, true, profile["forceChangePasswordNextSignIn"])
}

func TestSessionCreateUserReturnsGraphError(t *testing.T) {
	stub := newGraphStub(t)
	stub.handle("POST /users", http.StatusBadRequest,
		`{"error": {"code": "Request_BadRequest", "message": "Property userPrincipalName is invalid."}}`)

	_, err := stub.session(t).CreateUser(context.Background(), NewUser{UserPrincipalName: "not a upn", DisplayName: "x", MailNickname: "x", Password: "x"})
	var graphErr *GraphError
	require.True(t, errors.As(err, &graphErr), "got %v", err)
	assert.Equal(t, http.StatusBadRequest, graphErr.StatusCode)
	assert.Equal(t, "Request_BadRequest: Property userPrincipalName is invalid.", err.Error())
}

func TestSessionAssignLicense(t *testing.T) {
	stub := newGraphStub(t)
	stub.handle("POST /users/{id}/assignLicense", http.StatusOK, `{"id": "id-ada"}`)

	err := stub.session(t).AssignLicense(context.Background(), "id-ada", []uuid.UUID{uuid.MustParse(skuE3)})
	require.NoError(t, err)

	requests := stub.captured()
	require.Len(t, requests, 1)
	assert.Equal(t, "/users/id-ada/assignLicense", requests[0].Path)
	body := decodeJSON(t, requests[0].Body)
	assert.Equal(t, []any{map[string]any{"skuId": skuE3}}, stripODataType(body["addLicenses"]))
	assert.Equal(t, []any{}, body["removeLicenses"])
}

func TestSessionIssueTemporaryAccessPass(t *testing.T) {
	stub := newGraphStub(t)
	stub.handle("POST /users/{id}/authentication/temporaryAccessPassMethods", http.StatusCreated, `{
		"id": "tap-1", "temporaryAccessPass": "K9+xq2#L",
		"startDateTime": "2026-10-20T08:00:00Z", "lifetimeInMinutes": 120, "isUsableOnce": true
	}`)

	start := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)
	tap, err := stub.session(t).IssueTemporaryAccessPass(context.Background(), "id-ada",
		TAPOptions{LifetimeInMinutes: 120, IsUsableOnce: true, Start: start})
	require.NoError(t, err)
	assert.Equal(t, "K9+xq2#L", tap.Code)
	assert.Equal(t, int32(120), tap.LifetimeInMinutes)
	assert.True(t, tap.IsUsableOnce)
	assert.True(t, start.Equal(tap.StartDateTime))

	requests := stub.captured()
	require.Len(t, requests, 1)
	body := decodeJSON(t, requests[0].Body)
	assert.Equal(t, float64(120), body["lifetimeInMinutes"])
	assert.Equal(t, true, body["isUsableOnce"])
	assert.Contains(t, body, "startDateTime")
}

func TestSessionDeletedUsers(t *testing.T) {
	stub := newGraphStub(t)
	stub.handle("GET /directory/deletedItems/graph.user", http.StatusOK, `{"value": [
		{"id": "obj-1", "userPrincipalName": "1a2bada@contoso.com", "deletedDateTime": "2026-10-01T12:00:00Z"}
	]}`)
	stub.mux.HandleFunc("DELETE /directory/deletedItems/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s := stub.session(t)

	deleted, err := s.ListDeletedUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []DeletedPrincipal{{
		ID:                "obj-1",
		UserPrincipalName: "1a2bada@contoso.com",
		DeletedDateTime:   time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
	}}, normalizeDeleted(deleted))

	require.NoError(t, s.PurgeDeletedUser(context.Background(), "obj-1"))
	requests := stub.captured()
	require.Len(t, requests, 2)
	assert.Equal(t, http.MethodDelete, requests[1].Method)
	assert.Equal(t, "/directory/deletedItems/obj-1", requests[1].Path)
}

func TestSessionListSubscribedSkus(t *testing.T) {
	stub := newGraphStub(t)
	stub.handle("GET /subscribedSkus", http.StatusOK, `{"value": [
		{"skuId": "`+skuE3+`", "skuPartNumber": "SPE_E3", "consumedUnits": 10, "prepaidUnits": {"enabled": 25, "suspended": 0, "warning": 0}},
		{"skuId": "`+skuPBI+`", "skuPartNumber": "POWER_BI_STANDARD", "consumedUnits": 3}
	]}`)

	skus, err := stub.session(t).ListSubscribedSkus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []LicenseSku{
		{SkuID: skuE3, SkuPartNumber: "SPE_E3", ConsumedUnits: 10, EnabledUnits: 25},
		{SkuID: skuPBI, SkuPartNumber: "POWER_BI_STANDARD", ConsumedUnits: 3},
	}, skus)
}

// stripODataType drops the @odata.type annotations the serializer adds to
// nested objects.
func stripODataType(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	out := make([]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			clean := make(map[string]any, len(m))
			for k, val := range m {
				if k != "@odata.type" && k != "disabledPlans" {
					clean[k] = val
				}
			}
			item = clean
		}
		out = append(out, item)
	}
	return out
}

func normalizeDeleted(in []DeletedPrincipal) []DeletedPrincipal {
	for i := range in {
		in[i].DeletedDateTime = in[i].DeletedDateTime.UTC()
	}
	return in
}
