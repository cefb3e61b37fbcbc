package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	msgraphsdk "github.com/microsoftgraph/msgraph-sdk-go"
	"github.com/microsoftgraph/msgraph-sdk-go/models/odataerrors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const graphScope = "https://graph.microsoft.com/.default"

// Session is an authenticated Microsoft Graph connection. It is created by
// Connect and must be released with Close.
type Session struct {
	client   *msgraphsdk.GraphServiceClient
	limiter  *rate.Limiter
	pageSize int
	claims   TokenClaims
	closed   bool
}

var _ Directory = (*Session)(nil)

// TokenClaims are the parts of the Graph access token worth reporting.
type TokenClaims struct {
	TenantID string
	AppID    string
	Roles    []string
	Expires  time.Time
}

// Connect exchanges the client credential for a token and builds the Graph
// client. The token is requested eagerly so a bad secret or a missing
// consent fails here rather than on the first batch element.
func Connect(ctx context.Context, cred Credential, cfg Config) (*Session, error) {
	azCred, err := azidentity.NewClientSecretCredential(cred.TenantID, cred.ClientID, cred.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating credential: %w", err)
	}

	claims, err := verifyCredential(ctx, azCred, cred.TenantID)
	if err != nil {
		return nil, err
	}

	client, err := msgraphsdk.NewGraphServiceClientWithCredentials(azCred, []string{graphScope})
	if err != nil {
		return nil, fmt.Errorf("error creating Graph client: %w", err)
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	log.WithFields(log.Fields{"tenant": claims.TenantID, "app": claims.AppID}).Info("Connected to Microsoft Graph.")
	log.Debugf("Granted application roles: %s", strings.Join(claims.Roles, ", "))

	return &Session{
		client:   client,
		limiter:  rate.NewLimiter(limit, 1),
		pageSize: cfg.PageSize,
		claims:   claims,
	}, nil
}

func verifyCredential(ctx context.Context, cred azcore.TokenCredential, tenantID string) (TokenClaims, error) {
	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{graphScope}})
	if err != nil {
		return TokenClaims{}, fmt.Errorf("authentication failed: %w", err)
	}
	claims, err := parseTokenClaims(token.Token)
	if err != nil {
		return TokenClaims{}, err
	}
	// A tenant given as a domain name cannot be compared with the tid claim.
	if _, err := uuid.Parse(tenantID); err == nil && !strings.EqualFold(claims.TenantID, tenantID) {
		return TokenClaims{}, fmt.Errorf("token was issued for tenant %s, expected %s", claims.TenantID, tenantID)
	}
	return claims, nil
}

// parseTokenClaims reads the claims of an access token we just received from
// Entra ID. The signature is not verified, so this must never be used to
// authenticate incoming requests.
func parseTokenClaims(raw string) (TokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(raw, claims); err != nil {
		return TokenClaims{}, fmt.Errorf("failed to parse token: %w", err)
	}

	tid, ok := claims["tid"].(string)
	if !ok {
		return TokenClaims{}, errors.New("could not find 'tid' claim in token")
	}
	out := TokenClaims{TenantID: tid}
	out.AppID, _ = claims["appid"].(string)
	if roles, ok := claims["roles"].([]any); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				out.Roles = append(out.Roles, s)
			}
		}
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.Expires = exp.Time
	}
	return out, nil
}

// Claims returns what the access token said about this session.
func (s *Session) Claims() TokenClaims {
	return s.claims
}

// Close releases the session. It is safe to call more than once and never fails.
func (s *Session) Close() error {
	if s == nil || s.closed {
		return nil
	}
	s.closed = true
	s.client = nil
	log.Debug("Graph session closed.")
	return nil
}

// wait blocks until the throttle lets the next request through.
func (s *Session) wait(ctx context.Context) error {
	if s.closed {
		return errors.New("graph session is closed")
	}
	return s.limiter.Wait(ctx)
}

// GraphError is a Graph OData error reduced to its code and message.
type GraphError struct {
	StatusCode int
	Code       string
	Message    string
	err        error
}

func (e *GraphError) Error() string {
	if e.Code == "" {
		return e.Message
	}
	return e.Code + ": " + e.Message
}

func (e *GraphError) Unwrap() error {
	return e.err
}

// graphError replaces the SDK's generic OData error text with the service's
// own code and message.
func graphError(err error) error {
	var odataErr *odataerrors.ODataError
	if !errors.As(err, &odataErr) {
		return err
	}
	detail := odataErr.GetErrorEscaped()
	if detail == nil || detail.GetMessage() == nil {
		return err
	}
	return &GraphError{
		StatusCode: odataErr.ResponseStatusCode,
		Code:       deref(detail.GetCode()),
		Message:    *detail.GetMessage(),
		err:        err,
	}
}

// errorMessage flattens err to a single line suitable for a CSV cell.
func errorMessage(err error) string {
	return strings.Join(strings.Fields(err.Error()), " ")
}

func int32Ptr(i int) *int32 {
	v := int32(i)
	return &v
}

func strPtr(s string) *string {
	return &s
}

func boolPtr(b bool) *bool {
	return &b
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
