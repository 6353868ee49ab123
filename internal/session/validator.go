package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/store"
	"github.com/wolfeidau/salesboard/internal/telemetry"
)

const (
	// CookieName holds the credential as an HTTP-only cookie.
	CookieName = "_session"
	// HeaderName carries the credential for cross-origin callers.
	HeaderName = "X-Session-Token"
)

// Result is the answer to "am I logged in". Failures are reported through
// Reason, never as errors.
type Result struct {
	Authenticated bool         `json:"authenticated"`
	User          *models.User `json:"-"`
	Claims        *Claims      `json:"-"`
	Reason        string       `json:"-"`
}

// Validator checks session credentials against the user store.
type Validator struct {
	signer *Signer
	users  store.UserStore
}

// NewValidator creates a validator.
func NewValidator(signer *Signer, users store.UserStore) *Validator {
	return &Validator{
		signer: signer,
		users:  users,
	}
}

// Check validates a credential. The only error it returns is a store failure.
func (v *Validator) Check(ctx context.Context, credential string) (Result, error) {
	result, err := v.check(ctx, credential)

	telemetry.GetMetrics().SessionChecksTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.Bool("authenticated", result.Authenticated)))

	if err == nil && !result.Authenticated {
		log.Debug().Str("reason", result.Reason).Msg("Session not authenticated")
	}

	return result, err
}

func (v *Validator) check(ctx context.Context, credential string) (Result, error) {
	if credential == "" {
		return Result{Reason: "missing"}, nil
	}

	claims, err := v.signer.Verify(credential)
	if err != nil {
		if errors.Is(err, ErrExpiredCredential) {
			return Result{Reason: "expired"}, nil
		}
		return Result{Reason: "malformed"}, nil
	}

	user, err := v.users.Get(ctx, claims.TenantID, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return Result{Reason: "mismatch"}, nil
		}
		return Result{}, fmt.Errorf("failed to load session user: %w", err)
	}

	if !user.Active {
		return Result{Reason: "inactive"}, nil
	}

	return Result{Authenticated: true, User: user, Claims: claims}, nil
}

// CheckRequest validates the credential carried by r.
func (v *Validator) CheckRequest(r *http.Request) (Result, error) {
	return v.Check(r.Context(), CredentialFromRequest(r))
}

// CredentialFromRequest returns the credential from the Authorization bearer,
// the session cookie or the session header, in that order.
func CredentialFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token)
		}
	}

	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return strings.TrimSpace(r.Header.Get(HeaderName))
}
