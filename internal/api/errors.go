package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/salesboard/internal/crm"
	"github.com/wolfeidau/salesboard/internal/session"
	"github.com/wolfeidau/salesboard/internal/store"
	"github.com/wolfeidau/salesboard/internal/tokens"
)

// Kind classifies an API error and selects its HTTP status.
type Kind string

const (
	KindValidation          Kind = "validation_error"
	KindNotFound            Kind = "not_found"
	KindAuth                Kind = "auth_error"
	KindForbidden           Kind = "forbidden"
	KindUpstreamRateLimited Kind = "upstream_rate_limited"
	KindUpstream            Kind = "upstream_error"
	KindInternal            Kind = "internal_error"
)

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindUpstreamRateLimited:
		return http.StatusTooManyRequests
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is an error with a kind and a message safe to show to callers.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// classify maps errors from the lower layers onto API errors.
func classify(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	switch {
	case errors.Is(err, store.ErrTenantNotFound),
		errors.Is(err, store.ErrTeamNotFound),
		errors.Is(err, store.ErrUserNotFound):
		return &Error{Kind: KindNotFound, Message: err.Error(), Err: err}
	case errors.Is(err, tokens.ErrNoTokenFound):
		return &Error{Kind: KindNotFound, Message: "tenant has not connected a CRM account", Err: err}
	case errors.Is(err, tokens.ErrRefreshFailed):
		return &Error{Kind: KindAuth, Message: "CRM authorization expired, please log in again", Err: err}
	case errors.Is(err, session.ErrInvalidOrExpiredKey):
		return &Error{Kind: KindAuth, Message: err.Error(), Err: err}
	case errors.Is(err, crm.ErrUpstreamRateLimited):
		return &Error{Kind: KindUpstreamRateLimited, Message: "CRM rate limit exceeded, try again later", Err: err}
	case errors.Is(err, crm.ErrUpstream), errors.Is(err, crm.ErrUnrecognizedShape):
		return &Error{Kind: KindUpstream, Message: "CRM request failed", Err: err}
	}

	return &Error{Kind: KindInternal, Message: "internal server error", Err: err}
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := classify(err)

	event := log.Warn()
	if apiErr.Kind == KindInternal {
		event = log.Error()
	}
	event.Err(err).
		Str("kind", string(apiErr.Kind)).
		Str("path", r.URL.Path).
		Msg("API request failed")

	writeJSON(w, apiErr.Kind.Status(), errorBody{Error: errorDetail{Kind: apiErr.Kind, Message: apiErr.Message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}
