// Package api serves the JSON endpoints used by the leaderboard frontend.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/salesboard/internal/crm"
	"github.com/wolfeidau/salesboard/internal/crmsync"
	"github.com/wolfeidau/salesboard/internal/leaderboard"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/session"
	"github.com/wolfeidau/salesboard/internal/store"
)

// Boards builds leaderboards.
type Boards interface {
	DealLeaderboard(ctx context.Context, q leaderboard.Query) (*leaderboard.Board, error)
	ActivityLeaderboard(ctx context.Context, q leaderboard.Query) (*leaderboard.Board, error)
}

// Syncer mirrors CRM data for a tenant.
type Syncer interface {
	Run(ctx context.Context, tenantID uuid.UUID, window crm.Window) (*crmsync.Report, error)
}

// Deps are the collaborators of the API handlers. Health is optional.
type Deps struct {
	Validator *session.Validator
	Keys      *session.KeyExchanger
	Boards    Boards
	Syncer    Syncer
	Teams     store.TeamStore
	Health    store.Pinger

	SecureCookies bool
}

// Handler serves the JSON API.
type Handler struct {
	deps Deps
}

func NewHandler(deps Deps) (*Handler, error) {
	if deps.Validator == nil || deps.Keys == nil || deps.Boards == nil || deps.Syncer == nil || deps.Teams == nil {
		return nil, errors.New("validator, keys, boards, syncer and teams are required")
	}
	return &Handler{deps: deps}, nil
}

// Routes returns the API routes. Data routes require a session.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.HealthHandler())

	mux.HandleFunc("OPTIONS /api/", h.OptionsHandler())
	mux.HandleFunc("GET /api/session", h.SessionHandler())
	mux.HandleFunc("POST /api/session", h.SessionHandler())
	mux.HandleFunc("POST /api/session/exchange", h.ExchangeHandler())

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		mux.Handle(method+" /api/leaderboards/deals", h.RequireSession(h.DealLeaderboardHandler()))
		mux.Handle(method+" /api/leaderboards/activity", h.RequireSession(h.ActivityLeaderboardHandler()))
		mux.Handle(method+" /api/teams", h.RequireSession(h.TeamsHandler()))
	}
	mux.Handle("POST /api/sync", h.RequireSession(h.SyncHandler()))

	return mux
}

// RequireSession rejects requests without a valid session and stores the
// user in the request context.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := h.deps.Validator.CheckRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !result.Authenticated {
			writeError(w, r, newError(KindAuth, "authentication required"))
			return
		}

		next.ServeHTTP(w, r.WithContext(session.WithUser(r.Context(), result.User)))
	})
}

// OptionsHandler answers preflight requests that reach the mux with an empty 200.
func (h *Handler) OptionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

type userView struct {
	UserID   uuid.UUID `json:"user_id"`
	TenantID uuid.UUID `json:"tenant_id"`
	OwnerID  string    `json:"owner_id,omitempty"`
	Email    string    `json:"email"`
	Name     string    `json:"name"`
	Role     string    `json:"role"`
}

func newUserView(u *models.User) *userView {
	return &userView{
		UserID:   u.UserID,
		TenantID: u.TenantID,
		OwnerID:  u.OwnerID,
		Email:    u.Email,
		Name:     u.DisplayName(),
		Role:     u.Role,
	}
}

type sessionResponse struct {
	Authenticated bool       `json:"authenticated"`
	User          *userView  `json:"user,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	SessionToken  string     `json:"session_token,omitempty"`
}

func newSessionResponse(result session.Result) sessionResponse {
	resp := sessionResponse{Authenticated: result.Authenticated}
	if !result.Authenticated {
		return resp
	}
	resp.User = newUserView(result.User)
	if result.Claims != nil && result.Claims.ExpiresAt != nil {
		expiresAt := result.Claims.ExpiresAt.Time
		resp.ExpiresAt = &expiresAt
	}
	return resp
}

// SessionHandler reports whether the caller is logged in. It answers 200
// whether or not the session is valid.
func (h *Handler) SessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := h.deps.Validator.CheckRequest(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, newSessionResponse(result))
	}
}

// ExchangeHandler redeems a one-time session key for the session credential
// and sets the session cookie.
func (h *Handler) ExchangeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := readParams(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if p.SessionKey == "" {
			writeError(w, r, newError(KindValidation, "session_key is required"))
			return
		}

		credential, err := h.deps.Keys.Redeem(r.Context(), p.SessionKey)
		if err != nil {
			writeError(w, r, err)
			return
		}

		result, err := h.deps.Validator.Check(r.Context(), credential)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !result.Authenticated {
			writeError(w, r, newError(KindAuth, "session is no longer valid"))
			return
		}

		ttl := time.Until(result.Claims.ExpiresAt.Time)
		session.SetCookie(w, credential, ttl, h.deps.SecureCookies)
		w.Header().Set(session.HeaderName, credential)

		resp := newSessionResponse(result)
		resp.SessionToken = credential

		log.Info().
			Str("tenant_id", result.User.TenantID.String()).
			Str("user_id", result.User.UserID.String()).
			Msg("Session key exchanged")

		writeJSON(w, http.StatusOK, resp)
	}
}

// DealLeaderboardHandler serves the largest-deal leaderboard.
func (h *Handler) DealLeaderboardHandler() http.HandlerFunc {
	return h.leaderboardHandler(h.deps.Boards.DealLeaderboard)
}

// ActivityLeaderboardHandler serves this week's activity leaderboard.
func (h *Handler) ActivityLeaderboardHandler() http.HandlerFunc {
	return h.leaderboardHandler(h.deps.Boards.ActivityLeaderboard)
}

func (h *Handler) leaderboardHandler(build func(context.Context, leaderboard.Query) (*leaderboard.Board, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := session.UserFromContext(r.Context())

		q, err := leaderboardQuery(r, user)
		if err != nil {
			writeError(w, r, err)
			return
		}

		board, err := build(r.Context(), q)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, board.WithViewer(user.UserID))
	}
}

func leaderboardQuery(r *http.Request, user *models.User) (leaderboard.Query, error) {
	p, err := readParams(r)
	if err != nil {
		return leaderboard.Query{}, err
	}

	tenantID, err := p.tenant(user.TenantID)
	if err != nil {
		return leaderboard.Query{}, err
	}

	teamID, err := p.team()
	if err != nil {
		return leaderboard.Query{}, err
	}

	return leaderboard.Query{
		TenantID:        tenantID,
		TeamID:          teamID,
		WonOnly:         p.WonOnly,
		CompareLastWeek: p.CompareLastWeek,
		IncludeInactive: p.IncludeInactive,
	}, nil
}

type teamView struct {
	TeamID    uuid.UUID   `json:"team_id"`
	Name      string      `json:"name"`
	MemberIDs []uuid.UUID `json:"member_ids"`
}

type teamsResponse struct {
	Teams []teamView `json:"teams"`
}

// TeamsHandler lists the teams of the caller's tenant.
func (h *Handler) TeamsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := session.UserFromContext(r.Context())

		p, err := readParams(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		tenantID, err := p.tenant(user.TenantID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		teams, err := h.deps.Teams.ListByTenant(r.Context(), tenantID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		resp := teamsResponse{Teams: make([]teamView, 0, len(teams))}
		for _, t := range teams {
			members := t.MemberIDs
			if members == nil {
				members = []uuid.UUID{}
			}
			resp.Teams = append(resp.Teams, teamView{TeamID: t.TeamID, Name: t.Name, MemberIDs: members})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// SyncHandler runs the CRM sync for the caller's tenant. Admins only.
func (h *Handler) SyncHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := session.UserFromContext(r.Context())
		if !user.IsAdmin() {
			writeError(w, r, newError(KindForbidden, "sync requires the admin role"))
			return
		}

		p, err := readParams(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		tenantID, err := p.tenant(user.TenantID)
		if err != nil {
			writeError(w, r, err)
			return
		}

		window := crm.All
		if p.Since != "" {
			since, err := parseSince(p.Since)
			if err != nil {
				writeError(w, r, err)
				return
			}
			window.Start = since
		}

		report, err := h.deps.Syncer.Run(r.Context(), tenantID, window)
		if err != nil {
			writeError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}

func parseSince(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, newError(KindValidation, fmt.Sprintf("since must be RFC3339 or YYYY-MM-DD, got %q", value))
}

// HealthHandler pings the database when one is configured.
func (h *Handler) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.deps.Health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := h.deps.Health.Ping(ctx); err != nil {
				log.Error().Err(err).Msg("Health check failed")
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
