package login

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/wolfeidau/salesboard/internal/crm"
	salesboardhttp "github.com/wolfeidau/salesboard/internal/http"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/popup"
	"github.com/wolfeidau/salesboard/internal/session"
	"github.com/wolfeidau/salesboard/internal/store"
)

const (
	stateCookie  = "state"
	originCookie = "popup_origin"
)

// Error codes appended to the login page as ?error_code= or posted to the opener.
const (
	CodeAccessDenied  = "access_denied"
	CodeInvalidState  = "invalid_state"
	CodeExchange      = "exchange_failed"
	CodeTokenInfo     = "token_info_failed"
	CodeAccountSetup  = "account_setup_failed"
	CodeSessionFailed = "session_failed"
)

// Tokens is the OAuth side of the token lifecycle.
type Tokens interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	Save(ctx context.Context, tenantID uuid.UUID, token *oauth2.Token) (*models.OAuthToken, error)
}

// CRM resolves who just logged in.
type CRM interface {
	TokenInfo(ctx context.Context, accessToken string) (*crm.TokenInfo, error)
	ListOwners(ctx context.Context, accessToken string) ([]crm.Owner, error)
}

// Config holds the redirect targets of the login flow.
type Config struct {
	// LoginURL receives failed logins with an error_code query parameter.
	LoginURL string
	// SuccessURL receives successful logins that did not start in a popup.
	SuccessURL string
	// SecureCookies sets the Secure attribute on every cookie.
	SecureCookies bool
}

// HubSpot runs the OAuth authorization-code flow against HubSpot and turns
// the result into a tenant, a user and a session.
type HubSpot struct {
	cfg     Config
	tokens  Tokens
	crm     CRM
	tenants store.TenantStore
	users   store.UserStore
	signer  *session.Signer
	keys    *session.KeyExchanger
	popups  *popup.Channel
	now     func() time.Time
}

func NewHubSpot(cfg Config, tokens Tokens, client CRM, stores store.Stores, signer *session.Signer, keys *session.KeyExchanger, popups *popup.Channel) (*HubSpot, error) {
	if tokens == nil || client == nil || signer == nil || keys == nil || popups == nil {
		return nil, fmt.Errorf("tokens, crm client, signer, key exchanger and popup channel are required")
	}

	if err := stores.Validate(); err != nil {
		return nil, err
	}

	if cfg.LoginURL == "" {
		cfg.LoginURL = "/login"
	}
	if cfg.SuccessURL == "" {
		cfg.SuccessURL = "/"
	}

	return &HubSpot{
		cfg:     cfg,
		tokens:  tokens,
		crm:     client,
		tenants: stores.Tenants,
		users:   stores.Users,
		signer:  signer,
		keys:    keys,
		popups:  popups,
		now:     time.Now,
	}, nil
}

func (h *HubSpot) setCookie(w http.ResponseWriter, name, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// LoginHandler starts the flow. An origin query parameter on the allowlist
// marks the flow as running in a popup opened by that origin.
func (h *HubSpot) LoginHandler(w http.ResponseWriter, r *http.Request) {
	log.Debug().Msg("Initiating HubSpot OAuth flow")

	// generate random state
	state := rand.Text()
	h.setCookie(w, stateCookie, state, 300) // 5 minutes - enough time for OAuth flow

	if origin := r.URL.Query().Get("origin"); origin != "" {
		if h.popups.Allowed(origin) {
			h.setCookie(w, originCookie, origin, 300)
		} else {
			log.Warn().Str("origin", origin).Msg("Ignoring popup origin not on allowlist")
		}
	}

	http.Redirect(w, r, h.tokens.AuthCodeURL(state), http.StatusFound)
}

// CallbackHandler completes the flow.
func (h *HubSpot) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	log.Debug().Msg("OAuth callback received")
	ctx := r.Context()

	origin := ""
	if cookie, err := r.Cookie(originCookie); err == nil {
		origin = cookie.Value
		h.setCookie(w, originCookie, "", -1)
	}

	if providerErr := r.FormValue("error"); providerErr != "" {
		log.Warn().Str("error", providerErr).Msg("OAuth provider returned an error")
		h.fail(w, r, origin, CodeAccessDenied)
		return
	}

	state := r.FormValue("state")
	code := r.FormValue("code")

	cookie, err := r.Cookie(stateCookie)
	if state == "" || code == "" || err != nil || state != cookie.Value {
		log.Warn().Msg("OAuth callback state mismatch")
		h.fail(w, r, origin, CodeInvalidState)
		return
	}

	// Clear the state cookie after validation
	h.setCookie(w, stateCookie, "", -1)

	token, err := h.tokens.Exchange(ctx, code)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to exchange OAuth code for token")
		h.fail(w, r, origin, CodeExchange)
		return
	}

	info, err := h.crm.TokenInfo(ctx, token.AccessToken)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to introspect access token")
		h.fail(w, r, origin, CodeTokenInfo)
		return
	}

	if info.User == "" {
		log.Warn().Int64("hub_id", info.HubID).Msg("Token info missing user email")
		h.fail(w, r, origin, CodeTokenInfo)
		return
	}

	tenant, err := h.getOrCreateTenant(ctx, info)
	if err != nil {
		log.Error().Err(err).Int64("hub_id", info.HubID).Msg("Failed to set up tenant")
		h.fail(w, r, origin, CodeAccountSetup)
		return
	}

	if _, err := h.tokens.Save(ctx, tenant.TenantID, token); err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.TenantID.String()).Msg("Failed to store oauth token")
		h.fail(w, r, origin, CodeAccountSetup)
		return
	}

	user, err := h.upsertUser(ctx, tenant, info, token.AccessToken)
	if err != nil {
		log.Error().Err(err).Str("tenant_id", tenant.TenantID.String()).Msg("Failed to set up user")
		h.fail(w, r, origin, CodeAccountSetup)
		return
	}

	credential, _, err := h.signer.Sign(user)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create session credential")
		h.fail(w, r, origin, CodeSessionFailed)
		return
	}

	key, err := h.keys.Issue(ctx, credential, salesboardhttp.ExtractClientIP(r))
	if err != nil {
		log.Error().Err(err).Msg("Failed to issue session key")
		h.fail(w, r, origin, CodeSessionFailed)
		return
	}

	log.Info().
		Str("tenant_id", tenant.TenantID.String()).
		Str("user_id", user.UserID.String()).
		Str("role", user.Role).
		Msg("User authenticated successfully")

	// The credential travels redundantly so it survives cross-origin popups.
	session.SetCookie(w, credential, h.signer.TTL(), h.cfg.SecureCookies)
	w.Header().Set(session.HeaderName, credential)

	if origin != "" {
		if err := h.popups.Render(w, origin, popup.AuthSucceeded{SessionKey: key}); err == nil {
			return
		}
	}

	http.Redirect(w, r, h.cfg.SuccessURL, http.StatusFound)
}

// LogoutHandler clears the session cookie.
func (h *HubSpot) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	session.ClearCookie(w, h.cfg.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}

func (h *HubSpot) fail(w http.ResponseWriter, r *http.Request, origin, code string) {
	if origin != "" {
		if err := h.popups.Render(w, origin, popup.AuthFailed{Code: code}); err == nil {
			return
		}
	}

	http.Redirect(w, r, h.cfg.LoginURL+"?error_code="+url.QueryEscape(code), http.StatusFound)
}

// getOrCreateTenant finds the tenant for the portal or creates it, updating
// the name and domain on later logins. A concurrent create for the same
// portal falls back to reading the winner's row.
func (h *HubSpot) getOrCreateTenant(ctx context.Context, info *crm.TokenInfo) (*models.Tenant, error) {
	now := h.now()

	tenant, err := h.tenants.GetByPortalID(ctx, info.HubID)
	switch {
	case err == nil:
		if tenant.Domain != info.HubDomain || tenant.Name == "" {
			tenant.Domain = info.HubDomain
			tenant.Name = tenantName(info)
			tenant.UpdatedAt = now
			if err := h.tenants.Update(ctx, tenant); err != nil {
				return nil, err
			}
		}
		return tenant, nil
	case !errors.Is(err, store.ErrTenantNotFound):
		return nil, err
	}

	tenantID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate tenant id: %w", err)
	}

	tenant = &models.Tenant{
		TenantID:  tenantID,
		PortalID:  info.HubID,
		Name:      tenantName(info),
		Domain:    info.HubDomain,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.tenants.Create(ctx, tenant); err != nil {
		if errors.Is(err, store.ErrTenantAlreadyExists) {
			log.Debug().Int64("hub_id", info.HubID).Msg("Tenant created by a concurrent login")
			return h.tenants.GetByPortalID(ctx, info.HubID)
		}
		return nil, err
	}

	log.Info().
		Str("tenant_id", tenant.TenantID.String()).
		Int64("hub_id", info.HubID).
		Msg("Created tenant")

	return tenant, nil
}

// upsertUser creates the user on first login, the tenant's first user becoming
// admin. The role of an existing user is never changed here.
func (h *HubSpot) upsertUser(ctx context.Context, tenant *models.Tenant, info *crm.TokenInfo, accessToken string) (*models.User, error) {
	now := h.now()
	var crmUserID string
	if info.UserID != 0 {
		crmUserID = strconv.FormatInt(info.UserID, 10)
	}

	user, err := h.users.GetByEmail(ctx, tenant.TenantID, info.User)
	switch {
	case err == nil:
		if crmUserID != "" {
			user.CRMUserID = crmUserID
		}
		user.LastLoginAt = &now
		user.UpdatedAt = now
		if user.OwnerID == "" {
			h.matchOwner(ctx, user, accessToken)
		}
		if err := h.users.Update(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	case !errors.Is(err, store.ErrUserNotFound):
		return nil, err
	}

	count, err := h.users.CountByTenant(ctx, tenant.TenantID)
	if err != nil {
		return nil, err
	}

	role := models.RoleSalesRep
	if count == 0 {
		role = models.RoleAdmin
	}

	userID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate user id: %w", err)
	}

	user = &models.User{
		UserID:      userID,
		TenantID:    tenant.TenantID,
		CRMUserID:   crmUserID,
		Email:       info.User,
		Active:      true,
		Role:        role,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastLoginAt: &now,
	}
	h.matchOwner(ctx, user, accessToken)

	if err := h.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrUserAlreadyExists) {
			return h.users.GetByEmail(ctx, tenant.TenantID, info.User)
		}
		return nil, err
	}

	log.Info().
		Str("tenant_id", tenant.TenantID.String()).
		Str("user_id", user.UserID.String()).
		Str("role", role).
		Msg("Created user")

	return user, nil
}

// matchOwner links the user to the CRM owner with the same email, falling
// back to the CRM user id when no email matches. Failure leaves the user
// unmatched until the next sync.
func (h *HubSpot) matchOwner(ctx context.Context, user *models.User, accessToken string) {
	owners, err := h.crm.ListOwners(ctx, accessToken)
	if err != nil {
		log.Warn().Err(err).Str("user_id", user.UserID.String()).Msg("Failed to list owners, leaving user unmatched")
		return
	}

	owner := findOwner(owners, user)
	if owner == nil {
		log.Debug().Str("user_id", user.UserID.String()).Msg("No CRM owner matches user")
		return
	}

	user.OwnerID = owner.ID
	if user.Name == "" {
		user.Name = owner.Name()
	}
}

func findOwner(owners []crm.Owner, user *models.User) *crm.Owner {
	if user.Email != "" {
		for i := range owners {
			if owners[i].Email != "" && strings.EqualFold(owners[i].Email, user.Email) {
				return &owners[i]
			}
		}
	}

	if user.CRMUserID == "" {
		return nil
	}
	for i := range owners {
		if owners[i].UserID != 0 && strconv.FormatInt(owners[i].UserID, 10) == user.CRMUserID {
			return &owners[i]
		}
	}
	return nil
}

func tenantName(info *crm.TokenInfo) string {
	if info.HubDomain != "" {
		return info.HubDomain
	}
	return "Portal " + strconv.FormatInt(info.HubID, 10)
}
