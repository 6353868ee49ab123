package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/wolfeidau/salesboard/internal/crm"
	"github.com/wolfeidau/salesboard/internal/crmsync"
	"github.com/wolfeidau/salesboard/internal/leaderboard"
	"github.com/wolfeidau/salesboard/internal/models"
	"github.com/wolfeidau/salesboard/internal/session"
	"github.com/wolfeidau/salesboard/internal/store"
	"github.com/wolfeidau/salesboard/internal/store/memory"
	"github.com/wolfeidau/salesboard/internal/tokens"
)

type mockBoards struct {
	mock.Mock
}

func (m *mockBoards) DealLeaderboard(ctx context.Context, q leaderboard.Query) (*leaderboard.Board, error) {
	args := m.Called(q)
	board, _ := args.Get(0).(*leaderboard.Board)
	return board, args.Error(1)
}

func (m *mockBoards) ActivityLeaderboard(ctx context.Context, q leaderboard.Query) (*leaderboard.Board, error) {
	args := m.Called(q)
	board, _ := args.Get(0).(*leaderboard.Board)
	return board, args.Error(1)
}

type mockSyncer struct {
	mock.Mock
}

func (m *mockSyncer) Run(ctx context.Context, tenantID uuid.UUID, window crm.Window) (*crmsync.Report, error) {
	args := m.Called(tenantID, window)
	report, _ := args.Get(0).(*crmsync.Report)
	return report, args.Error(1)
}

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

type fixture struct {
	handler http.Handler
	stores  store.Stores
	signer  *session.Signer
	keys    *session.KeyExchanger
	boards  *mockBoards
	syncer  *mockSyncer
	admin   *models.User
	rep     *models.User
}

func newFixture(t *testing.T, health store.Pinger) *fixture {
	t.Helper()
	ctx := context.Background()

	stores := memory.NewStores()
	signer, err := session.NewSigner([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)

	f := &fixture{
		stores: stores,
		signer: signer,
		keys:   session.NewKeyExchanger(stores.SessionKeys, 0),
		boards: &mockBoards{},
		syncer: &mockSyncer{},
	}

	tenantID := uuid.New()
	f.admin = &models.User{UserID: uuid.New(), TenantID: tenantID, OwnerID: "101", Email: "ada@acme.test", Name: "Ada", Active: true, Role: models.RoleAdmin}
	f.rep = &models.User{UserID: uuid.New(), TenantID: tenantID, OwnerID: "102", Email: "grace@acme.test", Name: "Grace", Active: true, Role: models.RoleSalesRep}
	require.NoError(t, stores.Users.Create(ctx, f.admin))
	require.NoError(t, stores.Users.Create(ctx, f.rep))

	h, err := NewHandler(Deps{
		Validator: session.NewValidator(signer, stores.Users),
		Keys:      f.keys,
		Boards:    f.boards,
		Syncer:    f.syncer,
		Teams:     stores.Teams,
		Health:    health,
	})
	require.NoError(t, err)
	f.handler = h.Routes()

	return f
}

func (f *fixture) credential(t *testing.T, u *models.User) string {
	t.Helper()
	credential, _, err := f.signer.Sign(u)
	require.NoError(t, err)
	return credential
}

func (f *fixture) do(req *http.Request, credential string) *httptest.ResponseRecorder {
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestSessionHandler(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("anonymous", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/session", nil), "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
	})

	t.Run("garbage credential", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodPost, "/api/session", nil), "not-a-token")
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"authenticated":false}`, rec.Body.String())
	})

	t.Run("authenticated", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/session", nil), f.credential(t, f.rep))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp sessionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.True(t, resp.Authenticated)
		require.Equal(t, f.rep.UserID, resp.User.UserID)
		require.Equal(t, models.RoleSalesRep, resp.User.Role)
		require.NotNil(t, resp.ExpiresAt)
		require.Empty(t, resp.SessionToken)
	})
}

func TestExchangeHandler(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	credential := f.credential(t, f.admin)
	key, err := f.keys.Issue(ctx, credential, "203.0.113.9")
	require.NoError(t, err)

	rec := f.do(httptest.NewRequest(http.MethodPost, "/api/session/exchange", strings.NewReader(`{"session_key":"`+key+`"}`)), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, credential, rec.Header().Get(session.HeaderName))

	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Authenticated)
	require.Equal(t, credential, resp.SessionToken)
	require.Equal(t, f.admin.UserID, resp.User.UserID)

	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	require.Equal(t, credential, cookie.Value)
	require.True(t, cookie.HttpOnly)

	// second redemption of the same key
	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/session/exchange", strings.NewReader(`{"session_key":"`+key+`"}`)), "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, KindAuth, decodeError(t, rec).Kind)

	t.Run("missing key", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodPost, "/api/session/exchange", strings.NewReader(`{}`)), "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
		require.Equal(t, KindValidation, decodeError(t, rec).Kind)
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodPost, "/api/session/exchange", strings.NewReader(`{"session_key":`)), "")
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLeaderboardHandlers(t *testing.T) {
	f := newFixture(t, nil)
	credential := f.credential(t, f.rep)
	teamID := uuid.New()

	board := &leaderboard.Board{
		Kind: leaderboard.KindDeals,
		FullList: []leaderboard.Entry{
			{Rank: 1, UserID: f.admin.UserID, Name: "Ada", Score: 500},
			{Rank: 2, UserID: f.rep.UserID, Name: "Grace", Score: 300},
		},
		TotalEntries: 2,
	}

	f.boards.On("DealLeaderboard", leaderboard.Query{
		TenantID: f.rep.TenantID,
		TeamID:   &teamID,
		WonOnly:  true,
	}).Return(board, nil).Once()

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/leaderboards/deals?won_only=true&team_id="+teamID.String(), nil), credential)
	require.Equal(t, http.StatusOK, rec.Code)

	var got leaderboard.Board
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got.FullList, 2)
	require.NotNil(t, got.Summary.Me)
	require.Equal(t, f.rep.UserID, got.Summary.Me.UserID)

	f.boards.On("ActivityLeaderboard", leaderboard.Query{
		TenantID:        f.rep.TenantID,
		CompareLastWeek: true,
		IncludeInactive: true,
	}).Return(&leaderboard.Board{Kind: leaderboard.KindActivity, FullList: []leaderboard.Entry{}}, nil).Once()

	body := `{"tenant_id":"` + f.rep.TenantID.String() + `","compare_last_week":true,"include_inactive":true}`
	rec = f.do(httptest.NewRequest(http.MethodPost, "/api/leaderboards/activity", strings.NewReader(body)), credential)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"full_list":[]`)

	f.boards.AssertExpectations(t)
}

func TestLeaderboardHandlerRejections(t *testing.T) {
	f := newFixture(t, nil)
	credential := f.credential(t, f.rep)

	tests := []struct {
		name       string
		target     string
		credential string
		wantStatus int
		wantKind   Kind
	}{
		{name: "no session", target: "/api/leaderboards/deals", wantStatus: http.StatusUnauthorized, wantKind: KindAuth},
		{name: "other tenant", target: "/api/leaderboards/deals?tenant_id=" + uuid.NewString(), credential: credential, wantStatus: http.StatusUnauthorized, wantKind: KindAuth},
		{name: "bad tenant id", target: "/api/leaderboards/deals?tenant_id=acme", credential: credential, wantStatus: http.StatusBadRequest, wantKind: KindValidation},
		{name: "bad team id", target: "/api/leaderboards/activity?team_id=42", credential: credential, wantStatus: http.StatusBadRequest, wantKind: KindValidation},
		{name: "bad flag", target: "/api/leaderboards/deals?won_only=maybe", credential: credential, wantStatus: http.StatusBadRequest, wantKind: KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(httptest.NewRequest(http.MethodGet, tt.target, nil), tt.credential)
			require.Equal(t, tt.wantStatus, rec.Code)
			require.Equal(t, tt.wantKind, decodeError(t, rec).Kind)
		})
	}

	f.boards.AssertNotCalled(t, "DealLeaderboard", mock.Anything)
	f.boards.AssertNotCalled(t, "ActivityLeaderboard", mock.Anything)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   Kind
	}{
		{name: "team not found", err: store.ErrTeamNotFound, wantStatus: http.StatusNotFound, wantKind: KindNotFound},
		{name: "no token", err: tokens.ErrNoTokenFound, wantStatus: http.StatusNotFound, wantKind: KindNotFound},
		{name: "refresh failed", err: tokens.ErrRefreshFailed, wantStatus: http.StatusUnauthorized, wantKind: KindAuth},
		{name: "rate limited", err: crm.ErrUpstreamRateLimited, wantStatus: http.StatusTooManyRequests, wantKind: KindUpstreamRateLimited},
		{name: "upstream", err: crm.ErrUpstream, wantStatus: http.StatusBadGateway, wantKind: KindUpstream},
		{name: "shape", err: crm.ErrUnrecognizedShape, wantStatus: http.StatusBadGateway, wantKind: KindUpstream},
		{name: "unknown", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantKind: KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.boards.On("DealLeaderboard", mock.Anything).Return(nil, tt.err)

			rec := f.do(httptest.NewRequest(http.MethodGet, "/api/leaderboards/deals", nil), f.credential(t, f.rep))
			require.Equal(t, tt.wantStatus, rec.Code)

			detail := decodeError(t, rec)
			require.Equal(t, tt.wantKind, detail.Kind)
			require.NotEmpty(t, detail.Message)
			require.NotContains(t, detail.Message, "boom")
		})
	}
}

func TestTeamsHandler(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	team := &models.Team{
		TeamID:    uuid.New(),
		TenantID:  f.rep.TenantID,
		Name:      "Closers",
		MemberIDs: []uuid.UUID{f.rep.UserID},
	}
	require.NoError(t, f.stores.Teams.Create(ctx, team))
	require.NoError(t, f.stores.Teams.Create(ctx, &models.Team{TeamID: uuid.New(), TenantID: f.rep.TenantID, Name: "Empty"}))

	rec := f.do(httptest.NewRequest(http.MethodGet, "/api/teams", nil), f.credential(t, f.rep))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp teamsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Teams, 2)
	require.Contains(t, rec.Body.String(), `"member_ids":[]`)
}

func TestSyncHandler(t *testing.T) {
	f := newFixture(t, nil)

	t.Run("sales rep is forbidden", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodPost, "/api/sync", nil), f.credential(t, f.rep))
		require.Equal(t, http.StatusForbidden, rec.Code)
		require.Equal(t, KindForbidden, decodeError(t, rec).Kind)
	})

	t.Run("admin runs sync", func(t *testing.T) {
		since := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		f.syncer.On("Run", f.admin.TenantID, crm.Window{Start: since}).
			Return(&crmsync.Report{TenantID: f.admin.TenantID, DealsCreated: 3}, nil).Once()

		rec := f.do(httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(`{"since":"2024-01-01"}`)), f.credential(t, f.admin))
		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), `"deals_created":3`)
	})

	t.Run("bad since", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodPost, "/api/sync", strings.NewReader(`{"since":"last tuesday"}`)), f.credential(t, f.admin))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get is not routed", func(t *testing.T) {
		rec := f.do(httptest.NewRequest(http.MethodGet, "/api/sync", nil), f.credential(t, f.admin))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})

	f.syncer.AssertExpectations(t)
}

func TestOptionsHandler(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(httptest.NewRequest(http.MethodOptions, "/api/leaderboards/deals", nil), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestHealthHandler(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		f := newFixture(t, nil)
		rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
		require.Equal(t, http.StatusOK, rec.Code)
		require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		f := newFixture(t, pinger{err: errors.New("connection refused")})
		rec := f.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}
