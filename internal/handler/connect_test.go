package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/socialdeck/dashboard-server-go/internal/config"
	"github.com/socialdeck/dashboard-server-go/internal/middleware"
	"github.com/socialdeck/dashboard-server-go/internal/model"
	"github.com/socialdeck/dashboard-server-go/internal/provider"
	"github.com/socialdeck/dashboard-server-go/internal/service"
)

// Minimal in-memory doubles for wiring real services under the handlers.

type memAttempts struct {
	attempts map[string]model.AuthorizationAttempt
}

func (s *memAttempts) Save(_ context.Context, state string, attempt model.AuthorizationAttempt, _ time.Duration) error {
	s.attempts[state] = attempt
	return nil
}

func (s *memAttempts) Consume(_ context.Context, state string) (*model.AuthorizationAttempt, error) {
	attempt, ok := s.attempts[state]
	if !ok {
		return nil, nil
	}
	delete(s.attempts, state)
	return &attempt, nil
}

type memConnections struct {
	conns map[string]*model.Connection
}

func (r *memConnections) FindByUserAndProvider(_ context.Context, userID, providerName string) (*model.Connection, error) {
	conn := r.conns[userID+"/"+providerName]
	if conn == nil {
		return nil, nil
	}
	clone := *conn
	return &clone, nil
}

func (r *memConnections) ListByUser(_ context.Context, userID string) ([]model.Connection, error) {
	var out []model.Connection
	for _, conn := range r.conns {
		if conn.UserID == userID {
			out = append(out, *conn)
		}
	}
	return out, nil
}

func (r *memConnections) Upsert(_ context.Context, params model.UpsertConnectionParams) (*model.Connection, error) {
	conn := &model.Connection{
		ID:          params.UserID + "/" + params.Provider,
		UserID:      params.UserID,
		Provider:    params.Provider,
		AccessToken: params.AccessToken,
		Scopes:      params.Scopes,
		ProfileID:   params.ProfileID,
		Username:    params.Username,
		Status:      model.ConnectionConnected,
		ConnectedAt: time.Now().UTC(),
	}
	r.conns[conn.ID] = conn
	clone := *conn
	return &clone, nil
}

func (r *memConnections) UpdateTokens(_ context.Context, _, _ string, _ *string, _ *time.Time) error {
	return nil
}

func (r *memConnections) UpdateStatus(_ context.Context, _ string, _ model.ConnectionStatus) error {
	return nil
}

func (r *memConnections) Delete(_ context.Context, userID, providerName string) (bool, error) {
	key := userID + "/" + providerName
	if _, ok := r.conns[key]; !ok {
		return false, nil
	}
	delete(r.conns, key)
	return true, nil
}

func (r *memConnections) MarkExpired(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

type stubOAuthClient struct {
	token    *provider.TokenResponse
	identity *provider.Identity
	err      error
}

func (c *stubOAuthClient) ExchangeCode(context.Context, provider.Descriptor, provider.ClientCredentials, string, string, string) (*provider.TokenResponse, error) {
	return c.token, c.err
}

func (c *stubOAuthClient) Refresh(context.Context, provider.Descriptor, provider.ClientCredentials, string) (*provider.TokenResponse, error) {
	return c.token, c.err
}

func (c *stubOAuthClient) FetchIdentity(context.Context, provider.Descriptor, string) (*provider.Identity, error) {
	return c.identity, nil
}

func connectFixture(client service.OAuthClient) (*ConnectHandler, *memAttempts, *memConnections) {
	cfg := &config.Config{
		AppBaseURL:          "https://api.example.com",
		DashboardURL:        "https://app.example.com",
		TwitterClientID:     "tw-id",
		TwitterClientSecret: "tw-secret",
		AttemptTTLSeconds:   600,
	}
	attempts := &memAttempts{attempts: make(map[string]model.AuthorizationAttempt)}
	conns := &memConnections{conns: make(map[string]*model.Connection)}
	authflow := service.NewAuthFlowService(cfg, provider.DefaultRegistry(), client, attempts, conns)
	return NewConnectHandler(authflow, cfg.SettingsURL()), attempts, conns
}

func authedRequest(method, target string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	user := &model.User{ID: "user-1", Email: "u@example.com"}
	return r.WithContext(context.WithValue(r.Context(), middleware.UserContextKey, user))
}

func newConnectRouter(h *ConnectHandler) chi.Router {
	r := chi.NewRouter()
	r.Post("/api/connect/{provider}", h.Begin)
	r.Get("/api/connect/{provider}/callback", h.Callback)
	r.Delete("/api/connect/{provider}", h.Disconnect)
	r.Get("/api/connections", h.List)
	return r
}

func TestConnectBegin(t *testing.T) {
	t.Run("returns the authorize url", func(t *testing.T) {
		h, _, _ := connectFixture(&stubOAuthClient{})
		router := newConnectRouter(h)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/connect/twitter"))

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, strings.HasPrefix(body["authorizeUrl"], "https://twitter.com/i/oauth2/authorize?"))
	})

	t.Run("unknown provider is a 400", func(t *testing.T) {
		h, _, _ := connectFixture(&stubOAuthClient{})
		router := newConnectRouter(h)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/connect/myspace"))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestConnectCallback(t *testing.T) {
	begin := func(t *testing.T, h *ConnectHandler, router chi.Router) string {
		t.Helper()
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodPost, "/api/connect/twitter"))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		parsed, err := url.Parse(body["authorizeUrl"])
		require.NoError(t, err)
		return parsed.Query().Get("state")
	}

	t.Run("success redirects to settings with the connected provider", func(t *testing.T) {
		h, _, conns := connectFixture(&stubOAuthClient{
			token:    &provider.TokenResponse{AccessToken: "at", Scope: "tweet.read tweet.write users.read offline.access"},
			identity: &provider.Identity{ProfileID: "tw-1", Username: "jdoe"},
		})
		router := newConnectRouter(h)
		state := begin(t, h, router)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/connect/twitter/callback?code=abc&state="+state, nil))

		require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		location, err := url.Parse(rec.Header().Get("Location"))
		require.NoError(t, err)
		assert.Equal(t, "https://app.example.com/dashboard/settings", location.Scheme+"://"+location.Host+location.Path)
		assert.Equal(t, "twitter", location.Query().Get("connected"))
		assert.Equal(t, "jdoe", location.Query().Get("username"))

		conn, _ := conns.FindByUserAndProvider(context.Background(), "user-1", "twitter")
		require.NotNil(t, conn)
	})

	t.Run("invalid state redirects with STATE_MISMATCH", func(t *testing.T) {
		h, _, _ := connectFixture(&stubOAuthClient{})
		router := newConnectRouter(h)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/connect/twitter/callback?code=abc&state=bogus", nil))

		require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		location, _ := url.Parse(rec.Header().Get("Location"))
		assert.Equal(t, "STATE_MISMATCH", location.Query().Get("error"))
	})

	t.Run("provider denial redirects with PROVIDER_DENIED", func(t *testing.T) {
		h, _, _ := connectFixture(&stubOAuthClient{})
		router := newConnectRouter(h)
		state := begin(t, h, router)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
			"/api/connect/twitter/callback?error=access_denied&state="+state, nil))

		require.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		location, _ := url.Parse(rec.Header().Get("Location"))
		assert.Equal(t, "PROVIDER_DENIED", location.Query().Get("error"))
	})
}

func TestConnectDisconnectAndList(t *testing.T) {
	t.Run("disconnect removes the connection", func(t *testing.T) {
		h, _, conns := connectFixture(&stubOAuthClient{})
		conns.conns["user-1/twitter"] = &model.Connection{
			ID: "user-1/twitter", UserID: "user-1", Provider: "twitter", Status: model.ConnectionConnected,
		}
		router := newConnectRouter(h)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/connect/twitter"))
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodDelete, "/api/connect/twitter"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list returns the user's connections without tokens", func(t *testing.T) {
		h, _, conns := connectFixture(&stubOAuthClient{})
		conns.conns["user-1/twitter"] = &model.Connection{
			ID: "user-1/twitter", UserID: "user-1", Provider: "twitter",
			AccessToken: "secret-token", Username: "jdoe", Status: model.ConnectionConnected,
		}
		router := newConnectRouter(h)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, authedRequest(http.MethodGet, "/api/connections"))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"jdoe"`)
		assert.NotContains(t, rec.Body.String(), "secret-token", "tokens must never serialize")
	})
}
