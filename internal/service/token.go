package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/socialdeck/dashboard-server-go/internal/audit"
	"github.com/socialdeck/dashboard-server-go/internal/config"
	apperrors "github.com/socialdeck/dashboard-server-go/internal/errors"
	"github.com/socialdeck/dashboard-server-go/internal/metrics"
	"github.com/socialdeck/dashboard-server-go/internal/model"
	"github.com/socialdeck/dashboard-server-go/internal/provider"
	"github.com/socialdeck/dashboard-server-go/internal/repository"
)

// TokenService keeps stored access tokens usable: it refreshes tokens that
// are expired or about to expire, and downgrades connections that cannot be
// recovered.
type TokenService struct {
	cfg         *config.Config
	registry    *provider.Registry
	client      OAuthClient
	connections repository.ConnectionRepository
}

func NewTokenService(
	cfg *config.Config,
	registry *provider.Registry,
	client OAuthClient,
	connections repository.ConnectionRepository,
) *TokenService {
	return &TokenService{cfg: cfg, registry: registry, client: client, connections: connections}
}

// EnsureValidToken returns a connection whose access token is good for at
// least the refresh skew window. Exactly one refresh attempt is made; if it
// fails the connection is marked expired and the caller gets REAUTH_REQUIRED.
func (s *TokenService) EnsureValidToken(ctx context.Context, conn *model.Connection) (*model.Connection, error) {
	if conn.Status != model.ConnectionConnected {
		return nil, apperrors.ReauthRequired(conn.Provider)
	}
	if conn.ExpiresAt == nil || time.Until(*conn.ExpiresAt) > config.TokenRefreshSkew {
		return conn, nil
	}

	if conn.RefreshToken == nil || *conn.RefreshToken == "" {
		return nil, s.markExpired(ctx, conn, "token expired with no refresh token")
	}

	d, ok := s.registry.Get(conn.Provider)
	if !ok {
		return nil, apperrors.InvalidInput("provider", "unknown provider "+conn.Provider)
	}

	token, err := s.client.Refresh(ctx, d, clientCredentials(s.cfg, conn.Provider), *conn.RefreshToken)
	if err != nil {
		metrics.TokenRefresh(conn.Provider, metrics.ResultFailure)
		return nil, s.markExpired(ctx, conn, "refresh failed: "+err.Error())
	}

	// A provider that omits the refresh token in the response keeps the
	// old one valid; retain it.
	refreshToken := conn.RefreshToken
	if token.RefreshToken != "" {
		refreshToken = &token.RefreshToken
	}

	var expiresAt *time.Time
	if token.ExpiresIn > 0 {
		t := time.Now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	if err := s.connections.UpdateTokens(ctx, conn.ID, token.AccessToken, refreshToken, expiresAt); err != nil {
		return nil, apperrors.Database(err)
	}

	metrics.TokenRefresh(conn.Provider, metrics.ResultSuccess)
	audit.Log(ctx, audit.Event{Type: audit.EventTokenRefresh, UserID: conn.UserID, Provider: conn.Provider})

	refreshed := *conn
	refreshed.AccessToken = token.AccessToken
	refreshed.RefreshToken = refreshToken
	refreshed.ExpiresAt = expiresAt
	return &refreshed, nil
}

// markExpired records that the connection needs manual reconnection. The row
// survives so the dashboard can show it in the expired state.
func (s *TokenService) markExpired(ctx context.Context, conn *model.Connection, reason string) error {
	log.Warn().
		Str("provider", conn.Provider).
		Str("userId", conn.UserID).
		Str("reason", reason).
		Msg("marking connection expired")

	if err := s.connections.UpdateStatus(ctx, conn.ID, model.ConnectionExpired); err != nil {
		return apperrors.Database(err)
	}
	audit.Log(ctx, audit.Event{
		Type:     audit.EventTokenExpired,
		UserID:   conn.UserID,
		Provider: conn.Provider,
		Details:  map[string]interface{}{"reason": reason},
	})
	return apperrors.ReauthRequired(conn.Provider)
}

// EnsureScope verifies the connection carries the provider's publish scope.
// Checked before any network call so an under-scoped connection fails fast.
func EnsureScope(conn *model.Connection, d provider.Descriptor, reconnectURL string) error {
	if d.PublishScope == "" || conn.HasScope(d.PublishScope) {
		return nil
	}
	return apperrors.MissingScope(conn.Provider, d.PublishScope).
		WithDetails(map[string]string{"reconnectUrl": reconnectURL})
}
