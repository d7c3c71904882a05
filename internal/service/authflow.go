package service

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/socialdeck/dashboard-server-go/internal/audit"
	"github.com/socialdeck/dashboard-server-go/internal/config"
	apperrors "github.com/socialdeck/dashboard-server-go/internal/errors"
	"github.com/socialdeck/dashboard-server-go/internal/metrics"
	"github.com/socialdeck/dashboard-server-go/internal/model"
	"github.com/socialdeck/dashboard-server-go/internal/provider"
	"github.com/socialdeck/dashboard-server-go/internal/repository"
	"github.com/socialdeck/dashboard-server-go/internal/signature"
)

// OAuthClient is the provider-facing surface the flow services need; the
// production implementation is provider.Client.
type OAuthClient interface {
	ExchangeCode(ctx context.Context, d provider.Descriptor, creds provider.ClientCredentials, code, redirectURI, verifier string) (*provider.TokenResponse, error)
	Refresh(ctx context.Context, d provider.Descriptor, creds provider.ClientCredentials, refreshToken string) (*provider.TokenResponse, error)
	FetchIdentity(ctx context.Context, d provider.Descriptor, accessToken string) (*provider.Identity, error)
}

// CallbackParams carries the query parameters of an OAuth callback.
type CallbackParams struct {
	Code             string
	State            string
	ErrorParam       string
	ErrorDescription string
}

// AuthFlowService runs the connect flow end to end: authorize URL
// construction, state bookkeeping, code exchange, identity fetch and
// connection persistence.
type AuthFlowService struct {
	cfg         *config.Config
	registry    *provider.Registry
	client      OAuthClient
	attempts    repository.AttemptStore
	connections repository.ConnectionRepository
}

func NewAuthFlowService(
	cfg *config.Config,
	registry *provider.Registry,
	client OAuthClient,
	attempts repository.AttemptStore,
	connections repository.ConnectionRepository,
) *AuthFlowService {
	return &AuthFlowService{
		cfg:         cfg,
		registry:    registry,
		client:      client,
		attempts:    attempts,
		connections: connections,
	}
}

// BeginAuthorization creates a one-shot authorization attempt and returns the
// provider authorize URL the browser should be sent to.
func (s *AuthFlowService) BeginAuthorization(ctx context.Context, userID, providerName string) (string, error) {
	d, ok := s.registry.Get(providerName)
	if !ok {
		return "", apperrors.InvalidInput("provider", "unknown provider "+providerName)
	}
	creds := clientCredentials(s.cfg, providerName)
	if creds.ID == "" {
		return "", apperrors.InvalidInput("provider", providerName+" is not configured")
	}

	state, err := signature.GenerateState()
	if err != nil {
		return "", apperrors.Internal("generate state: " + err.Error())
	}

	attempt := model.AuthorizationAttempt{
		UserID:    userID,
		Provider:  providerName,
		CreatedAt: time.Now().UTC(),
	}

	query := url.Values{
		"response_type": {"code"},
		"client_id":     {creds.ID},
		"redirect_uri":  {s.cfg.RedirectURI(providerName)},
		"scope":         {d.ScopeParam()},
		"state":         {state},
	}

	if d.UsesPKCE {
		pair, err := signature.GeneratePKCEPair()
		if err != nil {
			return "", apperrors.Internal("generate PKCE pair: " + err.Error())
		}
		attempt.PKCEVerifier = pair.Verifier
		query.Set("code_challenge", pair.Challenge)
		query.Set("code_challenge_method", "S256")
	}

	if err := s.attempts.Save(ctx, state, attempt, s.cfg.AttemptTTL()); err != nil {
		return "", apperrors.Internal("save authorization attempt: " + err.Error())
	}

	return d.AuthorizeURL + "?" + query.Encode(), nil
}

// CompleteAuthorization consumes the callback. The state is redeemed exactly
// once before anything else; every later failure leaves the attempt consumed,
// so retrying requires starting over.
func (s *AuthFlowService) CompleteAuthorization(ctx context.Context, params CallbackParams) (*model.Connection, error) {
	if params.ErrorParam != "" {
		detail := params.ErrorParam
		if params.ErrorDescription != "" {
			detail += ": " + params.ErrorDescription
		}
		// The provider names itself in the error redirect only through the
		// state; consume it so the attempt cannot linger.
		providerName := "provider"
		if attempt, err := s.attempts.Consume(ctx, params.State); err == nil && attempt != nil {
			providerName = attempt.Provider
		}
		metrics.AuthorizationFlow(providerName, metrics.ResultFailure)
		return nil, apperrors.ProviderDenied(providerName, detail)
	}
	if params.Code == "" {
		return nil, apperrors.MissingRequired("code")
	}
	if params.State == "" {
		return nil, apperrors.MissingRequired("state")
	}

	attempt, err := s.attempts.Consume(ctx, params.State)
	if err != nil {
		return nil, apperrors.Internal("consume authorization attempt: " + err.Error())
	}
	if attempt == nil {
		return nil, apperrors.StateMismatch()
	}

	d, ok := s.registry.Get(attempt.Provider)
	if !ok {
		return nil, apperrors.InvalidInput("provider", "unknown provider "+attempt.Provider)
	}
	creds := clientCredentials(s.cfg, attempt.Provider)

	token, err := s.client.ExchangeCode(ctx, d, creds, params.Code, s.cfg.RedirectURI(attempt.Provider), attempt.PKCEVerifier)
	if err != nil {
		metrics.AuthorizationFlow(attempt.Provider, metrics.ResultFailure)
		return nil, apperrors.TokenExchangeFailed(attempt.Provider, err)
	}

	identity, err := s.fetchIdentity(ctx, d, token)
	if err != nil {
		metrics.AuthorizationFlow(attempt.Provider, metrics.ResultFailure)
		return nil, err
	}

	scopes := token.GrantedScopes()
	if scopes == nil {
		// Providers that omit the granted set are trusted to have granted
		// what was requested.
		scopes = d.Scopes
	}

	var expiresAt *time.Time
	if token.ExpiresIn > 0 {
		t := time.Now().UTC().Add(time.Duration(token.ExpiresIn) * time.Second)
		expiresAt = &t
	}

	var refreshToken *string
	if token.RefreshToken != "" {
		refreshToken = &token.RefreshToken
	}
	var pictureURL *string
	if identity.PictureURL != "" {
		pictureURL = &identity.PictureURL
	}

	conn, err := s.connections.Upsert(ctx, model.UpsertConnectionParams{
		UserID:       attempt.UserID,
		Provider:     attempt.Provider,
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Scopes:       scopes,
		ProfileID:    identity.ProfileID,
		Username:     identity.Username,
		PictureURL:   pictureURL,
	})
	if err != nil {
		metrics.AuthorizationFlow(attempt.Provider, metrics.ResultFailure)
		return nil, apperrors.Database(err)
	}

	metrics.AuthorizationFlow(attempt.Provider, metrics.ResultSuccess)
	audit.Log(ctx, audit.Event{
		Type:     audit.EventConnectSuccess,
		UserID:   attempt.UserID,
		Provider: attempt.Provider,
		Details:  map[string]interface{}{"profile_id": identity.ProfileID},
	})
	log.Info().
		Str("provider", attempt.Provider).
		Str("userId", attempt.UserID).
		Str("profileId", identity.ProfileID).
		Msg("provider connection established")

	return conn, nil
}

func (s *AuthFlowService) fetchIdentity(ctx context.Context, d provider.Descriptor, token *provider.TokenResponse) (*provider.Identity, error) {
	identity, err := s.client.FetchIdentity(ctx, d, token.AccessToken)
	if err == nil {
		return identity, nil
	}
	// Instagram hands the profile id out with the token; a failed identity
	// fetch only costs the username.
	if d.Name == model.ProviderInstagram {
		if id := token.InstagramProfileID(); id != "" {
			log.Warn().Err(err).Msg("instagram identity fetch failed, using token profile id")
			return &provider.Identity{ProfileID: id}, nil
		}
	}
	return nil, apperrors.ProfileFetchFailed(d.Name, err)
}

// Disconnect removes the stored connection. Provider-side token revocation is
// out of scope; the user manages grants in the provider's own settings.
func (s *AuthFlowService) Disconnect(ctx context.Context, userID, providerName string) error {
	if _, ok := s.registry.Get(providerName); !ok {
		return apperrors.InvalidInput("provider", "unknown provider "+providerName)
	}
	deleted, err := s.connections.Delete(ctx, userID, providerName)
	if err != nil {
		return apperrors.Database(err)
	}
	if !deleted {
		return apperrors.NotFound("connection")
	}
	audit.Log(ctx, audit.Event{Type: audit.EventDisconnect, UserID: userID, Provider: providerName})
	return nil
}

// ListConnections returns the user's connections across all providers.
func (s *AuthFlowService) ListConnections(ctx context.Context, userID string) ([]model.Connection, error) {
	conns, err := s.connections.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return conns, nil
}

// ReconnectURL is where a client should send the user to repair a broken or
// under-scoped connection.
func (s *AuthFlowService) ReconnectURL(providerName string) string {
	return strings.TrimSuffix(s.cfg.AppBaseURL, "/") + "/api/connect/" + providerName
}

func clientCredentials(cfg *config.Config, providerName string) provider.ClientCredentials {
	switch providerName {
	case model.ProviderTwitter:
		return provider.ClientCredentials{ID: cfg.TwitterClientID, Secret: cfg.TwitterClientSecret}
	case model.ProviderLinkedIn:
		return provider.ClientCredentials{ID: cfg.LinkedInClientID, Secret: cfg.LinkedInClientSecret}
	case model.ProviderInstagram:
		return provider.ClientCredentials{ID: cfg.InstagramClientID, Secret: cfg.InstagramClientSecret}
	default:
		return provider.ClientCredentials{}
	}
}
