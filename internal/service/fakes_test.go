package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/socialdeck/dashboard-server-go/internal/config"
	"github.com/socialdeck/dashboard-server-go/internal/model"
	"github.com/socialdeck/dashboard-server-go/internal/provider"
)

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts map[string]model.AuthorizationAttempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: make(map[string]model.AuthorizationAttempt)}
}

func (s *fakeAttemptStore) Save(_ context.Context, state string, attempt model.AuthorizationAttempt, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[state] = attempt
	return nil
}

func (s *fakeAttemptStore) Consume(_ context.Context, state string) (*model.AuthorizationAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt, ok := s.attempts[state]
	if !ok {
		return nil, nil
	}
	delete(s.attempts, state)
	return &attempt, nil
}

type fakeConnectionRepo struct {
	mu    sync.Mutex
	conns map[string]*model.Connection // keyed by userID+"/"+provider
}

func newFakeConnectionRepo() *fakeConnectionRepo {
	return &fakeConnectionRepo{conns: make(map[string]*model.Connection)}
}

func connKey(userID, provider string) string { return userID + "/" + provider }

func (r *fakeConnectionRepo) FindByUserAndProvider(_ context.Context, userID, provider string) (*model.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[connKey(userID, provider)]
	if !ok {
		return nil, nil
	}
	clone := *conn
	return &clone, nil
}

func (r *fakeConnectionRepo) ListByUser(_ context.Context, userID string) ([]model.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Connection
	for _, conn := range r.conns {
		if conn.UserID == userID {
			out = append(out, *conn)
		}
	}
	return out, nil
}

func (r *fakeConnectionRepo) Upsert(_ context.Context, params model.UpsertConnectionParams) (*model.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn := &model.Connection{
		ID:           connKey(params.UserID, params.Provider),
		UserID:       params.UserID,
		Provider:     params.Provider,
		AccessToken:  params.AccessToken,
		RefreshToken: params.RefreshToken,
		ExpiresAt:    params.ExpiresAt,
		Scopes:       params.Scopes,
		ProfileID:    params.ProfileID,
		Username:     params.Username,
		PictureURL:   params.PictureURL,
		Status:       model.ConnectionConnected,
		ConnectedAt:  time.Now().UTC(),
	}
	r.conns[conn.ID] = conn
	clone := *conn
	return &clone, nil
}

func (r *fakeConnectionRepo) UpdateTokens(_ context.Context, id, accessToken string, refreshToken *string, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.conns {
		if conn.ID == id {
			conn.AccessToken = accessToken
			conn.RefreshToken = refreshToken
			conn.ExpiresAt = expiresAt
			conn.Status = model.ConnectionConnected
			return nil
		}
	}
	return errors.New("connection not found")
}

func (r *fakeConnectionRepo) UpdateStatus(_ context.Context, id string, status model.ConnectionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.conns {
		if conn.ID == id {
			conn.Status = status
			return nil
		}
	}
	return errors.New("connection not found")
}

func (r *fakeConnectionRepo) Delete(_ context.Context, userID, provider string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := connKey(userID, provider)
	if _, ok := r.conns[key]; !ok {
		return false, nil
	}
	delete(r.conns, key)
	return true, nil
}

func (r *fakeConnectionRepo) MarkExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, conn := range r.conns {
		if conn.Status == model.ConnectionConnected &&
			conn.ExpiresAt != nil && conn.ExpiresAt.Before(now) && conn.RefreshToken == nil {
			conn.Status = model.ConnectionExpired
			n++
		}
	}
	return n, nil
}

type fakePublishRepo struct {
	mu      sync.Mutex
	records []model.PublishRecord
	failure error
}

func (r *fakePublishRepo) Create(_ context.Context, params model.CreatePublishRecordParams) (*model.PublishRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure != nil {
		return nil, r.failure
	}
	record := model.PublishRecord{
		ID:          "rec-" + params.ExternalID,
		UserID:      params.UserID,
		Provider:    params.Provider,
		ExternalID:  params.ExternalID,
		Status:      params.Status,
		PublishedAt: params.PublishedAt,
	}
	r.records = append(r.records, record)
	return &record, nil
}

func (r *fakePublishRepo) ListByUserAndProvider(_ context.Context, userID, provider string, limit, offset int) ([]model.PublishRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.PublishRecord
	for _, rec := range r.records {
		if rec.UserID == userID && rec.Provider == provider {
			out = append(out, rec)
		}
	}
	if offset > len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakePublishRepo) CountByUserAndProvider(_ context.Context, userID, provider string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, rec := range r.records {
		if rec.UserID == userID && rec.Provider == provider {
			count++
		}
	}
	return count, nil
}

type fakeOAuthClient struct {
	exchangeResponse *provider.TokenResponse
	exchangeErr      error
	refreshResponse  *provider.TokenResponse
	refreshErr       error
	identity         *provider.Identity
	identityErr      error

	exchangeCalls int
	refreshCalls  int
	lastVerifier  string
	lastRefresh   string
}

func (c *fakeOAuthClient) ExchangeCode(_ context.Context, _ provider.Descriptor, _ provider.ClientCredentials, _, _, verifier string) (*provider.TokenResponse, error) {
	c.exchangeCalls++
	c.lastVerifier = verifier
	return c.exchangeResponse, c.exchangeErr
}

func (c *fakeOAuthClient) Refresh(_ context.Context, _ provider.Descriptor, _ provider.ClientCredentials, refreshToken string) (*provider.TokenResponse, error) {
	c.refreshCalls++
	c.lastRefresh = refreshToken
	return c.refreshResponse, c.refreshErr
}

func (c *fakeOAuthClient) FetchIdentity(_ context.Context, _ provider.Descriptor, _ string) (*provider.Identity, error) {
	return c.identity, c.identityErr
}

type fakePublisher struct {
	result *model.PublishResult
	err    error
	calls  int
	conn   *model.Connection
}

func (p *fakePublisher) Publish(_ context.Context, conn *model.Connection, _ provider.Content) (*model.PublishResult, error) {
	p.calls++
	p.conn = conn
	return p.result, p.err
}

func testConfig() *config.Config {
	return &config.Config{
		AppBaseURL:           "https://api.example.com",
		DashboardURL:         "https://app.example.com",
		TwitterClientID:      "tw-id",
		TwitterClientSecret:  "tw-secret",
		LinkedInClientID:     "li-id",
		LinkedInClientSecret: "li-secret",
		InstagramClientID:    "ig-id",
		AttemptTTLSeconds:    600,
	}
}
