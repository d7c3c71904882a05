package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/socialdeck/dashboard-server-go/internal/errors"
	"github.com/socialdeck/dashboard-server-go/internal/model"
	"github.com/socialdeck/dashboard-server-go/internal/provider"
)

type publishFixture struct {
	svc       *PublishService
	conns     *fakeConnectionRepo
	records   *fakePublishRepo
	publisher *fakePublisher
	client    *fakeOAuthClient
}

func newPublishFixture() *publishFixture {
	cfg := testConfig()
	registry := provider.DefaultRegistry()
	client := &fakeOAuthClient{}
	conns := newFakeConnectionRepo()
	records := &fakePublishRepo{}
	publisher := &fakePublisher{
		result: &model.PublishResult{ExternalID: "ext-1", PublishedAt: time.Now().UTC(), Status: model.PublishStatusPosted},
	}

	authflow := NewAuthFlowService(cfg, registry, client, newFakeAttemptStore(), conns)
	tokens := NewTokenService(cfg, registry, client, conns)
	publishers := map[string]provider.Publisher{
		model.ProviderTwitter:   publisher,
		model.ProviderLinkedIn:  publisher,
		model.ProviderInstagram: publisher,
	}
	return &publishFixture{
		svc:       NewPublishService(registry, publishers, tokens, authflow, conns, records),
		conns:     conns,
		records:   records,
		publisher: publisher,
		client:    client,
	}
}

func (f *publishFixture) seed(t *testing.T, scopes []string, expiresIn time.Duration, refreshToken *string) {
	t.Helper()
	var expiresAt *time.Time
	if expiresIn != 0 {
		ts := time.Now().UTC().Add(expiresIn)
		expiresAt = &ts
	}
	_, err := f.conns.Upsert(context.Background(), model.UpsertConnectionParams{
		UserID:       "user-1",
		Provider:     model.ProviderTwitter,
		AccessToken:  "at",
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
		Scopes:       scopes,
		ProfileID:    "tw-1",
	})
	require.NoError(t, err)
}

func TestPublish(t *testing.T) {
	t.Run("dispatches and records history", func(t *testing.T) {
		f := newPublishFixture()
		f.seed(t, []string{"tweet.read", "tweet.write"}, time.Hour, nil)

		record, err := f.svc.Publish(context.Background(), "user-1", model.ProviderTwitter, provider.Content{Text: "hello"})
		require.NoError(t, err)

		assert.Equal(t, "ext-1", record.ExternalID)
		assert.Equal(t, model.PublishStatusPosted, record.Status)
		assert.Equal(t, 1, f.publisher.calls)
		assert.Len(t, f.records.records, 1)
	})

	t.Run("empty content is rejected before anything else", func(t *testing.T) {
		f := newPublishFixture()
		_, err := f.svc.Publish(context.Background(), "user-1", model.ProviderTwitter, provider.Content{Text: "   "})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		f := newPublishFixture()
		_, err := f.svc.Publish(context.Background(), "user-1", "myspace", provider.Content{Text: "hi"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	})

	t.Run("missing connection yields NOT_FOUND with a reconnect url", func(t *testing.T) {
		f := newPublishFixture()
		_, err := f.svc.Publish(context.Background(), "user-1", model.ProviderTwitter, provider.Content{Text: "hi"})

		require.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
		appErr, _ := apperrors.AsAppError(err)
		details, ok := appErr.Details.(map[string]string)
		require.True(t, ok)
		assert.Equal(t, "https://api.example.com/api/connect/twitter", details["reconnectUrl"])
		assert.Zero(t, f.publisher.calls)
	})

	t.Run("missing scope fails before any refresh", func(t *testing.T) {
		f := newPublishFixture()
		// Expired token that would need a refresh, but the scope check runs first.
		f.seed(t, []string{"tweet.read"}, -time.Minute, strPtr("rt"))

		_, err := f.svc.Publish(context.Background(), "user-1", model.ProviderTwitter, provider.Content{Text: "hi"})

		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeMissingScope))
		assert.Zero(t, f.client.refreshCalls, "scope failure must not trigger a refresh")
		assert.Zero(t, f.publisher.calls)
	})

	t.Run("expired token refreshes before dispatch", func(t *testing.T) {
		f := newPublishFixture()
		f.seed(t, []string{"tweet.write"}, -time.Minute, strPtr("rt"))
		f.client.refreshResponse = &provider.TokenResponse{AccessToken: "fresh-at", ExpiresIn: 7200}

		_, err := f.svc.Publish(context.Background(), "user-1", model.ProviderTwitter, provider.Content{Text: "hi"})
		require.NoError(t, err)

		assert.Equal(t, 1, f.client.refreshCalls)
		require.NotNil(t, f.publisher.conn)
		assert.Equal(t, "fresh-at", f.publisher.conn.AccessToken, "dispatch must see the refreshed token")
	})

	t.Run("unrefreshable token yields REAUTH_REQUIRED without dispatch", func(t *testing.T) {
		f := newPublishFixture()
		f.seed(t, []string{"tweet.write"}, -time.Minute, nil)

		_, err := f.svc.Publish(context.Background(), "user-1", model.ProviderTwitter, provider.Content{Text: "hi"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeReauthRequired))
		assert.Zero(t, f.publisher.calls)
	})

	t.Run("publisher failure is passed through and not recorded", func(t *testing.T) {
		f := newPublishFixture()
		f.seed(t, []string{"tweet.write"}, time.Hour, nil)
		f.publisher.err = apperrors.DuplicateContent(model.ProviderTwitter)

		_, err := f.svc.Publish(context.Background(), "user-1", model.ProviderTwitter, provider.Content{Text: "hi"})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeDuplicateContent))
		assert.Empty(t, f.records.records)
	})

	t.Run("history record failure does not fail the publish", func(t *testing.T) {
		f := newPublishFixture()
		f.seed(t, []string{"tweet.write"}, time.Hour, nil)
		f.records.failure = assert.AnError

		record, err := f.svc.Publish(context.Background(), "user-1", model.ProviderTwitter, provider.Content{Text: "hi"})
		require.NoError(t, err)
		assert.Equal(t, "ext-1", record.ExternalID)
	})
}

func TestHistory(t *testing.T) {
	t.Run("returns records with a total count", func(t *testing.T) {
		f := newPublishFixture()
		f.seed(t, []string{"tweet.write"}, time.Hour, nil)

		for i := 0; i < 3; i++ {
			f.publisher.result = &model.PublishResult{
				ExternalID:  "ext-" + string(rune('a'+i)),
				PublishedAt: time.Now().UTC(),
				Status:      model.PublishStatusPosted,
			}
			_, err := f.svc.Publish(context.Background(), "user-1", model.ProviderTwitter, provider.Content{Text: "hi"})
			require.NoError(t, err)
		}

		records, total, err := f.svc.History(context.Background(), "user-1", model.ProviderTwitter, 2, 0)
		require.NoError(t, err)
		assert.Len(t, records, 2)
		assert.Equal(t, 3, total)
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		f := newPublishFixture()
		_, _, err := f.svc.History(context.Background(), "user-1", "myspace", 10, 0)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	})
}
