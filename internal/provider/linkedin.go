package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/socialdeck/dashboard-server-go/internal/config"
	apperrors "github.com/socialdeck/dashboard-server-go/internal/errors"
	"github.com/socialdeck/dashboard-server-go/internal/model"
)

// ugcPosts responses carrying this service error code mean the app
// registration lacks access to the versioned API, not that the member lacks
// permission. The legacy shares endpoint still works for those apps.
const linkedInNoVersionMarker = "ugcPosts.CREATE.NO_VERSION"

// LinkedInPublisher posts member shares. It tries the ugcPosts endpoint
// first and falls back to the legacy /v2/shares endpoint exactly once when
// LinkedIn reports the app cannot use the versioned API.
type LinkedInPublisher struct {
	baseURL string
	http    *http.Client
}

func NewLinkedInPublisher() *LinkedInPublisher {
	return &LinkedInPublisher{
		baseURL: "https://api.linkedin.com",
		http:    &http.Client{Timeout: config.ProviderCallTimeout},
	}
}

func (p *LinkedInPublisher) Publish(ctx context.Context, conn *model.Connection, content Content) (*model.PublishResult, error) {
	authorURN := "urn:li:person:" + cleanLinkedInProfileID(conn.ProfileID)

	result, err := p.postUGC(ctx, conn.AccessToken, authorURN, content.Text)
	if err == nil {
		return result, nil
	}
	if !apperrors.HasCode(err, apperrors.ErrCodePermissionDenied) || !isNoVersionError(err) {
		return nil, err
	}

	log.Warn().
		Str("provider", model.ProviderLinkedIn).
		Msg("ugcPosts rejected with NO_VERSION, falling back to legacy shares endpoint")

	result, sharesErr := p.postShare(ctx, conn.AccessToken, authorURN, content.Text)
	if sharesErr != nil {
		// Both endpoints refused; report a single permission failure.
		return nil, apperrors.PermissionDenied(
			"linkedin denied the publish request on both the ugcPosts and shares endpoints")
	}
	return result, nil
}

func (p *LinkedInPublisher) postUGC(ctx context.Context, accessToken, authorURN, text string) (*model.PublishResult, error) {
	payload := map[string]any{
		"author":         authorURN,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary":    map[string]any{"text": text},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}

	return p.post(ctx, p.baseURL+"/v2/ugcPosts", accessToken, payload)
}

func (p *LinkedInPublisher) postShare(ctx context.Context, accessToken, authorURN, text string) (*model.PublishResult, error) {
	payload := map[string]any{
		"owner": authorURN,
		"text":  map[string]any{"text": text},
	}

	return p.post(ctx, p.baseURL+"/v2/shares", accessToken, payload)
}

func (p *LinkedInPublisher) post(ctx context.Context, endpoint, accessToken string, payload map[string]any) (*model.PublishResult, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Internal("marshal linkedin payload: " + err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Internal("create linkedin request: " + err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	req.Header.Set("LinkedIn-Version", "202401")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, apperrors.ProviderError(model.ProviderLinkedIn, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ProviderError(model.ProviderLinkedIn, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, p.shareError(endpoint, resp.StatusCode, respBody)
	}

	externalID := resp.Header.Get("X-RestLi-Id")
	if externalID == "" {
		var parsed struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(respBody, &parsed); err == nil {
			externalID = parsed.ID
		}
	}
	if externalID == "" {
		return nil, apperrors.ProviderError(model.ProviderLinkedIn,
			fmt.Errorf("share response missing id: %s", string(respBody)))
	}

	return &model.PublishResult{
		ExternalID:  externalID,
		PublishedAt: time.Now().UTC(),
		Status:      model.PublishStatusPosted,
	}, nil
}

func (p *LinkedInPublisher) shareError(endpoint string, status int, body []byte) error {
	log.Error().
		Str("provider", model.ProviderLinkedIn).
		Str("endpoint", endpoint).
		Int("status", status).
		Str("body", string(body)).
		Msg("linkedin publish failed")

	bodyText := string(body)
	switch {
	case status == http.StatusUnauthorized || strings.Contains(bodyText, "REVOKED_ACCESS_TOKEN"):
		return apperrors.Unauthorized("linkedin rejected the access token")
	case status == http.StatusForbidden:
		return apperrors.PermissionDenied("linkedin denied the publish request: " + bodyText)
	default:
		return apperrors.ProviderError(model.ProviderLinkedIn,
			fmt.Errorf("publish returned status %d: %s", status, bodyText))
	}
}

func isNoVersionError(err error) bool {
	appErr, ok := apperrors.AsAppError(err)
	return ok && strings.Contains(appErr.Message, linkedInNoVersionMarker)
}

// cleanLinkedInProfileID strips the synthesized-identity prefix so a degraded
// profile id still produces a syntactically valid author URN.
func cleanLinkedInProfileID(profileID string) string {
	return strings.TrimPrefix(profileID, "linkedin_")
}
