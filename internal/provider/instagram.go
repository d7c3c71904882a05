package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/socialdeck/dashboard-server-go/internal/config"
	apperrors "github.com/socialdeck/dashboard-server-go/internal/errors"
	"github.com/socialdeck/dashboard-server-go/internal/model"
)

// InstagramPublisher posts through the graph API's two-step container flow:
// create a media container, then publish it. Instagram has no text-only
// posts, so media is mandatory.
type InstagramPublisher struct {
	baseURL string
	http    *http.Client
}

func NewInstagramPublisher() *InstagramPublisher {
	return &InstagramPublisher{
		baseURL: "https://graph.instagram.com",
		http:    &http.Client{Timeout: config.ProviderCallTimeout},
	}
}

func (p *InstagramPublisher) Publish(ctx context.Context, conn *model.Connection, content Content) (*model.PublishResult, error) {
	if content.Media == nil {
		return nil, apperrors.MissingRequired("media")
	}

	containerID, err := p.createContainer(ctx, conn.AccessToken, content)
	if err != nil {
		return nil, err
	}
	return p.publishContainer(ctx, conn.AccessToken, containerID)
}

func (p *InstagramPublisher) createContainer(ctx context.Context, accessToken string, content Content) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("access_token", accessToken)
	if content.Text != "" {
		_ = w.WriteField("caption", content.Text)
	}
	if content.Media.IsVideo() {
		_ = w.WriteField("media_type", "VIDEO")
	}
	part, err := w.CreateFormFile("media", content.Media.FileName)
	if err != nil {
		return "", apperrors.Internal("create container form: " + err.Error())
	}
	if _, err := part.Write(content.Media.Bytes); err != nil {
		return "", apperrors.Internal("write container media: " + err.Error())
	}
	if err := w.Close(); err != nil {
		return "", apperrors.Internal("close container form: " + err.Error())
	}

	body, err := p.post(ctx, p.baseURL+"/me/media", &buf, w.FormDataContentType())
	if err != nil {
		return "", err
	}
	id, err := instagramIDFrom(body)
	if err != nil {
		return "", apperrors.MediaUploadFailed(model.ProviderInstagram, "container response missing id")
	}
	return id, nil
}

func (p *InstagramPublisher) publishContainer(ctx context.Context, accessToken, containerID string) (*model.PublishResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("access_token", accessToken)
	_ = w.WriteField("creation_id", containerID)
	if err := w.Close(); err != nil {
		return nil, apperrors.Internal("close publish form: " + err.Error())
	}

	body, err := p.post(ctx, p.baseURL+"/me/media_publish", &buf, w.FormDataContentType())
	if err != nil {
		return nil, err
	}
	id, err := instagramIDFrom(body)
	if err != nil {
		return nil, apperrors.ProviderError(model.ProviderInstagram,
			fmt.Errorf("publish response missing id: %s", string(body)))
	}

	return &model.PublishResult{
		ExternalID:  id,
		PublishedAt: time.Now().UTC(),
		Status:      model.PublishStatusPosted,
	}, nil
}

func (p *InstagramPublisher) post(ctx context.Context, endpoint string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, apperrors.Internal("create instagram request: " + err.Error())
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, apperrors.ProviderError(model.ProviderInstagram, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ProviderError(model.ProviderInstagram, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Str("provider", model.ProviderInstagram).
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("instagram request failed")

		if strings.Contains(string(respBody), "OAuthException") {
			return nil, apperrors.PermissionDenied("instagram rejected the access token or permissions")
		}
		return nil, apperrors.ProviderError(model.ProviderInstagram,
			fmt.Errorf("request returned status %d: %s", resp.StatusCode, string(respBody)))
	}
	return respBody, nil
}

func instagramIDFrom(body []byte) (string, error) {
	var parsed struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", err
	}
	if parsed.ID == "" {
		return "", fmt.Errorf("missing id")
	}
	return parsed.ID, nil
}
