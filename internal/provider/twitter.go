package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/socialdeck/dashboard-server-go/internal/config"
	apperrors "github.com/socialdeck/dashboard-server-go/internal/errors"
	"github.com/socialdeck/dashboard-server-go/internal/model"
	"github.com/socialdeck/dashboard-server-go/internal/signature"
)

const twitterVideoChunkSize = 4 * 1024 * 1024

// TwitterPublisher posts tweets through the v2 API and uploads media through
// the v1.1 upload endpoint. Both are OAuth 1.0a signed with the application's
// credential set, not the user's OAuth 2.0 bearer token.
type TwitterPublisher struct {
	creds     signature.OAuth1Credentials
	apiURL    string
	uploadURL string
	http      *http.Client
}

func NewTwitterPublisher(creds signature.OAuth1Credentials) *TwitterPublisher {
	return &TwitterPublisher{
		creds:     creds,
		apiURL:    "https://api.twitter.com",
		uploadURL: "https://upload.twitter.com",
		http:      &http.Client{Timeout: config.ProviderCallTimeout},
	}
}

func (p *TwitterPublisher) Publish(ctx context.Context, conn *model.Connection, content Content) (*model.PublishResult, error) {
	if !p.creds.Complete() {
		return nil, apperrors.ProviderError(model.ProviderTwitter,
			fmt.Errorf("twitter OAuth 1.0a credentials are not configured"))
	}

	var mediaIDs []string
	if content.Media != nil {
		mediaID, err := p.uploadMedia(ctx, content.Media)
		if err != nil {
			return nil, err
		}
		mediaIDs = append(mediaIDs, mediaID)
	}

	return p.postTweet(ctx, content.Text, mediaIDs)
}

func (p *TwitterPublisher) postTweet(ctx context.Context, text string, mediaIDs []string) (*model.PublishResult, error) {
	payload := map[string]any{"text": text}
	if len(mediaIDs) > 0 {
		payload["media"] = map[string]any{"media_ids": mediaIDs}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Internal("marshal tweet payload: " + err.Error())
	}

	endpoint := p.apiURL + "/2/tweets"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Internal("create tweet request: " + err.Error())
	}
	req.Header.Set("Content-Type", "application/json")

	// JSON bodies contribute no parameters to the signature base string.
	auth, err := signature.SignOAuth1Request(p.creds, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, apperrors.Internal(err.Error())
	}
	req.Header.Set("Authorization", auth)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, apperrors.ProviderError(model.ProviderTwitter, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.ProviderError(model.ProviderTwitter, fmt.Errorf("read tweet response: %w", err))
	}

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, p.tweetError(resp.StatusCode, respBody)
	}

	var parsed struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.Data.ID == "" {
		return nil, apperrors.ProviderError(model.ProviderTwitter,
			fmt.Errorf("tweet response missing id: %s", string(respBody)))
	}

	return &model.PublishResult{
		ExternalID:  parsed.Data.ID,
		PublishedAt: time.Now().UTC(),
		Status:      model.PublishStatusPosted,
	}, nil
}

func (p *TwitterPublisher) tweetError(status int, body []byte) error {
	log.Error().
		Str("provider", model.ProviderTwitter).
		Int("status", status).
		Str("body", string(body)).
		Msg("tweet post failed")

	switch status {
	case http.StatusUnauthorized:
		return apperrors.Unauthorized("twitter rejected the request credentials")
	case http.StatusForbidden:
		if strings.Contains(strings.ToLower(string(body)), "duplicate content") {
			return apperrors.DuplicateContent(model.ProviderTwitter)
		}
		return apperrors.PermissionDenied("twitter denied the publish request")
	default:
		return apperrors.ProviderError(model.ProviderTwitter,
			fmt.Errorf("tweet post returned status %d: %s", status, string(body)))
	}
}

// uploadMedia pushes the attachment to the v1.1 upload endpoint and returns
// the media id to attach to the tweet. Images go up in one multipart request;
// videos use the chunked INIT/APPEND/FINALIZE sequence and wait for async
// processing to finish before the id is usable.
func (p *TwitterPublisher) uploadMedia(ctx context.Context, media *model.Media) (string, error) {
	if media.IsVideo() {
		return p.uploadVideo(ctx, media)
	}
	return p.uploadImage(ctx, media)
}

func (p *TwitterPublisher) uploadImage(ctx context.Context, media *model.Media) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("media", media.FileName)
	if err != nil {
		return "", apperrors.Internal("create media form: " + err.Error())
	}
	if _, err := part.Write(media.Bytes); err != nil {
		return "", apperrors.Internal("write media form: " + err.Error())
	}
	if err := w.Close(); err != nil {
		return "", apperrors.Internal("close media form: " + err.Error())
	}

	body, err := p.signedUpload(ctx, nil, &buf, w.FormDataContentType())
	if err != nil {
		return "", err
	}
	return mediaIDFrom(body)
}

func (p *TwitterPublisher) uploadVideo(ctx context.Context, media *model.Media) (string, error) {
	mediaID, err := p.videoInit(ctx, media)
	if err != nil {
		return "", err
	}

	for offset, segment := 0, 0; offset < len(media.Bytes); segment++ {
		end := offset + twitterVideoChunkSize
		if end > len(media.Bytes) {
			end = len(media.Bytes)
		}
		if err := p.videoAppend(ctx, mediaID, segment, media.Bytes[offset:end]); err != nil {
			return "", err
		}
		offset = end
	}

	state, err := p.videoFinalize(ctx, mediaID)
	if err != nil {
		return "", err
	}
	if err := p.awaitProcessing(ctx, mediaID, state); err != nil {
		return "", err
	}
	return mediaID, nil
}

func (p *TwitterPublisher) videoInit(ctx context.Context, media *model.Media) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("command", "INIT")
	_ = w.WriteField("media_type", media.MimeType)
	_ = w.WriteField("total_bytes", strconv.Itoa(len(media.Bytes)))
	_ = w.WriteField("media_category", "tweet_video")
	if err := w.Close(); err != nil {
		return "", apperrors.Internal("close INIT form: " + err.Error())
	}

	body, err := p.signedUpload(ctx, nil, &buf, w.FormDataContentType())
	if err != nil {
		return "", err
	}
	return mediaIDFrom(body)
}

func (p *TwitterPublisher) videoAppend(ctx context.Context, mediaID string, segment int, chunk []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("command", "APPEND")
	_ = w.WriteField("media_id", mediaID)
	_ = w.WriteField("segment_index", strconv.Itoa(segment))
	part, err := w.CreateFormFile("media", "chunk")
	if err != nil {
		return apperrors.Internal("create APPEND form: " + err.Error())
	}
	if _, err := part.Write(chunk); err != nil {
		return apperrors.Internal("write APPEND chunk: " + err.Error())
	}
	if err := w.Close(); err != nil {
		return apperrors.Internal("close APPEND form: " + err.Error())
	}

	_, err = p.signedUpload(ctx, nil, &buf, w.FormDataContentType())
	return err
}

// videoFinalize returns the processing state reported by FINALIZE. Small
// videos sometimes skip async processing entirely.
func (p *TwitterPublisher) videoFinalize(ctx context.Context, mediaID string) (*processingInfo, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("command", "FINALIZE")
	_ = w.WriteField("media_id", mediaID)
	if err := w.Close(); err != nil {
		return nil, apperrors.Internal("close FINALIZE form: " + err.Error())
	}

	body, err := p.signedUpload(ctx, nil, &buf, w.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		ProcessingInfo *processingInfo `json:"processing_info"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperrors.MediaUploadFailed(model.ProviderTwitter,
			fmt.Sprintf("decode FINALIZE response: %v", err))
	}
	return parsed.ProcessingInfo, nil
}

type processingInfo struct {
	State          string `json:"state"`
	CheckAfterSecs int    `json:"check_after_secs"`
	Error          struct {
		Message string `json:"message"`
	} `json:"error"`
}

// awaitProcessing polls the STATUS endpoint until the upload succeeds, fails,
// or the poll budget runs out. The wait between polls honors check_after_secs.
func (p *TwitterPublisher) awaitProcessing(ctx context.Context, mediaID string, info *processingInfo) error {
	deadline := time.Now().Add(config.MediaPollMaxWait)

	for attempt := 0; attempt < config.MediaPollMaxAttempts; attempt++ {
		if info == nil || info.State == "succeeded" {
			return nil
		}
		if info.State == "failed" {
			return apperrors.MediaUploadFailed(model.ProviderTwitter,
				"video processing failed: "+info.Error.Message)
		}
		if time.Now().After(deadline) {
			break
		}

		wait := time.Duration(info.CheckAfterSecs) * time.Second
		if wait > 0 {
			select {
			case <-ctx.Done():
				return apperrors.MediaUploadFailed(model.ProviderTwitter, "video processing cancelled: "+ctx.Err().Error())
			case <-time.After(wait):
			}
		}

		next, err := p.videoStatus(ctx, mediaID)
		if err != nil {
			return err
		}
		info = next
	}

	return apperrors.MediaUploadFailed(model.ProviderTwitter, "video processing did not complete in time")
}

func (p *TwitterPublisher) videoStatus(ctx context.Context, mediaID string) (*processingInfo, error) {
	params := map[string]string{"command": "STATUS", "media_id": mediaID}
	endpoint := p.uploadURL + "/1.1/media/upload.json"

	// The query string is derived from the same map that feeds the signature,
	// so the signed parameters and the sent parameters cannot drift.
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, apperrors.Internal("create STATUS request: " + err.Error())
	}

	// Query parameters participate in the base string; the signed URL must
	// not include them.
	auth, err := signature.SignOAuth1Request(p.creds, http.MethodGet, endpoint, params)
	if err != nil {
		return nil, apperrors.Internal(err.Error())
	}
	req.Header.Set("Authorization", auth)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, apperrors.MediaUploadFailed(model.ProviderTwitter, "STATUS request failed: "+err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.MediaUploadFailed(model.ProviderTwitter, "read STATUS response: "+err.Error())
	}
	if resp.StatusCode != http.StatusOK {
		log.Error().
			Str("provider", model.ProviderTwitter).
			Int("status", resp.StatusCode).
			Str("body", string(body)).
			Msg("media STATUS poll failed")
		return nil, apperrors.MediaUploadFailed(model.ProviderTwitter,
			fmt.Sprintf("STATUS returned %d", resp.StatusCode))
	}

	var parsed struct {
		ProcessingInfo *processingInfo `json:"processing_info"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperrors.MediaUploadFailed(model.ProviderTwitter, "decode STATUS response: "+err.Error())
	}
	if parsed.ProcessingInfo == nil {
		// No processing_info means processing is done.
		return &processingInfo{State: "succeeded"}, nil
	}
	return parsed.ProcessingInfo, nil
}

// signedUpload POSTs a multipart body to the upload endpoint. Multipart
// bodies contribute no parameters to the signature base string, so params is
// nil for every leg of the upload sequence.
func (p *TwitterPublisher) signedUpload(ctx context.Context, params map[string]string, body *bytes.Buffer, contentType string) ([]byte, error) {
	endpoint := p.uploadURL + "/1.1/media/upload.json"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, apperrors.Internal("create upload request: " + err.Error())
	}
	req.Header.Set("Content-Type", contentType)

	auth, err := signature.SignOAuth1Request(p.creds, http.MethodPost, endpoint, params)
	if err != nil {
		return nil, apperrors.Internal(err.Error())
	}
	req.Header.Set("Authorization", auth)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, apperrors.MediaUploadFailed(model.ProviderTwitter, "upload request failed: "+err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.MediaUploadFailed(model.ProviderTwitter, "read upload response: "+err.Error())
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().
			Str("provider", model.ProviderTwitter).
			Int("status", resp.StatusCode).
			Str("body", string(respBody)).
			Msg("media upload failed")
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, apperrors.Unauthorized("twitter rejected the upload credentials")
		}
		return nil, apperrors.MediaUploadFailed(model.ProviderTwitter,
			fmt.Sprintf("upload returned status %d: %s", resp.StatusCode, string(respBody)))
	}
	return respBody, nil
}

func mediaIDFrom(body []byte) (string, error) {
	var parsed struct {
		MediaIDString string `json:"media_id_string"`
		MediaID       int64  `json:"media_id"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", apperrors.MediaUploadFailed(model.ProviderTwitter, "decode upload response: "+err.Error())
	}
	if parsed.MediaIDString != "" {
		return parsed.MediaIDString, nil
	}
	if parsed.MediaID != 0 {
		return strconv.FormatInt(parsed.MediaID, 10), nil
	}
	return "", apperrors.MediaUploadFailed(model.ProviderTwitter, "upload response missing media id")
}
