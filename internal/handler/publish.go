package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/socialdeck/dashboard-server-go/internal/errors"
	"github.com/socialdeck/dashboard-server-go/internal/middleware"
	"github.com/socialdeck/dashboard-server-go/internal/model"
	"github.com/socialdeck/dashboard-server-go/internal/provider"
	"github.com/socialdeck/dashboard-server-go/internal/service"
)

type PublishHandler struct {
	publish *service.PublishService
}

func NewPublishHandler(publish *service.PublishService) *PublishHandler {
	return &PublishHandler{publish: publish}
}

// Publish accepts either a JSON body (text-only posts) or multipart form data
// with a text field and an optional media file.
func (h *PublishHandler) Publish(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	providerName := chi.URLParam(r, "provider")

	content, err := parsePublishRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	record, err := h.publish.Publish(r.Context(), user.ID, providerName, content)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (h *PublishHandler) History(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	providerName := chi.URLParam(r, "provider")
	page := ParsePagination(r)

	records, total, err := h.publish.History(r.Context(), user.ID, providerName, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if records == nil {
		records = []model.PublishRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"total":   total,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

func parsePublishRequest(r *http.Request) (provider.Content, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "application/json") {
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			return provider.Content{}, apperrors.InvalidInput("body", "malformed JSON")
		}
		return provider.Content{Text: body.Text}, nil
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return provider.Content{}, apperrors.InvalidInput("body", "expected JSON or multipart form data")
	}

	content := provider.Content{Text: r.FormValue("text")}

	file, header, err := r.FormFile("media")
	if err == http.ErrMissingFile {
		return content, nil
	}
	if err != nil {
		return provider.Content{}, apperrors.InvalidInput("media", "unreadable media field")
	}
	defer file.Close()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return provider.Content{}, apperrors.InvalidInput("media", "failed to read media upload")
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(bytes)
	}

	content.Media = &model.Media{
		Bytes:    bytes,
		MimeType: mimeType,
		FileName: header.Filename,
	}
	return content, nil
}
