package handler

import (
	"bytes"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/socialdeck/dashboard-server-go/internal/errors"
)

func TestParsePublishRequest(t *testing.T) {
	t.Run("parses a JSON body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/publish/twitter", strings.NewReader(`{"text":"hello"}`))
		r.Header.Set("Content-Type", "application/json")

		content, err := parsePublishRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "hello", content.Text)
		assert.Nil(t, content.Media)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/api/publish/twitter", strings.NewReader(`{"text":`))
		r.Header.Set("Content-Type", "application/json")

		_, err := parsePublishRequest(r)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput))
	})

	t.Run("parses multipart with media", func(t *testing.T) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("text", "with a picture"))
		part, err := w.CreateFormFile("media", "pic.png")
		require.NoError(t, err)
		_, err = part.Write([]byte("pngbytes"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		r := httptest.NewRequest("POST", "/api/publish/twitter", &buf)
		r.Header.Set("Content-Type", w.FormDataContentType())

		content, err := parsePublishRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "with a picture", content.Text)
		require.NotNil(t, content.Media)
		assert.Equal(t, "pic.png", content.Media.FileName)
		assert.Equal(t, []byte("pngbytes"), content.Media.Bytes)
	})

	t.Run("multipart without a media file is text only", func(t *testing.T) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("text", "plain"))
		require.NoError(t, w.Close())

		r := httptest.NewRequest("POST", "/api/publish/twitter", &buf)
		r.Header.Set("Content-Type", w.FormDataContentType())

		content, err := parsePublishRequest(r)
		require.NoError(t, err)
		assert.Equal(t, "plain", content.Text)
		assert.Nil(t, content.Media)
	})

	t.Run("detects the mime type when the part omits one", func(t *testing.T) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		part, err := w.CreateFormFile("media", "clip.bin")
		require.NoError(t, err)
		_, err = part.Write([]byte("\x89PNG\r\n\x1a\nrest-of-the-image"))
		require.NoError(t, err)
		require.NoError(t, w.Close())

		r := httptest.NewRequest("POST", "/api/publish/instagram", &buf)
		r.Header.Set("Content-Type", w.FormDataContentType())

		content, err := parsePublishRequest(r)
		require.NoError(t, err)
		require.NotNil(t, content.Media)
		assert.NotEmpty(t, content.Media.MimeType)
	})
}
