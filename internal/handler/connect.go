package handler

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/socialdeck/dashboard-server-go/internal/errors"
	"github.com/socialdeck/dashboard-server-go/internal/middleware"
	"github.com/socialdeck/dashboard-server-go/internal/service"
)

// ConnectHandler serves the provider connection flow. Begin, Disconnect and
// List are authenticated API calls; Callback is hit by the user's browser
// coming back from the provider and answers with redirects, not JSON.
type ConnectHandler struct {
	authflow    *service.AuthFlowService
	settingsURL string
}

func NewConnectHandler(authflow *service.AuthFlowService, settingsURL string) *ConnectHandler {
	return &ConnectHandler{authflow: authflow, settingsURL: settingsURL}
}

// Begin starts the authorization flow and hands the authorize URL to the
// frontend, which performs the actual redirect.
func (h *ConnectHandler) Begin(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	providerName := chi.URLParam(r, "provider")

	authorizeURL, err := h.authflow.BeginAuthorization(r.Context(), user.ID, providerName)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"authorizeUrl": authorizeURL})
}

func (h *ConnectHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	params := service.CallbackParams{
		Code:             q.Get("code"),
		State:            q.Get("state"),
		ErrorParam:       q.Get("error"),
		ErrorDescription: q.Get("error_description"),
	}
	providerName := chi.URLParam(r, "provider")

	conn, err := h.authflow.CompleteAuthorization(r.Context(), params)
	if err != nil {
		log.Warn().Err(err).Str("provider", providerName).Msg("authorization callback failed")
		h.redirectToSettings(w, r, url.Values{
			"provider": {providerName},
			"error":    {string(apperrors.GetCode(err))},
		})
		return
	}

	h.redirectToSettings(w, r, url.Values{
		"connected": {conn.Provider},
		"username":  {conn.Username},
	})
}

func (h *ConnectHandler) redirectToSettings(w http.ResponseWriter, r *http.Request, query url.Values) {
	http.Redirect(w, r, h.settingsURL+"?"+query.Encode(), http.StatusTemporaryRedirect)
}

func (h *ConnectHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	providerName := chi.URLParam(r, "provider")

	if err := h.authflow.Disconnect(r.Context(), user.ID, providerName); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConnectHandler) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())

	conns, err := h.authflow.ListConnections(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"connections": conns})
}
