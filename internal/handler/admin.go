package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/socialdeck/dashboard-server-go/internal/audit"
	apperrors "github.com/socialdeck/dashboard-server-go/internal/errors"
	"github.com/socialdeck/dashboard-server-go/internal/model"
	"github.com/socialdeck/dashboard-server-go/internal/repository"
	"github.com/socialdeck/dashboard-server-go/internal/util"
)

// AdminHandler provisions dashboard users. Guarded by the operator password
// rather than user auth; user accounts come from somewhere else entirely.
type AdminHandler struct {
	userRepo          repository.UserRepository
	adminPasswordHash string
}

func NewAdminHandler(userRepo repository.UserRepository, adminPasswordHash string) *AdminHandler {
	return &AdminHandler{userRepo: userRepo, adminPasswordHash: adminPasswordHash}
}

// CreateUser provisions a user and returns their API token. The raw token is
// shown only in this response; regenerating requires provisioning again.
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	if h.adminPasswordHash == "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "Admin provisioning is not configured",
		})
		return
	}

	password := r.Header.Get("X-Admin-Password")
	if password == "" || !util.CheckPasswordHash(password, h.adminPasswordHash) {
		audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure, Details: map[string]interface{}{
			"surface": "admin",
		}})
		writeError(w, apperrors.Unauthorized("Invalid admin password"))
		return
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	body.Email = strings.TrimSpace(strings.ToLower(body.Email))
	if body.Email == "" || !strings.Contains(body.Email, "@") {
		writeError(w, apperrors.InvalidInput("email", "a valid email address is required"))
		return
	}

	existing, err := h.userRepo.FindByEmail(r.Context(), body.Email)
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}
	if existing != nil {
		writeError(w, apperrors.AlreadyExists("user"))
		return
	}

	token, err := util.GenerateToken()
	if err != nil {
		writeError(w, apperrors.Internal("generate token: "+err.Error()))
		return
	}

	user, err := h.userRepo.Create(r.Context(), model.CreateUserParams{
		Email:     body.Email,
		TokenHash: util.HashToken(token),
	})
	if err != nil {
		writeError(w, apperrors.Database(err))
		return
	}

	audit.LogFromRequest(r, audit.Event{Type: audit.EventUserProvision, UserID: user.ID})

	writeJSON(w, http.StatusCreated, map[string]any{
		"user":  user,
		"token": token,
	})
}
