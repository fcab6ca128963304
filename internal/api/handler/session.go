package handler

import (
	"net/http"

	"github.com/orionwholesale/storefront/internal/api/models"
	"github.com/orionwholesale/storefront/internal/api/response"
	"github.com/orionwholesale/storefront/internal/session"
)

// SessionControl reads and mutates the session.
type SessionControl interface {
	State() session.State
	Dispatch(action session.Action)
}

// SessionHandler handles the admin session endpoints.
type SessionHandler struct {
	session SessionControl
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(control SessionControl) *SessionHandler {
	return &SessionHandler{session: control}
}

// GetSession handles GET /v1/admin/session.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, sessionView(h.session.State()))
}

// SetAuth handles PUT /v1/admin/session and signs the client in.
func (h *SessionHandler) SetAuth(w http.ResponseWriter, r *http.Request) {
	var body models.SessionAuth
	if err := response.DecodeJSON(w, r, &body); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	var fieldErrors []models.FieldError
	if body.Token == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "token", Message: "is required", Code: "REQUIRED"})
	}
	if body.UserID == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "userId", Message: "is required", Code: "REQUIRED"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid session", fieldErrors)
		return
	}

	h.session.Dispatch(session.SetAuth{Token: body.Token, UserID: body.UserID})
	response.JSON(w, r, http.StatusOK, sessionView(h.session.State()))
}

// Logout handles DELETE /v1/admin/session.
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.session.Dispatch(session.Logout{})
	response.NoContent(w, r)
}

func sessionView(s session.State) models.Session {
	return models.Session{
		InitComplete:  s.InitComplete,
		Language:      s.Language,
		Authenticated: s.AuthToken != "",
		UserID:        s.UserID,
		PushToken:     s.FCMToken != "",
	}
}
