package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/notesync/auth-service/internal/http/response"
	"github.com/notesync/auth-service/internal/observability"
	"github.com/notesync/auth-service/internal/service"
)

type SessionHandler struct {
	sessions *service.SessionManager
	logger   *slog.Logger
}

func NewSessionHandler(sessions *service.SessionManager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: defaultLogger(logger)}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		response.Error(w, r, http.StatusBadRequest, "invalid-parameters", "The refresh token is required.", nil)
		return
	}

	issued, err := h.sessions.RefreshSession(r.Context(), req.RefreshToken)
	switch {
	case errors.Is(err, service.ErrRefreshTokenExpired):
		response.Error(w, r, http.StatusBadRequest, "expired-refresh-token", "The refresh token has expired.", nil)
		return
	case errors.Is(err, service.ErrRefreshTokenReused):
		observability.Audit(r, "session.refresh_reuse")
		response.Error(w, r, http.StatusUnauthorized, "refresh-token-reused", "The refresh token was already used. Please sign in again.", nil)
		return
	case errors.Is(err, service.ErrInvalidRefreshToken), errors.Is(err, service.ErrSessionNotFound):
		response.Error(w, r, http.StatusBadRequest, "invalid-refresh-token", "The refresh token is not valid.", nil)
		return
	case err != nil:
		internalError(w, r, h.logger, "refresh session", err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"session": sessionRef{UUID: issued.Session.UUID, Ephemeral: issued.Session.Ephemeral},
		"tokens":  issued.Tokens,
	})
}

func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	views, err := h.sessions.ListActiveSessions(r.Context(), id.User.UUID, id.Session.UUID)
	if err != nil {
		internalError(w, r, h.logger, "list sessions", err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

func (h *SessionHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	target := chi.URLParam(r, "uuid")
	if target == id.Session.UUID {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "Use sign out to end the current session.", nil)
		return
	}
	err := h.sessions.RevokeSessionForUser(r.Context(), id.User.UUID, target)
	if errors.Is(err, service.ErrSessionNotFound) {
		response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "No session exists with the provided identifier.", nil)
		return
	}
	if err != nil {
		internalError(w, r, h.logger, "revoke session", err)
		return
	}
	observability.Audit(r, "session.revoked", "user_uuid", id.User.UUID, "session_uuid", target)
	response.NoContent(w, r)
}

func (h *SessionHandler) RevokeOthers(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	n, err := h.sessions.RevokeOtherSessions(r.Context(), id.User.UUID, id.Session.UUID)
	if err != nil {
		internalError(w, r, h.logger, "revoke other sessions", err)
		return
	}
	observability.Audit(r, "session.revoked_others", "user_uuid", id.User.UUID, "count", n)
	response.JSON(w, r, http.StatusOK, map[string]int64{"revoked": n})
}
