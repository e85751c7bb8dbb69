package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/notesync/auth-service/internal/http/response"
	"github.com/notesync/auth-service/internal/service"
)

const offlineTokenHeader = "X-Offline-Token"

type OfflineHandler struct {
	offline *service.OfflineSubscriptionService
	logger  *slog.Logger
}

func NewOfflineHandler(offline *service.OfflineSubscriptionService, logger *slog.Logger) *OfflineHandler {
	return &OfflineHandler{offline: offline, logger: defaultLogger(logger)}
}

type offlineTokenRequest struct {
	Email string `json:"email"`
}

// CreateToken never returns the token itself; it is delivered to the email
// owner through the OfflineSubscriptionTokenCreated event.
func (h *OfflineHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req offlineTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email is required", nil)
		return
	}

	res, err := h.offline.CreateToken(r.Context(), req.Email)
	if err != nil {
		internalError(w, r, h.logger, "create offline token", err)
		return
	}
	if !res.Success {
		response.Error(w, r, http.StatusBadRequest, res.ErrorTag, "Could not create an offline subscription token.", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"expires_at": res.Token.ExpiresAt})
}

func (h *OfflineHandler) Features(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(offlineTokenHeader)
	email := r.URL.Query().Get("email")
	features, ok, err := h.offline.GetFeatures(r.Context(), token, email)
	if err != nil {
		internalError(w, r, h.logger, "get offline features", err)
		return
	}
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "invalid-offline-subscription-token", "The offline subscription token is not valid.", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"features": features})
}
