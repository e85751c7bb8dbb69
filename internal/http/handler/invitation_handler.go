package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/notesync/auth-service/internal/http/response"
	"github.com/notesync/auth-service/internal/observability"
	"github.com/notesync/auth-service/internal/service"
)

type InvitationHandler struct {
	invitations *service.InvitationService
	logger      *slog.Logger
}

func NewInvitationHandler(invitations *service.InvitationService, logger *slog.Logger) *InvitationHandler {
	return &InvitationHandler{invitations: invitations, logger: defaultLogger(logger)}
}

type inviteRequest struct {
	Identifier string `json:"identifier"`
}

func (h *InvitationHandler) Invite(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if strings.TrimSpace(req.Identifier) == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "Missing invitee identifier", nil)
		return
	}

	res, err := h.invitations.Invite(r.Context(), id.User.UUID, id.User.Email, req.Identifier)
	if err != nil {
		internalError(w, r, h.logger, "invite", err)
		return
	}
	h.write(w, r, res)
}

func (h *InvitationHandler) List(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	views, err := h.invitations.ListInvitations(r.Context(), id.User.Email)
	if err != nil {
		internalError(w, r, h.logger, "list invitations", err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"invitations": views})
}

func (h *InvitationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	invitationUUID := chi.URLParam(r, "uuid")
	res, err := h.invitations.Cancel(r.Context(), invitationUUID, id.User.Email)
	if err != nil {
		internalError(w, r, h.logger, "cancel invitation", err)
		return
	}
	if res.Success {
		observability.Audit(r, "invitation.canceled", "user_uuid", id.User.UUID, "invitation_uuid", invitationUUID)
	}
	h.write(w, r, res)
}

// Accept and Decline are reached from the link in the invitation email and
// carry no bearer token; the invitation uuid is the credential.
func (h *InvitationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	res, err := h.invitations.Accept(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		internalError(w, r, h.logger, "accept invitation", err)
		return
	}
	h.write(w, r, res)
}

func (h *InvitationHandler) Decline(w http.ResponseWriter, r *http.Request) {
	res, err := h.invitations.Decline(r.Context(), chi.URLParam(r, "uuid"))
	if err != nil {
		internalError(w, r, h.logger, "decline invitation", err)
		return
	}
	h.write(w, r, res)
}

func (h *InvitationHandler) write(w http.ResponseWriter, r *http.Request, res service.InvitationResult) {
	if !res.Success {
		response.Error(w, r, http.StatusBadRequest, res.ErrorTag, res.Message, nil)
		return
	}
	response.JSON(w, r, http.StatusOK, res)
}
