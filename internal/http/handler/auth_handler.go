package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/notesync/auth-service/internal/http/response"
	"github.com/notesync/auth-service/internal/observability"
	"github.com/notesync/auth-service/internal/service"
)

type AuthHandler struct {
	accounts *service.AccountService
	logger   *slog.Logger
}

func NewAuthHandler(accounts *service.AccountService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: defaultLogger(logger)}
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Ephemeral bool   `json:"ephemeral"`
}

type signInRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	MFACode   string `json:"mfa_code"`
	Ephemeral bool   `json:"ephemeral"`
}

type userView struct {
	UUID  string `json:"uuid"`
	Email string `json:"email"`
}

type sessionRef struct {
	UUID      string `json:"uuid"`
	Ephemeral bool   `json:"ephemeral"`
}

type authResponse struct {
	User    userView          `json:"user"`
	Session sessionRef        `json:"session"`
	Tokens  service.TokenPair `json:"tokens"`
}

func newAuthResponse(res *service.AuthResult) authResponse {
	return authResponse{
		User:    userView{UUID: res.User.UUID, Email: res.User.Email},
		Session: sessionRef{UUID: res.Session.Session.UUID, Ephemeral: res.Session.Session.Ephemeral},
		Tokens:  res.Session.Tokens,
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email and password are required", nil)
		return
	}

	res, err := h.accounts.Register(r.Context(), service.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Device:   deviceInfo(r, req.Ephemeral),
	})
	switch {
	case errors.Is(err, service.ErrRegistrationDisabled):
		response.Error(w, r, http.StatusForbidden, "REGISTRATION_DISABLED", err.Error(), nil)
		return
	case errors.Is(err, service.ErrUserAlreadyExists):
		response.Error(w, r, http.StatusBadRequest, "REGISTRATION_FAILED", err.Error(), nil)
		return
	case err != nil:
		internalError(w, r, h.logger, "register", err)
		return
	}
	observability.Audit(r, "account.registered", "user_uuid", res.User.UUID)
	response.JSON(w, r, http.StatusCreated, newAuthResponse(res))
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err)
		return
	}

	res, err := h.accounts.SignIn(r.Context(), service.SignInRequest{
		Email:    req.Email,
		Password: req.Password,
		MFACode:  req.MFACode,
		Device:   deviceInfo(r, req.Ephemeral),
	})
	switch {
	case errors.Is(err, service.ErrUserLocked):
		observability.Audit(r, "sign_in.locked")
		response.Error(w, r, http.StatusLocked, "TOO_MANY_ATTEMPTS", "Too many failed attempts. Please try again later.", nil)
		return
	case errors.Is(err, service.ErrMFARequired):
		response.Error(w, r, http.StatusUnauthorized, "mfa-required", "Please enter your two-factor authentication code.", nil)
		return
	case errors.Is(err, service.ErrInvalidCredentials):
		observability.Audit(r, "sign_in.failed")
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password.", nil)
		return
	case err != nil:
		internalError(w, r, h.logger, "sign in", err)
		return
	}
	observability.Audit(r, "sign_in.succeeded", "user_uuid", res.User.UUID, "session_uuid", res.Session.Session.UUID)
	response.JSON(w, r, http.StatusOK, newAuthResponse(res))
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	id, ok := identity(w, r)
	if !ok {
		return
	}
	if err := h.accounts.SignOut(r.Context(), id.Session); err != nil {
		internalError(w, r, h.logger, "sign out", err)
		return
	}
	observability.Audit(r, "sign_out", "user_uuid", id.User.UUID, "session_uuid", id.Session.UUID)
	response.NoContent(w, r)
}
