package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/observability"
)

const (
	TagInvalidAuth        = "invalid-auth"
	TagMissingAuth        = "missing-auth"
	TagExpiredAccessToken = "expired-access-token"
	TagSessionRevoked     = "session-revoked"

	// StatusSessionRevoked tells clients the session is gone for good and they
	// must sign in again rather than refresh.
	StatusSessionRevoked = http.StatusGone
)

type AuthenticationResult struct {
	Success      bool
	User         *domain.User
	Session      *domain.Session
	ResponseCode int
	ErrorTag     string
	ErrorMessage string
}

type accessTokenValidator interface {
	ValidateAccessToken(ctx context.Context, accessToken string) (*Identity, error)
}

// RequestAuthenticator turns an Authorization header into a user and session.
// It never rotates tokens.
type RequestAuthenticator struct {
	sessions accessTokenValidator
}

func NewRequestAuthenticator(sessions *SessionManager) *RequestAuthenticator {
	return &RequestAuthenticator{sessions: sessions}
}

func (a *RequestAuthenticator) Authenticate(ctx context.Context, authorizationHeader string) (AuthenticationResult, error) {
	token, ok := bearerToken(authorizationHeader)
	if !ok {
		observability.RecordAuthentication(ctx, "missing")
		return AuthenticationResult{
			ResponseCode: http.StatusBadRequest,
			ErrorTag:     TagMissingAuth,
			ErrorMessage: "Missing authorization header.",
		}, nil
	}

	identity, err := a.sessions.ValidateAccessToken(ctx, token)
	switch {
	case err == nil:
		observability.RecordAuthentication(ctx, "success")
		return AuthenticationResult{
			Success: true,
			User:    identity.User,
			Session: identity.Session,
		}, nil
	case errors.Is(err, ErrAccessTokenExpired):
		observability.RecordAuthentication(ctx, "expired")
		return AuthenticationResult{
			ResponseCode: http.StatusUnauthorized,
			ErrorTag:     TagExpiredAccessToken,
			ErrorMessage: "The provided access token has expired.",
		}, nil
	case errors.Is(err, ErrSessionRevoked):
		observability.RecordAuthentication(ctx, "revoked")
		return AuthenticationResult{
			ResponseCode: StatusSessionRevoked,
			ErrorTag:     TagSessionRevoked,
			ErrorMessage: "Your session has been revoked. Please sign in again.",
		}, nil
	case errors.Is(err, ErrInvalidAccessToken), errors.Is(err, ErrSessionNotFound):
		observability.RecordAuthentication(ctx, "invalid")
		return invalidAuth(), nil
	default:
		observability.RecordAuthentication(ctx, "error")
		return AuthenticationResult{}, err
	}
}

func invalidAuth() AuthenticationResult {
	return AuthenticationResult{
		ResponseCode: http.StatusUnauthorized,
		ErrorTag:     TagInvalidAuth,
		ErrorMessage: "Invalid login credentials.",
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" || strings.EqualFold(header, "Bearer") {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return header, true
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
