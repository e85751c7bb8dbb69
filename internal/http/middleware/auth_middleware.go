package middleware

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/notesync/auth-service/internal/http/response"
	"github.com/notesync/auth-service/internal/service"
)

type contextKey string

const (
	IdentityContextKey contextKey = "identity"
)

type Authenticator interface {
	Authenticate(ctx context.Context, authorizationHeader string) (service.AuthenticationResult, error)
}

// AuthMiddleware resolves the bearer token into a user and session. Failures
// answer with the authenticator's status and error tag.
func AuthMiddleware(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, err := auth.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				slog.ErrorContext(r.Context(), "authenticate request", "error", err)
				response.Error(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "authentication is temporarily unavailable", nil)
				return
			}
			if !res.Success {
				response.Error(w, r, res.ResponseCode, res.ErrorTag, res.ErrorMessage, nil)
				return
			}
			ctx := context.WithValue(r.Context(), IdentityContextKey, &service.Identity{User: res.User, Session: res.Session})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func IdentityFromContext(ctx context.Context) (*service.Identity, bool) {
	id, ok := ctx.Value(IdentityContextKey).(*service.Identity)
	return id, ok && id != nil && id.User != nil
}
