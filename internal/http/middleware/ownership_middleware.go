package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/notesync/auth-service/internal/http/response"
	"github.com/notesync/auth-service/internal/observability"
)

// RequireSelf lets the request through only when the URL parameter names the
// authenticated user.
func RequireSelf(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
				return
			}
			if chi.URLParam(r, param) != identity.User.UUID {
				observability.Audit(r, "access.denied", "user_uuid", identity.User.UUID, "target", chi.URLParam(r, param))
				response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "operation not allowed for this user", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
