package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/service"
)

func selfRouter(t *testing.T, called *bool) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("X-Test-User") == "" {
				next.ServeHTTP(w, r)
				return
			}
			id := &service.Identity{User: &domain.User{UUID: r.Header.Get("X-Test-User")}}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), IdentityContextKey, id)))
		})
	})
	r.With(RequireSelf("userUuid")).Get("/users/{userUuid}", func(w http.ResponseWriter, _ *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func TestRequireSelf(t *testing.T) {
	tests := []struct {
		name       string
		user       string
		wantStatus int
		wantCalled bool
	}{
		{name: "same user", user: "u-1", wantStatus: http.StatusOK, wantCalled: true},
		{name: "other user", user: "u-2", wantStatus: http.StatusForbidden},
		{name: "no identity", user: "", wantStatus: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			req := httptest.NewRequest(http.MethodGet, "/users/u-1", nil)
			if tt.user != "" {
				req.Header.Set("X-Test-User", tt.user)
			}
			rr := httptest.NewRecorder()
			selfRouter(t, &called).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
			if called != tt.wantCalled {
				t.Fatalf("handler called = %v, want %v", called, tt.wantCalled)
			}
		})
	}
}
