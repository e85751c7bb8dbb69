package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/service"
)

type stubAuthenticator struct {
	res service.AuthenticationResult
	err error
}

func (s stubAuthenticator) Authenticate(context.Context, string) (service.AuthenticationResult, error) {
	return s.res, s.err
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body.Error.Code
}

func TestAuthMiddlewareUsesAuthenticatorFailure(t *testing.T) {
	tests := []struct {
		name     string
		res      service.AuthenticationResult
		wantCode int
		wantTag  string
	}{
		{
			name:     "missing",
			res:      service.AuthenticationResult{ResponseCode: http.StatusBadRequest, ErrorTag: service.TagMissingAuth},
			wantCode: http.StatusBadRequest,
			wantTag:  service.TagMissingAuth,
		},
		{
			name:     "revoked",
			res:      service.AuthenticationResult{ResponseCode: service.StatusSessionRevoked, ErrorTag: service.TagSessionRevoked},
			wantCode: http.StatusGone,
			wantTag:  service.TagSessionRevoked,
		},
		{
			name:     "expired",
			res:      service.AuthenticationResult{ResponseCode: http.StatusUnauthorized, ErrorTag: service.TagExpiredAccessToken},
			wantCode: http.StatusUnauthorized,
			wantTag:  service.TagExpiredAccessToken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AuthMiddleware(stubAuthenticator{res: tt.res})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatal("expected middleware to block request")
			}))
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

			if rr.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rr.Code)
			}
			if got := decodeErrorCode(t, rr); got != tt.wantTag {
				t.Fatalf("expected error code %q, got %q", tt.wantTag, got)
			}
		})
	}
}

func TestAuthMiddlewareBackendErrorReturnsUnavailable(t *testing.T) {
	h := AuthMiddleware(stubAuthenticator{err: errors.New("db down")})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("expected middleware to block request")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestAuthMiddlewareStoresIdentity(t *testing.T) {
	user := &domain.User{UUID: "u-1", Email: "a@example.com"}
	session := &domain.Session{UUID: "s-1", UserUUID: "u-1"}
	h := AuthMiddleware(stubAuthenticator{res: service.AuthenticationResult{Success: true, User: user, Session: session}})(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok || id.User.UUID != "u-1" || id.Session.UUID != "s-1" {
				t.Fatalf("unexpected identity %+v", id)
			}
			w.WriteHeader(http.StatusNoContent)
		}))

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer token")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for valid token, got %d", rr.Code)
	}
}
