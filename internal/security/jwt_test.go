package security

import (
	"errors"
	"testing"
	"time"
)

func newTestJWTManager(now func() time.Time) *JWTManager {
	return NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456", "abcdefghijklmnopqrstuvwxyz654321").WithClock(now)
}

func TestJWTManagerAccessRoundTrip(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m := newTestJWTManager(func() time.Time { return now })

	token, err := m.SignAccessToken("user-1", "session-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("sign access: %v", err)
	}
	claims, err := m.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse access: %v", err)
	}
	if claims.Subject != "user-1" || claims.SessionUUID != "session-1" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if _, err := m.ParseRefreshToken(token); err == nil {
		t.Fatal("expected access token to be rejected as refresh token")
	}
}

func TestJWTManagerExpiredTokenKeepsClaims(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m := newTestJWTManager(func() time.Time { return now })
	token, err := m.SignRefreshToken("user-1", "session-9", now.Add(time.Minute))
	if err != nil {
		t.Fatalf("sign refresh: %v", err)
	}

	later := newTestJWTManager(func() time.Time { return now.Add(2 * time.Hour) })
	claims, err := later.ParseRefreshToken(token)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if claims == nil || claims.SessionUUID != "session-9" {
		t.Fatalf("expected claims with expired error, got %+v", claims)
	}
}

func TestJWTManagerRejectsForeignSecret(t *testing.T) {
	now := time.Now()
	m := newTestJWTManager(func() time.Time { return now })
	other := NewJWTManager("iss", "aud", "zyxwvutsrqponmlkjihgfedcba123456", "zyxwvutsrqponmlkjihgfedcba654321")
	token, err := other.SignAccessToken("user-1", "session-1", now.Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.ParseAccessToken(token); err == nil || errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected signature failure, got %v", err)
	}
}
