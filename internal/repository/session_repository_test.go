package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/notesync/auth-service/internal/domain"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newSession(uuid, userUUID, refreshHash string, refreshExp time.Time) *domain.Session {
	return &domain.Session{
		UUID:               uuid,
		UserUUID:           userUUID,
		HashedAccessToken:  "access-" + refreshHash,
		HashedRefreshToken: refreshHash,
		AccessExpiration:   baseTime.Add(time.Hour),
		RefreshExpiration:  refreshExp,
		CreatedAt:          baseTime,
		UpdatedAt:          baseTime,
	}
}

func TestSessionRepositoryListActiveByUser(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newTestDB(t))

	sessions := []*domain.Session{
		newSession("s-active", "u1", "h1", baseTime.Add(24*time.Hour)),
		newSession("s-expired", "u1", "h2", baseTime.Add(-time.Hour)),
		newSession("s-other", "u2", "h3", baseTime.Add(24*time.Hour)),
	}
	for _, s := range sessions {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create %s: %v", s.UUID, err)
		}
	}

	active, err := repo.ListActiveByUser(ctx, "u1", baseTime)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].UUID != "s-active" {
		t.Fatalf("expected only s-active, got %+v", active)
	}
}

func TestSessionRepositoryRotateTokensIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newTestDB(t))
	if err := repo.Create(ctx, newSession("s1", "u1", "old", baseTime.Add(24*time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}

	next := SessionTokens{
		HashedAccessToken:  "access-new",
		HashedRefreshToken: "new",
		AccessExpiration:   baseTime.Add(2 * time.Hour),
		RefreshExpiration:  baseTime.Add(48 * time.Hour),
	}
	ok, err := repo.RotateTokens(ctx, "s1", "old", baseTime, next)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if !ok {
		t.Fatal("expected first rotation to succeed")
	}

	ok, err = repo.RotateTokens(ctx, "s1", "old", baseTime, SessionTokens{HashedRefreshToken: "other"})
	if err != nil {
		t.Fatalf("second rotate: %v", err)
	}
	if ok {
		t.Fatal("expected rotation with stale hash to be rejected")
	}

	stored, err := repo.FindByUUID(ctx, "s1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.HashedRefreshToken != "new" || !stored.RefreshExpiration.Equal(next.RefreshExpiration) {
		t.Fatalf("unexpected stored session: %+v", stored)
	}
}

func TestSessionRepositoryRotateRejectsExpiredRefresh(t *testing.T) {
	ctx := context.Background()
	repo := NewSessionRepository(newTestDB(t))
	if err := repo.Create(ctx, newSession("s1", "u1", "h", baseTime.Add(-time.Minute))); err != nil {
		t.Fatalf("create: %v", err)
	}
	ok, err := repo.RotateTokens(ctx, "s1", "h", baseTime, SessionTokens{HashedRefreshToken: "n"})
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if ok {
		t.Fatal("expected expired refresh token to block rotation")
	}
}

func TestSessionRepositoryRevokeWritesTombstone(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	revoked := NewRevokedSessionRepository(db)
	if err := repo.Create(ctx, newSession("s1", "u1", "h1", baseTime.Add(time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}

	s, err := repo.Revoke(ctx, "s1", domain.RevokeReasonSignOut, baseTime)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if s.UserUUID != "u1" {
		t.Fatalf("expected revoked session to be returned, got %+v", s)
	}
	if _, err := repo.FindByUUID(ctx, "s1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected session to be gone, got %v", err)
	}
	tomb, err := revoked.FindByUUID(ctx, "s1")
	if err != nil {
		t.Fatalf("find tombstone: %v", err)
	}
	if tomb.Reason != domain.RevokeReasonSignOut || tomb.Received {
		t.Fatalf("unexpected tombstone: %+v", tomb)
	}

	if _, err := repo.Revoke(ctx, "s1", domain.RevokeReasonSignOut, baseTime); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found on second revoke, got %v", err)
	}
}

func TestSessionRepositoryRevokeOthersKeepsCurrent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	for _, s := range []*domain.Session{
		newSession("keep", "u1", "h1", baseTime.Add(time.Hour)),
		newSession("drop-1", "u1", "h2", baseTime.Add(time.Hour)),
		newSession("drop-2", "u1", "h3", baseTime.Add(time.Hour)),
		newSession("foreign", "u2", "h4", baseTime.Add(time.Hour)),
	} {
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("create %s: %v", s.UUID, err)
		}
	}

	n, err := repo.RevokeOthersByUser(ctx, "u1", "keep", domain.RevokeReasonRevokeOthers, baseTime)
	if err != nil {
		t.Fatalf("revoke others: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 revoked, got %d", n)
	}
	for _, id := range []string{"keep", "foreign"} {
		if _, err := repo.FindByUUID(ctx, id); err != nil {
			t.Fatalf("expected %s to survive: %v", id, err)
		}
	}
	if _, err := NewRevokedSessionRepository(db).FindByUUID(ctx, "drop-2"); err != nil {
		t.Fatalf("expected tombstone for drop-2: %v", err)
	}
}

func TestSessionCleanup(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewSessionRepository(db)
	revoked := NewRevokedSessionRepository(db)

	if err := repo.Create(ctx, newSession("old", "u1", "h1", baseTime.Add(-time.Second))); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, newSession("live", "u1", "h2", baseTime.Add(time.Hour))); err != nil {
		t.Fatalf("create: %v", err)
	}
	n, err := repo.DeleteExpired(ctx, baseTime)
	if err != nil || n != 1 {
		t.Fatalf("delete expired: n=%d err=%v", n, err)
	}

	if err := revoked.Create(ctx, &domain.RevokedSession{UUID: "t-old", UserUUID: "u1", CreatedAt: baseTime.Add(-48 * time.Hour)}); err != nil {
		t.Fatalf("create tombstone: %v", err)
	}
	if err := revoked.Create(ctx, &domain.RevokedSession{UUID: "t-new", UserUUID: "u1", CreatedAt: baseTime}); err != nil {
		t.Fatalf("create tombstone: %v", err)
	}
	if err := revoked.MarkReceived(ctx, "t-new"); err != nil {
		t.Fatalf("mark received: %v", err)
	}
	n, err = revoked.DeleteOlderThan(ctx, baseTime.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("delete older than: n=%d err=%v", n, err)
	}
	tomb, err := revoked.FindByUUID(ctx, "t-new")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !tomb.Received {
		t.Fatal("expected received flag")
	}
	if err := revoked.MarkReceived(ctx, "missing"); !errors.Is(err, ErrRevokedSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
