package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/observability"
	"github.com/notesync/auth-service/internal/repository"
	"github.com/notesync/auth-service/internal/security"
	"github.com/notesync/auth-service/internal/timer"
)

type DeviceInfo struct {
	UserAgent  string
	IP         string
	APIVersion string
	Ephemeral  bool
}

type TokenPair struct {
	AccessToken       string    `json:"access_token"`
	RefreshToken      string    `json:"refresh_token"`
	AccessExpiration  time.Time `json:"access_expiration"`
	RefreshExpiration time.Time `json:"refresh_expiration"`
}

type IssuedSession struct {
	Session *domain.Session
	Tokens  TokenPair
}

// Identity is what a valid access token resolves to.
type Identity struct {
	User    *domain.User
	Session *domain.Session
}

type SessionView struct {
	UUID       string    `json:"uuid"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	APIVersion string    `json:"api_version"`
	UserAgent  string    `json:"user_agent"`
	IP         string    `json:"ip"`
	Ephemeral  bool      `json:"ephemeral"`
	IsCurrent  bool      `json:"is_current"`
}

type SessionTTLs struct {
	Access    time.Duration
	Refresh   time.Duration
	Ephemeral time.Duration
	Tombstone time.Duration
}

type SessionManager struct {
	jwtMgr    *security.JWTManager
	sessions  repository.SessionRepository
	ephemeral repository.EphemeralSessionRepository
	revoked   repository.RevokedSessionRepository
	users     repository.UserRepository
	clock     timer.Timer
	pepper    string
	ttls      SessionTTLs
	timeout   opTimeout
	logger    *slog.Logger
}

func NewSessionManager(
	jwtMgr *security.JWTManager,
	sessions repository.SessionRepository,
	ephemeral repository.EphemeralSessionRepository,
	revoked repository.RevokedSessionRepository,
	users repository.UserRepository,
	clock timer.Timer,
	pepper string,
	ttls SessionTTLs,
	datastoreTimeout time.Duration,
	logger *slog.Logger,
) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		jwtMgr:    jwtMgr,
		sessions:  sessions,
		ephemeral: ephemeral,
		revoked:   revoked,
		users:     users,
		clock:     clock,
		pepper:    pepper,
		ttls:      ttls,
		timeout:   opTimeout(datastoreTimeout),
		logger:    logger,
	}
}

func (m *SessionManager) CreateSession(ctx context.Context, user *domain.User, device DeviceInfo) (*IssuedSession, error) {
	ctx, cancel := m.timeout.bound(ctx)
	defer cancel()

	now := m.clock.Now()
	session := &domain.Session{
		UUID:       uuid.NewString(),
		UserUUID:   user.UUID,
		APIVersion: device.APIVersion,
		UserAgent:  device.UserAgent,
		IP:         device.IP,
		CreatedAt:  now,
		UpdatedAt:  now,
		Ephemeral:  device.Ephemeral,
	}
	pair, next, err := m.mintTokenPair(user.UUID, session.UUID, now, device.Ephemeral)
	if err != nil {
		return nil, err
	}
	session.HashedAccessToken = next.HashedAccessToken
	session.HashedRefreshToken = next.HashedRefreshToken
	session.AccessExpiration = next.AccessExpiration
	session.RefreshExpiration = next.RefreshExpiration

	if device.Ephemeral {
		err = m.ephemeral.Save(ctx, session, m.ttls.Ephemeral)
	} else {
		err = m.sessions.Create(ctx, session)
	}
	if err != nil {
		observability.RecordSessionEvent(ctx, "create", "error")
		return nil, err
	}
	observability.RecordSessionEvent(ctx, "create", "success")
	return &IssuedSession{Session: session, Tokens: pair}, nil
}

// RefreshSession swaps the session's token pair. A refresh token that no longer
// matches the stored hash was already rotated away, so the session is revoked.
func (m *SessionManager) RefreshSession(ctx context.Context, refreshToken string) (*IssuedSession, error) {
	ctx, cancel := m.timeout.bound(ctx)
	defer cancel()

	claims, err := m.jwtMgr.ParseRefreshToken(refreshToken)
	expired := errors.Is(err, security.ErrTokenExpired)
	if err != nil && !expired {
		observability.RecordSessionEvent(ctx, "refresh", "invalid")
		return nil, ErrInvalidRefreshToken
	}

	session, err := m.findSession(ctx, claims.SessionUUID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			observability.RecordSessionEvent(ctx, "refresh", "not_found")
		}
		return nil, err
	}
	if session.UserUUID != claims.Subject {
		observability.RecordSessionEvent(ctx, "refresh", "invalid")
		return nil, ErrInvalidRefreshToken
	}

	now := m.clock.Now()
	presentedHash := security.HashToken(refreshToken, m.pepper)
	if !security.HashesEqual(presentedHash, session.HashedRefreshToken) {
		return nil, m.revokeReused(ctx, session)
	}
	if expired || !now.Before(session.RefreshExpiration) {
		observability.RecordSessionEvent(ctx, "refresh", "expired")
		return nil, ErrRefreshTokenExpired
	}

	pair, next, err := m.mintTokenPair(session.UserUUID, session.UUID, now, session.Ephemeral)
	if err != nil {
		return nil, err
	}
	var swapped bool
	if session.Ephemeral {
		swapped, err = m.ephemeral.RotateTokens(ctx, session.UUID, presentedHash, now, next, m.ttls.Ephemeral)
	} else {
		swapped, err = m.sessions.RotateTokens(ctx, session.UUID, presentedHash, now, next)
	}
	if err != nil {
		observability.RecordSessionEvent(ctx, "refresh", "error")
		return nil, err
	}
	if !swapped {
		return nil, m.resolveLostRotation(ctx, session.UUID, presentedHash)
	}

	session.HashedAccessToken = next.HashedAccessToken
	session.HashedRefreshToken = next.HashedRefreshToken
	session.AccessExpiration = next.AccessExpiration
	session.RefreshExpiration = next.RefreshExpiration
	session.UpdatedAt = now
	observability.RecordSessionEvent(ctx, "refresh", "success")
	return &IssuedSession{Session: session, Tokens: pair}, nil
}

// resolveLostRotation explains why a conditional rotation matched no row.
func (m *SessionManager) resolveLostRotation(ctx context.Context, sessionUUID, presentedHash string) error {
	current, err := m.findSession(ctx, sessionUUID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			observability.RecordSessionEvent(ctx, "refresh", "not_found")
		}
		return err
	}
	if !security.HashesEqual(presentedHash, current.HashedRefreshToken) {
		return m.revokeReused(ctx, current)
	}
	observability.RecordSessionEvent(ctx, "refresh", "expired")
	return ErrRefreshTokenExpired
}

func (m *SessionManager) revokeReused(ctx context.Context, session *domain.Session) error {
	observability.RecordSessionEvent(ctx, "refresh", "reuse_detected")
	m.logger.WarnContext(ctx, "refresh token reuse detected",
		"session_uuid", session.UUID,
		"user_uuid", session.UserUUID,
	)
	if err := m.revoke(ctx, session.UUID, domain.RevokeReasonReuseDetected); err != nil && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	return ErrRefreshTokenReused
}

func (m *SessionManager) RevokeSession(ctx context.Context, sessionUUID, reason string) error {
	ctx, cancel := m.timeout.bound(ctx)
	defer cancel()
	return m.revoke(ctx, sessionUUID, reason)
}

func (m *SessionManager) revoke(ctx context.Context, sessionUUID, reason string) error {
	now := m.clock.Now()
	removed, err := m.ephemeral.Delete(ctx, sessionUUID)
	if err != nil {
		observability.RecordSessionEvent(ctx, "revoke", "error")
		return err
	}
	if removed != nil {
		err = m.tombstone(ctx, removed, reason, now)
		observability.RecordSessionEvent(ctx, "revoke", outcomeOf(err))
		return err
	}
	_, err = m.sessions.Revoke(ctx, sessionUUID, reason, now)
	if errors.Is(err, repository.ErrSessionNotFound) {
		observability.RecordSessionEvent(ctx, "revoke", "not_found")
		return ErrSessionNotFound
	}
	observability.RecordSessionEvent(ctx, "revoke", outcomeOf(err))
	return err
}

// ValidateAccessToken resolves a bearer access token. A token for a session that
// has been revoked yields ErrSessionRevoked and acknowledges the tombstone.
func (m *SessionManager) ValidateAccessToken(ctx context.Context, accessToken string) (*Identity, error) {
	ctx, cancel := m.timeout.bound(ctx)
	defer cancel()

	claims, err := m.jwtMgr.ParseAccessToken(accessToken)
	expired := errors.Is(err, security.ErrTokenExpired)
	if err != nil && !expired {
		return nil, ErrInvalidAccessToken
	}

	session, err := m.findSession(ctx, claims.SessionUUID)
	if err != nil {
		if !errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, m.checkTombstone(ctx, claims.SessionUUID)
	}
	if session.UserUUID != claims.Subject {
		return nil, ErrInvalidAccessToken
	}
	if !security.TokenHashEqual(accessToken, session.HashedAccessToken, m.pepper) {
		return nil, ErrInvalidAccessToken
	}
	if expired || !m.clock.Now().Before(session.AccessExpiration) {
		return nil, ErrAccessTokenExpired
	}

	user, err := m.users.FindByUUID(ctx, session.UserUUID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrInvalidAccessToken
		}
		return nil, err
	}
	return &Identity{User: user, Session: session}, nil
}

func (m *SessionManager) checkTombstone(ctx context.Context, sessionUUID string) error {
	tombstone, err := m.revoked.FindByUUID(ctx, sessionUUID)
	if errors.Is(err, repository.ErrRevokedSessionNotFound) {
		return ErrInvalidAccessToken
	}
	if err != nil {
		return err
	}
	if !tombstone.Received {
		if err := m.revoked.MarkReceived(ctx, tombstone.UUID); err != nil && !errors.Is(err, repository.ErrRevokedSessionNotFound) {
			return err
		}
	}
	return ErrSessionRevoked
}

func (m *SessionManager) ListActiveSessions(ctx context.Context, userUUID, currentSessionUUID string) ([]SessionView, error) {
	ctx, cancel := m.timeout.bound(ctx)
	defer cancel()

	persistent, err := m.sessions.ListActiveByUser(ctx, userUUID, m.clock.Now())
	if err != nil {
		return nil, err
	}
	ephemeral, err := m.ephemeral.ListByUser(ctx, userUUID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionView, 0, len(persistent)+len(ephemeral))
	for _, session := range append(ephemeral, persistent...) {
		views = append(views, SessionView{
			UUID:       session.UUID,
			CreatedAt:  session.CreatedAt,
			UpdatedAt:  session.UpdatedAt,
			ExpiresAt:  session.RefreshExpiration,
			APIVersion: session.APIVersion,
			UserAgent:  session.UserAgent,
			IP:         session.IP,
			Ephemeral:  session.Ephemeral,
			IsCurrent:  session.UUID == currentSessionUUID,
		})
	}
	return views, nil
}

// RevokeSessionForUser revokes one of the user's own sessions. Sessions owned by
// somebody else are reported as not found.
func (m *SessionManager) RevokeSessionForUser(ctx context.Context, userUUID, sessionUUID string) error {
	ctx, cancel := m.timeout.bound(ctx)
	defer cancel()

	session, err := m.findSession(ctx, sessionUUID)
	if err != nil {
		return err
	}
	if session.UserUUID != userUUID {
		return ErrSessionNotFound
	}
	return m.revoke(ctx, sessionUUID, domain.RevokeReasonUserRevoked)
}

func (m *SessionManager) RevokeOtherSessions(ctx context.Context, userUUID, currentSessionUUID string) (int64, error) {
	ctx, cancel := m.timeout.bound(ctx)
	defer cancel()

	count, err := m.revokeEphemeral(ctx, userUUID, currentSessionUUID, domain.RevokeReasonRevokeOthers)
	if err != nil {
		return 0, err
	}
	n, err := m.sessions.RevokeOthersByUser(ctx, userUUID, currentSessionUUID, domain.RevokeReasonRevokeOthers, m.clock.Now())
	if err != nil {
		observability.RecordSessionEvent(ctx, "revoke_others", "error")
		return count, err
	}
	observability.RecordSessionEvent(ctx, "revoke_others", "success")
	return count + n, nil
}

func (m *SessionManager) RevokeAllForUser(ctx context.Context, userUUID, reason string) (int64, error) {
	ctx, cancel := m.timeout.bound(ctx)
	defer cancel()

	now := m.clock.Now()
	removed, err := m.ephemeral.DeleteByUser(ctx, userUUID)
	if err != nil {
		observability.RecordSessionEvent(ctx, "revoke_all", "error")
		return 0, err
	}
	var count int64
	for i := range removed {
		if err := m.tombstone(ctx, &removed[i], reason, now); err != nil {
			observability.RecordSessionEvent(ctx, "revoke_all", "error")
			return count, err
		}
		count++
	}
	n, err := m.sessions.RevokeAllByUser(ctx, userUUID, reason, now)
	if err != nil {
		observability.RecordSessionEvent(ctx, "revoke_all", "error")
		return count, err
	}
	observability.RecordSessionEvent(ctx, "revoke_all", "success")
	return count + n, nil
}

func (m *SessionManager) revokeEphemeral(ctx context.Context, userUUID, keepUUID, reason string) (int64, error) {
	sessions, err := m.ephemeral.ListByUser(ctx, userUUID)
	if err != nil {
		return 0, err
	}
	var count int64
	for _, s := range sessions {
		if s.UUID == keepUUID {
			continue
		}
		if err := m.revoke(ctx, s.UUID, reason); err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}

func (m *SessionManager) tombstone(ctx context.Context, session *domain.Session, reason string, now time.Time) error {
	return m.revoked.Create(ctx, &domain.RevokedSession{
		UUID:      session.UUID,
		UserUUID:  session.UserUUID,
		Reason:    reason,
		CreatedAt: now,
	})
}

type CleanupReport struct {
	ExpiredSessions int64 `json:"expired_sessions"`
	AgedTombstones  int64 `json:"aged_tombstones"`
}

// CleanupExpired drops sessions whose refresh token has lapsed and tombstones
// older than the retention window. Ephemeral sessions expire in Redis on their own.
func (m *SessionManager) CleanupExpired(ctx context.Context) (CleanupReport, error) {
	ctx, cancel := m.timeout.bound(ctx)
	defer cancel()

	now := m.clock.Now()
	var report CleanupReport
	expired, err := m.sessions.DeleteExpired(ctx, now)
	if err != nil {
		return report, err
	}
	report.ExpiredSessions = expired
	aged, err := m.revoked.DeleteOlderThan(ctx, now.Add(-m.ttls.Tombstone))
	if err != nil {
		return report, err
	}
	report.AgedTombstones = aged
	m.logger.InfoContext(ctx, "session cleanup finished",
		"expired_sessions", expired,
		"aged_tombstones", aged,
	)
	return report, nil
}

// findSession looks in Redis first, then in SQL.
func (m *SessionManager) findSession(ctx context.Context, sessionUUID string) (*domain.Session, error) {
	session, err := m.ephemeral.FindByUUID(ctx, sessionUUID)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, repository.ErrSessionNotFound) {
		return nil, err
	}
	session, err = m.sessions.FindByUUID(ctx, sessionUUID)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

func (m *SessionManager) mintTokenPair(userUUID, sessionUUID string, now time.Time, ephemeral bool) (TokenPair, repository.SessionTokens, error) {
	accessExp := now.Add(m.ttls.Access)
	refreshExp := now.Add(m.ttls.Refresh)
	if ephemeral && m.ttls.Ephemeral > 0 && refreshExp.After(now.Add(m.ttls.Ephemeral)) {
		refreshExp = now.Add(m.ttls.Ephemeral)
	}
	if accessExp.After(refreshExp) {
		accessExp = refreshExp
	}
	access, err := m.jwtMgr.SignAccessToken(userUUID, sessionUUID, accessExp)
	if err != nil {
		return TokenPair{}, repository.SessionTokens{}, err
	}
	refresh, err := m.jwtMgr.SignRefreshToken(userUUID, sessionUUID, refreshExp)
	if err != nil {
		return TokenPair{}, repository.SessionTokens{}, err
	}
	pair := TokenPair{
		AccessToken:       access,
		RefreshToken:      refresh,
		AccessExpiration:  accessExp,
		RefreshExpiration: refreshExp,
	}
	hashed := repository.SessionTokens{
		HashedAccessToken:  security.HashToken(access, m.pepper),
		HashedRefreshToken: security.HashToken(refresh, m.pepper),
		AccessExpiration:   accessExp,
		RefreshExpiration:  refreshExp,
	}
	return pair, hashed, nil
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
