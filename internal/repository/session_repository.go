package repository

import (
	"context"
	"errors"
	"time"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionTokens is the rotating part of a session.
type SessionTokens struct {
	HashedAccessToken  string
	HashedRefreshToken string
	AccessExpiration   time.Time
	RefreshExpiration  time.Time
}

type SessionRepository interface {
	Create(ctx context.Context, s *domain.Session) error
	FindByUUID(ctx context.Context, uuid string) (*domain.Session, error)
	ListActiveByUser(ctx context.Context, userUUID string, now time.Time) ([]domain.Session, error)
	// RotateTokens swaps the token pair only while the stored refresh hash still equals
	// oldRefreshHash and the refresh token has not expired. It reports whether the swap happened.
	RotateTokens(ctx context.Context, uuid, oldRefreshHash string, now time.Time, next SessionTokens) (bool, error)
	Revoke(ctx context.Context, uuid, reason string, now time.Time) (*domain.Session, error)
	RevokeOthersByUser(ctx context.Context, userUUID, keepUUID, reason string, now time.Time) (int64, error)
	RevokeAllByUser(ctx context.Context, userUUID, reason string, now time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository { return &GormSessionRepository{db: db} }

func (r *GormSessionRepository) Create(ctx context.Context, s *domain.Session) error {
	err := r.db.WithContext(ctx).Create(s).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByUUID(ctx context.Context, uuid string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_uuid", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_uuid", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_uuid", "success")
	return &s, nil
}

func (r *GormSessionRepository) ListActiveByUser(ctx context.Context, userUUID string, now time.Time) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("user_uuid = ? AND refresh_expiration > ?", userUUID, now).
		Order("created_at DESC").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_active_by_user", "success")
	return sessions, nil
}

func (r *GormSessionRepository) RotateTokens(ctx context.Context, uuid, oldRefreshHash string, now time.Time, next SessionTokens) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("uuid = ? AND hashed_refresh_token = ? AND refresh_expiration > ?", uuid, oldRefreshHash, now).
		Updates(map[string]any{
			"hashed_access_token":  next.HashedAccessToken,
			"hashed_refresh_token": next.HashedRefreshToken,
			"access_expiration":    next.AccessExpiration,
			"refresh_expiration":   next.RefreshExpiration,
			"updated_at":           now,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "rotate_tokens", "error")
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "session", "rotate_tokens", "conflict")
		return false, nil
	}
	observability.RecordRepositoryOperation(ctx, "session", "rotate_tokens", "success")
	return true, nil
}

// Revoke deletes the session and writes its tombstone in one transaction.
func (r *GormSessionRepository) Revoke(ctx context.Context, uuid, reason string, now time.Time) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("uuid = ?", uuid).First(&s).Error; err != nil {
			return err
		}
		return deleteWithTombstones(tx, []domain.Session{s}, reason, now)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "revoke", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "revoke", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke", "success")
	return &s, nil
}

func (r *GormSessionRepository) RevokeOthersByUser(ctx context.Context, userUUID, keepUUID, reason string, now time.Time) (int64, error) {
	return r.revokeWhere(ctx, "revoke_others_by_user", reason, now, "user_uuid = ? AND uuid <> ?", userUUID, keepUUID)
}

func (r *GormSessionRepository) RevokeAllByUser(ctx context.Context, userUUID, reason string, now time.Time) (int64, error) {
	return r.revokeWhere(ctx, "revoke_all_by_user", reason, now, "user_uuid = ?", userUUID)
}

func (r *GormSessionRepository) revokeWhere(ctx context.Context, op, reason string, now time.Time, query string, args ...any) (int64, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(query, args...).Find(&sessions).Error; err != nil {
			return err
		}
		return deleteWithTombstones(tx, sessions, reason, now)
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", op, "error")
		return 0, err
	}
	observability.RecordRepositoryOperation(ctx, "session", op, "success")
	return int64(len(sessions)), nil
}

func deleteWithTombstones(tx *gorm.DB, sessions []domain.Session, reason string, now time.Time) error {
	if len(sessions) == 0 {
		return nil
	}
	uuids := make([]string, 0, len(sessions))
	tombstones := make([]domain.RevokedSession, 0, len(sessions))
	for _, s := range sessions {
		uuids = append(uuids, s.UUID)
		tombstones = append(tombstones, domain.RevokedSession{
			UUID:      s.UUID,
			UserUUID:  s.UserUUID,
			Reason:    reason,
			CreatedAt: now,
		})
	}
	if err := tx.Where("uuid IN ?", uuids).Delete(&domain.Session{}).Error; err != nil {
		return err
	}
	return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&tombstones).Error
}

func (r *GormSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("refresh_expiration <= ?", now).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "delete_expired", "error")
		return res.RowsAffected, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "delete_expired", "success")
	return res.RowsAffected, nil
}
