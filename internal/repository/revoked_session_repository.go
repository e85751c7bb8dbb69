package repository

import (
	"context"
	"errors"
	"time"

	"github.com/notesync/auth-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRevokedSessionNotFound = errors.New("revoked session not found")

type RevokedSessionRepository interface {
	Create(ctx context.Context, rs *domain.RevokedSession) error
	FindByUUID(ctx context.Context, uuid string) (*domain.RevokedSession, error)
	MarkReceived(ctx context.Context, uuid string) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type GormRevokedSessionRepository struct{ db *gorm.DB }

func NewRevokedSessionRepository(db *gorm.DB) RevokedSessionRepository {
	return &GormRevokedSessionRepository{db: db}
}

func (r *GormRevokedSessionRepository) Create(ctx context.Context, rs *domain.RevokedSession) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(rs).Error
	return observe(ctx, "revoked_session", "create", err, nil)
}

func (r *GormRevokedSessionRepository) FindByUUID(ctx context.Context, uuid string) (*domain.RevokedSession, error) {
	var rs domain.RevokedSession
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&rs).Error
	if err := observe(ctx, "revoked_session", "find_by_uuid", err, ErrRevokedSessionNotFound); err != nil {
		return nil, err
	}
	return &rs, nil
}

func (r *GormRevokedSessionRepository) MarkReceived(ctx context.Context, uuid string) error {
	res := r.db.WithContext(ctx).Model(&domain.RevokedSession{}).Where("uuid = ?", uuid).Update("received", true)
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = gorm.ErrRecordNotFound
	}
	return observe(ctx, "revoked_session", "mark_received", err, ErrRevokedSessionNotFound)
}

func (r *GormRevokedSessionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&domain.RevokedSession{})
	if err := observe(ctx, "revoked_session", "delete_older_than", res.Error, nil); err != nil {
		return 0, err
	}
	return res.RowsAffected, nil
}
