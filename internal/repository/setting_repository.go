package repository

import (
	"context"
	"errors"

	"github.com/notesync/auth-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSettingNotFound = errors.New("setting not found")

type SettingRepository interface {
	FindByUUID(ctx context.Context, uuid string) (*domain.Setting, error)
	FindLastByNameAndUser(ctx context.Context, name domain.SettingName, userUUID string) (*domain.Setting, error)
	FindAllByUser(ctx context.Context, userUUID string) ([]domain.Setting, error)
	// CreateOrReplace writes s as the single current row for its (name, user) pair. When byUUID
	// is set the existing row is looked up by s.UUID instead. The replaced row keeps its uuid and
	// creation time. It reports whether a new row was inserted.
	CreateOrReplace(ctx context.Context, s *domain.Setting, byUUID bool) (bool, error)
	ClearValue(ctx context.Context, uuid string, updatedAt int64) error
	Delete(ctx context.Context, uuid string) error
}

type GormSettingRepository struct{ db *gorm.DB }

func NewSettingRepository(db *gorm.DB) SettingRepository { return &GormSettingRepository{db: db} }

func (r *GormSettingRepository) FindByUUID(ctx context.Context, uuid string) (*domain.Setting, error) {
	var s domain.Setting
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&s).Error
	if err := observe(ctx, "setting", "find_by_uuid", err, ErrSettingNotFound); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSettingRepository) FindLastByNameAndUser(ctx context.Context, name domain.SettingName, userUUID string) (*domain.Setting, error) {
	var s domain.Setting
	err := r.db.WithContext(ctx).
		Where("name = ? AND user_uuid = ?", name, userUUID).
		Order("updated_at DESC").
		First(&s).Error
	if err := observe(ctx, "setting", "find_last_by_name_and_user", err, ErrSettingNotFound); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSettingRepository) FindAllByUser(ctx context.Context, userUUID string) ([]domain.Setting, error) {
	var settings []domain.Setting
	err := r.db.WithContext(ctx).Where("user_uuid = ?", userUUID).Order("name").Find(&settings).Error
	if err := observe(ctx, "setting", "find_all_by_user", err, nil); err != nil {
		return nil, err
	}
	return settings, nil
}

func (r *GormSettingRepository) CreateOrReplace(ctx context.Context, s *domain.Setting, byUUID bool) (bool, error) {
	created, err := r.createOrReplace(ctx, s, byUUID)
	if isUniqueViolation(err) {
		// A concurrent insert for the same (name, user) won; fold this write into it.
		created, err = r.createOrReplace(ctx, s, false)
	}
	if err := observe(ctx, "setting", "create_or_replace", err, nil); err != nil {
		return false, err
	}
	return created, nil
}

func (r *GormSettingRepository) createOrReplace(ctx context.Context, s *domain.Setting, byUUID bool) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.Setting
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"})
		if byUUID {
			q = q.Where("uuid = ? AND user_uuid = ?", s.UUID, s.UserUUID)
		} else {
			q = q.Where("name = ? AND user_uuid = ?", s.Name, s.UserUUID).Order("updated_at DESC")
		}
		err := q.First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created = true
			return tx.Create(s).Error
		}
		if err != nil {
			return err
		}
		s.UUID = existing.UUID
		s.CreatedAt = existing.CreatedAt
		return tx.Model(&domain.Setting{}).Where("uuid = ?", existing.UUID).Updates(map[string]any{
			"name":                      s.Name,
			"value":                     s.Value,
			"server_encryption_version": s.ServerEncryptionVersion,
			"sensitive":                 s.Sensitive,
			"updated_at":                s.UpdatedAt,
		}).Error
	})
	return created, err
}

func (r *GormSettingRepository) ClearValue(ctx context.Context, uuid string, updatedAt int64) error {
	res := r.db.WithContext(ctx).Model(&domain.Setting{}).Where("uuid = ?", uuid).Updates(map[string]any{
		"value":      nil,
		"updated_at": updatedAt,
	})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = gorm.ErrRecordNotFound
	}
	return observe(ctx, "setting", "clear_value", err, ErrSettingNotFound)
}

func (r *GormSettingRepository) Delete(ctx context.Context, uuid string) error {
	res := r.db.WithContext(ctx).Where("uuid = ?", uuid).Delete(&domain.Setting{})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = gorm.ErrRecordNotFound
	}
	return observe(ctx, "setting", "delete", err, ErrSettingNotFound)
}
