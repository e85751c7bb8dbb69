package repository

import (
	"context"
	"errors"

	"github.com/notesync/auth-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSubscriptionSettingNotFound = errors.New("subscription setting not found")

type SubscriptionSettingRepository interface {
	FindByUUID(ctx context.Context, uuid string) (*domain.SubscriptionSetting, error)
	FindLastByNameAndSubscription(ctx context.Context, name domain.SubscriptionSettingName, userSubscriptionUUID string) (*domain.SubscriptionSetting, error)
	FindAllBySubscription(ctx context.Context, userSubscriptionUUID string) ([]domain.SubscriptionSetting, error)
	CreateOrReplace(ctx context.Context, s *domain.SubscriptionSetting, byUUID bool) (bool, error)
	// UpdateValue rewrites the stored value of an existing setting under a row lock.
	UpdateValue(ctx context.Context, name domain.SubscriptionSettingName, userSubscriptionUUID string, updatedAt int64, fn func(current *string) (*string, error)) error
}

type GormSubscriptionSettingRepository struct{ db *gorm.DB }

func NewSubscriptionSettingRepository(db *gorm.DB) SubscriptionSettingRepository {
	return &GormSubscriptionSettingRepository{db: db}
}

func (r *GormSubscriptionSettingRepository) FindByUUID(ctx context.Context, uuid string) (*domain.SubscriptionSetting, error) {
	var s domain.SubscriptionSetting
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&s).Error
	if err := observe(ctx, "subscription_setting", "find_by_uuid", err, ErrSubscriptionSettingNotFound); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSubscriptionSettingRepository) FindLastByNameAndSubscription(ctx context.Context, name domain.SubscriptionSettingName, userSubscriptionUUID string) (*domain.SubscriptionSetting, error) {
	var s domain.SubscriptionSetting
	err := r.db.WithContext(ctx).
		Where("name = ? AND user_subscription_uuid = ?", name, userSubscriptionUUID).
		Order("updated_at DESC").
		First(&s).Error
	if err := observe(ctx, "subscription_setting", "find_last_by_name_and_subscription", err, ErrSubscriptionSettingNotFound); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormSubscriptionSettingRepository) FindAllBySubscription(ctx context.Context, userSubscriptionUUID string) ([]domain.SubscriptionSetting, error) {
	var settings []domain.SubscriptionSetting
	err := r.db.WithContext(ctx).Where("user_subscription_uuid = ?", userSubscriptionUUID).Order("name").Find(&settings).Error
	if err := observe(ctx, "subscription_setting", "find_all_by_subscription", err, nil); err != nil {
		return nil, err
	}
	return settings, nil
}

func (r *GormSubscriptionSettingRepository) CreateOrReplace(ctx context.Context, s *domain.SubscriptionSetting, byUUID bool) (bool, error) {
	created, err := r.createOrReplace(ctx, s, byUUID)
	if isUniqueViolation(err) {
		created, err = r.createOrReplace(ctx, s, false)
	}
	if err := observe(ctx, "subscription_setting", "create_or_replace", err, nil); err != nil {
		return false, err
	}
	return created, nil
}

func (r *GormSubscriptionSettingRepository) createOrReplace(ctx context.Context, s *domain.SubscriptionSetting, byUUID bool) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.SubscriptionSetting
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"})
		if byUUID {
			q = q.Where("uuid = ? AND user_subscription_uuid = ?", s.UUID, s.UserSubscriptionUUID)
		} else {
			q = q.Where("name = ? AND user_subscription_uuid = ?", s.Name, s.UserSubscriptionUUID).Order("updated_at DESC")
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
		return tx.Model(&domain.SubscriptionSetting{}).Where("uuid = ?", existing.UUID).Updates(map[string]any{
			"name":                      s.Name,
			"value":                     s.Value,
			"server_encryption_version": s.ServerEncryptionVersion,
			"sensitive":                 s.Sensitive,
			"updated_at":                s.UpdatedAt,
		}).Error
	})
	return created, err
}

func (r *GormSubscriptionSettingRepository) UpdateValue(ctx context.Context, name domain.SubscriptionSettingName, userSubscriptionUUID string, updatedAt int64, fn func(current *string) (*string, error)) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing domain.SubscriptionSetting
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ? AND user_subscription_uuid = ?", name, userSubscriptionUUID).
			Order("updated_at DESC").
			First(&existing).Error
		if err != nil {
			return err
		}
		next, err := fn(existing.Value)
		if err != nil {
			return err
		}
		return tx.Model(&domain.SubscriptionSetting{}).Where("uuid = ?", existing.UUID).Updates(map[string]any{
			"value":      next,
			"updated_at": updatedAt,
		}).Error
	})
	return observe(ctx, "subscription_setting", "update_value", err, ErrSubscriptionSettingNotFound)
}
