package repository

import (
	"context"
	"errors"

	"github.com/notesync/auth-service/internal/domain"

	"gorm.io/gorm"
)

var ErrUserSubscriptionNotFound = errors.New("user subscription not found")

type UserSubscriptionRepository interface {
	Save(ctx context.Context, sub *domain.UserSubscription) error
	FindByUUID(ctx context.Context, uuid string) (*domain.UserSubscription, error)
	// FindOneByUserUUID prefers an uncancelled subscription and otherwise returns the latest ending one.
	FindOneByUserUUID(ctx context.Context, userUUID string) (*domain.UserSubscription, error)
	FindOneByUserUUIDAndSubscriptionID(ctx context.Context, userUUID string, subscriptionID int64) (*domain.UserSubscription, error)
	FindByUserUUID(ctx context.Context, userUUID string) ([]domain.UserSubscription, error)
	FindByUserUUIDAndType(ctx context.Context, userUUID string, subType domain.SubscriptionType) ([]domain.UserSubscription, error)
	FindBySubscriptionIDAndType(ctx context.Context, subscriptionID int64, subType domain.SubscriptionType) ([]domain.UserSubscription, error)
	UpdateEndsAt(ctx context.Context, subscriptionID int64, endsAt, updatedAt int64) error
	UpdateEndsAtByUUID(ctx context.Context, uuid string, endsAt, updatedAt int64) error
	UpdateCancelled(ctx context.Context, subscriptionID int64, cancelled bool, updatedAt int64) error
}

type GormUserSubscriptionRepository struct{ db *gorm.DB }

func NewUserSubscriptionRepository(db *gorm.DB) UserSubscriptionRepository {
	return &GormUserSubscriptionRepository{db: db}
}

func (r *GormUserSubscriptionRepository) Save(ctx context.Context, sub *domain.UserSubscription) error {
	err := r.db.WithContext(ctx).Save(sub).Error
	return observe(ctx, "user_subscription", "save", err, nil)
}

func (r *GormUserSubscriptionRepository) FindByUUID(ctx context.Context, uuid string) (*domain.UserSubscription, error) {
	var sub domain.UserSubscription
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&sub).Error
	if err := observe(ctx, "user_subscription", "find_by_uuid", err, ErrUserSubscriptionNotFound); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *GormUserSubscriptionRepository) FindOneByUserUUID(ctx context.Context, userUUID string) (*domain.UserSubscription, error) {
	var subs []domain.UserSubscription
	err := r.db.WithContext(ctx).Where("user_uuid = ?", userUUID).Order("ends_at DESC").Find(&subs).Error
	if err == nil && len(subs) == 0 {
		err = gorm.ErrRecordNotFound
	}
	if err := observe(ctx, "user_subscription", "find_one_by_user_uuid", err, ErrUserSubscriptionNotFound); err != nil {
		return nil, err
	}
	for i := range subs {
		if !subs[i].Cancelled {
			return &subs[i], nil
		}
	}
	return &subs[0], nil
}

func (r *GormUserSubscriptionRepository) FindOneByUserUUIDAndSubscriptionID(ctx context.Context, userUUID string, subscriptionID int64) (*domain.UserSubscription, error) {
	var sub domain.UserSubscription
	err := r.db.WithContext(ctx).
		Where("user_uuid = ? AND subscription_id = ?", userUUID, subscriptionID).
		First(&sub).Error
	if err := observe(ctx, "user_subscription", "find_one_by_user_uuid_and_subscription_id", err, ErrUserSubscriptionNotFound); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *GormUserSubscriptionRepository) FindByUserUUID(ctx context.Context, userUUID string) ([]domain.UserSubscription, error) {
	var subs []domain.UserSubscription
	err := r.db.WithContext(ctx).Where("user_uuid = ?", userUUID).Order("ends_at DESC").Find(&subs).Error
	if err := observe(ctx, "user_subscription", "find_by_user_uuid", err, nil); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *GormUserSubscriptionRepository) FindByUserUUIDAndType(ctx context.Context, userUUID string, subType domain.SubscriptionType) ([]domain.UserSubscription, error) {
	var subs []domain.UserSubscription
	err := r.db.WithContext(ctx).
		Where("user_uuid = ? AND subscription_type = ?", userUUID, subType).
		Order("ends_at DESC").
		Find(&subs).Error
	if err := observe(ctx, "user_subscription", "find_by_user_uuid_and_type", err, nil); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *GormUserSubscriptionRepository) FindBySubscriptionIDAndType(ctx context.Context, subscriptionID int64, subType domain.SubscriptionType) ([]domain.UserSubscription, error) {
	var subs []domain.UserSubscription
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND subscription_type = ?", subscriptionID, subType).
		Order("ends_at DESC").
		Find(&subs).Error
	if err := observe(ctx, "user_subscription", "find_by_subscription_id_and_type", err, nil); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *GormUserSubscriptionRepository) UpdateEndsAt(ctx context.Context, subscriptionID int64, endsAt, updatedAt int64) error {
	err := r.db.WithContext(ctx).Model(&domain.UserSubscription{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(map[string]any{"ends_at": endsAt, "updated_at": updatedAt}).Error
	return observe(ctx, "user_subscription", "update_ends_at", err, nil)
}

func (r *GormUserSubscriptionRepository) UpdateEndsAtByUUID(ctx context.Context, uuid string, endsAt, updatedAt int64) error {
	res := r.db.WithContext(ctx).Model(&domain.UserSubscription{}).
		Where("uuid = ?", uuid).
		Updates(map[string]any{"ends_at": endsAt, "updated_at": updatedAt})
	err := res.Error
	if err == nil && res.RowsAffected == 0 {
		err = gorm.ErrRecordNotFound
	}
	return observe(ctx, "user_subscription", "update_ends_at_by_uuid", err, ErrUserSubscriptionNotFound)
}

func (r *GormUserSubscriptionRepository) UpdateCancelled(ctx context.Context, subscriptionID int64, cancelled bool, updatedAt int64) error {
	err := r.db.WithContext(ctx).Model(&domain.UserSubscription{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(map[string]any{"cancelled": cancelled, "updated_at": updatedAt}).Error
	return observe(ctx, "user_subscription", "update_cancelled", err, nil)
}
