package repository

import (
	"context"
	"errors"

	"github.com/notesync/auth-service/internal/domain"

	"gorm.io/gorm"
)

var ErrOfflineUserSubscriptionNotFound = errors.New("offline user subscription not found")

type OfflineUserSubscriptionRepository interface {
	Save(ctx context.Context, sub *domain.OfflineUserSubscription) error
	FindOneByEmail(ctx context.Context, email string) (*domain.OfflineUserSubscription, error)
	// FindActiveByEmail returns subscriptions ending after activeAfter, latest first, with their roles.
	FindActiveByEmail(ctx context.Context, email string, activeAfter int64) ([]domain.OfflineUserSubscription, error)
	SetRoles(ctx context.Context, uuid string, roles []domain.RoleName) error
	UpdateEndsAt(ctx context.Context, subscriptionID int64, endsAt, updatedAt int64) error
	UpdateCancelled(ctx context.Context, subscriptionID int64, cancelled bool, updatedAt int64) error
}

type GormOfflineUserSubscriptionRepository struct{ db *gorm.DB }

func NewOfflineUserSubscriptionRepository(db *gorm.DB) OfflineUserSubscriptionRepository {
	return &GormOfflineUserSubscriptionRepository{db: db}
}

func (r *GormOfflineUserSubscriptionRepository) Save(ctx context.Context, sub *domain.OfflineUserSubscription) error {
	err := r.db.WithContext(ctx).Omit("Roles").Save(sub).Error
	return observe(ctx, "offline_user_subscription", "save", err, nil)
}

func (r *GormOfflineUserSubscriptionRepository) FindOneByEmail(ctx context.Context, email string) (*domain.OfflineUserSubscription, error) {
	var subs []domain.OfflineUserSubscription
	err := r.db.WithContext(ctx).Preload("Roles.Permissions").Where("email = ?", email).Order("ends_at DESC").Find(&subs).Error
	if err == nil && len(subs) == 0 {
		err = gorm.ErrRecordNotFound
	}
	if err := observe(ctx, "offline_user_subscription", "find_one_by_email", err, ErrOfflineUserSubscriptionNotFound); err != nil {
		return nil, err
	}
	for i := range subs {
		if !subs[i].Cancelled {
			return &subs[i], nil
		}
	}
	return &subs[0], nil
}

func (r *GormOfflineUserSubscriptionRepository) FindActiveByEmail(ctx context.Context, email string, activeAfter int64) ([]domain.OfflineUserSubscription, error) {
	var subs []domain.OfflineUserSubscription
	err := r.db.WithContext(ctx).
		Preload("Roles.Permissions").
		Where("email = ? AND ends_at > ?", email, activeAfter).
		Order("ends_at DESC").
		Find(&subs).Error
	if err := observe(ctx, "offline_user_subscription", "find_active_by_email", err, nil); err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *GormOfflineUserSubscriptionRepository) SetRoles(ctx context.Context, uuid string, roles []domain.RoleName) error {
	values := make([]domain.Role, 0, len(roles))
	for _, name := range roles {
		values = append(values, domain.Role{Name: name})
	}
	sub := domain.OfflineUserSubscription{UUID: uuid}
	err := r.db.WithContext(ctx).Model(&sub).Omit("Roles.*").Association("Roles").Replace(values)
	return observe(ctx, "offline_user_subscription", "set_roles", err, nil)
}

func (r *GormOfflineUserSubscriptionRepository) UpdateEndsAt(ctx context.Context, subscriptionID int64, endsAt, updatedAt int64) error {
	err := r.db.WithContext(ctx).Model(&domain.OfflineUserSubscription{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(map[string]any{"ends_at": endsAt, "updated_at": updatedAt}).Error
	return observe(ctx, "offline_user_subscription", "update_ends_at", err, nil)
}

func (r *GormOfflineUserSubscriptionRepository) UpdateCancelled(ctx context.Context, subscriptionID int64, cancelled bool, updatedAt int64) error {
	err := r.db.WithContext(ctx).Model(&domain.OfflineUserSubscription{}).
		Where("subscription_id = ?", subscriptionID).
		Updates(map[string]any{"cancelled": cancelled, "updated_at": updatedAt}).Error
	return observe(ctx, "offline_user_subscription", "update_cancelled", err, nil)
}
