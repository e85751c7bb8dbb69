package repository

import (
	"context"
	"errors"

	"github.com/notesync/auth-service/internal/domain"

	"gorm.io/gorm"
)

var ErrInvitationNotFound = errors.New("invitation not found")

type InvitationRepository interface {
	Create(ctx context.Context, inv *domain.SharedSubscriptionInvitation) error
	FindByUUID(ctx context.Context, uuid string) (*domain.SharedSubscriptionInvitation, error)
	FindByInviterEmail(ctx context.Context, email string) ([]domain.SharedSubscriptionInvitation, error)
	// TransitionStatus moves an invitation from one status to another only if it is still in from.
	TransitionStatus(ctx context.Context, uuid string, from, to domain.InvitationStatus, updatedAt int64) (bool, error)
	// Accept marks the invitation accepted, stores the invitee's shared
	// subscription and grants role in one transaction. It reports false and
	// writes nothing when the invitation is no longer in from.
	Accept(ctx context.Context, uuid string, from domain.InvitationStatus, shared *domain.UserSubscription, role domain.RoleName) (bool, error)
}

type GormInvitationRepository struct{ db *gorm.DB }

func NewInvitationRepository(db *gorm.DB) InvitationRepository {
	return &GormInvitationRepository{db: db}
}

func (r *GormInvitationRepository) Create(ctx context.Context, inv *domain.SharedSubscriptionInvitation) error {
	err := r.db.WithContext(ctx).Create(inv).Error
	return observe(ctx, "invitation", "create", err, nil)
}

func (r *GormInvitationRepository) FindByUUID(ctx context.Context, uuid string) (*domain.SharedSubscriptionInvitation, error) {
	var inv domain.SharedSubscriptionInvitation
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&inv).Error
	if err := observe(ctx, "invitation", "find_by_uuid", err, ErrInvitationNotFound); err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *GormInvitationRepository) FindByInviterEmail(ctx context.Context, email string) ([]domain.SharedSubscriptionInvitation, error) {
	var invs []domain.SharedSubscriptionInvitation
	err := r.db.WithContext(ctx).
		Where("inviter_identifier = ? AND inviter_identifier_type = ?", email, domain.IdentifierTypeEmail).
		Order("created_at DESC").
		Find(&invs).Error
	if err := observe(ctx, "invitation", "find_by_inviter_email", err, nil); err != nil {
		return nil, err
	}
	return invs, nil
}

func (r *GormInvitationRepository) TransitionStatus(ctx context.Context, uuid string, from, to domain.InvitationStatus, updatedAt int64) (bool, error) {
	res := r.db.WithContext(ctx).Model(&domain.SharedSubscriptionInvitation{}).
		Where("uuid = ? AND status = ?", uuid, from).
		Updates(map[string]any{"status": to, "updated_at": updatedAt})
	if err := observe(ctx, "invitation", "transition_status", res.Error, nil); err != nil {
		return false, err
	}
	return res.RowsAffected > 0, nil
}

func (r *GormInvitationRepository) Accept(ctx context.Context, uuid string, from domain.InvitationStatus, shared *domain.UserSubscription, role domain.RoleName) (bool, error) {
	moved := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.SharedSubscriptionInvitation{}).
			Where("uuid = ? AND status = ?", uuid, from).
			Updates(map[string]any{"status": domain.InvitationStatusAccepted, "updated_at": shared.UpdatedAt})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Create(shared).Error; err != nil {
			return err
		}
		if role != "" {
			u := domain.User{UUID: shared.UserUUID}
			if err := tx.Model(&u).Omit("Roles.*").Association("Roles").Append(&domain.Role{Name: role}); err != nil {
				return err
			}
		}
		moved = true
		return nil
	})
	if err := observe(ctx, "invitation", "accept", err, nil); err != nil {
		return false, err
	}
	return moved, nil
}
