package repository

import (
	"context"

	"github.com/notesync/auth-service/internal/domain"

	"gorm.io/gorm"
)

type PermissionRepository interface {
	List(ctx context.Context) ([]domain.Permission, error)
	ListByRole(ctx context.Context, role domain.RoleName) ([]domain.Permission, error)
}

type GormPermissionRepository struct{ db *gorm.DB }

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &GormPermissionRepository{db: db}
}

func (r *GormPermissionRepository) List(ctx context.Context) ([]domain.Permission, error) {
	var perms []domain.Permission
	err := r.db.WithContext(ctx).Order("name").Find(&perms).Error
	if err := observe(ctx, "permission", "list", err, nil); err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *GormPermissionRepository) ListByRole(ctx context.Context, role domain.RoleName) ([]domain.Permission, error) {
	var perms []domain.Permission
	err := r.db.WithContext(ctx).
		Joins("JOIN role_permissions rp ON rp.permission_name = permissions.name").
		Where("rp.role_name = ?", role).
		Order("permissions.name").
		Find(&perms).Error
	if err := observe(ctx, "permission", "list_by_role", err, nil); err != nil {
		return nil, err
	}
	return perms, nil
}
