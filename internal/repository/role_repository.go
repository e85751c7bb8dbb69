package repository

import (
	"context"
	"errors"

	"github.com/notesync/auth-service/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRoleNotFound = errors.New("role not found")

type RoleRepository interface {
	FindByName(ctx context.Context, name domain.RoleName) (*domain.Role, error)
	List(ctx context.Context) ([]domain.Role, error)
	// Sync upserts every role in the catalogue and replaces its permission set.
	Sync(ctx context.Context, catalogue map[domain.RoleName][]domain.PermissionName) error
}

type GormRoleRepository struct{ db *gorm.DB }

func NewRoleRepository(db *gorm.DB) RoleRepository { return &GormRoleRepository{db: db} }

func (r *GormRoleRepository) FindByName(ctx context.Context, name domain.RoleName) (*domain.Role, error) {
	var role domain.Role
	err := r.db.WithContext(ctx).Preload("Permissions").Where("name = ?", name).First(&role).Error
	if err := observe(ctx, "role", "find_by_name", err, ErrRoleNotFound); err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *GormRoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	var roles []domain.Role
	err := r.db.WithContext(ctx).Preload("Permissions").Order("name").Find(&roles).Error
	if err := observe(ctx, "role", "list", err, nil); err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *GormRoleRepository) Sync(ctx context.Context, catalogue map[domain.RoleName][]domain.PermissionName) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for roleName, permissionNames := range catalogue {
			perms := make([]domain.Permission, 0, len(permissionNames))
			for _, p := range permissionNames {
				perms = append(perms, domain.Permission{Name: p})
			}
			if len(perms) > 0 {
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&perms).Error; err != nil {
					return err
				}
			}
			role := domain.Role{Name: roleName}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&role).Error; err != nil {
				return err
			}
			if err := tx.Model(&role).Omit("Permissions.*").Association("Permissions").Replace(perms); err != nil {
				return err
			}
		}
		return nil
	})
	return observe(ctx, "role", "sync", err, nil)
}
