package repository

import (
	"context"
	"errors"

	"github.com/notesync/auth-service/internal/domain"

	"gorm.io/gorm"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserAlreadyExists = errors.New("user already exists")
)

type UserRepository interface {
	FindByUUID(ctx context.Context, uuid string) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) error
	AddRole(ctx context.Context, userUUID string, role domain.RoleName) error
	RemoveRole(ctx context.Context, userUUID string, role domain.RoleName) error
	Delete(ctx context.Context, uuid string) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &GormUserRepository{db: db} }

func (r *GormUserRepository) FindByUUID(ctx context.Context, uuid string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Preload("Roles.Permissions").Where("uuid = ?", uuid).First(&u).Error
	if err := observe(ctx, "user", "find_by_uuid", err, ErrUserNotFound); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	var u domain.User
	err := r.db.WithContext(ctx).Preload("Roles.Permissions").Where("email = ?", email).First(&u).Error
	if err := observe(ctx, "user", "find_by_email", err, ErrUserNotFound); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	err := r.db.WithContext(ctx).Create(user).Error
	if isUniqueViolation(err) {
		err = ErrUserAlreadyExists
	}
	return observe(ctx, "user", "create", err, nil)
}

// AddRole is idempotent; the join row is inserted with ON CONFLICT DO NOTHING.
func (r *GormUserRepository) AddRole(ctx context.Context, userUUID string, role domain.RoleName) error {
	u := domain.User{UUID: userUUID}
	err := r.db.WithContext(ctx).Model(&u).Omit("Roles.*").Association("Roles").Append(&domain.Role{Name: role})
	return observe(ctx, "user", "add_role", err, nil)
}

func (r *GormUserRepository) RemoveRole(ctx context.Context, userUUID string, role domain.RoleName) error {
	u := domain.User{UUID: userUUID}
	err := r.db.WithContext(ctx).Model(&u).Association("Roles").Delete(&domain.Role{Name: role})
	return observe(ctx, "user", "remove_role", err, nil)
}

func (r *GormUserRepository) Delete(ctx context.Context, uuid string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u := domain.User{UUID: uuid}
		if err := tx.Model(&u).Association("Roles").Clear(); err != nil {
			return err
		}
		res := tx.Where("uuid = ?", uuid).Delete(&domain.User{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
	return observe(ctx, "user", "delete", err, ErrUserNotFound)
}
