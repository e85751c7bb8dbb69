package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/repository"
)

type RoleService struct {
	users   repository.UserRepository
	offline repository.OfflineUserSubscriptionRepository
	roles   repository.RoleRepository
	timeout opTimeout
	logger  *slog.Logger
}

func NewRoleService(
	users repository.UserRepository,
	offline repository.OfflineUserSubscriptionRepository,
	roles repository.RoleRepository,
	datastoreTimeout time.Duration,
	logger *slog.Logger,
) *RoleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleService{
		users:   users,
		offline: offline,
		roles:   roles,
		timeout: opTimeout(datastoreTimeout),
		logger:  logger,
	}
}

// SyncRoles makes sure every role and permission of the plan catalogue exists.
func (s *RoleService) SyncRoles(ctx context.Context) error {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()
	return s.roles.Sync(ctx, domain.RolePermissions)
}

func (s *RoleService) AddUserRole(ctx context.Context, user *domain.User, plan domain.SubscriptionName) error {
	role, ok := domain.RoleForPlan(plan)
	if !ok {
		s.logger.WarnContext(ctx, "could not find role for subscription", "plan", plan)
		return nil
	}
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()
	return s.users.AddRole(ctx, user.UUID, role)
}

func (s *RoleService) RemoveUserRole(ctx context.Context, user *domain.User, plan domain.SubscriptionName) error {
	role, ok := domain.RoleForPlan(plan)
	if !ok {
		s.logger.WarnContext(ctx, "could not find role for subscription", "plan", plan)
		return nil
	}
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()
	return s.users.RemoveRole(ctx, user.UUID, role)
}

func (s *RoleService) SetOfflineUserRole(ctx context.Context, sub *domain.OfflineUserSubscription) error {
	role, ok := domain.RoleForPlan(sub.PlanName)
	if !ok {
		s.logger.WarnContext(ctx, "could not find role for offline subscription", "plan", sub.PlanName)
		return nil
	}
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()
	return s.offline.SetRoles(ctx, sub.UUID, []domain.RoleName{role})
}

// UserHasPermission reloads the user so role changes made by billing events are
// visible immediately.
func (s *RoleService) UserHasPermission(ctx context.Context, userUUID string, permission domain.PermissionName) (bool, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()
	user, err := s.users.FindByUUID(ctx, userUUID)
	if err != nil {
		return false, err
	}
	return holdsPermission(user, permission), nil
}

func holdsPermission(user *domain.User, permission domain.PermissionName) bool {
	for _, role := range user.Roles {
		for _, p := range role.Permissions {
			if p.Name == permission {
				return true
			}
		}
	}
	return false
}
