package service

import (
	"context"
	"sort"
	"time"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/repository"
	"github.com/notesync/auth-service/internal/timer"
)

// FeatureService derives entitlements from subscriptions and roles on every call.
type FeatureService struct {
	userSubscriptions    repository.UserSubscriptionRepository
	offlineSubscriptions repository.OfflineUserSubscriptionRepository
	clock                timer.Timer
	timeout              opTimeout
}

func NewFeatureService(
	userSubscriptions repository.UserSubscriptionRepository,
	offlineSubscriptions repository.OfflineUserSubscriptionRepository,
	clock timer.Timer,
	datastoreTimeout time.Duration,
) *FeatureService {
	return &FeatureService{
		userSubscriptions:    userSubscriptions,
		offlineSubscriptions: offlineSubscriptions,
		clock:                clock,
		timeout:              opTimeout(datastoreTimeout),
	}
}

type entitlementSource struct {
	plan   domain.SubscriptionName
	endsAt int64
}

func (s *FeatureService) GetFeaturesForUser(ctx context.Context, user *domain.User) ([]domain.FeatureDescription, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	subs, err := s.userSubscriptions.FindByUserUUID(ctx, user.UUID)
	if err != nil {
		return nil, err
	}
	now := s.clock.NowMicros()
	sources := make([]entitlementSource, 0, len(subs))
	for _, sub := range subs {
		if sub.EndsAt <= now {
			continue
		}
		sources = append(sources, entitlementSource{plan: sub.PlanName, endsAt: sub.EndsAt})
	}
	return resolveFeatures(sources, user.Roles), nil
}

func (s *FeatureService) GetFeaturesForOfflineUser(ctx context.Context, email string) ([]domain.FeatureDescription, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	subs, err := s.offlineSubscriptions.FindActiveByEmail(ctx, email, s.clock.NowMicros())
	if err != nil {
		return nil, err
	}
	sources := make([]entitlementSource, 0, len(subs))
	var roles []domain.Role
	seen := map[domain.RoleName]bool{}
	for _, sub := range subs {
		sources = append(sources, entitlementSource{plan: sub.PlanName, endsAt: sub.EndsAt})
		for _, role := range sub.Roles {
			if seen[role.Name] {
				continue
			}
			seen[role.Name] = true
			roles = append(roles, role)
		}
	}
	return resolveFeatures(sources, roles), nil
}

// resolveFeatures maps each distinct plan to its role and skips roles the holder
// does not actually have. A permission granted by several plans keeps the role
// of the first plan in name order and the longest expiry among them.
func resolveFeatures(sources []entitlementSource, held []domain.Role) []domain.FeatureDescription {
	roles := make(map[domain.RoleName]domain.Role, len(held))
	for _, r := range held {
		roles[r.Name] = r
	}

	longest := map[domain.SubscriptionName]int64{}
	for _, src := range sources {
		if cur, ok := longest[src.plan]; !ok || src.endsAt > cur {
			longest[src.plan] = src.endsAt
		}
	}
	plans := make([]domain.SubscriptionName, 0, len(longest))
	for plan := range longest {
		plans = append(plans, plan)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i] < plans[j] })

	features := map[domain.PermissionName]domain.FeatureDescription{}
	for _, plan := range plans {
		roleName, ok := domain.RoleForPlan(plan)
		if !ok {
			continue
		}
		role, ok := roles[roleName]
		if !ok {
			continue
		}
		expiresAt := longest[plan]
		for _, perm := range role.Permissions {
			info, ok := featureCatalogue[perm.Name]
			if !ok {
				continue
			}
			if existing, ok := features[perm.Name]; ok {
				if expiresAt > existing.ExpiresAt {
					existing.ExpiresAt = expiresAt
					features[perm.Name] = existing
				}
				continue
			}
			features[perm.Name] = domain.FeatureDescription{
				Identifier:     info.Identifier,
				Name:           info.Name,
				PermissionName: perm.Name,
				ExpiresAt:      expiresAt,
				RoleName:       roleName,
			}
		}
	}

	out := make([]domain.FeatureDescription, 0, len(features))
	for _, f := range features {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PermissionName < out[j].PermissionName })
	return out
}
