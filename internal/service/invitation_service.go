package service

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/event"
	"github.com/notesync/auth-service/internal/observability"
	"github.com/notesync/auth-service/internal/repository"
	"github.com/notesync/auth-service/internal/timer"
)

var vaultIdentifierPattern = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// ClassifyInviteeIdentifier treats a 64 character hex string as a vault account
// hash and everything else as an email address.
func ClassifyInviteeIdentifier(identifier string) domain.InviteeIdentifierType {
	if vaultIdentifierPattern.MatchString(identifier) {
		return domain.IdentifierTypeHash
	}
	return domain.IdentifierTypeEmail
}

const (
	TagInvitationNotFound   = "invitation-not-found"
	TagInvitationNotPending = "invitation-not-pending"
	TagUnauthorized         = "unauthorized"
	TagInviteeNotFound      = "invitee-not-found"
)

type InvitationResult struct {
	Success        bool   `json:"success"`
	InvitationUUID string `json:"shared_subscription_invitation_uuid,omitempty"`
	ErrorTag       string `json:"error_tag,omitempty"`
	Message        string `json:"message,omitempty"`
}

func invitationFailure(err error) InvitationResult {
	return InvitationResult{ErrorTag: invitationErrorTag(err), Message: err.Error()}
}

func invitationErrorTag(err error) string {
	switch {
	case errors.Is(err, ErrInvitationNotFound):
		return TagInvitationNotFound
	case errors.Is(err, ErrInvitationNotPending):
		return TagInvitationNotPending
	case errors.Is(err, ErrInviterMismatch):
		return TagUnauthorized
	case errors.Is(err, ErrSubscriptionNotFound):
		return TagNoSubscription
	case errors.Is(err, ErrUserNotFound):
		return TagInviteeNotFound
	default:
		return ""
	}
}

type InvitationView struct {
	UUID                  string                       `json:"uuid"`
	InviteeIdentifier     string                       `json:"invitee_identifier"`
	InviteeIdentifierType domain.InviteeIdentifierType `json:"invitee_identifier_type"`
	Status                domain.InvitationStatus      `json:"status"`
	CreatedAt             int64                        `json:"created_at"`
	UpdatedAt             int64                        `json:"updated_at"`
}

type subscriptionRoles interface {
	RemoveUserRole(ctx context.Context, user *domain.User, plan domain.SubscriptionName) error
}

type subscriptionDefaults interface {
	ApplyDefaultSubscriptionSettingsForSubscription(ctx context.Context, sub *domain.UserSubscription, plan domain.SubscriptionName) error
}

type InvitationService struct {
	invitations   repository.InvitationRepository
	subscriptions repository.UserSubscriptionRepository
	users         repository.UserRepository
	roles         subscriptionRoles
	defaults      subscriptionDefaults
	events        eventEmitter
	clock         timer.Timer
	timeout       opTimeout
	logger        *slog.Logger
}

func NewInvitationService(
	invitations repository.InvitationRepository,
	subscriptions repository.UserSubscriptionRepository,
	users repository.UserRepository,
	roles *RoleService,
	defaults *SubscriptionSettingService,
	publisher event.Publisher,
	clock timer.Timer,
	datastoreTimeout time.Duration,
	logger *slog.Logger,
) *InvitationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvitationService{
		invitations:   invitations,
		subscriptions: subscriptions,
		users:         users,
		roles:         roles,
		defaults:      defaults,
		events:        eventEmitter{publisher: publisher, clock: clock, logger: logger},
		clock:         clock,
		timeout:       opTimeout(datastoreTimeout),
		logger:        logger,
	}
}

func (s *InvitationService) Invite(ctx context.Context, inviterUUID, inviterEmail, inviteeIdentifier string) (InvitationResult, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	inviteeIdentifier = strings.TrimSpace(inviteeIdentifier)
	now := s.clock.NowMicros()
	sub, err := s.activeRegularSubscription(ctx, inviterUUID, now)
	if errors.Is(err, ErrSubscriptionNotFound) {
		observability.RecordInvitationTransition(ctx, "invite", "no_subscription")
		return invitationFailure(err), nil
	}
	if err != nil {
		return InvitationResult{}, err
	}

	inv := &domain.SharedSubscriptionInvitation{
		UUID:                  uuid.NewString(),
		SubscriptionID:        sub.SubscriptionID,
		InviterIdentifier:     inviterEmail,
		InviterIdentifierType: domain.IdentifierTypeEmail,
		InviteeIdentifier:     inviteeIdentifier,
		InviteeIdentifierType: ClassifyInviteeIdentifier(inviteeIdentifier),
		Status:                domain.InvitationStatusSent,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.invitations.Create(ctx, inv); err != nil {
		observability.RecordInvitationTransition(ctx, "invite", "error")
		return InvitationResult{}, err
	}
	observability.RecordInvitationTransition(ctx, "invite", "success")

	s.events.emit(ctx, event.TypeSharedSubscriptionInvitationCreated, event.SharedSubscriptionInvitationPayload{
		InviterEmail:                     inviterEmail,
		InviterSubscriptionID:            sub.SubscriptionID,
		InviteeIdentifier:                inv.InviteeIdentifier,
		InviteeIdentifierType:            string(inv.InviteeIdentifierType),
		SharedSubscriptionInvitationUUID: inv.UUID,
	})
	return InvitationResult{Success: true, InvitationUUID: inv.UUID}, nil
}

// Accept grants the invitee a shared subscription mirroring the inviter's plan,
// expiry and subscription id. The status change, the shared subscription and
// the plan role are committed together; default settings follow and are safe
// to reapply.
func (s *InvitationService) Accept(ctx context.Context, invitationUUID string) (InvitationResult, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	inv, err := s.findInvitation(ctx, invitationUUID)
	if err != nil {
		return s.failure(ctx, "accept", err)
	}
	if !inv.Status.CanTransitionTo(domain.InvitationStatusAccepted) {
		return s.failure(ctx, "accept", ErrInvitationNotPending)
	}
	if inv.InviteeIdentifierType != domain.IdentifierTypeEmail {
		return s.failure(ctx, "accept", ErrUserNotFound)
	}
	invitee, err := s.users.FindByEmail(ctx, inv.InviteeIdentifier)
	if errors.Is(err, repository.ErrUserNotFound) {
		return s.failure(ctx, "accept", ErrUserNotFound)
	}
	if err != nil {
		return InvitationResult{}, err
	}
	inviterSub, err := s.inviterSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return s.failure(ctx, "accept", err)
	}

	now := s.clock.NowMicros()
	shared := &domain.UserSubscription{
		UUID:             uuid.NewString(),
		UserUUID:         invitee.UUID,
		PlanName:         inviterSub.PlanName,
		SubscriptionType: domain.SubscriptionTypeShared,
		SubscriptionID:   inviterSub.SubscriptionID,
		EndsAt:           inviterSub.EndsAt,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	role, ok := domain.RoleForPlan(inviterSub.PlanName)
	if !ok {
		s.logger.WarnContext(ctx, "could not find role for subscription", "plan", inviterSub.PlanName)
	}
	moved, err := s.invitations.Accept(ctx, inv.UUID, inv.Status, shared, role)
	if err != nil {
		observability.RecordInvitationTransition(ctx, "accept", "error")
		return InvitationResult{}, err
	}
	if !moved {
		return s.failure(ctx, "accept", ErrInvitationNotPending)
	}
	if err := s.defaults.ApplyDefaultSubscriptionSettingsForSubscription(ctx, shared, inviterSub.PlanName); err != nil {
		s.logger.WarnContext(ctx, "could not apply default settings to shared subscription",
			"subscription_uuid", shared.UUID, "error", err)
	}
	observability.RecordInvitationTransition(ctx, "accept", "success")

	s.events.emit(ctx, event.TypeSharedSubscriptionInvitationAccepted, event.SharedSubscriptionInvitationPayload{
		InviterEmail:                     inv.InviterIdentifier,
		InviterSubscriptionID:            inv.SubscriptionID,
		InviteeIdentifier:                invitee.UUID,
		InviteeIdentifierType:            string(domain.IdentifierTypeUUID),
		SharedSubscriptionInvitationUUID: inv.UUID,
	})
	return InvitationResult{Success: true, InvitationUUID: inv.UUID}, nil
}

func (s *InvitationService) Decline(ctx context.Context, invitationUUID string) (InvitationResult, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	inv, err := s.findInvitation(ctx, invitationUUID)
	if err != nil {
		return s.failure(ctx, "decline", err)
	}
	if !inv.Status.CanTransitionTo(domain.InvitationStatusDeclined) {
		return s.failure(ctx, "decline", ErrInvitationNotPending)
	}
	moved, err := s.invitations.TransitionStatus(ctx, inv.UUID, inv.Status, domain.InvitationStatusDeclined, s.clock.NowMicros())
	if err != nil {
		return InvitationResult{}, err
	}
	if !moved {
		return s.failure(ctx, "decline", ErrInvitationNotPending)
	}
	observability.RecordInvitationTransition(ctx, "decline", "success")
	return InvitationResult{Success: true, InvitationUUID: inv.UUID}, nil
}

// Cancel is only allowed for the inviter. When the invitee already accepted,
// their shared subscription ends now and the plan role is taken away.
func (s *InvitationService) Cancel(ctx context.Context, invitationUUID, inviterEmail string) (InvitationResult, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	inv, err := s.findInvitation(ctx, invitationUUID)
	if err != nil {
		return s.failure(ctx, "cancel", err)
	}
	if !strings.EqualFold(inv.InviterIdentifier, inviterEmail) {
		return s.failure(ctx, "cancel", ErrInviterMismatch)
	}
	if !inv.Status.CanTransitionTo(domain.InvitationStatusCanceled) {
		return s.failure(ctx, "cancel", ErrInvitationNotPending)
	}
	inviterSub, err := s.inviterSubscription(ctx, inv.SubscriptionID)
	if err != nil {
		return s.failure(ctx, "cancel", err)
	}

	var invitee *domain.User
	if inv.InviteeIdentifierType == domain.IdentifierTypeEmail {
		invitee, err = s.users.FindByEmail(ctx, inv.InviteeIdentifier)
		if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
			return InvitationResult{}, err
		}
	}

	now := s.clock.NowMicros()
	moved, err := s.invitations.TransitionStatus(ctx, inv.UUID, inv.Status, domain.InvitationStatusCanceled, now)
	if err != nil {
		return InvitationResult{}, err
	}
	if !moved {
		return s.failure(ctx, "cancel", ErrInvitationNotPending)
	}

	inviteeIdentifier, inviteeType := inv.InviteeIdentifier, inv.InviteeIdentifierType
	if invitee != nil {
		if err := s.endSharedSubscription(ctx, invitee, inv.SubscriptionID, now); err != nil {
			return InvitationResult{}, err
		}
		if err := s.roles.RemoveUserRole(ctx, invitee, inviterSub.PlanName); err != nil {
			return InvitationResult{}, err
		}
		inviteeIdentifier, inviteeType = invitee.UUID, domain.IdentifierTypeUUID
	}
	observability.RecordInvitationTransition(ctx, "cancel", "success")

	s.events.emit(ctx, event.TypeSharedSubscriptionInvitationCanceled, event.SharedSubscriptionInvitationPayload{
		InviterEmail:                     inv.InviterIdentifier,
		InviterSubscriptionID:            inv.SubscriptionID,
		InviteeIdentifier:                inviteeIdentifier,
		InviteeIdentifierType:            string(inviteeType),
		SharedSubscriptionInvitationUUID: inv.UUID,
	})
	return InvitationResult{Success: true, InvitationUUID: inv.UUID}, nil
}

func (s *InvitationService) ListInvitations(ctx context.Context, inviterEmail string) ([]InvitationView, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	invitations, err := s.invitations.FindByInviterEmail(ctx, inviterEmail)
	if err != nil {
		return nil, err
	}
	views := make([]InvitationView, 0, len(invitations))
	for _, inv := range invitations {
		views = append(views, InvitationView{
			UUID:                  inv.UUID,
			InviteeIdentifier:     inv.InviteeIdentifier,
			InviteeIdentifierType: inv.InviteeIdentifierType,
			Status:                inv.Status,
			CreatedAt:             inv.CreatedAt,
			UpdatedAt:             inv.UpdatedAt,
		})
	}
	return views, nil
}

func (s *InvitationService) endSharedSubscription(ctx context.Context, invitee *domain.User, subscriptionID int64, now int64) error {
	sub, err := s.subscriptions.FindOneByUserUUIDAndSubscriptionID(ctx, invitee.UUID, subscriptionID)
	if errors.Is(err, repository.ErrUserSubscriptionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.subscriptions.UpdateEndsAtByUUID(ctx, sub.UUID, now, now)
}

func (s *InvitationService) findInvitation(ctx context.Context, invitationUUID string) (*domain.SharedSubscriptionInvitation, error) {
	inv, err := s.invitations.FindByUUID(ctx, invitationUUID)
	if errors.Is(err, repository.ErrInvitationNotFound) {
		return nil, ErrInvitationNotFound
	}
	return inv, err
}

// activeRegularSubscription returns a regular subscription of userUUID that has
// not ended yet. Shared and lapsed subscriptions cannot be passed on.
func (s *InvitationService) activeRegularSubscription(ctx context.Context, userUUID string, now int64) (*domain.UserSubscription, error) {
	subs, err := s.subscriptions.FindByUserUUIDAndType(ctx, userUUID, domain.SubscriptionTypeRegular)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if subs[i].EndsAt > now {
			return &subs[i], nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *InvitationService) inviterSubscription(ctx context.Context, subscriptionID int64) (*domain.UserSubscription, error) {
	subs, err := s.subscriptions.FindBySubscriptionIDAndType(ctx, subscriptionID, domain.SubscriptionTypeRegular)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ErrSubscriptionNotFound
	}
	return &subs[0], nil
}

// failure turns expected domain errors into an unsuccessful result and passes
// infrastructure errors through.
func (s *InvitationService) failure(ctx context.Context, action string, err error) (InvitationResult, error) {
	switch {
	case errors.Is(err, ErrInvitationNotFound),
		errors.Is(err, ErrInvitationNotPending),
		errors.Is(err, ErrInviterMismatch),
		errors.Is(err, ErrSubscriptionNotFound),
		errors.Is(err, ErrUserNotFound):
		observability.RecordInvitationTransition(ctx, action, "rejected")
		s.logger.InfoContext(ctx, "invitation transition rejected", "action", action, "reason", err.Error())
		return invitationFailure(err), nil
	default:
		observability.RecordInvitationTransition(ctx, action, "error")
		return InvitationResult{}, err
	}
}
