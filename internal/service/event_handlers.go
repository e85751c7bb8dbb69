package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/event"
	"github.com/notesync/auth-service/internal/repository"
	"github.com/notesync/auth-service/internal/timer"
)

type UserServerOptions struct {
	RegistrationURL string
	AuthKey         string
	Timeout         time.Duration
}

// EventHandlers reacts to billing, file and account events. Every handler can
// be replayed without changing the outcome.
type EventHandlers struct {
	users                repository.UserRepository
	userSubscriptions    repository.UserSubscriptionRepository
	offlineSubscriptions repository.OfflineUserSubscriptionRepository
	roles                *RoleService
	settings             *SettingService
	subscriptionSettings *SubscriptionSettingService
	sessions             *SessionManager
	userServer           UserServerOptions
	httpClient           *http.Client
	clock                timer.Timer
	timeout              opTimeout
	logger               *slog.Logger
}

func NewEventHandlers(
	users repository.UserRepository,
	userSubscriptions repository.UserSubscriptionRepository,
	offlineSubscriptions repository.OfflineUserSubscriptionRepository,
	roles *RoleService,
	settings *SettingService,
	subscriptionSettings *SubscriptionSettingService,
	sessions *SessionManager,
	userServer UserServerOptions,
	clock timer.Timer,
	datastoreTimeout time.Duration,
	logger *slog.Logger,
) *EventHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	client := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: userServer.AuthKey,
		TokenType:   "Bearer",
	}))
	client.Timeout = userServer.Timeout
	if client.Timeout <= 0 {
		client.Timeout = 10 * time.Second
	}
	return &EventHandlers{
		users:                users,
		userSubscriptions:    userSubscriptions,
		offlineSubscriptions: offlineSubscriptions,
		roles:                roles,
		settings:             settings,
		subscriptionSettings: subscriptionSettings,
		sessions:             sessions,
		userServer:           userServer,
		httpClient:           client,
		clock:                clock,
		timeout:              opTimeout(datastoreTimeout),
		logger:               logger,
	}
}

func (h *EventHandlers) Register(d *event.Dispatcher) {
	d.Register(event.TypeSubscriptionPurchased, event.HandlerFunc(h.HandleSubscriptionPurchased))
	d.Register(event.TypeSubscriptionExpired, event.HandlerFunc(h.HandleSubscriptionExpired))
	d.Register(event.TypeFileUploaded, event.HandlerFunc(h.HandleFileUploaded))
	d.Register(event.TypeFileRemoved, event.HandlerFunc(h.HandleFileRemoved))
	d.Register(event.TypeUserRegistered, event.HandlerFunc(h.HandleUserRegistered))
	d.Register(event.TypeAccountDeletionRequested, event.HandlerFunc(h.HandleAccountDeletionRequested))
}

func (h *EventHandlers) HandleSubscriptionPurchased(ctx context.Context, e event.Event) error {
	var p event.SubscriptionPurchasedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	plan := domain.SubscriptionName(p.SubscriptionName)
	if p.Offline {
		return h.purchaseOffline(ctx, p, plan)
	}

	user, err := h.findUserByEmail(ctx, p.UserEmail)
	if err != nil || user == nil {
		return err
	}

	sub, err := h.upsertRegularSubscription(ctx, user, p, plan)
	if err != nil {
		return err
	}
	if err := h.roles.AddUserRole(ctx, user, plan); err != nil {
		return err
	}
	if err := h.settings.ApplyDefaultSettingsForSubscription(ctx, user, plan); err != nil {
		return err
	}
	return h.subscriptionSettings.ApplyDefaultSubscriptionSettingsForSubscription(ctx, sub, plan)
}

func (h *EventHandlers) upsertRegularSubscription(ctx context.Context, user *domain.User, p event.SubscriptionPurchasedPayload, plan domain.SubscriptionName) (*domain.UserSubscription, error) {
	ctx, cancel := h.timeout.bound(ctx)
	defer cancel()

	now := h.clock.NowMicros()
	sub, err := h.userSubscriptions.FindOneByUserUUIDAndSubscriptionID(ctx, user.UUID, p.SubscriptionID)
	switch {
	case err == nil:
		if err := h.userSubscriptions.UpdateEndsAtByUUID(ctx, sub.UUID, p.SubscriptionExpiresAt, now); err != nil {
			return nil, err
		}
		if err := h.userSubscriptions.UpdateCancelled(ctx, p.SubscriptionID, false, now); err != nil {
			return nil, err
		}
		sub.EndsAt = p.SubscriptionExpiresAt
		sub.Cancelled = false
		return sub, nil
	case errors.Is(err, repository.ErrUserSubscriptionNotFound):
		sub = &domain.UserSubscription{
			UUID:             uuid.NewString(),
			UserUUID:         user.UUID,
			PlanName:         plan,
			SubscriptionType: domain.SubscriptionTypeRegular,
			SubscriptionID:   p.SubscriptionID,
			EndsAt:           p.SubscriptionExpiresAt,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return sub, h.userSubscriptions.Save(ctx, sub)
	default:
		return nil, err
	}
}

func (h *EventHandlers) purchaseOffline(ctx context.Context, p event.SubscriptionPurchasedPayload, plan domain.SubscriptionName) error {
	dbCtx, cancel := h.timeout.bound(ctx)
	defer cancel()

	now := h.clock.NowMicros()
	sub, err := h.offlineSubscriptions.FindOneByEmail(dbCtx, p.UserEmail)
	switch {
	case err == nil && sub.SubscriptionID == p.SubscriptionID:
		if err := h.offlineSubscriptions.UpdateEndsAt(dbCtx, p.SubscriptionID, p.SubscriptionExpiresAt, now); err != nil {
			return err
		}
		if err := h.offlineSubscriptions.UpdateCancelled(dbCtx, p.SubscriptionID, false, now); err != nil {
			return err
		}
		sub.PlanName = plan
	case err == nil, errors.Is(err, repository.ErrOfflineUserSubscriptionNotFound):
		sub = &domain.OfflineUserSubscription{
			UUID:           uuid.NewString(),
			Email:          p.UserEmail,
			PlanName:       plan,
			SubscriptionID: p.SubscriptionID,
			EndsAt:         p.SubscriptionExpiresAt,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := h.offlineSubscriptions.Save(dbCtx, sub); err != nil {
			return err
		}
	default:
		return err
	}
	return h.roles.SetOfflineUserRole(ctx, sub)
}

// HandleSubscriptionExpired ends the subscription and every share of it, and
// removes the plan role from the owner and from the users it was shared with.
func (h *EventHandlers) HandleSubscriptionExpired(ctx context.Context, e event.Event) error {
	var p event.SubscriptionExpiredPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	plan := domain.SubscriptionName(p.SubscriptionName)
	now := h.clock.NowMicros()

	if p.Offline {
		dbCtx, cancel := h.timeout.bound(ctx)
		defer cancel()
		return h.offlineSubscriptions.UpdateEndsAt(dbCtx, p.SubscriptionID, p.Timestamp, now)
	}

	user, err := h.findUserByEmail(ctx, p.UserEmail)
	if err != nil || user == nil {
		return err
	}
	if err := h.roles.RemoveUserRole(ctx, user, plan); err != nil {
		return err
	}

	dbCtx, cancel := h.timeout.bound(ctx)
	defer cancel()
	shares, err := h.userSubscriptions.FindBySubscriptionIDAndType(dbCtx, p.SubscriptionID, domain.SubscriptionTypeShared)
	if err != nil {
		return err
	}
	for _, share := range shares {
		invitee, err := h.users.FindByUUID(dbCtx, share.UserUUID)
		if errors.Is(err, repository.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := h.roles.RemoveUserRole(ctx, invitee, share.PlanName); err != nil {
			return err
		}
	}
	return h.userSubscriptions.UpdateEndsAt(dbCtx, p.SubscriptionID, p.Timestamp, now)
}

func (h *EventHandlers) HandleFileUploaded(ctx context.Context, e event.Event) error {
	var p event.FileUploadedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	return h.adjustBytesUsed(ctx, p.UserUUID, p.FileByteSize, true)
}

func (h *EventHandlers) HandleFileRemoved(ctx context.Context, e event.Event) error {
	var p event.FileRemovedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	return h.adjustBytesUsed(ctx, p.UserUUID, -p.FileByteSize, false)
}

// adjustBytesUsed charges the regular subscription and, for a shared user, their
// own shared subscription as well. A missing counter is created only on upload.
func (h *EventHandlers) adjustBytesUsed(ctx context.Context, userUUID string, delta int64, createMissing bool) error {
	dbCtx, cancel := h.timeout.bound(ctx)
	_, err := h.users.FindByUUID(dbCtx, userUUID)
	cancel()
	if errors.Is(err, repository.ErrUserNotFound) {
		h.logger.WarnContext(ctx, "could not find user", "user_uuid", userUUID)
		return nil
	}
	if err != nil {
		return err
	}

	regular, shared, err := h.findRegularSubscription(ctx, userUUID)
	if err != nil {
		return err
	}
	if regular == nil {
		h.logger.WarnContext(ctx, "could not find regular user subscription", "user_uuid", userUUID)
		return nil
	}
	for _, sub := range []*domain.UserSubscription{regular, shared} {
		if sub == nil {
			continue
		}
		err := h.subscriptionSettings.AdjustFileUploadBytesUsed(ctx, sub, delta)
		if errors.Is(err, ErrSettingNotFound) {
			if !createMissing {
				continue
			}
			props := NewSubscriptionSettingProps(domain.SubscriptionSettingFileUploadBytesUsed, strconv.FormatInt(max(delta, 0), 10))
			_, err = h.subscriptionSettings.CreateOrReplace(ctx, sub, props)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// findRegularSubscription resolves the billing subscription behind a user. For a
// user on a shared plan that is the inviter's subscription, and the user's own
// shared record is returned alongside it.
func (h *EventHandlers) findRegularSubscription(ctx context.Context, userUUID string) (*domain.UserSubscription, *domain.UserSubscription, error) {
	ctx, cancel := h.timeout.bound(ctx)
	defer cancel()

	sub, err := h.userSubscriptions.FindOneByUserUUID(ctx, userUUID)
	if errors.Is(err, repository.ErrUserSubscriptionNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	if sub.SubscriptionType == domain.SubscriptionTypeRegular {
		return sub, nil, nil
	}
	regulars, err := h.userSubscriptions.FindBySubscriptionIDAndType(ctx, sub.SubscriptionID, domain.SubscriptionTypeRegular)
	if err != nil {
		return nil, nil, err
	}
	if len(regulars) == 0 {
		return nil, sub, nil
	}
	return &regulars[0], sub, nil
}

type userServerRegistration struct {
	Key  string                     `json:"key,omitempty"`
	User userServerRegistrationUser `json:"user"`
}

type userServerRegistrationUser struct {
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// HandleUserRegistered notifies the user server about a new account. Client
// errors from the user server are not retried.
func (h *EventHandlers) HandleUserRegistered(ctx context.Context, e event.Event) error {
	if h.userServer.RegistrationURL == "" {
		h.logger.DebugContext(ctx, "user server registration url not defined, skipping post registration actions")
		return nil
	}
	var p event.UserRegisteredPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	body, err := json.Marshal(userServerRegistration{
		Key:  h.userServer.AuthKey,
		User: userServerRegistrationUser{Email: p.Email, CreatedAt: e.CreatedAt},
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.userServer.RegistrationURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("user server registration: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("user server registration: status %d", resp.StatusCode)
	}
	return nil
}

// HandleAccountDeletionRequested revokes every session of the user and deletes
// the account.
func (h *EventHandlers) HandleAccountDeletionRequested(ctx context.Context, e event.Event) error {
	var p event.AccountDeletionRequestedPayload
	if err := e.Decode(&p); err != nil {
		return err
	}
	if _, err := h.sessions.RevokeAllForUser(ctx, p.UserUUID, domain.RevokeReasonAccountDelete); err != nil {
		return err
	}
	dbCtx, cancel := h.timeout.bound(ctx)
	defer cancel()
	err := h.users.Delete(dbCtx, p.UserUUID)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil
	}
	return err
}

func (h *EventHandlers) findUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	ctx, cancel := h.timeout.bound(ctx)
	defer cancel()
	user, err := h.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrUserNotFound) {
		h.logger.WarnContext(ctx, "could not find user for event", "email", email)
		return nil, nil
	}
	return user, err
}
