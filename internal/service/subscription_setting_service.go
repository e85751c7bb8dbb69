package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/observability"
	"github.com/notesync/auth-service/internal/repository"
	"github.com/notesync/auth-service/internal/timer"
)

type SubscriptionSettingProps struct {
	UUID                    string
	Name                    domain.SubscriptionSettingName
	Value                   string
	ServerEncryptionVersion domain.EncryptionVersion
	Sensitive               bool
}

func NewSubscriptionSettingProps(name domain.SubscriptionSettingName, value string) SubscriptionSettingProps {
	d := DescribeSubscriptionSetting(name)
	return SubscriptionSettingProps{
		Name:                    name,
		Value:                   value,
		ServerEncryptionVersion: d.EncryptionVersion,
		Sensitive:               d.Sensitive,
	}
}

type SubscriptionSettingWriteResult struct {
	Status  WriteStatus
	Setting *domain.SubscriptionSetting
}

type SubscriptionSettingView struct {
	UUID      string                         `json:"uuid"`
	Name      domain.SubscriptionSettingName `json:"name"`
	Value     *string                        `json:"value"`
	Sensitive bool                           `json:"sensitive"`
	CreatedAt int64                          `json:"created_at"`
	UpdatedAt int64                          `json:"updated_at"`
}

type GetSubscriptionSettingResult struct {
	Success      bool
	Setting      *SubscriptionSettingView
	Sensitive    bool
	ErrorMessage string
}

// SubscriptionSettingService stores settings that belong to a user subscription,
// encrypted for the subscription's owner.
type SubscriptionSettingService struct {
	settings      repository.SubscriptionSettingRepository
	subscriptions repository.UserSubscriptionRepository
	users         repository.UserRepository
	crypter       Crypter
	clock         timer.Timer
	timeout       opTimeout
	logger        *slog.Logger
}

func NewSubscriptionSettingService(
	settings repository.SubscriptionSettingRepository,
	subscriptions repository.UserSubscriptionRepository,
	users repository.UserRepository,
	crypter Crypter,
	clock timer.Timer,
	datastoreTimeout time.Duration,
	logger *slog.Logger,
) *SubscriptionSettingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubscriptionSettingService{
		settings:      settings,
		subscriptions: subscriptions,
		users:         users,
		crypter:       crypter,
		clock:         clock,
		timeout:       opTimeout(datastoreTimeout),
		logger:        logger,
	}
}

func (s *SubscriptionSettingService) CreateOrReplace(ctx context.Context, sub *domain.UserSubscription, props SubscriptionSettingProps) (*SubscriptionSettingWriteResult, error) {
	if !props.ServerEncryptionVersion.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedEncryptionVersion, int(props.ServerEncryptionVersion))
	}

	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	var owner *domain.User
	if props.ServerEncryptionVersion == domain.EncryptionVersionDefault {
		var err error
		if owner, err = s.users.FindByUUID(ctx, sub.UserUUID); err != nil {
			return nil, fmt.Errorf("resolve subscription owner: %w", err)
		}
	}
	stored, err := encodeValue(s.crypter, props.ServerEncryptionVersion, props.Value, owner)
	if err != nil {
		return nil, err
	}

	now := s.clock.NowMicros()
	byUUID := props.UUID != ""
	id := props.UUID
	if !byUUID {
		id = uuid.NewString()
	}
	setting := &domain.SubscriptionSetting{
		UUID:                    id,
		Name:                    props.Name,
		Value:                   &stored,
		ServerEncryptionVersion: props.ServerEncryptionVersion,
		Sensitive:               props.Sensitive,
		UserSubscriptionUUID:    sub.UUID,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	created, err := s.settings.CreateOrReplace(ctx, setting, byUUID)
	if err != nil {
		observability.RecordSettingWrite(ctx, "subscription", "error")
		return nil, err
	}
	status := StatusReplaced
	if created {
		status = StatusCreated
	}
	observability.RecordSettingWrite(ctx, "subscription", string(status))
	return &SubscriptionSettingWriteResult{Status: status, Setting: setting}, nil
}

// FindSubscriptionSetting returns the newest setting of that name with its value decrypted.
func (s *SubscriptionSettingService) FindSubscriptionSetting(ctx context.Context, sub *domain.UserSubscription, name domain.SubscriptionSettingName) (*domain.SubscriptionSetting, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	setting, err := s.settings.FindLastByNameAndSubscription(ctx, name, sub.UUID)
	if errors.Is(err, repository.ErrSubscriptionSettingNotFound) {
		return nil, ErrSettingNotFound
	}
	if err != nil {
		return nil, err
	}
	if setting.Value == nil {
		return setting, nil
	}
	plain, err := decodeValue(ctx, s.crypter, s.users, setting.ServerEncryptionVersion, *setting.Value, sub.UserUUID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, ErrSettingNotFound
	}
	if err != nil {
		return nil, err
	}
	setting.Value = &plain
	return setting, nil
}

// ApplyDefaultSubscriptionSettingsForSubscription writes the plan's defaults.
// Counters that already exist are left as they are.
func (s *SubscriptionSettingService) ApplyDefaultSubscriptionSettingsForSubscription(ctx context.Context, sub *domain.UserSubscription, plan domain.SubscriptionName) error {
	defaults, ok := subscriptionSettingDefaults[plan]
	if !ok {
		s.logger.WarnContext(ctx, "could not find subscription settings for subscription", "plan", plan)
		return nil
	}
	for _, d := range defaults {
		if d.KeepExisting {
			_, err := s.FindSubscriptionSetting(ctx, sub, d.Name)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrSettingNotFound) {
				return err
			}
		}
		if _, err := s.CreateOrReplace(ctx, sub, NewSubscriptionSettingProps(d.Name, d.Value)); err != nil {
			return fmt.Errorf("apply default subscription setting %s: %w", d.Name, err)
		}
	}
	return nil
}

// AdjustFileUploadBytesUsed adds delta to the stored usage counter, never going below zero.
func (s *SubscriptionSettingService) AdjustFileUploadBytesUsed(ctx context.Context, sub *domain.UserSubscription, delta int64) error {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	err := s.settings.UpdateValue(ctx, domain.SubscriptionSettingFileUploadBytesUsed, sub.UUID, s.clock.NowMicros(),
		func(current *string) (*string, error) {
			var used int64
			if current != nil && *current != "" {
				parsed, err := strconv.ParseInt(*current, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("parse %s: %w", domain.SubscriptionSettingFileUploadBytesUsed, err)
				}
				used = parsed
			}
			used += delta
			if used < 0 {
				used = 0
			}
			next := strconv.FormatInt(used, 10)
			return &next, nil
		})
	if errors.Is(err, repository.ErrSubscriptionSettingNotFound) {
		return ErrSettingNotFound
	}
	return err
}

// GetSubscriptionSetting reads from the user's regular subscription, or from the
// shared one when the user only holds a shared subscription.
func (s *SubscriptionSettingService) GetSubscriptionSetting(ctx context.Context, userUUID string, name domain.SubscriptionSettingName, allowSensitive bool) (GetSubscriptionSettingResult, error) {
	sub, err := s.findSubscriptionForUser(ctx, userUUID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return GetSubscriptionSettingResult{ErrorMessage: "No subscription found."}, nil
	}
	if err != nil {
		return GetSubscriptionSettingResult{}, err
	}

	setting, err := s.FindSubscriptionSetting(ctx, sub, name)
	if errors.Is(err, ErrSettingNotFound) {
		return GetSubscriptionSettingResult{
			ErrorMessage: fmt.Sprintf("Setting %s for user %s not found!", name, userUUID),
		}, nil
	}
	if err != nil {
		return GetSubscriptionSettingResult{}, err
	}
	if setting.Sensitive && !allowSensitive {
		return GetSubscriptionSettingResult{Success: true, Sensitive: true}, nil
	}
	return GetSubscriptionSettingResult{
		Success: true,
		Setting: &SubscriptionSettingView{
			UUID:      setting.UUID,
			Name:      setting.Name,
			Value:     setting.Value,
			Sensitive: setting.Sensitive,
			CreatedAt: setting.CreatedAt,
			UpdatedAt: setting.UpdatedAt,
		},
	}, nil
}

// findSubscriptionForUser prefers a running subscription, regular before
// shared, and only falls back to a lapsed one when nothing is running.
func (s *SubscriptionSettingService) findSubscriptionForUser(ctx context.Context, userUUID string) (*domain.UserSubscription, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	now := s.clock.NowMicros()
	var lapsed *domain.UserSubscription
	for _, subType := range []domain.SubscriptionType{domain.SubscriptionTypeRegular, domain.SubscriptionTypeShared} {
		subs, err := s.subscriptions.FindByUserUUIDAndType(ctx, userUUID, subType)
		if err != nil {
			return nil, err
		}
		for i := range subs {
			if subs[i].EndsAt > now {
				return &subs[i], nil
			}
			if lapsed == nil {
				lapsed = &subs[i]
			}
		}
	}
	if lapsed != nil {
		return lapsed, nil
	}
	return nil, ErrSubscriptionNotFound
}
