package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/event"
	"github.com/notesync/auth-service/internal/observability"
	"github.com/notesync/auth-service/internal/repository"
	"github.com/notesync/auth-service/internal/timer"
)

type Crypter interface {
	EncryptForUser(value string, user *domain.User) (string, error)
	DecryptForUser(ciphertext string, user *domain.User) (string, error)
}

type SettingProps struct {
	UUID                    string
	Name                    domain.SettingName
	Value                   string
	ServerEncryptionVersion domain.EncryptionVersion
	Sensitive               bool
}

// NewSettingProps takes encryption and sensitivity from the setting's description.
func NewSettingProps(name domain.SettingName, value string) SettingProps {
	d := DescribeSetting(name)
	return SettingProps{
		Name:                    name,
		Value:                   value,
		ServerEncryptionVersion: d.EncryptionVersion,
		Sensitive:               d.Sensitive,
	}
}

type WriteStatus string

const (
	StatusCreated  WriteStatus = "created"
	StatusReplaced WriteStatus = "replaced"
)

type SettingWriteResult struct {
	Status  WriteStatus
	Setting *domain.Setting
}

type FindSettingQuery struct {
	UserUUID    string
	SettingName domain.SettingName
	SettingUUID string
}

type SettingService struct {
	settings repository.SettingRepository
	users    repository.UserRepository
	crypter  Crypter
	events   eventEmitter
	clock    timer.Timer
	timeout  opTimeout
	logger   *slog.Logger
}

func NewSettingService(
	settings repository.SettingRepository,
	users repository.UserRepository,
	crypter Crypter,
	publisher event.Publisher,
	clock timer.Timer,
	datastoreTimeout time.Duration,
	logger *slog.Logger,
) *SettingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingService{
		settings: settings,
		users:    users,
		crypter:  crypter,
		events:   eventEmitter{publisher: publisher, clock: clock, logger: logger},
		clock:    clock,
		timeout:  opTimeout(datastoreTimeout),
		logger:   logger,
	}
}

// CreateOrReplace keeps a single current row per (name, user). A replaced setting
// keeps its uuid. An encryption version outside the supported set aborts before
// anything is written.
func (s *SettingService) CreateOrReplace(ctx context.Context, user *domain.User, props SettingProps) (*SettingWriteResult, error) {
	stored, err := encodeValue(s.crypter, props.ServerEncryptionVersion, props.Value, user)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	now := s.clock.NowMicros()
	byUUID := props.UUID != ""
	id := props.UUID
	if !byUUID {
		id = uuid.NewString()
	}
	setting := &domain.Setting{
		UUID:                    id,
		Name:                    props.Name,
		Value:                   &stored,
		ServerEncryptionVersion: props.ServerEncryptionVersion,
		Sensitive:               props.Sensitive,
		UserUUID:                user.UUID,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	created, err := s.settings.CreateOrReplace(ctx, setting, byUUID)
	if err != nil {
		observability.RecordSettingWrite(ctx, "user", "error")
		return nil, err
	}

	status := StatusReplaced
	if created {
		status = StatusCreated
	}
	observability.RecordSettingWrite(ctx, "user", string(status))
	s.logger.DebugContext(ctx, "setting written",
		"user_uuid", user.UUID,
		"name", props.Name,
		"status", status,
	)
	if created {
		s.triggerDefaultActions(ctx, setting, user)
	}
	return &SettingWriteResult{Status: status, Setting: setting}, nil
}

// FindSetting returns the setting with its value decrypted. When the owner cannot
// be resolved the lookup fails closed with ErrSettingNotFound.
func (s *SettingService) FindSetting(ctx context.Context, q FindSettingQuery) (*domain.Setting, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	var (
		setting *domain.Setting
		err     error
	)
	if q.SettingUUID != "" {
		setting, err = s.settings.FindByUUID(ctx, q.SettingUUID)
		if err == nil && setting.UserUUID != q.UserUUID {
			err = repository.ErrSettingNotFound
		}
	} else {
		setting, err = s.settings.FindLastByNameAndUser(ctx, q.SettingName, q.UserUUID)
	}
	if errors.Is(err, repository.ErrSettingNotFound) {
		return nil, ErrSettingNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.decrypt(ctx, setting, q.UserUUID); err != nil {
		return nil, err
	}
	return setting, nil
}

func (s *SettingService) FindAllForUser(ctx context.Context, userUUID string) ([]domain.Setting, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	settings, err := s.settings.FindAllByUser(ctx, userUUID)
	if err != nil {
		return nil, err
	}
	for i := range settings {
		if err := s.decrypt(ctx, &settings[i], userUUID); err != nil {
			return nil, err
		}
	}
	return settings, nil
}

func (s *SettingService) decrypt(ctx context.Context, setting *domain.Setting, userUUID string) error {
	if setting.Value == nil {
		return nil
	}
	plain, err := decodeValue(ctx, s.crypter, s.users, setting.ServerEncryptionVersion, *setting.Value, userUUID)
	if errors.Is(err, ErrUserNotFound) {
		return ErrSettingNotFound
	}
	if err != nil {
		return err
	}
	setting.Value = &plain
	return nil
}

// DeleteSetting removes a setting. MFA_SECRET only loses its value so that a new
// secret replaces the same row.
func (s *SettingService) DeleteSetting(ctx context.Context, userUUID string, name domain.SettingName) error {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	setting, err := s.settings.FindLastByNameAndUser(ctx, name, userUUID)
	if errors.Is(err, repository.ErrSettingNotFound) {
		return ErrSettingNotFound
	}
	if err != nil {
		return err
	}
	if name == domain.SettingMfaSecret {
		err = s.settings.ClearValue(ctx, setting.UUID, s.clock.NowMicros())
	} else {
		err = s.settings.Delete(ctx, setting.UUID)
	}
	if errors.Is(err, repository.ErrSettingNotFound) {
		return ErrSettingNotFound
	}
	return err
}

func (s *SettingService) ApplyDefaultSettingsForSubscription(ctx context.Context, user *domain.User, plan domain.SubscriptionName) error {
	defaults, ok := userSettingDefaults[plan]
	if !ok {
		s.logger.WarnContext(ctx, "could not find settings for subscription", "plan", plan)
		return nil
	}
	for _, props := range defaults {
		if _, err := s.CreateOrReplace(ctx, user, props); err != nil {
			return fmt.Errorf("apply default setting %s: %w", props.Name, err)
		}
	}
	return nil
}

func (s *SettingService) triggerDefaultActions(ctx context.Context, setting *domain.Setting, user *domain.User) {
	if setting.Name == domain.SettingEmailBackupFrequency {
		muteUUID, muted := s.muteState(ctx, domain.SettingMuteFailedBackupsEmails, user.UUID)
		s.events.emit(ctx, event.TypeEmailBackupRequested, event.EmailBackupRequestedPayload{
			UserUUID:              user.UUID,
			MuteEmailsSettingUUID: muteUUID,
			UserHasEmailsMuted:    muted,
		})
	}
	if provider, ok := cloudBackupProviders[setting.Name]; ok {
		muteUUID, muted := s.muteState(ctx, domain.SettingMuteFailedCloudBackupsEmails, user.UUID)
		s.events.emit(ctx, event.TypeCloudBackupRequested, event.CloudBackupRequestedPayload{
			CloudProvider:         provider,
			CloudProviderToken:    derefString(setting.Value),
			UserUUID:              user.UUID,
			MuteEmailsSettingUUID: muteUUID,
			UserHasEmailsMuted:    muted,
		})
	}
}

func (s *SettingService) muteState(ctx context.Context, name domain.SettingName, userUUID string) (string, bool) {
	setting, err := s.settings.FindLastByNameAndUser(ctx, name, userUUID)
	if err != nil {
		if !errors.Is(err, repository.ErrSettingNotFound) {
			s.logger.WarnContext(ctx, "read mute setting", "name", name, "error", err)
		}
		return "", false
	}
	return setting.UUID, derefString(setting.Value) == muteEmailsValue
}

func encodeValue(crypter Crypter, version domain.EncryptionVersion, value string, user *domain.User) (string, error) {
	switch version {
	case domain.EncryptionVersionUnencrypted:
		return value, nil
	case domain.EncryptionVersionDefault:
		return crypter.EncryptForUser(value, user)
	default:
		return "", fmt.Errorf("%w: %d", ErrUnsupportedEncryptionVersion, int(version))
	}
}

func decodeValue(ctx context.Context, crypter Crypter, users repository.UserRepository, version domain.EncryptionVersion, stored, userUUID string) (string, error) {
	switch version {
	case domain.EncryptionVersionUnencrypted:
		return stored, nil
	case domain.EncryptionVersionDefault:
		user, err := users.FindByUUID(ctx, userUUID)
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", ErrUserNotFound
		}
		if err != nil {
			return "", err
		}
		return crypter.DecryptForUser(stored, user)
	default:
		return "", fmt.Errorf("%w: %d", ErrUnsupportedEncryptionVersion, int(version))
	}
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
