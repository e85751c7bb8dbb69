package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/event"
	"github.com/notesync/auth-service/internal/observability"
	"github.com/notesync/auth-service/internal/repository"
	"github.com/notesync/auth-service/internal/security"
	"github.com/notesync/auth-service/internal/timer"
)

const serverKeySaltBytes = 16

type RegisterRequest struct {
	Email    string
	Password string
	Device   DeviceInfo
}

type SignInRequest struct {
	Email    string
	Password string
	MFACode  string
	Device   DeviceInfo
}

type AuthResult struct {
	User    *domain.User
	Session *IssuedSession
}

type DeleteAccountResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	ResponseCode int    `json:"-"`
}

type AccountOptions struct {
	DisableRegistration bool
	DatastoreTimeout    time.Duration
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
	Decoy() string
}

type AccountService struct {
	users         repository.UserRepository
	subscriptions repository.UserSubscriptionRepository
	sessions      *SessionManager
	lockout       *LockoutService
	settings      *SettingService
	hasher        passwordHasher
	events        eventEmitter
	clock         timer.Timer
	opts          AccountOptions
	timeout       opTimeout
	logger        *slog.Logger
}

func NewAccountService(
	users repository.UserRepository,
	subscriptions repository.UserSubscriptionRepository,
	sessions *SessionManager,
	lockout *LockoutService,
	settings *SettingService,
	hasher *security.PasswordHasher,
	publisher event.Publisher,
	clock timer.Timer,
	opts AccountOptions,
	logger *slog.Logger,
) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AccountService{
		users:         users,
		subscriptions: subscriptions,
		sessions:      sessions,
		lockout:       lockout,
		settings:      settings,
		hasher:        hasher,
		events:        eventEmitter{publisher: publisher, clock: clock, logger: logger},
		clock:         clock,
		opts:          opts,
		timeout:       opTimeout(opts.DatastoreTimeout),
		logger:        logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AccountService) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if s.opts.DisableRegistration {
		return nil, ErrRegistrationDisabled
	}
	email := normalizeEmail(req.Email)

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	salt, err := security.RandomHex(serverKeySaltBytes)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	user := &domain.User{
		UUID:              uuid.NewString(),
		Email:             email,
		EncryptedPassword: hash,
		ServerKeySalt:     salt,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	dbCtx, cancel := s.timeout.bound(ctx)
	err = s.users.Create(dbCtx, user)
	if err == nil {
		err = s.users.AddRole(dbCtx, user.UUID, domain.RoleCoreUser)
	}
	if err == nil {
		user, err = s.users.FindByUUID(dbCtx, user.UUID)
	}
	cancel()
	if errors.Is(err, repository.ErrUserAlreadyExists) {
		return nil, ErrUserAlreadyExists
	}
	if err != nil {
		return nil, err
	}

	issued, err := s.sessions.CreateSession(ctx, user, req.Device)
	if err != nil {
		return nil, err
	}
	s.events.emit(ctx, event.TypeUserRegistered, event.UserRegisteredPayload{
		UserUUID: user.UUID,
		Email:    user.Email,
	})
	return &AuthResult{User: user, Session: issued}, nil
}

// SignIn answers unknown emails and wrong passwords with the same error and
// counts both toward the lockout.
func (s *AccountService) SignIn(ctx context.Context, req SignInRequest) (*AuthResult, error) {
	email := normalizeEmail(req.Email)

	locked, err := s.lockout.IsLocked(ctx, email)
	if err != nil {
		return nil, err
	}
	if locked {
		return nil, ErrUserLocked
	}

	dbCtx, cancel := s.timeout.bound(ctx)
	user, err := s.users.FindByEmail(dbCtx, email)
	cancel()
	if err != nil && !errors.Is(err, repository.ErrUserNotFound) {
		return nil, err
	}
	// Unknown emails still pay for one bcrypt comparison.
	hash := s.hasher.Decoy()
	if user != nil {
		hash = user.EncryptedPassword
	}
	if !s.hasher.Verify(hash, req.Password) || user == nil {
		return nil, s.failSignIn(ctx, email)
	}

	secret, err := s.mfaSecret(ctx, user.UUID)
	if err != nil {
		return nil, err
	}
	if secret != "" {
		if strings.TrimSpace(req.MFACode) == "" {
			return nil, ErrMFARequired
		}
		if !security.VerifyTOTP(secret, req.MFACode, s.clock.Now()) {
			return nil, s.failSignIn(ctx, email)
		}
	}

	if err := s.lockout.Reset(ctx, email); err != nil {
		return nil, err
	}
	issued, err := s.sessions.CreateSession(ctx, user, req.Device)
	if err != nil {
		return nil, err
	}
	observability.RecordAuthentication(ctx, "sign_in")
	return &AuthResult{User: user, Session: issued}, nil
}

func (s *AccountService) failSignIn(ctx context.Context, email string) error {
	nowLocked, err := s.lockout.RegisterFailure(ctx, email)
	if err != nil {
		return err
	}
	if nowLocked {
		s.logger.WarnContext(ctx, "sign in locked after repeated failures")
		return ErrUserLocked
	}
	return ErrInvalidCredentials
}

func (s *AccountService) mfaSecret(ctx context.Context, userUUID string) (string, error) {
	setting, err := s.settings.FindSetting(ctx, FindSettingQuery{UserUUID: userUUID, SettingName: domain.SettingMfaSecret})
	if errors.Is(err, ErrSettingNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return derefString(setting.Value), nil
}

func (s *AccountService) SignOut(ctx context.Context, session *domain.Session) error {
	err := s.sessions.RevokeSession(ctx, session.UUID, domain.RevokeReasonSignOut)
	if errors.Is(err, ErrSessionNotFound) {
		return nil
	}
	return err
}

// DeleteAccount only requests the deletion; the account is removed when the
// AccountDeletionRequested event is handled.
func (s *AccountService) DeleteAccount(ctx context.Context, email string) (DeleteAccountResult, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, repository.ErrUserNotFound) {
		return DeleteAccountResult{Message: "User not found", ResponseCode: http.StatusNotFound}, nil
	}
	if err != nil {
		return DeleteAccountResult{}, err
	}

	var regularSubscriptionUUID string
	subs, err := s.subscriptions.FindByUserUUIDAndType(ctx, user.UUID, domain.SubscriptionTypeRegular)
	if err != nil {
		return DeleteAccountResult{}, err
	}
	if len(subs) > 0 {
		regularSubscriptionUUID = subs[0].UUID
	}

	s.events.emit(ctx, event.TypeAccountDeletionRequested, event.AccountDeletionRequestedPayload{
		UserUUID:                user.UUID,
		RegularSubscriptionUUID: regularSubscriptionUUID,
	})
	return DeleteAccountResult{Success: true, Message: "Successfully deleted user", ResponseCode: http.StatusOK}, nil
}
