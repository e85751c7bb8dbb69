package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/event"
	"github.com/notesync/auth-service/internal/repository"
	"github.com/notesync/auth-service/internal/security"
	"github.com/notesync/auth-service/internal/timer"
)

const (
	TagNoSubscription       = "no-subscription"
	TagSubscriptionCanceled = "subscription-canceled"
	TagSubscriptionExpired  = "subscription-expired"

	offlineTokenBytes = 16
)

type OfflineTokenResult struct {
	Success  bool
	ErrorTag string
	Token    *domain.OfflineSubscriptionToken
}

type offlineFeatures interface {
	GetFeaturesForOfflineUser(ctx context.Context, email string) ([]domain.FeatureDescription, error)
}

// OfflineSubscriptionService issues short lived dashboard tokens to offline
// subscribers, who are known only by email.
type OfflineSubscriptionService struct {
	subscriptions repository.OfflineUserSubscriptionRepository
	tokens        repository.OfflineSubscriptionTokenRepository
	features      offlineFeatures
	events        eventEmitter
	clock         timer.Timer
	tokenTTL      time.Duration
	timeout       opTimeout
	logger        *slog.Logger
}

func NewOfflineSubscriptionService(
	subscriptions repository.OfflineUserSubscriptionRepository,
	tokens repository.OfflineSubscriptionTokenRepository,
	features *FeatureService,
	publisher event.Publisher,
	clock timer.Timer,
	tokenTTL time.Duration,
	datastoreTimeout time.Duration,
	logger *slog.Logger,
) *OfflineSubscriptionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OfflineSubscriptionService{
		subscriptions: subscriptions,
		tokens:        tokens,
		features:      features,
		events:        eventEmitter{publisher: publisher, clock: clock, logger: logger},
		clock:         clock,
		tokenTTL:      tokenTTL,
		timeout:       opTimeout(datastoreTimeout),
		logger:        logger,
	}
}

func (s *OfflineSubscriptionService) CreateToken(ctx context.Context, email string) (OfflineTokenResult, error) {
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	email = strings.TrimSpace(email)
	sub, err := s.subscriptions.FindOneByEmail(ctx, email)
	if errors.Is(err, repository.ErrOfflineUserSubscriptionNotFound) {
		return OfflineTokenResult{ErrorTag: TagNoSubscription}, nil
	}
	if err != nil {
		return OfflineTokenResult{}, err
	}
	if sub.Cancelled {
		return OfflineTokenResult{ErrorTag: TagSubscriptionCanceled}, nil
	}
	if sub.EndsAt < s.clock.NowMicros() {
		return OfflineTokenResult{ErrorTag: TagSubscriptionExpired}, nil
	}

	raw, err := security.RandomHex(offlineTokenBytes)
	if err != nil {
		return OfflineTokenResult{}, err
	}
	token := domain.OfflineSubscriptionToken{
		Token:     raw,
		Email:     email,
		ExpiresAt: timer.MicrosAfter(s.clock, s.tokenTTL),
	}
	if err := s.tokens.Save(ctx, token, s.tokenTTL); err != nil {
		return OfflineTokenResult{}, err
	}
	s.logger.DebugContext(ctx, "created offline subscription token", "email", email, "expires_at", token.ExpiresAt)

	s.events.emit(ctx, event.TypeOfflineSubscriptionTokenCreated, event.OfflineSubscriptionTokenCreatedPayload{
		Token: token.Token,
		Email: email,
	})
	return OfflineTokenResult{Success: true, Token: &token}, nil
}

// Authenticate checks that token was issued to email and has not expired.
func (s *OfflineSubscriptionService) Authenticate(ctx context.Context, token, email string) (bool, error) {
	if token == "" || email == "" {
		return false, nil
	}
	ctx, cancel := s.timeout.bound(ctx)
	defer cancel()

	stored, err := s.tokens.Find(ctx, token)
	if errors.Is(err, repository.ErrOfflineTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !strings.EqualFold(stored.Email, strings.TrimSpace(email)) {
		return false, nil
	}
	return stored.ExpiresAt >= s.clock.NowMicros(), nil
}

// GetFeatures returns ok=false when the token does not authenticate the email.
func (s *OfflineSubscriptionService) GetFeatures(ctx context.Context, token, email string) ([]domain.FeatureDescription, bool, error) {
	ok, err := s.Authenticate(ctx, token, email)
	if err != nil || !ok {
		return nil, false, err
	}
	features, err := s.features.GetFeaturesForOfflineUser(ctx, strings.TrimSpace(email))
	if err != nil {
		return nil, false, err
	}
	return features, true, nil
}
