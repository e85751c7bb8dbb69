package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/event"
	"github.com/notesync/auth-service/internal/repository"
	"github.com/notesync/auth-service/internal/security"
	"github.com/notesync/auth-service/internal/timer"
)

var fixtureStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db        *gorm.DB
	clock     *timer.Fixed
	publisher *event.InMemoryPublisher
	logger    *slog.Logger

	users                repository.UserRepository
	sessionsRepo         repository.SessionRepository
	revoked              repository.RevokedSessionRepository
	userSubscriptions    repository.UserSubscriptionRepository
	offlineSubscriptions repository.OfflineUserSubscriptionRepository
	subscriptionSettings repository.SubscriptionSettingRepository

	sessions    *SessionManager
	lockout     *LockoutService
	roles       *RoleService
	features    *FeatureService
	settings    *SettingService
	subSettings *SubscriptionSettingService
	invitations *InvitationService
	offline     *OfflineSubscriptionService
	accounts    *AccountService
	handlers    *EventHandlers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(domain.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	redisClient := redis.NewClient(&redis.Options{Addr: miniredis.RunT(t).Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	clock := timer.NewFixed(fixtureStart)
	publisher := event.NewInMemoryPublisher()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	crypter, err := security.NewAESCrypter("1", map[string][]byte{"1": []byte(strings.Repeat("k", 32))})
	if err != nil {
		t.Fatalf("crypter: %v", err)
	}
	jwtMgr := security.NewJWTManager("notesync-auth", "notesync", "access-secret", "refresh-secret").WithClock(clock.Now)

	f := &fixture{
		db:                   db,
		clock:                clock,
		publisher:            publisher,
		logger:               log,
		users:                repository.NewUserRepository(db),
		sessionsRepo:         repository.NewSessionRepository(db),
		revoked:              repository.NewRevokedSessionRepository(db),
		userSubscriptions:    repository.NewUserSubscriptionRepository(db),
		offlineSubscriptions: repository.NewOfflineUserSubscriptionRepository(db),
		subscriptionSettings: repository.NewSubscriptionSettingRepository(db),
	}
	f.sessions = NewSessionManager(
		jwtMgr,
		f.sessionsRepo,
		repository.NewRedisEphemeralSessionRepository(redisClient, ""),
		f.revoked,
		f.users,
		clock,
		"pepper",
		SessionTTLs{Access: time.Hour, Refresh: 24 * time.Hour, Ephemeral: 2 * time.Hour, Tombstone: 7 * 24 * time.Hour},
		time.Second,
		log,
	)
	f.lockout = NewLockoutService(repository.NewInMemoryLockRepository(clock.Now), 3, time.Hour)
	f.roles = NewRoleService(f.users, f.offlineSubscriptions, repository.NewRoleRepository(db), time.Second, log)
	f.features = NewFeatureService(f.userSubscriptions, f.offlineSubscriptions, clock, time.Second)
	f.settings = NewSettingService(repository.NewSettingRepository(db), f.users, crypter, publisher, clock, time.Second, log)
	f.subSettings = NewSubscriptionSettingService(f.subscriptionSettings, f.userSubscriptions, f.users, crypter, clock, time.Second, log)
	f.invitations = NewInvitationService(repository.NewInvitationRepository(db), f.userSubscriptions, f.users, f.roles, f.subSettings, publisher, clock, time.Second, log)
	f.offline = NewOfflineSubscriptionService(f.offlineSubscriptions, repository.NewRedisOfflineSubscriptionTokenRepository(redisClient), f.features, publisher, clock, time.Hour, time.Second, log)
	f.accounts = NewAccountService(f.users, f.userSubscriptions, f.sessions, f.lockout, f.settings, security.NewPasswordHasher(4), publisher, clock, AccountOptions{DatastoreTimeout: time.Second}, log)
	f.handlers = NewEventHandlers(f.users, f.userSubscriptions, f.offlineSubscriptions, f.roles, f.settings, f.subSettings, f.sessions, UserServerOptions{}, clock, time.Second, log)

	if err := f.roles.SyncRoles(context.Background()); err != nil {
		t.Fatalf("sync roles: %v", err)
	}
	return f
}

// serialize routes every statement through a single connection so concurrent
// callers queue on the pool rather than fail on sqlite's shared-cache table locks.
func (f *fixture) serialize(t *testing.T) {
	t.Helper()
	sqlDB, err := f.db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
}

func (f *fixture) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := f.accounts.Register(context.Background(), RegisterRequest{Email: email, Password: "correct horse"})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
	return res
}

func (f *fixture) reloadUser(t *testing.T, uuid string) *domain.User {
	t.Helper()
	u, err := f.users.FindByUUID(context.Background(), uuid)
	if err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return u
}

// dispatch runs e through a dispatcher wired with the fixture's handlers.
func (f *fixture) dispatch(t *testing.T, typ event.Type, payload any) {
	t.Helper()
	e, err := event.New(typ, f.clock.Now(), payload)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	d := event.NewDispatcher(f.logger)
	f.handlers.Register(d)
	if err := d.Dispatch(context.Background(), raw); err != nil {
		t.Fatalf("dispatch %s: %v", typ, err)
	}
}

func (f *fixture) purchase(t *testing.T, email string, plan domain.SubscriptionName, subscriptionID int64, endsAt time.Time) {
	t.Helper()
	f.dispatch(t, event.TypeSubscriptionPurchased, event.SubscriptionPurchasedPayload{
		UserEmail:             email,
		SubscriptionID:        subscriptionID,
		SubscriptionName:      string(plan),
		SubscriptionExpiresAt: endsAt.UnixMicro(),
		Timestamp:             f.clock.NowMicros(),
	})
}
