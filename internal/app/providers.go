package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"

	"github.com/notesync/auth-service/internal/config"
	"github.com/notesync/auth-service/internal/db"
	"github.com/notesync/auth-service/internal/event"
	"github.com/notesync/auth-service/internal/health"
	"github.com/notesync/auth-service/internal/http/handler"
	"github.com/notesync/auth-service/internal/http/router"
	"github.com/notesync/auth-service/internal/observability"
	"github.com/notesync/auth-service/internal/repository"
	"github.com/notesync/auth-service/internal/security"
	"github.com/notesync/auth-service/internal/service"
	"github.com/notesync/auth-service/internal/timer"
)

var InfraSet = wire.NewSet(
	provideRuntime,
	provideDB,
	provideRedis,
	provideClock,
	provideEventPublisher,
	wire.Bind(new(event.Publisher), new(*event.AsyncPublisher)),
)

var RepositorySet = wire.NewSet(
	repository.NewUserRepository,
	repository.NewSessionRepository,
	repository.NewRevokedSessionRepository,
	repository.NewRoleRepository,
	repository.NewSettingRepository,
	repository.NewSubscriptionSettingRepository,
	repository.NewUserSubscriptionRepository,
	repository.NewOfflineUserSubscriptionRepository,
	repository.NewInvitationRepository,
	repository.NewPermissionRepository,
	repository.NewRedisOfflineSubscriptionTokenRepository,
	provideEphemeralSessionRepository,
	provideLockRepository,
	wire.Bind(new(repository.OfflineSubscriptionTokenRepository), new(*repository.RedisOfflineSubscriptionTokenRepository)),
)

var ServiceSet = wire.NewSet(
	provideJWTManager,
	provideCrypter,
	providePasswordHasher,
	provideSessionManager,
	provideLockoutService,
	provideRoleService,
	provideFeatureService,
	provideSettingService,
	provideSubscriptionSettingService,
	provideInvitationService,
	provideOfflineSubscriptionService,
	provideAccountService,
	provideEventHandlers,
	service.NewSettingUseCases,
	service.NewRequestAuthenticator,
	wire.Bind(new(service.Crypter), new(*security.AESCrypter)),
)

var HTTPSet = wire.NewSet(
	handler.NewAuthHandler,
	handler.NewSessionHandler,
	handler.NewUserHandler,
	handler.NewInvitationHandler,
	handler.NewOfflineHandler,
	provideReadiness,
	provideRouter,
	provideHTTPServer,
)

var EventSet = wire.NewSet(
	provideDispatcher,
	provideSubscriber,
)

func provideRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*observability.Runtime, error) {
	return observability.InitRuntime(ctx, cfg, logger, lp)
}

func provideDB(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*gorm.DB, func(), error) {
	gdb, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DBDriver == "sqlite" {
		if err := db.AutoMigrate(gdb); err != nil {
			_ = db.Close(gdb)
			return nil, nil, fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return gdb, func() {
		if err := db.Close(gdb); err != nil {
			logger.Warn("close database", "error", err)
		}
	}, nil
}

func provideRedis(ctx context.Context, cfg *config.Config, logger *slog.Logger) (redis.UniversalClient, func(), error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, cfg.DatastoreTimeoutOrDefault())
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, func() {
		if err := client.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}, nil
}

func provideClock() timer.Timer { return timer.NewSystemTimer() }

// provideEventPublisher picks the transport and wraps it so publication never
// blocks a request.
func provideEventPublisher(cfg *config.Config, client redis.UniversalClient, logger *slog.Logger) (*event.AsyncPublisher, func(), error) {
	var (
		next    event.Publisher
		cleanup = func() {}
	)
	switch cfg.EventTransport {
	case "redis":
		next = event.NewRedisPublisher(client, cfg.RedisEventsChannel)
	case "kafka":
		kp, err := event.NewKafkaPublisher(cfg.KafkaBrokerList(), cfg.KafkaTopic)
		if err != nil {
			return nil, nil, err
		}
		next = kp
		cleanup = func() {
			if err := kp.Close(); err != nil {
				logger.Warn("close kafka publisher", "error", err)
			}
		}
	default:
		next = event.NoopPublisher{}
	}
	return event.NewAsyncPublisher(next, cfg.EventPublishTimeout, logger), cleanup, nil
}

func provideEphemeralSessionRepository(client redis.UniversalClient) repository.EphemeralSessionRepository {
	return repository.NewRedisEphemeralSessionRepository(client, "")
}

func provideLockRepository(client redis.UniversalClient) repository.LockRepository {
	return repository.NewRedisLockRepository(client, "")
}

func provideJWTManager(cfg *config.Config, clock timer.Timer) *security.JWTManager {
	return security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTAccessSecret, cfg.JWTRefreshSecret).WithClock(clock.Now)
}

func provideCrypter(cfg *config.Config) (*security.AESCrypter, error) {
	current, err := security.ParseServerKey(cfg.EncryptionServerKey)
	if err != nil {
		return nil, err
	}
	keys := map[string][]byte{cfg.EncryptionServerKeyVersion: current}
	previous, err := cfg.PreviousServerKeys()
	if err != nil {
		return nil, err
	}
	for version, raw := range previous {
		key, err := security.ParseServerKey(raw)
		if err != nil {
			return nil, fmt.Errorf("previous key %s: %w", version, err)
		}
		keys[version] = key
	}
	return security.NewAESCrypter(cfg.EncryptionServerKeyVersion, keys)
}

func providePasswordHasher(cfg *config.Config) *security.PasswordHasher {
	return security.NewPasswordHasher(cfg.BcryptCost)
}

func provideSessionManager(
	cfg *config.Config,
	jwtMgr *security.JWTManager,
	sessions repository.SessionRepository,
	ephemeral repository.EphemeralSessionRepository,
	revoked repository.RevokedSessionRepository,
	users repository.UserRepository,
	clock timer.Timer,
	logger *slog.Logger,
) *service.SessionManager {
	ttls := service.SessionTTLs{
		Access:    cfg.AccessTokenAge,
		Refresh:   cfg.RefreshTokenAge,
		Ephemeral: cfg.EphemeralSessionAge,
		Tombstone: cfg.RevokedSessionRetention,
	}
	return service.NewSessionManager(jwtMgr, sessions, ephemeral, revoked, users, clock, cfg.TokenHashPepper, ttls, cfg.DatastoreTimeoutOrDefault(), logger)
}

func provideLockoutService(cfg *config.Config, locks repository.LockRepository) *service.LockoutService {
	return service.NewLockoutService(locks, cfg.MaxLoginAttempts, cfg.FailedLoginLockout)
}

// provideRoleService also seeds the static role/permission catalogue.
func provideRoleService(
	ctx context.Context,
	cfg *config.Config,
	users repository.UserRepository,
	offline repository.OfflineUserSubscriptionRepository,
	roles repository.RoleRepository,
	logger *slog.Logger,
) (*service.RoleService, error) {
	svc := service.NewRoleService(users, offline, roles, cfg.DatastoreTimeoutOrDefault(), logger)
	if err := svc.SyncRoles(ctx); err != nil {
		return nil, fmt.Errorf("sync roles: %w", err)
	}
	return svc, nil
}

func provideFeatureService(
	cfg *config.Config,
	userSubs repository.UserSubscriptionRepository,
	offline repository.OfflineUserSubscriptionRepository,
	clock timer.Timer,
) *service.FeatureService {
	return service.NewFeatureService(userSubs, offline, clock, cfg.DatastoreTimeoutOrDefault())
}

func provideSettingService(
	cfg *config.Config,
	settings repository.SettingRepository,
	users repository.UserRepository,
	crypter service.Crypter,
	publisher event.Publisher,
	clock timer.Timer,
	logger *slog.Logger,
) *service.SettingService {
	return service.NewSettingService(settings, users, crypter, publisher, clock, cfg.DatastoreTimeoutOrDefault(), logger)
}

func provideSubscriptionSettingService(
	cfg *config.Config,
	settings repository.SubscriptionSettingRepository,
	subscriptions repository.UserSubscriptionRepository,
	users repository.UserRepository,
	crypter service.Crypter,
	clock timer.Timer,
	logger *slog.Logger,
) *service.SubscriptionSettingService {
	return service.NewSubscriptionSettingService(settings, subscriptions, users, crypter, clock, cfg.DatastoreTimeoutOrDefault(), logger)
}

func provideInvitationService(
	cfg *config.Config,
	invitations repository.InvitationRepository,
	subscriptions repository.UserSubscriptionRepository,
	users repository.UserRepository,
	roles *service.RoleService,
	defaults *service.SubscriptionSettingService,
	publisher event.Publisher,
	clock timer.Timer,
	logger *slog.Logger,
) *service.InvitationService {
	return service.NewInvitationService(invitations, subscriptions, users, roles, defaults, publisher, clock, cfg.DatastoreTimeoutOrDefault(), logger)
}

func provideOfflineSubscriptionService(
	cfg *config.Config,
	subscriptions repository.OfflineUserSubscriptionRepository,
	tokens repository.OfflineSubscriptionTokenRepository,
	features *service.FeatureService,
	publisher event.Publisher,
	clock timer.Timer,
	logger *slog.Logger,
) *service.OfflineSubscriptionService {
	return service.NewOfflineSubscriptionService(subscriptions, tokens, features, publisher, clock, cfg.OfflineTokenTTL, cfg.DatastoreTimeoutOrDefault(), logger)
}

func provideAccountService(
	cfg *config.Config,
	users repository.UserRepository,
	subscriptions repository.UserSubscriptionRepository,
	sessions *service.SessionManager,
	lockout *service.LockoutService,
	settings *service.SettingService,
	hasher *security.PasswordHasher,
	publisher event.Publisher,
	clock timer.Timer,
	logger *slog.Logger,
) *service.AccountService {
	opts := service.AccountOptions{
		DisableRegistration: cfg.DisableRegistration,
		DatastoreTimeout:    cfg.DatastoreTimeoutOrDefault(),
	}
	return service.NewAccountService(users, subscriptions, sessions, lockout, settings, hasher, publisher, clock, opts, logger)
}

func provideEventHandlers(
	cfg *config.Config,
	users repository.UserRepository,
	userSubs repository.UserSubscriptionRepository,
	offline repository.OfflineUserSubscriptionRepository,
	roles *service.RoleService,
	settings *service.SettingService,
	subSettings *service.SubscriptionSettingService,
	sessions *service.SessionManager,
	clock timer.Timer,
	logger *slog.Logger,
) *service.EventHandlers {
	userServer := service.UserServerOptions{
		RegistrationURL: cfg.UserServerRegistrationURL,
		AuthKey:         cfg.UserServerAuthKey,
		Timeout:         cfg.EventPublishTimeout,
	}
	return service.NewEventHandlers(users, userSubs, offline, roles, settings, subSettings, sessions, userServer, clock, cfg.DatastoreTimeoutOrDefault(), logger)
}

func provideDispatcher(handlers *service.EventHandlers, logger *slog.Logger) *event.Dispatcher {
	d := event.NewDispatcher(logger)
	handlers.Register(d)
	return d
}

// provideSubscriber returns nil when EVENT_TRANSPORT=none.
func provideSubscriber(cfg *config.Config, client redis.UniversalClient, d *event.Dispatcher, logger *slog.Logger) (event.Subscriber, error) {
	switch cfg.EventTransport {
	case "redis":
		return event.NewRedisSubscriber(client, cfg.RedisEventsChannel, d, logger), nil
	case "kafka":
		return event.NewKafkaSubscriber(cfg.KafkaBrokerList(), cfg.KafkaTopic, cfg.KafkaGroupID, d, logger)
	default:
		return nil, nil
	}
}

func provideReadiness(gdb *gorm.DB, client redis.UniversalClient) *health.ProbeRunner {
	return health.NewProbeRunner(2*time.Second, 2*time.Second, health.NewDBChecker(gdb), health.NewRedisChecker(client))
}

func provideRouter(
	cfg *config.Config,
	auth *handler.AuthHandler,
	sessions *handler.SessionHandler,
	users *handler.UserHandler,
	invitations *handler.InvitationHandler,
	offline *handler.OfflineHandler,
	authenticator *service.RequestAuthenticator,
	readiness *health.ProbeRunner,
) http.Handler {
	return router.NewRouter(router.Dependencies{
		AuthHandler:       auth,
		SessionHandler:    sessions,
		UserHandler:       users,
		InvitationHandler: invitations,
		OfflineHandler:    offline,
		Authenticator:     authenticator,
		AuthRateLimitRPM:  cfg.AuthRateLimitRPM,
		Readiness:         readiness,
		EnableOTelHTTP:    cfg.OTELTracingEnabled,
	})
}

func provideHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func provideApp(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	subscriber event.Subscriber,
	sessions *service.SessionManager,
	readiness *health.ProbeRunner,
	publisher *event.AsyncPublisher,
) *App {
	return New(cfg, logger, server, runtime, subscriber, sessions, readiness, publisher)
}
