package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/notesync/auth-service/internal/config"
	"github.com/notesync/auth-service/internal/event"
	"github.com/notesync/auth-service/internal/health"
	"github.com/notesync/auth-service/internal/observability"
	"github.com/notesync/auth-service/internal/service"
)

// Cleaner removes expired sessions and aged revocation tombstones.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (service.CleanupReport, error)
}

// Drainer waits for in-flight event publications.
type Drainer interface {
	Wait(ctx context.Context) error
}

type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Server        *http.Server
	Observability *observability.Runtime
	Subscriber    event.Subscriber
	Cleaner       Cleaner
	Readiness     *health.ProbeRunner
	Publisher     Drainer

	CleanupInterval              time.Duration
	ShutdownTimeout              time.Duration
	ShutdownHTTPDrainTimeout     time.Duration
	ShutdownObservabilityTimeout time.Duration
}

func New(
	cfg *config.Config,
	logger *slog.Logger,
	server *http.Server,
	runtime *observability.Runtime,
	subscriber event.Subscriber,
	cleaner Cleaner,
	readiness *health.ProbeRunner,
	publisher Drainer,
) *App {
	return &App{
		Config:                       cfg,
		Logger:                       logger,
		Server:                       server,
		Observability:                runtime,
		Subscriber:                   subscriber,
		Cleaner:                      cleaner,
		Readiness:                    readiness,
		Publisher:                    publisher,
		CleanupInterval:              cfg.CleanupInterval,
		ShutdownTimeout:              cfg.ShutdownTimeout,
		ShutdownHTTPDrainTimeout:     cfg.ShutdownHTTPDrainTimeout,
		ShutdownObservabilityTimeout: cfg.ShutdownObservabilityTimeout,
	}
}

// Run serves HTTP, consumes events and sweeps sessions until ctx is cancelled or
// one of them fails, then shuts everything down within ShutdownTimeout.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("http server listening", "addr", a.Server.Addr)
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if a.Subscriber != nil {
		g.Go(func() error { return a.Subscriber.Run(gctx) })
	}
	if a.Cleaner != nil && a.CleanupInterval > 0 {
		g.Go(func() error {
			a.cleanupLoop(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return a.shutdown()
	})

	return g.Wait()
}

func (a *App) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(a.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.CleanupOnce(ctx)
		}
	}
}

// CleanupOnce runs a single sweep and logs the outcome.
func (a *App) CleanupOnce(ctx context.Context) (service.CleanupReport, error) {
	report, err := a.Cleaner.CleanupExpired(ctx)
	if err != nil {
		a.Logger.Error("session cleanup failed", "error", err)
		return report, err
	}
	a.Logger.Info("session cleanup finished",
		"expired_sessions", report.ExpiredSessions,
		"aged_tombstones", report.AgedTombstones,
	)
	return report, nil
}

func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeoutOr(a.ShutdownTimeout, 20*time.Second))
	defer cancel()
	a.Logger.Info("shutting down")

	var errs []error
	drainCtx, drainCancel := context.WithTimeout(ctx, a.timeoutOr(a.ShutdownHTTPDrainTimeout, 10*time.Second))
	if err := a.Server.Shutdown(drainCtx); err != nil {
		errs = append(errs, err)
	}
	drainCancel()

	if a.Publisher != nil {
		if err := a.Publisher.Wait(ctx); err != nil {
			a.Logger.Warn("event publications still in flight at shutdown", "error", err)
		}
	}

	obsCtx, obsCancel := context.WithTimeout(ctx, a.timeoutOr(a.ShutdownObservabilityTimeout, 5*time.Second))
	if err := a.Observability.Shutdown(obsCtx); err != nil {
		errs = append(errs, err)
	}
	obsCancel()
	return errors.Join(errs...)
}

func (a *App) timeoutOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
