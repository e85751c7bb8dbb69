//go:build wireinject
// +build wireinject

package app

import (
	"context"
	"log/slog"

	"github.com/google/wire"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/notesync/auth-service/internal/config"
)

func InitializeApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*App, func(), error) {
	wire.Build(InfraSet, RepositorySet, ServiceSet, HTTPSet, EventSet, provideApp)
	return nil, nil, nil
}

func InitializeMaintenance(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Maintenance, func(), error) {
	wire.Build(
		provideDB,
		provideRedis,
		provideClock,
		RepositorySet,
		provideJWTManager,
		provideSessionManager,
		provideFeatureService,
		wire.Struct(new(Maintenance), "*"),
	)
	return nil, nil, nil
}
