package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/notesync/auth-service/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "notesync-auth"

type AppMetrics struct {
	repositoryOps   metric.Int64Counter
	sessionEvents   metric.Int64Counter
	authenticate    metric.Int64Counter
	settingWrites   metric.Int64Counter
	invitations     metric.Int64Counter
	eventPublish    metric.Int64Counter
	eventHandled    metric.Int64Counter
	lockoutEvents   metric.Int64Counter
	rateLimitEvents metric.Int64Counter
	auditEvents     metric.Int64Counter
}

var (
	metricsMu  sync.RWMutex
	appMetrics *AppMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		if err := registerMetrics(mp.Meter(meterName)); err != nil {
			return nil, err
		}
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}

	res, err := serviceResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	if err := registerMetrics(mp.Meter(meterName)); err != nil {
		return nil, err
	}

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func registerMetrics(meter metric.Meter) error {
	m := &AppMetrics{}
	counters := []struct {
		name string
		dst  *metric.Int64Counter
	}{
		{"repository.operations", &m.repositoryOps},
		{"session.events", &m.sessionEvents},
		{"auth.authenticate", &m.authenticate},
		{"setting.writes", &m.settingWrites},
		{"invitation.transitions", &m.invitations},
		{"event.publish", &m.eventPublish},
		{"event.handled", &m.eventHandled},
		{"lockout.events", &m.lockoutEvents},
		{"http.rate_limit.decisions", &m.rateLimitEvents},
		{"audit.events", &m.auditEvents},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name)
		if err != nil {
			return fmt.Errorf("create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	metricsMu.Lock()
	appMetrics = m
	metricsMu.Unlock()
	return nil
}

func current() *AppMetrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	return appMetrics
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.repositoryOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("entity", entity),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

func RecordSessionEvent(ctx context.Context, action, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.sessionEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordAuthentication(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.authenticate.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordSettingWrite(ctx context.Context, scope, status string) {
	m := current()
	if m == nil {
		return
	}
	m.settingWrites.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("status", status),
	))
}

func RecordInvitationTransition(ctx context.Context, action, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.invitations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("outcome", outcome),
	))
}

func RecordEventPublish(ctx context.Context, eventType, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.eventPublish.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("outcome", outcome),
	))
}

func RecordEventHandled(ctx context.Context, eventType, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.eventHandled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("outcome", outcome),
	))
}

func RecordLockoutEvent(ctx context.Context, outcome string) {
	m := current()
	if m == nil {
		return
	}
	m.lockoutEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func RecordRateLimitDecision(ctx context.Context, scope, decision string) {
	m := current()
	if m == nil {
		return
	}
	m.rateLimitEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("scope", scope),
		attribute.String("decision", decision),
	))
}

func serviceResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
}
