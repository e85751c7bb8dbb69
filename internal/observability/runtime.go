package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/notesync/auth-service/internal/config"

	sdklog "go.opentelemetry.io/otel/sdk/log"
)

type component struct {
	name     string
	shutdown func(context.Context) error
}

// Runtime owns the telemetry pipelines of a serving process.
type Runtime struct {
	logger     *slog.Logger
	components []component
}

// InitRuntime starts metrics and tracing and adopts lp, the log pipeline built
// together with the process logger. lp may be nil.
func InitRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger, lp *sdklog.LoggerProvider) (*Runtime, error) {
	rt := &Runtime{logger: logger}
	if lp != nil {
		rt.components = append(rt.components, component{name: "logs", shutdown: lp.Shutdown})
	}

	mp, err := InitMetrics(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	rt.components = append(rt.components, component{name: "metrics", shutdown: mp.Shutdown})

	tp, err := InitTracing(ctx, cfg, logger)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}
	rt.components = append(rt.components, component{name: "tracing", shutdown: tp.Shutdown})
	return rt, nil
}

// Shutdown flushes pipelines in reverse start order so log export closes last.
func (r *Runtime) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var errs []error
	for i := len(r.components) - 1; i >= 0; i-- {
		c := r.components[i]
		if err := c.shutdown(ctx); err != nil {
			if c.name != "logs" {
				r.logger.Warn("telemetry shutdown failed", "component", c.name, "error", err)
			}
			errs = append(errs, fmt.Errorf("shutdown %s: %w", c.name, err))
		}
	}
	return errors.Join(errs...)
}
