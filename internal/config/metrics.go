package config

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	loadMetricsOnce sync.Once
	loadCounter     metric.Int64Counter
)

// loadOutcome describes one Load call for the config.validation.events counter.
type loadOutcome struct {
	profile   string
	dbDriver  string
	transport string
	err       error
}

func outcomeFor(cfg *Config, fallbackProfile string, err error) loadOutcome {
	o := loadOutcome{profile: fallbackProfile, err: err}
	if cfg != nil {
		o.profile, o.dbDriver, o.transport = cfg.Env, cfg.DBDriver, cfg.EventTransport
	}
	return o
}

func recordLoad(ctx context.Context, o loadOutcome) {
	loadMetricsOnce.Do(func() {
		counter, err := otel.Meter("notesync-auth").Int64Counter("config.validation.events")
		if err == nil {
			loadCounter = counter
		}
	})
	if loadCounter == nil {
		return
	}
	result := "success"
	if o.err != nil {
		result = "failure"
	}
	loadCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("profile", normalizeConfigProfile(o.profile)),
		attribute.String("outcome", result),
		attribute.String("error_class", classifyConfigLoadError(o.err)),
		attribute.String("key", failingKey(o.err)),
		attribute.String("db_driver", orUnknown(o.dbDriver)),
		attribute.String("event_transport", orUnknown(o.transport)),
	))
}

func normalizeConfigProfile(profile string) string {
	return orUnknown(strings.ToLower(profile))
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

func classifyConfigLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.HasPrefix(msg, "validate config:"):
		return "validation"
	case strings.HasPrefix(msg, "parse "):
		return "parse"
	default:
		return "load"
	}
}

var configKeyPattern = regexp.MustCompile(`config: ([A-Z][A-Z0-9_]+)`)

// failingKey names the first environment key a validation error complains about.
func failingKey(err error) string {
	if err == nil {
		return "none"
	}
	if m := configKeyPattern.FindStringSubmatch(err.Error()); m != nil {
		return m[1]
	}
	return "unknown"
}
