// Package config loads service configuration from the environment and an optional .env file.
package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	DBDriver    string `mapstructure:"DB_DRIVER"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RedisURL    string `mapstructure:"REDIS_URL"`

	EventTransport     string `mapstructure:"EVENT_TRANSPORT"`
	RedisEventsChannel string `mapstructure:"REDIS_EVENTS_CHANNEL"`
	KafkaBrokers       string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic         string `mapstructure:"KAFKA_TOPIC"`
	KafkaGroupID       string `mapstructure:"KAFKA_GROUP_ID"`

	JWTIssuer           string `mapstructure:"AUTH_JWT_ISSUER"`
	JWTAudience         string `mapstructure:"AUTH_JWT_AUDIENCE"`
	JWTAccessSecret     string `mapstructure:"AUTH_JWT_ACCESS_SECRET"`
	JWTRefreshSecret    string `mapstructure:"AUTH_JWT_REFRESH_SECRET"`
	TokenHashPepper     string `mapstructure:"TOKEN_HASH_PEPPER"`
	BcryptCost          int    `mapstructure:"BCRYPT_COST"`
	DisableRegistration bool   `mapstructure:"DISABLE_USER_REGISTRATION"`

	AccessTokenAge          time.Duration `mapstructure:"ACCESS_TOKEN_AGE"`
	RefreshTokenAge         time.Duration `mapstructure:"REFRESH_TOKEN_AGE"`
	EphemeralSessionAge     time.Duration `mapstructure:"EPHEMERAL_SESSION_AGE"`
	RevokedSessionRetention time.Duration `mapstructure:"REVOKED_SESSION_RETENTION"`
	OfflineTokenTTL         time.Duration `mapstructure:"OFFLINE_TOKEN_TTL"`

	MaxLoginAttempts   int           `mapstructure:"MAX_LOGIN_ATTEMPTS"`
	FailedLoginLockout time.Duration `mapstructure:"FAILED_LOGIN_LOCKOUT"`

	EncryptionServerKey         string `mapstructure:"ENCRYPTION_SERVER_KEY"`
	EncryptionServerKeyVersion  string `mapstructure:"ENCRYPTION_SERVER_KEY_VERSION"`
	EncryptionServerKeyPrevious string `mapstructure:"ENCRYPTION_SERVER_KEY_PREVIOUS"`

	UserServerRegistrationURL string `mapstructure:"USER_SERVER_REGISTRATION_URL"`
	UserServerAuthKey         string `mapstructure:"USER_SERVER_AUTH_KEY"`

	DatastoreTimeout    time.Duration `mapstructure:"DATASTORE_TIMEOUT"`
	EventPublishTimeout time.Duration `mapstructure:"EVENT_PUBLISH_TIMEOUT"`
	AuthRateLimitRPM    int           `mapstructure:"AUTH_RATE_LIMIT_RPM"`
	CleanupInterval     time.Duration `mapstructure:"SESSION_CLEANUP_INTERVAL"`

	ShutdownTimeout              time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	ShutdownHTTPDrainTimeout     time.Duration `mapstructure:"SHUTDOWN_HTTP_DRAIN_TIMEOUT"`
	ShutdownObservabilityTimeout time.Duration `mapstructure:"SHUTDOWN_OBSERVABILITY_TIMEOUT"`

	OTELServiceName           string        `mapstructure:"OTEL_SERVICE_NAME"`
	OTELEnvironment           string        `mapstructure:"OTEL_ENVIRONMENT"`
	OTELExporterOTLPEndpoint  string        `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTELExporterOTLPInsecure  bool          `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	OTELMetricsEnabled        bool          `mapstructure:"OTEL_METRICS_ENABLED"`
	OTELTracingEnabled        bool          `mapstructure:"OTEL_TRACING_ENABLED"`
	OTELLogsEnabled           bool          `mapstructure:"OTEL_LOGS_ENABLED"`
	OTELMetricsExportInterval time.Duration `mapstructure:"OTEL_METRICS_EXPORT_INTERVAL"`
	OTELTraceSamplingRatio    float64       `mapstructure:"OTEL_TRACE_SAMPLING_RATIO"`
	LogLevel                  string        `mapstructure:"LOG_LEVEL"`
}

var defaults = map[string]any{
	"APP_ENV":                        "development",
	"HTTP_ADDR":                      ":3000",
	"DB_DRIVER":                      "postgres",
	"DATABASE_URL":                   "",
	"REDIS_URL":                      "redis://localhost:6379/0",
	"EVENT_TRANSPORT":                "redis",
	"REDIS_EVENTS_CHANNEL":           "auth-events",
	"KAFKA_BROKERS":                  "",
	"KAFKA_TOPIC":                    "auth-events",
	"KAFKA_GROUP_ID":                 "notesync-auth",
	"AUTH_JWT_ISSUER":                "notesync-auth",
	"AUTH_JWT_AUDIENCE":              "notesync-clients",
	"AUTH_JWT_ACCESS_SECRET":         "",
	"AUTH_JWT_REFRESH_SECRET":        "",
	"TOKEN_HASH_PEPPER":              "",
	"BCRYPT_COST":                    12,
	"DISABLE_USER_REGISTRATION":      false,
	"ACCESS_TOKEN_AGE":               "1h",
	"REFRESH_TOKEN_AGE":              "720h",
	"EPHEMERAL_SESSION_AGE":          "6h",
	"REVOKED_SESSION_RETENTION":      "720h",
	"OFFLINE_TOKEN_TTL":              "3h",
	"MAX_LOGIN_ATTEMPTS":             6,
	"FAILED_LOGIN_LOCKOUT":           "1h",
	"ENCRYPTION_SERVER_KEY":          "",
	"ENCRYPTION_SERVER_KEY_VERSION":  "1",
	"ENCRYPTION_SERVER_KEY_PREVIOUS": "",
	"USER_SERVER_REGISTRATION_URL":   "",
	"USER_SERVER_AUTH_KEY":           "",
	"DATASTORE_TIMEOUT":              "5s",
	"EVENT_PUBLISH_TIMEOUT":          "5s",
	"AUTH_RATE_LIMIT_RPM":            30,
	"SESSION_CLEANUP_INTERVAL":       "1h",
	"SHUTDOWN_TIMEOUT":               "20s",
	"SHUTDOWN_HTTP_DRAIN_TIMEOUT":    "10s",
	"SHUTDOWN_OBSERVABILITY_TIMEOUT": "5s",
	"OTEL_SERVICE_NAME":              "notesync-auth",
	"OTEL_ENVIRONMENT":               "development",
	"OTEL_EXPORTER_OTLP_ENDPOINT":    "localhost:4317",
	"OTEL_EXPORTER_OTLP_INSECURE":    true,
	"OTEL_METRICS_ENABLED":           false,
	"OTEL_TRACING_ENABLED":           false,
	"OTEL_LOGS_ENABLED":              false,
	"OTEL_METRICS_EXPORT_INTERVAL":   "15s",
	"OTEL_TRACE_SAMPLING_RATIO":      1.0,
	"LOG_LEVEL":                      "info",
}

// Load reads .env when present, then the process environment. Environment wins.
func Load() (*Config, error) {
	return LoadFile(".env")
}

func LoadFile(envFile string) (*Config, error) {
	v := viper.New()
	if envFile != "" {
		v.SetConfigFile(envFile)
		v.SetConfigType("env")
		_ = v.ReadInConfig()
	}
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		err = fmt.Errorf("parse config: %w", err)
		recordLoad(context.Background(), outcomeFor(nil, v.GetString("APP_ENV"), err))
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		err = fmt.Errorf("validate config: %w", err)
		recordLoad(context.Background(), outcomeFor(&cfg, "", err))
		return nil, err
	}
	recordLoad(context.Background(), outcomeFor(&cfg, "", nil))
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("config: HTTP_ADDR must be set"))
	}
	switch c.DBDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("config: DATABASE_URL must be set for postgres"))
		}
	case "sqlite":
		if c.DatabaseURL == "" {
			c.DatabaseURL = "file:authsvc.db?cache=shared"
		}
	default:
		errs = append(errs, fmt.Errorf("config: DB_DRIVER must be postgres or sqlite, got %q", c.DBDriver))
	}
	switch c.EventTransport {
	case "redis", "none":
	case "kafka":
		if len(c.KafkaBrokerList()) == 0 {
			errs = append(errs, errors.New("config: KAFKA_BROKERS must be set when EVENT_TRANSPORT=kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: EVENT_TRANSPORT must be redis, kafka or none, got %q", c.EventTransport))
	}
	if len(c.JWTAccessSecret) < 32 || len(c.JWTRefreshSecret) < 32 {
		errs = append(errs, errors.New("config: AUTH_JWT_ACCESS_SECRET and AUTH_JWT_REFRESH_SECRET must be at least 32 bytes"))
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("config: access and refresh JWT secrets must differ"))
	}
	if len(c.TokenHashPepper) < 16 {
		errs = append(errs, errors.New("config: TOKEN_HASH_PEPPER must be at least 16 bytes"))
	}
	if len(strings.TrimSpace(c.EncryptionServerKey)) != 64 {
		errs = append(errs, errors.New("config: ENCRYPTION_SERVER_KEY must be 32 bytes hex encoded"))
	}
	if c.EncryptionServerKeyVersion == "" || strings.ContainsAny(c.EncryptionServerKeyVersion, ":,") {
		errs = append(errs, errors.New("config: ENCRYPTION_SERVER_KEY_VERSION must be a non-empty token without ':' or ','"))
	}
	if _, err := c.PreviousServerKeys(); err != nil {
		errs = append(errs, err)
	}
	if c.MaxLoginAttempts < 1 {
		errs = append(errs, errors.New("config: MAX_LOGIN_ATTEMPTS must be at least 1"))
	}
	if c.FailedLoginLockout <= 0 {
		errs = append(errs, errors.New("config: FAILED_LOGIN_LOCKOUT must be positive"))
	}
	if c.AccessTokenAge <= 0 || c.RefreshTokenAge <= 0 || c.EphemeralSessionAge <= 0 {
		errs = append(errs, errors.New("config: token ages must be positive"))
	}
	if c.AccessTokenAge > c.RefreshTokenAge {
		errs = append(errs, errors.New("config: ACCESS_TOKEN_AGE must not exceed REFRESH_TOKEN_AGE"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("config: BCRYPT_COST must be between 4 and 31"))
	}
	return errors.Join(errs...)
}

// PreviousServerKeys parses ENCRYPTION_SERVER_KEY_PREVIOUS ("version:hexkey,...").
func (c *Config) PreviousServerKeys() (map[string]string, error) {
	out := map[string]string{}
	if strings.TrimSpace(c.EncryptionServerKeyPrevious) == "" {
		return out, nil
	}
	for _, part := range strings.Split(c.EncryptionServerKeyPrevious, ",") {
		version, key, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || version == "" || len(key) != 64 {
			return nil, fmt.Errorf("config: ENCRYPTION_SERVER_KEY_PREVIOUS entry %q must be version:hexkey", part)
		}
		if version == c.EncryptionServerKeyVersion {
			return nil, fmt.Errorf("config: ENCRYPTION_SERVER_KEY_PREVIOUS repeats current version %q", version)
		}
		out[version] = key
	}
	return out, nil
}

func (c *Config) KafkaBrokerList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) DatastoreTimeoutOrDefault() time.Duration {
	if c.DatastoreTimeout <= 0 {
		return 5 * time.Second
	}
	return c.DatastoreTimeout
}
