package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverRedis    = "redis"
	StorageDriverMemory   = "memory"
)

// Config is the resolved runtime configuration.
// Resolution order is defaults, then the YAML file, then environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Storage   StorageConfig   `yaml:"storage"`
	JWT       JWTConfig       `yaml:"jwt"`
	Auth      AuthConfig      `yaml:"auth"`
	Events    EventsConfig    `yaml:"events"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServiceConfig struct {
	ID       string `yaml:"id"        env:"SERVICE_ID"`
	HTTPPort int    `yaml:"http_port" env:"HTTP_PORT"`
	GRPCPort int    `yaml:"grpc_port" env:"GRPC_PORT"`
	LogLevel string `yaml:"log_level" env:"LOG_LEVEL"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"        env:"STORAGE_DRIVER"`
	DatabaseURL string `yaml:"database_url"  env:"DB_URL"`
	MaxDBConns  int32  `yaml:"max_db_conns"  env:"DB_MAX_CONNS"`
	RedisURL    string `yaml:"redis_url"     env:"REDIS_URL"`
}

type JWTConfig struct {
	Algorithm      string        `yaml:"algorithm"       env:"JWT_ALGORITHM"`
	Secret         string        `yaml:"-"               env:"JWT_SECRET"`
	PrivateKeyPEM  string        `yaml:"-"               env:"JWT_PRIVATE_KEY_PEM"`
	PublicKeyPEM   string        `yaml:"-"               env:"JWT_PUBLIC_KEY_PEM"`
	KeyID          string        `yaml:"key_id"          env:"JWT_KEY_ID"`
	AllowEphemeral bool          `yaml:"allow_ephemeral" env:"JWT_ALLOW_EPHEMERAL"`
	AccessTTL      time.Duration `yaml:"access_ttl"      env:"ACCESS_TOKEN_TTL"`
	RefreshTTL     time.Duration `yaml:"refresh_ttl"     env:"REFRESH_TOKEN_TTL"`
}

type AuthConfig struct {
	BcryptCost       int           `yaml:"bcrypt_rounds"      env:"BCRYPT_ROUNDS"`
	MaxLoginAttempts int           `yaml:"max_login_attempts" env:"MAX_LOGIN_ATTEMPTS"`
	LockDuration     time.Duration `yaml:"lock_duration"      env:"ACCOUNT_LOCK_DURATION"`
}

type EventsConfig struct {
	KafkaBrokers       []string      `yaml:"kafka_brokers"        env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic         string        `yaml:"kafka_topic"          env:"KAFKA_TOPIC"`
	OutboxPollInterval time.Duration `yaml:"outbox_poll_interval" env:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size"    env:"OUTBOX_BATCH_SIZE"`
	OutboxClaimTTL     time.Duration `yaml:"outbox_claim_ttl"     env:"OUTBOX_CLAIM_TTL"`
	OutboxMaxRetries   int           `yaml:"outbox_max_retries"   env:"OUTBOX_MAX_RETRIES"`
	// OutboxInProcess runs the drain loop inside the API process.
	OutboxInProcess bool `yaml:"outbox_in_process" env:"OUTBOX_IN_PROCESS"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

func defaultConfig() Config {
	return Config{
		Service: ServiceConfig{
			ID:       "session-auth-service",
			HTTPPort: 8080,
			GRPCPort: 9090,
			LogLevel: "info",
		},
		Storage: StorageConfig{
			Driver:     StorageDriverPostgres,
			MaxDBConns: 20,
		},
		JWT: JWTConfig{
			Algorithm:  "HS256",
			KeyID:      "session-auth-key-1",
			AccessTTL:  30 * time.Minute,
			RefreshTTL: 3 * time.Hour,
		},
		Auth: AuthConfig{
			BcryptCost:       12,
			MaxLoginAttempts: 5,
			LockDuration:     30 * time.Minute,
		},
		Events: EventsConfig{
			KafkaTopic:         "auth.events",
			OutboxPollInterval: 2 * time.Second,
			OutboxBatchSize:    100,
			OutboxClaimTTL:     30 * time.Second,
			OutboxMaxRetries:   5,
		},
	}
}

// LoadConfig resolves configuration in priority order: defaults -> file -> env.
// A missing file is not an error; a malformed one is.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.JWT.Algorithm = strings.ToUpper(strings.TrimSpace(cfg.JWT.Algorithm))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the runtime cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case StorageDriverPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("missing DB_URL for postgres storage"))
		}
	case StorageDriverRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, errors.New("missing REDIS_URL for redis storage"))
		}
	case StorageDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver))
	}

	switch c.JWT.Algorithm {
	case "HS256", "HS384", "HS512":
		if c.JWT.Secret == "" && !c.JWT.AllowEphemeral {
			errs = append(errs, errors.New("missing JWT_SECRET"))
		}
	case "RS256":
		if (c.JWT.PrivateKeyPEM == "" || c.JWT.PublicKeyPEM == "") && !c.JWT.AllowEphemeral {
			errs = append(errs, errors.New("missing JWT_PRIVATE_KEY_PEM or JWT_PUBLIC_KEY_PEM"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported JWT_ALGORITHM %q", c.JWT.Algorithm))
	}

	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token ttls must be positive"))
	}
	if c.Auth.MaxLoginAttempts < 1 {
		errs = append(errs, errors.New("MAX_LOGIN_ATTEMPTS must be at least 1"))
	}
	if c.Auth.LockDuration <= 0 {
		errs = append(errs, errors.New("ACCOUNT_LOCK_DURATION must be positive"))
	}
	if c.Service.HTTPPort <= 0 || c.Service.GRPCPort <= 0 {
		errs = append(errs, errors.New("service ports must be positive"))
	}
	if _, err := parseLogLevel(c.Service.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func parseLogLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(raw))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", raw)
	}
	return level, nil
}
