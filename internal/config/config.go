// Package config loads service configuration from config.yaml, a .env file
// and RISK_* environment variables.
package config

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Scoring  ScoringConfig  `yaml:"scoring" mapstructure:"scoring"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Kafka    KafkaConfig    `yaml:"kafka" mapstructure:"kafka"`
	Webhook  WebhookConfig  `yaml:"webhook" mapstructure:"webhook"`
	Auth     AuthConfig     `yaml:"auth" mapstructure:"auth"`
	Dealers  DealersConfig  `yaml:"dealers" mapstructure:"dealers"`
	Segments SegmentsConfig `yaml:"segments" mapstructure:"segments"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port             int `yaml:"port" mapstructure:"port"`
	ReadTimeoutSecs  int `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	WriteTimeoutSecs int `yaml:"write_timeout_secs" mapstructure:"write_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ScoringConfig selects the model calibration.
type ScoringConfig struct {
	ModelVersion    string `yaml:"model_version" mapstructure:"model_version"`
	CalibrationFile string `yaml:"calibration_file" mapstructure:"calibration_file"`
}

// StoreConfig selects the assessment store backend.
type StoreConfig struct {
	Driver        string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL   string `yaml:"database_url" mapstructure:"database_url"`
	RedisURL      string `yaml:"redis_url" mapstructure:"redis_url"`
	RedisTTLHours int    `yaml:"redis_ttl_hours" mapstructure:"redis_ttl_hours"`
}

// KafkaConfig configures assessment event publishing.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled" mapstructure:"enabled"`
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// WebhookConfig configures the optional HTTP event sink.
type WebhookConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// AuthConfig configures bearer token validation.
type AuthConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Secret   string `yaml:"secret" mapstructure:"secret"`
	Issuer   string `yaml:"issuer" mapstructure:"issuer"`
	Audience string `yaml:"audience" mapstructure:"audience"`
}

// DealersConfig configures the dealer metrics refresh job.
type DealersConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	DataHubURL string `yaml:"datahub_url" mapstructure:"datahub_url"`
	Schedule   string `yaml:"schedule" mapstructure:"schedule"`
	MinVolume  int    `yaml:"min_volume" mapstructure:"min_volume"`
}

// SegmentsConfig configures the quarterly segment performance job. It reads
// the DataHub named in dealers.datahub_url.
type SegmentsConfig struct {
	Enabled      bool   `yaml:"enabled" mapstructure:"enabled"`
	Schedule     string `yaml:"schedule" mapstructure:"schedule"`
	WindowMonths int    `yaml:"window_months" mapstructure:"window_months"`
	MinBinVolume int    `yaml:"min_bin_volume" mapstructure:"min_bin_volume"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Load reads configuration from file and environment. A .env file in the
// working directory is applied to the process environment first; variables
// already set win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("RISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout_secs", 10)
	v.SetDefault("server.write_timeout_secs", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("scoring.model_version", "1.2")
	v.SetDefault("scoring.calibration_file", "")
	v.SetDefault("store.driver", DriverMemory)
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.redis_url", "")
	v.SetDefault("store.redis_ttl_hours", 720)
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic", "risk.assessment.events")
	v.SetDefault("webhook.url", "")
	v.SetDefault("webhook.timeout_secs", 5)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "risk-engine-api")
	v.SetDefault("dealers.enabled", false)
	v.SetDefault("dealers.datahub_url", "")
	v.SetDefault("dealers.schedule", "0 2 * * *")
	v.SetDefault("dealers.min_volume", 5)
	v.SetDefault("segments.enabled", false)
	v.SetDefault("segments.schedule", "0 3 1 1,4,7,10 *")
	v.SetDefault("segments.window_months", 12)
	v.SetDefault("segments.min_bin_volume", 20)
	v.SetDefault("metrics.enabled", true)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the selected backends have what they need.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, eris.Errorf("server.port must be within 1-65535, got %d", c.Server.Port))
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			errs = append(errs, eris.New("store.database_url is required for the postgres driver"))
		}
	case DriverRedis:
		if c.Store.RedisURL == "" {
			errs = append(errs, eris.New("store.redis_url is required for the redis driver"))
		}
	default:
		errs = append(errs, eris.Errorf("store.driver must be memory, postgres or redis, got %q", c.Store.Driver))
	}
	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, eris.New("kafka.brokers is required when kafka is enabled"))
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, eris.New("kafka.topic is required when kafka is enabled"))
		}
	}
	if c.Auth.Enabled && len(c.Auth.Secret) < 32 {
		errs = append(errs, eris.New("auth.secret must be at least 32 bytes when auth is enabled"))
	}
	if c.Dealers.Enabled {
		if c.Dealers.DataHubURL == "" {
			errs = append(errs, eris.New("dealers.datahub_url is required when the dealer job is enabled"))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, eris.New("store.database_url is required when the dealer job is enabled"))
		}
	}
	if c.Dealers.MinVolume < 1 {
		errs = append(errs, eris.Errorf("dealers.min_volume must be >= 1, got %d", c.Dealers.MinVolume))
	}
	if c.Segments.Enabled {
		if c.Dealers.DataHubURL == "" {
			errs = append(errs, eris.New("dealers.datahub_url is required when the segment job is enabled"))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, eris.New("store.database_url is required when the segment job is enabled"))
		}
	}
	if c.Segments.WindowMonths < 1 || c.Segments.WindowMonths > 60 {
		errs = append(errs, eris.Errorf("segments.window_months must be within 1-60, got %d", c.Segments.WindowMonths))
	}
	if c.Segments.MinBinVolume < 1 {
		errs = append(errs, eris.Errorf("segments.min_bin_volume must be >= 1, got %d", c.Segments.MinBinVolume))
	}

	if len(errs) > 0 {
		return eris.Wrap(errors.Join(errs...), "config: validation failed")
	}
	return nil
}

// InitLogger builds the process logger on stderr and installs it as the
// slog default.
func InitLogger(cfg LogConfig) (*slog.Logger, error) {
	return newLogger(os.Stderr, cfg)
}

func newLogger(w io.Writer, cfg LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text", "":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, eris.Errorf("config: unknown log format %q", cfg.Format)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
