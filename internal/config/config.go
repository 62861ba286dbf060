package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/paulexconde/bizassess/internal/pkg/retry"
	"gopkg.in/yaml.v3"
)

const envPrefix = "BIZASSESS_"

type Config struct {
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	HTTP       HTTPConfig       `yaml:"http"`
	Versioning VersioningConfig `yaml:"versioning"`
	Audit      AuditConfig      `yaml:"audit"`
	Tracing    TracingConfig    `yaml:"tracing"`
}

type LogConfig struct {
	Mode  string `yaml:"mode" validate:"oneof=development production dev prod"`
	Level string `yaml:"level"`
}

type DatabaseConfig struct {
	// Driver selects the store: "postgres" or the in-process "memory" store.
	Driver          string        `yaml:"driver" validate:"oneof=postgres memory"`
	DSN             string        `yaml:"dsn" validate:"required_if=Driver postgres"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"gte=0"`
	MigrateOnStart  bool          `yaml:"migrate_on_start"`
}

type HTTPConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gte=0"`
	// AllowOrigins enables CORS for the admin panel. Empty disables it.
	AllowOrigins []string `yaml:"allow_origins" validate:"dive,required"`
}

type PublishRule struct {
	Name       string `yaml:"name" validate:"required"`
	Expression string `yaml:"expression" validate:"required"`
}

type VersioningConfig struct {
	// ConflictRetries bounds how often a colliding version number is recomputed
	// after the first attempt.
	ConflictRetries int           `yaml:"conflict_retries" validate:"gte=0,lte=20"`
	ConflictBackoff time.Duration `yaml:"conflict_backoff" validate:"gte=0"`
	PublishRules    []PublishRule `yaml:"publish_rules" validate:"dive"`
}

// Retry converts the conflict settings into a retry policy; the first attempt is not a retry.
func (v VersioningConfig) Retry() retry.Config {
	return retry.Config{
		MaxAttempts:  v.ConflictRetries + 1,
		InitialDelay: v.ConflictBackoff,
	}
}

type AuditConfig struct {
	Workers   int `yaml:"workers" validate:"gte=1"`
	QueueSize int `yaml:"queue_size" validate:"gte=1"`
}

type TracingConfig struct {
	// Exporter is "none", "stdout" or "otlp" (OTLP over HTTP to Endpoint).
	Exporter    string  `yaml:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint    string  `yaml:"endpoint" validate:"required_if=Exporter otlp"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" validate:"gte=0,lte=1"`
	ServiceName string  `yaml:"service_name" validate:"required"`
}

func Default() Config {
	return Config{
		Log: LogConfig{Mode: "development", Level: "info"},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Versioning: VersioningConfig{
			ConflictRetries: 5,
			ConflictBackoff: 20 * time.Millisecond,
		},
		Audit: AuditConfig{
			Workers:   4,
			QueueSize: 64,
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			SampleRatio: 1,
			ServiceName: "bizassess",
		},
	}
}

// Load reads path (optional) over the defaults, applies BIZASSESS_* overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q", f.Namespace(), f.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Log.Mode = String("LOG_MODE", cfg.Log.Mode)
	cfg.Log.Level = String("LOG_LEVEL", cfg.Log.Level)
	cfg.Database.Driver = String("DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.DSN = String("DATABASE_DSN", cfg.Database.DSN)
	cfg.HTTP.Addr = String("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Tracing.Exporter = String("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.Endpoint = String("TRACING_ENDPOINT", cfg.Tracing.Endpoint)

	var err error
	if cfg.Database.MaxOpenConns, err = Int("DATABASE_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns); err != nil {
		return err
	}
	if cfg.Database.MigrateOnStart, err = Bool("DATABASE_MIGRATE_ON_START", cfg.Database.MigrateOnStart); err != nil {
		return err
	}
	if cfg.Versioning.ConflictRetries, err = Int("VERSIONING_CONFLICT_RETRIES", cfg.Versioning.ConflictRetries); err != nil {
		return err
	}
	if cfg.Versioning.ConflictBackoff, err = Duration("VERSIONING_CONFLICT_BACKOFF", cfg.Versioning.ConflictBackoff); err != nil {
		return err
	}
	if cfg.Tracing.Insecure, err = Bool("TRACING_INSECURE", cfg.Tracing.Insecure); err != nil {
		return err
	}
	return nil
}
