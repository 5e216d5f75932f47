// Package config loads deckpack settings from, in increasing precedence, a
// .env file, an optional YAML file named by DECKPACK_CONFIG, and the
// process environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sethwebster/presentations-sub001/pkg/artifacts"
)

// Config holds CLI and pipeline configuration.
type Config struct {
	LogLevel    string `yaml:"log_level"`
	Concurrency int    `yaml:"concurrency"`
	// Pretty indents the JSON manifests written into packages.
	Pretty bool `yaml:"pretty"`

	Storage   artifacts.Config `yaml:"storage"`
	Telemetry Telemetry        `yaml:"telemetry"`
}

// Telemetry configures OpenTelemetry export.
type Telemetry struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LogLevel:    "INFO",
		Concurrency: 4,
		Pretty:      true,
		Storage: artifacts.Config{
			Type:    artifacts.StoreTypeFS,
			DataDir: "data",
		},
		Telemetry: Telemetry{
			Endpoint:    "localhost:4317",
			ServiceName: "deckpack",
		},
	}
}

// Load builds a Config from .env, DECKPACK_CONFIG and the environment.
func Load() (*Config, error) {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("DECKPACK_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.LogLevel, "DECKPACK_LOG_LEVEL")
	if err := setInt(&cfg.Concurrency, "DECKPACK_CONCURRENCY"); err != nil {
		return err
	}
	if err := setBool(&cfg.Pretty, "DECKPACK_PRETTY"); err != nil {
		return err
	}

	s := &cfg.Storage
	if v := os.Getenv("ARTIFACT_STORAGE_TYPE"); v != "" {
		s.Type = artifacts.StoreType(strings.ToLower(v))
	}
	setString(&s.DataDir, "DATA_DIR")
	setString(&s.S3.Bucket, "ARTIFACT_S3_BUCKET")
	setString(&s.S3.Region, "AWS_REGION")
	setString(&s.S3.Region, "ARTIFACT_S3_REGION")
	setString(&s.S3.Endpoint, "ARTIFACT_S3_ENDPOINT")
	setString(&s.S3.Prefix, "ARTIFACT_S3_PREFIX")
	setString(&s.GCS.Bucket, "ARTIFACT_GCS_BUCKET")
	setString(&s.GCS.Prefix, "ARTIFACT_GCS_PREFIX")
	setString(&s.Redis.Addr, "ARTIFACT_REDIS_ADDR")
	setString(&s.Redis.Password, "ARTIFACT_REDIS_PASSWORD")
	if err := setInt(&s.Redis.DB, "ARTIFACT_REDIS_DB"); err != nil {
		return err
	}
	setString(&s.Redis.Prefix, "ARTIFACT_REDIS_PREFIX")
	setString(&s.SQLDSN, "ARTIFACT_SQL_DSN")
	setString(&s.PebbleDir, "ARTIFACT_PEBBLE_DIR")

	if err := setBool(&cfg.Telemetry.Enabled, "DECKPACK_TELEMETRY"); err != nil {
		return err
	}
	setString(&cfg.Telemetry.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(&cfg.Telemetry.ServiceName, "OTEL_SERVICE_NAME")
	return nil
}

// Validate checks values that would otherwise fail late.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.Concurrency < 1 {
		return fmt.Errorf("DECKPACK_CONCURRENCY must be at least 1, got %d", c.Concurrency)
	}
	switch c.Storage.Type {
	case artifacts.StoreTypeMemory, artifacts.StoreTypeFS, artifacts.StoreTypeS3, artifacts.StoreTypeGCS,
		artifacts.StoreTypeRedis, artifacts.StoreTypeSQLite, artifacts.StoreTypePostgres, artifacts.StoreTypePebble:
	default:
		return fmt.Errorf("unsupported ARTIFACT_STORAGE_TYPE: %q", c.Storage.Type)
	}
	return nil
}

// SlogLevel parses LogLevel (DEBUG, INFO, WARN or ERROR, any case).
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid DECKPACK_LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return level, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = b
	return nil
}
