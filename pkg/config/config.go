// Package config loads the server configuration from an optional YAML file
// overlaid by environment variables. Environment always wins, so deploys
// can override a checked-in file without editing it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Archive       ArchiveConfig       `yaml:"archive"`
	Outbox        OutboxConfig        `yaml:"outbox"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds the HTTP server settings. The health/metrics listener
// runs on its own port for probe isolation.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	HealthPort      string        `yaml:"health_port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL settings.
type DatabaseConfig struct {
	URL         string        `yaml:"url"`
	ReplicaURLs string        `yaml:"replica_urls"`
	MaxConns    int           `yaml:"max_conns"`
	MinConns    int           `yaml:"min_conns"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxLifetime time.Duration `yaml:"max_lifetime"`
	MaxIdleTime time.Duration `yaml:"max_idle_time"`
	Migrate     bool          `yaml:"migrate"`
}

// RedisConfig holds the optional shared-cache settings. An empty URL
// disables the Redis tier.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ArchiveConfig holds the optional raw-payload archive settings.
type ArchiveConfig struct {
	Enabled      bool   `yaml:"enabled"`
	S3Endpoint   string `yaml:"s3_endpoint"`
	S3Region     string `yaml:"s3_region"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3AccessKey  string `yaml:"s3_access_key"`
	S3SecretKey  string `yaml:"s3_secret_key"`
	UsePathStyle bool   `yaml:"use_path_style"`
}

// OutboxConfig holds the janitor settings.
type OutboxConfig struct {
	JanitorSchedule string        `yaml:"janitor_schedule"`
	Retention       time.Duration `yaml:"retention"`
}

// ObservabilityConfig holds logging and tracing settings.
type ObservabilityConfig struct {
	LogLevel           string `yaml:"log_level"`
	OTelEnabled        bool   `yaml:"otel_enabled"`
	OTelEndpoint       string `yaml:"otel_endpoint"`
	OTelServiceName    string `yaml:"otel_service_name"`
	OTelServiceVersion string `yaml:"otel_service_version"`
	OTelInsecure       bool   `yaml:"otel_insecure"`
}

// Defaults returns the baseline configuration.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			HealthPort:      "9090",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:    25,
			MinConns:    5,
			Timeout:     10 * time.Second,
			MaxLifetime: 30 * time.Minute,
			MaxIdleTime: 5 * time.Minute,
			Migrate:     true,
		},
		Outbox: OutboxConfig{
			JanitorSchedule: "@hourly",
			Retention:       24 * time.Hour,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "traceloft",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file named by
// TRACELOFT_CONFIG_FILE (if any), then environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("TRACELOFT_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() {
	setString(&c.Server.Host, "TRACELOFT_HOST")
	setString(&c.Server.Port, "TRACELOFT_PORT")
	setString(&c.Server.HealthPort, "TRACELOFT_HEALTH_PORT")
	setDuration(&c.Server.ReadTimeout, "TRACELOFT_READ_TIMEOUT")
	setDuration(&c.Server.WriteTimeout, "TRACELOFT_WRITE_TIMEOUT")
	setDuration(&c.Server.IdleTimeout, "TRACELOFT_IDLE_TIMEOUT")
	setDuration(&c.Server.ShutdownTimeout, "TRACELOFT_SHUTDOWN_TIMEOUT")

	setString(&c.Database.URL, "TRACELOFT_POSTGRES_URL")
	setString(&c.Database.ReplicaURLs, "TRACELOFT_POSTGRES_REPLICA_URLS")
	setInt(&c.Database.MaxConns, "TRACELOFT_POSTGRES_MAX_CONNS")
	setInt(&c.Database.MinConns, "TRACELOFT_POSTGRES_MIN_CONNS")
	setDuration(&c.Database.Timeout, "TRACELOFT_POSTGRES_TIMEOUT")
	setBool(&c.Database.Migrate, "TRACELOFT_POSTGRES_MIGRATE")

	setString(&c.Redis.URL, "TRACELOFT_REDIS_URL")
	setString(&c.Redis.Password, "TRACELOFT_REDIS_PASSWORD")
	setInt(&c.Redis.DB, "TRACELOFT_REDIS_DB")

	setBool(&c.Archive.Enabled, "TRACELOFT_ARCHIVE_ENABLED")
	setString(&c.Archive.S3Endpoint, "TRACELOFT_S3_ENDPOINT")
	setString(&c.Archive.S3Region, "TRACELOFT_S3_REGION")
	setString(&c.Archive.S3Bucket, "TRACELOFT_S3_BUCKET")
	setString(&c.Archive.S3AccessKey, "TRACELOFT_S3_ACCESS_KEY")
	setString(&c.Archive.S3SecretKey, "TRACELOFT_S3_SECRET_KEY")
	setBool(&c.Archive.UsePathStyle, "TRACELOFT_S3_USE_PATH_STYLE")

	setString(&c.Outbox.JanitorSchedule, "TRACELOFT_OUTBOX_JANITOR_SCHEDULE")
	setDuration(&c.Outbox.Retention, "TRACELOFT_OUTBOX_RETENTION")

	setString(&c.Observability.LogLevel, "TRACELOFT_LOG_LEVEL")
	setBool(&c.Observability.OTelEnabled, "TRACELOFT_OTEL_ENABLED")
	setString(&c.Observability.OTelEndpoint, "TRACELOFT_OTEL_ENDPOINT")
	setString(&c.Observability.OTelServiceName, "TRACELOFT_OTEL_SERVICE_NAME")
	setString(&c.Observability.OTelServiceVersion, "TRACELOFT_OTEL_SERVICE_VERSION")
	setBool(&c.Observability.OTelInsecure, "TRACELOFT_OTEL_INSECURE")
}

// Validate checks the configuration for contradictions and gaps.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("postgres URL is required")
	}
	if c.Archive.Enabled && c.Archive.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required when archival is enabled")
	}
	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OTel endpoint is required when tracing is enabled")
	}
	return nil
}

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func setBool(dst *bool, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = strings.ToLower(value) == "true" || value == "1"
	}
}

func setInt(dst *int, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			*dst = parsed
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			*dst = parsed
		}
	}
}
