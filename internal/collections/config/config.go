package config

import (
	"strings"

	"docdb-binder/internal/shared/database"
	"docdb-binder/internal/shared/errors"

	"github.com/caarlos0/env/v6"
)

// Storage backends.
const (
	BackendMongoDB = "mongodb"
	BackendMemory  = "memory"
)

// ServerConfig holds the HTTP listener settings of the host binary.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" envDefault:"localhost"`
	Port string `env:"SERVER_PORT" envDefault:"3000"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// Config holds all configuration for the collections module.
type Config struct {
	// Backend selects the Database Client: "mongodb" or "memory".
	Backend string `env:"STORE_BACKEND" envDefault:"mongodb"`
	// DatabaseID names the database every schema slot is provisioned in.
	DatabaseID              string `env:"MONGODB_DATABASE" envDefault:"docdb"`
	AutoCreateDatabase      bool   `env:"AUTO_CREATE_DB" envDefault:"true"`
	ProvisioningConcurrency int    `env:"PROVISIONING_CONCURRENCY" envDefault:"4"`
	MetricsEnabled          bool   `env:"METRICS_ENABLED" envDefault:"true"`

	Mongo  database.MongoConfig
	Redis  RedisConfig
	Server ServerConfig
}

// LoadConfig loads configuration from environment variables and validates it.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.NewConfigurationError("failed to load collections configuration from environment").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns a Config for local development.
func DefaultConfig() *Config {
	return &Config{
		Backend:                 BackendMongoDB,
		DatabaseID:              "docdb",
		AutoCreateDatabase:      true,
		ProvisioningConcurrency: 4,
		MetricsEnabled:          true,
		Mongo: database.MongoConfig{
			URI:            "mongodb://localhost:27017",
			ConnectTimeout: defaultConnectTimeout,
			MaxPoolSize:    100,
			MinPoolSize:    2,
			AppName:        "docdb-binder",
		},
		Redis:  *DefaultRedisConfig(),
		Server: ServerConfig{Host: "localhost", Port: "3000"},
	}
}

// Validate checks the settings that have no safe fallback.
func (c *Config) Validate() error {
	verrs := errors.NewValidationErrors()

	switch c.Backend {
	case BackendMongoDB:
		if c.Mongo.URI == "" {
			verrs.Add("MONGODB_URI", "required when STORE_BACKEND is mongodb", nil)
		}
	case BackendMemory:
	default:
		verrs.Add("STORE_BACKEND", "must be mongodb or memory", c.Backend)
	}

	if c.DatabaseID == "" || strings.ContainsAny(c.DatabaseID, "/\\") {
		verrs.Add("MONGODB_DATABASE", "must be a non-empty name without slashes", c.DatabaseID)
	}
	if c.ProvisioningConcurrency < 1 {
		verrs.Add("PROVISIONING_CONCURRENCY", "must be at least 1", c.ProvisioningConcurrency)
	}
	if c.Redis.ChangeFeedEnabled && c.Redis.Host == "" {
		verrs.Add("REDIS_HOST", "required when CHANGE_FEED_ENABLED is set", nil)
	}
	if c.Redis.StreamMaxLength < 0 {
		verrs.Add("CHANGE_STREAM_MAX_LEN", "must not be negative", c.Redis.StreamMaxLength)
	}

	if !verrs.HasErrors() {
		return nil
	}
	first := verrs.Errors[0]
	return errors.NewConfigurationError("invalid collections configuration: "+first.Field+" "+first.Message).
		WithDetail("validation_errors", verrs.Errors)
}
