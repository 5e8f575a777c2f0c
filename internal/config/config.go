// Package config provides application configuration management using Viper.
// It supports loading from environment variables, config files, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Vapi      VapiConfig
	Backend   BackendConfig
	Search    SearchConfig
	Cache     CacheConfig
	Assistant AssistantConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string
	Port        int
	Environment string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host                  string
	Port                  int
	User                  string
	Password              string
	Name                  string
	SSLMode               string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
}

// ConnectionString returns a PostgreSQL connection string.
func (d *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// VapiConfig holds voice vendor API settings.
type VapiConfig struct {
	APIKey        string
	PhoneNumberID string
	// WebhookURL, when set, switches outbound calls to webhook mode: the
	// vendor posts end-of-call reports here instead of us polling.
	WebhookURL         string
	WebhookSecret      string
	APIURL             string
	MaxConcurrentCalls int
}

// WebhookEnabled returns true when webhook mode is configured.
func (v *VapiConfig) WebhookEnabled() bool {
	return v.WebhookURL != ""
}

// BackendConfig holds this service's own externally reachable address,
// used by callers polling the local result cache.
type BackendConfig struct {
	URL string
}

// SearchConfig holds provider discovery service settings.
type SearchConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// CacheConfig holds call result cache settings.
type CacheConfig struct {
	TTL time.Duration
}

// AssistantConfig holds voice assistant model and voice identifiers.
type AssistantConfig struct {
	Model          string
	Voice          string
	Transcriber    string
	MaxDurationMin int
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables and config files.
// Environment variables take precedence over config file values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/callbridge")

	// VAPI_API_KEY binds to vapi.api_key, CACHE_TTL_SECONDS to
	// cache.ttl_seconds, and so on.
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFoundErr) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:        v.GetString("server.host"),
			Port:        v.GetInt("server.port"),
			Environment: v.GetString("server.env"),
		},
		Database: DatabaseConfig{
			Host:                  v.GetString("database.host"),
			Port:                  v.GetInt("database.port"),
			User:                  v.GetString("database.user"),
			Password:              v.GetString("database.password"),
			Name:                  v.GetString("database.name"),
			SSLMode:               v.GetString("database.sslmode"),
			MaxConnections:        v.GetInt("database.max_connections"),
			MaxIdleConnections:    v.GetInt("database.max_idle_connections"),
			ConnectionMaxLifetime: v.GetDuration("database.connection_max_lifetime"),
		},
		Vapi: VapiConfig{
			APIKey:             v.GetString("vapi.api_key"),
			PhoneNumberID:      v.GetString("vapi.phone_number_id"),
			WebhookURL:         v.GetString("vapi.webhook_url"),
			WebhookSecret:      v.GetString("vapi.webhook_secret"),
			APIURL:             v.GetString("vapi.api_url"),
			MaxConcurrentCalls: v.GetInt("vapi.max_concurrent_calls"),
		},
		Backend: BackendConfig{
			URL: v.GetString("backend.url"),
		},
		Search: SearchConfig{
			URL:     v.GetString("search.url"),
			APIKey:  v.GetString("search.api_key"),
			Timeout: v.GetDuration("search.timeout"),
		},
		Cache: CacheConfig{
			TTL: time.Duration(v.GetInt("cache.ttl_seconds")) * time.Second,
		},
		Assistant: AssistantConfig{
			Model:          v.GetString("assistant.model"),
			Voice:          v.GetString("assistant.voice"),
			Transcriber:    v.GetString("assistant.transcriber"),
			MaxDurationMin: v.GetInt("assistant.max_duration_minutes"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults configures default values for all settings.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.env", "development")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "callbridge")
	v.SetDefault("database.name", "callbridge")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_connections", 5)
	v.SetDefault("database.connection_max_lifetime", "5m")

	// Vendor defaults
	v.SetDefault("vapi.api_url", "https://api.vapi.ai")
	v.SetDefault("vapi.max_concurrent_calls", 5)

	// Search defaults
	v.SetDefault("search.timeout", "20s")

	// Cache defaults
	v.SetDefault("cache.ttl_seconds", 1800)

	// Assistant defaults
	v.SetDefault("assistant.model", "gpt-4o")
	v.SetDefault("assistant.voice", "jennifer")
	v.SetDefault("assistant.transcriber", "nova-2")
	v.SetDefault("assistant.max_duration_minutes", 5)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate checks that all required configuration values are present.
func (c *Config) Validate() error {
	var missing []string

	if c.Database.Password == "" {
		missing = append(missing, "DATABASE_PASSWORD")
	}
	if c.Vapi.APIKey == "" {
		missing = append(missing, "VAPI_API_KEY")
	}
	if c.Vapi.PhoneNumberID == "" {
		missing = append(missing, "VAPI_PHONE_NUMBER_ID")
	}

	if c.Vapi.MaxConcurrentCalls < 1 {
		c.Vapi.MaxConcurrentCalls = 1
	}
	if c.Vapi.MaxConcurrentCalls > 10 {
		c.Vapi.MaxConcurrentCalls = 10
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
