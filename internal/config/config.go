// Package config loads process configuration once at startup from a layered
// source: environment variables override an optional YAML file, which
// overrides the defaults below.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const envPrefix = "SYNCD"

// MinExpiryWindow is the floor below which a sync-count session expiry
// window may not be configured: the server must reject any window smaller
// than the longest plausible upload duration.
const MinExpiryWindow = 20 * time.Minute

const defaultExpiryWindow = 80 * time.Minute

// Config is the full set of process configuration.
type Config struct {
	// DatabaseURL is a libpq-style connection string for the relational store.
	DatabaseURL string `mapstructure:"database_url"`

	// HTTPAddr is the listen address for the HTTP server.
	HTTPAddr string `mapstructure:"http_addr"`

	// ApplicationKeys is the allow-list of application keys a request's
	// `key` query parameter must match. Must contain at least two entries.
	ApplicationKeys []string `mapstructure:"application_keys"`

	// MinPasswordLength is the minimum accepted plaintext password length.
	MinPasswordLength int `mapstructure:"min_password_length"`

	// SessionExpiryWindow bounds how far a SyncCount row's createdAt may
	// drift from the storage engine's NOW() before expiry reaping commits it.
	SessionExpiryWindow time.Duration `mapstructure:"session_expiry_window"`

	// PoolMaxConns and PoolMinConns bound the connection pool; every request
	// holds its own connection for its lifetime, so these scale with
	// expected concurrent requests, not with expected sync-counter sessions.
	PoolMaxConns int32 `mapstructure:"pool_max_conns"`
	PoolMinConns int32 `mapstructure:"pool_min_conns"`

	// PoolMaxConnLifetime and PoolMaxConnIdleTime recycle pooled
	// connections so a long-lived process doesn't pin stale backend state.
	PoolMaxConnLifetime time.Duration `mapstructure:"pool_max_conn_lifetime"`
	PoolMaxConnIdleTime time.Duration `mapstructure:"pool_max_conn_idle_time"`

	// PoolHealthCheckPeriod is how often pgxpool probes idle connections.
	PoolHealthCheckPeriod time.Duration `mapstructure:"pool_health_check_period"`

	// Production gates logging of credentials and verifiers at the source.
	// It must never be inferred from other settings.
	Production bool `mapstructure:"production"`

	// LogLevel is a zerolog level name (debug, info, warn, error).
	LogLevel string `mapstructure:"log_level"`

	// Env selects pretty console logging when set to "dev"; never inferred.
	Env string `mapstructure:"env"`
}

// Load reads configuration from, in increasing precedence: built-in
// defaults, an optional YAML file at path (skipped when path is empty; no
// default location is searched), and SYNCD_-prefixed environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	applyDefaults(v)
	setupEnv(v)

	if err := readConfigFile(v, path); err != nil {
		return nil, fmt.Errorf("config: reading config file: %w", err)
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook)); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return &cfg, nil
}

// MustLoad is like Load but panics with a friendly message on failure. It
// is meant for cmd/server's startup path, where a failed load is always
// fatal.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func applyDefaults(v *viper.Viper) {
	// Registered (empty) so AutomaticEnv surfaces SYNCD_DATABASE_URL on
	// Unmarshal; Validate still rejects it if nothing sets it.
	v.SetDefault("database_url", "")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("min_password_length", 14)
	v.SetDefault("session_expiry_window", defaultExpiryWindow)
	v.SetDefault("pool_max_conns", 20)
	v.SetDefault("pool_min_conns", 2)
	v.SetDefault("pool_max_conn_lifetime", time.Hour)
	v.SetDefault("pool_max_conn_idle_time", 30*time.Minute)
	v.SetDefault("pool_health_check_period", time.Minute)
	v.SetDefault("production", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("env", "")
	v.SetDefault("application_keys", []string{})
}

func setupEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

func readConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return err
	}
	return nil
}

// Validate enforces the load-time invariants the server depends on: an
// allow-list of at least two application keys, a sane minimum password
// length, and an expiry window no smaller than MinExpiryWindow.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("database_url is required")
	}
	if len(c.ApplicationKeys) < 2 {
		return fmt.Errorf("application_keys must contain at least 2 entries, got %d", len(c.ApplicationKeys))
	}
	seen := make(map[string]struct{}, len(c.ApplicationKeys))
	for _, k := range c.ApplicationKeys {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("application_keys must not contain empty entries")
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("application_keys contains duplicate entry %q", k)
		}
		seen[k] = struct{}{}
	}
	if c.MinPasswordLength < 1 {
		return fmt.Errorf("min_password_length must be positive, got %d", c.MinPasswordLength)
	}
	if c.SessionExpiryWindow < MinExpiryWindow {
		return fmt.Errorf("session_expiry_window (%s) is below the %s floor", c.SessionExpiryWindow, MinExpiryWindow)
	}
	if c.PoolMaxConns < 1 {
		return fmt.Errorf("pool_max_conns must be positive, got %d", c.PoolMaxConns)
	}
	if c.PoolMinConns < 0 || c.PoolMinConns > c.PoolMaxConns {
		return fmt.Errorf("pool_min_conns (%d) must be between 0 and pool_max_conns (%d)", c.PoolMinConns, c.PoolMaxConns)
	}
	return nil
}

// HasKey reports whether key is present in the application-key allow-list.
func (c *Config) HasKey(key string) bool {
	for _, k := range c.ApplicationKeys {
		if k == key {
			return true
		}
	}
	return false
}
