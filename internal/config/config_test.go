package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYNCD_DATABASE_URL", "postgres://localhost/syncd")
	t.Setenv("SYNCD_APPLICATION_KEYS", "private,internal")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.HTTPAddr != ":8080" {
		t.Errorf("HTTPAddr default = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.MinPasswordLength != 14 {
		t.Errorf("MinPasswordLength default = %d, want 14", cfg.MinPasswordLength)
	}
	if cfg.SessionExpiryWindow != 80*time.Minute {
		t.Errorf("SessionExpiryWindow default = %s, want 80m", cfg.SessionExpiryWindow)
	}
	if cfg.PoolMaxConns != 20 {
		t.Errorf("PoolMaxConns default = %d, want 20", cfg.PoolMaxConns)
	}
	if cfg.PoolMinConns != 2 {
		t.Errorf("PoolMinConns default = %d, want 2", cfg.PoolMinConns)
	}
	if cfg.PoolMaxConnLifetime != time.Hour {
		t.Errorf("PoolMaxConnLifetime default = %s, want 1h", cfg.PoolMaxConnLifetime)
	}
	if cfg.PoolMaxConnIdleTime != 30*time.Minute {
		t.Errorf("PoolMaxConnIdleTime default = %s, want 30m", cfg.PoolMaxConnIdleTime)
	}
	if cfg.PoolHealthCheckPeriod != time.Minute {
		t.Errorf("PoolHealthCheckPeriod default = %s, want 1m", cfg.PoolHealthCheckPeriod)
	}
	if !cfg.HasKey("private") || !cfg.HasKey("internal") {
		t.Errorf("expected both application keys present, got %v", cfg.ApplicationKeys)
	}
	if cfg.HasKey("nope") {
		t.Errorf("unexpected key match")
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	contents := "database_url: postgres://localhost/syncd\n" +
		"application_keys:\n  - private\n  - internal\n" +
		"min_password_length: 16\n" +
		"session_expiry_window: 25m\n"
	if err := os.WriteFile(file, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MinPasswordLength != 16 {
		t.Errorf("MinPasswordLength = %d, want 16", cfg.MinPasswordLength)
	}
	if cfg.SessionExpiryWindow != 25*time.Minute {
		t.Errorf("SessionExpiryWindow = %s, want 25m", cfg.SessionExpiryWindow)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	contents := "database_url: postgres://localhost/file-db\n" +
		"application_keys:\n  - private\n  - internal\n"
	if err := os.WriteFile(file, []byte(contents), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	t.Setenv("SYNCD_DATABASE_URL", "postgres://localhost/env-db")

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/env-db" {
		t.Errorf("DatabaseURL = %q, want env override to win", cfg.DatabaseURL)
	}
}

func TestValidateRejectsSingleKey(t *testing.T) {
	cfg := &Config{
		DatabaseURL:         "postgres://localhost/syncd",
		ApplicationKeys:     []string{"only-one"},
		MinPasswordLength:   14,
		SessionExpiryWindow: 80 * time.Minute,
		PoolMaxConns:        20,
		PoolMinConns:        2,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for single application key, got nil")
	}
}

func TestValidateRejectsWindowBelowFloor(t *testing.T) {
	cfg := &Config{
		DatabaseURL:         "postgres://localhost/syncd",
		ApplicationKeys:     []string{"a", "b"},
		MinPasswordLength:   14,
		SessionExpiryWindow: 19 * time.Minute,
		PoolMaxConns:        20,
		PoolMinConns:        2,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for expiry window below floor, got nil")
	}
}

func TestValidateAcceptsFloorExactly(t *testing.T) {
	cfg := &Config{
		DatabaseURL:         "postgres://localhost/syncd",
		ApplicationKeys:     []string{"a", "b"},
		MinPasswordLength:   14,
		SessionExpiryWindow: MinExpiryWindow,
		PoolMaxConns:        20,
		PoolMinConns:        2,
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil at exact floor", err)
	}
}

func TestValidateRejectsDuplicateKeys(t *testing.T) {
	cfg := &Config{
		DatabaseURL:         "postgres://localhost/syncd",
		ApplicationKeys:     []string{"dup", "dup"},
		MinPasswordLength:   14,
		SessionExpiryWindow: 80 * time.Minute,
		PoolMaxConns:        20,
		PoolMinConns:        2,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate application keys, got nil")
	}
}

func TestValidateRejectsPoolMinConnsAboveMax(t *testing.T) {
	cfg := &Config{
		DatabaseURL:         "postgres://localhost/syncd",
		ApplicationKeys:     []string{"a", "b"},
		MinPasswordLength:   14,
		SessionExpiryWindow: 80 * time.Minute,
		PoolMaxConns:        5,
		PoolMinConns:        10,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for pool_min_conns above pool_max_conns, got nil")
	}
}

func TestValidateRejectsZeroPoolMaxConns(t *testing.T) {
	cfg := &Config{
		DatabaseURL:         "postgres://localhost/syncd",
		ApplicationKeys:     []string{"a", "b"},
		MinPasswordLength:   14,
		SessionExpiryWindow: 80 * time.Minute,
	}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero pool_max_conns, got nil")
	}
}
