package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/marketplace.yaml")
	if err != nil {
		t.Fatalf("Missing file should not be an error: %v", err)
	}

	if cfg.Server.Listen != ":8090" {
		t.Errorf("Expected default listen :8090, got %s", cfg.Server.Listen)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("Expected default store memory, got %s", cfg.Store.Type)
	}
	if cfg.Engine.LeaseDuration != "30m" {
		t.Errorf("Expected default lease 30m, got %s", cfg.Engine.LeaseDuration)
	}
	if !cfg.Engine.AutoRelease() {
		t.Error("Sweeper should default to enabled")
	}
}

func TestLoadOverridesAndDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  listen: ":9000"
store:
  type: sqlite
  dsn: /tmp/jobs.db
engine:
  lease_duration: 10m
  auto_release_expired: false
pricing:
  base_rates:
    short_term: 4.50
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Listen != ":9000" {
		t.Errorf("Expected listen :9000, got %s", cfg.Server.Listen)
	}
	if cfg.Store.Type != "sqlite" || cfg.Store.DSN != "/tmp/jobs.db" {
		t.Errorf("Store config not applied: %+v", cfg.Store)
	}
	if cfg.Engine.LeaseDuration != "10m" {
		t.Errorf("Expected lease 10m, got %s", cfg.Engine.LeaseDuration)
	}
	if cfg.Engine.AutoRelease() {
		t.Error("Sweeper should be disabled when auto_release_expired is false")
	}
	if cfg.Pricing.BaseRates["short_term"] != 4.50 {
		t.Errorf("Expected base rate override 4.50, got %v", cfg.Pricing.BaseRates["short_term"])
	}

	// Untouched sections still get defaults
	if cfg.Engine.AdmissionWindow != "24h" {
		t.Errorf("Expected default admission window, got %s", cfg.Engine.AdmissionWindow)
	}
	if cfg.Server.MetricsPath != "/metrics" {
		t.Errorf("Expected default metrics path, got %s", cfg.Server.MetricsPath)
	}
}

func TestParseDuration(t *testing.T) {
	if d := ParseDuration("15m", time.Hour); d != 15*time.Minute {
		t.Errorf("Expected 15m, got %s", d)
	}
	if d := ParseDuration("", time.Hour); d != time.Hour {
		t.Errorf("Expected fallback for empty value, got %s", d)
	}
	if d := ParseDuration("bogus", time.Hour); d != time.Hour {
		t.Errorf("Expected fallback for invalid value, got %s", d)
	}
}
