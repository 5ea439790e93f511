package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MinDeliberationSeconds != 30 {
		t.Errorf("MinDeliberationSeconds = %d, want 30", cfg.MinDeliberationSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v, want nil", err)
	}
}

func TestLoad_YAMLFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("min_deliberation_seconds: 60\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MinDeliberationSeconds != 60 {
		t.Errorf("MinDeliberationSeconds = %d, want 60", cfg.MinDeliberationSeconds)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("min_deliberation_seconds: 60\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOVERND_MIN_DELIBERATION_SECONDS", "120")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MinDeliberationSeconds != 120 {
		t.Errorf("MinDeliberationSeconds = %d, want 120 (env override)", cfg.MinDeliberationSeconds)
	}
}

func TestValidate_AccumulatesMultipleProblems(t *testing.T) {
	cfg := defaults()
	cfg.MinDeliberationSeconds = 0
	cfg.DiskWarningPercent = 95
	cfg.DiskCriticalPercent = 90

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
}

func TestValidate_RequiresDatabaseURLWhenRequired(t *testing.T) {
	cfg := defaults()
	cfg.DatabaseRequired = true
	cfg.DatabaseURL = ""

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() = nil, want error for missing required database_url")
	}
}
