package config

import (
	"os"
	"testing"
)

func TestLoadRequiresDatabaseURL(t *testing.T) {
	os.Unsetenv("DATABASE_URL")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when DATABASE_URL is missing")
	}
}

func TestLoadDefaults(t *testing.T) {
	os.Setenv("DATABASE_URL", "postgres://localhost/lis")
	defer os.Unsetenv("DATABASE_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8000" {
		t.Errorf("Port = %q, want 8000", cfg.Port)
	}
	if cfg.DBMaxConns != 20 || cfg.DBMinConns != 5 {
		t.Errorf("pool sizes = %d/%d, want 20/5", cfg.DBMaxConns, cfg.DBMinConns)
	}
	if cfg.Timezone == "" {
		t.Error("expected a default timezone")
	}
}

func TestResolvedAuthMode(t *testing.T) {
	cfg := &Config{Env: "development"}
	if got := cfg.ResolvedAuthMode(); got != "development" {
		t.Errorf("dev mode = %q", got)
	}
	cfg = &Config{Env: "production"}
	if got := cfg.ResolvedAuthMode(); got != "jwt" {
		t.Errorf("production mode = %q", got)
	}
	cfg = &Config{Env: "production", AuthMode: "development"}
	if got := cfg.ResolvedAuthMode(); got != "development" {
		t.Errorf("explicit mode = %q", got)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{Env: "production", Timezone: "America/Guayaquil"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error: jwt mode without secret")
	}

	cfg.JWTSecret = "secret"
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate with secret: %v", err)
	}

	cfg.Timezone = "Not/AZone"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for bad timezone")
	}

	cfg = &Config{Env: "production", AuthMode: "bogus", Timezone: "UTC"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown auth mode")
	}
}

func TestLocation(t *testing.T) {
	cfg := &Config{Timezone: "America/Guayaquil"}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "America/Guayaquil" {
		t.Errorf("loc = %v", loc)
	}
}
