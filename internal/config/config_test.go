package config

import (
	"testing"
)

func TestLoadConfig_DefaultsAndOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/streamhub")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("INTERNAL_API_KEY", "internal")
	t.Setenv("CHECKOUT_RATE_LIMIT_PER_MINUTE", "5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}

	if cfg.DatabaseURL != "postgres://localhost:5432/streamhub" {
		t.Errorf("unexpected database url: %q", cfg.DatabaseURL)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.SweepSchedule != "@every 1m" {
		t.Errorf("expected default sweep schedule, got %q", cfg.SweepSchedule)
	}
	if cfg.ReservationTTLSeconds != 900 {
		t.Errorf("expected default reservation TTL 900s, got %d", cfg.ReservationTTLSeconds)
	}
	if cfg.RedisRateLimitPrefix != "streamhub:rate_limit" {
		t.Errorf("expected default rate limit prefix, got %q", cfg.RedisRateLimitPrefix)
	}
	if cfg.CheckoutRateLimitPerMin != 5 {
		t.Errorf("expected overridden checkout rate limit 5, got %d", cfg.CheckoutRateLimitPerMin)
	}
}

func TestLoadConfig_SanitizesBadValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/streamhub")
	t.Setenv("RESERVATION_TTL_SECONDS", "-10")
	t.Setenv("CHECKOUT_RATE_LIMIT_PER_MINUTE", "-1")
	t.Setenv("SWEEP_SCHEDULE", "   ")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}

	if cfg.ReservationTTLSeconds != 900 {
		t.Errorf("negative TTL must fall back to the default, got %d", cfg.ReservationTTLSeconds)
	}
	if cfg.CheckoutRateLimitPerMin != 0 {
		t.Errorf("negative rate limit must disable limiting, got %d", cfg.CheckoutRateLimitPerMin)
	}
	if cfg.SweepSchedule != "@every 1m" {
		t.Errorf("blank schedule must fall back to the default, got %q", cfg.SweepSchedule)
	}
}
