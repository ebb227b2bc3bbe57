package postgres

import (
	"testing"
	"time"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}
	if cfg.PingTimeout != 2*time.Second {
		t.Fatalf("PingTimeout=%v, want 2s", cfg.PingTimeout)
	}
}

func TestConfigFromEnvOverrides(t *testing.T) {
	t.Setenv("MERIDIAN_DATABASE_URL", "postgres://runlog:runlog@db:5432/runlog")
	t.Setenv("MERIDIAN_DATABASE_MAX_OPEN_CONNS", "3")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.URL != "postgres://runlog:runlog@db:5432/runlog" {
		t.Fatalf("URL=%q", cfg.URL)
	}
	if cfg.MaxOpenConns != 3 {
		t.Fatalf("MaxOpenConns=%d, want 3", cfg.MaxOpenConns)
	}
}

func TestConfigValidateRejectsIdleAboveOpen(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	cfg.MaxIdleConns = cfg.MaxOpenConns + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() accepted idle > open")
	}
}
