package main

import (
	"path/filepath"
	"testing"
)

func TestConfigFromEnvDefaults(t *testing.T) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.Backend != BackendFS {
		t.Fatalf("Backend=%q, want fs", cfg.Backend)
	}
	if cfg.RegistryPath != filepath.Join("data", "registry.yaml") {
		t.Fatalf("RegistryPath=%q", cfg.RegistryPath)
	}
	if cfg.Sources.Synthetic.Seed != 42 {
		t.Fatalf("Seed=%d, want 42", cfg.Sources.Synthetic.Seed)
	}
}

func TestConfigFromEnvRejectsUnknownBackend(t *testing.T) {
	t.Setenv("MERIDIAN_ARTIFACT_BACKEND", "s3")

	if _, err := ConfigFromEnv(); err == nil {
		t.Fatal("ConfigFromEnv accepted unknown backend")
	}
}

func TestRegistryPathFollowsDataDir(t *testing.T) {
	t.Setenv("MERIDIAN_DATA_DIR", "/var/lib/meridian")

	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv() err=%v", err)
	}
	if cfg.RegistryPath != "/var/lib/meridian/registry.yaml" {
		t.Fatalf("RegistryPath=%q", cfg.RegistryPath)
	}
	if cfg.ManifestPath != "/var/lib/meridian/manifest.yaml" {
		t.Fatalf("ManifestPath=%q", cfg.ManifestPath)
	}
}
