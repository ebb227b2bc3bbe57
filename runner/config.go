package main

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/meridian-labs/meridian-go/internal/platform/env"
	"github.com/meridian-labs/meridian-go/internal/source"
)

// Artifact store backends.
const (
	BackendFS    = "fs"
	BackendMinIO = "minio"
)

// Config is the runner's environment-derived configuration. Run-scoped
// choices (source mode, tag, warning policy) come from flags instead.
type Config struct {
	DataDir        string
	Backend        string
	RegistryPath   string
	ManifestPath   string
	ChecksPath     string
	FeatureVersion int
	RunlogEnabled  bool
	Sources        source.Config
}

func ConfigFromEnv() (Config, error) {
	dataDir := env.String("MERIDIAN_DATA_DIR", "data")

	featureVersion, err := env.Int("MERIDIAN_FEATURE_VERSION", 1)
	if err != nil {
		return Config{}, err
	}
	runlogEnabled, err := env.Bool("MERIDIAN_RUNLOG_ENABLED", false)
	if err != nil {
		return Config{}, err
	}
	seed, err := env.Int64("MERIDIAN_SYNTHETIC_SEED", 42)
	if err != nil {
		return Config{}, err
	}
	records, err := env.Int("MERIDIAN_SYNTHETIC_RECORDS", 500)
	if err != nil {
		return Config{}, err
	}
	fetchTimeout, err := env.Duration("MERIDIAN_FETCH_TIMEOUT", 30*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DataDir:        dataDir,
		Backend:        env.String("MERIDIAN_ARTIFACT_BACKEND", BackendFS),
		RegistryPath:   env.String("MERIDIAN_REGISTRY_PATH", filepath.Join(dataDir, "registry.yaml")),
		ManifestPath:   env.String("MERIDIAN_MANIFEST_PATH", filepath.Join(dataDir, "manifest.yaml")),
		ChecksPath:     env.String("MERIDIAN_CHECKS_PATH", ""),
		FeatureVersion: featureVersion,
		RunlogEnabled:  runlogEnabled,
		Sources: source.Config{
			Synthetic: source.SyntheticConfig{Seed: seed, Records: records},
			External: source.ExternalConfig{
				AccountsURL:     env.String("MERIDIAN_ACCOUNTS_URL", ""),
				InteractionsURL: env.String("MERIDIAN_INTERACTIONS_URL", ""),
				Timeout:         fetchTimeout,
			},
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("MERIDIAN_DATA_DIR is required")
	}
	if c.Backend != BackendFS && c.Backend != BackendMinIO {
		return errors.New("MERIDIAN_ARTIFACT_BACKEND must be fs or minio")
	}
	if strings.TrimSpace(c.RegistryPath) == "" {
		return errors.New("MERIDIAN_REGISTRY_PATH is required")
	}
	if strings.TrimSpace(c.ManifestPath) == "" {
		return errors.New("MERIDIAN_MANIFEST_PATH is required")
	}
	if c.FeatureVersion < 1 {
		return errors.New("MERIDIAN_FEATURE_VERSION must be >= 1")
	}
	return nil
}
