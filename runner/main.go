// Command runner executes one churn pipeline run end to end: acquire,
// ingest, validate, prepare, transform, train. Exit code 0 means every
// stage succeeded, 1 means the run completed with failed stages, 2 means
// the configuration was rejected before anything ran.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridian-labs/meridian-go/internal/artifact"
	"github.com/meridian-labs/meridian-go/internal/dataversion"
	"github.com/meridian-labs/meridian-go/internal/domain"
	"github.com/meridian-labs/meridian-go/internal/pipeline"
	"github.com/meridian-labs/meridian-go/internal/platform/objectstore"
	"github.com/meridian-labs/meridian-go/internal/platform/postgres"
	"github.com/meridian-labs/meridian-go/internal/platform/runlog"
	"github.com/meridian-labs/meridian-go/internal/registry"
	"github.com/meridian-labs/meridian-go/internal/stages"
	storage "github.com/meridian-labs/meridian-go/internal/storage/objectstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	sourceMode := flag.String("source", "synthetic", "data source mode: synthetic or external")
	tag := flag.String("tag", "", "free-form label recorded with the run")
	continueOnWarning := flag.Bool("continue-on-warning", false, "treat validation findings as warnings instead of failing the run")
	flag.Parse()

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := ConfigFromEnv()
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}
	mode, err := domain.ParseSourceMode(*sourceMode)
	if err != nil {
		logger.Error("invalid source mode", "error", err)
		os.Exit(2)
	}

	store, err := buildStore(ctx, logger, cfg)
	if err != nil {
		logger.Error("artifact store init failed", "error", err)
		os.Exit(2)
	}

	reg, err := registry.Open(cfg.RegistryPath)
	if err != nil {
		logger.Error("feature registry unavailable", "error", err)
		os.Exit(2)
	}

	opts := []pipeline.Option{pipeline.WithContinueOnWarning(*continueOnWarning)}
	if cfg.RunlogEnabled {
		recorder, closeDB, err := buildRunlog(ctx, cfg)
		if err != nil {
			logger.Error("run log unavailable", "error", err)
			os.Exit(2)
		}
		defer closeDB()
		opts = append(opts, pipeline.WithRecorder(recorder))
	}

	runner, err := pipeline.NewRunner(logger, store, opts...)
	if err != nil {
		logger.Error("runner init failed", "error", err)
		os.Exit(2)
	}

	previous, err := dataversion.ReadFile(cfg.ManifestPath)
	if err != nil {
		logger.Error("manifest unreadable", "error", err)
		os.Exit(2)
	}

	var checks []stages.CheckSpec
	if cfg.ChecksPath != "" {
		checks, err = stages.LoadChecks(cfg.ChecksPath)
		if err != nil {
			logger.Error("invalid checks file", "error", err)
			os.Exit(2)
		}
	}

	params := pipeline.RunParams{Mode: mode, Tag: *tag}
	graph := stages.ChurnPipeline(stages.Deps{
		Sources:        cfg.Sources,
		Registry:       reg,
		FeatureVersion: cfg.FeatureVersion,
		Checks:         checks,
	})

	summary, err := runner.Execute(ctx, params, graph)
	if err != nil {
		logger.Error("run aborted", "error", err)
		os.Exit(1)
	}

	printSummary(summary)

	if summary.Status == domain.RunStatusSuccess {
		if err := advanceDataVersion(ctx, logger, store, cfg.ManifestPath, previous); err != nil {
			logger.Error("data version update failed", "error", err)
			os.Exit(1)
		}
	}

	if summary.Status != domain.RunStatusSuccess {
		logger.Error("run finished with failures", "failed_stages", summary.Failed())
		os.Exit(1)
	}
}

func buildStore(ctx context.Context, logger *slog.Logger, cfg Config) (artifact.Store, error) {
	if cfg.Backend == BackendFS {
		return artifact.NewFSStore(cfg.DataDir)
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	client, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		return nil, err
	}
	if err := objectstore.EnsureBuckets(ctx, client, storeCfg); err != nil {
		return nil, err
	}
	minioStore, err := storage.NewMinioStoreWithClient(client)
	if err != nil {
		return nil, err
	}
	logger.Info("using object store backend", "endpoint", storeCfg.Endpoint, "bucket", storeCfg.BucketArtifacts)
	return artifact.NewObjectStore(minioStore, storeCfg.BucketArtifacts, "")
}

func buildRunlog(ctx context.Context, cfg Config) (pipeline.Recorder, func(), error) {
	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		return nil, nil, err
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		return nil, nil, err
	}
	if err := runlog.EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	log, err := runlog.New(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return log, func() { _ = db.Close() }, nil
}

// advanceDataVersion snapshots the data artifacts and persists the manifest
// when content moved; an unchanged snapshot leaves the pointer alone.
func advanceDataVersion(ctx context.Context, logger *slog.Logger, store artifact.Store, path string, previous dataversion.Manifest) error {
	current, err := dataversion.Snapshot(ctx, store, stages.DataArtifacts())
	if err != nil {
		return err
	}
	changed := current.Changed(previous)
	if len(changed) == 0 {
		logger.Info("data version unchanged", "version", previous.Version)
		return nil
	}
	if err := current.WriteFile(path); err != nil {
		return err
	}
	logger.Info("data version advanced",
		"version", current.Version, "previous", previous.Version, "changed", changed)
	return nil
}

func printSummary(summary domain.RunSummary) {
	fmt.Printf("run %s (%s) %s\n", summary.RunID, summary.Mode, summary.Status)
	for _, result := range summary.Stages {
		line := fmt.Sprintf("  %-10s %-16s attempts=%d", result.Stage, result.Outcome, result.Attempts)
		if result.Error != "" {
			line += "  " + result.Error
		}
		fmt.Println(line)
	}
}
