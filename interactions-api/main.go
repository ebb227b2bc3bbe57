package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/meridian-labs/meridian-go/internal/platform/env"
	"github.com/meridian-labs/meridian-go/internal/platform/httpserver"
	"github.com/meridian-labs/meridian-go/internal/source"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("MERIDIAN_INTERACTIONS_HTTP_ADDR", ":8084")
	shutdownTimeout, err := env.Duration("MERIDIAN_INTERACTIONS_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	seed, err := env.Int64("MERIDIAN_SYNTHETIC_SEED", 42)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	records, err := env.Int("MERIDIAN_SYNTHETIC_RECORDS", 500)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	src := source.NewSynthetic(source.SyntheticConfig{Seed: seed, Records: records})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("interactions-api"))
	newInteractionsAPI(logger, src).register(mux)

	err = httpserver.Run(ctx, logger, httpserver.Config{
		Service:         "interactions-api",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}, httpserver.Wrap(logger, mux))
	if err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}
