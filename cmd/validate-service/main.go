// validate-service serves the instrument reference-data validation API.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/refdata/validate-service/internal/api"
	"github.com/refdata/validate-service/internal/config"
	"github.com/refdata/validate-service/internal/dataset"
	"github.com/refdata/validate-service/internal/engine"
	"github.com/refdata/validate-service/internal/persist"
	"github.com/refdata/validate-service/internal/ruleset"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	env := flag.String("env", "", "deployment environment (dev, uat, prod); defaults to VALIDATE_ENV or dev")
	configDir := flag.String("config-dir", "config", "directory containing <env>.yaml")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	slog.Info("starting validate-service", "version", Version, "commit", Commit, "build_date", BuildDate)

	cfg, err := config.Resolve(*env, *configDir)
	if err != nil {
		slog.Error("failed to resolve configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration resolved",
		"environment", cfg.Environment,
		"tier", cfg.Tier,
		"data_source", cfg.DataSource,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	repo, err := persist.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	loader, err := dataset.New(cfg)
	if err != nil {
		slog.Error("failed to initialize data loader", "error", err)
		os.Exit(1)
	}
	slog.Info("data loader initialized", "backend", cfg.DataSource)

	rulesLoader := ruleset.New(cfg.RulesDir)
	slog.Info("rule loader initialized", "rules_dir", cfg.RulesDir)

	eng := engine.New(100)

	handler := api.NewHandler(loader, rulesLoader, eng, repo, cfg.ExchangeMap, Version)
	srv := api.NewServer(cfg.Server, handler)

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("validate-service is ready", "host", cfg.Server.Host, "port", cfg.Server.Port)

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("validate-service shutdown complete")
}
