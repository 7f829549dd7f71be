package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/opensource-finance/cardiorisk/internal/api"
	"github.com/opensource-finance/cardiorisk/internal/bus"
	"github.com/opensource-finance/cardiorisk/internal/cache"
	"github.com/opensource-finance/cardiorisk/internal/domain"
	"github.com/opensource-finance/cardiorisk/internal/pipeline"
	"github.com/opensource-finance/cardiorisk/internal/repository"
	"github.com/opensource-finance/cardiorisk/internal/worker"
)

func (a *app) serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the HTTP scoring server",
		Action: a.serve,
	}
}

func (a *app) serve(ctx context.Context, _ *cli.Command) error {
	cfg := a.cfg

	slog.Info("starting cardiorisk",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"tracing", cfg.Tracing.Enabled,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Repository
	var repo domain.Repository
	if cfg.Repository.Driver != "none" {
		r, err := repository.New(cfg.Repository)
		if err != nil {
			return fmt.Errorf("initialize repository: %w", err)
		}
		defer r.Close()
		repo = r
		slog.Info("repository initialized", "driver", cfg.Repository.Driver)
	}

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Pipeline
	p, err := pipeline.Build(cfg.Artifacts, cfg.Pipeline)
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}

	// Initialize async Worker
	var asyncWorker *worker.Worker
	var submissions domain.EventBus
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, p, pipeline.NewRecorder(repo, busImpl))
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			submissions = busImpl
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Deps{
		Pipeline:      p,
		Repo:          repo,
		Cache:         cacheImpl,
		Bus:           busImpl,
		Submissions:   submissions,
		Version:       Version,
		PredictionTTL: cfg.Cache.LocalTTL,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("cardiorisk is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"model_loaded", p.Ready(),
	)
	printBanner(cfg, Version, p)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("cardiorisk shutdown complete")
	return nil
}

func printBanner(cfg *domain.Config, version string, p *pipeline.Pipeline) {
	model := "not loaded"
	if p.Ready() {
		model = p.ModelVersion()
	}

	fmt.Println()
	fmt.Println("  CardioRisk - cardiovascular risk scoring")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Model:    %s\n", model)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /predict            - Score one record")
	fmt.Println("    POST /predict/async      - Queue one record for the worker")
	fmt.Println("    POST /upload             - Score a CSV table")
	fmt.Println("    GET  /predictions/{id}   - Get a stored prediction")
	fmt.Println("    GET  /batches/{id}       - Get a stored upload")
	fmt.Println("    GET  /model              - Model, schema and encoding")
	fmt.Println("    GET  /health             - Health check")
	fmt.Println("    GET  /metrics            - Prometheus metrics")
	fmt.Println()
}
