// Package main is the FinOpsGuard server entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/honeybadger-technologies/finopsguard/adapters/postgres"
	"github.com/honeybadger-technologies/finopsguard/adapters/terraform"
	"github.com/honeybadger-technologies/finopsguard/api"
	"github.com/honeybadger-technologies/finopsguard/clouds"
	"github.com/honeybadger-technologies/finopsguard/core/cache"
	"github.com/honeybadger-technologies/finopsguard/core/cost"
	"github.com/honeybadger-technologies/finopsguard/core/engine"
	"github.com/honeybadger-technologies/finopsguard/core/policy"
	"github.com/honeybadger-technologies/finopsguard/core/pricing"
	"github.com/honeybadger-technologies/finopsguard/core/store"
	"github.com/honeybadger-technologies/finopsguard/internal/config"
	"github.com/honeybadger-technologies/finopsguard/internal/logging"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.Sync()

	if err := run(cfg, logging.Logger); err != nil {
		logging.Logger.Error("server exited", zap.Error(err))
		logging.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting finopsguard",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr),
		zap.Bool("live_pricing", cfg.Pricing.LiveEnabled))

	// Analysis store: postgres when a DSN is configured, memory otherwise.
	var (
		analysisStore store.AnalysisStore
		persister     policy.Persister
		pg            *postgres.Store
	)
	if cfg.Database.URL != "" {
		var err error
		pg, err = postgres.New(ctx, cfg.Database, log.Named("postgres"))
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pg.Close()
		analysisStore = pg
		persister = pg
	} else {
		log.Info("no database configured, using in-memory analysis store")
		analysisStore = store.NewMemoryStore()
	}

	registry := policy.NewRegistry(persister, log.Named("policy"))
	if pg != nil {
		stored, err := pg.LoadPolicies(ctx)
		if err != nil {
			return fmt.Errorf("loading stored policies: %w", err)
		}
		if err := registry.Load(stored); err != nil {
			return fmt.Errorf("hydrating policy registry: %w", err)
		}
		log.Info("policies loaded", zap.Int("count", len(stored)))
	}

	factory := pricing.NewFactory(
		pricing.NewCatalog(),
		clouds.BuildRegistry(ctx, cfg.Pricing, log.Named("clouds")),
		pricing.Options{
			LiveEnabled:         cfg.Pricing.LiveEnabled,
			FallbackToStatic:    cfg.Pricing.FallbackToStatic,
			Timeout:             cfg.Pricing.Timeout,
			MaxRetries:          cfg.Pricing.MaxRetries,
			RetryBaseDelay:      cfg.Pricing.RetryBaseDelay,
			ProviderParallelism: cfg.Pricing.ProviderParallelism,
		},
		log.Named("pricing"),
	)

	analysisCache := cache.New[*engine.CheckResponse]("analysis", cfg.Cache.TTL, log.Named("cache"))
	analysisCache.StartSweeper(ctx, cfg.Cache.SweepInterval)

	eng, err := engine.New(engine.Params{
		Parsers:            []engine.IaCParser{terraform.NewParser(log.Named("terraform"))},
		Factory:            factory,
		Estimator:          cost.NewEstimator(log.Named("cost")),
		Registry:           registry,
		Evaluator:          policy.NewEvaluator(log.Named("policy")),
		Store:              analysisStore,
		Cache:              analysisCache,
		DefaultEnvironment: cfg.Environment,
		Log:                log.Named("engine"),
	})
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	handler := api.NewServer(eng, api.Options{
		Version:        version,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	}, log.Named("api"))

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	log.Info("server stopped")
	return nil
}
