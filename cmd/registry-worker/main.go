// cmd/registry-worker/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"applicant-registry/internal/common/camunda"
	"applicant-registry/internal/common/config"
	"applicant-registry/internal/common/logger"
	"applicant-registry/internal/common/observability"
	"applicant-registry/internal/lookup"
	"applicant-registry/internal/lookup/batch"
	"applicant-registry/internal/lookup/cache"
	httptransport "applicant-registry/internal/transport/http"

	la "applicant-registry/internal/workers/registry/lookup-applicant"
	vlr "applicant-registry/internal/workers/registry/validate-lookup-request"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New("info", "console")
		boot.Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting applicant registry...",
		zap.String("environment", cfg.App.Environment),
		zap.String("backend", cfg.Lookup.Backend),
	)

	obs := observability.New(cfg.App.Name, log)
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Lookup engine ---
	weights, err := lookup.NewFieldWeights(cfg.Lookup.Weights)
	if err != nil {
		zapLog.Fatal("invalid lookup weights", zap.Error(err))
	}
	scorer, err := lookup.NewScorer(weights, cfg.Lookup.SimilarityThreshold)
	if err != nil {
		zapLog.Fatal("invalid similarity threshold", zap.Error(err))
	}

	be, err := openBackend(ctx, cfg, scorer, zapLog, log)
	if err != nil {
		zapLog.Fatal("lookup backend failed", zap.Error(err))
	}
	defer be.closer()

	svc, err := lookup.NewService(be.store, lookup.Options{
		Weights:       weights,
		Threshold:     cfg.Lookup.SimilarityThreshold,
		ParallelTiers: cfg.Lookup.ParallelTiers,
	}, log)
	if err != nil {
		zapLog.Fatal("lookup service init failed", zap.Error(err))
	}

	var lookuper lookup.Lookuper = svc
	if cfg.Lookup.CacheEnabled() {
		rc, err := connectRedis(ctx, cfg.Database.Redis, zapLog)
		if err != nil {
			zapLog.Fatal("redis failed after retries", zap.Error(err))
		}
		defer rc.Close()
		lookuper = cache.New(svc, rc.GetClient(), config.GetDuration(cfg.Lookup.CacheTTL), scorer, log)
		zapLog.Info("lookup cache enabled", zap.Int("ttl_ms", cfg.Lookup.CacheTTL))
	}

	runner, err := batch.NewRunner(lookuper, batch.WithPoolSize(cfg.Lookup.BatchPoolSize), batch.WithLogger(log))
	if err != nil {
		zapLog.Fatal("batch runner init failed", zap.Error(err))
	}
	defer runner.Release()

	lookupTimeout := config.GetDuration(cfg.Lookup.Timeout)

	// --- Workers ---
	var zeebe *camunda.Client
	if config.IsWorkerEnabled(cfg, vlr.TaskType) || config.IsWorkerEnabled(cfg, la.TaskType) {
		zeebe, err = camunda.NewClientWithConfig(ctx, camunda.ConfigFrom(cfg.Camunda), zapLog)
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")
		zeebe.SetObserver(obs)

		wcfg := config.GetWorkerConfig(cfg, vlr.TaskType)
		validator, err := vlr.NewHandler(&vlr.Config{
			Timeout:      config.GetDuration(wcfg.Timeout),
			MaxBatchSize: cfg.Lookup.MaxBatchSize,
		}, log)
		if err != nil {
			zapLog.Fatal("validate-lookup-request init failed", zap.Error(err))
		}
		zeebe.StartWorker(vlr.TaskType, wcfg, validator.Handle)

		wcfg = config.GetWorkerConfig(cfg, la.TaskType)
		lookupHandler, err := la.NewHandler(&la.Config{
			Timeout:      minDuration(config.GetDuration(wcfg.Timeout), lookupTimeout),
			MaxBatchSize: cfg.Lookup.MaxBatchSize,
		}, lookuper, runner, log)
		if err != nil {
			zapLog.Fatal("lookup-applicant init failed", zap.Error(err))
		}
		zeebe.StartWorker(la.TaskType, wcfg, lookupHandler.Handle)
	} else {
		zapLog.Info("all workers disabled, skipping Zeebe connection")
	}

	// --- Lookup API, Health & Metrics Server ---
	api, err := httptransport.New(lookuper, runner, svc, log, httptransport.Options{
		Timeout:      lookupTimeout,
		MaxBatchSize: cfg.Lookup.MaxBatchSize,
		ProbesOnly:   !cfg.HTTP.Enabled,
	})
	if err != nil {
		zapLog.Fatal("http handler init failed", zap.Error(err))
	}

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      httptransport.NewRouter(api, promhttp.Handler()),
		ReadTimeout:  config.GetDuration(cfg.HTTP.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.HTTP.WriteTimeout),
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.HTTP.ShutdownTimeout))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error stopping HTTP server", zap.Error(err))
	}
	if zeebe != nil {
		if err := zeebe.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Applicant registry stopped gracefully")
}

func minDuration(a, b time.Duration) time.Duration {
	if b > 0 && b < a {
		return b
	}
	return a
}
