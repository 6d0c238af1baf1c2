package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"applicant-registry/internal/common/config"
	"applicant-registry/internal/common/database"
	"applicant-registry/internal/common/logger"
	"applicant-registry/internal/lookup"
	"applicant-registry/internal/lookup/store"
	"applicant-registry/internal/models"
)

// backend is the record store selected by lookup.backend plus whatever
// must be released on shutdown.
type backend struct {
	store  lookup.Store
	closer func()
}

func openBackend(ctx context.Context, cfg *config.Config, scorer *lookup.Scorer, zapLog *zap.Logger, log logger.Logger) (*backend, error) {
	switch cfg.Lookup.Backend {
	case config.BackendPostgres:
		var pg *database.PostgresClient
		err := retryWithBackoff(func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
		if err != nil {
			return nil, err
		}
		if err := pg.EnsureTrigramExtension(ctx); err != nil {
			pg.Close()
			return nil, err
		}
		zapLog.Info("PostgreSQL connected successfully")
		return &backend{
			store:  store.NewPostgresStore(pg.GetDB(), log),
			closer: func() { pg.Close() },
		}, nil

	case config.BackendElasticsearch:
		var es *database.ElasticsearchClient
		err := retryWithBackoff(func() error {
			var err error
			es, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
			if err != nil {
				return err
			}
			return es.Ping(ctx)
		}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
		if err != nil {
			return nil, err
		}
		esStore := store.NewElasticsearchStore(es.GetClient(), cfg.Lookup.ElasticsearchIndex, log)
		for _, kind := range models.ApplicantKinds {
			if err := esStore.EnsureIndex(ctx, kind); err != nil {
				return nil, fmt.Errorf("ensure %s index: %w", kind, err)
			}
		}
		zapLog.Info("Elasticsearch connected successfully")
		return &backend{store: esStore, closer: func() {}}, nil

	case config.BackendMemory:
		mem, err := store.NewMemoryStore(scorer)
		if err != nil {
			return nil, err
		}
		if cfg.Lookup.SeedFile != "" {
			f, err := os.Open(cfg.Lookup.SeedFile)
			if err != nil {
				return nil, fmt.Errorf("open seed file: %w", err)
			}
			defer f.Close()
			records, err := store.LoadRecords(f)
			if err != nil {
				return nil, err
			}
			if err := mem.Add(records...); err != nil {
				return nil, err
			}
			zapLog.Info("memory store seeded", zap.Int("records", len(records)), zap.String("file", cfg.Lookup.SeedFile))
		}
		return &backend{store: mem, closer: func() {}}, nil
	}

	return nil, fmt.Errorf("unknown lookup backend %q", cfg.Lookup.Backend)
}

func connectRedis(ctx context.Context, cfg config.RedisConfig, zapLog *zap.Logger) (*database.RedisClient, error) {
	var rc *database.RedisClient
	err := retryWithBackoff(func() error {
		var err error
		rc, err = database.NewRedis(cfg)
		if err != nil {
			return err
		}
		return rc.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		return nil, err
	}
	zapLog.Info("Redis connected successfully")
	return rc, nil
}

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}
