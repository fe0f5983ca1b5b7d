// Package store opens the item table selected by configuration.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/lalith-99/echoforum/internal/config"
	"github.com/lalith-99/echoforum/internal/db"
	"github.com/lalith-99/echoforum/internal/repository"
	"github.com/lalith-99/echoforum/internal/repository/dynamo"
	"github.com/lalith-99/echoforum/internal/repository/pebbledb"
	"github.com/lalith-99/echoforum/internal/repository/postgres"
	"github.com/lalith-99/echoforum/internal/repository/redisdb"
	"go.uber.org/zap"
)

// Open connects to the configured backend. Remote backends are retried up to
// cfg.StartupRetries times, since the server often starts before its store.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.ItemTable, error) {
	if cfg.StoreBackend == config.BackendPebble {
		s, err := pebbledb.Open(cfg.PebblePath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	}

	var table repository.ItemTable
	err := retry.Do(
		func() error {
			t, err := connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			table = t
			return nil
		},
		retry.Attempts(cfg.StartupRetries),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn("store not ready, retrying",
				zap.String("backend", cfg.StoreBackend),
				zap.Uint("attempt", n+1),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	return table, nil
}

func connect(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.ItemTable, error) {
	switch cfg.StoreBackend {
	case config.BackendRedis:
		s, err := redisdb.Connect(ctx, cfg.RedisURL, logger)
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.BackendPostgres:
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := database.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, err
		}
		return postgres.NewItemStore(database, logger), nil

	case config.BackendDynamoDB:
		s, err := dynamo.Connect(ctx, cfg.DynamoTable, cfg.AWSRegion, cfg.DynamoEndpoint, logger)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureTable(ctx); err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
}
