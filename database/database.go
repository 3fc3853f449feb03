// Package database - Handles all interaction with the package/errata datastores
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ortelius/errata-finder/config"
	"github.com/ortelius/errata-finder/errata"
)

// Store is a connected datastore the errata pipeline can run against
type Store interface {
	errata.Datastore
	errata.Pinger
	Close() error
}

const (
	initialInterval = 2 * time.Second
	maxInterval     = 30 * time.Second
)

// InitLogger sets up the Zap Logger to log to the console in a human readable format.
// An unknown level falls back to info.
func InitLogger(level string) *zap.Logger {
	prodConfig := zap.NewProductionConfig()
	prodConfig.Encoding = "console"
	prodConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	prodConfig.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		prodConfig.Level = lvl
	}
	logger, err := prodConfig.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// Open connects to the datastore selected by cfg.Driver. The connection is
// retried with exponential backoff until it succeeds, ctx is done or
// cfg.ConnectTimeout elapses (0 retries forever).
func Open(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var (
		store Store
		err   error
	)
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err = OpenPostgres(ctx, cfg, logger)
	case config.DriverSQLite:
		store, err = OpenSQLite(ctx, cfg.SQLitePath, cfg.ConnectTimeout, logger)
	case config.DriverArango:
		store, err = OpenArango(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// retryConnect runs connect until it succeeds, logging every failed attempt
func retryConnect(ctx context.Context, logger *zap.Logger, target string, maxElapsed time.Duration, connect func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialInterval
	bo.MaxInterval = maxInterval
	bo.MaxElapsedTime = maxElapsed

	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		logger.Debug("Attempting to connect", zap.String("datastore", target), zap.Int("attempt", attempt))
		return connect()
	}, backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		logger.Warn("Retrying datastore connection",
			zap.String("datastore", target),
			zap.Error(err),
			zap.Duration("next", next))
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", target, err)
	}
	return nil
}
