package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ortelius/errata-finder/config"
)

const applicationName = "errata-finder"

// PostgresStore reads a Spacewalk/Satellite schema through a pgx connection pool
type PostgresStore struct {
	sqlStore
	pool *pgxpool.Pool
}

// OpenPostgres connects to the Spacewalk database described by cfg
func OpenPostgres(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	var pool *pgxpool.Pool
	err = retryConnect(ctx, logger, "postgres "+cfg.Host, cfg.ConnectTimeout, func() error {
		p, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	var version string
	if err := pool.QueryRow(ctx, "SHOW server_version").Scan(&version); err == nil {
		logger.Info("Connected to postgres", zap.String("host", cfg.Host), zap.String("database", cfg.Name), zap.String("version", version))
	}

	return NewPostgresStore(pool), nil
}

// NewPostgresStore wraps an existing pool
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		sqlStore: sqlStore{
			qb: newPostgresBuilder(),
			query: func(ctx context.Context, query string, args ...interface{}) (rows, func(), error) {
				r, err := pool.Query(ctx, query, args...)
				if err != nil {
					return nil, nil, err
				}
				return r, r.Close, nil
			},
		},
		pool: pool,
	}
}

// Ping checks the pool can reach the server
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
