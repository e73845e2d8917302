package infra

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresApplicationName tags ledger connections in pg_stat_activity.
const PostgresApplicationName = "akatsuki-ledger"

// NewLedgerPool opens the pool behind the postgres ledger backend.
func NewLedgerPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := ledgerPoolConfig(url)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func ledgerPoolConfig(url string) (*pgxpool.Config, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres: %w", ErrMissingURL)
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	// ledger writes are serialized by the ledger mutex
	if !strings.Contains(url, "pool_max_conns") {
		cfg.MaxConns = 4
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = PostgresApplicationName
	}
	return cfg, nil
}
