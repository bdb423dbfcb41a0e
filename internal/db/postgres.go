// Package db owns the queue store's connection pool and schema migrations.
package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/peoplehub/hr-notify/internal/config"
)

// Connect builds the shared pgx pool. The same pool serves producer
// inserts, dispatcher claim rounds, and the operator read surface, so
// DB_MAX_CONNS must cover DISPATCH_WORKERS plus expected HTTP traffic.
func Connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	// Fail fast at startup instead of on the first claim round.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// Migrate applies all pending up-migrations from migrations/.
// Idempotent: already-applied versions are skipped, so every instance
// can run it unconditionally at startup.
func Migrate(databaseURL string) error {
	// golang-migrate picks its driver from the URL scheme, and the pgx/v5
	// driver registers as "pgx5". Rewrite whichever postgres scheme the
	// operator configured.
	if i := strings.Index(databaseURL, "://"); i >= 0 {
		databaseURL = "pgx5://" + databaseURL[i+len("://"):]
	}

	m, err := migrate.New("file://migrations", databaseURL)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
