package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultApplicationName = "delivery-marketplace"

// PoolConfig sizes the connection pool. Zero values take defaults.
type PoolConfig struct {
	MaxConns        int32
	ApplicationName string
	// LockTimeout bounds how long a transaction waits on a row lock. Claims,
	// confirmations and payouts lock delivery, announcement and payment rows,
	// so a stuck holder surfaces as an error instead of a queue of requests.
	LockTimeout time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxConns <= 0 {
		c.MaxConns = 10
	}
	if c.ApplicationName == "" {
		c.ApplicationName = defaultApplicationName
	}
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Second
	}
	return c
}

// runtimeParams are set on every pooled connection.
func (c PoolConfig) runtimeParams() map[string]string {
	return map[string]string{
		"application_name": c.ApplicationName,
		"lock_timeout":     fmt.Sprintf("%dms", c.LockTimeout.Milliseconds()),
		"timezone":         "UTC",
	}
}

// Connect opens and pings a pgx pool for the marketplace database.
func Connect(ctx context.Context, dbURL string, pc PoolConfig) (*pgxpool.Pool, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	pc = pc.withDefaults()
	config.MaxConns = pc.MaxConns
	config.MinConns = min(2, pc.MaxConns)
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	for k, v := range pc.runtimeParams() {
		config.ConnConfig.RuntimeParams[k] = v
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	return pool, nil
}
