package feedback

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/kvasilopoulos/contact-center/internal/config"
)

// Open builds the store selected by cfg.Feedback.Store. The returned closer
// releases any connections it opened; rdb is shared and left open.
func Open(ctx context.Context, cfg *config.Config, rdb *redis.Client) (Store, io.Closer, error) {
	fc := cfg.Feedback
	switch fc.Store {
	case "", "memory":
		return NewMemoryStore(fc.MaxEntries, fc.Retention), nopCloser{}, nil
	case "sqlite":
		s, err := NewSQLiteStore(fc.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite feedback store: %w", err)
		}
		return s, s, nil
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("parse database config: %w", err)
		}
		if cfg.Database.MaxOpenConns > 0 {
			poolCfg.MaxConns = int32(cfg.Database.MaxOpenConns)
		}
		if cfg.Database.ConnMaxLifetime > 0 {
			poolCfg.MaxConnLifetime = cfg.Database.ConnMaxLifetime
		}
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		return NewPostgresStore(pool, rdb, fc.CacheTTL), poolCloser{pool}, nil
	default:
		return nil, nil, fmt.Errorf("unknown feedback store %q", fc.Store)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type poolCloser struct{ pool *pgxpool.Pool }

func (c poolCloser) Close() error {
	c.pool.Close()
	return nil
}
