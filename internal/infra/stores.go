package infra

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/p2pcore/internal/config"
)

// Stores holds the backing connections. Either may be nil in development, in
// which case callers fall back to in-memory implementations.
type Stores struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
}

// Open connects to whichever stores are configured. Outside development both
// are required; Load already rejects a config missing either.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Stores, error) {
	var s Stores
	if cfg.DatabaseURL != "" {
		db, err := connectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return Stores{}, err
		}
		if err := EnsureSchema(ctx, db); err != nil {
			db.Close()
			return Stores{}, err
		}
		s.DB = db
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	if cfg.RedisURL != "" {
		cache, err := connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			s.Close(logger)
			return Stores{}, err
		}
		s.Cache = cache
	} else {
		logger.Warn("REDIS_URL not set, sessions are process-local and rate limits are off")
	}

	if !cfg.IsDevelopment() && (s.DB == nil || s.Cache == nil) {
		s.Close(logger)
		return Stores{}, fmt.Errorf("postgres and redis are required when APP_ENV=%s", cfg.AppEnv)
	}
	return s, nil
}

// Close releases whatever was opened.
func (s Stores) Close(logger *slog.Logger) {
	if s.Cache != nil {
		if err := s.Cache.Close(); err != nil {
			logger.Warn("close redis", "error", err)
		}
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

func connectPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
