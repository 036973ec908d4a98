// Package bootstrap holds the wiring shared by the progression binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/progression/internal/config"
	"example.com/progression/internal/domain"
	"example.com/progression/internal/observability"
	"example.com/progression/internal/persistence/postgres"
	redisstore "example.com/progression/internal/persistence/redis"
)

// OpenPostgres connects the pool and applies migrations when AUTO_MIGRATE is set.
func OpenPostgres(ctx context.Context, cfg config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if cfg.AutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("database migrations applied")
	}
	return pool, nil
}

// OpenLeaderboardCache connects to Redis and returns a cache falling back to
// fallback. It returns nil when REDIS_ADDR is unset.
func OpenLeaderboardCache(ctx context.Context, cfg config.Config, fallback domain.RankingSource, logger *slog.Logger) (*redisstore.LeaderboardCache, func() error, error) {
	if cfg.RedisAddr == "" {
		return nil, func() error { return nil }, nil
	}
	client, err := redisstore.NewClient(ctx, redisstore.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	cache := redisstore.NewLeaderboardCache(client, fallback, redisstore.WithLogger(logger))
	return cache, client.Close, nil
}

// ServiceOptions builds the domain.Service options every binary shares.
// cache may be nil.
func ServiceOptions(cfg config.Config, pool *pgxpool.Pool, cache *redisstore.LeaderboardCache, logger *slog.Logger) ([]domain.Option, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	opts := []domain.Option{
		domain.WithLocation(loc),
		domain.WithWorkoutXP(cfg.WorkoutXP),
		domain.WithRetryPolicy(cfg.MaxRetries, cfg.RetryBaseDelay),
		domain.WithMetrics(observability.Metrics{}),
		domain.WithLogger(logger),
		domain.WithDailyReset(postgres.NewResetLog(pool), postgres.NewNutritionCounterResetter(pool)),
	}
	if cache != nil {
		opts = append(opts, domain.WithObserver(cache))
	}
	return opts, nil
}

// ServeMetrics starts the Prometheus endpoint on addr and returns the server
// so the caller can shut it down.
func ServeMetrics(addr string, logger *slog.Logger) *http.Server {
	srv := &http.Server{Addr: addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("metrics listening", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}
