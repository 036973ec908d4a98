package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"example.com/progression/internal/bootstrap"
	"example.com/progression/internal/config"
	"example.com/progression/internal/domain"
	"example.com/progression/internal/persistence/postgres"
	"example.com/progression/internal/scheduler"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel).With("service", "progression-scheduler")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.OpenPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := postgres.NewRepository(pool)
	cache, closeCache, err := bootstrap.OpenLeaderboardCache(ctx, cfg, repo, logger)
	if err != nil {
		logger.Error("failed to open leaderboard cache", "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeCache() }()

	opts, err := bootstrap.ServiceOptions(cfg, pool, cache, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	service := domain.NewService(repo, opts...)

	var rebuild scheduler.LeaderboardRebuilder
	if cache != nil {
		rebuild = cache
	}

	sched, err := scheduler.New(scheduler.Config{
		Location:        service.Location(),
		RefreshInterval: cfg.LeaderboardRefreshInterval,
	}, service, rebuild, logger)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}
	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		os.Exit(1)
	}

	metricsSrv := bootstrap.ServeMetrics(cfg.MetricsAddress, logger)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("progression scheduler shutting down")
	cancel()

	if err := sched.Shutdown(); err != nil {
		logger.Error("scheduler shutdown error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown error", "error", err)
	}
}
