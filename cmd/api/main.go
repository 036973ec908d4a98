package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/progression/internal/api"
	"example.com/progression/internal/auth"
	"example.com/progression/internal/bootstrap"
	"example.com/progression/internal/config"
	"example.com/progression/internal/domain"
	"example.com/progression/internal/outbox"
	"example.com/progression/internal/persistence/postgres"
	httptransport "example.com/progression/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel).With("service", "progression-api")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.OpenPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := postgres.NewRepository(pool)
	var ranking domain.RankingSource = repo

	cache, closeCache, err := bootstrap.OpenLeaderboardCache(ctx, cfg, repo, logger)
	if err != nil {
		logger.Error("failed to open leaderboard cache", "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeCache() }()
	if cache != nil {
		ranking = cache
	}

	opts, err := bootstrap.ServiceOptions(cfg, pool, cache, logger)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	service := domain.NewService(repo, opts...)

	producer := outbox.NewKafkaProducer(outbox.ProducerConfig{Brokers: cfg.KafkaBrokers})
	defer producer.Close()

	registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
	dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
		outbox.WithDispatcherLogger(logger))

	go dispatcher.Start(ctx)

	handler := api.NewHandler(service, domain.NewLeaderboard(ranking), postgres.NewNutritionCounterResetter(pool), logger)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	authMiddleware := auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})
	chain := httptransport.RequestLogger(logger)(httptransport.CORS(cfg.CORSOrigin)(authMiddleware.Wrap(mux)))

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, chain)

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("progression api listening", "address", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			shutdownCh <- syscall.SIGTERM
		}
	}()

	<-shutdownCh
	logger.Info("progression api shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	dispatcher.Wait()
}
