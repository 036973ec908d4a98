package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"example.com/progression/internal/bootstrap"
	"example.com/progression/internal/config"
	"example.com/progression/internal/consumer"
	"example.com/progression/internal/domain"
	"example.com/progression/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel).With("service", "progression-consumer")

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
	handler := consumer.NewWorkoutHandler(service, logger)

	metricsSrv := bootstrap.ServeMetrics(cfg.MetricsAddress, logger)

	var wg sync.WaitGroup
	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.KafkaBrokers,
			GroupID:        cfg.ConsumerGroup,
			Topic:          topic,
			MinBytes:       1e3,
			MaxBytes:       10e6,
			CommitInterval: time.Second,
		})
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger.With("topic", topic)))

		wg.Add(1)
		go func(tp string, r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped with error", "topic", tp, "error", err)
			}
		}(topic, reader)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals
	logger.Info("progression consumer shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown error", "error", err)
	}

	wg.Wait()
}
