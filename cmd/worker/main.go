package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"geoattend/internal/config"
	"geoattend/internal/devicesession"
	"geoattend/internal/logger"
	"geoattend/internal/queue"
	"geoattend/internal/store"
	"geoattend/internal/worker"
)

// Worker consumes attendance events and refreshes device sessions.
func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown signal received")
		cancel()
	}()

	if cfg.QueueBackend != "redis" {
		log.Fatal().Str("queue_backend", cfg.QueueBackend).Msg("worker needs QUEUE_BACKEND=redis; the memory queue is consumed inside the api process")
	}
	if cfg.StoreBackend == "memory" {
		log.Fatal().Msg("worker cannot share an in-memory store with the api")
	}

	stores, err := store.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL, false)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer stores.Close()

	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid redis address")
	}
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Warn().Str("addr", cfg.RedisAddr).Msg("redis not reachable yet, consumer will retry")
	}

	policy, err := devicesession.ParsePolicy(cfg.DevicePolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid device policy")
	}
	registry := devicesession.NewRegistry(stores.Sessions, policy)

	q := queue.NewRedisQueue(redisClient.Client, redisClient.Key("events"))
	if err := worker.New(q, registry).Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("queue consume init failed")
	}
}
