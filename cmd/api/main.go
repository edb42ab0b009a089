package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"geoattend/internal/attendance"
	"geoattend/internal/auth"
	"geoattend/internal/config"
	"geoattend/internal/course"
	"geoattend/internal/devicesession"
	"geoattend/internal/httpapi"
	"geoattend/internal/httpmiddleware"
	"geoattend/internal/identity"
	"geoattend/internal/logger"
	"geoattend/internal/queue"
	"geoattend/internal/store"
	"geoattend/internal/worker"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatal().Err(err).Msg("http server failed")
	}
}

func runHTTP(cfg config.App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy, err := devicesession.ParsePolicy(cfg.DevicePolicy)
	if err != nil {
		return err
	}
	if cfg.IsProduction() && cfg.JWTSigningKey == config.DevSigningKey {
		return errors.New("JWT_SIGNING_KEY must be set in production")
	}

	stores, err := store.Open(ctx, cfg.StoreBackend, cfg.DatabaseURL, cfg.AutoMigrate)
	if err != nil {
		return err
	}
	defer func() {
		if err := stores.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()
	if cfg.StoreBackend == "memory" {
		if err := store.Seed(ctx, stores.Identity, stores.Courses); err != nil {
			return err
		}
		log.Warn().Msg("using in-memory store with demo data; nothing is persisted")
	}

	var redisClient *store.Redis
	if cfg.QueueBackend == "redis" || cfg.RateLimitBackend == "redis" {
		if redisClient, err = store.NewRedis(cfg.RedisAddr); err != nil {
			return err
		}
		defer redisClient.Close()
	}

	registry := devicesession.NewRegistry(stores.Sessions, policy)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
		// No separate worker can reach an in-process queue.
		go func() {
			if err := worker.New(q, registry).Run(ctx); err != nil {
				log.Error().Err(err).Msg("in-process worker failed")
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, redisClient.Key("events"))
	}

	var globalLimit, loginLimit httpmiddleware.Limiter
	if cfg.RateLimitBackend == "redis" {
		globalLimit = httpmiddleware.NewRedisWindow(redisClient.Client, redisClient.Key("ratelimit"), cfg.RateLimitPerMin)
		loginLimit = httpmiddleware.NewRedisWindow(redisClient.Client, redisClient.Key("ratelimit"), cfg.LoginRateLimitPerMin)
	} else {
		globalLimit = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
		loginLimit = httpmiddleware.NewSimpleTokenBucket(cfg.LoginRateLimitPerMin, cfg.LoginRateLimitPerMin)
	}

	identities := identity.NewService(stores.Identity)
	issuer := auth.NewIssuer(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
	handler := httpapi.New(
		auth.NewService(identities, registry, issuer),
		identities,
		course.NewService(stores.Courses),
		attendance.NewManager(stores.Attendance, stores.Courses),
		attendance.NewCoordinator(stores.Attendance, registry, q),
	)

	checks := map[string]httpapi.HealthCheck{"db": stores.Healthy}
	if redisClient != nil {
		checks["redis"] = redisClient.Healthy
	}
	r := httpapi.NewRouter(httpapi.RouterConfig{
		Handler:      handler,
		Issuer:       issuer,
		Devices:      registry,
		GlobalLimit:  globalLimit,
		LoginLimit:   loginLimit,
		CORSOrigins:  cfg.CORSOrigins,
		HealthChecks: checks,
	})

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("store", cfg.StoreBackend).Str("device_policy", string(policy)).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return err
	}
	log.Info().Msg("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server forced shutdown")
	}
	log.Info().Msg("server exited")
	return nil
}
