package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/mongo"

	"gotogrow/portal/internal/cache"
	"gotogrow/portal/internal/config"
	"gotogrow/portal/internal/database"
	"gotogrow/portal/internal/handlers"
	"gotogrow/portal/internal/jobs"
	"gotogrow/portal/internal/log"
	"gotogrow/portal/internal/repository"
	"gotogrow/portal/internal/server"
	"gotogrow/portal/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	if cfg.Security.SessionSecret == "" {
		logger.Fatal().Msg("GOTOGROW_SECURITY_SESSIONSECRET is required")
	}

	ctx := context.Background()

	mongoClient, err := database.NewMongoClient(ctx, cfg.Mongo)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect mongo")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	db := mongoClient.Database(cfg.Mongo.Database)
	users := repository.NewUserRepository(db.Collection(cfg.Mongo.Users))
	progress := repository.NewProgressRepository(db.Collection(cfg.Mongo.Progress))
	markers := session.NewRedisMarkerStore(redisClient)

	gatekeeper := session.NewGatekeeper(cfg, markers, logger)
	handlerSet := handlers.NewHandlerSet(logger, users, progress, markers, mongoClient, redisClient, cfg)
	httpServer := server.NewHTTPServer(cfg, logger, gatekeeper, handlerSet)

	scheduler := jobs.NewScheduler(users, nil, cfg.Mongo.OpTimeout, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, mongoClient, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, mongoClient *mongo.Client, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	if err := mongoClient.Disconnect(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("mongo disconnect error")
	}
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
