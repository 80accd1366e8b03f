package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowtask/taskqueue-go/examples/tasks"
	"github.com/flowtask/taskqueue-go/internal/api"
	"github.com/flowtask/taskqueue-go/internal/config"
	"github.com/flowtask/taskqueue-go/internal/eventbus"
	"github.com/flowtask/taskqueue-go/internal/eventtransport"
	"github.com/flowtask/taskqueue-go/internal/logger"
	"github.com/flowtask/taskqueue-go/internal/queue"
	"github.com/flowtask/taskqueue-go/internal/registry"
	"github.com/flowtask/taskqueue-go/internal/scheduler"
	"github.com/flowtask/taskqueue-go/internal/task"
	"github.com/flowtask/taskqueue-go/internal/taskstore"
	"github.com/flowtask/taskqueue-go/internal/workerpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel, os.Getenv("ENV") != "production")
	log := logger.Get()
	log.Info().Msg("Starting API server...")

	q := queue.New(cfg.Queue.MaxSize)
	reg := registry.New()
	tasks.Register(reg)
	bus := eventbus.New()

	sched := scheduler.New(q, scheduler.Config{
		TickInterval: cfg.Scheduler.TickInterval,
		ErrorBackoff: cfg.Scheduler.ErrorBackoff,
	})

	pool := workerpool.New(workerpool.Config{NumWorkers: cfg.Worker.NumWorkers}, q, reg, bus, &task.RetryPolicy{
		MaxRetries:     cfg.Queue.RetryMaxAttempts,
		InitialBackoff: cfg.Queue.RetryInitialBackoff,
		MaxBackoff:     cfg.Queue.RetryMaxBackoff,
		BackoffFactor:  cfg.Queue.RetryBackoffFactor,
	})

	server := api.NewServer(cfg, q, reg, pool, sched, bus)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      server,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	sched.Start(ctx)

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Addr,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})

		mirror := eventtransport.NewRedisMirror(redisClient, bus)
		go mirror.Run(ctx)

		snapshotter := taskstore.New(redisClient, q, taskstore.Config{})
		go snapshotter.Run(ctx)

		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis event mirror and task snapshotter enabled")
	}

	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	sched.Stop()
	pool.Stop(true)
	server.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close Redis client")
		}
	}

	log.Info().Msg("Server stopped")
}
