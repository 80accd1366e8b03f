// cmd/worker runs a standalone in-process worker: its own registry, queue,
// worker pool, and scheduler, with no HTTP surface. The engine keeps its
// queue in memory and does not coordinate across processes, so this
// process does not share a queue with cmd/api-server — it is useful for
// embedding the engine directly into a batch job or cron container,
// submitting tasks from code rather than over HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowtask/taskqueue-go/examples/tasks"
	"github.com/flowtask/taskqueue-go/internal/config"
	"github.com/flowtask/taskqueue-go/internal/eventbus"
	"github.com/flowtask/taskqueue-go/internal/logger"
	"github.com/flowtask/taskqueue-go/internal/queue"
	"github.com/flowtask/taskqueue-go/internal/registry"
	"github.com/flowtask/taskqueue-go/internal/task"
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
	log.Info().Msg("Starting standalone worker...")

	q := queue.New(cfg.Queue.MaxSize)
	reg := registry.New()
	tasks.Register(reg)
	bus := eventbus.New()

	pool := workerpool.New(workerpool.Config{NumWorkers: cfg.Worker.NumWorkers}, q, reg, bus, &task.RetryPolicy{
		MaxRetries:     cfg.Queue.RetryMaxAttempts,
		InitialBackoff: cfg.Queue.RetryInitialBackoff,
		MaxBackoff:     cfg.Queue.RetryMaxBackoff,
		BackoffFactor:  cfg.Queue.RetryBackoffFactor,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)

	seedDemoTasks(q)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker...")

	pool.Stop(true)

	log.Info().Msg("Worker stopped")
}

// seedDemoTasks enqueues a few example tasks so a freshly started worker
// has something to do without a submitting client.
func seedDemoTasks(q *queue.Queue) {
	q.Enqueue(task.New("echo", nil, map[string]interface{}{"message": "hello"}))
	q.Enqueue(task.New("sleep", nil, map[string]interface{}{"duration_ms": float64(500)}))
	q.Enqueue(task.New("add", nil, map[string]interface{}{"a": float64(2), "b": float64(3)}))
}
