// Package taskstore mirrors the in-memory queue's task records to a
// Redis hash on a timer, purely for external observability. It is not a
// durability mechanism: the engine does not persist state across a
// process restart, and nothing in the core reads this hash back.
package taskstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowtask/taskqueue-go/internal/logger"
	"github.com/flowtask/taskqueue-go/internal/queue"
)

const defaultHashKey = "taskqueue:tasks:snapshot"

// TaskSnapshotter periodically serializes every task in a Queue's store
// to a Redis hash, keyed by task_id.
type TaskSnapshotter struct {
	client   *redis.Client
	queue    *queue.Queue
	hashKey  string
	interval time.Duration
}

// Config configures a TaskSnapshotter.
type Config struct {
	HashKey  string
	Interval time.Duration
}

// New creates a snapshotter writing q's tasks to client at cfg.Interval.
func New(client *redis.Client, q *queue.Queue, cfg Config) *TaskSnapshotter {
	hashKey := cfg.HashKey
	if hashKey == "" {
		hashKey = defaultHashKey
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &TaskSnapshotter{client: client, queue: q, hashKey: hashKey, interval: interval}
}

// Run snapshots on a ticker until ctx is cancelled.
func (s *TaskSnapshotter) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.snapshotOnce(ctx)
		}
	}
}

func (s *TaskSnapshotter) snapshotOnce(ctx context.Context) {
	tasks := s.queue.GetAll(nil)
	if len(tasks) == 0 {
		return
	}

	fields := make(map[string]interface{}, len(tasks))
	for _, t := range tasks {
		data, err := t.ToJSON()
		if err != nil {
			logger.Get().Warn().Err(err).Str("task_id", t.ID).Msg("taskstore: failed to serialize task")
			continue
		}
		fields[t.ID] = data
	}

	if len(fields) == 0 {
		return
	}

	if err := s.client.HSet(ctx, s.hashKey, fields).Err(); err != nil {
		logger.Get().Warn().Err(err).Msg("taskstore: failed to write snapshot")
		return
	}

	logger.Get().Debug().Int("count", len(fields)).Msg("taskstore: snapshot written")
}
