package workerpool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowtask/taskqueue-go/internal/logger"
	"github.com/flowtask/taskqueue-go/internal/registry"
	"github.com/flowtask/taskqueue-go/internal/task"
)

// Executor resolves a task's function from the registry and runs it on a
// BlockingPool, honoring an optional timeout.
type Executor struct {
	registry *registry.Registry
	pool     *BlockingPool
}

// NewExecutor creates an Executor backed by reg and a BlockingPool of the
// given size.
func NewExecutor(reg *registry.Registry, poolSize int) *Executor {
	return &Executor{
		registry: reg,
		pool:     NewBlockingPool(poolSize),
	}
}

// Execute resolves t.FuncName and runs it, returning a formatted error
// kind on failure ("NotFound: ...", "timeout ...", "UserFailure: ...").
func (e *Executor) Execute(ctx context.Context, t *task.Task) (interface{}, error) {
	fn, err := e.registry.Get(t.FuncName)
	if err != nil {
		return nil, fmt.Errorf("NotFound: function %q not registered", t.FuncName)
	}

	log := logger.WithTask(t.ID)
	log.Debug().Str("func_name", t.FuncName).Int("retry_count", t.RetryCount).Msg("executing task")

	timeout := -1 * time.Second
	if t.Timeout != nil {
		timeout = time.Duration(*t.Timeout) * time.Second
	}

	start := time.Now()
	result, execErr := e.pool.Run(ctx, timeout, func() (interface{}, error) {
		return fn(ctx, t.Args, t.Kwargs)
	})
	duration := time.Since(start)

	if execErr != nil {
		if errors.Is(execErr, ErrTimeout) {
			log.Warn().Dur("duration", duration).Msg("task timed out")
			return nil, fmt.Errorf("Task exceeded timeout of %ds", *t.Timeout)
		}
		log.Error().Err(execErr).Dur("duration", duration).Msg("task failed")
		return nil, fmt.Errorf("UserFailure: %s", execErr.Error())
	}

	log.Debug().Dur("duration", duration).Msg("task executed successfully")
	return result, nil
}
