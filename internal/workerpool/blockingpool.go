package workerpool

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/flowtask/taskqueue-go/internal/logger"
)

// ErrTimeout is returned by BlockingPool.Run when fn has not finished
// within the supplied timeout. The goroutine running fn is not
// interrupted; it runs to completion and its result is discarded.
var ErrTimeout = errors.New("blockingpool: execution timed out")

// BlockingPool is a semaphore-bounded executor distinct from the worker
// dispatch loop: it runs synchronous, possibly blocking user code so the
// worker loop itself never stalls on it.
type BlockingPool struct {
	sem chan struct{}
}

// NewBlockingPool creates a pool with the given number of concurrent slots.
func NewBlockingPool(size int) *BlockingPool {
	if size <= 0 {
		size = 1
	}
	return &BlockingPool{sem: make(chan struct{}, size)}
}

type runResult struct {
	value interface{}
	err   error
}

// Run acquires a slot, executes fn on a dedicated goroutine, and waits for
// its result up to timeout. A negative timeout means wait unbounded; zero
// is a valid (immediate-expiry) timeout. A panic in fn is recovered and
// surfaced as an error.
func (p *BlockingPool) Run(ctx context.Context, timeout time.Duration, fn func() (interface{}, error)) (interface{}, error) {
	p.sem <- struct{}{}

	resultCh := make(chan runResult, 1)
	go func() {
		defer func() { <-p.sem }()
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				logger.Get().Error().Interface("panic", r).Str("stack", string(stack)).Msg("task handler panicked")
				resultCh <- runResult{nil, fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		v, err := fn()
		resultCh <- runResult{v, err}
	}()

	if timeout < 0 {
		select {
		case r := <-resultCh:
			return r.value, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	select {
	case r := <-resultCh:
		return r.value, r.err
	case <-time.After(timeout):
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
