// Package workerpool drives task execution with a bounded set of
// concurrent workers, honoring priority (via the queue), timeout, and
// retry policies, emitting lifecycle events as it goes.
package workerpool

import (
	"context"
	"sync"
	"time"

	"github.com/flowtask/taskqueue-go/internal/eventbus"
	"github.com/flowtask/taskqueue-go/internal/logger"
	"github.com/flowtask/taskqueue-go/internal/metrics"
	"github.com/flowtask/taskqueue-go/internal/queue"
	"github.com/flowtask/taskqueue-go/internal/registry"
	"github.com/flowtask/taskqueue-go/internal/task"
)

// dequeueTimeout and dequeueIdleSleep implement the worker loop's
// backpressure strategy: dequeue is the primary wait; the short sleep
// only guards against spurious wakeups.
const (
	dequeueTimeout    = 1 * time.Second
	dequeueIdleSleep  = 100 * time.Millisecond
	loopErrorSleep    = 1 * time.Second
)

// State is the worker pool's operational state.
type State int

const (
	StateIdle State = iota
	StateBusy
	StatePaused
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StatePaused:
		return "paused"
	case StateShuttingDown:
		return "shutting_down"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of the pool's operational status.
type Stats struct {
	NumWorkers    int
	Running       bool
	ActiveWorkers int
}

// Pool is the fixed-size worker pool.
type Pool struct {
	numWorkers int
	queue      *queue.Queue
	executor   *Executor
	bus        *eventbus.Bus
	retryer    *task.Retryer

	stateMu sync.RWMutex
	state   State

	active   sync.Map // worker index -> struct{}, present while executing a task
	wg       sync.WaitGroup
	stopCh   chan struct{}
	pauseCh  chan struct{}
	resumeCh chan struct{}
}

// Config configures a new Pool.
type Config struct {
	NumWorkers int
}

// New creates a worker pool that dequeues from q, resolves functions
// through reg, publishes events on bus, and retries failures per policy
// (nil selects the default policy).
func New(cfg Config, q *queue.Queue, reg *registry.Registry, bus *eventbus.Bus, policy *task.RetryPolicy) *Pool {
	numWorkers := cfg.NumWorkers
	if numWorkers <= 0 {
		numWorkers = 4
	}

	return &Pool{
		numWorkers: numWorkers,
		queue:      q,
		executor:   NewExecutor(reg, numWorkers),
		bus:        bus,
		retryer:    task.NewRetryer(policy),
		state:      StateIdle,
		stopCh:     make(chan struct{}),
		pauseCh:    make(chan struct{}),
		resumeCh:   make(chan struct{}),
	}
}

// Start spawns num_workers concurrent worker loops. Idempotent.
func (p *Pool) Start(ctx context.Context) {
	p.stateMu.Lock()
	if p.state == StateBusy || p.state == StatePaused {
		p.stateMu.Unlock()
		logger.Get().Warn().Msg("worker pool already running")
		return
	}
	p.state = StateBusy
	p.stateMu.Unlock()

	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}

	logger.Get().Info().Int("num_workers", p.numWorkers).Msg("worker pool started")
}

// Stop signals workers to exit at the next safe point; if wait, joins all
// workers before returning.
func (p *Pool) Stop(wait bool) {
	p.stateMu.Lock()
	if p.state == StateShuttingDown || p.state == StateIdle {
		p.stateMu.Unlock()
		return
	}
	p.state = StateShuttingDown
	p.stateMu.Unlock()

	close(p.stopCh)

	if wait {
		p.wg.Wait()
	}

	logger.Get().Info().Msg("worker pool stopped")
}

// Pause stops workers from dequeuing new tasks without shutting them down.
func (p *Pool) Pause() {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.state == StateBusy {
		p.state = StatePaused
		close(p.pauseCh)
		p.pauseCh = make(chan struct{})
		logger.Get().Info().Msg("worker pool paused")
	}
}

// Resume continues task processing after a pause.
func (p *Pool) Resume() {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.state == StatePaused {
		p.state = StateBusy
		close(p.resumeCh)
		p.resumeCh = make(chan struct{})
		logger.Get().Info().Msg("worker pool resumed")
	}
}

// State returns the current operational state.
func (p *Pool) State() State {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	return p.state
}

// StatsSnapshot returns a point-in-time view of the pool's status.
func (p *Pool) StatsSnapshot() Stats {
	return Stats{
		NumWorkers:    p.numWorkers,
		Running:       p.State() != StateIdle && p.State() != StateShuttingDown,
		ActiveWorkers: p.countActive(),
	}
}

// countActive counts workers currently executing a task.
func (p *Pool) countActive() int {
	active := 0
	p.active.Range(func(_, _ interface{}) bool {
		active++
		return true
	})
	return active
}

func (p *Pool) worker(ctx context.Context, workerNum int) {
	defer p.wg.Done()

	logger.Get().Info().Int("worker_num", workerNum).Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}

		if p.State() == StatePaused {
			select {
			case <-p.resumeCh:
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}

		t := p.queue.Dequeue(ctx, dequeueTimeout)
		if t == nil {
			select {
			case <-time.After(dequeueIdleSleep):
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
			continue
		}

		p.active.Store(workerNum, struct{}{})
		metrics.SetActiveWorkers(float64(p.countActive()))
		p.runTaskGuarded(ctx, workerNum, t)
		p.active.Delete(workerNum)
		metrics.SetActiveWorkers(float64(p.countActive()))
	}
}

// runTaskGuarded wraps runTask with a loop-level panic guard: an uncaught
// exception in the loop itself is logged, and the worker sleeps briefly
// to avoid a fault storm instead of exiting.
func (p *Pool) runTaskGuarded(ctx context.Context, workerNum int, t *task.Task) {
	defer func() {
		if r := recover(); r != nil {
			logger.Get().Error().Int("worker_num", workerNum).Interface("panic", r).Msg("worker loop error")
			time.Sleep(loopErrorSleep)
		}
	}()
	p.runTask(ctx, t)
}

// runTask executes the dispatch-to-completion contract for one dequeued
// task. t is this goroutine's private clone (Dequeue hands out a clone,
// never the stored pointer): it is mutated freely here and published to
// the store via Update, which takes the lock.
func (p *Pool) runTask(ctx context.Context, t *task.Task) {
	sm := task.NewStateMachine(t)
	if err := sm.Start(); err != nil {
		logger.WithTask(t.ID).Error().Err(err).Msg("failed to start task")
		return
	}
	p.queue.Update(t)
	p.emit(eventbus.EventTaskStarted, t)

	result, execErr := p.executor.Execute(ctx, t)
	if execErr != nil {
		p.handleFailure(t, execErr.Error())
		return
	}

	sm2 := task.NewStateMachine(t)
	if err := sm2.Complete(result); err != nil {
		logger.WithTask(t.ID).Error().Err(err).Msg("failed to complete task")
		return
	}
	p.queue.Update(t)
	p.emit(eventbus.EventTaskCompleted, t)
	metrics.RecordTaskCompletion(t.FuncName, string(task.StatusCompleted), taskDurationSeconds(t))

	logger.WithTask(t.ID).Info().Msg("task completed")
}

// taskDurationSeconds reports elapsed execution time, or 0 if StartedAt
// was never stamped.
func taskDurationSeconds(t *task.Task) float64 {
	if t.StartedAt == nil {
		return 0
	}
	end := time.Now()
	if t.CompletedAt != nil {
		end = *t.CompletedAt
	}
	return end.Sub(*t.StartedAt).Seconds()
}

// handleFailure implements increment-first retry accounting: retry_count
// is incremented before the comparison against max_retries, giving
// max_retries+1 total attempts.
func (p *Pool) handleFailure(t *task.Task, errMsg string) {
	shouldRetry, backoff := p.retryer.ProcessFailure(t, errMsg)

	if !shouldRetry {
		sm := task.NewStateMachine(t)
		if err := sm.Fail(errMsg); err != nil {
			logger.WithTask(t.ID).Error().Err(err).Msg("failed to mark task failed")
		}
		p.queue.Update(t)
		p.emit(eventbus.EventTaskFailed, t)
		metrics.RecordTaskCompletion(t.FuncName, string(task.StatusFailed), taskDurationSeconds(t))
		logger.WithTask(t.ID).Error().Str("error", errMsg).Msg("task failed permanently")
		return
	}

	sm := task.NewStateMachine(t)
	if err := sm.Retry(errMsg); err != nil {
		logger.WithTask(t.ID).Error().Err(err).Msg("failed to mark task retrying")
	}
	p.queue.Update(t)
	p.emit(eventbus.EventTaskRetrying, t)
	metrics.RecordTaskRetry(t.FuncName)

	logger.WithTask(t.ID).Info().Dur("backoff", backoff).Int("retry_count", t.RetryCount).Msg("retrying task")

	select {
	case <-time.After(backoff):
	case <-p.stopCh:
		return
	}

	if err := sm.Requeue(); err != nil {
		logger.WithTask(t.ID).Error().Err(err).Msg("failed to requeue task")
	}
	p.queue.Enqueue(t)
}

// emit publishes event to both the broadcast set and this task's
// subscribers. Publish failures are swallowed — event emission is
// best-effort and never fails the task.
func (p *Pool) emit(eventType eventbus.EventType, t *task.Task) {
	event := eventbus.NewEvent(eventType, t)
	p.bus.Broadcast(event)
	p.bus.SendToTaskSubscribers(t.ID, event)
}
