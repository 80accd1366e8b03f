// Package scheduler fires cron-scheduled periodic task definitions,
// injecting fresh task instances into the queue as their schedules come due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowtask/taskqueue-go/internal/logger"
	"github.com/flowtask/taskqueue-go/internal/metrics"
	"github.com/flowtask/taskqueue-go/internal/queue"
	"github.com/flowtask/taskqueue-go/internal/task"
)

// ErrInvalidCron is returned when a cron expression fails to parse.
var ErrInvalidCron = errors.New("scheduler: invalid cron expression")

// ErrNotFound is returned for operations on an unknown periodic task name.
var ErrNotFound = errors.New("scheduler: periodic task not found")

const (
	defaultTickInterval = 1 * time.Second
	defaultErrorBackoff = 5 * time.Second
)

// Config configures a Scheduler's loop cadence.
type Config struct {
	TickInterval time.Duration
	ErrorBackoff time.Duration
}

// Scheduler manages periodic task definitions and fires them by cron
// schedule into a queue.
type Scheduler struct {
	queue *queue.Queue

	tickInterval time.Duration
	errorBackoff time.Duration

	mu            sync.RWMutex
	periodicTasks map[string]*PeriodicTask
	running       bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Scheduler dispatching due periodic tasks onto q.
func New(q *queue.Queue, cfg Config) *Scheduler {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = defaultTickInterval
	}
	backoff := cfg.ErrorBackoff
	if backoff <= 0 {
		backoff = defaultErrorBackoff
	}

	return &Scheduler{
		queue:         q,
		tickInterval:  tick,
		errorBackoff:  backoff,
		periodicTasks: make(map[string]*PeriodicTask),
	}
}

// AddPeriodicTask validates cronExpr, computes the initial next_run, and
// stores the definition, overwriting any existing definition with the same
// name.
func (s *Scheduler) AddPeriodicTask(name, funcName, cronExpr string, args []interface{}, kwargs map[string]interface{}, priority task.Priority, maxRetries int, timeout *int) (*PeriodicTask, error) {
	pt, err := NewPeriodicTask(name, funcName, cronExpr, args, kwargs, priority, maxRetries, timeout)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.periodicTasks[name] = pt
	s.mu.Unlock()

	logger.Get().Info().Str("name", name).Str("cron", cronExpr).Msg("added periodic task")
	return pt, nil
}

// RemovePeriodicTask deletes the named definition. Returns false if it did
// not exist.
func (s *Scheduler) RemovePeriodicTask(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.periodicTasks[name]; !ok {
		return false
	}
	delete(s.periodicTasks, name)
	logger.Get().Info().Str("name", name).Msg("removed periodic task")
	return true
}

// GetPeriodicTask returns the named definition, or nil if absent.
func (s *Scheduler) GetPeriodicTask(name string) *PeriodicTask {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.periodicTasks[name]
}

// ListPeriodicTasks returns a view of every registered definition.
func (s *Scheduler) ListPeriodicTasks() []View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	views := make([]View, 0, len(s.periodicTasks))
	for _, pt := range s.periodicTasks {
		views = append(views, pt.ToView())
	}
	return views
}

// TriggerNow fabricates and enqueues an instance of the named definition
// immediately, without touching last_run/next_run/run_count.
func (s *Scheduler) TriggerNow(name string) (string, error) {
	s.mu.RLock()
	pt, ok := s.periodicTasks[name]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}

	t := pt.CreateTaskInstance()
	s.queue.Enqueue(t)
	logger.Get().Info().Str("name", name).Str("task_id", t.ID).Msg("manually triggered periodic task")
	return t.ID, nil
}

// Start spawns the scheduler loop. Idempotent: a second call on an already
// running scheduler is a no-op with a warning.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		logger.Get().Warn().Msg("scheduler already running")
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	logger.Get().Info().Dur("tick_interval", s.tickInterval).Msg("scheduler started")
}

// Stop signals the loop and joins it. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logger.Get().Info().Msg("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.processDueGuarded(); err != nil {
				logger.Get().Error().Err(err).Msg("scheduler loop error")
				select {
				case <-time.After(s.errorBackoff):
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// processDueGuarded recovers a panic from a single tick so the loop itself
// never dies; the error path applies the configured backoff.
func (s *Scheduler) processDueGuarded() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in scheduler tick: %v", r)
		}
	}()
	s.processDue()
	return nil
}

// processDue snapshots the current definitions before iterating so control-
// plane mutations (add/remove) during a tick never race with the scan.
func (s *Scheduler) processDue() {
	s.mu.RLock()
	snapshot := make([]*PeriodicTask, 0, len(s.periodicTasks))
	for _, pt := range s.periodicTasks {
		snapshot = append(snapshot, pt)
	}
	s.mu.RUnlock()

	now := time.Now().UTC()
	for _, pt := range snapshot {
		if !pt.ShouldRun(now) {
			continue
		}

		t := pt.CreateTaskInstance()
		if !s.queue.Enqueue(t) {
			logger.Get().Warn().Str("name", pt.Name).Msg("failed to enqueue periodic task instance")
			continue
		}

		pt.MarkExecuted(now)
		metrics.RecordPeriodicTaskRun(pt.Name)
		logger.Get().Info().Str("name", pt.Name).Str("task_id", t.ID).Int("run_count", pt.RunCount).Msg("fired periodic task")
	}
}
