package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowtask/taskqueue-go/internal/task"
)

// PeriodicTask is a recurring definition: a cron schedule plus the template
// fields stamped onto each fired instance. The scheduler's tick loop
// mutates NextRun/LastRun/RunCount on one goroutine while ToView/ShouldRun
// can be called concurrently from API handlers reading the same pointer
// (Scheduler hands out *PeriodicTask, not a copy), so those fields are
// guarded by mu rather than the scheduler's own map-level lock.
type PeriodicTask struct {
	Name           string
	FuncName       string
	CronExpression string
	Args           []interface{}
	Kwargs         map[string]interface{}
	Priority       task.Priority
	MaxRetries     int
	Timeout        *int
	Enabled        bool

	mu       sync.RWMutex
	NextRun  time.Time
	LastRun  *time.Time
	RunCount int

	schedule cron.Schedule
}

// NewPeriodicTask parses cronExpr (standard 5-field dialect) and computes
// the initial next_run. Returns ErrInvalidCron if cronExpr does not parse.
func NewPeriodicTask(name, funcName, cronExpr string, args []interface{}, kwargs map[string]interface{}, priority task.Priority, maxRetries int, timeout *int) (*PeriodicTask, error) {
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return nil, ErrInvalidCron
	}

	now := time.Now().UTC()
	return &PeriodicTask{
		Name:           name,
		FuncName:       funcName,
		CronExpression: cronExpr,
		Args:           args,
		Kwargs:         kwargs,
		Priority:       priority,
		MaxRetries:     maxRetries,
		Timeout:        timeout,
		Enabled:        true,
		NextRun:        schedule.Next(now),
		schedule:       schedule,
	}, nil
}

// ShouldRun reports whether this definition is due at now.
func (p *PeriodicTask) ShouldRun(now time.Time) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.Enabled && !now.Before(p.NextRun)
}

// CreateTaskInstance stamps a fresh task.Task from this definition's
// template fields. cron_expression is set for informational purposes only.
func (p *PeriodicTask) CreateTaskInstance() *task.Task {
	t := task.New(p.FuncName, p.Args, p.Kwargs)
	t.Priority = int(p.Priority)
	t.MaxRetries = p.MaxRetries
	t.Timeout = p.Timeout
	t.CronExpression = p.CronExpression
	return t
}

// MarkExecuted records a fire at now and advances next_run past now. For a
// fire at or after the prior next_run (the scheduler only fires due tasks)
// this preserves cron monotonicity (next_run > prior next_run, next_run > now).
func (p *PeriodicTask) MarkExecuted(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastRun = &now
	p.RunCount++
	p.NextRun = p.schedule.Next(now)
}

// View is the read-only projection returned by ListPeriodicTasks.
type View struct {
	Name           string  `json:"name"`
	FuncName       string  `json:"func_name"`
	CronExpression string  `json:"cron_expression"`
	NextRun        string  `json:"next_run"`
	LastRun        *string `json:"last_run,omitempty"`
	RunCount       int     `json:"run_count"`
	Enabled        bool    `json:"enabled"`
}

// ToView converts the periodic task to its API-serializable view.
func (p *PeriodicTask) ToView() View {
	p.mu.RLock()
	defer p.mu.RUnlock()

	v := View{
		Name:           p.Name,
		FuncName:       p.FuncName,
		CronExpression: p.CronExpression,
		NextRun:        p.NextRun.Format(time.RFC3339Nano),
		RunCount:       p.RunCount,
		Enabled:        p.Enabled,
	}
	if p.LastRun != nil {
		s := p.LastRun.Format(time.RFC3339Nano)
		v.LastRun = &s
	}
	return v
}
