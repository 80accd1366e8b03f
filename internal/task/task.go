package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Priority controls dispatch order: smaller values run before larger ones.
// The four named levels are canonical; arbitrary integers are accepted
// and ordering is purely numerical.
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// ParsePriority converts a priority name to its Priority, defaulting to Normal.
func ParsePriority(s string) Priority {
	switch s {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "normal":
		return PriorityNormal
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRetrying  Status = "retrying"
	StatusCancelled Status = "cancelled"
)

// Task is a unit of work in the queue.
type Task struct {
	ID         string                 `json:"task_id"`
	FuncName   string                 `json:"func_name"`
	Args       []interface{}          `json:"args"`
	Kwargs     map[string]interface{} `json:"kwargs"`
	Priority   int                    `json:"priority"`
	Status     Status                 `json:"status"`
	Result     interface{}            `json:"result,omitempty"`
	Error      string                 `json:"error,omitempty"`
	RetryCount int                    `json:"retry_count"`
	MaxRetries int                    `json:"max_retries"`
	Timeout    *int                   `json:"timeout,omitempty"` // seconds

	// DependsOn is reserved and never consulted by the core.
	DependsOn []string `json:"depends_on,omitempty"`

	// CronExpression is set on instances spawned by the scheduler; informational only.
	CronExpression string `json:"cron_expression,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CreateTaskRequest is the wire shape for task submission.
type CreateTaskRequest struct {
	FuncName   string                 `json:"func_name"`
	Args       []interface{}          `json:"args,omitempty"`
	Kwargs     map[string]interface{} `json:"kwargs,omitempty"`
	Priority   int                    `json:"priority"`
	MaxRetries int                    `json:"max_retries"`
	Timeout    *int                   `json:"timeout,omitempty"`
	DependsOn  []string               `json:"depends_on,omitempty"`
}

// New creates a new Task with default values: NORMAL priority, 3 retries, PENDING status.
func New(funcName string, args []interface{}, kwargs map[string]interface{}) *Task {
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	return &Task{
		ID:         uuid.New().String(),
		FuncName:   funcName,
		Args:       args,
		Kwargs:     kwargs,
		Priority:   int(PriorityNormal),
		Status:     StatusPending,
		MaxRetries: 3,
		CreatedAt:  time.Now().UTC(),
	}
}

// FromRequest builds a Task from a CreateTaskRequest, applying defaults.
func FromRequest(req *CreateTaskRequest) *Task {
	t := New(req.FuncName, req.Args, req.Kwargs)
	t.Priority = req.Priority
	if req.MaxRetries > 0 {
		t.MaxRetries = req.MaxRetries
	}
	t.Timeout = req.Timeout
	t.DependsOn = req.DependsOn
	return t
}

// CanRetry reports whether the task may be attempted again.
func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// MarkQueued transitions the task to QUEUED.
func (t *Task) MarkQueued() {
	t.Status = StatusQueued
}

// MarkRunning transitions the task to RUNNING and stamps StartedAt.
func (t *Task) MarkRunning() {
	now := time.Now().UTC()
	t.Status = StatusRunning
	t.StartedAt = &now
}

// MarkCompleted transitions the task to COMPLETED with the given result.
func (t *Task) MarkCompleted(result interface{}) {
	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.CompletedAt = &now
	t.Result = result
	t.Error = ""
}

// MarkFailed transitions the task to terminal FAILED with the given error.
func (t *Task) MarkFailed(errMsg string) {
	now := time.Now().UTC()
	t.Status = StatusFailed
	t.CompletedAt = &now
	t.Error = errMsg
}

// MarkRetrying transitions the task to RETRYING. RetryCount must already
// have been incremented by the caller before this is called.
func (t *Task) MarkRetrying(errMsg string) {
	t.Status = StatusRetrying
	t.Error = errMsg
}

// MarkCancelled transitions the task to terminal CANCELLED.
func (t *Task) MarkCancelled() {
	now := time.Now().UTC()
	t.Status = StatusCancelled
	t.CompletedAt = &now
}

// Snapshot is the wire-serializable view of a Task.
type Snapshot struct {
	TaskID      string                 `json:"task_id"`
	FuncName    string                 `json:"func_name"`
	Args        []interface{}          `json:"args"`
	Kwargs      map[string]interface{} `json:"kwargs"`
	Status      Status                 `json:"status"`
	Priority    int                    `json:"priority"`
	CreatedAt   string                 `json:"created_at"`
	StartedAt   *string                `json:"started_at,omitempty"`
	CompletedAt *string                `json:"completed_at,omitempty"`
	Result      interface{}            `json:"result,omitempty"`
	Error       string                 `json:"error,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

// ToSnapshot converts the Task to its serialization contract view.
func (t *Task) ToSnapshot() Snapshot {
	return Snapshot{
		TaskID:      t.ID,
		FuncName:    t.FuncName,
		Args:        t.Args,
		Kwargs:      t.Kwargs,
		Status:      t.Status,
		Priority:    t.Priority,
		CreatedAt:   t.CreatedAt.UTC().Format(time.RFC3339Nano),
		StartedAt:   formatTime(t.StartedAt),
		CompletedAt: formatTime(t.CompletedAt),
		Result:      t.Result,
		Error:       t.Error,
		RetryCount:  t.RetryCount,
		MaxRetries:  t.MaxRetries,
	}
}

// ToJSON serializes the task to JSON.
func (t *Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// FromJSON deserializes a task from JSON.
func FromJSON(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// EventTimestamp returns CompletedAt if present, else CreatedAt.
func (t *Task) EventTimestamp() time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.CreatedAt
}

// Clone returns a deep-enough copy for safe handoff across goroutines
// (the queue stores tasks by pointer; callers that need to read a
// consistent view take a Clone under the store's lock).
func (t *Task) Clone() *Task {
	c := *t
	c.Args = append([]interface{}{}, t.Args...)
	c.Kwargs = make(map[string]interface{}, len(t.Kwargs))
	for k, v := range t.Kwargs {
		c.Kwargs[k] = v
	}
	c.DependsOn = append([]string{}, t.DependsOn...)
	if t.Timeout != nil {
		timeout := *t.Timeout
		c.Timeout = &timeout
	}
	if t.ScheduledAt != nil {
		ts := *t.ScheduledAt
		c.ScheduledAt = &ts
	}
	if t.StartedAt != nil {
		ts := *t.StartedAt
		c.StartedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		c.CompletedAt = &ts
	}
	return &c
}
