//go:build integration
// +build integration

package integration

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowtask/taskqueue-go/internal/eventbus"
	"github.com/flowtask/taskqueue-go/internal/logger"
	"github.com/flowtask/taskqueue-go/internal/queue"
	"github.com/flowtask/taskqueue-go/internal/registry"
	"github.com/flowtask/taskqueue-go/internal/scheduler"
	"github.com/flowtask/taskqueue-go/internal/task"
	"github.com/flowtask/taskqueue-go/internal/workerpool"
)

func init() {
	logger.Init("error", false)
}

// fastRetryPolicy keeps S2/S3's retry sequencing (retry counts, event
// order) identical to the default policy while shrinking the backoff
// curve so the suite runs in seconds rather than the ~19s a production
// backoff schedule would need.
func fastRetryPolicy() *task.RetryPolicy {
	return &task.RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 20 * time.Millisecond,
		MaxBackoff:     200 * time.Millisecond,
		BackoffFactor:  2.0,
	}
}

type harness struct {
	queue *queue.Queue
	reg   *registry.Registry
	bus   *eventbus.Bus
	pool  *workerpool.Pool
	obs   *eventbus.Observer
	stop  context.CancelFunc
}

func newHarness(t *testing.T, numWorkers int, policy *task.RetryPolicy) *harness {
	t.Helper()

	q := queue.New(0)
	reg := registry.New()
	bus := eventbus.New()
	if policy == nil {
		policy = fastRetryPolicy()
	}
	pool := workerpool.New(workerpool.Config{NumWorkers: numWorkers}, q, reg, bus, policy)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	h := &harness{queue: q, reg: reg, bus: bus, pool: pool, obs: bus.Connect(), stop: cancel}
	t.Cleanup(func() {
		h.stop()
		h.pool.Stop(true)
	})
	return h
}

func (h *harness) collectEventTypes(n int, within time.Duration) []eventbus.EventType {
	var types []eventbus.EventType
	deadline := time.After(within)
	for len(types) < n {
		select {
		case ev := <-h.obs.Ch:
			types = append(types, ev.Type)
		case <-deadline:
			return types
		}
	}
	return types
}

func waitForStatus(t *testing.T, q *queue.Queue, taskID string, status task.Status, within time.Duration) *task.Task {
	t.Helper()
	var got *task.Task
	require.Eventually(t, func() bool {
		got = q.Get(taskID)
		return got != nil && got.Status == status
	}, within, 10*time.Millisecond, "task %s never reached status %s", taskID, status)
	return got
}

// S1 — Simple add.
func TestScenario_SimpleAdd(t *testing.T) {
	h := newHarness(t, 2, nil)
	h.reg.Register("add", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		a, _ := kwargs["a"].(float64)
		b, _ := kwargs["b"].(float64)
		return a + b, nil
	})

	tk := task.New("add", nil, map[string]interface{}{"a": float64(5), "b": float64(3)})
	tk.Priority = 2
	tk.MaxRetries = 3
	h.queue.Enqueue(tk)

	done := waitForStatus(t, h.queue, tk.ID, task.StatusCompleted, 2*time.Second)
	assert.Equal(t, float64(8), done.Result)
	assert.Equal(t, 0, done.RetryCount)

	types := h.collectEventTypes(2, time.Second)
	require.Len(t, types, 2)
	assert.Equal(t, eventbus.EventTaskStarted, types[0])
	assert.Equal(t, eventbus.EventTaskCompleted, types[1])
}

// S2 — Timeout failure exhausts all retries.
func TestScenario_TimeoutFailure(t *testing.T) {
	h := newHarness(t, 1, nil)
	h.reg.Register("sleep_forever", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		select {
		case <-time.After(5 * time.Second):
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	timeoutSeconds := 0
	tk := task.New("sleep_forever", []interface{}{5}, nil)
	tk.Timeout = &timeoutSeconds
	tk.MaxRetries = 3
	h.queue.Enqueue(tk)

	done := waitForStatus(t, h.queue, tk.ID, task.StatusFailed, 20*time.Second)
	assert.Equal(t, 4, done.RetryCount)
	assert.NotEmpty(t, done.Error)
}

// S3 — Retry to success: fails twice, succeeds the third attempt.
func TestScenario_RetryToSuccess(t *testing.T) {
	h := newHarness(t, 1, nil)

	var mu sync.Mutex
	calls := 0
	h.reg.Register("flaky", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		mu.Lock()
		calls++
		attempt := calls
		mu.Unlock()
		if attempt < 3 {
			return nil, assertErr("simulated failure")
		}
		return "ok", nil
	})

	tk := task.New("flaky", nil, nil)
	tk.MaxRetries = 3
	h.queue.Enqueue(tk)

	done := waitForStatus(t, h.queue, tk.ID, task.StatusCompleted, 2*time.Second)
	assert.Equal(t, 2, done.RetryCount)
	assert.Equal(t, "ok", done.Result)

	types := h.collectEventTypes(6, 2*time.Second)
	require.Len(t, types, 6)
	expected := []eventbus.EventType{
		eventbus.EventTaskStarted, eventbus.EventTaskRetrying,
		eventbus.EventTaskStarted, eventbus.EventTaskRetrying,
		eventbus.EventTaskStarted, eventbus.EventTaskCompleted,
	}
	assert.Equal(t, expected, types)
}

// S4 — Priority overtake: with every worker busy, a lower-priority-value
// task queued after a higher one still executes first once a slot frees.
func TestScenario_PriorityOvertake(t *testing.T) {
	h := newHarness(t, 1, nil)

	release := make(chan struct{})
	var order []string
	var mu sync.Mutex

	h.reg.Register("block", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		<-release
		return nil, nil
	})
	h.reg.Register("mark", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		name, _ := kwargs["name"].(string)
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
		return nil, nil
	})

	blocker := task.New("block", nil, nil)
	h.queue.Enqueue(blocker)
	waitForStatus(t, h.queue, blocker.ID, task.StatusRunning, time.Second)

	t1 := task.New("mark", nil, map[string]interface{}{"name": "t1"})
	t1.Priority = 3
	t2 := task.New("mark", nil, map[string]interface{}{"name": "t2"})
	t2.Priority = 0

	h.queue.Enqueue(t1)
	h.queue.Enqueue(t2)

	close(release)
	waitForStatus(t, h.queue, blocker.ID, task.StatusCompleted, time.Second)
	waitForStatus(t, h.queue, t2.ID, task.StatusCompleted, time.Second)
	waitForStatus(t, h.queue, t1.ID, task.StatusCompleted, time.Second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, []string{"t2", "t1"}, order)
}

// S5 — Cron fires: an every-minute periodic task fires at the next minute
// boundary, within 65s, and its instance completes.
func TestScenario_CronFires(t *testing.T) {
	q := queue.New(0)
	reg := registry.New()
	bus := eventbus.New()
	reg.Register("noop", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		return nil, nil
	})
	pool := workerpool.New(workerpool.Config{NumWorkers: 1}, q, reg, bus, fastRetryPolicy())

	sched := scheduler.New(q, scheduler.Config{TickInterval: 20 * time.Millisecond, ErrorBackoff: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)
	defer pool.Stop(true)

	_, err := sched.AddPeriodicTask("p", "noop", "* * * * *", nil, nil, task.PriorityNormal, 3, nil)
	require.NoError(t, err)

	sched.Start(ctx)
	defer sched.Stop()

	require.Eventually(t, func() bool {
		pt := sched.GetPeriodicTask("p")
		return pt != nil && pt.ToView().RunCount >= 1
	}, 65*time.Second, 100*time.Millisecond, "periodic task never fired")

	view := sched.GetPeriodicTask("p")
	require.NotNil(t, view)
	require.GreaterOrEqual(t, view.ToView().RunCount, 1)

	require.Eventually(t, func() bool {
		tasks := q.GetAll(statusPtr(task.StatusCompleted))
		for _, tk := range tasks {
			if tk.FuncName == "noop" {
				return true
			}
		}
		return false
	}, 2*time.Second, 20*time.Millisecond, "no completed noop instance found")
}

// S6 — Concurrent throughput: 5 independent add() tasks all complete and
// drain the queue.
func TestScenario_ConcurrentThroughput(t *testing.T) {
	h := newHarness(t, 4, nil)
	h.reg.Register("add", func(ctx context.Context, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
		a, _ := kwargs["a"].(float64)
		b, _ := kwargs["b"].(float64)
		return a + b, nil
	})

	ids := make([]string, 5)
	for i := 0; i < 5; i++ {
		tk := task.New("add", nil, map[string]interface{}{"a": float64(i), "b": float64(i)})
		h.queue.Enqueue(tk)
		ids[i] = tk.ID
	}

	results := make([]float64, 0, 5)
	for _, id := range ids {
		done := waitForStatus(t, h.queue, id, task.StatusCompleted, 2*time.Second)
		results = append(results, done.Result.(float64))
	}

	assert.ElementsMatch(t, []float64{0, 2, 4, 6, 8}, results)

	require.Eventually(t, func() bool {
		return h.queue.Size() == 0
	}, time.Second, 10*time.Millisecond)
}

func statusPtr(s task.Status) *task.Status { return &s }

type assertErr string

func (e assertErr) Error() string { return string(e) }
