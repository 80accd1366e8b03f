// Package queue implements the ordered dispatch source and authoritative
// lifecycle store for tasks: a priority heap of dispatch handles backed by
// a map of task records, guarded by a single mutex so the two structures
// never drift out of sync.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/flowtask/taskqueue-go/internal/logger"
	"github.com/flowtask/taskqueue-go/internal/task"
)

// ErrQueueFull names the condition in which Enqueue rejects a task because a
// configured MaxSize bound is reached. Enqueue itself reports it by
// returning false, not by returning this error.
var ErrQueueFull = errors.New("queue: full")

// handle is the ordered dispatch entry: priority plus a monotonic sequence
// number used as tie-break so the heap is deterministic. Only priority
// ordering is guaranteed; the sequence tie-break is an implementation
// detail, not a FIFO contract.
type handle struct {
	taskID   string
	priority int
	seq      uint64
}

// heapSlice implements container/heap.Interface ordered by (priority, seq).
type heapSlice []*handle

func (h heapSlice) Len() int { return len(h) }
func (h heapSlice) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority < h[j].priority
	}
	return h[i].seq < h[j].seq
}
func (h heapSlice) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *heapSlice) Push(x interface{}) {
	*h = append(*h, x.(*handle))
}
func (h *heapSlice) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// Metrics is the queue's derived-counter snapshot.
type Metrics struct {
	TotalEnqueued  int64 `json:"total_enqueued"`
	TotalDequeued  int64 `json:"total_dequeued"`
	CurrentSize    int   `json:"current_size"`
	PendingCount   int   `json:"pending_count"`
	RunningCount   int   `json:"running_count"`
	CompletedCount int   `json:"completed_count"`
	FailedCount    int   `json:"failed_count"`
}

// Queue is the priority dispatch queue + lifecycle store.
type Queue struct {
	mu      sync.Mutex
	notify  chan struct{} // closed-and-replaced signal for waiting dequeuers
	heap    heapSlice
	tasks   map[string]*task.Task
	seq     uint64
	maxSize int // 0 means unbounded

	totalEnqueued int64
	totalDequeued int64
}

// New creates an empty Queue. maxSize of 0 means unbounded.
func New(maxSize int) *Queue {
	q := &Queue{
		heap:    make(heapSlice, 0),
		tasks:   make(map[string]*task.Task),
		maxSize: maxSize,
		notify:  make(chan struct{}),
	}
	heap.Init(&q.heap)
	return q
}

// Enqueue records t in the store, transitions it to QUEUED, and pushes a
// dispatch handle. Returns false if a configured bound is exceeded.
func (q *Queue) Enqueue(t *task.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxSize > 0 && len(q.heap) >= q.maxSize {
		logger.Get().Warn().Str("task_id", t.ID).Msg("queue full, rejecting enqueue")
		return false
	}

	t.MarkQueued()
	q.tasks[t.ID] = t

	q.seq++
	heap.Push(&q.heap, &handle{taskID: t.ID, priority: t.Priority, seq: q.seq})

	q.totalEnqueued++
	q.wake()

	logger.Get().Info().Str("task_id", t.ID).Str("func_name", t.FuncName).Int("priority", t.Priority).Msg("enqueued task")
	return true
}

// wake broadcasts to any goroutine blocked in Dequeue's select. Must be
// called with mu held.
func (q *Queue) wake() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// Dequeue blocks up to timeout for the highest-priority task, returning nil
// on timeout. A timeout of 0 polls once without blocking.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) *task.Task {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if t, ok := q.tryDequeue(); ok {
			return t
		}

		q.mu.Lock()
		ch := q.notify
		q.mu.Unlock()

		select {
		case <-ch:
			continue
		case <-deadline.C:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// tryDequeue pops the highest-priority handle and returns a private clone
// of its task record. The caller owns the clone outright: the worker pool
// mutates it without holding q.mu and publishes the result via Update.
func (q *Queue) tryDequeue() (*task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.heap) > 0 {
		h := heap.Pop(&q.heap).(*handle)
		t, ok := q.tasks[h.taskID]
		if !ok {
			// Task was cleared out from under the heap; try the next handle.
			continue
		}

		q.totalDequeued++
		logger.Get().Debug().Str("task_id", t.ID).Msg("dequeued task")
		return t.Clone(), true
	}

	return nil, false
}

// Get returns a snapshot clone of the task with the given id, or nil if
// absent. The returned pointer is private to the caller; mutating it has
// no effect on the stored record.
func (q *Queue) Get(taskID string) *task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.tasks[taskID]
	if !ok {
		return nil
	}
	return t.Clone()
}

// Update replaces the store entry for t.ID. Workers call this after every
// status transition. The store keeps its own copy, so the caller may go on
// mutating t without racing readers of the stored record.
func (q *Queue) Update(t *task.Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks[t.ID] = t.Clone()
}

// GetAll returns snapshot clones of tasks, optionally filtered by status.
// The returned pointers are private to the caller.
func (q *Queue) GetAll(status *task.Status) []*task.Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*task.Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		if status != nil && t.Status != *status {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

// Size returns the current number of pending dispatch handles.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// IsEmpty reports whether the dispatch structure has no pending handles.
func (q *Queue) IsEmpty() bool {
	return q.Size() == 0
}

// Clear drops both the pending handles and the store, so the current size
// returns to zero. The cumulative enqueue/dequeue totals are kept.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.heap = make(heapSlice, 0)
	q.tasks = make(map[string]*task.Task)
	heap.Init(&q.heap)
	q.wake()

	logger.Get().Info().Msg("queue cleared")
}

// Metrics returns the queue's derived counters.
func (q *Queue) Metrics() Metrics {
	q.mu.Lock()
	defer q.mu.Unlock()

	m := Metrics{
		TotalEnqueued: q.totalEnqueued,
		TotalDequeued: q.totalDequeued,
		CurrentSize:   len(q.heap),
	}

	for _, t := range q.tasks {
		switch t.Status {
		case task.StatusPending, task.StatusQueued:
			m.PendingCount++
		case task.StatusRunning, task.StatusRetrying:
			m.RunningCount++
		case task.StatusCompleted:
			m.CompletedCount++
		case task.StatusFailed:
			m.FailedCount++
		}
	}

	return m
}
