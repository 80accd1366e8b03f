package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowtask/taskqueue-go/internal/task"
)

func TestQueue_EnqueueDequeue(t *testing.T) {
	q := New(0)
	tsk := task.New("add", nil, nil)

	ok := q.Enqueue(tsk)
	assert.True(t, ok)
	assert.Equal(t, task.StatusQueued, tsk.Status)

	got := q.Dequeue(context.Background(), time.Second)
	require.NotNil(t, got)
	assert.Equal(t, tsk.ID, got.ID)
}

func TestQueue_Dequeue_Timeout(t *testing.T) {
	q := New(0)
	got := q.Dequeue(context.Background(), 50*time.Millisecond)
	assert.Nil(t, got)
}

func TestQueue_PriorityOrdering(t *testing.T) {
	q := New(0)

	low := task.New("a", nil, nil)
	low.Priority = 3
	high := task.New("b", nil, nil)
	high.Priority = 0

	q.Enqueue(low)
	q.Enqueue(high)

	first := q.Dequeue(context.Background(), time.Second)
	require.NotNil(t, first)
	assert.Equal(t, high.ID, first.ID)

	second := q.Dequeue(context.Background(), time.Second)
	require.NotNil(t, second)
	assert.Equal(t, low.ID, second.ID)
}

func TestQueue_GetAndUpdate(t *testing.T) {
	q := New(0)
	tsk := task.New("add", nil, nil)
	q.Enqueue(tsk)

	got := q.Get(tsk.ID)
	require.NotNil(t, got)
	assert.Equal(t, task.StatusQueued, got.Status)

	tsk.MarkRunning()
	q.Update(tsk)

	got = q.Get(tsk.ID)
	assert.Equal(t, task.StatusRunning, got.Status)
}

func TestQueue_Get_Missing(t *testing.T) {
	q := New(0)
	assert.Nil(t, q.Get("nonexistent"))
}

func TestQueue_GetAll_Filtered(t *testing.T) {
	q := New(0)
	a := task.New("a", nil, nil)
	b := task.New("b", nil, nil)
	q.Enqueue(a)
	q.Enqueue(b)
	b.MarkRunning()
	q.Update(b)

	queued := task.StatusQueued
	all := q.GetAll(&queued)
	assert.Len(t, all, 1)
	assert.Equal(t, a.ID, all[0].ID)

	assert.Len(t, q.GetAll(nil), 2)
}

func TestQueue_SizeAndIsEmpty(t *testing.T) {
	q := New(0)
	assert.True(t, q.IsEmpty())
	assert.Equal(t, 0, q.Size())

	q.Enqueue(task.New("a", nil, nil))
	assert.False(t, q.IsEmpty())
	assert.Equal(t, 1, q.Size())
}

func TestQueue_Clear(t *testing.T) {
	q := New(0)
	q.Enqueue(task.New("a", nil, nil))
	q.Clear()

	assert.Equal(t, 0, q.Size())
	assert.Empty(t, q.GetAll(nil))
}

func TestQueue_MaxSize_Full(t *testing.T) {
	q := New(1)
	assert.True(t, q.Enqueue(task.New("a", nil, nil)))
	assert.False(t, q.Enqueue(task.New("b", nil, nil)))
}

func TestQueue_Metrics(t *testing.T) {
	q := New(0)
	a := task.New("a", nil, nil)
	q.Enqueue(a)
	q.Dequeue(context.Background(), time.Second)

	m := q.Metrics()
	assert.Equal(t, int64(1), m.TotalEnqueued)
	assert.Equal(t, int64(1), m.TotalDequeued)
	assert.Equal(t, 0, m.CurrentSize)
	assert.Equal(t, 1, m.PendingCount) // still QUEUED status in store
}

func TestQueue_ConcurrentEnqueueDequeue(t *testing.T) {
	q := New(0)
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(task.New("add", nil, nil))
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	var mu sync.Mutex
	wg = sync.WaitGroup{}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := q.Dequeue(context.Background(), 2*time.Second)
			if got != nil {
				mu.Lock()
				seen[got.ID] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
}
