package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowtask/taskqueue-go/internal/task"
)

func TestBus_Broadcast(t *testing.T) {
	b := New()
	obs := b.Connect()
	defer b.Disconnect(obs)

	tsk := task.New("add", nil, nil)
	tsk.MarkRunning()
	event := NewEvent(EventTaskStarted, tsk)

	b.Broadcast(event)

	select {
	case got := <-obs.Ch:
		assert.Equal(t, EventTaskStarted, got.Type)
		assert.Equal(t, tsk.ID, got.Task.TaskID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast event")
	}
}

func TestBus_SendToTaskSubscribers(t *testing.T) {
	b := New()
	obsA := b.Connect()
	obsB := b.Connect()
	defer b.Disconnect(obsA)
	defer b.Disconnect(obsB)

	tsk := task.New("add", nil, nil)
	b.Subscribe(obsA, tsk.ID)

	event := NewEvent(EventTaskCompleted, tsk)
	b.SendToTaskSubscribers(tsk.ID, event)

	select {
	case got := <-obsA.Ch:
		assert.Equal(t, tsk.ID, got.Task.TaskID)
	case <-time.After(time.Second):
		t.Fatal("subscribed observer did not receive event")
	}

	select {
	case <-obsB.Ch:
		t.Fatal("unsubscribed observer should not receive event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New()
	obs := b.Connect()
	defer b.Disconnect(obs)

	tsk := task.New("add", nil, nil)
	b.Subscribe(obs, tsk.ID)
	b.Unsubscribe(obs, tsk.ID)

	b.SendToTaskSubscribers(tsk.ID, NewEvent(EventTaskCompleted, tsk))

	select {
	case <-obs.Ch:
		t.Fatal("unsubscribed observer should not receive event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_Disconnect_ClosesChannel(t *testing.T) {
	b := New()
	obs := b.Connect()
	b.Disconnect(obs)

	_, ok := <-obs.Ch
	assert.False(t, ok)
}

func TestBus_SlowObserverDropped(t *testing.T) {
	b := New()
	obs := b.Connect()

	tsk := task.New("add", nil, nil)
	for i := 0; i < observerBufferSize+5; i++ {
		b.Broadcast(NewEvent(EventTaskStarted, tsk))
	}

	assert.Equal(t, 0, b.ObserverCount())

	_, ok := <-obs.Ch
	require.False(t, ok, "observer channel should be closed after drop")
}

func TestBus_ObserverCount(t *testing.T) {
	b := New()
	assert.Equal(t, 0, b.ObserverCount())

	obs := b.Connect()
	assert.Equal(t, 1, b.ObserverCount())

	b.Disconnect(obs)
	assert.Equal(t, 0, b.ObserverCount())
}
