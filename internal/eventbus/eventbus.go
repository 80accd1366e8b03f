// Package eventbus fans task lifecycle events out to observers, by
// broadcast and by per-task-id subscription. Slow observers are dropped,
// never waited on; events are not buffered beyond each observer's channel.
package eventbus

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/flowtask/taskqueue-go/internal/logger"
	"github.com/flowtask/taskqueue-go/internal/task"
)

// EventType names a task lifecycle transition.
type EventType string

const (
	EventTaskStarted  EventType = "task_started"
	EventTaskCompleted EventType = "task_completed"
	EventTaskFailed    EventType = "task_failed"
	EventTaskRetrying  EventType = "task_retrying"
)

// Event is the wire shape delivered to observers.
type Event struct {
	Type      EventType     `json:"type"`
	Task      task.Snapshot `json:"task"`
	Timestamp string        `json:"timestamp"`
}

// NewEvent builds an Event from a task snapshot at the current moment.
func NewEvent(eventType EventType, t *task.Task) *Event {
	return &Event{
		Type:      eventType,
		Task:      t.ToSnapshot(),
		Timestamp: t.EventTimestamp().UTC().Format(time.RFC3339Nano),
	}
}

// ToJSON serializes the event.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

const observerBufferSize = 64

// Observer is a registered receiver. Events arrive on Ch; the bus never
// blocks sending to it — a full buffer gets the observer disconnected.
type Observer struct {
	Ch chan *Event
	id uint64
}

// Bus is the broadcast + per-task-id event fan-out.
type Bus struct {
	mu            sync.RWMutex
	observers     map[uint64]*Observer
	subscriptions map[string]map[uint64]*Observer // task_id -> observers
	nextID        uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{
		observers:     make(map[uint64]*Observer),
		subscriptions: make(map[string]map[uint64]*Observer),
	}
}

// Connect registers a new broadcast observer.
func (b *Bus) Connect() *Observer {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	obs := &Observer{Ch: make(chan *Event, observerBufferSize), id: b.nextID}
	b.observers[obs.id] = obs
	return obs
}

// Disconnect removes an observer from the broadcast set and every
// per-task-id subscription, closing its channel.
func (b *Bus) Disconnect(obs *Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.disconnectLocked(obs)
}

func (b *Bus) disconnectLocked(obs *Observer) {
	if _, ok := b.observers[obs.id]; !ok {
		return
	}
	delete(b.observers, obs.id)
	for taskID, subs := range b.subscriptions {
		if _, ok := subs[obs.id]; ok {
			delete(subs, obs.id)
			if len(subs) == 0 {
				delete(b.subscriptions, taskID)
			}
		}
	}
	close(obs.Ch)
}

// Subscribe registers obs to receive events for a specific task_id, in
// addition to anything it already receives via broadcast.
func (b *Bus) Subscribe(obs *Observer, taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.observers[obs.id]; !ok {
		return
	}
	subs, ok := b.subscriptions[taskID]
	if !ok {
		subs = make(map[uint64]*Observer)
		b.subscriptions[taskID] = subs
	}
	subs[obs.id] = obs
}

// Unsubscribe removes obs from a specific task_id's subscriber set.
func (b *Bus) Unsubscribe(obs *Observer, taskID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscriptions[taskID]
	if !ok {
		return
	}
	delete(subs, obs.id)
	if len(subs) == 0 {
		delete(b.subscriptions, taskID)
	}
}

// Broadcast delivers event to every connected observer, best-effort.
func (b *Bus) Broadcast(event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, obs := range b.observers {
		b.sendLocked(obs, event)
	}
}

// SendToTaskSubscribers delivers event only to observers subscribed to
// taskID, best-effort.
func (b *Bus) SendToTaskSubscribers(taskID string, event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscriptions[taskID]
	if !ok {
		return
	}
	for _, obs := range subs {
		b.sendLocked(obs, event)
	}
}

// sendLocked attempts a non-blocking send; on a full buffer it disconnects
// the observer instead of waiting. Must be called with mu held.
func (b *Bus) sendLocked(obs *Observer, event *Event) {
	select {
	case obs.Ch <- event:
	default:
		logger.Get().Warn().Uint64("observer_id", obs.id).Msg("observer buffer full, disconnecting")
		b.disconnectLocked(obs)
	}
}

// ObserverCount returns the number of currently connected observers.
func (b *Bus) ObserverCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.observers)
}
