// Package eventtransport mirrors in-process event bus activity onto an
// external Redis pub/sub channel. It is optional and sits strictly
// outside the core: no core operation depends on it, and its failures
// are logged, never propagated to the task or its caller.
package eventtransport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/flowtask/taskqueue-go/internal/eventbus"
	"github.com/flowtask/taskqueue-go/internal/logger"
	"github.com/flowtask/taskqueue-go/internal/metrics"
)

const channelPrefix = "taskqueue:events:"

// RedisMirror subscribes to an eventbus.Bus as a regular broadcast
// observer and republishes every event it sees onto Redis pub/sub, so a
// second process (e.g. a remote WebSocket hub) can observe the same
// event stream without sharing memory with this one.
type RedisMirror struct {
	client *redis.Client
	bus    *eventbus.Bus
	obs    *eventbus.Observer
}

// NewRedisMirror creates a mirror publishing bus events through client.
func NewRedisMirror(client *redis.Client, bus *eventbus.Bus) *RedisMirror {
	return &RedisMirror{client: client, bus: bus}
}

// Run connects to bus and republishes events until ctx is cancelled.
// Intended to be run in its own goroutine.
func (m *RedisMirror) Run(ctx context.Context) {
	m.obs = m.bus.Connect()
	defer m.bus.Disconnect(m.obs)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-m.obs.Ch:
			if !ok {
				return
			}
			m.publish(ctx, event)
		}
	}
}

func (m *RedisMirror) publish(ctx context.Context, event *eventbus.Event) {
	data, err := event.ToJSON()
	if err != nil {
		logger.Get().Warn().Err(err).Msg("eventtransport: failed to serialize event")
		return
	}

	channel := channelName(event.Type)
	if err := m.client.Publish(ctx, channel, data).Err(); err != nil {
		metrics.RecordRedisPublishError(channel)
		logger.Get().Warn().Err(err).Str("channel", channel).Msg("eventtransport: failed to publish event")
		return
	}

	logger.Get().Debug().Str("channel", channel).Str("type", string(event.Type)).Msg("eventtransport: mirrored event")
}

func channelName(eventType eventbus.EventType) string {
	return fmt.Sprintf("%s%s", channelPrefix, eventType)
}

// Subscribe opens a Redis pub/sub subscription to every event type's
// channel for an external consumer process, returning decoded events on
// a buffered channel that closes when ctx is cancelled.
func Subscribe(ctx context.Context, client *redis.Client) (<-chan *eventbus.Event, error) {
	pattern := channelPrefix + "*"
	pubsub := client.PSubscribe(ctx, pattern)
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("eventtransport: subscribe: %w", err)
	}

	out := make(chan *eventbus.Event, 100)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event eventbus.Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					logger.Get().Warn().Err(err).Msg("eventtransport: failed to decode event")
					continue
				}
				select {
				case out <- &event:
				default:
					logger.Get().Warn().Msg("eventtransport: subscriber buffer full, dropping event")
				}
			}
		}
	}()

	return out, nil
}
