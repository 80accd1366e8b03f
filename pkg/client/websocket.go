package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flowtask/taskqueue-go/internal/eventbus"
)

// WebSocketClient streams task lifecycle events from the server's /ws
// endpoint.
type WebSocketClient struct {
	conn      *websocket.Conn
	baseURL   string
	events    chan *eventbus.Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	connected bool
	apiKey    string
}

func newWebSocketClient(baseURL, apiKey string) *WebSocketClient {
	return &WebSocketClient{
		baseURL: baseURL,
		events:  make(chan *eventbus.Event, 100),
		done:    make(chan struct{}),
		apiKey:  apiKey,
	}
}

// ConnectWebSocket dials the server's event stream.
func (c *Client) ConnectWebSocket(ctx context.Context) (*WebSocketClient, error) {
	ws := newWebSocketClient(c.baseURL, c.opts.apiKey)
	if err := ws.Connect(ctx); err != nil {
		return nil, err
	}
	return ws, nil
}

// Connect establishes the WebSocket connection, if not already connected.
func (ws *WebSocketClient) Connect(ctx context.Context) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	if ws.connected {
		return nil
	}

	u, err := url.Parse(ws.baseURL)
	if err != nil {
		return fmt.Errorf("client: invalid base URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/ws"

	headers := make(map[string][]string)
	if ws.apiKey != "" {
		headers["Authorization"] = []string{"Bearer " + ws.apiKey}
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return fmt.Errorf("client: websocket dial failed: %w", err)
	}

	ws.conn = conn
	ws.connected = true
	ws.done = make(chan struct{})

	go ws.readLoop()

	return nil
}

func (ws *WebSocketClient) readLoop() {
	defer func() {
		ws.mu.Lock()
		ws.connected = false
		ws.mu.Unlock()
		close(ws.events)
	}()

	for {
		select {
		case <-ws.done:
			return
		default:
			_, message, err := ws.conn.ReadMessage()
			if err != nil {
				return
			}

			var event eventbus.Event
			if err := json.Unmarshal(message, &event); err != nil {
				continue
			}

			select {
			case ws.events <- &event:
			case <-ws.done:
				return
			default:
				select {
				case <-ws.events:
				default:
				}
				ws.events <- &event
			}
		}
	}
}

// Events returns the channel of incoming task lifecycle events. It closes
// when the connection ends.
func (ws *WebSocketClient) Events() <-chan *eventbus.Event {
	return ws.events
}

// Close terminates the WebSocket connection.
func (ws *WebSocketClient) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		close(ws.done)
		ws.mu.Lock()
		defer ws.mu.Unlock()
		if ws.conn != nil {
			err = ws.conn.WriteMessage(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			)
			_ = ws.conn.Close()
		}
	})
	return err
}

// IsConnected reports whether the WebSocket is currently connected.
func (ws *WebSocketClient) IsConnected() bool {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.connected
}

// Subscribe requests events for a specific task id.
func (ws *WebSocketClient) Subscribe(taskID string) error {
	return ws.writeControl("subscribe", taskID)
}

// Unsubscribe cancels a task id subscription.
func (ws *WebSocketClient) Unsubscribe(taskID string) error {
	return ws.writeControl("unsubscribe", taskID)
}

// Ping sends a keepalive ping over the message-level protocol.
func (ws *WebSocketClient) Ping() error {
	return ws.writeControl("ping", "")
}

func (ws *WebSocketClient) writeControl(msgType, taskID string) error {
	ws.mu.RLock()
	defer ws.mu.RUnlock()

	if !ws.connected || ws.conn == nil {
		return fmt.Errorf("client: websocket not connected")
	}

	msg := map[string]interface{}{"type": msgType}
	if taskID != "" {
		msg["task_id"] = taskID
	}

	return ws.conn.WriteJSON(msg)
}
