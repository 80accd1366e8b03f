package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flowtask/taskqueue-go/internal/eventbus"
	"github.com/flowtask/taskqueue-go/internal/logger"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 1024

	// Send buffer size
	sendBufferSize = 256
)

// Client represents a single WebSocket connection. It owns a dedicated
// eventbus observer and forwards whatever arrives on it to the socket.
//
// send is never closed: EventPump and writeControl run on different
// goroutines than WritePump, and closing a channel a concurrent sender
// might still write to is a data race. Disconnection is instead signaled
// by closing closed, which every sender and WritePump itself select on.
type Client struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	obs  *eventbus.Observer
	send chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wires conn to a freshly connected observer on bus.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		ID:     uuid.New().String()[:8],
		hub:    hub,
		conn:   conn,
		obs:    hub.bus.Connect(),
		send:   make(chan []byte, sendBufferSize),
		closed: make(chan struct{}),
	}
}

// close marks the client as disconnected. Safe to call more than once or
// concurrently.
func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.closed) })
}

// inboundMessage is the shape accepted from the client.
type inboundMessage struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
}

// outboundControl is the reply shape for subscribe/unsubscribe/ping.
type outboundControl struct {
	Type   string `json:"type"`
	TaskID string `json:"task_id,omitempty"`
}

// ReadPump pumps inbound control messages from the connection until it
// fails, then unregisters the client. Events from obs.Ch are forwarded by
// EventPump, which runs on its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Get().Error().Err(err).Str("client_id", c.ID).Msg("websocket read error")
			}
			break
		}
		c.handleMessage(message)
	}
}

func (c *Client) handleMessage(message []byte) {
	var in inboundMessage
	if err := json.Unmarshal(message, &in); err != nil {
		logger.Get().Debug().Str("client_id", c.ID).Str("message", string(message)).Msg("ignoring malformed client message")
		return
	}

	switch in.Type {
	case "subscribe":
		if in.TaskID == "" {
			return
		}
		c.hub.bus.Subscribe(c.obs, in.TaskID)
		c.writeControl(outboundControl{Type: "subscribed", TaskID: in.TaskID})
	case "unsubscribe":
		if in.TaskID == "" {
			return
		}
		c.hub.bus.Unsubscribe(c.obs, in.TaskID)
		c.writeControl(outboundControl{Type: "unsubscribed", TaskID: in.TaskID})
	case "ping":
		c.writeControl(outboundControl{Type: "pong"})
	default:
		logger.Get().Debug().Str("client_id", c.ID).Str("type", in.Type).Msg("unknown websocket message type")
	}
}

func (c *Client) writeControl(v outboundControl) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	case <-c.closed:
	default:
	}
}

// EventPump forwards events delivered on the client's observer channel to
// its send buffer until the observer is disconnected.
func (c *Client) EventPump() {
	for event := range c.obs.Ch {
		b, err := event.ToJSON()
		if err != nil {
			continue
		}
		select {
		case c.send <- b:
		case <-c.closed:
			return
		default:
			logger.Get().Warn().Str("client_id", c.ID).Msg("client send buffer full, dropping event")
		}
	}
}

// WritePump pumps messages from c.send to the WebSocket connection until
// the client disconnects.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-c.closed:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
