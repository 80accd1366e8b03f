package websocket

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/flowtask/taskqueue-go/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP requests to WebSocket connections on the hub.
type Handler struct {
	hub *Hub
}

// NewHandler creates a Handler serving hub's event stream.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeWS upgrades the request and starts the client's pumps.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Get().Error().Err(err).Msg("failed to upgrade websocket connection")
		return
	}

	client := NewClient(h.hub, conn)
	h.hub.Register(client)

	go client.EventPump()
	go client.WritePump()
	go client.ReadPump()

	logger.Get().Info().
		Str("client_id", client.ID).
		Str("remote_addr", r.RemoteAddr).
		Msg("websocket client connected")
}
