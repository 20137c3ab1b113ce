package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const writeWait = 5 * time.Second

// ProgressEvent is one round-by-round update pushed to websocket clients.
type ProgressEvent struct {
	RunID         string    `json:"run_id"`
	Function      string    `json:"function"`
	Trainer       string    `json:"trainer"`
	Round         int       `json:"round"`
	Total         int       `json:"total"`
	RelativeError float64   `json:"err_rel"`
	Evaluations   int       `json:"evaluations"`
	Timestamp     time.Time `json:"timestamp"`
}

// ProgressHub fans training progress out to connected websocket clients.
// Slow or dead clients are dropped rather than allowed to stall a run.
type ProgressHub struct {
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	closed   bool
	log      zerolog.Logger
}

// NewProgressHub returns an empty hub. The monitor binds to localhost, so
// cross-origin upgrades are accepted.
func NewProgressHub(log zerolog.Logger) *ProgressHub {
	return &ProgressHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: make(map[*websocket.Conn]struct{}),
		log:     log.With().Str("component", "progress_hub").Logger(),
	}
}

// Serve upgrades the connection and registers the client until it closes.
func (h *ProgressHub) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[conn] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.log.Info().Int("clients", count).Msg("progress client connected")

	// Drain incoming frames so pings and close frames are processed.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends the event to every connected client.
func (h *ProgressHub) Broadcast(ev ProgressEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			h.log.Debug().Err(err).Msg("dropping stalled progress client")
			h.drop(conn)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *ProgressHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and rejects future ones.
func (h *ProgressHub) Close() {
	h.mu.Lock()
	h.closed = true
	conns := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		conns = append(conns, conn)
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "server shutdown"))
		conn.Close()
	}
}

func (h *ProgressHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	_, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()

	if ok {
		conn.Close()
	}
}
