package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/clawflow/clawflow/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeTimeout  = 10 * time.Second
	clientSendBuf = 256
)

// Hub fans a single stream of Engine/Orchestrator/VCS events out to every
// connected renderer over its own websocket connection.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan models.Event
}

// NewHub builds an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// Broadcast is the EventSink wired into the Pipeline Engine, Group
// Orchestrator, and VCS Adapter: every event is pushed to every connected
// client's send buffer, dropping the event for any client whose buffer is
// full rather than blocking the rest of the fleet.
func (h *Hub) Broadcast(ev models.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			slog.Warn("api: dropping event for slow client", "kind", ev.Kind)
		}
	}
}

// ServeWS upgrades the request to a websocket connection and pumps
// broadcast events to it until the client disconnects.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Warn("api: websocket upgrade failed", "error", err)
		return
	}

	cl := &client{conn: conn, send: make(chan models.Event, clientSendBuf)}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()

	go h.readPump(cl)
	h.writePump(cl)
}

func (h *Hub) readPump(cl *client) {
	defer h.remove(cl)
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	defer cl.conn.Close()
	for ev := range cl.send {
		_ = cl.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
	}
}
