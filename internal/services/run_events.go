package services

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// RunEvent is one run status transition pushed to dashboard clients.
type RunEvent struct {
	RunID     string    `json:"run_id"`
	ZapID     string    `json:"zap_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type runEventClient struct {
	id   string
	conn *websocket.Conn
	send chan RunEvent
}

// RunEventsHub fans run status transitions out to connected WebSocket
// clients. Publishing never blocks the execution path: slow clients get
// dropped, not waited for. A nil hub is safe to publish to.
type RunEventsHub struct {
	clients    map[string]*runEventClient
	broadcast  chan RunEvent
	register   chan *runEventClient
	unregister chan *runEventClient
	mutex      sync.RWMutex
	logger     *logrus.Logger
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin checks belong to the fronting proxy
	},
}

func NewRunEventsHub(logger *logrus.Logger) *RunEventsHub {
	if logger == nil {
		logger = logrus.New()
	}
	return &RunEventsHub{
		clients:    make(map[string]*runEventClient),
		broadcast:  make(chan RunEvent, 64),
		register:   make(chan *runEventClient),
		unregister: make(chan *runEventClient),
		logger:     logger,
	}
}

// Run pumps registrations and broadcasts. Start once as a goroutine.
func (h *RunEventsHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client.id] = client
			h.mutex.Unlock()
			h.logger.Debugf("run events: client %s connected", client.id)
		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mutex.Unlock()
			h.logger.Debugf("run events: client %s disconnected", client.id)
		case event := <-h.broadcast:
			h.mutex.RLock()
			for _, client := range h.clients {
				select {
				case client.send <- event:
				default:
					// Slow consumer; it will be unregistered by its writer.
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// Publish enqueues an event for broadcast. Non-blocking; events are best
// effort and the run record remains the source of truth.
func (h *RunEventsHub) Publish(event RunEvent) {
	if h == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Debug("run events: broadcast buffer full, dropping event")
	}
}

// ClientCount returns the number of connected clients.
func (h *RunEventsHub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades the request and streams run events until the
// client goes away.
func (h *RunEventsHub) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("run events: upgrade failed: %v", err)
		return
	}
	client := &runEventClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan RunEvent, 16),
	}
	h.register <- client

	go h.writePump(client)
	go h.readPump(client)
}

func (h *RunEventsHub) writePump(client *runEventClient) {
	defer client.conn.Close()
	for event := range client.send {
		if err := client.conn.WriteJSON(event); err != nil {
			h.unregister <- client
			return
		}
	}
}

func (h *RunEventsHub) readPump(client *runEventClient) {
	defer func() {
		h.unregister <- client
		client.conn.Close()
	}()
	for {
		// Clients only listen; reads exist to detect disconnects.
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}
