package handlers

import (
	"net/http"
	"sync"
	"time"

	"auction-chat/internal/domain"
	"auction-chat/pkg/logger"
	"auction-chat/pkg/utils"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a frame to the client.
	writeWait = 10 * time.Second

	// Per-client send buffer; a client that falls this far behind is dropped.
	sendBufferSize = 64
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local UI only
	},
}

type streamClient struct {
	id   string
	conn *websocket.Conn
	send chan *domain.EngineEvent

	done     chan struct{}
	doneOnce sync.Once
}

func (c *streamClient) close() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// StreamHub fans engine events out to connected UI clients over a local
// WebSocket. It also implements domain.Notifier: toasts, sound cues and
// native-notification requests are delivered to the UI as stream frames.
//
// Delivery is best-effort. Each client has its own buffered send channel
// and write pump; a client that stops reading overflows its buffer and is
// disconnected, so a stalled UI never blocks the event source.
type StreamHub struct {
	log logger.Logger

	mu      sync.RWMutex
	clients map[string]*streamClient

	subscribe func() (<-chan *domain.EngineEvent, func())
}

func NewStreamHub(log logger.Logger) *StreamHub {
	return &StreamHub{
		log:     log,
		clients: make(map[string]*streamClient),
	}
}

// SetSource wires the engine's Subscribe func. Called once during startup,
// after the engine is constructed.
func (h *StreamHub) SetSource(subscribe func() (<-chan *domain.EngineEvent, func())) {
	h.subscribe = subscribe
}

// Run pumps engine events to all connected clients until the stream closes.
func (h *StreamHub) Run() {
	if h.subscribe == nil {
		h.log.Error("Stream hub started without an event source")
		return
	}

	events, unsubscribe := h.subscribe()
	defer unsubscribe()

	for event := range events {
		h.broadcast(event)
	}
}

func (h *StreamHub) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/ws/stream", h.HandleConnection)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	return router
}

func (h *StreamHub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("Failed to upgrade stream connection", "error", err)
		return
	}

	client := &streamClient{
		id:   utils.GenerateID("stream"),
		conn: conn,
		send: make(chan *domain.EngineEvent, sendBufferSize),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	h.log.Info("UI stream client connected", "client_id", client.id)

	go h.writePump(client)
	go h.readLoop(client)
}

// writePump owns all writes for one client. A deadline bounds every write
// so a dead peer cannot hold the pump.
func (h *StreamHub) writePump(client *streamClient) {
	for {
		select {
		case event := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(event); err != nil {
				h.log.Warn("Failed to send stream event", "client_id", client.id, "error", err)
				h.drop(client)
				return
			}
		case <-client.done:
			return
		}
	}
}

// readLoop drains inbound frames (the UI sends nothing meaningful) and
// unregisters the client when the socket closes.
func (h *StreamHub) readLoop(client *streamClient) {
	defer h.drop(client)

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *StreamHub) drop(client *streamClient) {
	h.mu.Lock()
	_, registered := h.clients[client.id]
	delete(h.clients, client.id)
	h.mu.Unlock()

	client.close()
	client.conn.Close()

	if registered {
		h.log.Info("UI stream client disconnected", "client_id", client.id)
	}
}

func (h *StreamHub) broadcast(event *domain.EngineEvent) {
	h.mu.RLock()
	clients := make([]*streamClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- event:
		case <-c.done:
		default:
			// Send buffer full: the client stopped reading. Disconnect it
			// rather than block the caller.
			h.log.Warn("Dropping stalled UI stream client", "client_id", c.id)
			h.drop(c)
		}
	}
}

func (h *StreamHub) emit(eventType domain.EngineEventType, payload interface{}) {
	h.broadcast(&domain.EngineEvent{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// domain.Notifier implementation

func (h *StreamHub) ShowToast(t *domain.Toast) error {
	h.emit(domain.EngineToast, t)
	return nil
}

func (h *StreamHub) ClearToast() error {
	h.emit(domain.EngineToastCleared, nil)
	return nil
}

func (h *StreamHub) PlayCue() error {
	h.emit(domain.EngineSoundCue, nil)
	return nil
}

func (h *StreamHub) PushNative(t *domain.Toast) error {
	// The UI shell requests notification permission on first use and
	// degrades silently when denied.
	h.emit(domain.EngineNative, t)
	return nil
}
