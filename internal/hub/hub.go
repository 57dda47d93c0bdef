// Package hub tracks connected subscribers and fans events out to them.
package hub

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/agreemo/dashboard/backend/internal/model"
)

const defaultQueueSize = 32

// Client is one subscriber's outbound queue.
type Client struct {
	ID   string
	send chan model.Event
	once sync.Once
}

func NewClient(queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Client{
		ID:   uuid.NewString(),
		send: make(chan model.Event, queueSize),
	}
}

// Messages is closed once the client is unregistered.
func (c *Client) Messages() <-chan model.Event {
	return c.send
}

func (c *Client) close() {
	c.once.Do(func() { close(c.send) })
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *slog.Logger
}

func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{clients: map[string]*Client{}, logger: logger}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c.ID] = c
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("subscriber connected", "subscriber", c.ID, "subscribers", n)
}

// Unregister removes a client and closes its queue. Unknown ids are ignored.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	c, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		c.close()
	}
	n := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Info("subscriber disconnected", "subscriber", id, "subscribers", n)
	}
}

// Publish queues evt for every client without blocking. A client whose
// queue is full misses the event.
func (h *Hub) Publish(evt model.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.clients {
		select {
		case c.send <- evt:
		default:
			h.logger.Warn("subscriber queue full, dropping event",
				"subscriber", id, "event", evt.Name)
		}
	}
}

// SendTo queues evt for a single client. It reports false when the client
// is unknown or its queue is full.
func (h *Hub) SendTo(id string, evt model.Event) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	if !ok {
		return false
	}
	select {
	case c.send <- evt:
		return true
	default:
		h.logger.Warn("subscriber queue full, dropping event",
			"subscriber", id, "event", evt.Name)
		return false
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
