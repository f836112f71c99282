package server

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/itgyani/blogpulse/pulse/schedule"
)

// eventBuffer bounds queued job events; a full queue drops new events
const eventBuffer = 256

// Hub fans job events out to connected WebSocket clients
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	events     chan schedule.JobEvent
	done       chan struct{}
	logger     *zap.SugaredLogger

	mu    sync.RWMutex
	count int
}

// NewHub creates a hub. It delivers nothing until a Server runs it.
func NewHub(log *zap.SugaredLogger) *Hub {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan schedule.JobEvent, eventBuffer),
		done:       make(chan struct{}),
		logger:     log,
	}
}

// BroadcastJobEvent queues event for every connected client without blocking
// the scheduler. Events are dropped when the queue is full.
func (h *Hub) BroadcastJobEvent(event schedule.JobEvent) {
	select {
	case h.events <- event:
	default:
		h.logger.Debugw("Job event dropped, hub queue full", "type", event.Type, "job_id", event.JobID)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.setCount(0)
			return

		case client := <-h.register:
			h.clients[client] = true
			h.setCount(len(h.clients))
			h.logger.Infow("WebSocket client connected", "client_id", client.id, "clients", len(h.clients))

		case client := <-h.unregister:
			if h.clients[client] {
				delete(h.clients, client)
				close(client.send)
				h.setCount(len(h.clients))
				h.logger.Infow("WebSocket client disconnected", "client_id", client.id, "clients", len(h.clients))
			}

		case event := <-h.events:
			for client := range h.clients {
				select {
				case client.send <- event:
				default:
					// slow client: skip rather than stall the others
					h.logger.Debugw("Client send buffer full, event skipped", "client_id", client.id)
				}
			}
		}
	}
}

func (h *Hub) setCount(n int) {
	h.mu.Lock()
	h.count = n
	h.mu.Unlock()
}

// join registers c unless the hub has stopped
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters c; a stopped hub has already released it
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
