package sse

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const clientBuffer = 16

// Event is one server-sent event. Topic is matched against client filters.
type Event struct {
	Topic string
	Name  string
	Data  interface{}
}

type client struct {
	id     string
	filter string
	events chan Event
}

// Manager fans events out to connected SSE clients. Slow clients drop events
// instead of blocking publishers.
type Manager struct {
	register   chan *client
	unregister chan *client
	broadcast  chan Event

	mu      sync.RWMutex
	clients map[string]*client
}

func NewManager() *Manager {
	return &Manager{
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Event, 64),
		clients:    make(map[string]*client),
	}
}

// Run processes registrations and broadcasts until ctx is done
func (m *Manager) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			m.mu.Lock()
			for id, c := range m.clients {
				close(c.events)
				delete(m.clients, id)
			}
			m.mu.Unlock()
			return
		case c := <-m.register:
			m.mu.Lock()
			m.clients[c.id] = c
			m.mu.Unlock()
		case c := <-m.unregister:
			m.mu.Lock()
			if _, ok := m.clients[c.id]; ok {
				close(c.events)
				delete(m.clients, c.id)
			}
			m.mu.Unlock()
		case evt := <-m.broadcast:
			m.mu.RLock()
			for _, c := range m.clients {
				if c.filter != "" && c.filter != evt.Topic {
					continue
				}
				select {
				case c.events <- evt:
				default:
				}
			}
			m.mu.RUnlock()
		}
	}
}

// Publish queues evt for delivery. It never blocks; when the queue is full the
// event is dropped and false is returned.
func (m *Manager) Publish(evt Event) bool {
	select {
	case m.broadcast <- evt:
		return true
	default:
		return false
	}
}

// ClientCount returns the number of connected clients
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// ServeHTTP streams events to the caller. An empty filter receives every topic.
func (m *Manager) ServeHTTP(c *gin.Context, filter string) {
	cl := &client{
		id:     uuid.New().String(),
		filter: filter,
		events: make(chan Event, clientBuffer),
	}

	ctx := c.Request.Context()
	select {
	case m.register <- cl:
	case <-ctx.Done():
		return
	}
	defer func() {
		select {
		case m.unregister <- cl:
		case <-time.After(time.Second):
		}
	}()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(25 * time.Second)
	defer heartbeat.Stop()

	c.SSEvent("connected", gin.H{"client_id": cl.id})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case evt, ok := <-cl.events:
			if !ok {
				return false
			}
			c.SSEvent(evt.Name, evt.Data)
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
