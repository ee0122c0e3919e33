// Package events fans server-side mutations out to every connected client so
// their views stay consistent without polling.
package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event names emitted by the rest of the system
const (
	EventItemCreated    = "item-created"
	EventItemDeleted    = "item-deleted"
	EventItemsReordered = "items-reordered"

	eventPing = "ping"
)

const (
	// sendBuffer is the per-client outbound queue depth. A client that lets
	// this many frames pile up is treated as stalled and evicted.
	sendBuffer = 32
	// DefaultKeepAliveInterval defeats idle-connection timeouts in proxies
	DefaultKeepAliveInterval = 25 * time.Second
)

// WriteFunc pushes one framed event to a client. It must be safe to call
// from the hub's delivery goroutine for that client.
type WriteFunc func(frame []byte) error

// CloseFunc tears the client's connection down; it may be called more than once
type CloseFunc func()

type client struct {
	id    string
	send  chan []byte
	write WriteFunc
	close CloseFunc
	once  sync.Once
}

// Hub broadcasts framed events to registered clients. Each client has its own
// outbound queue and delivery goroutine, so one stuck connection never delays
// the others or the mutation that triggered the broadcast. Construct it with
// NewHub and pass it to every component that publishes.
type Hub struct {
	mu      sync.Mutex
	clients map[string]*client
	log     *logrus.Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// NewHub creates a hub and starts its keep-alive ticker
func NewHub(keepAlive time.Duration, log *logrus.Logger) *Hub {
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAliveInterval
	}
	h := &Hub{
		clients: make(map[string]*client),
		log:     log,
		done:    make(chan struct{}),
	}
	h.wg.Add(1)
	go h.keepAliveLoop(keepAlive)
	return h
}

// Register adds a client. Frames queued for the client are delivered by a
// dedicated goroutine; a failed write or a full queue unregisters it.
func (h *Hub) Register(clientID string, write WriteFunc, close CloseFunc) {
	c := &client{
		id:    clientID,
		send:  make(chan []byte, sendBuffer),
		write: write,
		close: close,
	}

	h.mu.Lock()
	if old, ok := h.clients[clientID]; ok {
		old.shutdown()
	}
	h.clients[clientID] = c
	h.mu.Unlock()

	h.wg.Add(1)
	go h.deliver(c)
}

// Unregister removes and closes a client; unknown ids are a no-op
func (h *Hub) Unregister(clientID string) {
	h.mu.Lock()
	c, ok := h.clients[clientID]
	if ok {
		delete(h.clients, clientID)
	}
	h.mu.Unlock()
	if ok {
		c.shutdown()
	}
}

// Broadcast serializes the payload once and queues the frame for every
// registered client. Delivery failures are handled per-client and never
// propagate to the caller.
func (h *Hub) Broadcast(event string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.WithError(err).WithField("event", event).Warn("failed to encode event payload")
		return
	}
	h.send(frame(event, data))
}

func (h *Hub) send(frame []byte) {
	h.mu.Lock()
	var stalled []*client
	for id, c := range h.clients {
		select {
		case c.send <- frame:
		default:
			// Queue full: the client is stalled. Evict it rather than
			// block delivery to everyone else.
			delete(h.clients, id)
			stalled = append(stalled, c)
		}
	}
	h.mu.Unlock()

	for _, c := range stalled {
		h.log.WithField("client", c.id).Warn("evicting stalled event client")
		c.shutdown()
	}
}

// deliver drains one client's queue until the queue closes or a write fails
func (h *Hub) deliver(c *client) {
	defer h.wg.Done()
	for data := range c.send {
		if err := c.write(data); err != nil {
			h.log.WithError(err).WithField("client", c.id).Debug("event write failed, dropping client")
			h.Unregister(c.id)
			return
		}
	}
}

func (h *Hub) keepAliveLoop(interval time.Duration) {
	defer h.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	ping := frame(eventPing, []byte("{}"))
	for {
		select {
		case <-ticker.C:
			h.send(ping)
		case <-h.done:
			return
		}
	}
}

// ClientCount reports how many clients are currently registered
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close stops the keep-alive loop and disconnects every client
func (h *Hub) Close() {
	close(h.done)
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*client)
	h.mu.Unlock()
	for _, c := range clients {
		c.shutdown()
	}
	h.wg.Wait()
}

// shutdown closes the queue (ending the delivery goroutine) and the connection
func (c *client) shutdown() {
	c.once.Do(func() {
		close(c.send)
		c.close()
	})
}

// frame renders one server-sent event
func frame(event string, data []byte) []byte {
	return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event, data))
}
