package events

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler serves the realtime event stream
type Handler struct {
	hub *Hub
}

// NewHandler creates a new events handler
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// Stream opens a server-sent-events connection and registers it with the hub
// @Summary Realtime event stream
// @Description Long-lived SSE connection emitting item-created, item-deleted and items-reordered events plus periodic keep-alives
// @Tags events
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Router /events [get]
func (h *Handler) Stream(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming unsupported"})
		return
	}

	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-store")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	clientID := uuid.NewString()
	// closed signals the response writer must not be touched again. The
	// write func runs on the hub's delivery goroutine for this client; the
	// mutex orders it against teardown from the request goroutine.
	var mu sync.Mutex
	closed := false
	disconnected := make(chan struct{})

	write := func(frame []byte) error {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return errors.New("client disconnected")
		}
		if _, err := c.Writer.Write(frame); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}
	closeFn := func() {
		mu.Lock()
		if !closed {
			closed = true
			close(disconnected)
		}
		mu.Unlock()
	}

	h.hub.Register(clientID, write, closeFn)

	// Tell the client the stream is live before any mutation arrives
	if err := write(frame("ready", []byte("{}"))); err != nil {
		h.hub.Unregister(clientID)
		return
	}

	select {
	case <-c.Request.Context().Done():
		h.hub.Unregister(clientID)
	case <-disconnected:
	}
}

// RegisterRoutes registers the event stream route
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/events", h.Stream)
}
