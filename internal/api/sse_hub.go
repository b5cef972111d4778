package api

import (
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"fctarget/internal"
)

// Run event types
const (
	EventQueued    = "queued"
	EventStarted   = "started"
	EventCompleted = "completed"
	EventFailed    = "failed"
	EventReport    = "report"
)

// SSEClient represents a connected SSE client
type SSEClient struct {
	RunID   string
	Channel chan RunEvent
}

// RunEvent is a lifecycle event of a targeting run streamed over SSE
type RunEvent struct {
	RunID     string                 `json:"run_id"`
	EventType string                 `json:"event_type"`
	Status    string                 `json:"status,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// SSEHub manages Server-Sent Events for run progress
type SSEHub struct {
	clients    map[string]map[chan RunEvent]bool
	clientsMu  sync.RWMutex
	register   chan SSEClient
	unregister chan SSEClient
	broadcast  chan RunEvent
	done       chan struct{}
	logger     *internal.Logger
}

// NewSSEHub creates a new SSE hub and starts its loop
func NewSSEHub(logger *internal.Logger) *SSEHub {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	hub := &SSEHub{
		clients:    make(map[string]map[chan RunEvent]bool),
		register:   make(chan SSEClient, 10),
		unregister: make(chan SSEClient, 10),
		broadcast:  make(chan RunEvent, 100),
		done:       make(chan struct{}),
		logger:     logger.Component("sse"),
	}

	go hub.run()
	return hub
}

// Close stops the hub loop
func (h *SSEHub) Close() {
	close(h.done)
}

func (h *SSEHub) run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			if h.clients[client.RunID] == nil {
				h.clients[client.RunID] = make(map[chan RunEvent]bool)
			}
			h.clients[client.RunID][client.Channel] = true
			h.logger.Debug("[SSE] client registered for run %s (total clients: %d)",
				client.RunID, len(h.clients[client.RunID]))
			h.clientsMu.Unlock()

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if clients, exists := h.clients[client.RunID]; exists {
				delete(clients, client.Channel)
				close(client.Channel)
				if len(clients) == 0 {
					delete(h.clients, client.RunID)
				}
			}
			h.clientsMu.Unlock()

		case event := <-h.broadcast:
			h.clientsMu.RLock()
			for clientChan := range h.clients[event.RunID] {
				select {
				case clientChan <- event:
				default:
					h.logger.Warn("[SSE] client channel full for run %s, skipping event", event.RunID)
				}
			}
			h.clientsMu.RUnlock()
		}
	}
}

// Broadcast sends an event to all clients following a run
func (h *SSEHub) Broadcast(event RunEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("[SSE] broadcast channel full, dropping event: %s", event.EventType)
	}
}

// HandleSSE streams the events of the run named by the :id path parameter
func (h *SSEHub) HandleSSE(c *gin.Context) {
	runID := c.Param("id")

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	clientChan := make(chan RunEvent, 10)

	select {
	case h.register <- SSEClient{RunID: runID, Channel: clientChan}:
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "SSE hub registration failed"})
		return
	}

	defer func() {
		select {
		case h.unregister <- SSEClient{RunID: runID, Channel: clientChan}:
		default:
		}
	}()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case event, ok := <-clientChan:
			if !ok {
				return false
			}
			eventJSON, err := json.Marshal(event)
			if err != nil {
				h.logger.Warn("[SSE] failed to marshal event: %v", err)
				return true
			}
			c.SSEvent("run", string(eventJSON))
			return event.EventType != EventCompleted && event.EventType != EventFailed

		case <-time.After(30 * time.Second):
			c.SSEvent("ping", `{"status": "alive", "timestamp": "`+time.Now().Format(time.RFC3339)+`"}`)
			return true

		case <-ctx.Done():
			return false
		}
	})
}

// ClientCount returns the number of clients following a run
func (h *SSEHub) ClientCount(runID string) int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients[runID])
}
