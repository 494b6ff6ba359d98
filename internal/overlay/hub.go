// Package overlay broadcasts subtitle and status events to websocket clients
// that render the on-screen overlay.
package overlay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/livesub/internal/domain"
)

// Message types sent to overlay clients.
const (
	TypeNewSubtitle        = "NEW_SUBTITLE"
	TypeInterimSubtitle    = "INTERIM_SUBTITLE"
	TypeCaptureStarted     = "CAPTURE_STARTED"
	TypeCaptureStopped     = "CAPTURE_STOPPED"
	TypeCaptureError       = "CAPTURE_ERROR"
	TypeTranscriptionError = "TRANSCRIPTION_ERROR"
	TypeDisplaySettings    = "DISPLAY_SETTINGS"
)

const (
	clientBuffer = 64
	writeWait    = 5 * time.Second
	pingPeriod   = 30 * time.Second
	pongWait     = 2 * pingPeriod
)

// Message is one frame on the overlay feed.
type Message struct {
	Type     string                `json:"type"`
	Subtitle *domain.SubtitleEvent `json:"subtitle,omitempty"`
	Status   *domain.StatusEvent   `json:"status,omitempty"`
	Display  *domain.Display       `json:"display,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans events out to connected clients. Slow clients are dropped rather
// than allowed to stall the sessions feeding the hub.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	display domain.Display
}

// NewHub constructs a hub seeded with the display record sent to new clients.
func NewHub(display domain.Display, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		logger:  logger.With("component", "overlay"),
		clients: make(map[*client]struct{}),
		display: display,
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Display returns the current display record.
func (h *Hub) Display() domain.Display {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.display
}

// SetDisplay stores the display record and pushes it to every client.
func (h *Hub) SetDisplay(display domain.Display) {
	h.mu.Lock()
	h.display = display
	h.mu.Unlock()
	h.broadcast(Message{Type: TypeDisplaySettings, Display: &display})
}

// Status implements relay.Relay.
func (h *Hub) Status(_ context.Context, ev domain.StatusEvent) {
	msgType, ok := statusType(ev.Kind)
	if !ok {
		return
	}
	h.broadcast(Message{Type: msgType, Status: &ev})
}

// Subtitle implements relay.Relay.
func (h *Hub) Subtitle(_ context.Context, ev domain.SubtitleEvent) {
	msgType := TypeNewSubtitle
	if ev.Interim {
		msgType = TypeInterimSubtitle
	}
	h.broadcast(Message{Type: msgType, Subtitle: &ev})
}

func statusType(kind domain.StatusKind) (string, bool) {
	switch kind {
	case domain.StatusStarted:
		return TypeCaptureStarted, true
	case domain.StatusStopped:
		return TypeCaptureStopped, true
	case domain.StatusError:
		return TypeCaptureError, true
	case domain.StatusTranscriptionError:
		return TypeTranscriptionError, true
	default:
		return "", false
	}
}

func (h *Hub) broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("encode overlay message failed", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("overlay client too slow; disconnecting")
			delete(h.clients, c)
			c.close()
		}
	}
}

// attach registers conn and queues the display record as its first frame.
func (h *Hub) attach(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	display := h.display
	if payload, err := json.Marshal(Message{Type: TypeDisplaySettings, Display: &display}); err == nil {
		c.send <- payload
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// closeAll disconnects every client.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) writeLoop(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("overlay write failed", "error", err)
				h.detach(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.detach(c)
				return
			}
		}
	}
}

// readLoop drains client frames so close and pong control frames are handled.
func (h *Hub) readLoop(c *client) {
	defer h.detach(c)
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
