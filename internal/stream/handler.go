// Package stream serves live execution updates over WebSocket connections.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"n8n-mcp/backend/internal/monitor"
	"n8n-mcp/backend/pkg/models"
)

// MessageSubscribe is the only inbound message type.
const MessageSubscribe = "subscribe-execution"

const writeTimeout = 10 * time.Second

// ErrInvalidMessage is reported to the client when an inbound message cannot
// be understood.
var ErrInvalidMessage = errors.New("Invalid message format")

// Subscriber streams execution snapshots to a publisher until the execution
// is terminal or ctx is cancelled.
type Subscriber interface {
	Subscribe(ctx context.Context, id string, pub monitor.Publisher) error
}

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Message is an inbound client message.
type Message struct {
	Type        string    `json:"type"`
	ExecutionID models.ID `json:"executionId"`
}

// Handler upgrades HTTP requests to WebSocket connections and runs one
// subscription per subscribe message. Every subscription of a connection
// ends when the connection closes.
type Handler struct {
	subscriber Subscriber
	logger     Logger
	upgrader   websocket.Upgrader
}

// NewHandler creates a Handler.
func NewHandler(subscriber Subscriber, logger Logger) *Handler {
	return &Handler{
		subscriber: subscriber,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	c := &conn{ws: ws}
	defer ws.Close()

	// r.Context() is not tied to the hijacked connection.
	ctx, cancel := context.WithCancel(context.Background())
	var subs sync.WaitGroup
	defer func() {
		cancel()
		subs.Wait()
	}()

	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr)
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			h.logger.Debug("websocket client disconnected", "remote", r.RemoteAddr, "error", err)
			return
		}

		msg, err := parseMessage(data)
		if err != nil {
			if werr := c.send(monitor.Update{Type: monitor.UpdateError, Error: err.Error()}); werr != nil {
				return
			}
			continue
		}
		if msg.Type != MessageSubscribe {
			h.logger.Debug("ignoring websocket message", "type", msg.Type)
			continue
		}

		subs.Add(1)
		go func(id string) {
			defer subs.Done()
			if err := h.subscriber.Subscribe(ctx, id, c); err != nil && ctx.Err() == nil {
				h.logger.Warn("execution subscription ended", "executionId", id, "error", err)
			}
		}(msg.ExecutionID.String())
	}
}

func parseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, ErrInvalidMessage
	}
	if msg.Type == MessageSubscribe && msg.ExecutionID == "" {
		return nil, ErrInvalidMessage
	}
	return &msg, nil
}

// conn serializes writes; gorilla connections allow one concurrent writer.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// Publish writes one update to the client.
func (c *conn) Publish(_ context.Context, update monitor.Update) error {
	return c.send(update)
}

func (c *conn) send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteJSON(v)
}
