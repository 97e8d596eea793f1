package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/your-org/facewatch/internal/observability"
	"github.com/your-org/facewatch/pkg/dto"
)

const (
	resultsPrefix = "detection-results/"
	errorsPrefix  = "detection-error/"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

func ResultsTopic(cameraID string) string { return resultsPrefix + cameraID }
func ErrorsTopic(cameraID string) string  { return errorsPrefix + cameraID }

// Client represents a connected WebSocket client subscribed to one topic.
type Client struct {
	conn  *websocket.Conn
	send  chan []byte
	topic string
}

type message struct {
	topic string
	data  []byte
}

// Hub fans out camera-scoped events to subscribed WebSocket clients.
// A client only ever receives messages for its own topic.
type Hub struct {
	clients    map[string]map[*Client]struct{}
	broadcast  chan message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		broadcast:  make(chan message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run starts the hub event loop. Call this in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for topic, set := range h.clients {
				for client := range set {
					close(client.send)
					observability.WSConnections.Dec()
				}
				delete(h.clients, topic)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.topic]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.topic] = set
			}
			set[client] = struct{}{}
			h.mu.Unlock()
			observability.WSConnections.Inc()
			slog.Debug("ws client connected", "topic", client.topic)

		case client := <-h.unregister:
			if h.remove(client) {
				slog.Debug("ws client disconnected", "topic", client.topic)
			}

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients[msg.topic] {
				select {
				case client.send <- msg.data:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			for _, client := range slow {
				if h.remove(client) {
					observability.WSDropped.Inc()
					slog.Warn("ws client too slow, disconnected", "topic", client.topic)
				}
			}
		}
	}
}

func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.clients[client.topic]
	if !ok {
		return false
	}
	if _, ok := set[client]; !ok {
		return false
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.topic)
	}
	close(client.send)
	observability.WSConnections.Dec()
	return true
}

// Subscribers returns the number of clients on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// PublishResult sends a detection result to the camera's results topic.
// Having no subscribers is not an error.
func (h *Hub) PublishResult(ctx context.Context, cameraID string, r dto.DetectionResult) error {
	return h.publish(ctx, ResultsTopic(cameraID), dto.WSMessage{Type: "detection_result", Data: r})
}

// PublishError sends a pipeline failure to the camera's error topic.
func (h *Hub) PublishError(ctx context.Context, cameraID string, e dto.DetectionError) error {
	return h.publish(ctx, ErrorsTopic(cameraID), dto.WSMessage{Type: "detection_error", Data: e})
}

func (h *Hub) publish(ctx context.Context, topic string, msg dto.WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal ws message: %w", err)
	}

	select {
	case h.broadcast <- message{topic: topic, data: data}:
		return nil
	case <-h.done:
		return fmt.Errorf("hub stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleDetections subscribes the connection to a camera's detection results.
func (h *Hub) HandleDetections(c *gin.Context) {
	h.serve(c, ResultsTopic(c.Param("cameraId")))
}

// HandleErrors subscribes the connection to a camera's detection errors.
func (h *Hub) HandleErrors(c *gin.Context) {
	h.serve(c, ErrorsTopic(c.Param("cameraId")))
}

func (h *Hub) serve(c *gin.Context, topic string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "error", err)
		return
	}

	client := &Client{
		conn:  conn,
		send:  make(chan []byte, 64),
		topic: topic,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(h)
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
		// Incoming messages are ignored; the loop detects disconnection.
	}
}
