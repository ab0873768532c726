package streaming

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"openprotect-lab/internal/domain/models"
	"openprotect-lab/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
	clientBuffer   = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS is enforced by the router
		return true
	},
}

// BacklogFunc returns recent events, newest first
type BacklogFunc func(limit int) []models.ServerEvent

// WebSocketHub manages WebSocket connections
type WebSocketHub struct {
	logger      *logger.Logger
	backlog     BacklogFunc
	backlogSize int

	mu      sync.RWMutex
	clients map[*WebSocketClient]bool

	broadcast chan *models.ServerEvent
}

// WebSocketClient represents a connected WebSocket client
type WebSocketClient struct {
	hub    *WebSocketHub
	conn   *websocket.Conn
	send   chan []byte
	logger *logger.Logger

	mu           sync.RWMutex
	subscription *Subscription
}

// NewWebSocketHub creates a new WebSocket hub. When backlog is set each new
// client first receives up to backlogSize recent events in timeline order.
func NewWebSocketHub(backlog BacklogFunc, backlogSize int, log *logger.Logger) *WebSocketHub {
	return &WebSocketHub{
		logger:      log.WithComponent("websocket-hub"),
		backlog:     backlog,
		backlogSize: backlogSize,
		clients:     make(map[*WebSocketClient]bool),
		broadcast:   make(chan *models.ServerEvent, 256),
	}
}

// Run starts the hub's main loop
func (h *WebSocketHub) Run(ctx context.Context) {
	h.logger.Info().Msg("WebSocket hub started")

	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("WebSocket hub stopping")
			h.closeAllClients()
			return
		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// BroadcastEvent queues an event for every matching client
func (h *WebSocketHub) BroadcastEvent(event *models.ServerEvent) {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn().Uint64("seq", event.Seq).Msg("broadcast channel full, dropping event")
	}
}

func (h *WebSocketHub) broadcastEvent(event *models.ServerEvent) {
	data, err := newMessage(MessageTypeEvent, event)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		if client.matches(event) {
			select {
			case client.send <- data:
			default:
				// Client buffer full, skip
			}
		}
	}
}

func (h *WebSocketHub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

func (h *WebSocketHub) registerClient(client *WebSocketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	h.logger.Info().Int("clients", len(h.clients)).Msg("client connected")
}

func (h *WebSocketHub) unregisterClient(client *WebSocketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.logger.Info().Int("clients", len(h.clients)).Msg("client disconnected")
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWebSocket handles WebSocket connections
func (h *WebSocketHub) ServeWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to upgrade connection")
		return
	}

	client := &WebSocketClient{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, clientBuffer),
		logger: h.logger,
	}

	h.sendBacklog(client)
	h.registerClient(client)

	go client.writePump()
	go client.readPump()
}

func (h *WebSocketHub) sendBacklog(client *WebSocketClient) {
	if h.backlog == nil || h.backlogSize <= 0 {
		return
	}
	recent := h.backlog(h.backlogSize)
	for i := len(recent) - 1; i >= 0; i-- {
		data, err := newMessage(MessageTypeEvent, &recent[i])
		if err != nil {
			continue
		}
		select {
		case client.send <- data:
		default:
			return
		}
	}
}

func (c *WebSocketClient) matches(event *models.ServerEvent) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscription.Matches(event)
}

func (c *WebSocketClient) reply(msgType string, payload any) {
	data, err := newMessage(msgType, payload)
	if err != nil {
		return
	}
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// readPump reads subscription updates from the client
func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("websocket read error")
			}
			break
		}

		var sub Subscription
		if err := json.Unmarshal(message, &sub); err != nil {
			c.reply(MessageTypeError, map[string]string{"error": "invalid subscription"})
			continue
		}
		if err := sub.Validate(); err != nil {
			c.reply(MessageTypeError, map[string]string{"error": err.Error()})
			continue
		}

		c.mu.Lock()
		c.subscription = &sub
		c.mu.Unlock()
		c.reply(MessageTypeSubscribed, sub)
		c.logger.Debug().Int("types", len(sub.Types)).Msg("subscription updated")
	}
}

// writePump writes messages to the client, one JSON message per frame
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
