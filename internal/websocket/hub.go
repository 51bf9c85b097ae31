package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cx-tal-miterani/rail-booking-system/internal/booking"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeProgress  MessageType = "booking_progress"
	MessageTypeConfirmed MessageType = "booking_confirmed"
	MessageTypeFailed    MessageType = "booking_failed"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType   `json:"type"`
	SessionID string        `json:"sessionId"`
	From      booking.State `json:"from"`
	To        booking.State `json:"to"`
	PNR       string        `json:"pnr,omitempty"`
	Message   string        `json:"message,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// MessageFor converts a coordinator progress event into a push message
func MessageFor(p booking.Progress) *Message {
	msg := &Message{
		Type:      MessageTypeProgress,
		SessionID: p.SessionID,
		From:      p.From,
		To:        p.To,
		PNR:       p.PNR,
		Timestamp: p.At.UnixMilli(),
	}
	switch p.To {
	case booking.StateConfirmed:
		msg.Type = MessageTypeConfirmed
		msg.Message = booking.MsgConfirmed
	case booking.StatePaymentInProgress:
		msg.Message = booking.MsgProcessing
	case booking.StateIssuanceFailedAfterPayment:
		msg.Type = MessageTypeFailed
		msg.Message = booking.MsgIssuanceFailed
	case booking.StatePaymentFailed:
		msg.Type = MessageTypeFailed
		msg.Message = booking.MsgGenericFailure
	}
	if p.Message != "" {
		msg.Message = p.Message
	}
	return msg
}

// Client represents a WebSocket client connection
type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
}

// Hub manages WebSocket connections per booking session
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Message
	quit       chan struct{}
	stopOnce   sync.Once
	upgrader   websocket.Upgrader
	logger     *logrus.Entry
	mu         sync.RWMutex
}

// NewHub creates a new Hub. Call Run to start delivering messages.
func NewHub(logger *logrus.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		quit:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger.WithField("component", "websocket-hub"),
	}
}

// Run starts the hub's main loop. It returns once Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.quit:
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.sessionID] == nil {
				h.clients[client.sessionID] = make(map[*Client]bool)
			}
			h.clients[client.sessionID][client] = true
			h.logger.WithField("sessionId", client.sessionID).Debug("Client registered")
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				h.logger.WithError(err).Error("Failed to marshal message")
				continue
			}

			h.mu.Lock()
			for client := range h.clients[message.SessionID] {
				select {
				case client.send <- data:
				default:
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends Run. Connections attached afterwards are closed at once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.quit) })
}

// remove drops a client; callers hold mu
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.sessionID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.sessionID)
	}
}

// Publish queues a progress event for the session's clients. It never
// blocks; events are dropped when the queue is full.
func (h *Hub) Publish(p booking.Progress) {
	select {
	case h.broadcast <- MessageFor(p):
	default:
		h.logger.WithField("sessionId", p.SessionID).Warn("Broadcast queue full, dropping progress")
	}
}

// Observer returns Publish as a coordinator observer
func (h *Hub) Observer() booking.Observer {
	return h.Publish
}

// ClientCount returns the number of clients watching a session
func (h *Hub) ClientCount(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// ServeWS upgrades the request and attaches it to the session
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		sessionID: sessionID,
	}
	select {
	case h.register <- client:
	case <-h.quit:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// readPump only watches for the close; clients do not send commands
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.quit:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
