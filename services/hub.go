package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"jeoparty/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

// Dispatcher receives every inbound frame. Frames of one socket are delivered
// in order; frames of different sockets may arrive concurrently.
type Dispatcher interface {
	Dispatch(ctx context.Context, gameID, sid string, msg Message)
}

// Hub tracks the open sockets of every game and the rooms they are in.
type Hub struct {
	clients    map[string]*Client
	unregister chan *Client
	mutex      sync.RWMutex
	dispatcher Dispatcher
}

type Client struct {
	hub    *Hub
	id     string
	gameID string
	socket *websocket.Conn
	send   chan []byte
	rooms  map[string]bool
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		unregister: make(chan *Client),
	}
}

// SetDispatcher must be called before the first client registers.
func (h *Hub) SetDispatcher(dispatcher Dispatcher) {
	h.dispatcher = dispatcher
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			logger.Info("Client unregistered", "game_id", client.gameID, "sid", client.id, "clients", total)
		}
	}
}

// Emit queues event for the sockets addressed by to, which is either a room
// of gameID or a socket id. A client whose buffer is full misses the event.
func (h *Hub) Emit(gameID, event string, payload interface{}, to string, skip ...string) {
	data, err := json.Marshal(outboundMessage{Type: event, Payload: payload})
	if err != nil {
		logger.Error("Failed to marshal message", "event", event, "error", err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if client, ok := h.clients[to]; ok {
		if client.gameID == gameID {
			h.deliver(client, event, data)
		}
		return
	}

	for _, client := range h.clients {
		if client.gameID != gameID || !client.rooms[to] || contains(skip, client.id) {
			continue
		}
		h.deliver(client, event, data)
	}
}

// deliver must be called with h.mutex held.
func (h *Hub) deliver(client *Client, event string, data []byte) {
	select {
	case client.send <- data:
	default:
		logger.Warn("Client send buffer full, dropping message", "game_id", client.gameID, "sid", client.id, "event", event)
	}
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func (h *Hub) JoinRoom(gameID, sid, room string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if client, ok := h.clients[sid]; ok && client.gameID == gameID {
		client.rooms[room] = true
	}
}

func (h *Hub) LeaveRoom(gameID, sid, room string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	if client, ok := h.clients[sid]; ok && client.gameID == gameID {
		delete(client.rooms, room)
	}
}

func (h *Hub) InRoom(gameID, sid, room string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	client, ok := h.clients[sid]
	return ok && client.gameID == gameID && client.rooms[room]
}

// ClientCount returns the number of open sockets of gameID.
func (h *Hub) ClientCount(gameID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	count := 0
	for _, client := range h.clients {
		if client.gameID == gameID {
			count++
		}
	}
	return count
}

// RegisterClient adds conn to gameID under a fresh socket id and starts its pumps.
func (h *Hub) RegisterClient(conn *websocket.Conn, gameID string) *Client {
	client := h.addClient(conn, gameID)

	go client.writePump()
	go client.readPump()

	return client
}

func (h *Hub) addClient(conn *websocket.Conn, gameID string) *Client {
	client := &Client{
		hub:    h,
		id:     uuid.NewString(),
		gameID: gameID,
		socket: conn,
		send:   make(chan []byte, sendBuffer),
		rooms:  make(map[string]bool),
	}

	h.mutex.Lock()
	h.clients[client.id] = client
	total := len(h.clients)
	h.mutex.Unlock()

	logger.Info("Client registered", "game_id", gameID, "sid", client.id, "clients", total)
	return client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) readPump() {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	c.socket.SetReadLimit(maxMessageSize)
	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket read error", "game_id", c.gameID, "sid", c.id, "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("Invalid socket frame", "game_id", c.gameID, "sid", c.id, "error", err)
			continue
		}
		if c.hub.dispatcher != nil {
			c.hub.dispatcher.Dispatch(ctx, c.gameID, c.id, msg)
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.socket.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
