package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Hub manages WebSocket connections and broadcasts messages to room members.
type Hub struct {
	mu          sync.RWMutex
	connections map[string]*Connection // connection id -> connection
	rooms       map[string][]string    // room code -> []connection id
	logger      zerolog.Logger
}

// NewHub creates a new WebSocket hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		connections: make(map[string]*Connection),
		rooms:       make(map[string][]string),
		logger:      logger,
	}
}

// RegisterConnection adds a connection under its id.
func (h *Hub) RegisterConnection(connID string, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if old, exists := h.connections[connID]; exists {
		old.Close()
	}

	h.connections[connID] = conn
	h.logger.Info().Str("conn_id", connID).Msg("connection registered")
}

// UnregisterConnection removes a connection and drops it from every room group.
func (h *Hub) UnregisterConnection(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conn, exists := h.connections[connID]; exists {
		conn.Close()
		delete(h.connections, connID)
		h.logger.Info().Str("conn_id", connID).Msg("connection unregistered")
	}

	for code, members := range h.rooms {
		for i, id := range members {
			if id == connID {
				h.rooms[code] = append(members[:i], members[i+1:]...)
				break
			}
		}
	}
}

// JoinRoom associates a connection with a room code for broadcasts.
func (h *Hub) JoinRoom(code, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[code]
	for _, id := range members {
		if id == connID {
			return // already joined
		}
	}
	h.rooms[code] = append(members, connID)
}

// LeaveRoom removes a connection from a room group.
func (h *Hub) LeaveRoom(code, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members := h.rooms[code]
	for i, id := range members {
		if id == connID {
			h.rooms[code] = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(h.rooms[code]) == 0 {
		delete(h.rooms, code)
	}
}

// ToRoom sends a message to every connection grouped under a room code.
func (h *Hub) ToRoom(code string, msg Message) {
	h.mu.RLock()
	members := append([]string(nil), h.rooms[code]...)
	h.mu.RUnlock()

	for _, connID := range members {
		if err := h.ToConn(connID, msg); err != nil {
			h.logger.Warn().Err(err).Str("conn_id", connID).Str("room", code).Msg("room broadcast send failed")
		}
	}
}

// ToConn delivers a message to a specific connection.
func (h *Hub) ToConn(connID string, msg Message) error {
	h.mu.RLock()
	conn, exists := h.connections[connID]
	h.mu.RUnlock()

	if !exists {
		return ErrConnectionNotFound
	}
	return conn.Send(msg)
}

// CloseConn force-terminates a connection (kick path). The read pump of the
// closed connection performs the usual unregister cleanup.
func (h *Hub) CloseConn(connID string) {
	h.mu.RLock()
	conn, exists := h.connections[connID]
	h.mu.RUnlock()

	if exists {
		conn.Close()
	}
}

// IsConnected reports whether a live connection exists for the id.
func (h *Hub) IsConnected(connID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[connID]
	return exists
}

// Connection represents a WebSocket connection with a buffered send queue.
type Connection struct {
	conn   *websocket.Conn
	sendCh chan Message
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

// NewConnection wraps a WebSocket connection.
func NewConnection(conn *websocket.Conn, logger zerolog.Logger) *Connection {
	return &Connection{
		conn:   conn,
		sendCh: make(chan Message, 256),
		logger: logger,
	}
}

// Send queues a message for delivery without blocking.
func (c *Connection) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}

	select {
	case c.sendCh <- msg:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close shuts down the connection.
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.sendCh)
	if c.conn != nil {
		c.conn.Close()
	}
}

// WritePump sends messages from the send queue.
func (c *Connection) WritePump() {
	defer c.conn.Close()

	for msg := range c.sendCh {
		if err := c.conn.WriteJSON(msg); err != nil {
			c.logger.Warn().Err(err).Msg("write error")
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ReadPump receives messages and calls the handler until the peer drops.
func (c *Connection) ReadPump(handler func(Message) error) {
	defer c.conn.Close()

	// Read deadline of 60 seconds, extended on pong
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Msg("read error")
			}
			break
		}

		if err := handler(msg); err != nil {
			c.logger.Warn().Str("msg_type", msg.Type).Err(err).Msg("message handler error")
		}
	}
}

var (
	ErrConnectionNotFound = &Error{Code: "connection_not_found", Message: "Connection not found"}
	ErrConnectionClosed   = &Error{Code: "connection_closed", Message: "Connection is closed"}
	ErrSendQueueFull      = &Error{Code: "send_queue_full", Message: "Send queue is full"}
)

type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}
