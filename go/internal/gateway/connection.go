package gateway

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Connection is one client socket. Role fields are set by Join; until then
// the connection belongs to no room.
type Connection struct {
	ID          string
	ConnectedAt time.Time

	conn *websocket.Conn
	cfg  ConnectionConfig
	send chan []byte

	closeOnce   sync.Once
	done        chan struct{}
	closeCode   int
	closeReason string
}

// NewConnection wraps ws. A nil ws gives a detached connection whose
// outbound frames can be read with Outbound, used by tests.
func NewConnection(ws *websocket.Conn, cfg ConnectionConfig) *Connection {
	size := cfg.SendBufferSize
	if size <= 0 {
		size = 256
	}
	return &Connection{
		ID:          uuid.NewString(),
		ConnectedAt: time.Now(),
		conn:        ws,
		cfg:         cfg,
		send:        make(chan []byte, size),
		done:        make(chan struct{}),
	}
}

// Enqueue queues a frame without blocking. It returns false when the
// connection is closed or its buffer is full.
func (c *Connection) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close ends the connection with a close frame carrying code and reason.
// Only the first call has any effect.
func (c *Connection) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		close(c.done)
	})
}

func (c *Connection) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// CloseCode reports the code passed to Close, or 0 if still open
func (c *Connection) CloseCode() int {
	if !c.Closed() {
		return 0
	}
	return c.closeCode
}

// Outbound exposes queued frames
func (c *Connection) Outbound() <-chan []byte {
	return c.send
}

// writePump handles sending messages to the WebSocket connection
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}

		case <-c.done:
			c.flush()
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeReason)
			_ = c.conn.WriteMessage(websocket.CloseMessage, msg)
			return

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				c.Close(websocket.CloseAbnormalClosure, "")
				return
			}
		}
	}
}

// flush writes frames queued before Close so a final ack or error reaches the client
func (c *Connection) flush() {
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump feeds inbound frames to handle until the socket fails or closes
func (c *Connection) readPump(handle func(frame []byte)) {
	defer c.Close(websocket.CloseNormalClosure, "")

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected WebSocket close")
			}
			return
		}
		handle(message)
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	}
}
