// Package ws pushes stream snapshots to browsers over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dnspotify/server/internal/stream"
	"github.com/dnspotify/server/pkg/logger"
)

const (
	// WriteWait bounds a single write.
	WriteWait = 10 * time.Second
	// PongWait is how long a connection may stay silent.
	PongWait = 60 * time.Second
	// PingPeriod must be shorter than PongWait.
	PingPeriod = 30 * time.Second
	// MaxMessageSize caps client messages; clients only send pings.
	MaxMessageSize = 4 * 1024
	sendBuffer     = 32
)

// ErrConnectionClosed is returned when sending on a closed connection.
var ErrConnectionClosed = errors.New("connection closed")

// Message is a control message exchanged with the client.
type Message struct {
	Type      string    `json:"type"`
	Code      string    `json:"code,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// SnapshotMessage carries one stream frame.
type SnapshotMessage struct {
	Type string `json:"type"`
	stream.Frame
}

// Connection is one subscribed WebSocket.
type Connection struct {
	ID        string
	UserID    string
	SessionID string
	Topic     string

	conn *websocket.Conn
	send chan []byte

	pingMu       sync.RWMutex
	lastPingTime time.Time
	lastPongTime time.Time

	isActive    int32
	createdAt   time.Time
	closeReason string

	closeChan chan struct{}
	closeOnce sync.Once

	manager *Manager
	log     logger.Logger
}

// NewConnection wraps an upgraded socket.
func NewConnection(id, userID, sessionID, topic string, conn *websocket.Conn, manager *Manager) *Connection {
	now := time.Now()
	c := &Connection{
		ID:           id,
		UserID:       userID,
		SessionID:    sessionID,
		Topic:        topic,
		conn:         conn,
		send:         make(chan []byte, sendBuffer),
		lastPingTime: now,
		lastPongTime: now,
		isActive:     1,
		createdAt:    now,
		closeChan:    make(chan struct{}),
		manager:      manager,
		log:          logger.L(),
	}
	if manager != nil {
		c.log = manager.log
	}
	c.log = c.log.WithFields(logger.String("conn_id", id), logger.String("user_id", userID), logger.String("topic", topic))
	return c
}

// IsActive reports whether the connection is still open.
func (c *Connection) IsActive() bool {
	return atomic.LoadInt32(&c.isActive) == 1
}

// UpdatePingTime records a server ping.
func (c *Connection) UpdatePingTime() {
	c.pingMu.Lock()
	c.lastPingTime = time.Now()
	c.pingMu.Unlock()
}

// UpdatePongTime records a sign of life from the client.
func (c *Connection) UpdatePongTime() {
	c.pingMu.Lock()
	c.lastPongTime = time.Now()
	c.pingMu.Unlock()
}

// GetLastPongTime returns when the client was last heard from.
func (c *Connection) GetLastPongTime() time.Time {
	c.pingMu.RLock()
	defer c.pingMu.RUnlock()
	return c.lastPongTime
}

// Done is closed when the connection closes.
func (c *Connection) Done() <-chan struct{} { return c.closeChan }

// Close shuts the socket down once.
func (c *Connection) Close(reason string) {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.isActive, 0)
		c.closeReason = reason
		close(c.closeChan)

		if c.conn != nil {
			_ = c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
				time.Now().Add(WriteWait),
			)
			_ = c.conn.Close()
		}

		c.log.Debug("connection closed",
			logger.String("reason", reason),
			logger.Duration("duration", time.Since(c.createdAt)),
		)
	})
}

// ReadPump reads until the client goes away. Clients only send pings,
// either as control frames or as {"type":"ping"}.
func (c *Connection) ReadPump() {
	c.conn.SetReadLimit(MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.UpdatePongTime()
		return c.conn.SetReadDeadline(time.Now().Add(PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Debug("read failed", logger.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(PongWait))
		c.handleMessage(message)
	}
}

// WritePump drains the send queue and pings the client.
func (c *Connection) WritePump() {
	ticker := time.NewTicker(PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeChan:
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.Close("write failed")
				return
			}
		case <-ticker.C:
			c.sendPing()
		}
	}
}

// Pump forwards frames until the feed ends or the connection closes.
func (c *Connection) Pump(ctx context.Context, frames <-chan stream.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closeChan:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			if err := c.SendJSON(SnapshotMessage{Type: "snapshot", Frame: f}); err != nil {
				return
			}
		}
	}
}

func (c *Connection) sendPing() {
	_ = c.conn.SetWriteDeadline(time.Now().Add(WriteWait))
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.Close("ping failed")
		return
	}
	c.UpdatePingTime()
}

// Send queues a message. A client that cannot keep up is disconnected.
func (c *Connection) Send(message []byte) bool {
	if !c.IsActive() {
		return false
	}
	select {
	case c.send <- message:
		return true
	case <-c.closeChan:
		return false
	default:
		c.log.Warn("send buffer full, closing")
		c.Close("send buffer full")
		return false
	}
}

// SendJSON encodes v and queues it.
func (c *Connection) SendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !c.Send(data) {
		return ErrConnectionClosed
	}
	return nil
}

func (c *Connection) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("invalid_message_format", "Message must be valid JSON")
		return
	}

	switch msg.Type {
	case "ping":
		c.UpdatePongTime()
		_ = c.SendJSON(Message{Type: "pong", Timestamp: time.Now()})
	case "pong":
		c.UpdatePongTime()
	case "":
		c.sendError("missing_type", "Message type is required")
	default:
		c.sendError("unsupported_type", "Only ping is accepted")
	}
}

func (c *Connection) sendError(code, message string) {
	_ = c.SendJSON(Message{Type: "error", Code: code, Message: message, Timestamp: time.Now()})
}
