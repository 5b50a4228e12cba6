// Package server manages individual WebSocket streams, handling read/write
// pumps and lifecycle control for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var (
	errSinkClosed = errors.New("sink closed")
	errSinkFull   = errors.New("sink buffer full")
)

// Client is one server-to-client push stream over WebSocket. It implements
// Sink: pushes are queued on a buffered channel drained by a single write
// pump, so per-sink delivery order follows queueing order and a saturated
// stream fails the push instead of blocking the caller.
type Client struct {
	id       string
	username string
	conn     *websocket.Conn
	send     chan []byte

	mu     sync.Mutex
	closed bool
	done   chan struct{}

	// onClose runs exactly once when the stream tears down. Channel streams
	// hook their subscriber-set removal here so cleanup is synchronous with
	// transport teardown.
	onClose func()

	log *logrus.Entry
}

// NewClient wraps an upgraded WebSocket connection. The caller may assign
// onClose before starting the pumps.
func NewClient(conn *websocket.Conn, username string, maxMessageSize int64) *Client {
	id := uuid.NewString()
	if conn != nil {
		conn.SetReadLimit(maxMessageSize)
	}

	return &Client{
		id:       id,
		username: username,
		conn:     conn,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
		log: logrus.WithFields(logrus.Fields{
			"client_id": id,
			"username":  username,
		}),
	}
}

// Push queues a message for the write pump. It never blocks: a closed stream
// or a full buffer is reported as an error and the message is dropped.
func (c *Client) Push(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errSinkClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		return errSinkFull
	}
}

// close tears the stream down exactly once: marks the sink closed, stops the
// write pump, runs the cancellation hook, and closes the connection.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	if c.onClose != nil {
		c.onClose()
	}

	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			c.log.WithError(err).Debug("Error closing connection")
		}
	}
}

// setupReadConnection configures read deadlines and pong handler for the
// WebSocket connection.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.log.WithError(err).Warn("Error setting initial read deadline")
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			c.log.WithError(err).Warn("Error setting read deadline in pong handler")
		}
		return nil
	})
}

// handleReadError logs according to the error type. Every read error ends
// the stream; the distinction is only how loudly it is reported.
func (c *Client) handleReadError(err error) {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		c.log.Debug("Stream closed by client")
		return
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		c.log.Debug("Stream connection closed")
		return
	}

	c.log.WithError(err).Warn("WebSocket read error")
}

// readPump consumes the inbound side of the stream. Receive streams are
// server-push only, so inbound data frames are discarded; the pump exists to
// notice disconnects and keep the ping/pong cycle alive.
func (c *Client) readPump() {
	defer c.close()

	c.setupReadConnection()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.handleReadError(err)
			return
		}
	}
}

// writePump is the single writer for the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case data := <-c.send:
			if !c.writeFrame(data) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		case <-c.done:
			c.writeCloseMessage()
			return
		}
	}
}

// writeFrame writes one message as its own text frame.
func (c *Client) writeFrame(data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.log.WithError(err).Warn("Error setting write deadline")
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if !isExpectedCloseError(err) {
			c.log.WithError(err).Warn("Error writing message")
		}
		return false
	}
	return true
}

// writePing keeps the connection alive between pushes.
func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		c.log.WithError(err).Warn("Error setting write deadline for ping")
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.WithError(err).Warn("Error writing ping message")
		}
		return false
	}
	return true
}

// writeCloseMessage tells the client the stream is ending.
func (c *Client) writeCloseMessage() {
	if err := c.conn.SetWriteDeadline(time.Now().Add(time.Second)); err != nil {
		return
	}
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			c.log.WithError(err).Debug("Error writing close message")
		}
	}
}

// isExpectedCloseError checks if an error is expected during connection
// closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
