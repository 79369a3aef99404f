package ws

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Send after the connection has closed.
var ErrClosed = errors.New("connection closed")

// ErrSendBufferFull is returned by Send when the client is not draining frames.
var ErrSendBufferFull = errors.New("send buffer full")

// Conn is one client WebSocket. Frames queued with Send are written by a
// dedicated writer goroutine; reads happen on the serving goroutine.
type Conn struct {
	id   string
	ws   *websocket.Conn
	send chan []byte

	writeTimeout time.Duration
	pingInterval time.Duration

	alive     atomic.Bool
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(raw *websocket.Conn, sendBuffer int, writeTimeout, pingInterval time.Duration) *Conn {
	c := &Conn{
		id:           uuid.NewString(),
		ws:           raw,
		send:         make(chan []byte, sendBuffer),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
		closed:       make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// Alive reports whether the connection can still take frames.
func (c *Conn) Alive() bool { return c.alive.Load() }

// Send queues a text frame without blocking. A client that lets its queue
// fill up is disconnected.
//
// Postcondition: Returns nil when queued, ErrClosed after close, or
// ErrSendBufferFull after closing the connection.
func (c *Conn) Send(data []byte) error {
	if !c.Alive() {
		return ErrClosed
	}
	select {
	case c.send <- data:
		return nil
	case <-c.closed:
		return ErrClosed
	default:
		c.Close()
		return ErrSendBufferFull
	}
}

// Close marks the connection dead and closes the socket. It is idempotent.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		close(c.closed)
		_ = c.ws.Close()
	})
}

// Closed is closed once Close has run.
func (c *Conn) Closed() <-chan struct{} { return c.closed }

// writeLoop drains the send queue and keeps the client alive with pings.
func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeTimeout))
			return
		}
	}
}
