// Package transport adapts a *websocket.Conn into the small interfaces
// internal/directory and internal/router need, serializing all outbound
// writes through one goroutine and channel per connection (per spec.md
// §9's design note) the way the pack's signaling hubs run a
// writePump/readPump pair per client.
package transport

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/logging"
)

const (
	readLimit  = 64 * 1024
	pingPeriod = 30 * time.Second
	pongWait   = 60 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 64
)

var ErrClosed = errors.New("transport: connection closed")

// Upgrader is shared across all accepted connections, mirroring the
// teacher's package-level websocket.Upgrader.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// outbound is one queued frame; kind distinguishes text from binary so the
// write pump calls the matching gorilla/websocket method.
type outbound struct {
	kind int
	data []byte
}

// Conn wraps an upgraded *websocket.Conn. It implements directory.Conn
// (Open, SendBinary, SendText) and session.Conn.
type Conn struct {
	id     string
	ws     *websocket.Conn
	log    logging.LeveledLogger
	send   chan outbound
	closed chan struct{}
}

// New wraps ws, immediately starting its write pump. Callers should call
// Close when the session exits.
func New(ws *websocket.Conn, log logging.LeveledLogger) *Conn {
	c := &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		log:    log,
		send:   make(chan outbound, sendBuffer),
		closed: make(chan struct{}),
	}
	ws.SetReadLimit(readLimit)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	go c.writePump()
	return c
}

// ID is the connection-scoped correlation id attached to every log line
// this connection's session emits.
func (c *Conn) ID() string { return c.id }

// Address is the observed peer network address, informational only.
func (c *Conn) Address() string { return c.ws.RemoteAddr().String() }

// Open reports whether the connection is still accepting writes.
func (c *Conn) Open() bool {
	select {
	case <-c.closed:
		return false
	default:
		return true
	}
}

// SendBinary queues a binary frame, best-effort.
func (c *Conn) SendBinary(b []byte) error {
	return c.enqueue(outbound{kind: websocket.BinaryMessage, data: b})
}

// SendText queues a text frame, best-effort.
func (c *Conn) SendText(s string) error {
	return c.enqueue(outbound{kind: websocket.TextMessage, data: []byte(s)})
}

func (c *Conn) enqueue(o outbound) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.send <- o:
		return nil
	case <-c.closed:
		return ErrClosed
	default:
		c.log.Warnf("conn %s: outbound queue full, dropping frame", c.id)
		return errors.New("transport: outbound queue full")
	}
}

// ReadFrame blocks for the next inbound message, reporting whether it was
// text (isText=true) or binary.
func (c *Conn) ReadFrame() (isText bool, payload []byte, err error) {
	kind, data, err := c.ws.ReadMessage()
	if err != nil {
		return false, nil, err
	}
	return kind == websocket.TextMessage, data, nil
}

// CloseWithReason sends a close frame carrying reason and shuts the
// connection down.
func (c *Conn) CloseWithReason(reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	c.Close()
}

// Close stops the write pump and closes the underlying socket. Safe to
// call more than once.
func (c *Conn) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	c.ws.Close()
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case o, ok := <-c.send:
			if !ok {
				return
			}
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(o.kind, o.data); err != nil {
				c.log.Warnf("conn %s: write failed: %v", c.id, err)
				c.Close()
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
