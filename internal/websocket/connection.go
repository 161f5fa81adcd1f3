package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Connection wraps one websocket with a single-writer goroutine so
// concurrent broadcasts and acks never interleave frames. Enqueueing never
// blocks: fan-out to a room is best effort, and a slow reader sheds events
// rather than stalling the sender.
type Connection struct {
	sessionID string
	conn      *websocket.Conn
	writeCh   chan []byte
	writeWait time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps conn with the given session id, send buffer, and
// per-frame write deadline, and starts the writer goroutine.
func NewConnection(sessionID string, conn *websocket.Conn, bufferSize int, writeWait time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		sessionID: sessionID,
		conn:      conn,
		writeCh:   make(chan []byte, bufferSize),
		writeWait: writeWait,
		ctx:       ctx,
		cancel:    cancel,
	}

	go c.writeLoop()

	return c
}

// SessionID returns the identifier assigned at upgrade time.
func (c *Connection) SessionID() string {
	return c.sessionID
}

func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// SendEvent delivers a named event frame to the client.
func (c *Connection) SendEvent(event string, payload interface{}) error {
	return c.send(outboundFrame{Event: event, Payload: payload})
}

// SendAck replies to a client-supplied ack id, with either an error code or
// a success payload.
func (c *Connection) SendAck(ack int64, errCode string, payload interface{}) error {
	return c.send(outboundFrame{Ack: &ack, Error: errCode, Payload: payload})
}

func (c *Connection) send(frame outboundFrame) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close shuts down the writer and the underlying socket. Safe to call more
// than once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}
