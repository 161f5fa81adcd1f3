package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chatrelay/internal/auth"
	"chatrelay/internal/server"
	"chatrelay/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Clients embed the widget on arbitrary application origins.
		return true
	},
	HandshakeTimeout: 10 * time.Second,
}

// Options holds transport tuning for the handler.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// DefaultOptions returns transport settings matching the config defaults.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		BufferSize:   100,
	}
}

// Handler accepts websocket connections and drives each one through the
// auth handshake, admission, and the message loop.
type Handler struct {
	handshake *auth.Handshake
	sessions  *server.Server
	opts      Options
}

// NewHandler creates a websocket handler.
func NewHandler(handshake *auth.Handshake, sessions *server.Server, opts Options) *Handler {
	if opts.BufferSize <= 0 {
		opts = DefaultOptions()
	}
	return &Handler{
		handshake: handshake,
		sessions:  sessions,
		opts:      opts,
	}
}

// HandleWebSocket upgrades the request and runs the connection until the
// client disconnects.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(uuid.New().String(), wsConn, h.opts.BufferSize, h.opts.WriteTimeout)
	log.Printf("Client connected: session=%s", conn.SessionID())

	go h.handleConnection(conn)
}

// handleConnection owns the read side of one connection. Teardown always
// runs through the session manager so a disconnect at any stage of the
// lifecycle lands in the same idempotent path.
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		h.sessions.RemoveSocket(conn.SessionID())
		_ = conn.Close()
		log.Printf("Client disconnected: session=%s", conn.SessionID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		log.Printf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ticker.C:
				if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.opts.WriteTimeout)); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	// Set once the auth handshake admits the session.
	var admitted *server.Client

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: session=%s err=%v", conn.SessionID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var frame inboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = conn.SendEvent(EventClientError, "frames must be JSON objects with an event field")
			continue
		}

		switch frame.Event {
		case EventAuth:
			admitted = h.handleAuth(conn, &frame, admitted)
		case EventMessage:
			h.handleMessage(conn, &frame, admitted)
		default:
			_ = conn.SendEvent(EventClientError, "unknown event: "+frame.Event)
		}
	}
}

// handleAuth runs the handshake and admission for an auth frame, returning
// the admitted client (or the previous value when the frame fails). Only the
// first auth on a connection counts.
func (h *Handler) handleAuth(conn *Connection, frame *inboundFrame, admitted *server.Client) *server.Client {
	if admitted != nil {
		_ = conn.SendEvent(EventClientError, "auth already completed for this connection")
		return admitted
	}
	if frame.Ack == nil {
		// No trustworthy reply channel without an ack id.
		_ = conn.SendEvent(EventClientError, "must provide an ack id with the auth event")
		return nil
	}

	result, err := h.handshake.Authenticate(context.Background(), frame.Payload)
	if err != nil {
		if auth.IsClientError(err) {
			_ = conn.SendEvent(EventClientError, err.Error())
		} else {
			log.Printf("Auth failed: session=%s err=%v", conn.SessionID(), err)
			_ = conn.SendAck(*frame.Ack, types.CodeInternalError, nil)
		}
		return nil
	}

	client := &server.Client{
		ID:     conn.SessionID(),
		Sender: conn,
		User:   result.User,
		Room:   result.Room,
	}

	payload, err := h.sessions.AddClient(context.Background(), client)
	if err != nil {
		log.Printf("Admission failed: session=%s room=%s err=%v", conn.SessionID(), result.Room, err)
		_ = conn.SendAck(*frame.Ack, types.CodeInternalError, nil)
		return nil
	}

	_ = conn.SendAck(*frame.Ack, "", payload)
	return client
}

// handleMessage ingests a chat message from an admitted, identified session.
// The session manager fans it out to the rest of the room; the sender
// receives it on the ack instead.
func (h *Handler) handleMessage(conn *Connection, frame *inboundFrame, admitted *server.Client) {
	reply := func(errCode string, payload interface{}) {
		if frame.Ack != nil {
			_ = conn.SendAck(*frame.Ack, errCode, payload)
		} else if errCode != "" {
			_ = conn.SendEvent(EventClientError, errCode)
		}
	}

	if admitted == nil || admitted.User == nil {
		reply(types.CodeNotAuthenticated, nil)
		return
	}

	var payload messagePayload
	if len(frame.Payload) == 0 || json.Unmarshal(frame.Payload, &payload) != nil {
		reply(types.CodeInvalidMessage, nil)
		return
	}

	msg, err := h.sessions.InsertMessage(admitted.Room, admitted.User, payload.Text, conn.SessionID())
	if err != nil {
		switch err {
		case types.ErrEmptyMessage, types.ErrMessageTooLong:
			reply(types.CodeInvalidMessage, nil)
		case server.ErrNotAuthenticated:
			reply(types.CodeNotAuthenticated, nil)
		default:
			log.Printf("Message ingestion failed: session=%s room=%s err=%v", conn.SessionID(), admitted.Room, err)
			reply(types.CodeInternalError, nil)
		}
		return
	}

	reply("", msg)
}
