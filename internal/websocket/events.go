package websocket

import "encoding/json"

// Client-originated events.
const (
	EventAuth    = "auth"
	EventMessage = "message"
)

// EventClientError carries best-effort notifications for requests that fail
// before a trustworthy ack exists.
const EventClientError = "client_error"

// inboundFrame is a client frame. Ack, when present, is a client-chosen id
// the server echoes on the reply, reproducing callback-style request and
// response pairs over plain JSON frames.
type inboundFrame struct {
	Event   string          `json:"event"`
	Ack     *int64          `json:"ack,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// outboundFrame is a server frame: either a named event or an ack reply.
// Error carries an opaque wire code; it is empty on success.
type outboundFrame struct {
	Event   string      `json:"event,omitempty"`
	Ack     *int64      `json:"ack,omitempty"`
	Error   string      `json:"error,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// messagePayload is the payload of a message event.
type messagePayload struct {
	Text string `json:"text"`
}
