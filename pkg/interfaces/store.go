package interfaces

import (
	"context"

	"chatrelay/pkg/types"
)

// StoredMessage is a message record as persisted: the room it belongs to
// plus the author snapshot and text. The store assigns CreatedAt.
type StoredMessage struct {
	ID    string
	Room  string
	Uname string
	Role  string
	Text  string
}

// MessageStore persists chat messages and serves the recent page used to
// hydrate a room on first reference.
type MessageStore interface {
	// FetchRecentMessages returns up to limit of the newest messages for
	// a room, re-ordered oldest-first so callers can append them to a
	// history buffer in chronological order.
	FetchRecentMessages(ctx context.Context, room string, limit int) ([]*types.Message, error)

	// AppendMessage persists one message. Callers on the hot path submit
	// it fire-and-forget; a store failure must never block delivery.
	AppendMessage(ctx context.Context, msg *StoredMessage) error

	// HealthCheck verifies store connectivity.
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases the store.
	Close() error
}
