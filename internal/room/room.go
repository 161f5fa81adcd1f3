package room

import (
	"sync"
	"time"

	"chatrelay/pkg/history"
	"chatrelay/pkg/types"
)

// Sender delivers a named event to one client session. Implemented by the
// websocket connection wrapper; rooms only ever see this surface.
type Sender interface {
	SendEvent(event string, payload interface{}) error
}

// Room holds the in-memory state of one chat room: member users keyed by
// uname, member client sessions keyed by session id, the mute list, and the
// bounded history buffer. A Room lives for the process lifetime once
// created.
type Room struct {
	name string

	mu       sync.RWMutex
	users    map[string]*types.User
	clients  map[string]Sender
	muteList map[string]time.Time
	history  *history.Buffer
}

// New creates an empty room with the given history capacity.
func New(name string, capacity int) *Room {
	return &Room{
		name:     name,
		users:    make(map[string]*types.User),
		clients:  make(map[string]Sender),
		muteList: make(map[string]time.Time),
		history:  history.New(capacity),
	}
}

// Name returns the room identifier.
func (r *Room) Name() string {
	return r.name
}

// AddUser inserts a user into the member set.
func (r *Room) AddUser(user *types.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.Uname] = user
}

// RemoveUser removes a user from the member set.
func (r *Room) RemoveUser(uname string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, uname)
}

// AddClient registers a client session with the room.
func (r *Room) AddClient(sessionID string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[sessionID] = sender
}

// RemoveClient removes a client session. Idempotent.
func (r *Room) RemoveClient(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, sessionID)
}

// ClientCount returns the number of client sessions in the room.
func (r *Room) ClientCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast sends an event to every client session in the room except the
// one identified by exceptID. Pass "" to reach everyone. Delivery failures
// are the sender's concern; broadcast continues past them.
func (r *Room) Broadcast(event string, payload interface{}, exceptID string) {
	r.mu.RLock()
	senders := make([]Sender, 0, len(r.clients))
	for id, sender := range r.clients {
		if id == exceptID {
			continue
		}
		senders = append(senders, sender)
	}
	r.mu.RUnlock()

	for _, sender := range senders {
		_ = sender.SendEvent(event, payload)
	}
}

// PushHistory appends a message to the history buffer, evicting the oldest
// entry once capacity is exceeded.
func (r *Room) PushHistory(msg *types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history.Push(msg)
}

// Mute records a mute for uname until the given time. The mute list is
// carried as room state but not yet enforced on ingestion.
func (r *Room) Mute(uname string, until time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muteList[uname] = until
}

// IsMuted reports whether uname has an unexpired mute entry.
func (r *Room) IsMuted(uname string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	until, ok := r.muteList[uname]
	return ok && time.Now().Before(until)
}

// Snapshot renders the room for a freshly admitted client: member users and
// history in chronological order.
func (r *Room) Snapshot() types.RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]*types.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}

	return types.RoomSnapshot{
		Users:   users,
		History: r.history.Messages(),
	}
}
