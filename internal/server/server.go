package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatrelay/internal/presence"
	"chatrelay/internal/room"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// Transport events emitted by the session manager.
const (
	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"
	EventNewMessage = "new_message"
)

// Client is one live connection: a transport session bound to an optional
// authenticated identity and a room. Owned exclusively by the Server's
// session table.
type Client struct {
	ID     string
	Sender room.Sender
	User   *types.User
	Room   string
}

// Server is the session manager. It owns the room registry, the presence
// tracker, and the session table, and runs the admission and teardown
// sequences that keep presence events exactly-once per user per room.
//
// The session table and every membership decision are guarded by one mutex:
// the sequence "read membership, decide join/leave-worthy, mutate
// membership, broadcast" must not interleave for two sessions of the same
// uname, or presence events duplicate or vanish.
type Server struct {
	rooms    *room.Registry
	presence *presence.Tracker
	store    interfaces.MessageStore

	mu      sync.Mutex
	clients map[string]*Client
	closed  bool

	// Persistence is fire-and-forget: messages are queued here in
	// ingestion order and written by a background goroutine, so a slow or
	// failing store never blocks delivery.
	persistCh chan *interfaces.StoredMessage
	done      chan struct{}
	wg        sync.WaitGroup
}

// New creates a session manager and starts its background persister.
func New(rooms *room.Registry, tracker *presence.Tracker, store interfaces.MessageStore) *Server {
	s := &Server{
		rooms:     rooms,
		presence:  tracker,
		store:     store,
		clients:   make(map[string]*Client),
		persistCh: make(chan *interfaces.StoredMessage, 256),
		done:      make(chan struct{}),
	}
	s.wg.Add(1)
	go s.persistLoop()
	return s
}

// AddClient admits a post-authentication client: obtains the target room
// (hydrating it on first reference), updates presence, registers the
// session, and returns the initial state snapshot for the auth ack.
//
// If the client carries a user and the presence tracker already holds that
// uname, the canonical in-memory record wins over the record the new session
// arrived with. Only the first session for a uname emits user_joined, and
// only to the sessions already in the room.
func (s *Server) AddClient(ctx context.Context, client *Client) (*types.InitPayload, error) {
	// The store fetch may suspend, so it happens before the registry lock.
	rm, err := s.rooms.GetOrCreate(ctx, client.Room)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServerClosed
	}

	if client.User != nil {
		if canonical, ok := s.presence.Lookup(client.User.Uname); ok {
			client.User = canonical
		} else {
			s.presence.Register(client.User)
			rm.AddUser(client.User)
			rm.Broadcast(EventUserJoined, client.User, client.ID)
			log.Printf("User joined: uname=%s room=%s", client.User.Uname, client.Room)
		}
	}

	s.clients[client.ID] = client
	rm.AddClient(client.ID, client.Sender)

	return &types.InitPayload{User: client.User, Room: rm.Snapshot()}, nil
}

// RemoveSocket tears down a disconnected session. A no-op for unknown
// session ids, since disconnect can race other teardown paths. When the
// departing session was the last one for its uname in its room, the user
// leaves presence and the room, and user_left goes to the remaining
// sessions.
func (s *Server) RemoveSocket(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	client, ok := s.clients[sessionID]
	if !ok {
		return
	}
	delete(s.clients, sessionID)

	rm, _ := s.rooms.Get(client.Room)
	if rm != nil {
		rm.RemoveClient(sessionID)
	}

	if client.User == nil {
		return
	}

	// Sessions of the same user in other rooms do not keep this room's
	// membership alive.
	for _, other := range s.clients {
		if other.User != nil && other.User.Uname == client.User.Uname && other.Room == client.Room {
			return
		}
	}

	s.presence.Remove(client.User.Uname)
	if rm != nil {
		rm.RemoveUser(client.User.Uname)
		rm.Broadcast(EventUserLeft, client.User, "")
	}
	log.Printf("User left: uname=%s room=%s", client.User.Uname, client.Room)
}

// InsertMessage ingests chat text from an authenticated user: builds the
// presented message, appends it to the room's history buffer, queues it for
// persistence, and fans it out to every other session in the room. All three
// happen under the session lock so receivers, history, and the store agree
// on per-room order. The sender gets the returned message on its ack instead
// of a new_message frame.
func (s *Server) InsertMessage(roomName string, user *types.User, text, senderID string) (*types.Message, error) {
	if user == nil {
		return nil, ErrNotAuthenticated
	}
	if err := types.ValidateText(text); err != nil {
		return nil, err
	}

	rm, ok := s.rooms.Get(roomName)
	if !ok {
		return nil, ErrRoomNotFound
	}

	msg := &types.Message{
		ID: uuid.New().String(),
		User: types.User{
			Uname: user.Uname,
			Role:  user.Role,
		},
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServerClosed
	}
	rm.PushHistory(msg)
	select {
	case s.persistCh <- &interfaces.StoredMessage{
		ID:    msg.ID,
		Room:  roomName,
		Uname: msg.User.Uname,
		Role:  msg.User.Role,
		Text:  msg.Text,
	}:
	default:
		// Live delivery outranks durability for this relay.
		log.Printf("Persist queue full, dropping message: room=%s id=%s", roomName, msg.ID)
	}
	rm.Broadcast(EventNewMessage, msg, senderID)
	s.mu.Unlock()

	return msg, nil
}

// persistLoop writes queued messages to the store in arrival order. Store
// failures are logged and swallowed; they never reach the delivery path.
func (s *Server) persistLoop() {
	defer s.wg.Done()

	for {
		select {
		case stored := <-s.persistCh:
			s.persist(stored)
		case <-s.done:
			for {
				select {
				case stored := <-s.persistCh:
					s.persist(stored)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) persist(stored *interfaces.StoredMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.AppendMessage(ctx, stored); err != nil {
		log.Printf("Message persist failed, delivery unaffected: room=%s id=%s err=%v", stored.Room, stored.ID, err)
	}
}

// Stats reports registry sizes for the stats endpoint.
func (s *Server) Stats() map[string]int {
	s.mu.Lock()
	clients := len(s.clients)
	s.mu.Unlock()

	return map[string]int{
		"clients": clients,
		"rooms":   s.rooms.Len(),
		"users":   s.presence.Len(),
	}
}

// Close stops admissions and drains the persist queue.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
}
