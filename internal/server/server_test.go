package server

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"chatrelay/internal/presence"
	"chatrelay/internal/room"
	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// mockStore records appends and signals each one so tests can wait for the
// fire-and-forget persister without sleeping.
type mockStore struct {
	mu       sync.Mutex
	appended []*interfaces.StoredMessage
	appendCh chan *interfaces.StoredMessage
	history  []*types.Message
}

func newMockStore() *mockStore {
	return &mockStore{appendCh: make(chan *interfaces.StoredMessage, 1024)}
}

func (m *mockStore) FetchRecentMessages(ctx context.Context, roomName string, limit int) ([]*types.Message, error) {
	if len(m.history) > limit {
		return m.history[len(m.history)-limit:], nil
	}
	return m.history, nil
}

func (m *mockStore) AppendMessage(ctx context.Context, msg *interfaces.StoredMessage) error {
	m.mu.Lock()
	m.appended = append(m.appended, msg)
	m.mu.Unlock()
	m.appendCh <- msg
	return nil
}

func (m *mockStore) HealthCheck(ctx context.Context) error { return nil }
func (m *mockStore) Close() error                          { return nil }

func (m *mockStore) waitForAppend(t *testing.T) *interfaces.StoredMessage {
	t.Helper()
	select {
	case msg := <-m.appendCh:
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for store append")
		return nil
	}
}

// recordingSender captures events delivered to one session.
type recordingSender struct {
	mu     sync.Mutex
	events []recordedEvent
}

type recordedEvent struct {
	event   string
	payload interface{}
}

func (r *recordingSender) SendEvent(event string, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{event, payload})
	return nil
}

func (r *recordingSender) messageIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []string
	for _, e := range r.events {
		if e.event != EventNewMessage {
			continue
		}
		if msg, ok := e.payload.(*types.Message); ok {
			ids = append(ids, msg.ID)
		}
	}
	return ids
}

func (r *recordingSender) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

func newTestServer(store interfaces.MessageStore, capacity int) *Server {
	return New(room.NewRegistry(store, capacity), presence.NewTracker(), store)
}

func admit(t *testing.T, s *Server, id, roomName string, user *types.User) (*Client, *recordingSender) {
	t.Helper()
	sender := &recordingSender{}
	client := &Client{ID: id, Sender: sender, User: user, Room: roomName}
	if _, err := s.AddClient(context.Background(), client); err != nil {
		t.Fatalf("AddClient(%s) failed: %v", id, err)
	}
	return client, sender
}

func TestAddClient_FirstSessionBroadcastsJoinToOthersOnly(t *testing.T) {
	s := newTestServer(newMockStore(), 250)
	defer s.Close()

	_, anonSender := admit(t, s, "s1", "app:42", nil)

	sender := &recordingSender{}
	alice := &types.User{Uname: "alice", Role: types.RoleMember}
	payload, err := s.AddClient(context.Background(), &Client{ID: "s2", Sender: sender, User: alice, Room: "app:42"})
	if err != nil {
		t.Fatalf("AddClient failed: %v", err)
	}

	if anonSender.count(EventUserJoined) != 1 {
		t.Error("existing session should receive user_joined once")
	}
	if sender.count(EventUserJoined) != 0 {
		t.Error("the admitting session must not receive its own user_joined")
	}
	if payload.User == nil || payload.User.Uname != "alice" {
		t.Errorf("init payload should carry the user: %+v", payload.User)
	}
	if len(payload.Room.Users) != 1 {
		t.Errorf("room snapshot should include alice: %+v", payload.Room.Users)
	}
}

func TestAddClient_SecondSessionSameUserNoSecondJoin(t *testing.T) {
	s := newTestServer(newMockStore(), 250)
	defer s.Close()

	_, watcher := admit(t, s, "s0", "app:42", nil)
	admit(t, s, "s1", "app:42", &types.User{Uname: "alice", Role: types.RoleMember})

	// Second connection by the same user, carrying a diverging record.
	sender := &recordingSender{}
	payload, err := s.AddClient(context.Background(), &Client{
		ID:     "s2",
		Sender: sender,
		User:   &types.User{Uname: "alice", Role: types.RoleMod},
		Room:   "app:42",
	})
	if err != nil {
		t.Fatalf("AddClient failed: %v", err)
	}

	if watcher.count(EventUserJoined) != 1 {
		t.Errorf("expected exactly one user_joined, got %d", watcher.count(EventUserJoined))
	}
	// The canonical in-memory record wins over the new session's copy.
	if payload.User.Role != types.RoleMember {
		t.Errorf("expected canonical role member, got %s", payload.User.Role)
	}
}

func TestAddClient_AnonymousSessionNoPresence(t *testing.T) {
	s := newTestServer(newMockStore(), 250)
	defer s.Close()

	_, watcher := admit(t, s, "s1", "app:42", nil)

	sender := &recordingSender{}
	payload, err := s.AddClient(context.Background(), &Client{ID: "s2", Sender: sender, Room: "app:42"})
	if err != nil {
		t.Fatalf("AddClient failed: %v", err)
	}

	if payload.User != nil {
		t.Error("anonymous init payload should have no user")
	}
	if watcher.count(EventUserJoined) != 0 {
		t.Error("anonymous admission must not emit user_joined")
	}
}

func TestRemoveSocket_LastSessionEmitsLeave(t *testing.T) {
	s := newTestServer(newMockStore(), 250)
	defer s.Close()

	_, watcher := admit(t, s, "s0", "app:42", nil)
	alice := &types.User{Uname: "alice", Role: types.RoleMember}
	admit(t, s, "s1", "app:42", alice)
	admit(t, s, "s2", "app:42", alice)

	s.RemoveSocket("s1")
	if watcher.count(EventUserLeft) != 0 {
		t.Error("user_left must not fire while another session remains")
	}

	s.RemoveSocket("s2")
	if watcher.count(EventUserLeft) != 1 {
		t.Errorf("expected exactly one user_left, got %d", watcher.count(EventUserLeft))
	}

	rm, _ := s.rooms.Get("app:42")
	if len(rm.Snapshot().Users) != 0 {
		t.Error("alice should be removed from the room member set")
	}
	if s.presence.Len() != 0 {
		t.Error("alice should be removed from the presence tracker")
	}
}

func TestRemoveSocket_UnknownSessionIsNoop(t *testing.T) {
	s := newTestServer(newMockStore(), 250)
	defer s.Close()

	// Must not panic or disturb state.
	s.RemoveSocket("never-seen")

	admit(t, s, "s1", "app:42", &types.User{Uname: "alice", Role: types.RoleMember})
	s.RemoveSocket("s1")
	s.RemoveSocket("s1")
}

func TestRemoveSocket_OtherRoomSessionIrrelevant(t *testing.T) {
	s := newTestServer(newMockStore(), 250)
	defer s.Close()

	_, watcherA := admit(t, s, "w1", "app:1", nil)
	alice := &types.User{Uname: "alice", Role: types.RoleMember}
	admit(t, s, "s1", "app:1", alice)
	admit(t, s, "s2", "app:2", alice)

	// alice still has a session in app:2, but none left in app:1.
	s.RemoveSocket("s1")

	if watcherA.count(EventUserLeft) != 1 {
		t.Error("membership in another room must not suppress user_left")
	}
}

func TestInsertMessage_RequiresUser(t *testing.T) {
	s := newTestServer(newMockStore(), 250)
	defer s.Close()

	if _, err := s.InsertMessage("app:42", nil, "hi", "s1"); err != ErrNotAuthenticated {
		t.Errorf("expected ErrNotAuthenticated, got %v", err)
	}
}

func TestInsertMessage_ValidatesTextAndRoom(t *testing.T) {
	s := newTestServer(newMockStore(), 250)
	defer s.Close()

	alice := &types.User{Uname: "alice", Role: types.RoleMember}
	if _, err := s.InsertMessage("app:42", alice, "", "s1"); err != types.ErrEmptyMessage {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if _, err := s.InsertMessage("app:42", alice, "hi", "s1"); err != ErrRoomNotFound {
		t.Errorf("expected ErrRoomNotFound for unhydrated room, got %v", err)
	}
}

func TestInsertMessage_AppendsHistoryAndPersists(t *testing.T) {
	store := newMockStore()
	s := newTestServer(store, 250)
	defer s.Close()

	_, watcher := admit(t, s, "s0", "app:42", nil)
	alice := &types.User{Uname: "alice", Role: types.RoleMember}
	_, senderSender := admit(t, s, "s1", "app:42", alice)

	msg, err := s.InsertMessage("app:42", alice, "hello room", "s1")
	if err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}
	if msg.ID == "" {
		t.Error("message should carry a fresh identifier")
	}
	if msg.User.Uname != "alice" || msg.User.Role != types.RoleMember {
		t.Errorf("message should snapshot the author: %+v", msg.User)
	}
	if watcher.count(EventNewMessage) != 1 {
		t.Error("other sessions in the room should receive new_message")
	}
	if senderSender.count(EventNewMessage) != 0 {
		t.Error("the sender gets the message on its ack, not as new_message")
	}

	stored := store.waitForAppend(t)
	if stored.Room != "app:42" || stored.Text != "hello room" || stored.ID != msg.ID {
		t.Errorf("unexpected stored message: %+v", stored)
	}

	rm, _ := s.rooms.Get("app:42")
	hist := rm.Snapshot().History
	if len(hist) != 1 || hist[0].ID != msg.ID {
		t.Errorf("history should hold the new message: %+v", hist)
	}
}

func TestInsertMessage_RoleSnapshotSurvivesRoleChange(t *testing.T) {
	s := newTestServer(newMockStore(), 250)
	defer s.Close()

	alice := &types.User{Uname: "alice", Role: types.RoleMember}
	admit(t, s, "s1", "app:42", alice)

	msg, err := s.InsertMessage("app:42", alice, "before promotion", "s1")
	if err != nil {
		t.Fatalf("InsertMessage failed: %v", err)
	}

	alice.Role = types.RoleAdmin

	if msg.User.Role != types.RoleMember {
		t.Error("persisted snapshot must not track later role changes")
	}
}

func TestInsertMessage_FullBufferEvictsOldestAndStillPersists(t *testing.T) {
	store := newMockStore()
	// Small capacity to exercise eviction without 250 inserts.
	s := newTestServer(store, 3)
	defer s.Close()

	alice := &types.User{Uname: "alice", Role: types.RoleMember}
	admit(t, s, "s1", "app:42", alice)

	var lastIDs []string
	for i := 0; i < 5; i++ {
		msg, err := s.InsertMessage("app:42", alice, "msg "+strconv.Itoa(i), "s1")
		if err != nil {
			t.Fatalf("InsertMessage %d failed: %v", i, err)
		}
		lastIDs = append(lastIDs, msg.ID)
		store.waitForAppend(t)
	}

	rm, _ := s.rooms.Get("app:42")
	hist := rm.Snapshot().History
	if len(hist) != 3 {
		t.Fatalf("history should be capped at 3, got %d", len(hist))
	}
	for i, m := range hist {
		if m.ID != lastIDs[i+2] {
			t.Errorf("position %d: expected the most recent ids in order, got %s", i, m.ID)
		}
	}

	store.mu.Lock()
	appended := len(store.appended)
	store.mu.Unlock()
	if appended != 5 {
		t.Errorf("every insert should reach the store, got %d", appended)
	}
}

func TestInsertMessage_ConcurrentSendersMatchHistoryOrder(t *testing.T) {
	s := newTestServer(newMockStore(), 250)
	defer s.Close()

	_, watcher := admit(t, s, "w1", "app:42", nil)
	alice := &types.User{Uname: "alice", Role: types.RoleMember}
	admit(t, s, "s1", "app:42", alice)

	const senders = 8
	const perSender = 20
	var wg sync.WaitGroup
	wg.Add(senders)
	for i := 0; i < senders; i++ {
		go func(i int) {
			defer wg.Done()
			for j := 0; j < perSender; j++ {
				text := "sender " + strconv.Itoa(i) + " msg " + strconv.Itoa(j)
				if _, err := s.InsertMessage("app:42", alice, text, "s1"); err != nil {
					t.Errorf("InsertMessage failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	rm, _ := s.rooms.Get("app:42")
	hist := rm.Snapshot().History
	delivered := watcher.messageIDs()
	if len(hist) != senders*perSender {
		t.Fatalf("expected %d messages in history, got %d", senders*perSender, len(hist))
	}
	if len(delivered) != senders*perSender {
		t.Fatalf("expected %d deliveries, got %d", senders*perSender, len(delivered))
	}
	for i := range hist {
		if hist[i].ID != delivered[i] {
			t.Fatalf("delivery order diverges from history order at %d", i)
		}
	}
}

func TestAddClient_ConcurrentSameUserSingleJoin(t *testing.T) {
	s := newTestServer(newMockStore(), 250)
	defer s.Close()

	_, watcher := admit(t, s, "w1", "app:42", nil)

	const workers = 8
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			client := &Client{
				ID:     "s" + strconv.Itoa(i),
				Sender: &recordingSender{},
				User:   &types.User{Uname: "alice", Role: types.RoleMember},
				Room:   "app:42",
			}
			if _, err := s.AddClient(context.Background(), client); err != nil {
				t.Errorf("AddClient failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if watcher.count(EventUserJoined) != 1 {
		t.Errorf("concurrent admissions of one user must emit exactly one user_joined, got %d", watcher.count(EventUserJoined))
	}

	// Tear all of them down; exactly one user_left at the end.
	for i := 0; i < workers; i++ {
		s.RemoveSocket("s" + strconv.Itoa(i))
	}
	if watcher.count(EventUserLeft) != 1 {
		t.Errorf("expected exactly one user_left, got %d", watcher.count(EventUserLeft))
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(newMockStore(), 250)
	defer s.Close()

	admit(t, s, "s1", "app:42", &types.User{Uname: "alice", Role: types.RoleMember})
	admit(t, s, "s2", "app:7", nil)

	stats := s.Stats()
	if stats["clients"] != 2 || stats["rooms"] != 2 || stats["users"] != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
