package presence

import (
	"sync"

	"chatrelay/pkg/types"
)

// Tracker maps unames to canonical user records. A record exists exactly
// while at least one live client session references that uname; the session
// manager registers on a user's first session and removes on the last.
type Tracker struct {
	mu    sync.RWMutex
	users map[string]*types.User
}

// NewTracker creates an empty presence tracker.
func NewTracker() *Tracker {
	return &Tracker{users: make(map[string]*types.User)}
}

// Lookup returns the canonical record for uname, if present.
func (t *Tracker) Lookup(uname string) (*types.User, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	user, ok := t.users[uname]
	return user, ok
}

// Register inserts user as the canonical record for its uname.
func (t *Tracker) Register(user *types.User) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.users[user.Uname] = user
}

// Remove drops the canonical record for uname. Idempotent.
func (t *Tracker) Remove(uname string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.users, uname)
}

// Len returns the number of tracked users.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}
