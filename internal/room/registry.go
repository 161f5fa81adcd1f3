package room

import (
	"context"
	"fmt"
	"log"
	"sync"

	"golang.org/x/sync/singleflight"

	"chatrelay/pkg/history"
	"chatrelay/pkg/interfaces"
)

// Registry maps room identifiers to live rooms. A room is created on first
// reference, hydrated from the message store's recent page, and then cached
// for the process lifetime.
type Registry struct {
	store    interfaces.MessageStore
	capacity int

	mu    sync.RWMutex
	rooms map[string]*Room

	// Collapses concurrent first-reference creations of the same room so
	// the store is fetched once and every caller gets the same instance.
	creating singleflight.Group
}

// NewRegistry creates a registry hydrating rooms from store with the given
// history capacity. A capacity below one falls back to the default.
func NewRegistry(store interfaces.MessageStore, capacity int) *Registry {
	if capacity < 1 {
		capacity = history.DefaultCapacity
	}
	return &Registry{
		store:    store,
		capacity: capacity,
		rooms:    make(map[string]*Room),
	}
}

// GetOrCreate returns the room for name, creating and hydrating it if this
// is the first reference. Existing rooms return immediately without store
// access.
func (r *Registry) GetOrCreate(ctx context.Context, name string) (*Room, error) {
	r.mu.RLock()
	existing, ok := r.rooms[name]
	r.mu.RUnlock()
	if ok {
		return existing, nil
	}

	v, err, _ := r.creating.Do(name, func() (interface{}, error) {
		// A concurrent creator may have won between the read above and
		// entering the flight.
		r.mu.RLock()
		existing, ok := r.rooms[name]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		messages, err := r.store.FetchRecentMessages(ctx, name, r.capacity)
		if err != nil {
			return nil, fmt.Errorf("failed to hydrate room %s: %w", name, err)
		}

		created := New(name, r.capacity)
		for _, msg := range messages {
			created.PushHistory(msg)
		}

		r.mu.Lock()
		r.rooms[name] = created
		r.mu.Unlock()

		log.Printf("Room created: name=%s history=%d", name, len(messages))
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Room), nil
}

// Get returns the room if it already exists in memory.
func (r *Registry) Get(name string) (*Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rm, ok := r.rooms[name]
	return rm, ok
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
