package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// Store implements interfaces.MessageStore on SQLite. Reads run directly on
// the pool; every write goes through a single-writer goroutine so SQLite
// never sees write contention.
type Store struct {
	db       *sql.DB
	writeCh  chan writeOp
	shutdown chan struct{}
	wg       sync.WaitGroup
	closed   bool
	mu       sync.RWMutex
}

type writeOp struct {
	op     func(*sql.DB) error
	result chan error
}

// Config holds store settings.
type Config struct {
	Path            string        `json:"path"`
	MaxConnections  int           `json:"max_connections"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	WriteTimeout    time.Duration `json:"write_timeout"`
}

// DefaultConfig returns store settings suitable for a single-process relay.
func DefaultConfig() *Config {
	return &Config{
		Path:            "./chatrelay.db",
		MaxConnections:  10,
		ConnMaxLifetime: time.Hour,
		WriteTimeout:    30 * time.Second,
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	if c.MaxConnections <= 0 {
		return fmt.Errorf("store max connections must be positive")
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("store write timeout must be positive")
	}
	return nil
}

// New opens the database, applies pragmas and the schema, and starts the
// write loop.
func New(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := applyPragmas(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{
		db:       db,
		writeCh:  make(chan writeOp, 100),
		shutdown: make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop(cfg.WriteTimeout)

	return s, nil
}

// writeLoop processes all write operations in a single goroutine.
func (s *Store) writeLoop(timeout time.Duration) {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			err := op.op(s.db)
			if err != nil {
				log.Printf("Store write failed: %v", err)
			}
			op.result <- err

		case <-s.shutdown:
			// Drain queued writes before exiting so fire-and-forget
			// appends submitted just before Close still land.
			for {
				select {
				case op := <-s.writeCh:
					op.result <- op.op(s.db)
				default:
					log.Println("Store write loop shutting down")
					return
				}
			}
		}
	}
}

// executeWrite queues a write operation and waits for completion.
func (s *Store) executeWrite(ctx context.Context, op func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return fmt.Errorf("store is closed")
	}
	s.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case s.writeCh <- writeOp{op: op, result: result}:
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	case <-ctx.Done():
		return ctx.Err()
	case <-s.shutdown:
		return fmt.Errorf("store is shutting down")
	}
}

// AppendMessage persists one chat message. CreatedAt is assigned here so
// store time is the single clock for persisted ordering.
func (s *Store) AppendMessage(ctx context.Context, msg *interfaces.StoredMessage) error {
	return s.executeWrite(ctx, func(db *sql.DB) error {
		query := `
			INSERT INTO chat_messages (id, room, uname, role, text, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`
		_, err := db.ExecContext(ctx, query,
			msg.ID,
			msg.Room,
			msg.Uname,
			msg.Role,
			msg.Text,
			time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chat message: %w", err)
		}
		return nil
	})
}

// FetchRecentMessages returns up to limit of the newest messages for a room.
// The query runs newest-first to hit the (room, created_at) index page, then
// the result is reversed so callers receive chronological order.
func (s *Store) FetchRecentMessages(ctx context.Context, room string, limit int) ([]*types.Message, error) {
	query := `
		SELECT id, uname, role, text, created_at
		FROM chat_messages
		WHERE room = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, room, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []*types.Message
	for rows.Next() {
		var msg types.Message
		if err := rows.Scan(&msg.ID, &msg.User.Uname, &msg.User.Role, &msg.Text, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message row: %w", err)
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat message rows: %w", err)
	}

	// Newest-first from the query, oldest-first for the caller.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// HealthCheck verifies connectivity and a basic read.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_messages").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close stops the write loop and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	return nil
}
