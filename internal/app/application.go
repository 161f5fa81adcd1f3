package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"chatrelay/internal/api"
	"chatrelay/internal/auth"
	"chatrelay/internal/config"
	"chatrelay/internal/directory"
	"chatrelay/internal/presence"
	"chatrelay/internal/room"
	"chatrelay/internal/server"
	"chatrelay/internal/store"
	"chatrelay/internal/websocket"
)

// Application wires the components in dependency order:
// Store → Directory → Rooms/Presence → Session Manager → Handshake →
// Transport → HTTP.
type Application struct {
	config     *config.Config
	store      *store.Store
	sessions   *server.Server
	httpServer *http.Server
}

// New creates an application with all components initialized.
func New(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	messageStore, err := store.New(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize message store: %w", err)
	}

	dir, err := directory.NewClient(cfg.Directory)
	if err != nil {
		_ = messageStore.Close()
		return nil, fmt.Errorf("failed to initialize directory client: %w", err)
	}

	rooms := room.NewRegistry(messageStore, cfg.History.Capacity)
	tracker := presence.NewTracker()
	sessions := server.New(rooms, tracker, messageStore)
	handshake := auth.NewHandshake(dir)

	wsHandler := websocket.NewHandler(handshake, sessions, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	})
	apiServer := api.NewServer(messageStore, sessions)

	mux := http.NewServeMux()
	mux.Handle("/health", apiServer)
	mux.Handle("/stats", apiServer)
	mux.HandleFunc("/ws", wsHandler.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		store:      messageStore,
		sessions:   sessions,
		httpServer: httpServer,
	}, nil
}

// Start begins serving. It returns once the listener is up or startup
// failed.
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting chatrelay on %s", app.httpServer.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		log.Printf("chatrelay started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts the application down in reverse dependency order:
// HTTP → session manager → store.
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down chatrelay")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	app.sessions.Close()

	if err := app.store.Close(); err != nil {
		log.Printf("Store shutdown error: %v", err)
	}

	log.Printf("chatrelay shutdown complete")
	return nil
}

// Addr returns the server address.
func (app *Application) Addr() string {
	return app.httpServer.Addr
}
