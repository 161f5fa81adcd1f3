package server

import "errors"

// Session manager error types.
var (
	ErrNotAuthenticated = errors.New("anonymous sessions cannot send messages")
	ErrRoomNotFound     = errors.New("room not found")
	ErrServerClosed     = errors.New("server is shutting down")
)
