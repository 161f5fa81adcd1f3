package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"chatrelay/pkg/interfaces"
	"chatrelay/pkg/types"
)

// Result is the outcome of a successful handshake: the room derived from the
// application identity and the authenticated user, nil for an anonymous
// session.
type Result struct {
	Room string
	User *types.User
}

// Handshake resolves an auth request against the directory and decides
// whether the connecting session is anonymous or identified.
//
// Failures split into two channels: ErrMalformedRequest and
// ErrUnknownApplication are pre-trust protocol errors reported on the
// best-effort notification channel, while directory failures after
// validation travel back through the caller's ack as an opaque
// INTERNAL_ERROR code.
type Handshake struct {
	directory interfaces.Directory
}

// NewHandshake creates a handshake bound to a directory.
func NewHandshake(directory interfaces.Directory) *Handshake {
	return &Handshake{directory: directory}
}

// Authenticate validates the raw auth payload and resolves it to a Result.
// Exactly one of three outcomes: an anonymous session, an identified session
// (role upgraded to owner when the uname is among the application's owners),
// or an error.
func (h *Handshake) Authenticate(ctx context.Context, payload json.RawMessage) (*Result, error) {
	var req types.AuthRequest
	if len(payload) == 0 || json.Unmarshal(payload, &req) != nil {
		return nil, fmt.Errorf("%w: must send a payload object with the auth event", ErrMalformedRequest)
	}
	if req.AppID == nil {
		return nil, fmt.Errorf("%w: must send an integer app_id with the auth event", ErrMalformedRequest)
	}

	app, err := h.directory.FindApplicationByID(ctx, *req.AppID)
	if err != nil {
		if errors.Is(err, interfaces.ErrApplicationNotFound) {
			return nil, ErrUnknownApplication
		}
		return nil, fmt.Errorf("directory application lookup failed: %w", err)
	}

	roomName := types.RoomForApp(app.ID)

	token := req.Token()
	if token == "" {
		return &Result{Room: roomName}, nil
	}

	user, err := h.directory.FindUserByTokenHash(ctx, token)
	if err != nil {
		if errors.Is(err, interfaces.ErrInvalidToken) {
			// Policy: an invalid token downgrades to an anonymous
			// session instead of rejecting the connection.
			log.Printf("Auth token invalid, admitting anonymous: app=%d", app.ID)
			return &Result{Room: roomName}, nil
		}
		return nil, fmt.Errorf("directory token lookup failed: %w", err)
	}

	if app.IsOwner(user.Uname) {
		user.Role = types.RoleOwner
	}

	return &Result{Room: roomName, User: user}, nil
}

// IsClientError reports whether err belongs on the best-effort client_error
// notification channel rather than the auth ack.
func IsClientError(err error) bool {
	return errors.Is(err, ErrMalformedRequest) || errors.Is(err, ErrUnknownApplication)
}
