package types

import (
	"strconv"
	"time"
)

// Role values a user record may carry. Owners are derived at auth time when
// the authenticating user is listed in the application's owners; the other
// roles come straight from the directory record.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMod    = "mod"
	RoleMember = "member"
)

// Wire error codes delivered to clients. Codes are opaque strings so
// internal failure detail never crosses the socket.
const (
	CodeInternalError    = "INTERNAL_ERROR"
	CodeInvalidToken     = "INVALID_ACCESS_TOKEN"
	CodeNotAuthenticated = "NOT_AUTHENTICATED"
	CodeInvalidMessage   = "INVALID_MESSAGE"
)

// User is a logical identity. One User may back several live sessions at
// once (multi-tab, multi-device); uname is the stable identity key.
type User struct {
	Uname string `json:"uname"`
	Role  string `json:"role"`
}

// Application is a directory record for the application a client
// authenticates against. Owners holds unames.
type Application struct {
	ID     int64    `json:"id"`
	Owners []string `json:"owners"`
}

// IsOwner reports whether uname is a registered owner of the application.
func (a *Application) IsOwner(uname string) bool {
	for _, owner := range a.Owners {
		if owner == uname {
			return true
		}
	}
	return false
}

// Message is a presented chat message. User is a snapshot of the author at
// send time; later role changes do not rewrite history.
type Message struct {
	ID        string    `json:"id"`
	User      User      `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// AuthRequest is the payload of the auth event. AppID is a pointer so a
// missing field is distinguishable from app id 0. The original protocol
// accepted both hashed_token and token_hash; both are still honored.
type AuthRequest struct {
	AppID       *int64 `json:"app_id"`
	HashedToken string `json:"hashed_token"`
	TokenHash   string `json:"token_hash"`
}

// Token returns the token hash from whichever key the client used, or ""
// for an anonymous request.
func (r *AuthRequest) Token() string {
	if r.HashedToken != "" {
		return r.HashedToken
	}
	return r.TokenHash
}

// RoomSnapshot is the array rendering of a room sent to a freshly admitted
// client: current member users plus the history buffer in chronological
// order.
type RoomSnapshot struct {
	Users   []*User    `json:"users"`
	History []*Message `json:"history"`
}

// InitPayload is the successful auth ack. User is absent for anonymous
// sessions.
type InitPayload struct {
	User *User        `json:"user,omitempty"`
	Room RoomSnapshot `json:"room"`
}

// RoomForApp derives the room identifier from an application id. Every
// client of one application lands in the same room.
func RoomForApp(appID int64) string {
	return "app:" + strconv.FormatInt(appID, 10)
}
