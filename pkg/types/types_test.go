package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestRoomForApp(t *testing.T) {
	if got := RoomForApp(42); got != "app:42" {
		t.Errorf("expected app:42, got %s", got)
	}
	if got := RoomForApp(0); got != "app:0" {
		t.Errorf("expected app:0, got %s", got)
	}
}

func TestApplication_IsOwner(t *testing.T) {
	app := &Application{ID: 42, Owners: []string{"bob", "carol"}}

	if !app.IsOwner("bob") {
		t.Error("bob should be an owner")
	}
	if app.IsOwner("alice") {
		t.Error("alice should not be an owner")
	}

	empty := &Application{ID: 7}
	if empty.IsOwner("bob") {
		t.Error("application without owners should own nobody")
	}
}

func TestAuthRequest_TokenPrecedence(t *testing.T) {
	req := &AuthRequest{HashedToken: "abc", TokenHash: "def"}
	if req.Token() != "abc" {
		t.Errorf("hashed_token should win, got %s", req.Token())
	}

	req = &AuthRequest{TokenHash: "def"}
	if req.Token() != "def" {
		t.Errorf("token_hash should be used as fallback, got %s", req.Token())
	}

	req = &AuthRequest{}
	if req.Token() != "" {
		t.Error("anonymous request should have empty token")
	}
}

func TestAuthRequest_MissingAppID(t *testing.T) {
	var req AuthRequest
	if err := json.Unmarshal([]byte(`{"hashed_token":"x"}`), &req); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if req.AppID != nil {
		t.Error("missing app_id should leave AppID nil")
	}

	if err := json.Unmarshal([]byte(`{"app_id":0}`), &req); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if req.AppID == nil || *req.AppID != 0 {
		t.Error("explicit app_id 0 should be distinguishable from missing")
	}
}

func TestValidateText(t *testing.T) {
	if err := ValidateText("hello"); err != nil {
		t.Errorf("valid text rejected: %v", err)
	}
	if err := ValidateText(""); err != ErrEmptyMessage {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}
	if err := ValidateText(strings.Repeat("a", MaxMessageLength)); err != nil {
		t.Errorf("text at the limit rejected: %v", err)
	}
	if err := ValidateText(strings.Repeat("a", MaxMessageLength+1)); err != ErrMessageTooLong {
		t.Errorf("expected ErrMessageTooLong, got %v", err)
	}
}

func TestUser_Validate(t *testing.T) {
	u := &User{Uname: "alice", Role: RoleMember}
	if err := u.Validate(); err != nil {
		t.Errorf("valid user rejected: %v", err)
	}

	u = &User{Role: RoleMember}
	if err := u.Validate(); err != ErrInvalidUname {
		t.Errorf("expected ErrInvalidUname, got %v", err)
	}

	u = &User{Uname: "alice", Role: "superuser"}
	if err := u.Validate(); err != ErrInvalidRole {
		t.Errorf("expected ErrInvalidRole, got %v", err)
	}
}

func TestIsValidRole(t *testing.T) {
	for _, role := range []string{RoleOwner, RoleAdmin, RoleMod, RoleMember} {
		if !IsValidRole(role) {
			t.Errorf("role %s should be valid", role)
		}
	}
	if IsValidRole("") || IsValidRole("guest") {
		t.Error("unknown roles should be invalid")
	}
}

func TestInitPayload_AnonymousOmitsUser(t *testing.T) {
	data, err := json.Marshal(&InitPayload{Room: RoomSnapshot{}})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if strings.Contains(string(data), `"user"`) {
		t.Errorf("anonymous init payload should omit user: %s", data)
	}
}
