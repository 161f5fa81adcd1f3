package types

// MaxMessageLength bounds chat text; longer submissions are rejected before
// they reach the room.
const MaxMessageLength = 500

// IsValidRole checks a role against the known set.
func IsValidRole(role string) bool {
	switch role {
	case RoleOwner, RoleAdmin, RoleMod, RoleMember:
		return true
	default:
		return false
	}
}

// ValidateText checks chat text bounds.
func ValidateText(text string) error {
	if len(text) == 0 {
		return ErrEmptyMessage
	}
	if len(text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// Validate checks a user record as returned by the directory.
func (u *User) Validate() error {
	if u.Uname == "" {
		return ErrInvalidUname
	}
	if !IsValidRole(u.Role) {
		return ErrInvalidRole
	}
	return nil
}
