package types

import "errors"

var (
	ErrInvalidUname   = errors.New("uname cannot be empty")
	ErrInvalidRole    = errors.New("role must be one of owner, admin, mod, member")
	ErrEmptyMessage   = errors.New("message text cannot be empty")
	ErrMessageTooLong = errors.New("message text exceeds 500 characters")
)
