package interfaces

import "errors"

// Sentinel errors shared across collaborator implementations.
var (
	ErrApplicationNotFound = errors.New("application not found")
	ErrInvalidToken        = errors.New("token hash did not resolve to a user")
)
