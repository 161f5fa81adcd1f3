package interfaces

import (
	"context"

	"chatrelay/pkg/types"
)

// Directory resolves application ids and token hashes against the external
// account/application directory. Both calls cross a network boundary, so
// they take a context for timeout and cancellation.
type Directory interface {
	// FindApplicationByID looks up an application record.
	// Returns ErrApplicationNotFound when the id is unknown.
	FindApplicationByID(ctx context.Context, id int64) (*types.Application, error)

	// FindUserByTokenHash resolves a token hash to a user record.
	// Returns ErrInvalidToken when the directory explicitly rejects the
	// hash, which is distinct from a transport failure.
	FindUserByTokenHash(ctx context.Context, hash string) (*types.User, error)
}
