package auth

import "errors"

// Handshake error types. Both are reported on the best-effort notification
// channel since no trustworthy ack exists before validation completes.
var (
	ErrMalformedRequest   = errors.New("malformed auth request")
	ErrUnknownApplication = errors.New("no application found with the app_id sent to the auth event")
)
