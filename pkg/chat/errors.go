package chat

import "errors"

// Sentinel errors surfaced by the stores. Handlers map these to HTTP status
// codes; everything else is treated as an internal persistence failure.
var (
	ErrNotFound           = errors.New("not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
