package session

import "errors"

var (
	// ErrSessionNotFound is returned by Handler.Load when no valid session
	// exists for the token.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotOpen is returned by operations that need a bound token.
	ErrNotOpen = errors.New("session is not open")

	// ErrRoleNotHeld is returned when setting a property of a role the
	// session does not hold.
	ErrRoleNotHeld = errors.New("role not held by session")

	// ErrInvalidConfig is returned by NewHandler for an unusable Config.
	ErrInvalidConfig = errors.New("invalid session configuration")
)
