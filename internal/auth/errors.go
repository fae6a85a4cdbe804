package auth

import "errors"

// Domain errors for the auth package.
var (
	// ErrTokenInvalid is returned for tokens that fail signature, expiry or
	// claim checks.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidRole is returned when minting a token for an unknown role.
	ErrInvalidRole = errors.New("auth: invalid role")
)
