package service

import "errors"

// Protocol-boundary error taxonomy. Collaborator failures are translated to
// one of these before reaching a response; no store or identity detail leaks
// past this package.
var (
	// ErrValidation marks a malformed request.
	ErrValidation = errors.New("invalid request")

	// ErrBadCredentials covers both unknown username and wrong password,
	// so a caller cannot enumerate usernames.
	ErrBadCredentials = errors.New("incorrect username or password")

	// ErrAccountLocked is returned while the lockout window is open.
	ErrAccountLocked = errors.New("account is locked")

	// ErrInvalidToken is the single rejection for the refresh exchange,
	// whatever the underlying cause.
	ErrInvalidToken = errors.New("invalid access token or refresh token")

	// ErrUserExists rejects registration of a taken username.
	ErrUserExists = errors.New("username already exists")

	// ErrStoreUnavailable marks an infrastructure fault. Surfaces as a
	// generic server error, logged internally.
	ErrStoreUnavailable = errors.New("store unavailable")
)
