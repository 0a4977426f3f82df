package identity

import (
	"context"
	"errors"

	"github.com/chalarca/jwtauth/internal/models"
)

// PasswordResult is the outcome of a password check.
type PasswordResult int

const (
	PasswordOK PasswordResult = iota
	PasswordLocked
	PasswordFailed
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrUserExists = errors.New("username already exists")
)

// Source is the identity store consumed by the token exchange protocol.
type Source interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)

	// VerifyPassword checks the password and applies the lockout policy:
	// a locked account reports PasswordLocked regardless of password
	// correctness, repeated failures lock the account, success resets the
	// failure counter.
	VerifyPassword(ctx context.Context, user *models.User, password string) (PasswordResult, error)

	GetRoles(ctx context.Context, user *models.User) ([]string, error)

	// GetExtraClaims returns the user's stored claims in insertion order.
	// Duplicate names are preserved.
	GetExtraClaims(ctx context.Context, user *models.User) ([]models.UserClaim, error)

	// Create registers a new user with a hashed password. Returns
	// ErrUserExists when the username is taken.
	Create(ctx context.Context, user *models.User, password string) error
}
