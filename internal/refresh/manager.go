package refresh

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/chalarca/jwtauth/internal/models"
)

const tokenBytes = 64

var (
	// ErrNotFound is returned by Store implementations when no record
	// exists for a username.
	ErrNotFound = errors.New("refresh token not found")

	// ErrInvalidToken covers every validation failure: missing record,
	// token mismatch, revoked or expired record. Collapsing them blocks
	// probing for which check failed.
	ErrInvalidToken = errors.New("invalid refresh token")

	// ErrStoreUnavailable wraps store I/O failures. It always surfaces as a
	// hard failure of the enclosing exchange.
	ErrStoreUnavailable = errors.New("refresh store unavailable")
)

// Store persists refresh-token records keyed uniquely by username.
type Store interface {
	GetByUsername(ctx context.Context, username string) (*models.RefreshToken, error)
	Insert(ctx context.Context, rec *models.RefreshToken) error
	Update(ctx context.Context, rec *models.RefreshToken) error
}

// Manager generates, rotates and validates refresh tokens. One record per
// username: issuing for a known username overwrites the stored record, which
// invalidates the previous token value.
type Manager struct {
	Store Store
	TTL   time.Duration

	// Now is overridable in tests, nil means time.Now.
	Now func() time.Time
}

func (m *Manager) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// NewToken returns a fresh opaque refresh token: 64 bytes of crypto/rand
// entropy, base64url without padding.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// IssueOrRotate creates the refresh record for username, or overwrites the
// existing one in place with a fresh token and extended expiry. The store
// write commits before the record is returned, so a token handed to a client
// is always one the store recognizes.
func (m *Manager) IssueOrRotate(ctx context.Context, username, clientIP string) (*models.RefreshToken, error) {
	tok, err := NewToken()
	if err != nil {
		return nil, err
	}

	rec, err := m.Store.GetByUsername(ctx, username)
	switch {
	case errors.Is(err, ErrNotFound):
		rec = &models.RefreshToken{Username: username, CreatedBy: username}
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := m.now()
	rec.Token = tok
	rec.ExpiresAt = now.Add(m.TTL)
	rec.Active = true
	rec.Created = now
	rec.CreatedByIP = clientIP
	rec.Revoked = nil
	rec.RevokedByIP = ""
	rec.ModifiedBy = username
	rec.ModifiedAt = now

	if rec.ID == 0 {
		err = m.Store.Insert(ctx, rec)
	} else {
		err = m.Store.Update(ctx, rec)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return rec, nil
}

// Validate checks a presented refresh token against the stored record for
// username. Missing record, token mismatch, revoked record and expired record
// all return ErrInvalidToken. A record whose expiry equals now is expired.
func (m *Manager) Validate(ctx context.Context, username, presented string) (*models.RefreshToken, error) {
	rec, err := m.Store.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if subtle.ConstantTimeCompare([]byte(rec.Token), []byte(presented)) != 1 {
		return nil, ErrInvalidToken
	}
	if !rec.Active || rec.Revoked != nil {
		return nil, ErrInvalidToken
	}
	if !rec.ExpiresAt.After(m.now()) {
		return nil, ErrInvalidToken
	}

	return rec, nil
}
