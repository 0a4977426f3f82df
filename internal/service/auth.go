package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/chalarca/jwtauth/internal/identity"
	"github.com/chalarca/jwtauth/internal/logging"
	"github.com/chalarca/jwtauth/internal/models"
	"github.com/chalarca/jwtauth/internal/refresh"
	"github.com/chalarca/jwtauth/internal/token"
)

// EventPublisher receives audit events. Publishing is best effort: a failure
// is logged and never fails the request.
type EventPublisher interface {
	PublishEvent(ctx context.Context, key string, event any) error
}

// AuthService orchestrates the login and refresh exchanges.
type AuthService struct {
	Identity identity.Source
	Signer   *token.Signer
	Refresh  *refresh.Manager
	Events   EventPublisher
}

type LoginResult struct {
	ID           string
	Username     string
	Email        string
	Roles        []string
	IsVerified   bool
	AccessToken  string
	RefreshToken string
}

type RefreshResult struct {
	AccessToken  string
	RefreshToken string
}

// Login authenticates the credentials and, on success, issues a signed access
// token and rotates the user's refresh record. Unknown username and wrong
// password produce the same error.
func (s *AuthService) Login(ctx context.Context, username, password, clientIP string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "username", username)

	if username == "" || password == "" {
		return nil, ErrValidation
	}

	user, err := s.Identity.FindByUsername(ctx, username)
	if errors.Is(err, identity.ErrNotFound) {
		l.Warn("login_failed", "reason", "unknown username")
		return nil, ErrBadCredentials
	}
	if err != nil {
		l.Error("login_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	result, err := s.Identity.VerifyPassword(ctx, user, password)
	if err != nil {
		l.Error("login_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	switch result {
	case identity.PasswordLocked:
		l.Warn("login_failed", "reason", "account locked")
		return nil, ErrAccountLocked
	case identity.PasswordFailed:
		l.Warn("login_failed", "reason", "wrong password")
		return nil, ErrBadCredentials
	}

	access, rec, roles, err := s.issuePair(ctx, user, clientIP)
	if err != nil {
		l.Error("login_failed", "error", err)
		return nil, err
	}

	s.publish(ctx, username, map[string]any{
		"type":     "user_login",
		"username": username,
		"ip":       clientIP,
	})
	l.Info("login_successful")

	return &LoginResult{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		Roles:        roles,
		IsVerified:   user.EmailConfirmed,
		AccessToken:  access,
		RefreshToken: rec.Token,
	}, nil
}

// RefreshExchange trades an expired access token plus the matching refresh
// token for a fresh pair. Every rejection collapses to ErrInvalidToken. The
// old refresh token is invalidated by the rotation: single use, no reuse
// detection.
func (s *AuthService) RefreshExchange(ctx context.Context, accessToken, refreshToken, clientIP string) (*RefreshResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh")

	if accessToken == "" || refreshToken == "" {
		return nil, ErrValidation
	}

	principal, err := token.ExtractExpiredPrincipal(accessToken, s.Signer.Key)
	if err != nil {
		l.Warn("refresh_rejected", "reason", "access token")
		return nil, ErrInvalidToken
	}

	if _, err := s.Refresh.Validate(ctx, principal.Username, refreshToken); err != nil {
		if errors.Is(err, refresh.ErrStoreUnavailable) {
			l.Error("refresh_failed", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		l.Warn("refresh_rejected", "reason", "refresh token", "username", principal.Username)
		return nil, ErrInvalidToken
	}

	// A validated refresh token for a user the identity store no longer
	// knows is an inconsistency, reported like any other rejection.
	user, err := s.Identity.FindByUsername(ctx, principal.Username)
	if errors.Is(err, identity.ErrNotFound) {
		l.Warn("refresh_rejected", "reason", "unknown principal", "username", principal.Username)
		return nil, ErrInvalidToken
	}
	if err != nil {
		l.Error("refresh_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	access, rec, _, err := s.issuePair(ctx, user, clientIP)
	if err != nil {
		l.Error("refresh_failed", "error", err)
		return nil, err
	}

	s.publish(ctx, user.Username, map[string]any{
		"type":     "token_refresh",
		"username": user.Username,
		"ip":       clientIP,
	})
	l.Info("refresh_successful", "username", user.Username)

	return &RefreshResult{AccessToken: access, RefreshToken: rec.Token}, nil
}

// Register creates a user account. Recovered feature of the original service;
// the HTTP contract centers on login/refresh but a complete deployment needs
// a way to add users.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register", "username", username)

	if username == "" || password == "" {
		return nil, ErrValidation
	}

	user := &models.User{Username: username, Email: email}
	if err := s.Identity.Create(ctx, user, password); err != nil {
		if errors.Is(err, identity.ErrUserExists) {
			l.Warn("register_rejected", "reason", "username taken")
			return nil, ErrUserExists
		}
		l.Error("register_failed", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	s.publish(ctx, username, map[string]any{
		"type":     "user_registered",
		"username": username,
	})
	l.Info("register_successful")

	return user, nil
}

// issuePair signs a new access token and rotates the refresh record. The
// refresh write commits before anything is returned; respond-then-persist
// would let a crash hand out a token the store never saw.
func (s *AuthService) issuePair(ctx context.Context, user *models.User, clientIP string) (string, *models.RefreshToken, []string, error) {
	roles, err := s.Identity.GetRoles(ctx, user)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	extra, err := s.Identity.GetExtraClaims(ctx, user)
	if err != nil {
		return "", nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	access, err := s.Signer.Issue(user, extra, roles, clientIP)
	if err != nil {
		return "", nil, nil, fmt.Errorf("signing access token: %w", err)
	}

	rec, err := s.Refresh.IssueOrRotate(ctx, user.Username, clientIP)
	if err != nil {
		if errors.Is(err, refresh.ErrStoreUnavailable) {
			return "", nil, nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		return "", nil, nil, err
	}

	return access, rec, roles, nil
}

func (s *AuthService) publish(ctx context.Context, key string, event map[string]any) {
	if s.Events == nil {
		return
	}
	if err := s.Events.PublishEvent(ctx, key, event); err != nil {
		logging.FromContext(ctx).Error("event_publish_failed", "error", err)
	}
}
