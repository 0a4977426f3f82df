package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chalarca/jwtauth/internal/hash"
	"github.com/chalarca/jwtauth/internal/models"
)

// GormSource is the database-backed identity store. Lockout values come from
// configuration; the historical defaults (2 attempts, 10 seconds) are
// development placeholders, not production policy.
type GormSource struct {
	DB              *gorm.DB
	MaxFailedLogins int
	LockoutWindow   time.Duration

	// Now is overridable in tests, nil means time.Now.
	Now func() time.Time
}

func (s *GormSource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *GormSource) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("finding user: %w", err)
	}
	return &user, nil
}

func (s *GormSource) VerifyPassword(ctx context.Context, user *models.User, password string) (PasswordResult, error) {
	now := s.now()

	if user.LockoutUntil != nil && user.LockoutUntil.After(now) {
		return PasswordLocked, nil
	}

	if hash.CheckPassword(user.PasswordHash, password) {
		if user.FailedLogins != 0 || user.LockoutUntil != nil {
			user.FailedLogins = 0
			user.LockoutUntil = nil
			if err := s.saveLockoutState(ctx, user); err != nil {
				return PasswordFailed, err
			}
		}
		return PasswordOK, nil
	}

	user.FailedLogins++
	if user.FailedLogins >= s.MaxFailedLogins {
		until := now.Add(s.LockoutWindow)
		user.LockoutUntil = &until
		user.FailedLogins = 0
	}
	if err := s.saveLockoutState(ctx, user); err != nil {
		return PasswordFailed, err
	}
	return PasswordFailed, nil
}

func (s *GormSource) saveLockoutState(ctx context.Context, user *models.User) error {
	err := s.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", user.ID).
		Updates(map[string]any{
			"failed_logins": user.FailedLogins,
			"lockout_until": user.LockoutUntil,
		}).Error
	if err != nil {
		return fmt.Errorf("updating lockout state: %w", err)
	}
	return nil
}

func (s *GormSource) GetRoles(ctx context.Context, user *models.User) ([]string, error) {
	var rows []models.UserRole
	if err := s.DB.WithContext(ctx).Where("user_id = ?", user.ID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading roles: %w", err)
	}
	roles := make([]string, 0, len(rows))
	for _, r := range rows {
		roles = append(roles, r.Role)
	}
	return roles, nil
}

func (s *GormSource) GetExtraClaims(ctx context.Context, user *models.User) ([]models.UserClaim, error) {
	var rows []models.UserClaim
	if err := s.DB.WithContext(ctx).Where("user_id = ?", user.ID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("loading user claims: %w", err)
	}
	return rows, nil
}

func (s *GormSource) Create(ctx context.Context, user *models.User, password string) error {
	pwHash, err := hash.Password(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.PasswordHash = pwHash

	var existing models.User
	err = s.DB.WithContext(ctx).Where("username = ?", user.Username).First(&existing).Error
	if err == nil {
		return ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("checking username: %w", err)
	}

	if err := s.DB.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}
