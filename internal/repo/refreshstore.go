package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chalarca/jwtauth/internal/models"
	"github.com/chalarca/jwtauth/internal/refresh"
)

// GormRefreshStore implements refresh.Store over gorm. Username carries the
// unique index, so the store holds at most one record per user.
type GormRefreshStore struct {
	DB *gorm.DB
}

func (r *GormRefreshStore) GetByUsername(ctx context.Context, username string) (*models.RefreshToken, error) {
	var rec models.RefreshToken
	if err := r.DB.WithContext(ctx).Where("username = ?", username).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, refresh.ErrNotFound
		}
		return nil, fmt.Errorf("loading refresh token: %w", err)
	}
	return &rec, nil
}

// Insert upserts on the username key. Two concurrent first-time issues for
// the same username then collapse to a single row, last writer wins, instead
// of one of them failing on the unique index.
func (r *GormRefreshStore) Insert(ctx context.Context, rec *models.RefreshToken) error {
	err := r.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "username"}},
			UpdateAll: true,
		}).
		Create(rec).Error
	if err != nil {
		return fmt.Errorf("inserting refresh token: %w", err)
	}
	return nil
}

func (r *GormRefreshStore) Update(ctx context.Context, rec *models.RefreshToken) error {
	if err := r.DB.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("updating refresh token: %w", err)
	}
	return nil
}
