package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/internal/profile"
)

func (s *Store) Get(ctx context.Context, userID string) (profile.Profile, error) {
	var row profileRow
	err := s.db.WithContext(ctx).First(&row, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return profile.Profile{}, profile.ErrNotFound
	}
	if err != nil {
		return profile.Profile{}, apperr.Dependency("profile store", err)
	}
	return profile.Profile{
		UserID:       row.UserID,
		DisplayName:  row.DisplayName,
		GamePlayerID: row.GamePlayerID,
		Skill:        row.Skill,
		AvatarURL:    row.AvatarURL,
		IsBot:        row.IsBot,
	}, nil
}

// Put creates or replaces a profile.
func (s *Store) Put(ctx context.Context, p profile.Profile) error {
	if p.UserID == "" {
		return profile.ErrEmptyUserID
	}
	row := profileRow{
		UserID:       p.UserID,
		DisplayName:  p.DisplayName,
		GamePlayerID: p.GamePlayerID,
		Skill:        p.Skill,
		AvatarURL:    p.AvatarURL,
		IsBot:        p.IsBot,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
	return dbErr("profile store", err)
}
