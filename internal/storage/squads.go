package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/internal/economy"
)

const squadRetries = 3

var (
	errStaleSquad      = errors.New("squad changed concurrently")
	errAlreadyRecorded = errors.New("match already recorded")
)

func (s *Store) CreateSquad(ctx context.Context, sq economy.Squad) error {
	row := fromSquad(sq)
	err := s.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return economy.ErrSquadExists
	}
	return dbErr("squad store", err)
}

func (s *Store) GetSquad(ctx context.Context, id string) (economy.Squad, error) {
	row, err := loadSquad(s.db.WithContext(ctx), id)
	if err != nil {
		return economy.Squad{}, dbErr("squad store", err)
	}
	return row.toSquad(), nil
}

// UpdateSquad applies fn under an optimistic version check, retrying when a
// concurrent writer got there first.
func (s *Store) UpdateSquad(ctx context.Context, id string, fn func(economy.Squad) (economy.Squad, error)) (economy.Squad, error) {
	for i := 0; i < squadRetries; i++ {
		row, err := loadSquad(s.db.WithContext(ctx), id)
		if err != nil {
			return economy.Squad{}, dbErr("squad store", err)
		}
		next, err := fn(row.toSquad())
		if err != nil {
			return economy.Squad{}, err
		}
		err = saveSquad(s.db.WithContext(ctx), row.Version, next)
		if errors.Is(err, errStaleSquad) {
			continue
		}
		if err != nil {
			return economy.Squad{}, dbErr("squad store", err)
		}
		return next, nil
	}
	return economy.Squad{}, apperr.Dependency("squad store", errStaleSquad)
}

// RecordMatch writes the ledger row and both squads in one transaction. The
// ledger insert is the idempotency gate.
func (s *Store) RecordMatch(ctx context.Context, matchKey, winnerID, loserID string, fn func(w, l economy.Squad) (economy.Squad, economy.Squad)) (bool, error) {
	for i := 0; i < squadRetries; i++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			err := tx.Create(&squadMatchRow{MatchKey: matchKey, WinnerID: winnerID, LoserID: loserID, CreatedAt: time.Now().UTC()}).Error
			if isUniqueViolation(err) {
				return errAlreadyRecorded
			}
			if err != nil {
				return err
			}
			w, err := loadSquad(tx, winnerID)
			if err != nil {
				return err
			}
			l, err := loadSquad(tx, loserID)
			if err != nil {
				return err
			}
			nw, nl := fn(w.toSquad(), l.toSquad())
			if err := saveSquad(tx, w.Version, nw); err != nil {
				return err
			}
			return saveSquad(tx, l.Version, nl)
		})
		switch {
		case err == nil:
			return true, nil
		case errors.Is(err, errAlreadyRecorded):
			return false, nil
		case errors.Is(err, errStaleSquad):
			continue
		default:
			return false, dbErr("squad store", err)
		}
	}
	return false, apperr.Dependency("squad store", errStaleSquad)
}

func loadSquad(db *gorm.DB, id string) (squadRow, error) {
	var row squadRow
	err := db.First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return squadRow{}, economy.ErrSquadNotFound
	}
	return row, err
}

func saveSquad(db *gorm.DB, version int, sq economy.Squad) error {
	row := fromSquad(sq)
	row.Version = version + 1
	res := db.Model(&squadRow{ID: sq.ID}).
		Where("version = ?", version).
		Select("name", "leader_id", "division", "coins", "total_coins", "protections", "consecutive_losses", "version", "updated_at").
		Updates(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errStaleSquad
	}
	return nil
}

func fromSquad(sq economy.Squad) squadRow {
	return squadRow{
		ID:                sq.ID,
		Name:              sq.Name,
		LeaderID:          sq.LeaderID,
		Division:          string(sq.Division),
		Coins:             sq.Coins,
		TotalCoins:        sq.TotalCoins,
		Protections:       sq.Protections,
		ConsecutiveLosses: sq.ConsecutiveLosses,
		UpdatedAt:         sq.UpdatedAt,
	}
}

func (r squadRow) toSquad() economy.Squad {
	return economy.Squad{
		ID:                r.ID,
		Name:              r.Name,
		LeaderID:          r.LeaderID,
		Division:          economy.Division(r.Division),
		Coins:             r.Coins,
		TotalCoins:        r.TotalCoins,
		Protections:       r.Protections,
		ConsecutiveLosses: r.ConsecutiveLosses,
		UpdatedAt:         r.UpdatedAt,
	}
}
