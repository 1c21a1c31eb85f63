package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/rating"
	"github.com/osohbayr1016/standoff2-sub004/internal/result"
)

func (s *Store) CreateResult(ctx context.Context, r result.Result) error {
	row := fromResult(r)
	err := s.db.WithContext(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return result.ErrExists
	}
	return dbErr("result store", err)
}

func (s *Store) GetResult(ctx context.Context, id string) (result.Result, error) {
	var row resultRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return result.Result{}, result.ErrNotFound
	}
	if err != nil {
		return result.Result{}, dbErr("result store", err)
	}
	return row.toResult(), nil
}

func (s *Store) LatestForLobby(ctx context.Context, lobbyID string) (result.Result, error) {
	var row resultRow
	err := s.db.WithContext(ctx).Where("lobby_id = ?", lobbyID).Order("created_at DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return result.Result{}, result.ErrNotFound
	}
	if err != nil {
		return result.Result{}, dbErr("result store", err)
	}
	return row.toResult(), nil
}

// ListPending returns pending results oldest first.
func (s *Store) ListPending(ctx context.Context) ([]result.Result, error) {
	return s.listWhere(ctx, "status = ?", string(result.StatusPending))
}

func (s *Store) ListUnappliedEconomy(ctx context.Context) ([]result.Result, error) {
	return s.listWhere(ctx, "status = ? AND economy_applied = ? AND squad_alpha <> '' AND squad_bravo <> ''",
		string(result.StatusApproved), false)
}

func (s *Store) ListUncompletedLobbies(ctx context.Context) ([]result.Result, error) {
	return s.listWhere(ctx, "status = ? AND lobby_completed = ?", string(result.StatusApproved), false)
}

func (s *Store) listWhere(ctx context.Context, query string, args ...any) ([]result.Result, error) {
	var rows []resultRow
	if err := s.db.WithContext(ctx).Where(query, args...).Order("created_at").Find(&rows).Error; err != nil {
		return nil, dbErr("result store", err)
	}
	out := make([]result.Result, len(rows))
	for i, r := range rows {
		out[i] = r.toResult()
	}
	return out, nil
}

// ApproveResult is the single gate for approval: the conditional
// pending->approved update and the rating changes of both rosters commit
// together or not at all.
func (s *Store) ApproveResult(ctx context.Context, id string, rv result.Review) (result.Result, []rating.Change, error) {
	var (
		out     result.Result
		changes []rating.Change
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := review(tx, id, result.StatusApproved, rv); err != nil {
			return err
		}
		var row resultRow
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return err
		}

		winners, losers := row.AlphaIDs, row.BravoIDs
		if rv.WinningSide == engine.SideBravo {
			winners, losers = losers, winners
		}
		wm, err := skillsOf(tx, winners)
		if err != nil {
			return err
		}
		lm, err := skillsOf(tx, losers)
		if err != nil {
			return err
		}
		changes = rating.Plan(wm, lm, rv.Delta)

		if len(winners) > 0 {
			if err := tx.Model(&profileRow{}).Where("user_id IN ?", winners).
				Update("skill", gorm.Expr("skill + ?", rv.Delta)).Error; err != nil {
				return err
			}
		}
		if len(losers) > 0 {
			if err := tx.Model(&profileRow{}).Where("user_id IN ?", losers).
				Update("skill", gorm.Expr("CASE WHEN skill > ? THEN skill - ? ELSE 0 END", rv.Delta, rv.Delta)).Error; err != nil {
				return err
			}
		}
		out = row.toResult()
		return nil
	})
	if err != nil {
		return result.Result{}, nil, dbErr("result store", err)
	}
	return out, changes, nil
}

func (s *Store) RejectResult(ctx context.Context, id string, rv result.Review) (result.Result, error) {
	var out result.Result
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := review(tx, id, result.StatusRejected, rv); err != nil {
			return err
		}
		var row resultRow
		if err := tx.First(&row, "id = ?", id).Error; err != nil {
			return err
		}
		out = row.toResult()
		return nil
	})
	if err != nil {
		return result.Result{}, dbErr("result store", err)
	}
	return out, nil
}

func (s *Store) MarkEconomyApplied(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&resultRow{}).
		Where("id = ? AND status = ?", id, string(result.StatusApproved)).
		Update("economy_applied", true).Error
	return dbErr("result store", err)
}

func (s *Store) MarkLobbyCompleted(ctx context.Context, id string) error {
	err := s.db.WithContext(ctx).Model(&resultRow{}).
		Where("id = ? AND status = ?", id, string(result.StatusApproved)).
		Update("lobby_completed", true).Error
	return dbErr("result store", err)
}

// review moves a pending result to status. Zero rows updated means the
// result is unknown or was reviewed already.
func review(tx *gorm.DB, id string, status result.Status, rv result.Review) error {
	updates := map[string]any{
		"status":      string(status),
		"reviewer_id": rv.ReviewerID,
		"reviewed_at": rv.At,
		"notes":       rv.Notes,
	}
	if status == result.StatusApproved {
		updates["winning_side"] = string(rv.WinningSide)
	}
	res := tx.Model(&resultRow{}).Where("id = ? AND status = ?", id, string(result.StatusPending)).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var n int64
	if err := tx.Model(&resultRow{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return result.ErrNotFound
	}
	return result.ErrReviewed
}

func skillsOf(tx *gorm.DB, ids []string) ([]rating.Member, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []profileRow
	if err := tx.Where("user_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	byID := make(map[string]int, len(rows))
	for _, r := range rows {
		byID[r.UserID] = r.Skill
	}
	out := make([]rating.Member, 0, len(ids))
	for _, id := range ids {
		if skill, ok := byID[id]; ok {
			out = append(out, rating.Member{UserID: id, Skill: skill})
		}
	}
	return out, nil
}

func fromResult(r result.Result) resultRow {
	return resultRow{
		ID:             r.ID,
		LobbyID:        r.LobbyID,
		SubmitterID:    r.SubmitterID,
		Evidence:       r.Evidence,
		Status:         string(r.Status),
		WinningSide:    string(r.WinningSide),
		ReviewerID:     r.ReviewerID,
		ReviewedAt:     r.ReviewedAt,
		Notes:          r.Notes,
		AlphaIDs:       r.AlphaIDs,
		BravoIDs:       r.BravoIDs,
		SquadAlpha:     r.SquadAlpha,
		SquadBravo:     r.SquadBravo,
		EconomyApplied: r.EconomyApplied,
		LobbyCompleted: r.LobbyCompleted,
		CreatedAt:      r.CreatedAt,
	}
}

func (r resultRow) toResult() result.Result {
	return result.Result{
		ID:             r.ID,
		LobbyID:        r.LobbyID,
		SubmitterID:    r.SubmitterID,
		Evidence:       r.Evidence,
		Status:         result.Status(r.Status),
		WinningSide:    engine.Side(r.WinningSide),
		ReviewerID:     r.ReviewerID,
		ReviewedAt:     r.ReviewedAt,
		Notes:          r.Notes,
		AlphaIDs:       r.AlphaIDs,
		BravoIDs:       r.BravoIDs,
		SquadAlpha:     r.SquadAlpha,
		SquadBravo:     r.SquadBravo,
		EconomyApplied: r.EconomyApplied,
		LobbyCompleted: r.LobbyCompleted,
		CreatedAt:      r.CreatedAt,
	}
}
