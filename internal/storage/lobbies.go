package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/lobby"
)

var ErrStaleLobby = apperr.Conflict("LOBBY_VERSION_CONFLICT", "lobby was changed by another writer")

// SaveLobby writes version of a lobby. Version 1 inserts; later versions
// only replace the row holding version-1.
func (s *Store) SaveLobby(ctx context.Context, st engine.State, version int) error {
	row := lobbyRow{
		ID:        st.ID,
		Status:    string(st.Status),
		HostID:    st.HostID,
		Version:   version,
		State:     st,
		ExpiresAt: st.ExpiresAt,
		UpdatedAt: time.Now().UTC(),
	}
	db := s.db.WithContext(ctx)

	if version <= 1 {
		err := db.Create(&row).Error
		if isUniqueViolation(err) {
			return ErrStaleLobby
		}
		return dbErr("lobby store", err)
	}

	res := db.Model(&lobbyRow{ID: st.ID}).
		Where("version = ?", version-1).
		Select("status", "host_id", "version", "state", "expires_at", "updated_at").
		Updates(&row)
	if res.Error != nil {
		return dbErr("lobby store", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrStaleLobby
	}
	return nil
}

func (s *Store) LoadLobby(ctx context.Context, id string) (lobby.Snapshot, error) {
	var row lobbyRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return lobby.Snapshot{}, engine.ErrLobbyNotFound
	}
	if err != nil {
		return lobby.Snapshot{}, dbErr("lobby store", err)
	}
	return lobby.Snapshot{Version: row.Version, State: row.State}, nil
}

// ListActiveLobbies returns every lobby not yet completed or cancelled.
func (s *Store) ListActiveLobbies(ctx context.Context) ([]lobby.Snapshot, error) {
	var rows []lobbyRow
	err := s.db.WithContext(ctx).
		Where("status NOT IN ?", []string{string(engine.StatusCompleted), string(engine.StatusCancelled)}).
		Order("updated_at").
		Find(&rows).Error
	if err != nil {
		return nil, dbErr("lobby store", err)
	}
	out := make([]lobby.Snapshot, len(rows))
	for i, r := range rows {
		out[i] = lobby.Snapshot{Version: r.Version, State: r.State}
	}
	return out, nil
}
