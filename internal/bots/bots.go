// Package bots creates synthetic players for filling queues and lobbies in
// test and demo environments.
package bots

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/lobby"
	"github.com/osohbayr1016/standoff2-sub004/internal/profile"
)

// IDPrefix marks bot user ids.
const IDPrefix = "bot-"

var ErrCount = apperr.Validation("BOT_COUNT", "bot count must be between 1 and 10")

type Queue interface {
	Join(ctx context.Context, requester string, members []string) (int, error)
}

type Lobbies interface {
	Join(ctx context.Context, lobbyID, userID string) (lobby.Result, error)
	Dispatch(ctx context.Context, lobbyID string, cmd engine.Command) (lobby.Result, error)
}

type Filler struct {
	profiles profile.Writer
	queue    Queue
	lobbies  Lobbies
	log      *zap.Logger
}

func NewFiller(profiles profile.Writer, q Queue, lobbies Lobbies, log *zap.Logger) *Filler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Filler{profiles: profiles, queue: q, lobbies: lobbies, log: log}
}

func IsBot(userID string) bool { return strings.HasPrefix(userID, IDPrefix) }

// NewProfile returns a playable bot profile with a fresh id.
func NewProfile() profile.Profile {
	id := IDPrefix + uuid.NewString()
	return profile.Profile{
		UserID:       id,
		DisplayName:  "Bot " + id[len(IDPrefix):len(IDPrefix)+6],
		GamePlayerID: id,
		Skill:        profile.DefaultSkill,
		IsBot:        true,
	}
}

// FillQueue queues count solo bots and returns their ids. Bots created
// before a failure stay queued.
func (f *Filler) FillQueue(ctx context.Context, count int) ([]string, error) {
	if count < 1 || count > engine.MaxPlayers {
		return nil, ErrCount
	}
	ids := make([]string, 0, count)
	for i := 0; i < count; i++ {
		p, err := f.create(ctx)
		if err != nil {
			return ids, err
		}
		if _, err := f.queue.Join(ctx, p.UserID, nil); err != nil {
			return ids, err
		}
		ids = append(ids, p.UserID)
	}
	f.log.Info("bots queued", zap.Int("count", len(ids)))
	return ids, nil
}

// FillLobby seats up to count bots in a lobby, each on the side with room
// and marked ready. It stops early once the lobby is full.
func (f *Filler) FillLobby(ctx context.Context, lobbyID string, count int) ([]string, error) {
	if count < 1 || count > engine.MaxPlayers {
		return nil, ErrCount
	}
	var ids []string
	for i := 0; i < count; i++ {
		p, err := f.create(ctx)
		if err != nil {
			return ids, err
		}
		res, err := f.lobbies.Join(ctx, lobbyID, p.UserID)
		if err != nil {
			if len(ids) > 0 && apperr.KindOf(err) == apperr.KindConflict {
				break
			}
			return ids, err
		}
		ids = append(ids, p.UserID)

		if side, ok := sideWithRoom(res.Snapshot.State); ok {
			if _, err := f.lobbies.Dispatch(ctx, lobbyID, engine.Command{Type: engine.CmdSelectTeam, UserID: p.UserID, Side: side}); err != nil {
				return ids, err
			}
		}
		if _, err := f.lobbies.Dispatch(ctx, lobbyID, engine.Command{Type: engine.CmdMarkReady, UserID: p.UserID}); err != nil {
			f.log.Debug("bot ready skipped", zap.String("bot_id", p.UserID), zap.Error(err))
		}
	}
	f.log.Info("bots seated", zap.String("lobby_id", lobbyID), zap.Int("count", len(ids)))
	return ids, nil
}

func (f *Filler) create(ctx context.Context) (profile.Profile, error) {
	p := NewProfile()
	if err := f.profiles.Put(ctx, p); err != nil {
		return profile.Profile{}, apperr.Dependency("profile store", err)
	}
	return p, nil
}

// sideWithRoom prefers the smaller team, alpha on ties.
func sideWithRoom(s engine.State) (engine.Side, bool) {
	a, b := len(s.TeamAlpha), len(s.TeamBravo)
	switch {
	case a < engine.TeamSize && a <= b:
		return engine.SideAlpha, true
	case b < engine.TeamSize:
		return engine.SideBravo, true
	case a < engine.TeamSize:
		return engine.SideAlpha, true
	}
	return "", false
}
