package hub

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/lobby"
	"github.com/osohbayr1016/standoff2-sub004/internal/queue"
)

// FormFromQueue absorbs the first ten queued players into a new lobby. The
// first player becomes host. Parties are kept on one side when the entries
// can be split five and five; otherwise players start unassigned. On any
// failure the entries go back to the queue with their original join times.
func (s *Service) FormFromQueue(ctx context.Context) (lobby.Snapshot, error) {
	entries, err := s.queue.Take(ctx, engine.MaxPlayers)
	if err != nil {
		return lobby.Snapshot{}, err
	}
	snap, err := s.formFrom(ctx, entries)
	if err != nil {
		s.log.Warn("lobby formation failed; requeueing", zap.Int("entries", len(entries)), zap.Error(err))
		s.queue.Requeue(ctx, entries)
		return lobby.Snapshot{}, err
	}
	s.log.Info("lobby formed from queue",
		zap.String("lobby_id", snap.State.ID),
		zap.Int("entries", len(entries)),
		zap.String("status", string(snap.State.Status)))
	return snap, nil
}

func (s *Service) formFrom(ctx context.Context, entries []queue.Entry) (lobby.Snapshot, error) {
	var ids []string
	for _, e := range entries {
		ids = append(ids, e.Members...)
	}
	players := make([]engine.Player, len(ids))
	for i, id := range ids {
		p, err := s.player(ctx, id)
		if err != nil {
			return lobby.Snapshot{}, err
		}
		players[i] = p
	}

	lobbyID := uuid.NewString()
	if err := s.seats.reserve(lobbyID, ids...); err != nil {
		return lobby.Snapshot{}, err
	}
	defer s.seats.release(lobbyID, ids...)

	at := s.cfg.Now().UTC()
	st, err := engine.NewState(engine.Options{ID: lobbyID, Host: players[0], Pool: s.cfg.MapPool, Rules: s.cfg.Rules, At: at})
	if err != nil {
		return lobby.Snapshot{}, err
	}
	for _, p := range players[1:] {
		if _, st, err = engine.Apply(st, engine.Command{Type: engine.CmdJoin, UserID: p.UserID, Player: p, At: at}); err != nil {
			return lobby.Snapshot{}, err
		}
	}

	if alpha := splitTeams(entries); alpha != nil {
		for i, e := range entries {
			side := engine.SideBravo
			if alpha[i] {
				side = engine.SideAlpha
			}
			for _, m := range e.Members {
				if m == st.HostID {
					continue
				}
				if _, st, err = engine.Apply(st, engine.Command{Type: engine.CmdSelectTeam, UserID: m, Side: side, At: at}); err != nil {
					return lobby.Snapshot{}, err
				}
			}
		}
	}
	return s.start(ctx, st)
}

// splitTeams picks the entries that form team alpha: whole parties summing
// to five players, always including the first entry (the host's). It returns
// nil when no such split exists.
func splitTeams(entries []queue.Entry) []bool {
	n := len(entries)
	if n == 0 || n > 16 {
		return nil
	}
	for mask := 1; mask < 1<<n; mask += 2 {
		size := 0
		for i := 0; i < n; i++ {
			if mask&(1<<i) != 0 {
				size += entries[i].Size()
			}
		}
		if size != engine.TeamSize {
			continue
		}
		alpha := make([]bool, n)
		for i := range alpha {
			alpha[i] = mask&(1<<i) != 0
		}
		return alpha
	}
	return nil
}
