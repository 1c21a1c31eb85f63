package hub

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/lobby"
	"github.com/osohbayr1016/standoff2-sub004/internal/metrics"
)

// Run sweeps expired lobbies every SweepEvery until ctx ends. A failed
// sweep is logged and retried on the next tick.
func (s *Service) Run(ctx context.Context) error {
	t := time.NewTicker(s.cfg.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep sends Expire to every running lobby and retires terminal ones. It
// returns how many lobbies it cancelled.
func (s *Service) Sweep(ctx context.Context) int {
	lbs, err := s.hub.List(ctx)
	if err != nil {
		metrics.SweepErrors.Inc()
		s.log.Warn("sweep: list lobbies", zap.Error(err))
		return 0
	}

	cancelled := 0
	for _, lb := range lbs {
		res, err := lb.Do(ctx, engine.Command{Type: engine.CmdExpire, At: s.cfg.Now().UTC()})
		if errors.Is(err, lobby.ErrStopped) {
			continue
		}
		if err != nil {
			metrics.SweepErrors.Inc()
			s.log.Warn("sweep: expire lobby", zap.Error(err))
			continue
		}
		st := res.Snapshot.State
		if engine.ContainsEvent(res.Events, engine.EvtLobbyCancelled) {
			cancelled++
			metrics.SweepCancelled.Inc()
			s.log.Info("lobby expired", zap.String("lobby_id", st.ID), zap.Time("expires_at", st.ExpiresAt))
		}
		if st.Status.Terminal() {
			s.retire(ctx, st.ID)
		}
	}
	return cancelled
}

// Restore brings every persisted, unfinished lobby back into the arena.
func (s *Service) Restore(ctx context.Context) (int, error) {
	snaps, err := s.store.ListActiveLobbies(ctx)
	if err != nil {
		return 0, err
	}
	for _, snap := range snaps {
		if _, err := s.hub.Create(ctx, snap); err != nil {
			return 0, err
		}
		s.seats.sync(snap)
	}
	if len(snaps) > 0 {
		s.log.Info("lobbies restored", zap.Int("count", len(snaps)))
	}
	return len(snaps), nil
}
