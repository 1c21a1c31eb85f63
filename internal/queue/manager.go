package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/internal/events"
	"github.com/osohbayr1016/standoff2-sub004/internal/metrics"
	"github.com/osohbayr1016/standoff2-sub004/internal/profile"
	"github.com/osohbayr1016/standoff2-sub004/internal/telemetry"
)

// SeatChecker reports whether a user already sits in a live lobby.
type SeatChecker interface {
	SeatOf(userID string) (lobbyID string, ok bool)
}

type Manager struct {
	store    Store
	profiles profile.Store
	seats    SeatChecker
	bus      *events.Bus
	log      *zap.Logger
	now      func() time.Time
}

type Option func(*Manager)

func WithSeatChecker(s SeatChecker) Option { return func(m *Manager) { m.seats = s } }

func WithClock(now func() time.Time) Option { return func(m *Manager) { m.now = now } }

func NewManager(store Store, profiles profile.Store, bus *events.Bus, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{store: store, profiles: profiles, bus: bus, log: log, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetSeatChecker wires the lobby arena after both sides are constructed.
func (m *Manager) SetSeatChecker(s SeatChecker) { m.seats = s }

// Join admits requester and party members as one unit and returns the
// 1-based queue position of the new entry.
func (m *Manager) Join(ctx context.Context, requester string, members []string) (int, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "queue.join")
	defer span.End()

	party, err := normalizeParty(requester, members)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("party.size", len(party)))

	skills := make([]int, 0, len(party))
	for _, uid := range party {
		p, err := m.profiles.Get(ctx, uid)
		if errors.Is(err, profile.ErrNotFound) {
			return 0, apperr.Wrap(apperr.KindValidation, profile.ErrNoProfile.Code, "party member "+uid+" has no profile", err)
		}
		if err != nil {
			return 0, apperr.Dependency("profile store", err)
		}
		if err := profile.Validate(p); err != nil {
			return 0, apperr.Wrap(apperr.KindValidation, profile.ErrIncomplete.Code, "party member "+uid+" cannot play", err)
		}
		if m.seats != nil {
			if _, seated := m.seats.SeatOf(uid); seated {
				return 0, ErrInLobby
			}
		}
		skills = append(skills, p.Skill)
	}

	entry := Entry{
		ID:        uuid.NewString(),
		Requester: party[0],
		Members:   party,
		AvgSkill:  avgSkill(skills),
		JoinedAt:  m.now().UTC(),
	}
	if err := m.store.Add(ctx, entry); err != nil {
		return 0, err
	}

	m.log.Info("party queued",
		zap.String("entry_id", entry.ID),
		zap.String("requester", entry.Requester),
		zap.Int("size", entry.Size()),
		zap.Int("avg_skill", entry.AvgSkill))
	total := m.publish(ctx)

	pos, _, err := m.Position(ctx, requester)
	if err != nil {
		return 0, err
	}
	m.log.Debug("queue position", zap.Int("position", pos), zap.Int("total_waiting", total))
	return pos, nil
}

// Leave removes the entry containing userID. Leaving twice is not an error.
func (m *Manager) Leave(ctx context.Context, userID string) (bool, error) {
	e, removed, err := m.store.RemoveMember(ctx, userID)
	if err != nil {
		return false, err
	}
	if removed {
		m.log.Info("party left queue", zap.String("entry_id", e.ID), zap.String("by", userID))
		m.publish(ctx)
	}
	return removed, nil
}

// Position returns the 1-based position of the entry containing userID.
func (m *Manager) Position(ctx context.Context, userID string) (int, bool, error) {
	entries, err := m.store.List(ctx)
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		if e.has(userID) {
			ahead := 0
			for _, o := range entries {
				if o.JoinedAt.Before(e.JoinedAt) {
					ahead++
				}
			}
			return ahead + 1, true, nil
		}
	}
	return 0, false, nil
}

func (m *Manager) TotalWaiting(ctx context.Context) (int, error) {
	entries, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	return totalPlayers(entries), nil
}

func (m *Manager) Status(ctx context.Context, userID string) (Status, error) {
	pos, in, err := m.Position(ctx, userID)
	if err != nil {
		return Status{}, err
	}
	total, err := m.TotalWaiting(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{InQueue: in, Position: pos, TotalWaiting: total}, nil
}

// Take removes whole entries from the head of the queue totalling n players;
// the entries are absorbed into a lobby by the caller.
func (m *Manager) Take(ctx context.Context, n int) ([]Entry, error) {
	entries, err := m.store.TakeHead(ctx, n)
	if err != nil {
		return nil, err
	}
	m.log.Info("entries absorbed into lobby", zap.Int("entries", len(entries)), zap.Int("players", n))
	m.publish(ctx)
	return entries, nil
}

// Requeue puts previously taken entries back, keeping their join time. Used
// when lobby formation fails after Take.
func (m *Manager) Requeue(ctx context.Context, entries []Entry) {
	for _, e := range entries {
		if err := m.store.Add(ctx, e); err != nil {
			m.log.Warn("requeue failed", zap.String("entry_id", e.ID), zap.Error(err))
		}
	}
	m.publish(ctx)
}

func (m *Manager) Clear(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	m.log.Info("queue cleared by operator")
	m.publish(ctx)
	return nil
}

func (m *Manager) publish(ctx context.Context) int {
	total, err := m.TotalWaiting(ctx)
	if err != nil {
		m.log.Warn("queue total unavailable", zap.Error(err))
		return 0
	}
	metrics.QueueWaiting.Set(float64(total))
	events.Publish(m.bus, events.QueueChanged{TotalWaiting: total})
	return total
}

func normalizeParty(requester string, members []string) ([]string, error) {
	if requester == "" {
		return nil, profile.ErrEmptyUserID
	}
	party := []string{requester}
	seen := map[string]bool{requester: true}
	for _, m := range members {
		if m == "" {
			return nil, profile.ErrEmptyUserID
		}
		if m == requester {
			continue
		}
		if seen[m] {
			return nil, profile.ErrDuplicateIDs
		}
		seen[m] = true
		party = append(party, m)
	}
	if len(party) < 1 || len(party) > MaxPartySize {
		return nil, ErrPartySize
	}
	return party, nil
}
