package economy

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/osohbayr1016/standoff2-sub004/internal/auth"
	"github.com/osohbayr1016/standoff2-sub004/internal/telemetry"
)

// Store persists squads. RecordMatch and UpdateSquad must run fn and write
// its result as one unit.
type Store interface {
	CreateSquad(ctx context.Context, s Squad) error
	GetSquad(ctx context.Context, id string) (Squad, error)
	UpdateSquad(ctx context.Context, id string, fn func(Squad) (Squad, error)) (Squad, error)
	// RecordMatch reports applied=false without calling fn when matchKey was
	// recorded before.
	RecordMatch(ctx context.Context, matchKey, winnerID, loserID string, fn func(w, l Squad) (Squad, Squad)) (applied bool, err error)
}

// Info is the division summary shown to squad members.
type Info struct {
	Squad       Squad    `json:"squad"`
	Tier        Tier     `json:"tier"`
	Next        Division `json:"next_division,omitempty"`
	UpgradeCost int      `json:"upgrade_cost"`
	CanUpgrade  bool     `json:"can_upgrade"`
}

type MatchOutcome struct {
	MatchKey string  `json:"match_key"`
	Applied  bool    `json:"applied"`
	Winner   Outcome `json:"winner"`
	Loser    Outcome `json:"loser"`
}

type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewService(store Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{store: store, log: log, now: time.Now}
}

func (s *Service) RegisterSquad(ctx context.Context, caller auth.Caller, id, name, leaderID string) (Squad, error) {
	if !caller.IsAdmin() {
		return Squad{}, auth.ErrForbidden
	}
	id, name, leaderID = strings.TrimSpace(id), strings.TrimSpace(name), strings.TrimSpace(leaderID)
	if id == "" || name == "" || leaderID == "" {
		return Squad{}, ErrInvalidSquad
	}
	sq := NewSquad(id, name, leaderID)
	sq.UpdatedAt = s.now().UTC()
	if err := s.store.CreateSquad(ctx, sq); err != nil {
		return Squad{}, err
	}
	s.log.Info("squad registered", zap.String("squad_id", id), zap.String("leader_id", leaderID))
	return sq, nil
}

// RecordMatch applies one finished squad match. Replaying a matchKey is a
// no-op that reports Applied=false.
func (s *Service) RecordMatch(ctx context.Context, matchKey, winnerID, loserID string) (MatchOutcome, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "economy.record_match")
	defer span.End()
	span.SetAttributes(attribute.String("match.key", matchKey))

	if winnerID == "" || loserID == "" {
		return MatchOutcome{}, ErrInvalidSquad
	}
	if winnerID == loserID {
		return MatchOutcome{}, ErrSameSquad
	}

	out := MatchOutcome{MatchKey: matchKey}
	now := s.now().UTC()
	applied, err := s.store.RecordMatch(ctx, matchKey, winnerID, loserID, func(w, l Squad) (Squad, Squad) {
		w, out.Winner = ApplyWin(w)
		l, out.Loser = ApplyLoss(l)
		w.UpdatedAt, l.UpdatedAt = now, now
		return w, l
	})
	if err != nil {
		return MatchOutcome{}, err
	}
	out.Applied = applied
	if !applied {
		s.log.Info("squad match already recorded", zap.String("match_key", matchKey))
		return out, nil
	}

	s.log.Info("squad match recorded",
		zap.String("match_key", matchKey),
		zap.String("winner", winnerID),
		zap.Int("winner_coins", out.Winner.CoinsDelta),
		zap.String("loser", loserID),
		zap.Int("loser_coins", out.Loser.CoinsDelta),
		zap.Bool("loser_demoted", out.Loser.Demoted),
		zap.Bool("loser_protection_used", out.Loser.ProtectionUsed))
	return out, nil
}

func (s *Service) DivisionInfo(ctx context.Context, squadID string) (Info, error) {
	sq, err := s.store.GetSquad(ctx, squadID)
	if err != nil {
		return Info{}, err
	}
	return infoFor(sq), nil
}

func (s *Service) Upgrade(ctx context.Context, caller auth.Caller, squadID string) (Info, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "economy.upgrade")
	defer span.End()

	sq, err := s.store.UpdateSquad(ctx, squadID, func(sq Squad) (Squad, error) {
		if sq.LeaderID != caller.UserID && !caller.IsAdmin() {
			return sq, ErrNotSquadLeader
		}
		up, err := Upgrade(sq)
		if err != nil {
			return sq, err
		}
		up.UpdatedAt = s.now().UTC()
		return up, nil
	})
	if err != nil {
		return Info{}, err
	}
	s.log.Info("squad upgraded", zap.String("squad_id", squadID), zap.String("division", string(sq.Division)), zap.String("by", caller.UserID))
	return infoFor(sq), nil
}

func infoFor(sq Squad) Info {
	t, _ := TierOf(sq.Division)
	info := Info{Squad: sq, Tier: t, UpgradeCost: t.UpgradeCost}
	if n, ok := next(sq.Division); ok {
		info.Next = n
		info.CanUpgrade = sq.Coins >= t.UpgradeCost
	}
	return info
}

// MemoryStore keeps squads in process. Used by tests and when no database
// is configured.
type MemoryStore struct {
	mu      sync.Mutex
	squads  map[string]Squad
	matches map[string]bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{squads: map[string]Squad{}, matches: map[string]bool{}}
}

func (m *MemoryStore) CreateSquad(_ context.Context, s Squad) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.squads[s.ID]; ok {
		return ErrSquadExists
	}
	m.squads[s.ID] = s
	return nil
}

func (m *MemoryStore) GetSquad(_ context.Context, id string) (Squad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.squads[id]
	if !ok {
		return Squad{}, ErrSquadNotFound
	}
	return s, nil
}

func (m *MemoryStore) UpdateSquad(_ context.Context, id string, fn func(Squad) (Squad, error)) (Squad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.squads[id]
	if !ok {
		return Squad{}, ErrSquadNotFound
	}
	s, err := fn(s)
	if err != nil {
		return Squad{}, err
	}
	m.squads[id] = s
	return s, nil
}

func (m *MemoryStore) RecordMatch(_ context.Context, matchKey, winnerID, loserID string, fn func(w, l Squad) (Squad, Squad)) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.matches[matchKey] {
		return false, nil
	}
	w, ok := m.squads[winnerID]
	if !ok {
		return false, ErrSquadNotFound
	}
	l, ok := m.squads[loserID]
	if !ok {
		return false, ErrSquadNotFound
	}
	w, l = fn(w, l)
	m.squads[winnerID], m.squads[loserID] = w, l
	m.matches[matchKey] = true
	return true, nil
}
