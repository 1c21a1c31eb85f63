package hub

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/events"
	"github.com/osohbayr1016/standoff2-sub004/internal/lobby"
	"github.com/osohbayr1016/standoff2-sub004/internal/profile"
	"github.com/osohbayr1016/standoff2-sub004/internal/queue"
)

var ErrSquadPair = apperr.Validation("SQUAD_PAIR", "squad matches need both squad ids and they must differ")

// Store is the lobby persistence the arena needs.
type Store interface {
	lobby.Store
	LoadLobby(ctx context.Context, id string) (lobby.Snapshot, error)
	ListActiveLobbies(ctx context.Context) ([]lobby.Snapshot, error)
}

type Config struct {
	MapPool     []string
	Rules       engine.Rules
	BotBanDelay time.Duration
	SweepEvery  time.Duration
	Now         func() time.Time
}

// CreateParams are the optional settings of a player-created lobby.
type CreateParams struct {
	InitialMap string
	SquadAlpha string
	SquadBravo string
}

type Service struct {
	hub      *Hub
	store    Store
	profiles profile.Store
	queue    *queue.Manager
	bus      *events.Bus
	seats    *seating
	cfg      Config
	log      *zap.Logger
}

// NewService starts the arena. When q is set it is wired to refuse users
// already seated in a lobby.
func NewService(ctx context.Context, store Store, profiles profile.Store, q *queue.Manager, bus *events.Bus, cfg Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.SweepEvery <= 0 {
		cfg.SweepEvery = 15 * time.Second
	}
	s := &Service{
		store:    store,
		profiles: profiles,
		queue:    q,
		bus:      bus,
		seats:    newSeating(),
		cfg:      cfg,
		log:      log,
	}
	s.hub = NewHub(ctx, lobby.Config{
		Store:       store,
		Bus:         bus,
		Log:         log,
		BotBanDelay: cfg.BotBanDelay,
		Now:         cfg.Now,
		OnCommit:    s.seats.sync,
	})
	if q != nil {
		q.SetSeatChecker(s)
	}
	return s
}

func (s *Service) SeatOf(userID string) (string, bool) { return s.seats.SeatOf(userID) }

// CreateLobby opens a lobby hosted by hostID, who is seated on alpha.
func (s *Service) CreateLobby(ctx context.Context, hostID string, p CreateParams) (lobby.Snapshot, error) {
	if (p.SquadAlpha == "") != (p.SquadBravo == "") || (p.SquadAlpha != "" && p.SquadAlpha == p.SquadBravo) {
		return lobby.Snapshot{}, ErrSquadPair
	}
	host, err := s.player(ctx, hostID)
	if err != nil {
		return lobby.Snapshot{}, err
	}

	id := uuid.NewString()
	if err := s.seats.reserve(id, hostID); err != nil {
		return lobby.Snapshot{}, err
	}
	defer s.seats.release(id, hostID)

	st, err := engine.NewState(engine.Options{
		ID:         id,
		Host:       host,
		Pool:       s.cfg.MapPool,
		InitialMap: p.InitialMap,
		SquadAlpha: p.SquadAlpha,
		SquadBravo: p.SquadBravo,
		Rules:      s.cfg.Rules,
		At:         s.cfg.Now().UTC(),
	})
	if err != nil {
		return lobby.Snapshot{}, err
	}
	snap, err := s.start(ctx, st)
	if err != nil {
		return lobby.Snapshot{}, err
	}
	s.dequeue(ctx, hostID)
	s.log.Info("lobby created", zap.String("lobby_id", id), zap.String("host_id", hostID), zap.String("initial_map", p.InitialMap))
	return snap, nil
}

// Join seats userID in a lobby with a snapshot of their profile.
func (s *Service) Join(ctx context.Context, lobbyID, userID string) (lobby.Result, error) {
	p, err := s.player(ctx, userID)
	if err != nil {
		return lobby.Result{}, err
	}
	if err := s.seats.reserve(lobbyID, userID); err != nil {
		return lobby.Result{}, err
	}
	defer s.seats.release(lobbyID, userID)

	res, err := s.Dispatch(ctx, lobbyID, engine.Command{Type: engine.CmdJoin, UserID: userID, Player: p})
	if err != nil {
		return res, err
	}
	s.dequeue(ctx, userID)
	return res, nil
}

// Dispatch routes cmd to the lobby's actor. Lobbies that reach a terminal
// status are retired from the arena.
func (s *Service) Dispatch(ctx context.Context, lobbyID string, cmd engine.Command) (lobby.Result, error) {
	lb, err := s.running(ctx, lobbyID)
	if err != nil {
		return lobby.Result{}, err
	}
	res, err := lb.Do(ctx, cmd)
	if errors.Is(err, lobby.ErrStopped) {
		return res, engine.ErrLobbyClosed
	}
	if err != nil {
		return res, err
	}
	if res.Snapshot.State.Status.Terminal() {
		s.retire(ctx, lobbyID)
	}
	return res, nil
}

// Lobby returns the running actor, for streaming subscribers.
func (s *Service) Lobby(ctx context.Context, lobbyID string) (*lobby.Lobby, error) {
	return s.running(ctx, lobbyID)
}

// Snapshot returns the latest version, from storage for retired lobbies.
func (s *Service) Snapshot(ctx context.Context, lobbyID string) (lobby.Snapshot, error) {
	lb, err := s.hub.Get(ctx, lobbyID)
	if err != nil {
		return lobby.Snapshot{}, err
	}
	if lb != nil {
		v, err := lb.View(ctx)
		if err == nil {
			return lobby.Snapshot{Version: v.Version, State: v.State}, nil
		}
		if !errors.Is(err, lobby.ErrStopped) {
			return lobby.Snapshot{}, err
		}
	}
	return s.store.LoadLobby(ctx, lobbyID)
}

func (s *Service) running(ctx context.Context, lobbyID string) (*lobby.Lobby, error) {
	lb, err := s.hub.Get(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if lb != nil {
		return lb, nil
	}
	snap, err := s.store.LoadLobby(ctx, lobbyID)
	if err != nil {
		return nil, err
	}
	if snap.State.Status.Terminal() {
		return nil, engine.ErrLobbyClosed
	}
	// persisted but not running (e.g. created by another instance before a
	// restart): bring it up
	return s.hub.Create(ctx, snap)
}

func (s *Service) start(ctx context.Context, st engine.State) (lobby.Snapshot, error) {
	if err := s.store.SaveLobby(ctx, st, 1); err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			err = apperr.Dependency("lobby store", err)
		}
		return lobby.Snapshot{}, err
	}
	snap := lobby.Snapshot{Version: 1, State: st}
	if _, err := s.hub.Create(ctx, snap); err != nil {
		return lobby.Snapshot{}, err
	}
	s.seats.sync(snap)
	events.Publish(s.bus, events.LobbyChanged{LobbyID: st.ID, Status: string(st.Status), Version: 1})
	return snap, nil
}

func (s *Service) retire(ctx context.Context, lobbyID string) {
	if err := s.hub.Remove(ctx, lobbyID); err != nil {
		s.log.Warn("retire lobby", zap.String("lobby_id", lobbyID), zap.Error(err))
	}
	s.seats.drop(lobbyID)
}

func (s *Service) player(ctx context.Context, userID string) (engine.Player, error) {
	if userID == "" {
		return engine.Player{}, profile.ErrEmptyUserID
	}
	p, err := s.profiles.Get(ctx, userID)
	if err != nil {
		return engine.Player{}, err
	}
	if err := profile.Validate(p); err != nil {
		return engine.Player{}, err
	}
	name := p.DisplayName
	if name == "" {
		name = p.UserID
	}
	return engine.Player{UserID: p.UserID, DisplayName: name, Skill: p.Skill, AvatarURL: p.AvatarURL, IsBot: p.IsBot}, nil
}

func (s *Service) dequeue(ctx context.Context, userIDs ...string) {
	if s.queue == nil {
		return
	}
	for _, id := range userIDs {
		if _, err := s.queue.Leave(ctx, id); err != nil {
			s.log.Warn("dequeue seated player", zap.String("user_id", id), zap.Error(err))
		}
	}
}

// Shutdown stops every lobby actor.
func (s *Service) Shutdown() { s.hub.Shutdown() }
