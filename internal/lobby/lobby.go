// Package lobby runs one goroutine per lobby. The goroutine owns the lobby
// state; every mutation goes through its inbox, is persisted, and only then
// becomes the new version that subscribers see.
package lobby

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/events"
	"github.com/osohbayr1016/standoff2-sub004/internal/metrics"
)

var ErrStopped = apperr.New(apperr.KindConflict, "LOBBY_STOPPED", "lobby is no longer running")

// Store persists a committed lobby version.
type Store interface {
	SaveLobby(ctx context.Context, s engine.State, version int) error
}

type Msg interface{ isLobbyMsg() }

// Command applies one engine command and reports the outcome on Reply.
type Command struct {
	Cmd   engine.Command
	Reply chan Result
}

func (Command) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan Snapshot // where this client wants to receive snapshots
}

func (Join) isLobbyMsg() {}

type Leave struct{ ClientID string }

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

// botTurn fires when a bot leader's ban delay elapses. Fires carrying an old
// generation are ignored.
type botTurn struct{ gen int }

func (botTurn) isLobbyMsg() {}

type Snapshot struct {
	Version int          `json:"version"`
	State   engine.State `json:"state"`
}

type View struct {
	Version    int
	NumClients int
	State      engine.State
}

type Result struct {
	Snapshot Snapshot
	Events   []engine.Event
	Err      error
}

type Config struct {
	Store       Store
	Bus         *events.Bus
	Log         *zap.Logger
	BotBanDelay time.Duration
	Rand        *rand.Rand
	Now         func() time.Time
	// OnCommit runs on the lobby goroutine after each committed version.
	OnCommit func(Snapshot)
}

type Lobby struct {
	inbox   chan Msg
	state   engine.State
	version int
	clients map[string]chan Snapshot
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	cfg      Config
	botGen   int
	botTimer *time.Timer
}

// NewLobby starts the actor for initial, which is taken to be already
// persisted at version.
func NewLobby(parent context.Context, initial engine.State, version int, cfg Config) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	l := &Lobby{
		inbox:   make(chan Msg, 64),
		state:   initial,
		version: version,
		clients: make(map[string]chan Snapshot),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		cfg:     cfg,
	}
	l.cfg.Log = cfg.Log.With(zap.String("lobby_id", initial.ID))

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	defer close(l.done)
	l.scheduleBot()
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				// Register client + send current snapshot immediately
				l.clients[msg.ClientID] = msg.Outbox
				select {
				case msg.Outbox <- l.snapshot():
				default:
					close(msg.Outbox)
					delete(l.clients, msg.ClientID)
				}

			case Leave:
				if ch, ok := l.clients[msg.ClientID]; ok {
					close(ch)
					delete(l.clients, msg.ClientID)
				}

			case Command:
				res := l.handle(msg.Cmd)
				if msg.Reply != nil {
					msg.Reply <- res
				}

			case botTurn:
				l.handleBotTurn(msg.gen)

			case GetState:
				msg.Reply <- View{
					Version:    l.version,
					NumClients: len(l.clients),
					State:      l.state,
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) handle(cmd engine.Command) Result {
	if cmd.At.IsZero() {
		cmd.At = l.cfg.Now().UTC()
	}
	evs, next, err := engine.Apply(l.state, cmd)
	if err != nil {
		l.cfg.Log.Debug("command rejected",
			zap.String("type", string(cmd.Type)),
			zap.String("user_id", cmd.UserID),
			zap.Error(err))
		return Result{Snapshot: l.snapshot(), Err: err}
	}
	if len(evs) == 0 {
		return Result{Snapshot: l.snapshot()}
	}

	if l.cfg.Store != nil {
		if err := l.cfg.Store.SaveLobby(l.ctx, next, l.version+1); err != nil {
			l.cfg.Log.Warn("lobby save failed; state not committed", zap.Error(err))
			if apperr.KindOf(err) == apperr.KindInternal {
				err = apperr.Dependency("lobby store", err)
			}
			return Result{Snapshot: l.snapshot(), Err: err}
		}
	}

	l.commit(next, evs)
	return Result{Snapshot: l.snapshot(), Events: evs}
}

func (l *Lobby) commit(next engine.State, evs []engine.Event) {
	l.state = next
	l.version++

	for _, ev := range evs {
		switch ev.Type {
		case engine.EvtStatusChanged:
			metrics.LobbyTransitions.WithLabelValues(string(ev.To)).Inc()
			l.cfg.Log.Info("lobby status changed",
				zap.String("from", string(ev.From)),
				zap.String("to", string(ev.To)),
				zap.Int("version", l.version))
		case engine.EvtMapBanned:
			actor := "human"
			if ev.ByBot {
				actor = "bot"
			}
			metrics.MapBans.WithLabelValues(actor).Inc()
		case engine.EvtLobbyCancelled:
			l.cfg.Log.Info("lobby cancelled", zap.String("reason", ev.Reason))
		}
	}

	snap := l.snapshot()
	l.broadcast(snap)
	if l.cfg.OnCommit != nil {
		l.cfg.OnCommit(snap)
	}
	events.Publish(l.cfg.Bus, events.LobbyChanged{LobbyID: next.ID, Status: string(next.Status), Version: l.version})
	l.scheduleBot()
}

// scheduleBot arms the auto-ban timer when a bot leader holds the turn. Any
// earlier timer is invalidated by bumping the generation.
func (l *Lobby) scheduleBot() {
	l.botGen++
	if l.botTimer != nil {
		l.botTimer.Stop()
		l.botTimer = nil
	}
	if _, ok := engine.BotToMove(l.state); !ok {
		return
	}
	gen := l.botGen
	l.botTimer = time.AfterFunc(l.cfg.BotBanDelay, func() {
		select {
		case l.inbox <- botTurn{gen: gen}:
		case <-l.ctx.Done():
		}
	})
}

func (l *Lobby) handleBotTurn(gen int) {
	if gen != l.botGen {
		return
	}
	id, ok := engine.BotToMove(l.state)
	if !ok {
		return
	}
	m, ok := engine.RandomLegalMap(l.state, l.cfg.Rand)
	if !ok {
		return
	}
	res := l.handle(engine.Command{Type: engine.CmdBan, UserID: id, Map: m})
	if res.Err != nil {
		l.cfg.Log.Warn("bot ban failed", zap.String("bot_id", id), zap.String("map", m), zap.Error(res.Err))
		if apperr.Retryable(apperr.KindOf(res.Err)) {
			l.scheduleBot()
		}
	}
}

func (l *Lobby) snapshot() Snapshot {
	return Snapshot{Version: l.version, State: l.state}
}

func (l *Lobby) shutdown() {
	if l.botTimer != nil {
		l.botTimer.Stop()
	}
	for id, ch := range l.clients {
		close(ch) // Tell client no more snapshots
		delete(l.clients, id)
	}
	l.cancel()
}

func (l *Lobby) broadcast(snap Snapshot) {
	for id, ch := range l.clients {
		select {
		case ch <- snap:
			//ok
		default:
			// Client is slow/full - drop them.
			close(ch)
			delete(l.clients, id)
		}
	}
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Stop ends the actor; subscribers see their outbox closed.
func (l *Lobby) Stop() { l.cancel() }

// Done is closed once the lobby goroutine has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

// Do applies cmd and waits for the outcome.
func (l *Lobby) Do(ctx context.Context, cmd engine.Command) (Result, error) {
	reply := make(chan Result, 1)
	if err := l.send(ctx, Command{Cmd: cmd, Reply: reply}); err != nil {
		return Result{}, err
	}
	select {
	case res := <-reply:
		return res, res.Err
	case <-l.done:
		return Result{}, ErrStopped
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Subscribe registers outbox for snapshots; the current one is sent first.
// The outbox is closed when the client is dropped or the lobby stops.
func (l *Lobby) Subscribe(ctx context.Context, clientID string, outbox chan Snapshot) error {
	return l.send(ctx, Join{ClientID: clientID, Outbox: outbox})
}

func (l *Lobby) Unsubscribe(clientID string) {
	select {
	case l.inbox <- Leave{ClientID: clientID}:
	case <-l.done:
	}
}

// View returns the current version without going through the command path.
func (l *Lobby) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (l *Lobby) send(ctx context.Context, m Msg) error {
	select {
	case l.inbox <- m:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}
