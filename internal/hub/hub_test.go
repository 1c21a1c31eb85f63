package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
	"github.com/osohbayr1016/standoff2-sub004/internal/engine"
	"github.com/osohbayr1016/standoff2-sub004/internal/events"
	"github.com/osohbayr1016/standoff2-sub004/internal/lobby"
	"github.com/osohbayr1016/standoff2-sub004/internal/profile"
	"github.com/osohbayr1016/standoff2-sub004/internal/queue"
)

var pool = []string{"Sandstone", "Province", "Rust", "Zone 7", "Dune", "Breeze", "Hanami"}

type memStore struct {
	mu    sync.Mutex
	snaps map[string]lobby.Snapshot
	fail  bool
}

func newMemStore() *memStore { return &memStore{snaps: map[string]lobby.Snapshot{}} }

func (m *memStore) SaveLobby(_ context.Context, s engine.State, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("db down")
	}
	m.snaps[s.ID] = lobby.Snapshot{Version: version, State: s}
	return nil
}

func (m *memStore) LoadLobby(_ context.Context, id string) (lobby.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[id]
	if !ok {
		return lobby.Snapshot{}, engine.ErrLobbyNotFound
	}
	return s, nil
}

func (m *memStore) ListActiveLobbies(context.Context) ([]lobby.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []lobby.Snapshot
	for _, s := range m.snaps {
		if !s.State.Status.Terminal() {
			out = append(out, s)
		}
	}
	return out, nil
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc      *Service
	store    *memStore
	profiles *profile.Memory
	queue    *queue.Manager
	clock    *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	profiles := profile.NewMemory()
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("u%d", i)
		require.NoError(t, profiles.Put(context.Background(), profile.Profile{UserID: id, GamePlayerID: "g-" + id, Skill: 1000 + i}))
	}
	f := &fixture{store: newMemStore(), profiles: profiles, clock: &clock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}}
	bus := events.NewBus(nil)
	f.queue = queue.NewManager(queue.NewMemoryStore(), profiles, bus, nil, queue.WithClock(f.clock.Now))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	f.svc = NewService(ctx, f.store, profiles, f.queue, bus, Config{
		MapPool:     pool,
		Rules:       engine.Rules{LobbyTTL: 30 * time.Minute, MatchTTL: time.Hour},
		BotBanDelay: time.Millisecond,
		Now:         f.clock.Now,
	}, nil)
	t.Cleanup(f.svc.Shutdown)
	return f
}

func TestHub_Create_Get_SamePointer(t *testing.T) {
	h := NewHub(context.Background(), lobby.Config{})
	defer h.Shutdown()

	st, err := engine.NewState(engine.Options{ID: "ZED123", Host: engine.Player{UserID: "h"}, Pool: pool, At: time.Now()})
	require.NoError(t, err)

	lb1, err := h.Create(context.Background(), lobby.Snapshot{Version: 1, State: st})
	require.NoError(t, err)
	again, err := h.Create(context.Background(), lobby.Snapshot{Version: 1, State: st})
	require.NoError(t, err)
	lb2, err := h.Get(context.Background(), "ZED123")
	require.NoError(t, err)

	require.NotNil(t, lb1)
	assert.Same(t, lb1, lb2)
	assert.Same(t, lb1, again)

	require.NoError(t, h.Remove(context.Background(), "ZED123"))
	<-lb1.Done()
	missing, err := h.Get(context.Background(), "ZED123")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestService_OneLobbyPerPlayer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.svc.CreateLobby(ctx, "u0", CreateParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Version)
	assert.Equal(t, "u0", a.State.HostID)

	res, err := f.svc.Join(ctx, a.State.ID, "u1")
	require.NoError(t, err)
	assert.Len(t, res.Snapshot.State.Players, 2)

	id, ok := f.svc.SeatOf("u1")
	require.True(t, ok)
	assert.Equal(t, a.State.ID, id)

	_, err = f.svc.CreateLobby(ctx, "u1", CreateParams{})
	require.ErrorIs(t, err, ErrSeated)

	b, err := f.svc.CreateLobby(ctx, "u2", CreateParams{InitialMap: "dune"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Dune"}, b.State.MapBan.Pool)

	_, err = f.svc.Join(ctx, b.State.ID, "u1")
	require.ErrorIs(t, err, ErrSeated)

	_, err = f.queue.Join(ctx, "u1", nil)
	require.ErrorIs(t, err, queue.ErrInLobby)

	// leaving frees the seat
	_, err = f.svc.Dispatch(ctx, a.State.ID, engine.Command{Type: engine.CmdLeave, UserID: "u1"})
	require.NoError(t, err)
	_, err = f.svc.Join(ctx, b.State.ID, "u1")
	require.NoError(t, err)
}

func TestService_CreateValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateLobby(ctx, "u0", CreateParams{InitialMap: "Atlantis"})
	require.ErrorIs(t, err, engine.ErrUnknownMap)
	_, ok := f.svc.SeatOf("u0")
	assert.False(t, ok, "failed create must not hold a seat")

	_, err = f.svc.CreateLobby(ctx, "u0", CreateParams{SquadAlpha: "s1"})
	require.ErrorIs(t, err, ErrSquadPair)

	_, err = f.svc.CreateLobby(ctx, "ghost", CreateParams{})
	require.ErrorIs(t, err, profile.ErrNotFound)

	f.store.fail = true
	_, err = f.svc.CreateLobby(ctx, "u0", CreateParams{})
	require.Error(t, err)
	_, ok = f.svc.SeatOf("u0")
	assert.False(t, ok)
}

func TestService_DispatchUnknownLobby(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Dispatch(context.Background(), "nope", engine.Command{Type: engine.CmdMarkReady, UserID: "u0"})
	require.ErrorIs(t, err, engine.ErrLobbyNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestService_FormFromQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for i := 0; i < 10; i++ {
		_, err := f.queue.Join(ctx, fmt.Sprintf("u%d", i), nil)
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}

	snap, err := f.svc.FormFromQueue(ctx)
	require.NoError(t, err)
	st := snap.State
	assert.Equal(t, "u0", st.HostID)
	assert.Equal(t, engine.StatusMapBan, st.Status)
	assert.Equal(t, []string{"u0", "u1", "u2", "u3", "u4"}, st.TeamAlpha)
	assert.Equal(t, []string{"u5", "u6", "u7", "u8", "u9"}, st.TeamBravo)
	assert.Equal(t, "u4", st.MapBan.Leaders[engine.SideAlpha])
	assert.Equal(t, "u9", st.MapBan.Leaders[engine.SideBravo])

	total, err := f.queue.TotalWaiting(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	for i := 0; i < 10; i++ {
		_, ok := f.svc.SeatOf(fmt.Sprintf("u%d", i))
		assert.True(t, ok)
	}

	_, err = f.svc.FormFromQueue(ctx)
	require.ErrorIs(t, err, queue.ErrNotEnoughQueued)
}

func TestService_FormFromQueueRequeuesOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	for i := 0; i < 10; i++ {
		_, err := f.queue.Join(ctx, fmt.Sprintf("u%d", i), nil)
		require.NoError(t, err)
		f.clock.Advance(time.Second)
	}
	// u7 loses the field needed to play after queueing
	require.NoError(t, f.profiles.Put(ctx, profile.Profile{UserID: "u7", Skill: 1000}))

	_, err := f.svc.FormFromQueue(ctx)
	require.ErrorIs(t, err, profile.ErrIncomplete)

	total, err := f.queue.TotalWaiting(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	pos, _, err := f.queue.Position(ctx, "u0")
	require.NoError(t, err)
	assert.Equal(t, 1, pos, "requeued entries keep their join time")
}

func TestService_SweepCancelsExpired(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	snap, err := f.svc.CreateLobby(ctx, "u0", CreateParams{})
	require.NoError(t, err)
	id := snap.State.ID

	assert.Equal(t, 0, f.svc.Sweep(ctx))

	f.clock.Advance(31 * time.Minute)
	_, err = f.svc.Join(ctx, id, "u1")
	require.ErrorIs(t, err, engine.ErrLobbyExpired, "expired lobbies are immutable before the sweep runs")

	assert.Equal(t, 1, f.svc.Sweep(ctx))

	got, err := f.svc.Snapshot(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCancelled, got.State.Status)
	assert.Equal(t, "expired", got.State.CancelReason)

	_, ok := f.svc.SeatOf("u0")
	assert.False(t, ok)

	_, err = f.svc.Dispatch(ctx, id, engine.Command{Type: engine.CmdMarkReady, UserID: "u0"})
	require.ErrorIs(t, err, engine.ErrLobbyClosed)
}

func TestService_Restore(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	snap, err := f.svc.CreateLobby(ctx, "u0", CreateParams{})
	require.NoError(t, err)

	svc2 := NewService(ctx, f.store, f.profiles, nil, nil, Config{MapPool: pool, Now: f.clock.Now}, nil)
	defer svc2.Shutdown()

	n, err := svc2.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	id, ok := svc2.SeatOf("u0")
	require.True(t, ok)
	assert.Equal(t, snap.State.ID, id)

	res, err := svc2.Join(ctx, id, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Snapshot.Version)
}

func TestSplitTeams(t *testing.T) {
	sizes := func(ns ...int) []queue.Entry {
		out := make([]queue.Entry, len(ns))
		for i, n := range ns {
			out[i] = queue.Entry{Members: make([]string, n)}
		}
		return out
	}
	cases := []struct {
		name    string
		entries []queue.Entry
		want    []bool
	}{
		{"solos", sizes(1, 1, 1, 1, 1, 1, 1, 1, 1, 1), []bool{true, true, true, true, true, false, false, false, false, false}},
		{"parties", sizes(3, 3, 2, 2), []bool{true, false, true, false}},
		{"full party", sizes(5, 5), []bool{true, false}},
		{"no split", sizes(3, 3, 4), nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, splitTeams(tc.entries))
		})
	}
}
