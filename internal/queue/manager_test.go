package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osohbayr1016/standoff2-sub004/internal/events"
	"github.com/osohbayr1016/standoff2-sub004/internal/profile"
)

type fakeSeats map[string]string

func (f fakeSeats) SeatOf(uid string) (string, bool) {
	id, ok := f[uid]
	return id, ok
}

// tick returns a clock advancing one second per call so join order is stable.
func tick() func() time.Time {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var n int64
	return func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&n, 1)) * time.Second)
	}
}

func players(n int) *profile.Memory {
	m := profile.NewMemory()
	for i := 0; i < n; i++ {
		_ = m.Put(context.Background(), profile.Profile{
			UserID:       fmt.Sprintf("u%d", i),
			DisplayName:  fmt.Sprintf("player %d", i),
			GamePlayerID: fmt.Sprintf("5%04d", i),
			Skill:        1000 + i*10,
		})
	}
	return m
}

func newManager(t *testing.T, store Store, profiles profile.Store, opts ...Option) (*Manager, *events.Bus) {
	t.Helper()
	bus := events.NewBus(nil)
	opts = append([]Option{WithClock(tick())}, opts...)
	return NewManager(store, profiles, bus, nil, opts...), bus
}

func invariant(t *testing.T, entries []Entry) {
	t.Helper()
	seen := map[string]bool{}
	for _, e := range entries {
		if e.Size() < 1 || e.Size() > MaxPartySize {
			t.Fatalf("party size out of range: %d", e.Size())
		}
		for _, m := range e.Members {
			if seen[m] {
				t.Fatalf("duplicate user %s", m)
			}
			seen[m] = true
		}
	}
}

func TestJoinComputesAverageAndPosition(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m, _ := newManager(t, store, players(10))

	pos, err := m.Join(ctx, "u0", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	pos, err = m.Join(ctx, "u1", []string{"u1", "u2", "u3"})
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	entries, _ := store.List(ctx)
	require.Len(t, entries, 2)
	assert.Equal(t, []string{"u1", "u2", "u3"}, entries[1].Members)
	assert.Equal(t, 1020, entries[1].AvgSkill)

	total, _ := m.TotalWaiting(ctx)
	assert.Equal(t, 4, total)

	p, ok, _ := m.Position(ctx, "u3")
	assert.True(t, ok)
	assert.Equal(t, 2, p)
}

func TestJoinRejections(t *testing.T) {
	ctx := context.Background()
	profiles := players(8)
	_ = profiles.Put(ctx, profile.Profile{UserID: "noid", DisplayName: "x"})

	cases := []struct {
		name      string
		requester string
		members   []string
		want      error
	}{
		{"party of six", "u0", []string{"u1", "u2", "u3", "u4", "u5"}, ErrPartySize},
		{"missing profile", "u0", []string{"ghost"}, profile.ErrNoProfile},
		{"missing game id", "u0", []string{"noid"}, profile.ErrIncomplete},
		{"duplicate member", "u0", []string{"u1", "u1"}, profile.ErrDuplicateIDs},
		{"already queued member", "u5", []string{"u6"}, ErrAlreadyQueued},
		{"seated in lobby", "u7", nil, ErrInLobby},
	}

	store := NewMemoryStore()
	m, _ := newManager(t, store, profiles, WithSeatChecker(fakeSeats{"u7": "lobby-1"}))
	_, err := m.Join(ctx, "u6", nil)
	require.NoError(t, err)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Join(ctx, tc.requester, tc.members)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
		})
	}

	entries, _ := store.List(ctx)
	assert.Len(t, entries, 1, "failed joins must not persist anything")
}

func TestLeaveIsIdempotentAndNotifies(t *testing.T) {
	ctx := context.Background()
	m, bus := newManager(t, NewMemoryStore(), players(5))

	var totals []int
	var mu sync.Mutex
	defer events.Subscribe(bus, func(ev events.QueueChanged) {
		mu.Lock()
		totals = append(totals, ev.TotalWaiting)
		mu.Unlock()
	})()

	_, err := m.Join(ctx, "u0", []string{"u1"})
	require.NoError(t, err)

	removed, err := m.Leave(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = m.Leave(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, removed)

	st, _ := m.Status(ctx, "u0")
	assert.False(t, st.InQueue)
	assert.Equal(t, []int{2, 0}, totals)
}

func TestTakeKeepsPartiesWhole(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, NewMemoryStore(), players(12))

	_, _ = m.Join(ctx, "u0", []string{"u1", "u2", "u3"}) // 4
	_, _ = m.Join(ctx, "u4", []string{"u5", "u6", "u7"}) // 4
	_, _ = m.Join(ctx, "u8", []string{"u9", "u10"})      // 3, overflows 10
	_, _ = m.Join(ctx, "u11", nil)                       // 1

	_, err := m.Take(ctx, 10)
	require.ErrorIs(t, err, ErrNotEnoughQueued)

	taken, err := m.Take(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 9, totalPlayers(taken))
	ids := []string{taken[0].Requester, taken[1].Requester, taken[2].Requester}
	assert.Equal(t, []string{"u0", "u4", "u11"}, ids)

	st, _ := m.Status(ctx, "u9")
	assert.True(t, st.InQueue)
	assert.Equal(t, 1, st.Position)
	assert.Equal(t, 3, st.TotalWaiting)
}

func TestConcurrentJoinSameUserOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, NewMemoryStore(), players(2))

	const G = 32
	var wins int32
	var wg sync.WaitGroup
	wg.Add(G)
	for i := 0; i < G; i++ {
		go func() {
			defer wg.Done()
			if _, err := m.Join(ctx, "u0", nil); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestRaceRandomOps(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	m, _ := newManager(t, store, players(26))

	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for j := 0; j < 200; j++ {
				a := fmt.Sprintf("u%d", r.Intn(26))
				b := fmt.Sprintf("u%d", r.Intn(26))
				if r.Intn(2) == 0 {
					_, _ = m.Join(ctx, a, []string{b})
				} else {
					_, _ = m.Leave(ctx, a)
				}
			}
		}(int64(g))
	}
	wg.Wait()

	entries, _ := store.List(ctx)
	invariant(t, entries)
}
