package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStore(mr.Addr(), "")
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func entry(id string, at time.Time, members ...string) Entry {
	return Entry{ID: id, Requester: members[0], Members: members, AvgSkill: 1000, JoinedAt: at}
}

func TestRedisStoreAddIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Add(ctx, entry("e1", t0, "a", "b")))
	err := s.Add(ctx, entry("e2", t0.Add(time.Second), "c", "b"))
	require.ErrorIs(t, err, ErrAlreadyQueued)

	// c must not have been admitted by the failed party join
	require.NoError(t, s.Add(ctx, entry("e3", t0.Add(2*time.Second), "c")))

	entries, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, "e3", entries[1].ID)
}

func TestRedisStoreRemoveMemberDropsWholeParty(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	t0 := time.Now()

	require.NoError(t, s.Add(ctx, entry("e1", t0, "a", "b", "c")))

	e, ok, err := s.RemoveMember(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b", "c"}, e.Members)

	_, ok, err = s.RemoveMember(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(ctx, entry("e2", t0, "a")))
}

func TestRedisStoreTakeHeadAndClear(t *testing.T) {
	ctx := context.Background()
	s := newRedisStore(t)
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Add(ctx, entry("e1", t0, "a", "b")))
	require.NoError(t, s.Add(ctx, entry("e2", t0.Add(time.Second), "c", "d", "e")))
	require.NoError(t, s.Add(ctx, entry("e3", t0.Add(2*time.Second), "f")))

	_, err := s.TakeHead(ctx, 7)
	require.ErrorIs(t, err, ErrNotEnoughQueued)

	taken, err := s.TakeHead(ctx, 3)
	require.NoError(t, err)
	require.Len(t, taken, 2)
	assert.Equal(t, "e1", taken[0].ID)
	assert.Equal(t, "e3", taken[1].ID)

	require.NoError(t, s.Clear(ctx))
	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, s.Add(ctx, entry("e4", t0, "c")))
}

func TestRedisStoreClearLeavesNoKeys(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	s := NewRedisStore(mr.Addr(), "")
	t.Cleanup(func() { _ = s.Close() })
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Add(ctx, entry("e1", t0, "a", "b")))
	require.NoError(t, s.Add(ctx, entry("e2", t0.Add(time.Second), "c")))

	require.NoError(t, s.Clear(ctx))
	assert.Empty(t, mr.Keys(), "entries, members and the queue go together")

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Add(ctx, entry("n"+id, t0.Add(time.Duration(i)*time.Second), id)))
	}
	entries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx), "clearing an empty queue is fine")
}
