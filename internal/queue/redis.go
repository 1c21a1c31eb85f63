package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/osohbayr1016/standoff2-sub004/internal/apperr"
)

const (
	queueKey     = "mm:queue"   // ZSET: score=join unix micro, member=entry id
	entryPrefix  = "mm:entry:"  // STRING: entry JSON
	memberPrefix = "mm:member:" // STRING: entry id, one per queued user
	maxTxRetries = 5
)

// addScript admits every member or none. KEYS: queue, entry, member keys...
// ARGV: entry id, score, entry json.
var addScript = redis.NewScript(`
for i = 3, #KEYS do
  if redis.call('EXISTS', KEYS[i]) == 1 then return 0 end
end
for i = 3, #KEYS do redis.call('SET', KEYS[i], ARGV[1]) end
redis.call('SET', KEYS[2], ARGV[3])
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return 1
`)

// removeScript deletes the entry holding a member. KEYS: queue, member key.
// ARGV: entry prefix, member prefix.
var removeScript = redis.NewScript(`
local id = redis.call('GET', KEYS[2])
if not id then return false end
local raw = redis.call('GET', ARGV[1] .. id)
redis.call('ZREM', KEYS[1], id)
redis.call('DEL', ARGV[1] .. id)
if raw then
  local e = cjson.decode(raw)
  for _, m in ipairs(e.members) do redis.call('DEL', ARGV[2] .. m) end
else
  redis.call('DEL', KEYS[2])
end
return raw
`)

// clearScript drops every entry and member key in one step. KEYS: queue.
// ARGV: entry prefix, member prefix.
var clearScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, -1)
for _, id in ipairs(ids) do
  local raw = redis.call('GET', ARGV[1] .. id)
  if raw then
    local e = cjson.decode(raw)
    for _, m in ipairs(e.members) do redis.call('DEL', ARGV[2] .. m) end
  end
  redis.call('DEL', ARGV[1] .. id)
end
redis.call('DEL', KEYS[1])
return #ids
`)

type RedisStore struct{ rdb *redis.Client }

func NewRedisStore(addr, password string) *RedisStore {
	return &RedisStore{rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func (s *RedisStore) Ping(ctx context.Context) error { return s.rdb.Ping(ctx).Err() }

func (s *RedisStore) Add(ctx context.Context, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	keys := []string{queueKey, entryPrefix + e.ID}
	for _, m := range e.Members {
		keys = append(keys, memberPrefix+m)
	}
	ok, err := addScript.Run(ctx, s.rdb, keys, e.ID, e.JoinedAt.UnixMicro(), raw).Int()
	if err != nil {
		return apperr.Dependency("queue store", err)
	}
	if ok == 0 {
		return ErrAlreadyQueued
	}
	return nil
}

func (s *RedisStore) RemoveMember(ctx context.Context, userID string) (Entry, bool, error) {
	raw, err := removeScript.Run(ctx, s.rdb, []string{queueKey, memberPrefix + userID}, entryPrefix, memberPrefix).Text()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, apperr.Dependency("queue store", err)
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode entry: %w", err)
	}
	return e, true, nil
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	entries, err := s.load(ctx, s.rdb)
	if err != nil {
		return nil, apperr.Dependency("queue store", err)
	}
	return entries, nil
}

func (s *RedisStore) TakeHead(ctx context.Context, n int) ([]Entry, error) {
	var picked []Entry
	txf := func(tx *redis.Tx) error {
		entries, err := s.load(ctx, tx)
		if err != nil {
			return err
		}
		picked = selectHead(entries, n)
		if picked == nil {
			return ErrNotEnoughQueued
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			for _, e := range picked {
				p.ZRem(ctx, queueKey, e.ID)
				p.Del(ctx, entryPrefix+e.ID)
				for _, m := range e.Members {
					p.Del(ctx, memberPrefix+m)
				}
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, queueKey)
		switch {
		case err == nil:
			return picked, nil
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, ErrNotEnoughQueued):
			return nil, err
		default:
			return nil, apperr.Dependency("queue store", err)
		}
	}
	return nil, apperr.Dependency("queue store", errors.New("take: too much contention"))
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := clearScript.Run(ctx, s.rdb, []string{queueKey}, entryPrefix, memberPrefix).Err(); err != nil {
		return apperr.Dependency("queue store", err)
	}
	return nil
}

// reader is the subset shared by *redis.Client and *redis.Tx.
type reader interface {
	ZRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

func (s *RedisStore) load(ctx context.Context, c reader) ([]Entry, error) {
	ids, err := c.ZRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = entryPrefix + id
	}
	raws, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raws))
	for _, r := range raws {
		str, ok := r.(string)
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(str), &e); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}
