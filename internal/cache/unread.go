package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// storeIfCurrent replaces the hash only when no writer moved the generation
// since the caller read it.
var storeIfCurrent = redis.NewScript(`
local gen = tonumber(redis.call('GET', KEYS[2]) or '0')
if gen ~= tonumber(ARGV[1]) then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], unpack(ARGV, 3))
redis.call('EXPIRE', KEYS[1], ARGV[2])
return 1
`)

// UnreadCounts returns the cached unread counts of recipient keyed by sender.
// ok is false when the hash has not been loaded.
func (s *Store) UnreadCounts(ctx context.Context, recipient int64) (counts map[int64]int64, ok bool, err error) {
	raw, err := s.rdb.HGetAll(ctx, idKey(unreadPrefix, recipient)).Result()
	if err != nil {
		return nil, false, fmt.Errorf("unread counts: %w", err)
	}
	if _, loaded := raw[unreadLoadedField]; !loaded {
		return nil, false, nil
	}

	counts = make(map[int64]int64, len(raw)-1)
	for field, value := range raw {
		if field == unreadLoadedField {
			continue
		}
		sender, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			continue
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil || n <= 0 {
			continue
		}
		counts[sender] = n
	}
	return counts, true, nil
}

// UnreadGeneration returns the writer generation of recipient's counters. A
// fill reads it before querying the store and hands it to StoreUnreadCounts.
func (s *Store) UnreadGeneration(ctx context.Context, recipient int64) (int64, error) {
	gen, err := s.rdb.Get(ctx, idKey(unreadGenPrefix, recipient)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("unread generation: %w", err)
	}
	return gen, nil
}

// StoreUnreadCounts replaces the cached counts of recipient if the generation
// is still gen. stored is false when a writer got in between.
func (s *Store) StoreUnreadCounts(ctx context.Context, recipient, gen int64, counts map[int64]int64) (stored bool, err error) {
	args := make([]any, 0, 2*len(counts)+4)
	args = append(args, gen, int64(UnreadTTL/time.Second), unreadLoadedField, 1)
	for sender, n := range counts {
		args = append(args, idMember(sender), n)
	}
	keys := []string{idKey(unreadPrefix, recipient), idKey(unreadGenPrefix, recipient)}
	n, err := storeIfCurrent.Run(ctx, s.rdb, keys, args...).Int()
	if err != nil {
		return false, fmt.Errorf("store unread counts: %w", err)
	}
	return n == 1, nil
}

// InvalidateUnread drops the cached counts of recipient after a new message
// and aborts any fill still in flight. The next read recounts from the store.
func (s *Store) InvalidateUnread(ctx context.Context, recipient int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, idKey(unreadGenPrefix, recipient))
		pipe.Expire(ctx, idKey(unreadGenPrefix, recipient), UnreadTTL)
		pipe.Del(ctx, idKey(unreadPrefix, recipient))
		return nil
	})
	if err != nil {
		return fmt.Errorf("invalidate unread: %w", err)
	}
	return nil
}

// ClearUnread drops the sender counter from the recipient's hash and aborts
// any fill still in flight.
func (s *Store) ClearUnread(ctx context.Context, recipient, sender int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, idKey(unreadGenPrefix, recipient))
		pipe.Expire(ctx, idKey(unreadGenPrefix, recipient), UnreadTTL)
		pipe.HDel(ctx, idKey(unreadPrefix, recipient), idMember(sender))
		return nil
	})
	if err != nil {
		return fmt.Errorf("clear unread: %w", err)
	}
	return nil
}
