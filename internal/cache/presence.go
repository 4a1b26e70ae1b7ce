package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// decrSessions decrements the session counter and drops the field once it reaches zero.
var decrSessions = redis.NewScript(`
local n = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
if n <= 0 then
  redis.call('HDEL', KEYS[1], ARGV[1])
  return 0
end
return n
`)

// MarkOnline adds id to the online set.
func (s *Store) MarkOnline(ctx context.Context, id int64) error {
	if err := s.rdb.SAdd(ctx, onlineUsersKey, idMember(id)).Err(); err != nil {
		return fmt.Errorf("mark online: %w", err)
	}
	return nil
}

// MarkOffline removes id from the online set.
func (s *Store) MarkOffline(ctx context.Context, id int64) error {
	if err := s.rdb.SRem(ctx, onlineUsersKey, idMember(id)).Err(); err != nil {
		return fmt.Errorf("mark offline: %w", err)
	}
	return nil
}

// OnlineIDs lists the ids in the online set.
func (s *Store) OnlineIDs(ctx context.Context) ([]int64, error) {
	members, err := s.rdb.SMembers(ctx, onlineUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("online members: %w", err)
	}
	return parseIDs(members)
}

// IncrSessions records a new session for id and returns the open session count.
func (s *Store) IncrSessions(ctx context.Context, id int64) (int64, error) {
	n, err := s.rdb.HIncrBy(ctx, onlineCountKey, idMember(id), 1).Result()
	if err != nil {
		return 0, fmt.Errorf("incr sessions: %w", err)
	}
	return n, nil
}

// DecrSessions records a closed session for id and returns the remaining count, never below zero.
func (s *Store) DecrSessions(ctx context.Context, id int64) (int64, error) {
	n, err := decrSessions.Run(ctx, s.rdb, []string{onlineCountKey}, idMember(id)).Int64()
	if err != nil {
		return 0, fmt.Errorf("decr sessions: %w", err)
	}
	return n, nil
}

// ResetPresence forgets every online user and session counter.
func (s *Store) ResetPresence(ctx context.Context) error {
	if err := s.rdb.Del(ctx, onlineUsersKey, onlineCountKey).Err(); err != nil {
		return fmt.Errorf("reset presence: %w", err)
	}
	return nil
}
