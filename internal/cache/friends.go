package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// AddFriends adds a and b to each other's friends set. Both sets expire after
// FriendsTTL so a removal lost to a redis outage cannot outlive it.
func (s *Store) AddFriends(ctx context.Context, a, b int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, idKey(friendsPrefix, a), idMember(b))
		pipe.SAdd(ctx, idKey(friendsPrefix, b), idMember(a))
		pipe.Expire(ctx, idKey(friendsPrefix, a), FriendsTTL)
		pipe.Expire(ctx, idKey(friendsPrefix, b), FriendsTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add friends: %w", err)
	}
	return nil
}

// RemoveFriends removes a and b from each other's friends set.
func (s *Store) RemoveFriends(ctx context.Context, a, b int64) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, idKey(friendsPrefix, a), idMember(b))
		pipe.SRem(ctx, idKey(friendsPrefix, b), idMember(a))
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove friends: %w", err)
	}
	return nil
}

// IsFriend reports whether b is in a's friends set. A false result may mean
// the set is cold.
func (s *Store) IsFriend(ctx context.Context, a, b int64) (bool, error) {
	ok, err := s.rdb.SIsMember(ctx, idKey(friendsPrefix, a), idMember(b)).Result()
	if err != nil {
		return false, fmt.Errorf("is friend: %w", err)
	}
	return ok, nil
}
