// Package cache holds the redis keyspace of the chat service: friends sets,
// presence, unread counters and token blacklist. Durable storage is the
// source of truth for all of it.
package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	friendsPrefix      = "friends:"           // friends:{userId} - set of friend ids
	onlineUsersKey     = "online_users"       // set of online user ids
	onlineCountKey     = "online_users_count" // hash userId -> open sessions
	unreadPrefix       = "unread_counts:"     // unread_counts:{recipientId} - hash senderId -> count
	unreadGenPrefix    = "unread_gen:"        // unread_gen:{recipientId} - bumped by every unread writer
	blacklistPrefix    = "blacklist:"         // blacklist:{token}

	// unreadLoadedField marks an unread hash as a complete picture of the store.
	unreadLoadedField = "_loaded"

	UnreadTTL  = 24 * time.Hour
	FriendsTTL = time.Hour
)

// Store wraps a redis client with the chat keyspace.
type Store struct {
	rdb redis.UniversalClient
}

// NewStore constructs a Store.
func NewStore(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Connect opens a redis client and checks it is reachable.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// Client exposes the underlying client for pub/sub users.
func (s *Store) Client() redis.UniversalClient { return s.rdb }

func idKey(prefix string, id int64) string {
	return prefix + strconv.FormatInt(id, 10)
}

func idMember(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseIDs(members []string) ([]int64, error) {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad id member %q: %w", m, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
