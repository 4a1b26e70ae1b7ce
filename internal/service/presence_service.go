package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"chat-realtime/internal/accounts"
	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
)

var ErrMissingUsername = errs.E(errs.ErrInvalidInput, "username is required")

// PresenceService tracks who is online. The durable flag is the profile
// state, the cache set is the fast path for fan-out and listing.
type PresenceService struct {
	users accounts.Directory
	cache PresenceCache
	log   *zap.Logger
}

func NewPresenceService(users accounts.Directory, cache PresenceCache, log *zap.Logger) *PresenceService {
	return &PresenceService{users: users, cache: cache, log: log}
}

// SetOnline writes the durable flag, then the cache set.
func (s *PresenceService) SetOnline(ctx context.Context, id int64, online bool) error {
	if err := s.users.SetOnline(ctx, id, online); err != nil {
		return err
	}

	var err error
	if online {
		err = s.cache.MarkOnline(ctx, id)
	} else {
		err = s.cache.MarkOffline(ctx, id)
	}
	if err != nil {
		s.log.Warn("presence cache update failed", zap.Int64("user_id", id), zap.Bool("online", online), zap.Error(err))
	}
	return nil
}

// Connect records a new session of id. first reports that it was the
// identity's only open session.
func (s *PresenceService) Connect(ctx context.Context, id int64) (first bool, err error) {
	n, err := s.cache.IncrSessions(ctx, id)
	if err != nil {
		s.log.Warn("session counter unavailable", zap.Int64("user_id", id), zap.Error(err))
		n = 1
	}
	if n != 1 {
		return false, nil
	}
	return true, s.SetOnline(ctx, id, true)
}

// Disconnect records a closed session of id. last reports that no session of
// the identity remains open.
func (s *PresenceService) Disconnect(ctx context.Context, id int64) (last bool, err error) {
	n, err := s.cache.DecrSessions(ctx, id)
	if err != nil {
		s.log.Warn("session counter unavailable", zap.Int64("user_id", id), zap.Error(err))
		n = 0
	}
	if n != 0 {
		return false, nil
	}
	return true, s.SetOnline(ctx, id, false)
}

// UserExists reports whether username belongs to a registered identity.
func (s *PresenceService) UserExists(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, ErrMissingUsername
	}
	return s.users.ExistsByUsername(ctx, username)
}

// ListOnline maps the username of every online identity to its profile.
func (s *PresenceService) ListOnline(ctx context.Context) (map[string]models.UserSummary, error) {
	ids, err := s.cache.OnlineIDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		summary := u.Summary()
		summary.Online = true
		out[u.Username] = summary
	}
	return out, nil
}

// Reset forgets every cached session. Run it before accepting connections.
func (s *PresenceService) Reset(ctx context.Context) error {
	return s.cache.ResetPresence(ctx)
}
