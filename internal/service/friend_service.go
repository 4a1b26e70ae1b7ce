package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"chat-realtime/internal/accounts"
	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
	"chat-realtime/internal/notify"
	"chat-realtime/internal/repositories"
)

var (
	ErrSelfFriendship      = errs.E(errs.ErrInvalidInput, "cannot befriend yourself")
	ErrSelfBlock           = errs.E(errs.ErrInvalidInput, "cannot block yourself")
	ErrFriendshipExists    = errs.E(errs.ErrConflict, "a request or friendship already exists")
	ErrAlreadyFriends      = errs.E(errs.ErrConflict, "already friends")
	ErrBlocked             = errs.E(errs.ErrAccessForbidden, "relationship is blocked")
	ErrNotRequestAddressee = errs.E(errs.ErrAccessForbidden, "only the addressee can accept a request")
	ErrNotBlocker          = errs.E(errs.ErrAccessForbidden, "only the blocker can remove a block")
	ErrRequestNotFound     = errs.E(errs.ErrNotFound, "friend request not found")
	ErrNoBlock             = errs.E(errs.ErrNotFound, "no block to remove")
	ErrInvalidSort         = errs.E(errs.ErrInvalidInput, "unsupported sortBy value")
)

const (
	defaultFriendPageSize = 10
	maxPageSize           = 100
)

// FriendService owns every transition of a friendship edge.
type FriendService struct {
	tx       TxRunner
	repo     repositories.FriendshipRepository
	users    accounts.Directory
	cache    FriendCache
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewFriendService(tx TxRunner, repo repositories.FriendshipRepository, users accounts.Directory,
	cache FriendCache, notifier Notifier, log *zap.Logger) *FriendService {
	return &FriendService{
		tx:       tx,
		repo:     repo,
		users:    users,
		cache:    cache,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// pair resolves the caller and the target named by username.
func (s *FriendService) pair(ctx context.Context, callerID int64, username string) (models.User, models.User, error) {
	caller, err := s.users.FindByID(ctx, callerID)
	if err != nil {
		return models.User{}, models.User{}, err
	}
	if caller.Username == username {
		return caller, caller, nil
	}
	target, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return models.User{}, models.User{}, err
	}
	return caller, target, nil
}

// SendRequest creates a PENDING edge from requesterID to the addressee.
func (s *FriendService) SendRequest(ctx context.Context, requesterID int64, addressee string) (models.Friendship, error) {
	requester, target, err := s.pair(ctx, requesterID, addressee)
	if err != nil {
		return models.Friendship{}, err
	}
	if requester.ID == target.ID {
		return models.Friendship{}, ErrSelfFriendship
	}

	var created models.Friendship
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.FindBetween(ctx, requester.ID, target.ID)
		switch {
		case err == nil:
			if existing.Status == models.FriendshipBlocked {
				return ErrBlocked
			}
			return ErrFriendshipExists
		case !errors.Is(err, repositories.ErrFriendshipNotFound):
			return err
		}

		created, err = s.repo.Create(ctx, models.Friendship{
			RequesterID: requester.ID,
			AddresseeID: target.ID,
			Status:      models.FriendshipPending,
		})
		if errors.Is(err, repositories.ErrFriendshipExists) {
			return ErrFriendshipExists
		}
		if err != nil {
			return err
		}

		now := s.now()
		s.notifier.Notify(ctx,
			notify.ToUser(target.ID, notification(models.NotifyFriendRequest, "New friend request", &requester, now)),
			notify.ToUser(requester.ID, notification(models.NotifyRequestSent, "Friend request sent", &target, now)),
		)
		return nil
	})
	if err != nil {
		return models.Friendship{}, err
	}

	s.log.Info("friend request sent", zap.Int64("requester_id", requester.ID), zap.Int64("addressee_id", target.ID))
	return created, nil
}

// AcceptRequest accepts the pending request the named requester sent to acceptorID.
func (s *FriendService) AcceptRequest(ctx context.Context, acceptorID int64, requesterName string) (models.Friendship, error) {
	acceptor, requester, err := s.pair(ctx, acceptorID, requesterName)
	if err != nil {
		return models.Friendship{}, err
	}
	if acceptor.ID == requester.ID {
		return models.Friendship{}, ErrSelfFriendship
	}

	var edge models.Friendship
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		edge, err = s.repo.FindBetween(ctx, acceptor.ID, requester.ID)
		if errors.Is(err, repositories.ErrFriendshipNotFound) {
			return ErrRequestNotFound
		}
		if err != nil {
			return err
		}
		switch {
		case edge.Status == models.FriendshipAccepted:
			return ErrAlreadyFriends
		case edge.Status == models.FriendshipBlocked:
			return ErrBlocked
		case edge.RequesterID != requester.ID:
			return ErrNotRequestAddressee
		}

		if err := s.repo.UpdateStatus(ctx, edge.ID, models.FriendshipAccepted); err != nil {
			return err
		}
		edge.Status = models.FriendshipAccepted

		afterCommit(ctx, s.log, "add_friends", func(ctx context.Context) error {
			return s.cache.AddFriends(ctx, acceptor.ID, requester.ID)
		})
		now := s.now()
		s.notifier.Notify(ctx,
			notify.ToUser(requester.ID, notification(models.NotifyFriendAccepted, "Friend request accepted", &acceptor, now)),
			notify.ToUser(acceptor.ID, notification(models.NotifyYouAccepted, "You are now friends", &requester, now)),
		)
		return nil
	})
	if err != nil {
		return models.Friendship{}, err
	}
	return edge, nil
}

// ListFriends lists accepted edges of userID.
func (s *FriendService) ListFriends(ctx context.Context, userID int64, page models.PageRequest) (models.PageResponse[models.FriendView], error) {
	return s.list(ctx, userID, repositories.ListFriends, page)
}

// ListPending lists requests awaiting userID's answer.
func (s *FriendService) ListPending(ctx context.Context, userID int64, page models.PageRequest) (models.PageResponse[models.FriendView], error) {
	return s.list(ctx, userID, repositories.ListPending, page)
}

// ListSent lists requests userID sent that are still pending.
func (s *FriendService) ListSent(ctx context.Context, userID int64, page models.PageRequest) (models.PageResponse[models.FriendView], error) {
	return s.list(ctx, userID, repositories.ListSent, page)
}

// NormalizePage applies the offset page defaults and rejects unknown sort keys.
func NormalizePage(page models.PageRequest, defaultSize int) (models.PageRequest, error) {
	if page.Page < 0 {
		page.Page = 0
	}
	if page.Size <= 0 {
		page.Size = defaultSize
	}
	if page.Size > maxPageSize {
		page.Size = maxPageSize
	}
	if _, ok := repositories.SortColumn(page.SortBy); !ok {
		return page, ErrInvalidSort
	}
	return page, nil
}

func (s *FriendService) list(ctx context.Context, userID int64, kind repositories.ListKind, page models.PageRequest) (models.PageResponse[models.FriendView], error) {
	page, err := NormalizePage(page, defaultFriendPageSize)
	if err != nil {
		return models.PageResponse[models.FriendView]{}, err
	}

	edges, total, err := s.repo.List(ctx, userID, kind, page)
	if err != nil {
		return models.PageResponse[models.FriendView]{}, err
	}

	ids := make([]int64, 0, len(edges))
	for _, e := range edges {
		ids = append(ids, e.Other(userID))
	}
	byID := map[int64]models.User{}
	if len(ids) > 0 {
		users, err := s.users.FindByIDs(ctx, ids)
		if err != nil {
			return models.PageResponse[models.FriendView]{}, err
		}
		for _, u := range users {
			byID[u.ID] = u
		}
	}

	views := make([]models.FriendView, 0, len(edges))
	for _, e := range edges {
		other := e.Other(userID)
		summary := models.UserSummary{ID: other}
		if u, ok := byID[other]; ok {
			summary = u.Summary()
		}
		views = append(views, models.FriendView{ID: e.ID, User: summary, Status: e.Status, CreatedAt: e.CreatedAt})
	}
	return models.NewPageResponse(views, page, total), nil
}

// DeleteFriendship removes a pending or accepted edge between the caller and
// target and tells target what happened from their point of view.
func (s *FriendService) DeleteFriendship(ctx context.Context, callerID int64, target string) error {
	caller, other, err := s.pair(ctx, callerID, target)
	if err != nil {
		return err
	}
	if caller.ID == other.ID {
		return ErrSelfFriendship
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		edge, err := s.repo.FindBetween(ctx, caller.ID, other.ID)
		if err != nil {
			return err
		}
		if edge.Status == models.FriendshipBlocked {
			return ErrBlocked
		}
		if err := s.repo.Delete(ctx, edge.ID); err != nil {
			return err
		}

		afterCommit(ctx, s.log, "remove_friends", func(ctx context.Context) error {
			return s.cache.RemoveFriends(ctx, caller.ID, other.ID)
		})

		var status, message string
		switch {
		case edge.Status == models.FriendshipAccepted:
			status, message = models.NotifyUnfriended, "You have been unfriended"
		case edge.RequesterID == caller.ID:
			status, message = models.NotifyRequestCancelled, "Friend request withdrawn"
		default:
			status, message = models.NotifyRequestRejected, "Friend request declined"
		}
		s.notifier.Notify(ctx, notify.ToUser(other.ID, notification(status, message, &caller, s.now())))
		return nil
	})
}

// BlockUser leaves a single BLOCKED edge with the blocker as requester. It is
// idempotent and silent towards the target.
func (s *FriendService) BlockUser(ctx context.Context, blockerID int64, target string) (models.Friendship, error) {
	blocker, other, err := s.pair(ctx, blockerID, target)
	if err != nil {
		return models.Friendship{}, err
	}
	if blocker.ID == other.ID {
		return models.Friendship{}, ErrSelfBlock
	}

	var edge models.Friendship
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		edge, err = s.repo.UpsertBlock(ctx, blocker.ID, other.ID)
		if err != nil {
			return err
		}
		afterCommit(ctx, s.log, "remove_friends", func(ctx context.Context) error {
			return s.cache.RemoveFriends(ctx, blocker.ID, other.ID)
		})
		return nil
	})
	if err != nil {
		return models.Friendship{}, err
	}

	s.log.Info("user blocked", zap.Int64("blocker_id", blocker.ID), zap.Int64("target_id", other.ID))
	return edge, nil
}

// UnblockUser removes a block the caller placed, returning the pair to no edge.
func (s *FriendService) UnblockUser(ctx context.Context, blockerID int64, target string) error {
	blocker, other, err := s.pair(ctx, blockerID, target)
	if err != nil {
		return err
	}
	if blocker.ID == other.ID {
		return ErrSelfBlock
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		edge, err := s.repo.FindBetween(ctx, blocker.ID, other.ID)
		if err != nil {
			return err
		}
		if edge.Status != models.FriendshipBlocked {
			return ErrNoBlock
		}
		if edge.RequesterID != blocker.ID {
			return ErrNotBlocker
		}
		return s.repo.Delete(ctx, edge.ID)
	})
}

// IsFriend answers from the friends set. On a miss it reads the edge under a
// row lock and backfills the set before committing, so a concurrent block or
// unfriend removes the membership only after the backfill landed.
func (s *FriendService) IsFriend(ctx context.Context, a, b int64) (bool, error) {
	if a == b {
		return false, nil
	}
	ok, err := s.cache.IsFriend(ctx, a, b)
	if err == nil && ok {
		return true, nil
	}
	if err != nil {
		s.log.Warn("friends cache lookup failed", zap.Error(err))
	}

	var friends bool
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		edge, err := s.repo.FindBetween(ctx, a, b)
		if errors.Is(err, repositories.ErrFriendshipNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if edge.Status != models.FriendshipAccepted {
			return nil
		}
		friends = true
		if err := s.cache.AddFriends(ctx, a, b); err != nil {
			s.log.Warn("friends cache backfill failed", zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return friends, nil
}
