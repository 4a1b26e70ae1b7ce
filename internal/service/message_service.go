package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"chat-realtime/internal/accounts"
	"chat-realtime/internal/errs"
	"chat-realtime/internal/models"
	"chat-realtime/internal/notify"
	"chat-realtime/internal/repositories"
)

var (
	ErrSelfMessage      = errs.E(errs.ErrInvalidInput, "cannot send a private message to yourself")
	ErrMissingRecipient = errs.E(errs.ErrInvalidInput, "recipient is required")
	ErrNotFriends       = errs.E(errs.ErrAccessForbidden, "private messages are limited to friends")
	ErrWrongMessageType = errs.E(errs.ErrInvalidInput, "unsupported message type")
	ErrNotParticipant   = errs.E(errs.ErrAccessForbidden, "not a member of this conversation")
)

const DefaultMessagePageSize = 20

// FriendChecker answers whether two identities are friends.
type FriendChecker interface {
	IsFriend(ctx context.Context, a, b int64) (bool, error)
}

// MessageService persists chat messages, pages history and keeps unread counts.
type MessageService struct {
	tx       TxRunner
	repo     repositories.MessageRepository
	users    accounts.Directory
	friends  FriendChecker
	unread   UnreadCache
	notifier Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewMessageService(tx TxRunner, repo repositories.MessageRepository, users accounts.Directory,
	friends FriendChecker, unread UnreadCache, notifier Notifier, log *zap.Logger) *MessageService {
	return &MessageService{
		tx:       tx,
		repo:     repo,
		users:    users,
		friends:  friends,
		unread:   unread,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

func publicFrame(view models.MessageView) models.SocketResponse {
	return models.SocketResponse{Destination: models.DestinationPublic, Type: models.FrameMessage, Data: view}
}

func privateFrame(view models.MessageView) models.SocketResponse {
	return models.SocketResponse{Destination: models.DestinationPrivate, Type: models.FrameMessage, Data: view}
}

func viewOf(msg models.Message, sender models.User, recipient string) models.MessageView {
	return models.MessageView{
		Message:           msg,
		SenderUsername:    sender.Username,
		SenderAvatar:      sender.Avatar,
		RecipientUsername: recipient,
	}
}

// save stamps the message when the caller did not and persists it.
func (s *MessageService) save(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now().UTC().Truncate(time.Microsecond)
	}
	return s.repo.Save(ctx, msg)
}

// Save persists msg as given, assigning the timestamp when absent.
func (s *MessageService) Save(ctx context.Context, msg models.Message) (models.Message, error) {
	return s.save(ctx, msg)
}

// Join records that senderID entered the public room and announces it.
func (s *MessageService) Join(ctx context.Context, senderID int64, req models.ChatMessageRequest) (models.MessageView, error) {
	req.Type = models.MessageJoin
	return s.broadcast(ctx, senderID, req)
}

// SendPublic stores a CHAT message and broadcasts it on the public topic.
func (s *MessageService) SendPublic(ctx context.Context, senderID int64, req models.ChatMessageRequest) (models.MessageView, error) {
	if req.Type == "" {
		req.Type = models.MessageChat
	}
	if req.Type != models.MessageChat {
		return models.MessageView{}, ErrWrongMessageType
	}
	return s.broadcast(ctx, senderID, req)
}

func (s *MessageService) broadcast(ctx context.Context, senderID int64, req models.ChatMessageRequest) (models.MessageView, error) {
	sender, err := s.users.FindByID(ctx, senderID)
	if err != nil {
		return models.MessageView{}, err
	}

	var view models.MessageView
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		saved, err := s.save(ctx, req.ToMessage(sender.ID))
		if err != nil {
			return err
		}
		view = viewOf(saved, sender, "")
		s.notifier.Notify(ctx, notify.ToAll(publicFrame(view)))
		return nil
	})
	return view, err
}

// Leave announces that user closed their last session. It is not stored.
func (s *MessageService) Leave(ctx context.Context, user models.User) {
	msg := models.Message{
		SenderID:  user.ID,
		Type:      models.MessageLeave,
		CreatedAt: s.now().UTC().Truncate(time.Microsecond),
	}
	s.notifier.Notify(ctx, notify.ToAll(publicFrame(viewOf(msg, user, ""))))
}

// SendPrivate stores a PRIVATE_CHAT message between friends and delivers it
// to the sessions of both parties.
func (s *MessageService) SendPrivate(ctx context.Context, senderID int64, req models.ChatMessageRequest) (models.MessageView, error) {
	recipientName := strings.TrimSpace(req.Recipient)
	if recipientName == "" {
		return models.MessageView{}, ErrMissingRecipient
	}
	sender, err := s.users.FindByID(ctx, senderID)
	if err != nil {
		return models.MessageView{}, err
	}
	if sender.Username == recipientName {
		return models.MessageView{}, ErrSelfMessage
	}
	recipient, err := s.users.FindByUsername(ctx, recipientName)
	if err != nil {
		return models.MessageView{}, err
	}
	ok, err := s.friends.IsFriend(ctx, sender.ID, recipient.ID)
	if err != nil {
		return models.MessageView{}, err
	}
	if !ok {
		return models.MessageView{}, ErrNotFriends
	}

	msg := req.ToMessage(sender.ID)
	msg.Type = models.MessagePrivateChat
	msg.RecipientID = &recipient.ID
	msg.ConversationID = models.ConversationID(sender.ID, recipient.ID)

	var view models.MessageView
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		saved, err := s.save(ctx, msg)
		if err != nil {
			return err
		}
		view = viewOf(saved, sender, recipient.Username)

		afterCommit(ctx, s.log, "invalidate_unread", func(ctx context.Context) error {
			return s.unread.InvalidateUnread(ctx, recipient.ID)
		})
		frame := privateFrame(view)
		s.notifier.Notify(ctx, notify.ToUser(recipient.ID, frame), notify.ToUser(sender.ID, frame))
		return nil
	})
	return view, err
}

// ClampSize applies the cursor page size default and bounds.
func ClampSize(size int) int {
	if size <= 0 {
		return DefaultMessagePageSize
	}
	if size > maxPageSize {
		return maxPageSize
	}
	return size
}

// PrivateHistory pages the conversation between user1 and user2, newest first.
// The caller must be one of them.
func (s *MessageService) PrivateHistory(ctx context.Context, callerID int64, user1, user2, cursor string, size int) (models.CursorPage[models.MessageView], error) {
	var empty models.CursorPage[models.MessageView]
	c, err := repositories.ParseCursor(cursor)
	if err != nil {
		return empty, err
	}
	u1, err := s.users.FindByUsername(ctx, user1)
	if err != nil {
		return empty, err
	}
	u2, err := s.users.FindByUsername(ctx, user2)
	if err != nil {
		return empty, err
	}
	if callerID != u1.ID && callerID != u2.ID {
		return empty, ErrNotParticipant
	}

	size = ClampSize(size)
	msgs, err := s.repo.Page(ctx, repositories.Conversation(u1.ID, u2.ID), c, size)
	if err != nil {
		return empty, err
	}
	known := map[int64]models.User{u1.ID: u1, u2.ID: u2}
	return s.page(msgs, known, size), nil
}

// PublicHistory pages the public broadcast stream, newest first.
func (s *MessageService) PublicHistory(ctx context.Context, cursor string, size int) (models.CursorPage[models.MessageView], error) {
	var empty models.CursorPage[models.MessageView]
	c, err := repositories.ParseCursor(cursor)
	if err != nil {
		return empty, err
	}

	size = ClampSize(size)
	msgs, err := s.repo.Page(ctx, repositories.Feed(), c, size)
	if err != nil {
		return empty, err
	}

	seen := map[int64]struct{}{}
	var ids []int64
	for _, m := range msgs {
		if _, ok := seen[m.SenderID]; !ok {
			seen[m.SenderID] = struct{}{}
			ids = append(ids, m.SenderID)
		}
	}
	known := map[int64]models.User{}
	if len(ids) > 0 {
		users, err := s.users.FindByIDs(ctx, ids)
		if err != nil {
			return empty, err
		}
		for _, u := range users {
			known[u.ID] = u
		}
	}
	return s.page(msgs, known, size), nil
}

func (s *MessageService) page(msgs []models.Message, known map[int64]models.User, size int) models.CursorPage[models.MessageView] {
	out := models.CursorPage[models.MessageView]{
		Content: make([]models.MessageView, 0, len(msgs)),
		HasMore: len(msgs) == size,
	}
	for _, m := range msgs {
		recipient := ""
		if m.RecipientID != nil {
			recipient = known[*m.RecipientID].Username
		}
		out.Content = append(out.Content, viewOf(m, known[m.SenderID], recipient))
	}
	if n := len(msgs); n > 0 {
		next := repositories.CursorOf(msgs[n-1].CreatedAt, msgs[n-1].ID).String()
		out.NextCursor = &next
	}
	return out
}

// UnreadCounts returns the unread private message counts of recipientID keyed
// by sender username.
func (s *MessageService) UnreadCounts(ctx context.Context, recipientID int64) (map[string]int64, error) {
	counts, ok, err := s.unread.UnreadCounts(ctx, recipientID)
	if err != nil {
		s.log.Warn("unread cache read failed", zap.Int64("recipient_id", recipientID), zap.Error(err))
	}
	if err != nil || !ok {
		counts, err = s.fillUnread(ctx, recipientID)
		if err != nil {
			return nil, err
		}
	}

	out := map[string]int64{}
	if len(counts) == 0 {
		return out, nil
	}
	ids := make([]int64, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		if n := counts[u.ID]; n > 0 {
			out[u.Username] = n
		}
	}
	return out, nil
}

// fillUnread recounts from the store and caches the result unless a message
// or a mark-read touched recipientID in the meantime.
func (s *MessageService) fillUnread(ctx context.Context, recipientID int64) (map[int64]int64, error) {
	gen, genErr := s.unread.UnreadGeneration(ctx, recipientID)
	counts, err := s.repo.UnreadBySender(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		s.log.Warn("unread cache generation read failed", zap.Int64("recipient_id", recipientID), zap.Error(genErr))
		return counts, nil
	}
	stored, err := s.unread.StoreUnreadCounts(ctx, recipientID, gen, counts)
	switch {
	case err != nil:
		s.log.Warn("unread cache fill failed", zap.Int64("recipient_id", recipientID), zap.Error(err))
	case !stored:
		s.log.Debug("unread cache fill superseded", zap.Int64("recipient_id", recipientID))
	}
	return counts, nil
}

// MarkRead flags every unread message from the named sender to recipientID as read.
func (s *MessageService) MarkRead(ctx context.Context, recipientID int64, senderName string) (int64, error) {
	sender, err := s.users.FindByUsername(ctx, senderName)
	if err != nil {
		return 0, err
	}
	n, err := s.repo.MarkRead(ctx, recipientID, sender.ID)
	if err != nil {
		return 0, err
	}
	if err := s.unread.ClearUnread(ctx, recipientID, sender.ID); err != nil {
		s.log.Warn("unread cache clear failed", zap.Int64("recipient_id", recipientID), zap.Error(err))
	}
	return n, nil
}
