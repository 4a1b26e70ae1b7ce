package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"chat-realtime/internal/models"
	"chat-realtime/internal/repositories"
)

type FriendshipRepositoryMock struct {
	mock.Mock
}

var _ repositories.FriendshipRepository = (*FriendshipRepositoryMock)(nil)

func (m *FriendshipRepositoryMock) FindBetween(ctx context.Context, a, b int64) (models.Friendship, error) {
	args := m.Called(ctx, a, b)
	var f models.Friendship
	if val := args.Get(0); val != nil {
		f = val.(models.Friendship)
	}
	return f, args.Error(1)
}

func (m *FriendshipRepositoryMock) Create(ctx context.Context, f models.Friendship) (models.Friendship, error) {
	args := m.Called(ctx, f)
	var created models.Friendship
	if val := args.Get(0); val != nil {
		created = val.(models.Friendship)
	}
	return created, args.Error(1)
}

func (m *FriendshipRepositoryMock) UpdateStatus(ctx context.Context, id int64, status models.FriendshipStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *FriendshipRepositoryMock) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *FriendshipRepositoryMock) UpsertBlock(ctx context.Context, blockerID, targetID int64) (models.Friendship, error) {
	args := m.Called(ctx, blockerID, targetID)
	var f models.Friendship
	if val := args.Get(0); val != nil {
		f = val.(models.Friendship)
	}
	return f, args.Error(1)
}

func (m *FriendshipRepositoryMock) List(ctx context.Context, userID int64, kind repositories.ListKind, page models.PageRequest) ([]models.Friendship, int64, error) {
	args := m.Called(ctx, userID, kind, page)
	var list []models.Friendship
	if val := args.Get(0); val != nil {
		list = val.([]models.Friendship)
	}
	return list, args.Get(1).(int64), args.Error(2)
}

type MessageRepositoryMock struct {
	mock.Mock
}

var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)

func (m *MessageRepositoryMock) Save(ctx context.Context, msg models.Message) (models.Message, error) {
	args := m.Called(ctx, msg)
	var saved models.Message
	switch val := args.Get(0).(type) {
	case models.Message:
		saved = val
	case func(context.Context, models.Message) models.Message:
		saved = val(ctx, msg)
	}
	return saved, args.Error(1)
}

func (m *MessageRepositoryMock) Page(ctx context.Context, filter repositories.MessageFilter, cursor *repositories.Cursor, limit int) ([]models.Message, error) {
	args := m.Called(ctx, filter, cursor, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) UnreadBySender(ctx context.Context, recipientID int64) (map[int64]int64, error) {
	args := m.Called(ctx, recipientID)
	var counts map[int64]int64
	if val := args.Get(0); val != nil {
		counts = val.(map[int64]int64)
	}
	return counts, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, recipientID, senderID int64) (int64, error) {
	args := m.Called(ctx, recipientID, senderID)
	return args.Get(0).(int64), args.Error(1)
}

type FriendServiceMock struct {
	mock.Mock
}

func (m *FriendServiceMock) SendRequest(ctx context.Context, requesterID int64, addressee string) (models.Friendship, error) {
	args := m.Called(ctx, requesterID, addressee)
	var f models.Friendship
	if val := args.Get(0); val != nil {
		f = val.(models.Friendship)
	}
	return f, args.Error(1)
}

func (m *FriendServiceMock) AcceptRequest(ctx context.Context, acceptorID int64, requester string) (models.Friendship, error) {
	args := m.Called(ctx, acceptorID, requester)
	var f models.Friendship
	if val := args.Get(0); val != nil {
		f = val.(models.Friendship)
	}
	return f, args.Error(1)
}

func (m *FriendServiceMock) friendPage(args mock.Arguments) (models.PageResponse[models.FriendView], error) {
	var page models.PageResponse[models.FriendView]
	if val := args.Get(0); val != nil {
		page = val.(models.PageResponse[models.FriendView])
	}
	return page, args.Error(1)
}

func (m *FriendServiceMock) ListFriends(ctx context.Context, userID int64, page models.PageRequest) (models.PageResponse[models.FriendView], error) {
	return m.friendPage(m.Called(ctx, userID, page))
}

func (m *FriendServiceMock) ListPending(ctx context.Context, userID int64, page models.PageRequest) (models.PageResponse[models.FriendView], error) {
	return m.friendPage(m.Called(ctx, userID, page))
}

func (m *FriendServiceMock) ListSent(ctx context.Context, userID int64, page models.PageRequest) (models.PageResponse[models.FriendView], error) {
	return m.friendPage(m.Called(ctx, userID, page))
}

func (m *FriendServiceMock) DeleteFriendship(ctx context.Context, callerID int64, target string) error {
	args := m.Called(ctx, callerID, target)
	return args.Error(0)
}

func (m *FriendServiceMock) BlockUser(ctx context.Context, blockerID int64, target string) (models.Friendship, error) {
	args := m.Called(ctx, blockerID, target)
	var f models.Friendship
	if val := args.Get(0); val != nil {
		f = val.(models.Friendship)
	}
	return f, args.Error(1)
}

func (m *FriendServiceMock) UnblockUser(ctx context.Context, blockerID int64, target string) error {
	args := m.Called(ctx, blockerID, target)
	return args.Error(0)
}

type MessageServiceMock struct {
	mock.Mock
}

func (m *MessageServiceMock) view(args mock.Arguments) (models.MessageView, error) {
	var v models.MessageView
	if val := args.Get(0); val != nil {
		v = val.(models.MessageView)
	}
	return v, args.Error(1)
}

func (m *MessageServiceMock) Join(ctx context.Context, senderID int64, req models.ChatMessageRequest) (models.MessageView, error) {
	return m.view(m.Called(ctx, senderID, req))
}

func (m *MessageServiceMock) SendPublic(ctx context.Context, senderID int64, req models.ChatMessageRequest) (models.MessageView, error) {
	return m.view(m.Called(ctx, senderID, req))
}

func (m *MessageServiceMock) SendPrivate(ctx context.Context, senderID int64, req models.ChatMessageRequest) (models.MessageView, error) {
	return m.view(m.Called(ctx, senderID, req))
}

func (m *MessageServiceMock) Leave(ctx context.Context, user models.User) {
	m.Called(ctx, user)
}

func (m *MessageServiceMock) cursorPage(args mock.Arguments) (models.CursorPage[models.MessageView], error) {
	var page models.CursorPage[models.MessageView]
	if val := args.Get(0); val != nil {
		page = val.(models.CursorPage[models.MessageView])
	}
	return page, args.Error(1)
}

func (m *MessageServiceMock) PrivateHistory(ctx context.Context, callerID int64, user1, user2, cursor string, size int) (models.CursorPage[models.MessageView], error) {
	return m.cursorPage(m.Called(ctx, callerID, user1, user2, cursor, size))
}

func (m *MessageServiceMock) PublicHistory(ctx context.Context, cursor string, size int) (models.CursorPage[models.MessageView], error) {
	return m.cursorPage(m.Called(ctx, cursor, size))
}

func (m *MessageServiceMock) UnreadCounts(ctx context.Context, recipientID int64) (map[string]int64, error) {
	args := m.Called(ctx, recipientID)
	var counts map[string]int64
	if val := args.Get(0); val != nil {
		counts = val.(map[string]int64)
	}
	return counts, args.Error(1)
}

func (m *MessageServiceMock) MarkRead(ctx context.Context, recipientID int64, sender string) (int64, error) {
	args := m.Called(ctx, recipientID, sender)
	return args.Get(0).(int64), args.Error(1)
}

type PresenceServiceMock struct {
	mock.Mock
}

func (m *PresenceServiceMock) Connect(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *PresenceServiceMock) Disconnect(ctx context.Context, id int64) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *PresenceServiceMock) UserExists(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *PresenceServiceMock) ListOnline(ctx context.Context) (map[string]models.UserSummary, error) {
	args := m.Called(ctx)
	var online map[string]models.UserSummary
	if val := args.Get(0); val != nil {
		online = val.(map[string]models.UserSummary)
	}
	return online, args.Error(1)
}
