package database

import (
	"context"

	"github.com/npezzotti/chat-relay/internal/notifications"
	"github.com/stretchr/testify/mock"
)

type MockGoChatRepository struct {
	mock.Mock
}

func (m *MockGoChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockGoChatRepository) GetUserById(ctx context.Context, userId int) (User, error) {
	args := m.Called(ctx, userId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockGoChatRepository) GetPersonalAccessToken(ctx context.Context, id int, tokenHash string) (PersonalAccessToken, error) {
	args := m.Called(ctx, id, tokenHash)
	return args.Get(0).(PersonalAccessToken), args.Error(1)
}
func (m *MockGoChatRepository) GetChannel(ctx context.Context, channelId int) (Channel, error) {
	args := m.Called(ctx, channelId)
	return args.Get(0).(Channel), args.Error(1)
}
func (m *MockGoChatRepository) IsChannelMember(ctx context.Context, channelId, userId int) (bool, error) {
	args := m.Called(ctx, channelId, userId)
	return args.Bool(0), args.Error(1)
}
func (m *MockGoChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (int, error) {
	args := m.Called(ctx, params)
	return args.Int(0), args.Error(1)
}
func (m *MockGoChatRepository) GetMessage(ctx context.Context, messageId int) (Message, error) {
	args := m.Called(ctx, messageId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockGoChatRepository) UpdateMessage(ctx context.Context, params UpdateMessageParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}
func (m *MockGoChatRepository) DeleteMessage(ctx context.Context, messageId int) error {
	args := m.Called(ctx, messageId)
	return args.Error(0)
}
func (m *MockGoChatRepository) CreateDirectMessage(ctx context.Context, params CreateDirectMessageParams) (int, error) {
	args := m.Called(ctx, params)
	return args.Int(0), args.Error(1)
}
func (m *MockGoChatRepository) GetDirectMessage(ctx context.Context, messageId int) (DirectMessage, error) {
	args := m.Called(ctx, messageId)
	return args.Get(0).(DirectMessage), args.Error(1)
}
func (m *MockGoChatRepository) DeleteDirectMessage(ctx context.Context, messageId int) error {
	args := m.Called(ctx, messageId)
	return args.Error(0)
}
func (m *MockGoChatRepository) MarkDirectMessagesRead(ctx context.Context, userId, fromUserId int) (int, error) {
	args := m.Called(ctx, userId, fromUserId)
	return args.Int(0), args.Error(1)
}
func (m *MockGoChatRepository) GetPoll(ctx context.Context, pollId int) (Poll, error) {
	args := m.Called(ctx, pollId)
	return args.Get(0).(Poll), args.Error(1)
}
func (m *MockGoChatRepository) VotePoll(ctx context.Context, pollId, userId int, optionIds []int) error {
	args := m.Called(ctx, pollId, userId, optionIds)
	return args.Error(0)
}
func (m *MockGoChatRepository) ListPushTokens(ctx context.Context, userId int) ([]PushToken, error) {
	args := m.Called(ctx, userId)
	if tokens, ok := args.Get(0).([]PushToken); ok {
		return tokens, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockGoChatRepository) UpsertPushToken(ctx context.Context, params UpsertPushTokenParams) (PushToken, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(PushToken), args.Error(1)
}
func (m *MockGoChatRepository) DeletePushToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}
func (m *MockGoChatRepository) DeleteUserPushToken(ctx context.Context, userId int, token string) error {
	args := m.Called(ctx, userId, token)
	return args.Error(0)
}
func (m *MockGoChatRepository) UpsertNotification(ctx context.Context, recipientUserId int, key notifications.GroupKey, f notifications.Fields) (notifications.Card, error) {
	args := m.Called(ctx, recipientUserId, key, f)
	return args.Get(0).(notifications.Card), args.Error(1)
}
func (m *MockGoChatRepository) MarkNotificationsRead(ctx context.Context, recipientUserId int, key notifications.GroupKey) error {
	args := m.Called(ctx, recipientUserId, key)
	return args.Error(0)
}
func (m *MockGoChatRepository) MarkAllReadForChannel(ctx context.Context, recipientUserId, channelId int) error {
	args := m.Called(ctx, recipientUserId, channelId)
	return args.Error(0)
}
func (m *MockGoChatRepository) MarkNotificationRead(ctx context.Context, recipientUserId int, cardId string) error {
	args := m.Called(ctx, recipientUserId, cardId)
	return args.Error(0)
}
func (m *MockGoChatRepository) ListUnreadNotifications(ctx context.Context, recipientUserId int) ([]notifications.Card, error) {
	args := m.Called(ctx, recipientUserId)
	if cards, ok := args.Get(0).([]notifications.Card); ok {
		return cards, args.Error(1)
	}
	return nil, args.Error(1)
}
