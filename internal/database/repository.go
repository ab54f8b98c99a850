package database

import (
	"context"

	"github.com/npezzotti/chat-relay/internal/notifications"
)

type GoChatRepository interface {
	Ping() error

	GetUserById(ctx context.Context, userId int) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetPersonalAccessToken(ctx context.Context, id int, tokenHash string) (PersonalAccessToken, error)

	GetChannel(ctx context.Context, channelId int) (Channel, error)
	IsChannelMember(ctx context.Context, channelId, userId int) (bool, error)

	CreateMessage(ctx context.Context, params CreateMessageParams) (int, error)
	GetMessage(ctx context.Context, messageId int) (Message, error)
	UpdateMessage(ctx context.Context, params UpdateMessageParams) error
	DeleteMessage(ctx context.Context, messageId int) error

	CreateDirectMessage(ctx context.Context, params CreateDirectMessageParams) (int, error)
	GetDirectMessage(ctx context.Context, messageId int) (DirectMessage, error)
	DeleteDirectMessage(ctx context.Context, messageId int) error
	MarkDirectMessagesRead(ctx context.Context, userId, fromUserId int) (int, error)

	GetPoll(ctx context.Context, pollId int) (Poll, error)
	VotePoll(ctx context.Context, pollId, userId int, optionIds []int) error

	ListPushTokens(ctx context.Context, userId int) ([]PushToken, error)
	UpsertPushToken(ctx context.Context, params UpsertPushTokenParams) (PushToken, error)
	DeletePushToken(ctx context.Context, token string) error
	DeleteUserPushToken(ctx context.Context, userId int, token string) error

	notifications.Log
}

var (
	_ GoChatRepository = (*PgGoChatRepository)(nil)
	_ GoChatRepository = (*MockGoChatRepository)(nil)
)
