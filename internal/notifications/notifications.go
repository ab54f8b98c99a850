// Package notifications keeps the per-user log of unread notification
// cards. Events that share a recipient and a group key merge into a single
// open card instead of stacking.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrCardNotFound = errors.New("notification card not found")

// GroupKey identifies the conversation a card aggregates. Channel messages
// group by channel, direct messages group by sender.
type GroupKey string

func ChannelGroup(channelId int) GroupKey {
	return GroupKey(fmt.Sprintf("channel:%d", channelId))
}

func SenderGroup(senderId int) GroupKey {
	return GroupKey(fmt.Sprintf("dm:%d", senderId))
}

// Tag is the client side collapse tag for notifications of this group,
// e.g. channel_42 or dm_3.
func (k GroupKey) Tag() string {
	return strings.Replace(string(k), ":", "_", 1)
}

type Fields struct {
	MessageId  int
	SenderName string
	Content    string
}

type Card struct {
	Id              string     `json:"id"`
	RecipientUserId int        `json:"recipient_user_id"`
	GroupKey        GroupKey   `json:"group_key"`
	UnreadCount     int        `json:"unread_count"`
	LastMessageId   int        `json:"last_message_id"`
	LastSenderName  string     `json:"last_sender_name"`
	LastContent     string     `json:"last_content"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	ReadAt          *time.Time `json:"read_at"`
}

type Log interface {
	// UpsertNotification creates an open card for the group or increments
	// the one that already exists, returning the resulting card.
	UpsertNotification(ctx context.Context, recipientUserId int, key GroupKey, f Fields) (Card, error)
	MarkNotificationsRead(ctx context.Context, recipientUserId int, key GroupKey) error
	MarkAllReadForChannel(ctx context.Context, recipientUserId, channelId int) error
	MarkNotificationRead(ctx context.Context, recipientUserId int, cardId string) error
	ListUnreadNotifications(ctx context.Context, recipientUserId int) ([]Card, error)
}
