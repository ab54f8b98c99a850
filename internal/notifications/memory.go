package notifications

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type userCards struct {
	mu    sync.Mutex
	cards []*Card
}

// MemoryLog is an in-process Log. Writes are serialized per recipient.
type MemoryLog struct {
	mu    sync.Mutex
	users map[int]*userCards
	now   func() time.Time
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		users: make(map[int]*userCards),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryLog) forUser(userId int) *userCards {
	l.mu.Lock()
	defer l.mu.Unlock()

	uc, ok := l.users[userId]
	if !ok {
		uc = &userCards{}
		l.users[userId] = uc
	}

	return uc
}

// openCard must be called with uc.mu held.
func (uc *userCards) openCard(key GroupKey) *Card {
	for _, c := range uc.cards {
		if c.GroupKey == key && c.ReadAt == nil {
			return c
		}
	}
	return nil
}

func (l *MemoryLog) UpsertNotification(_ context.Context, recipientUserId int, key GroupKey, f Fields) (Card, error) {
	uc := l.forUser(recipientUserId)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	now := l.now()
	if c := uc.openCard(key); c != nil {
		c.UnreadCount++
		c.LastMessageId = f.MessageId
		c.LastSenderName = f.SenderName
		c.LastContent = f.Content
		c.UpdatedAt = now
		return *c, nil
	}

	c := &Card{
		Id:              uuid.NewString(),
		RecipientUserId: recipientUserId,
		GroupKey:        key,
		UnreadCount:     1,
		LastMessageId:   f.MessageId,
		LastSenderName:  f.SenderName,
		LastContent:     f.Content,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	uc.cards = append(uc.cards, c)

	return *c, nil
}

func (l *MemoryLog) MarkNotificationsRead(_ context.Context, recipientUserId int, key GroupKey) error {
	uc := l.forUser(recipientUserId)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if c := uc.openCard(key); c != nil {
		now := l.now()
		c.ReadAt = &now
	}

	return nil
}

func (l *MemoryLog) MarkAllReadForChannel(ctx context.Context, recipientUserId, channelId int) error {
	return l.MarkNotificationsRead(ctx, recipientUserId, ChannelGroup(channelId))
}

func (l *MemoryLog) MarkNotificationRead(_ context.Context, recipientUserId int, cardId string) error {
	uc := l.forUser(recipientUserId)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	for _, c := range uc.cards {
		if c.Id != cardId {
			continue
		}
		if c.ReadAt == nil {
			now := l.now()
			c.ReadAt = &now
		}
		return nil
	}

	return ErrCardNotFound
}

func (l *MemoryLog) ListUnreadNotifications(_ context.Context, recipientUserId int) ([]Card, error) {
	uc := l.forUser(recipientUserId)
	uc.mu.Lock()
	defer uc.mu.Unlock()

	cards := make([]Card, 0, len(uc.cards))
	for _, c := range uc.cards {
		if c.ReadAt == nil {
			cards = append(cards, *c)
		}
	}

	// newest activity first
	sort.SliceStable(cards, func(i, j int) bool {
		return cards[i].UpdatedAt.After(cards[j].UpdatedAt)
	})

	return cards, nil
}
