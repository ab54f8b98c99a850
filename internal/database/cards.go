package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/npezzotti/chat-relay/internal/notifications"
)

const cardColumns = "id, recipient_id, group_key, unread_count, last_message_id, last_sender_name, " +
	"last_content, created_at, updated_at, read_at"

func scanCard(row scanner) (notifications.Card, error) {
	var (
		c      notifications.Card
		key    string
		readAt sql.NullTime
	)
	err := row.Scan(
		&c.Id,
		&c.RecipientUserId,
		&key,
		&c.UnreadCount,
		&c.LastMessageId,
		&c.LastSenderName,
		&c.LastContent,
		&c.CreatedAt,
		&c.UpdatedAt,
		&readAt,
	)
	c.GroupKey = notifications.GroupKey(key)
	c.ReadAt = nullTimePtr(readAt)

	return c, err
}

// UpsertNotification relies on the partial unique index over unread cards,
// so concurrent writers for one group converge on a single row.
func (db *PgGoChatRepository) UpsertNotification(ctx context.Context, recipientUserId int, key notifications.GroupKey, f notifications.Fields) (notifications.Card, error) {
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO notifications (id, recipient_id, group_key, unread_count, last_message_id, last_sender_name, "+
			"last_content, created_at, updated_at) VALUES ($1, $2, $3, 1, $4, $5, $6, $7, $7) "+
			"ON CONFLICT (recipient_id, group_key) WHERE read_at IS NULL DO UPDATE SET "+
			"unread_count = notifications.unread_count + 1, last_message_id = EXCLUDED.last_message_id, "+
			"last_sender_name = EXCLUDED.last_sender_name, last_content = EXCLUDED.last_content, "+
			"updated_at = EXCLUDED.updated_at "+
			"RETURNING "+cardColumns,
		uuid.NewString(),
		recipientUserId,
		string(key),
		f.MessageId,
		f.SenderName,
		f.Content,
		time.Now().UTC(),
	)

	c, err := scanCard(row)
	if err != nil {
		return notifications.Card{}, fmt.Errorf("upsert notification: %w", err)
	}

	return c, nil
}

func (db *PgGoChatRepository) MarkNotificationsRead(ctx context.Context, recipientUserId int, key notifications.GroupKey) error {
	_, err := db.conn.ExecContext(ctx,
		"UPDATE notifications SET read_at = $3, updated_at = $3 "+
			"WHERE recipient_id = $1 AND group_key = $2 AND read_at IS NULL",
		recipientUserId,
		string(key),
		time.Now().UTC(),
	)

	return err
}

func (db *PgGoChatRepository) MarkAllReadForChannel(ctx context.Context, recipientUserId, channelId int) error {
	return db.MarkNotificationsRead(ctx, recipientUserId, notifications.ChannelGroup(channelId))
}

func (db *PgGoChatRepository) MarkNotificationRead(ctx context.Context, recipientUserId int, cardId string) error {
	if _, err := uuid.Parse(cardId); err != nil {
		return notifications.ErrCardNotFound
	}

	row := db.conn.QueryRowContext(ctx,
		"UPDATE notifications SET read_at = COALESCE(read_at, $3) "+
			"WHERE id = $1 AND recipient_id = $2 RETURNING id",
		cardId,
		recipientUserId,
		time.Now().UTC(),
	)

	var id string
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notifications.ErrCardNotFound
		}
		return err
	}

	return nil
}

func (db *PgGoChatRepository) ListUnreadNotifications(ctx context.Context, recipientUserId int) ([]notifications.Card, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT "+cardColumns+" FROM notifications "+
			"WHERE recipient_id = $1 AND read_at IS NULL ORDER BY updated_at DESC",
		recipientUserId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cards := make([]notifications.Card, 0)
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		cards = append(cards, c)
	}

	return cards, rows.Err()
}
