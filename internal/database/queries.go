package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

const (
	userColumns    = "id, company_id, name, email, password, profile_image_url, role, created_at, updated_at"
	messageColumns = "id, company_id, channel_id, user_id, content, reply_to_id, thread_parent_id, topic_id, " +
		"attachment_url, attachment_type, attachment_name, mentions, is_urgent, edited_at, created_at, updated_at"
	directMessageColumns = "id, company_id, from_user_id, to_user_id, content, local_id, reply_to_id, " +
		"attachment_url, attachment_type, attachment_name, is_read, is_urgent, created_at, updated_at"
)

type scanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func toInts(in pq.Int64Array) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

func toInt64s(in []int) pq.Int64Array {
	out := make(pq.Int64Array, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func scanUser(row scanner) (User, error) {
	var (
		u          User
		companyId  sql.NullInt64
		profileImg sql.NullString
	)
	err := row.Scan(
		&u.Id,
		&companyId,
		&u.Name,
		&u.EmailAddress,
		&u.PasswordHash,
		&profileImg,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}

	u.CompanyId = int(companyId.Int64)
	u.ProfileImageUrl = nullStringPtr(profileImg)

	return u, nil
}

func (db *PgGoChatRepository) GetUserById(ctx context.Context, userId int) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1 LIMIT 1",
		userId,
	)

	u, err := scanUser(row)
	return u, notFound(err)
}

func (db *PgGoChatRepository) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1 LIMIT 1",
		email,
	)

	u, err := scanUser(row)
	return u, notFound(err)
}

func (db *PgGoChatRepository) GetPersonalAccessToken(ctx context.Context, id int, tokenHash string) (PersonalAccessToken, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, tokenable_id, token, expires_at FROM personal_access_tokens "+
			"WHERE id = $1 AND token = $2 LIMIT 1",
		id,
		tokenHash,
	)

	var (
		pat       PersonalAccessToken
		expiresAt sql.NullTime
	)
	if err := row.Scan(&pat.Id, &pat.TokenableId, &pat.Token, &expiresAt); err != nil {
		return PersonalAccessToken{}, notFound(err)
	}
	pat.ExpiresAt = nullTimePtr(expiresAt)

	_, err := db.conn.ExecContext(ctx,
		"UPDATE personal_access_tokens SET last_used_at = $2 WHERE id = $1",
		pat.Id,
		time.Now().UTC(),
	)

	return pat, err
}

func (db *PgGoChatRepository) GetChannel(ctx context.Context, channelId int) (Channel, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT c.id, c.company_id, c.name, c.is_private, c.created_by, c.created_at, c.updated_at, "+
			"COALESCE(ARRAY(SELECT m.user_id FROM channel_members m WHERE m.channel_id = c.id ORDER BY m.user_id), '{}') "+
			"FROM channels c WHERE c.id = $1 AND c.deleted_at IS NULL LIMIT 1",
		channelId,
	)

	var (
		ch      Channel
		members pq.Int64Array
	)
	err := row.Scan(
		&ch.Id,
		&ch.CompanyId,
		&ch.Name,
		&ch.IsPrivate,
		&ch.CreatedBy,
		&ch.CreatedAt,
		&ch.UpdatedAt,
		&members,
	)
	if err != nil {
		return Channel{}, notFound(err)
	}
	ch.MemberIds = toInts(members)

	return ch, nil
}

func (db *PgGoChatRepository) IsChannelMember(ctx context.Context, channelId, userId int) (bool, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM channel_members WHERE channel_id = $1 AND user_id = $2)",
		channelId,
		userId,
	)

	var exists bool
	err := row.Scan(&exists)

	return exists, err
}

func (db *PgGoChatRepository) CreateMessage(ctx context.Context, params CreateMessageParams) (int, error) {
	now := time.Now().UTC()
	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO messages (company_id, channel_id, user_id, content, reply_to_id, thread_parent_id, topic_id, "+
			"attachment_url, attachment_type, attachment_name, mentions, is_urgent, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $13) RETURNING id",
		params.CompanyId,
		params.ChannelId,
		params.UserId,
		params.Content,
		params.ReplyToId,
		params.ThreadParentId,
		params.TopicId,
		params.AttachmentUrl,
		params.AttachmentType,
		params.AttachmentName,
		toInt64s(params.Mentions),
		params.IsUrgent,
		now,
	)

	var id int
	err := res.Scan(&id)

	return id, err
}

func scanMessage(row scanner) (Message, error) {
	var (
		m                            Message
		replyTo, threadParent, topic sql.NullInt64
		attURL, attType, attName     sql.NullString
		mentions                     pq.Int64Array
		editedAt                     sql.NullTime
	)
	err := row.Scan(
		&m.Id,
		&m.CompanyId,
		&m.ChannelId,
		&m.UserId,
		&m.Content,
		&replyTo,
		&threadParent,
		&topic,
		&attURL,
		&attType,
		&attName,
		&mentions,
		&m.IsUrgent,
		&editedAt,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return Message{}, err
	}

	m.ReplyToId = nullIntPtr(replyTo)
	m.ThreadParentId = nullIntPtr(threadParent)
	m.TopicId = nullIntPtr(topic)
	m.AttachmentUrl = nullStringPtr(attURL)
	m.AttachmentType = nullStringPtr(attType)
	m.AttachmentName = nullStringPtr(attName)
	m.Mentions = toInts(mentions)
	m.EditedAt = nullTimePtr(editedAt)

	return m, nil
}

// GetMessage loads a channel message together with its author, channel,
// topic, attachments and poll.
func (db *PgGoChatRepository) GetMessage(ctx context.Context, messageId int) (Message, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+messageColumns+" FROM messages WHERE id = $1 LIMIT 1",
		messageId,
	)

	m, err := scanMessage(row)
	if err != nil {
		return Message{}, notFound(err)
	}

	if u, err := db.GetUserById(ctx, m.UserId); err == nil {
		m.User = &u
	} else if !errors.Is(err, ErrNotFound) {
		return Message{}, fmt.Errorf("load author: %w", err)
	}

	if ch, err := db.GetChannel(ctx, m.ChannelId); err == nil {
		m.Channel = &ch
	} else if !errors.Is(err, ErrNotFound) {
		return Message{}, fmt.Errorf("load channel: %w", err)
	}

	if m.TopicId != nil {
		topic, err := db.getTopic(ctx, *m.TopicId)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return Message{}, fmt.Errorf("load topic: %w", err)
		}
		if err == nil {
			m.Topic = &topic
		}
	}

	if m.Attachments, err = db.listAttachments(ctx, m.Id); err != nil {
		return Message{}, fmt.Errorf("load attachments: %w", err)
	}

	pollRow := db.conn.QueryRowContext(ctx, "SELECT id FROM polls WHERE message_id = $1 LIMIT 1", m.Id)
	var pollId int
	switch err := pollRow.Scan(&pollId); {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Message{}, fmt.Errorf("load poll: %w", err)
	default:
		poll, err := db.GetPoll(ctx, pollId)
		if err != nil {
			return Message{}, fmt.Errorf("load poll: %w", err)
		}
		m.Poll = &poll
	}

	return m, nil
}

func (db *PgGoChatRepository) getTopic(ctx context.Context, topicId int) (Topic, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, channel_id, name, color FROM topics WHERE id = $1 LIMIT 1",
		topicId,
	)

	var (
		t     Topic
		color sql.NullString
	)
	if err := row.Scan(&t.Id, &t.ChannelId, &t.Name, &color); err != nil {
		return Topic{}, notFound(err)
	}
	t.Color = nullStringPtr(color)

	return t, nil
}

func (db *PgGoChatRepository) listAttachments(ctx context.Context, messageId int) ([]Attachment, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, message_id, file_name, original_name, mime_type, type, url FROM attachments "+
			"WHERE message_id = $1 ORDER BY id",
		messageId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attachments := make([]Attachment, 0)
	for rows.Next() {
		var a Attachment
		if err := rows.Scan(&a.Id, &a.MessageId, &a.FileName, &a.OriginalName, &a.MimeType, &a.Type, &a.Url); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		attachments = append(attachments, a)
	}

	return attachments, rows.Err()
}

func (db *PgGoChatRepository) UpdateMessage(ctx context.Context, params UpdateMessageParams) error {
	var mentions any
	if params.Mentions != nil {
		mentions = toInt64s(params.Mentions)
	}

	res, err := db.conn.ExecContext(ctx,
		"UPDATE messages SET content = COALESCE($2, content), mentions = COALESCE($3, mentions), "+
			"edited_at = $4, updated_at = $4 WHERE id = $1",
		params.Id,
		params.Content,
		mentions,
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	return expectAffected(res)
}

func (db *PgGoChatRepository) DeleteMessage(ctx context.Context, messageId int) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM messages WHERE id = $1", messageId)
	if err != nil {
		return err
	}

	return expectAffected(res)
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *PgGoChatRepository) CreateDirectMessage(ctx context.Context, params CreateDirectMessageParams) (int, error) {
	now := time.Now().UTC()
	res := db.conn.QueryRowContext(ctx,
		"INSERT INTO direct_messages (company_id, from_user_id, to_user_id, content, local_id, reply_to_id, "+
			"attachment_url, attachment_type, attachment_name, is_urgent, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11) "+
			"ON CONFLICT (local_id, from_user_id) DO UPDATE SET updated_at = direct_messages.updated_at "+
			"RETURNING id",
		params.CompanyId,
		params.FromUserId,
		params.ToUserId,
		params.Content,
		params.LocalId,
		params.ReplyToId,
		params.AttachmentUrl,
		params.AttachmentType,
		params.AttachmentName,
		params.IsUrgent,
		now,
	)

	var id int
	err := res.Scan(&id)

	return id, err
}

func scanDirectMessage(row scanner) (DirectMessage, error) {
	var (
		dm                       DirectMessage
		localId                  sql.NullString
		replyTo                  sql.NullInt64
		attURL, attType, attName sql.NullString
	)
	err := row.Scan(
		&dm.Id,
		&dm.CompanyId,
		&dm.FromUserId,
		&dm.ToUserId,
		&dm.Content,
		&localId,
		&replyTo,
		&attURL,
		&attType,
		&attName,
		&dm.IsRead,
		&dm.IsUrgent,
		&dm.CreatedAt,
		&dm.UpdatedAt,
	)
	if err != nil {
		return DirectMessage{}, err
	}

	dm.LocalId = nullStringPtr(localId)
	dm.ReplyToId = nullIntPtr(replyTo)
	dm.AttachmentUrl = nullStringPtr(attURL)
	dm.AttachmentType = nullStringPtr(attType)
	dm.AttachmentName = nullStringPtr(attName)

	return dm, nil
}

// GetDirectMessage loads a direct message with both users and the message
// it replies to, if any.
func (db *PgGoChatRepository) GetDirectMessage(ctx context.Context, messageId int) (DirectMessage, error) {
	dm, err := db.getDirectMessage(ctx, messageId)
	if err != nil {
		return DirectMessage{}, notFound(err)
	}

	if u, err := db.GetUserById(ctx, dm.FromUserId); err == nil {
		dm.FromUser = &u
	} else if !errors.Is(err, ErrNotFound) {
		return DirectMessage{}, fmt.Errorf("load sender: %w", err)
	}

	if u, err := db.GetUserById(ctx, dm.ToUserId); err == nil {
		dm.ToUser = &u
	} else if !errors.Is(err, ErrNotFound) {
		return DirectMessage{}, fmt.Errorf("load recipient: %w", err)
	}

	if dm.ReplyToId != nil {
		reply, err := db.getDirectMessage(ctx, *dm.ReplyToId)
		if err == nil {
			dm.ReplyTo = &reply
		} else if !errors.Is(err, sql.ErrNoRows) {
			return DirectMessage{}, fmt.Errorf("load reply: %w", err)
		}
	}

	return dm, nil
}

func (db *PgGoChatRepository) getDirectMessage(ctx context.Context, messageId int) (DirectMessage, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT "+directMessageColumns+" FROM direct_messages WHERE id = $1 LIMIT 1",
		messageId,
	)

	return scanDirectMessage(row)
}

func (db *PgGoChatRepository) DeleteDirectMessage(ctx context.Context, messageId int) error {
	res, err := db.conn.ExecContext(ctx, "DELETE FROM direct_messages WHERE id = $1", messageId)
	if err != nil {
		return err
	}

	return expectAffected(res)
}

// MarkDirectMessagesRead marks every unread message sent by fromUserId to
// userId as read and reports how many rows changed.
func (db *PgGoChatRepository) MarkDirectMessagesRead(ctx context.Context, userId, fromUserId int) (int, error) {
	res, err := db.conn.ExecContext(ctx,
		"UPDATE direct_messages SET is_read = TRUE, updated_at = $3 "+
			"WHERE to_user_id = $1 AND from_user_id = $2 AND is_read = FALSE",
		userId,
		fromUserId,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, err
	}

	n, err := res.RowsAffected()
	return int(n), err
}

func (db *PgGoChatRepository) GetPoll(ctx context.Context, pollId int) (Poll, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT p.id, p.message_id, COALESCE(m.channel_id, 0), p.company_id, p.question, "+
			"p.allow_multiple_selection, p.is_anonymous, p.is_closed, p.created_by "+
			"FROM polls p LEFT JOIN messages m ON m.id = p.message_id WHERE p.id = $1 LIMIT 1",
		pollId,
	)

	var (
		p         Poll
		messageId sql.NullInt64
	)
	err := row.Scan(
		&p.Id,
		&messageId,
		&p.ChannelId,
		&p.CompanyId,
		&p.Question,
		&p.AllowMultipleSelection,
		&p.IsAnonymous,
		&p.IsClosed,
		&p.CreatedBy,
	)
	if err != nil {
		return Poll{}, notFound(err)
	}
	p.MessageId = nullIntPtr(messageId)

	rows, err := db.conn.QueryContext(ctx,
		"SELECT o.id, o.text, COALESCE(ARRAY(SELECT v.user_id FROM poll_votes v WHERE v.poll_option_id = o.id ORDER BY v.user_id), '{}') "+
			"FROM poll_options o WHERE o.poll_id = $1 ORDER BY o.id",
		p.Id,
	)
	if err != nil {
		return Poll{}, fmt.Errorf("load options: %w", err)
	}
	defer rows.Close()

	p.Options = make([]PollOption, 0)
	for rows.Next() {
		var (
			o      PollOption
			voters pq.Int64Array
		)
		if err := rows.Scan(&o.Id, &o.Text, &voters); err != nil {
			return Poll{}, fmt.Errorf("scan row: %w", err)
		}
		o.VoterIds = toInts(voters)
		p.Options = append(p.Options, o)
	}

	return p, rows.Err()
}

// VotePoll replaces the user's votes on the poll with optionIds.
func (db *PgGoChatRepository) VotePoll(ctx context.Context, pollId, userId int, optionIds []int) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx, "DELETE FROM poll_votes WHERE poll_id = $1 AND user_id = $2", pollId, userId)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO poll_votes (poll_id, poll_option_id, user_id, created_at) "+
			"SELECT $1, o.id, $2, $4 FROM poll_options o WHERE o.poll_id = $1 AND o.id = ANY($3)",
		pollId,
		userId,
		toInt64s(optionIds),
		time.Now().UTC(),
	)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgGoChatRepository) ListPushTokens(ctx context.Context, userId int) ([]PushToken, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, user_id, fcm_token, device_type, device_id, created_at, updated_at "+
			"FROM push_subscriptions WHERE user_id = $1 ORDER BY id",
		userId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens = make([]PushToken, 0)
	for rows.Next() {
		pt, err := scanPushToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		tokens = append(tokens, pt)
	}

	return tokens, rows.Err()
}

func scanPushToken(row scanner) (PushToken, error) {
	var (
		pt       PushToken
		deviceId sql.NullString
	)
	err := row.Scan(
		&pt.Id,
		&pt.UserId,
		&pt.Token,
		&pt.DeviceType,
		&deviceId,
		&pt.CreatedAt,
		&pt.UpdatedAt,
	)
	pt.DeviceId = nullStringPtr(deviceId)

	return pt, err
}

// UpsertPushToken registers a device token. A token already registered to
// another user moves to the caller.
func (db *PgGoChatRepository) UpsertPushToken(ctx context.Context, params UpsertPushTokenParams) (PushToken, error) {
	now := time.Now().UTC()
	row := db.conn.QueryRowContext(ctx,
		"INSERT INTO push_subscriptions (user_id, fcm_token, device_type, device_id, created_at, updated_at) "+
			"VALUES ($1, $2, $3, $4, $5, $5) "+
			"ON CONFLICT (fcm_token) DO UPDATE SET user_id = EXCLUDED.user_id, device_type = EXCLUDED.device_type, "+
			"device_id = EXCLUDED.device_id, updated_at = EXCLUDED.updated_at "+
			"RETURNING id, user_id, fcm_token, device_type, device_id, created_at, updated_at",
		params.UserId,
		params.Token,
		params.DeviceType,
		params.DeviceId,
		now,
	)

	return scanPushToken(row)
}

func (db *PgGoChatRepository) DeletePushToken(ctx context.Context, token string) error {
	_, err := db.conn.ExecContext(ctx, "DELETE FROM push_subscriptions WHERE fcm_token = $1", token)

	return err
}

func (db *PgGoChatRepository) DeleteUserPushToken(ctx context.Context, userId int, token string) error {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM push_subscriptions WHERE user_id = $1 AND fcm_token = $2",
		userId,
		token,
	)
	if err != nil {
		return err
	}

	return expectAffected(res)
}
