package notify

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/events"
	"github.com/npezzotti/chat-relay/internal/notifications"
)

const (
	defaultSenderName = "Someone"
	ellipsis          = "..."

	TypeChannel       = "channel"
	TypeDirectMessage = "direct_message"
)

// notice is what a single event tells each offline recipient.
type notice struct {
	group  notifications.GroupKey
	kind   string
	title  string
	body   string
	urgent bool
	sender string
	// refKey/refId identify the conversation in the push data.
	refKey    string
	refId     int
	messageId int
}

// newNotice returns false for events that never notify.
func newNotice(ev events.BroadcastEvent, maxBody int) (notice, bool) {
	switch e := ev.(type) {
	case events.MessageSent:
		m := e.Message
		sender := senderName(m.User)
		title := sender
		if m.Channel != nil && m.Channel.Name != "" {
			title = fmt.Sprintf("%s in #%s", sender, m.Channel.Name)
		}

		return notice{
			group:     notifications.ChannelGroup(m.ChannelId),
			kind:      TypeChannel,
			title:     title,
			body:      messageBody(m.Content, channelAttachment(m), maxBody),
			urgent:    m.IsUrgent,
			sender:    sender,
			refKey:    "channel_id",
			refId:     m.ChannelId,
			messageId: m.Id,
		}, true
	case events.DMSent:
		dm := e.Message
		sender := senderName(dm.FromUser)

		return notice{
			group:     notifications.SenderGroup(dm.FromUserId),
			kind:      TypeDirectMessage,
			title:     sender,
			body:      messageBody(dm.Content, dmAttachment(dm), maxBody),
			urgent:    dm.IsUrgent,
			sender:    sender,
			refKey:    "sender_id",
			refId:     dm.FromUserId,
			messageId: dm.Id,
		}, true
	}

	return notice{}, false
}

func (n notice) fields() notifications.Fields {
	return notifications.Fields{
		MessageId:  n.messageId,
		SenderName: n.sender,
		Content:    n.body,
	}
}

// pushData is the string map delivered with every push for card.
func (n notice) pushData(card notifications.Card, clickAction string) map[string]string {
	return map[string]string{
		"type":             n.kind,
		"card_id":          card.Id,
		"notification_tag": n.group.Tag(),
		n.refKey:           strconv.Itoa(n.refId),
		"message_id":       strconv.Itoa(n.messageId),
		"sender_name":      n.sender,
		"unread_count":     strconv.Itoa(card.UnreadCount),
		"is_urgent":        strconv.FormatBool(n.urgent),
		"click_action":     clickAction,
	}
}

type attachment struct {
	kind string
	name string
}

func channelAttachment(m database.Message) *attachment {
	if m.AttachmentUrl != nil || m.AttachmentType != nil {
		return &attachment{kind: deref(m.AttachmentType), name: deref(m.AttachmentName)}
	}
	if len(m.Attachments) > 0 {
		a := m.Attachments[0]
		name := a.OriginalName
		if name == "" {
			name = a.FileName
		}
		kind := a.Type
		if kind == "" {
			kind = a.MimeType
		}
		return &attachment{kind: kind, name: name}
	}
	return nil
}

func dmAttachment(dm database.DirectMessage) *attachment {
	if dm.AttachmentUrl == nil && dm.AttachmentType == nil {
		return nil
	}
	return &attachment{kind: deref(dm.AttachmentType), name: deref(dm.AttachmentName)}
}

// messageBody truncates content to max runes, or labels the attachment when
// there is no text.
func messageBody(content string, att *attachment, max int) string {
	content = strings.TrimSpace(content)
	if content == "" && att != nil {
		return placeholder(*att)
	}

	if max > 0 && utf8.RuneCountInString(content) > max {
		return string([]rune(content)[:max]) + ellipsis
	}
	return content
}

func placeholder(a attachment) string {
	kind := strings.ToLower(a.kind)
	switch {
	case strings.HasPrefix(kind, "image"):
		return "📷 Photo"
	case strings.HasPrefix(kind, "video"):
		return "🎥 Video"
	case strings.HasPrefix(kind, "audio"), strings.HasPrefix(kind, "voice"):
		return "🎵 Audio"
	case a.name != "":
		return "📎 " + a.name
	}
	return "📎 File"
}

func senderName(u *database.User) string {
	if u == nil || u.Name == "" {
		return defaultSenderName
	}
	return u.Name
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
