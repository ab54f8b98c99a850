package events

import (
	"strings"
	"time"

	"github.com/npezzotti/chat-relay/internal/database"
)

const uploadsMarker = "uploads/"

type messagePayload struct {
	Message Message `json:"message"`
}

type dmPayload struct {
	Message       DirectMessage `json:"message"`
	IsGlobalEvent bool          `json:"is_global_event,omitempty"`
}

type messageDeletedPayload struct {
	MessageId int `json:"message_id"`
	ChannelId int `json:"channel_id"`
}

type dmDeletedPayload struct {
	MessageId int `json:"message_id"`
}

type readPayload struct {
	UserId     int `json:"user_id"`
	FromUserId int `json:"from_user_id"`
}

type pollPayload struct {
	Poll *Poll `json:"poll"`
}

type User struct {
	Id              int     `json:"id"`
	Name            string  `json:"name"`
	Email           string  `json:"email"`
	ProfileImageUrl *string `json:"profile_image_url"`
}

type ChannelRef struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
}

type Topic struct {
	Id        int     `json:"id"`
	ChannelId int     `json:"channel_id"`
	Name      string  `json:"name"`
	Color     *string `json:"color"`
}

type Attachment struct {
	Id           int    `json:"id"`
	FileName     string `json:"file_name"`
	OriginalName string `json:"original_name"`
	MimeType     string `json:"mime_type"`
	Type         string `json:"type"`
	Url          string `json:"url"`
}

type PollOption struct {
	Id       int    `json:"id"`
	Text     string `json:"text"`
	VoterIds []int  `json:"voter_ids"`
}

type Poll struct {
	Id                     int          `json:"id"`
	Question               string       `json:"question"`
	AllowMultipleSelection bool         `json:"allow_multiple_selection"`
	IsAnonymous            bool         `json:"is_anonymous"`
	CreatedBy              int          `json:"created_by"`
	IsClosed               bool         `json:"is_closed"`
	Options                []PollOption `json:"options"`
}

type Message struct {
	Id             int          `json:"id"`
	Content        string       `json:"content"`
	ChannelId      int          `json:"channel_id"`
	UserId         int          `json:"user_id"`
	CompanyId      int          `json:"company_id"`
	ReplyToId      *int         `json:"reply_to_id"`
	ThreadParentId *int         `json:"thread_parent_id"`
	AttachmentUrl  *string      `json:"attachment_url"`
	AttachmentType *string      `json:"attachment_type"`
	AttachmentName *string      `json:"attachment_name"`
	Attachments    []Attachment `json:"attachments"`
	Mentions       []int        `json:"mentions"`
	EditedAt       *time.Time   `json:"edited_at"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	User           *User        `json:"user"`
	Channel        *ChannelRef  `json:"channel"`
	TopicId        *int         `json:"topic_id"`
	Topic          *Topic       `json:"topic"`
	IsUrgent       bool         `json:"is_urgent"`
	Poll           *Poll        `json:"poll"`
}

type DirectMessage struct {
	Id             int            `json:"id"`
	CompanyId      int            `json:"company_id"`
	Content        string         `json:"content"`
	FromUserId     int            `json:"from_user_id"`
	ToUserId       int            `json:"to_user_id"`
	ReplyToId      *int           `json:"reply_to_id"`
	AttachmentUrl  *string        `json:"attachment_url"`
	AttachmentType *string        `json:"attachment_type"`
	AttachmentName *string        `json:"attachment_name"`
	IsRead         bool           `json:"is_read"`
	IsUrgent       bool           `json:"is_urgent"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	FromUser       *User          `json:"from_user"`
	ToUser         *User          `json:"to_user"`
	ReplyTo        *DirectMessage `json:"reply_to"`
}

// NormalizeAttachmentURL drops any host or path prefix in front of the last
// "uploads/" segment.
func NormalizeAttachmentURL(u string) string {
	if i := strings.LastIndex(u, uploadsMarker); i >= 0 {
		return u[i:]
	}
	return u
}

func normalizeURLPtr(u *string) *string {
	if u == nil {
		return nil
	}
	n := NormalizeAttachmentURL(*u)
	return &n
}

func NewUser(u *database.User) *User {
	if u == nil {
		return nil
	}
	return &User{
		Id:              u.Id,
		Name:            u.Name,
		Email:           u.EmailAddress,
		ProfileImageUrl: u.ProfileImageUrl,
	}
}

func NewPoll(p database.Poll) *Poll {
	options := make([]PollOption, 0, len(p.Options))
	for _, o := range p.Options {
		voters := o.VoterIds
		if voters == nil {
			voters = []int{}
		}
		options = append(options, PollOption{Id: o.Id, Text: o.Text, VoterIds: voters})
	}

	return &Poll{
		Id:                     p.Id,
		Question:               p.Question,
		AllowMultipleSelection: p.AllowMultipleSelection,
		IsAnonymous:            p.IsAnonymous,
		CreatedBy:              p.CreatedBy,
		IsClosed:               p.IsClosed,
		Options:                options,
	}
}

func NewMessage(m database.Message) Message {
	attachments := make([]Attachment, 0, len(m.Attachments))
	for _, a := range m.Attachments {
		attachments = append(attachments, Attachment{
			Id:           a.Id,
			FileName:     a.FileName,
			OriginalName: a.OriginalName,
			MimeType:     a.MimeType,
			Type:         a.Type,
			Url:          NormalizeAttachmentURL(a.Url),
		})
	}

	mentions := m.Mentions
	if mentions == nil {
		mentions = []int{}
	}

	out := Message{
		Id:             m.Id,
		Content:        m.Content,
		ChannelId:      m.ChannelId,
		UserId:         m.UserId,
		CompanyId:      m.CompanyId,
		ReplyToId:      m.ReplyToId,
		ThreadParentId: m.ThreadParentId,
		AttachmentUrl:  normalizeURLPtr(m.AttachmentUrl),
		AttachmentType: m.AttachmentType,
		AttachmentName: m.AttachmentName,
		Attachments:    attachments,
		Mentions:       mentions,
		EditedAt:       m.EditedAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		User:           NewUser(m.User),
		TopicId:        m.TopicId,
		IsUrgent:       m.IsUrgent,
	}

	if m.Channel != nil {
		out.Channel = &ChannelRef{Id: m.Channel.Id, Name: m.Channel.Name}
	}
	if m.Topic != nil {
		out.Topic = &Topic{
			Id:        m.Topic.Id,
			ChannelId: m.Topic.ChannelId,
			Name:      m.Topic.Name,
			Color:     m.Topic.Color,
		}
	}
	if m.Poll != nil {
		out.Poll = NewPoll(*m.Poll)
	}

	return out
}

func NewDirectMessage(dm database.DirectMessage) DirectMessage {
	out := DirectMessage{
		Id:             dm.Id,
		CompanyId:      dm.CompanyId,
		Content:        dm.Content,
		FromUserId:     dm.FromUserId,
		ToUserId:       dm.ToUserId,
		ReplyToId:      dm.ReplyToId,
		AttachmentUrl:  normalizeURLPtr(dm.AttachmentUrl),
		AttachmentType: dm.AttachmentType,
		AttachmentName: dm.AttachmentName,
		IsRead:         dm.IsRead,
		IsUrgent:       dm.IsUrgent,
		CreatedAt:      dm.CreatedAt,
		UpdatedAt:      dm.UpdatedAt,
		FromUser:       NewUser(dm.FromUser),
		ToUser:         NewUser(dm.ToUser),
	}

	if dm.ReplyTo != nil {
		reply := NewDirectMessage(*dm.ReplyTo)
		out.ReplyTo = &reply
	}

	return out
}
