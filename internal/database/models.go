package database

import "time"

type User struct {
	Id              int
	CompanyId       int
	Name            string
	EmailAddress    string
	PasswordHash    string
	ProfileImageUrl *string
	Role            string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// PersonalAccessToken is an opaque API token. Token holds the hex encoded
// SHA-256 digest of the secret handed to the client.
type PersonalAccessToken struct {
	Id          int
	TokenableId int
	Token       string
	ExpiresAt   *time.Time
}

type Channel struct {
	Id        int
	CompanyId int
	Name      string
	IsPrivate bool
	CreatedBy int
	MemberIds []int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Topic struct {
	Id        int
	ChannelId int
	Name      string
	Color     *string
}

type Attachment struct {
	Id           int
	MessageId    int
	FileName     string
	OriginalName string
	MimeType     string
	Type         string
	Url          string
}

type PollOption struct {
	Id       int
	Text     string
	VoterIds []int
}

type Poll struct {
	Id                     int
	MessageId              *int
	ChannelId              int
	CompanyId              int
	Question               string
	AllowMultipleSelection bool
	IsAnonymous            bool
	IsClosed               bool
	CreatedBy              int
	Options                []PollOption
}

type Message struct {
	Id             int
	CompanyId      int
	ChannelId      int
	UserId         int
	Content        string
	ReplyToId      *int
	ThreadParentId *int
	TopicId        *int
	AttachmentUrl  *string
	AttachmentType *string
	AttachmentName *string
	Mentions       []int
	IsUrgent       bool
	EditedAt       *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time

	User        *User
	Channel     *Channel
	Topic       *Topic
	Poll        *Poll
	Attachments []Attachment
}

type DirectMessage struct {
	Id             int
	CompanyId      int
	FromUserId     int
	ToUserId       int
	Content        string
	LocalId        *string
	ReplyToId      *int
	AttachmentUrl  *string
	AttachmentType *string
	AttachmentName *string
	IsRead         bool
	IsUrgent       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time

	FromUser *User
	ToUser   *User
	ReplyTo  *DirectMessage
}

type PushToken struct {
	Id         int
	UserId     int
	Token      string
	DeviceType string
	DeviceId   *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type CreateMessageParams struct {
	CompanyId      int
	ChannelId      int
	UserId         int
	Content        string
	ReplyToId      *int
	ThreadParentId *int
	TopicId        *int
	AttachmentUrl  *string
	AttachmentType *string
	AttachmentName *string
	Mentions       []int
	IsUrgent       bool
}

type UpdateMessageParams struct {
	Id       int
	Content  *string
	Mentions []int
}

type CreateDirectMessageParams struct {
	CompanyId      int
	FromUserId     int
	ToUserId       int
	Content        string
	LocalId        *string
	ReplyToId      *int
	AttachmentUrl  *string
	AttachmentType *string
	AttachmentName *string
	IsUrgent       bool
}

type UpsertPushTokenParams struct {
	UserId     int
	Token      string
	DeviceType string
	DeviceId   *string
}
