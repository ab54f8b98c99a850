// Package events defines the realtime events pushed to clients. Every kind
// is its own type with a fixed wire shape.
package events

import (
	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/rooms"
)

const (
	EventMessageSent        = "message.sent"
	EventMessageUpdated     = "message.updated"
	EventMessageDeleted     = "message.deleted"
	EventDMSent             = "dm.sent"
	EventDMDeleted          = "dm.deleted"
	EventDirectMessagesRead = "direct-message.read"
	EventPollUpdated        = "poll.updated"
)

type BroadcastEvent interface {
	Name() string
	Rooms() []rooms.RoomId
	// Recipients lists the users the event is meant for. Only events that
	// notify offline users return a non-empty list.
	Recipients() []int
	Sender() int
	Payload(room rooms.RoomId) any
}

type MessageSent struct {
	Message database.Message
	// MemberIds of the channel. Falls back to Message.Channel when empty.
	MemberIds []int
}

func (e MessageSent) Name() string { return EventMessageSent }

func (e MessageSent) Rooms() []rooms.RoomId {
	return []rooms.RoomId{rooms.ChannelRoom(e.Message.ChannelId)}
}

func (e MessageSent) Recipients() []int {
	if len(e.MemberIds) == 0 && e.Message.Channel != nil {
		return e.Message.Channel.MemberIds
	}
	return e.MemberIds
}

func (e MessageSent) Sender() int { return e.Message.UserId }

func (e MessageSent) Payload(rooms.RoomId) any {
	return messagePayload{Message: NewMessage(e.Message)}
}

type MessageUpdated struct {
	Message database.Message
}

func (e MessageUpdated) Name() string { return EventMessageUpdated }

func (e MessageUpdated) Rooms() []rooms.RoomId {
	return []rooms.RoomId{rooms.ChannelRoom(e.Message.ChannelId)}
}

func (e MessageUpdated) Recipients() []int { return nil }
func (e MessageUpdated) Sender() int       { return e.Message.UserId }

func (e MessageUpdated) Payload(rooms.RoomId) any {
	return messagePayload{Message: NewMessage(e.Message)}
}

type MessageDeleted struct {
	MessageId int
	ChannelId int
	UserId    int
}

func (e MessageDeleted) Name() string { return EventMessageDeleted }

func (e MessageDeleted) Rooms() []rooms.RoomId {
	return []rooms.RoomId{rooms.ChannelRoom(e.ChannelId)}
}

func (e MessageDeleted) Recipients() []int { return nil }
func (e MessageDeleted) Sender() int       { return e.UserId }

func (e MessageDeleted) Payload(rooms.RoomId) any {
	return messageDeletedPayload{MessageId: e.MessageId, ChannelId: e.ChannelId}
}

// DMSent goes to the conversation room and to the recipient's private feed.
type DMSent struct {
	Message database.DirectMessage
}

func (e DMSent) Name() string { return EventDMSent }

func (e DMSent) Rooms() []rooms.RoomId {
	return []rooms.RoomId{
		rooms.DMRoom(e.Message.FromUserId, e.Message.ToUserId),
		rooms.UserRoom(e.Message.ToUserId),
	}
}

func (e DMSent) Recipients() []int { return []int{e.Message.ToUserId} }
func (e DMSent) Sender() int       { return e.Message.FromUserId }

func (e DMSent) Payload(room rooms.RoomId) any {
	p := dmPayload{Message: NewDirectMessage(e.Message)}
	if room == rooms.UserRoom(e.Message.ToUserId) {
		p.IsGlobalEvent = true
	}
	return p
}

type DMDeleted struct {
	MessageId  int
	FromUserId int
	ToUserId   int
}

func (e DMDeleted) Name() string { return EventDMDeleted }

func (e DMDeleted) Rooms() []rooms.RoomId {
	return []rooms.RoomId{rooms.DMRoom(e.FromUserId, e.ToUserId)}
}

func (e DMDeleted) Recipients() []int { return nil }
func (e DMDeleted) Sender() int       { return e.FromUserId }

func (e DMDeleted) Payload(rooms.RoomId) any {
	return dmDeletedPayload{MessageId: e.MessageId}
}

// DirectMessagesRead reports that UserId has read everything FromUserId sent.
type DirectMessagesRead struct {
	UserId     int
	FromUserId int
}

func (e DirectMessagesRead) Name() string { return EventDirectMessagesRead }

func (e DirectMessagesRead) Rooms() []rooms.RoomId {
	return []rooms.RoomId{rooms.DMRoom(e.UserId, e.FromUserId)}
}

func (e DirectMessagesRead) Recipients() []int { return nil }
func (e DirectMessagesRead) Sender() int       { return e.UserId }

func (e DirectMessagesRead) Payload(rooms.RoomId) any {
	return readPayload{UserId: e.UserId, FromUserId: e.FromUserId}
}

type PollUpdated struct {
	Poll      database.Poll
	ChannelId int
	UserId    int
}

func (e PollUpdated) Name() string { return EventPollUpdated }

func (e PollUpdated) Rooms() []rooms.RoomId {
	return []rooms.RoomId{rooms.ChannelRoom(e.ChannelId)}
}

func (e PollUpdated) Recipients() []int { return nil }
func (e PollUpdated) Sender() int       { return e.UserId }

func (e PollUpdated) Payload(rooms.RoomId) any {
	return pollPayload{Poll: NewPoll(e.Poll)}
}
