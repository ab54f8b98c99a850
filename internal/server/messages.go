package server

import (
	"encoding/json"
	"time"

	"github.com/npezzotti/chat-relay/internal/rooms"
)

const (
	EventSubscribeChannel   = "subscribe:channel"
	EventUnsubscribeChannel = "unsubscribe:channel"
	EventSubscribeDM        = "subscribe:dm"
	EventUnsubscribeDM      = "unsubscribe:dm"
	EventAck                = "ack"
)

// ClientMessage is a frame sent by a client.
type ClientMessage struct {
	Id    int             `json:"id,omitempty"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type ChannelRequest struct {
	ChannelId int `json:"channelId"`
}

type DMRequest struct {
	OtherUserId int `json:"otherUserId"`
}

// ServerMessage is a frame sent to a client, either an ack for a
// ClientMessage or an event emitted to a room.
type ServerMessage struct {
	Id        int             `json:"id,omitempty"`
	Event     string          `json:"event"`
	Room      rooms.RoomId    `json:"room,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

type AckData struct {
	Success bool         `json:"success,omitempty"`
	Channel rooms.RoomId `json:"channel,omitempty"`
	Room    rooms.RoomId `json:"room,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func newAck(id int, data AckData) *ServerMessage {
	raw, _ := json.Marshal(data)
	return &ServerMessage{
		Id:        id,
		Event:     EventAck,
		Data:      raw,
		Timestamp: Now(),
	}
}

func AckOK(id int) *ServerMessage {
	return newAck(id, AckData{Success: true})
}

func AckChannel(id int, room rooms.RoomId) *ServerMessage {
	return newAck(id, AckData{Success: true, Channel: room})
}

func AckRoom(id int, room rooms.RoomId) *ServerMessage {
	return newAck(id, AckData{Success: true, Room: room})
}

func AckError(id int, reason string) *ServerMessage {
	return newAck(id, AckData{Error: reason})
}

func ErrInvalidMessage(id int) *ServerMessage {
	return AckError(id, "invalid message format")
}

func ErrUnknownEvent(id int) *ServerMessage {
	return AckError(id, "unknown event")
}

func ErrInternalError(id int) *ServerMessage {
	return AckError(id, "internal server error")
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}

func serializeMessage(msg *ServerMessage) ([]byte, error) {
	return json.Marshal(msg)
}
