package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/rooms"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func toMap(t *testing.T, v any) map[string]any {
	t.Helper()
	b, err := json.Marshal(v)
	assert.NoError(t, err)

	var m map[string]any
	assert.NoError(t, json.Unmarshal(b, &m))
	return m
}

func TestMessageSent(t *testing.T) {
	ev := MessageSent{
		Message:   database.Message{Id: 1, ChannelId: 42, UserId: 3, Content: "hello"},
		MemberIds: []int{3, 7},
	}

	assert.Equal(t, EventMessageSent, ev.Name())
	assert.Equal(t, []rooms.RoomId{"private-channel.42"}, ev.Rooms())
	assert.Equal(t, []int{3, 7}, ev.Recipients())
	assert.Equal(t, 3, ev.Sender())

	msg := toMap(t, ev.Payload(rooms.ChannelRoom(42)))["message"].(map[string]any)
	assert.Equal(t, "hello", msg["content"])

	// optional relations keep their keys
	for _, key := range []string{"poll", "topic", "user", "channel", "reply_to_id", "attachment_url", "edited_at"} {
		v, ok := msg[key]
		assert.True(t, ok, "expected key %q to be present", key)
		assert.Nil(t, v, "expected key %q to be null", key)
	}
	assert.Equal(t, []any{}, msg["attachments"])
	assert.Equal(t, []any{}, msg["mentions"])
}

func TestMessageSent_RecipientsFromChannel(t *testing.T) {
	ev := MessageSent{Message: database.Message{
		ChannelId: 42,
		Channel:   &database.Channel{Id: 42, MemberIds: []int{1, 2}},
	}}
	assert.Equal(t, []int{1, 2}, ev.Recipients())
}

func TestNewMessage_Relations(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m := database.Message{
		Id:            9,
		ChannelId:     42,
		UserId:        3,
		AttachmentUrl: strPtr("https://cdn.example.com/storage/uploads/a.png"),
		CreatedAt:     created,
		User:          &database.User{Id: 3, Name: "alice", EmailAddress: "a@example.com"},
		Channel:       &database.Channel{Id: 42, Name: "general"},
		Topic:         &database.Topic{Id: 5, ChannelId: 42, Name: "ops"},
		Poll: &database.Poll{Id: 2, Question: "lunch?", Options: []database.PollOption{
			{Id: 1, Text: "yes", VoterIds: []int{3}},
			{Id: 2, Text: "no"},
		}},
		Attachments: []database.Attachment{{Id: 1, Url: "/var/www/uploads/files/b.pdf"}},
	}

	out := NewMessage(m)
	assert.Equal(t, "uploads/a.png", *out.AttachmentUrl)
	assert.Equal(t, "uploads/files/b.pdf", out.Attachments[0].Url)
	assert.Equal(t, &User{Id: 3, Name: "alice", Email: "a@example.com"}, out.User)
	assert.Equal(t, &ChannelRef{Id: 42, Name: "general"}, out.Channel)
	assert.Equal(t, "ops", out.Topic.Name)
	assert.Equal(t, []int{}, out.Poll.Options[1].VoterIds)
	assert.Equal(t, created, out.CreatedAt)
}

func TestNormalizeAttachmentURL(t *testing.T) {
	tcases := []struct {
		in   string
		want string
	}{
		{in: "uploads/a.png", want: "uploads/a.png"},
		{in: "https://host/uploads/x/uploads/a.png", want: "uploads/a.png"},
		{in: "https://host/files/a.png", want: "https://host/files/a.png"},
		{in: "", want: ""},
	}

	for _, tc := range tcases {
		assert.Equal(t, tc.want, NormalizeAttachmentURL(tc.in))
	}
}

func TestDMSent(t *testing.T) {
	ev := DMSent{Message: database.DirectMessage{Id: 4, FromUserId: 7, ToUserId: 3, Content: "hi"}}

	assert.Equal(t, EventDMSent, ev.Name())
	assert.Equal(t, []rooms.RoomId{"private-dm.3_7", "private-user-3"}, ev.Rooms())
	assert.Equal(t, []int{3}, ev.Recipients())
	assert.Equal(t, 7, ev.Sender())

	inView := toMap(t, ev.Payload(rooms.DMRoom(3, 7)))
	_, tagged := inView["is_global_event"]
	assert.False(t, tagged, "expected conversation payload to be untagged")

	global := toMap(t, ev.Payload(rooms.UserRoom(3)))
	assert.Equal(t, true, global["is_global_event"])

	msg := global["message"].(map[string]any)
	assert.Nil(t, msg["reply_to"])
	assert.Nil(t, msg["from_user"])
}

func TestDeleteEventsCarryIdsOnly(t *testing.T) {
	del := MessageDeleted{MessageId: 1, ChannelId: 42, UserId: 3}
	assert.Equal(t, map[string]any{"message_id": float64(1), "channel_id": float64(42)}, toMap(t, del.Payload(rooms.ChannelRoom(42))))

	dmDel := DMDeleted{MessageId: 5, FromUserId: 7, ToUserId: 3}
	assert.Equal(t, []rooms.RoomId{"private-dm.3_7"}, dmDel.Rooms())
	assert.Equal(t, map[string]any{"message_id": float64(5)}, toMap(t, dmDel.Payload(rooms.DMRoom(3, 7))))
}

func TestDirectMessagesRead(t *testing.T) {
	ev := DirectMessagesRead{UserId: 3, FromUserId: 7}
	assert.Equal(t, EventDirectMessagesRead, ev.Name())
	assert.Equal(t, []rooms.RoomId{"private-dm.3_7"}, ev.Rooms())
	assert.Empty(t, ev.Recipients())
	assert.Equal(t, map[string]any{"user_id": float64(3), "from_user_id": float64(7)}, toMap(t, ev.Payload(ev.Rooms()[0])))
}

func TestPollUpdated(t *testing.T) {
	ev := PollUpdated{Poll: database.Poll{Id: 2, Question: "lunch?"}, ChannelId: 42}
	assert.Equal(t, []rooms.RoomId{"private-channel.42"}, ev.Rooms())

	poll := toMap(t, ev.Payload(ev.Rooms()[0]))["poll"].(map[string]any)
	assert.Equal(t, "lunch?", poll["question"])
	assert.Equal(t, []any{}, poll["options"])
}
