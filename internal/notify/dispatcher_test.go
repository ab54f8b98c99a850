package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/chat-relay/internal/auth"
	"github.com/npezzotti/chat-relay/internal/broadcast"
	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/events"
	"github.com/npezzotti/chat-relay/internal/notifications"
	"github.com/npezzotti/chat-relay/internal/presence"
	"github.com/npezzotti/chat-relay/internal/push"
	"github.com/npezzotti/chat-relay/internal/stats"
	"github.com/npezzotti/chat-relay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

var _ broadcast.Dispatcher = (*Dispatcher)(nil)

type fakeTokens struct {
	mu      sync.Mutex
	tokens  map[int][]string
	deleted []string
}

func (f *fakeTokens) ListPushTokens(_ context.Context, userId int) ([]database.PushToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []database.PushToken
	for _, tok := range f.tokens[userId] {
		out = append(out, database.PushToken{UserId: userId, Token: tok})
	}
	return out, nil
}

func (f *fakeTokens) DeletePushToken(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, token)
	return nil
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []push.Message
	// fail returns the error for the nth attempt on a token, nil to succeed.
	fail     func(token string, attempt int) error
	attempts map[string]int
}

func (f *fakeTransport) Send(_ context.Context, msg push.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	f.attempts[msg.Token]++
	if f.fail != nil {
		if err := f.fail(msg.Token, f.attempts[msg.Token]); err != nil {
			return "", err
		}
	}
	f.sent = append(f.sent, msg)
	return "msg-" + msg.Token, nil
}

type fixture struct {
	reg       *presence.Registry
	cards     *notifications.MemoryLog
	tokens    *fakeTokens
	transport *fakeTransport
	mu        sync.Mutex
	delays    []time.Duration
	d         *Dispatcher
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		reg:       presence.NewRegistry(),
		cards:     notifications.NewMemoryLog(),
		tokens:    &fakeTokens{tokens: map[int][]string{}},
		transport: &fakeTransport{},
	}

	su := &stats.MockStatsUpdater{}
	su.On("Incr", mock.Anything).Maybe()

	opts = append([]Option{WithStats(su)}, opts...)
	f.d = NewDispatcher(testutil.TestLogger(t), f.reg, f.cards, f.tokens, f.transport, opts...)
	f.d.sleep = func(_ context.Context, d time.Duration) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.delays = append(f.delays, d)
		return nil
	}
	return f
}

func channelMessage(id int, content string) events.MessageSent {
	return events.MessageSent{
		Message: database.Message{
			Id:        id,
			ChannelId: 42,
			UserId:    3,
			Content:   content,
			User:      &database.User{Id: 3, Name: "Ana"},
			Channel:   &database.Channel{Id: 42, Name: "general"},
		},
		MemberIds: []int{3, 7},
	}
}

func TestDispatch_OfflineChannelMember(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tokens.tokens[7] = []string{"tok-7"}

	f.d.Dispatch(ctx, channelMessage(1, "hello"))

	cards, err := f.cards.ListUnreadNotifications(ctx, 7)
	assert.NoError(t, err)
	assert.Len(t, cards, 1)
	assert.Equal(t, 7, cards[0].RecipientUserId)
	assert.Equal(t, notifications.GroupKey("channel:42"), cards[0].GroupKey)
	assert.Equal(t, 1, cards[0].UnreadCount)
	assert.Equal(t, "hello", cards[0].LastContent)

	assert.Len(t, f.transport.sent, 1)
	msg := f.transport.sent[0]
	assert.Equal(t, "tok-7", msg.Token)
	assert.Equal(t, "channel_42", msg.Tag)
	assert.Equal(t, "Ana in #general", msg.Title)
	assert.Equal(t, "hello", msg.Body)
	assert.Equal(t, map[string]string{
		"type":             "channel",
		"card_id":          cards[0].Id,
		"notification_tag": "channel_42",
		"channel_id":       "42",
		"message_id":       "1",
		"sender_name":      "Ana",
		"unread_count":     "1",
		"is_urgent":        "false",
		"click_action":     push.ClickAction,
	}, msg.Data)

	senderCards, _ := f.cards.ListUnreadNotifications(ctx, 3)
	assert.Empty(t, senderCards, "expected the sender not to be notified")
}

func TestDispatch_MergesIntoOpenCard(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tokens.tokens[7] = []string{"tok-7"}

	f.d.Dispatch(ctx, channelMessage(1, "hello"))
	f.d.Dispatch(ctx, channelMessage(2, "world"))

	cards, err := f.cards.ListUnreadNotifications(ctx, 7)
	assert.NoError(t, err)
	assert.Len(t, cards, 1, "expected one card per conversation")
	assert.Equal(t, 2, cards[0].UnreadCount)
	assert.Equal(t, "world", cards[0].LastContent)
	assert.Equal(t, 2, cards[0].LastMessageId)

	assert.Len(t, f.transport.sent, 2)
	assert.Equal(t, f.transport.sent[0].Data["card_id"], f.transport.sent[1].Data["card_id"])
	assert.Equal(t, "2", f.transport.sent[1].Data["unread_count"])
	assert.Equal(t, 2, f.transport.sent[1].Badge)
}

func TestDispatch_SkipsOnlineUsers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tokens.tokens[7] = []string{"tok-7"}
	assert.NoError(t, f.reg.Connect("conn-7", auth.Principal{UserId: 7}))

	f.d.Dispatch(ctx, channelMessage(1, "hello"))

	cards, _ := f.cards.ListUnreadNotifications(ctx, 7)
	assert.Empty(t, cards)
	assert.Empty(t, f.transport.sent)
}

func TestDispatch_InvalidTokenRemoved(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tokens.tokens[7] = []string{"dead", "live"}
	f.transport.fail = func(token string, _ int) error {
		if token == "dead" {
			return push.ErrInvalidToken
		}
		return nil
	}

	f.d.Dispatch(ctx, channelMessage(1, "hello"))

	assert.Equal(t, []string{"dead"}, f.tokens.deleted)
	assert.Equal(t, 1, f.transport.attempts["dead"], "expected no retry for an invalid token")
	assert.Len(t, f.transport.sent, 1)
	assert.Equal(t, "live", f.transport.sent[0].Token)

	cards, _ := f.cards.ListUnreadNotifications(ctx, 7)
	assert.Len(t, cards, 1, "expected the card to exist despite the failed push")
}

func TestDispatch_RetriesTransient(t *testing.T) {
	tcases := []struct {
		name         string
		failures     int
		wantAttempts int
		wantSent     int
		wantDelays   []time.Duration
	}{
		{name: "recovers", failures: 2, wantAttempts: 3, wantSent: 1, wantDelays: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}},
		{name: "exhausted", failures: 5, wantAttempts: 3, wantSent: 0, wantDelays: []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}},
		{name: "first try", failures: 0, wantAttempts: 1, wantSent: 1},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, WithOptions(Options{MaxAttempts: 3, RetryDelay: 100 * time.Millisecond}))
			f.tokens.tokens[7] = []string{"tok"}
			f.transport.fail = func(_ string, attempt int) error {
				if attempt <= tc.failures {
					return push.ErrTransient
				}
				return nil
			}

			f.d.Dispatch(context.Background(), channelMessage(1, "hello"))

			assert.Equal(t, tc.wantAttempts, f.transport.attempts["tok"])
			assert.Len(t, f.transport.sent, tc.wantSent)
			assert.Equal(t, tc.wantDelays, f.delays)
			assert.Empty(t, f.tokens.deleted)
		})
	}
}

func TestDispatch_RejectedNotRetried(t *testing.T) {
	f := newFixture(t)
	f.tokens.tokens[7] = []string{"tok"}
	f.transport.fail = func(string, int) error { return push.ErrRejected }

	f.d.Dispatch(context.Background(), channelMessage(1, "hello"))
	assert.Equal(t, 1, f.transport.attempts["tok"])
	assert.Empty(t, f.tokens.deleted)
}

func TestDispatch_DirectMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.tokens.tokens[3] = []string{"tok-3"}

	ev := events.DMSent{Message: database.DirectMessage{
		Id:         11,
		FromUserId: 7,
		ToUserId:   3,
		Content:    "ping",
		IsUrgent:   true,
		FromUser:   &database.User{Id: 7, Name: "Bo"},
	}}
	f.d.Dispatch(ctx, ev)

	cards, _ := f.cards.ListUnreadNotifications(ctx, 3)
	assert.Len(t, cards, 1)
	assert.Equal(t, notifications.GroupKey("dm:7"), cards[0].GroupKey)

	assert.Len(t, f.transport.sent, 1)
	msg := f.transport.sent[0]
	assert.Equal(t, "dm_7", msg.Tag)
	assert.Equal(t, "Bo", msg.Title)
	assert.True(t, msg.Urgent)
	assert.Equal(t, "7", msg.Data["sender_id"])
	assert.Equal(t, "direct_message", msg.Data["type"])
	assert.Equal(t, "true", msg.Data["is_urgent"])
	assert.NotContains(t, msg.Data, "channel_id")
}

func TestDispatch_IgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	f.tokens.tokens[7] = []string{"tok"}

	for _, ev := range []events.BroadcastEvent{
		events.MessageUpdated{Message: database.Message{Id: 1, ChannelId: 42}},
		events.MessageDeleted{MessageId: 1, ChannelId: 42},
		events.DMDeleted{MessageId: 1, FromUserId: 3, ToUserId: 7},
		events.DirectMessagesRead{UserId: 7, FromUserId: 3},
		events.PollUpdated{Poll: database.Poll{Id: 1}, ChannelId: 42},
	} {
		f.d.Dispatch(context.Background(), ev)
	}

	cards, _ := f.cards.ListUnreadNotifications(context.Background(), 7)
	assert.Empty(t, cards)
	assert.Empty(t, f.transport.sent)
}

// stallingTransport blocks sends to the stalled token until their context
// ends and delivers everything else.
type stallingTransport struct {
	stalled string
	mu      sync.Mutex
	sent    []push.Message
}

func (s *stallingTransport) Send(ctx context.Context, msg push.Message) (string, error) {
	if msg.Token == s.stalled {
		<-ctx.Done()
		return "", errors.Join(push.ErrTransient, ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return "msg-" + msg.Token, nil
}

func (s *stallingTransport) sentTo(token string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, m := range s.sent {
		if m.Token == token {
			n++
		}
	}
	return n
}

func TestDispatch_StalledRecipientDoesNotBlockOthers(t *testing.T) {
	tcases := []struct {
		name        string
		concurrency int
	}{
		{name: "serial", concurrency: 1},
		{name: "parallel", concurrency: DefaultConcurrency},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			cards := notifications.NewMemoryLog()
			tokens := &fakeTokens{tokens: map[int][]string{7: {"stuck"}, 8: {"tok-8"}}}
			transport := &stallingTransport{stalled: "stuck"}

			d := NewDispatcher(testutil.TestLogger(t), presence.NewRegistry(), cards, tokens, transport, WithOptions(Options{
				MaxAttempts:      3,
				RetryDelay:       time.Millisecond,
				AttemptTimeout:   40 * time.Millisecond,
				RecipientTimeout: 100 * time.Millisecond,
				Concurrency:      tc.concurrency,
			}))

			ev := channelMessage(1, "hello")
			ev.MemberIds = []int{3, 7, 8}
			d.Dispatch(ctx, ev)

			assert.Equal(t, 1, transport.sentTo("tok-8"), "expected the healthy recipient to be pushed")
			assert.Equal(t, 0, transport.sentTo("stuck"))

			for _, userId := range []int{7, 8} {
				got, err := cards.ListUnreadNotifications(ctx, userId)
				assert.NoError(t, err)
				assert.Len(t, got, 1, "expected a card for user %d", userId)
			}
			assert.Empty(t, tokens.deleted, "expected a timed out token to be kept")
		})
	}
}

type failingLog struct {
	notifications.Log
}

func (failingLog) UpsertNotification(context.Context, int, notifications.GroupKey, notifications.Fields) (notifications.Card, error) {
	return notifications.Card{}, errors.New("db down")
}

func TestDispatch_LogFailureIsolated(t *testing.T) {
	tokens := &fakeTokens{tokens: map[int][]string{7: {"tok"}}}
	transport := &fakeTransport{}
	d := NewDispatcher(testutil.TestLogger(t), presence.NewRegistry(), failingLog{}, tokens, transport)

	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), channelMessage(1, "hello"))
	})
	assert.Empty(t, transport.sent, "expected no push without a card")
}

func TestGo_Wait(t *testing.T) {
	f := newFixture(t)
	f.tokens.tokens[7] = []string{"tok-7"}

	f.d.Go(channelMessage(1, "hello"))
	f.d.Go(events.MessageDeleted{MessageId: 1, ChannelId: 42})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, f.d.Wait(ctx))

	f.transport.mu.Lock()
	defer f.transport.mu.Unlock()
	assert.Len(t, f.transport.sent, 1)
}

func Test_messageBody(t *testing.T) {
	long := strings.Repeat("é", 120)

	tcases := []struct {
		name    string
		content string
		att     *attachment
		want    string
	}{
		{name: "short", content: "hello", want: "hello"},
		{name: "truncated", content: long, want: strings.Repeat("é", 100) + "..."},
		{name: "exact length", content: strings.Repeat("a", 100), want: strings.Repeat("a", 100)},
		{name: "photo", att: &attachment{kind: "image"}, want: "📷 Photo"},
		{name: "mime video", att: &attachment{kind: "video/mp4"}, want: "🎥 Video"},
		{name: "audio", att: &attachment{kind: "audio"}, want: "🎵 Audio"},
		{name: "named file", att: &attachment{kind: "document", name: "report.pdf"}, want: "📎 report.pdf"},
		{name: "unnamed file", att: &attachment{}, want: "📎 File"},
		{name: "text wins over attachment", content: "look", att: &attachment{kind: "image"}, want: "look"},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, messageBody(tc.content, tc.att, DefaultMaxBodyLength))
		})
	}
}

func Test_channelAttachment(t *testing.T) {
	kind := "image"
	assert.Nil(t, channelAttachment(database.Message{}))
	assert.Equal(t, &attachment{kind: "image"}, channelAttachment(database.Message{AttachmentType: &kind}))
	assert.Equal(t, &attachment{kind: "video", name: "clip.mp4"}, channelAttachment(database.Message{
		Attachments: []database.Attachment{{Type: "video", OriginalName: "clip.mp4"}},
	}))
}
