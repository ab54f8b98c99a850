// Package notify records notification cards for recipients without a live
// connection and delivers them to their devices.
package notify

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/events"
	"github.com/npezzotti/chat-relay/internal/notifications"
	"github.com/npezzotti/chat-relay/internal/pubsub"
	"github.com/npezzotti/chat-relay/internal/push"
	"github.com/npezzotti/chat-relay/internal/stats"
)

const (
	DefaultMaxAttempts      = 3
	DefaultRetryDelay       = 500 * time.Millisecond
	DefaultAttemptTimeout   = 10 * time.Second
	DefaultRecipientTimeout = 2 * time.Minute
	DefaultMaxBodyLength    = 100
	DefaultConcurrency      = 16

	cardRecordType = "notification.card"
)

type Presence interface {
	OnlineUserIds() map[int]struct{}
}

type TokenStore interface {
	ListPushTokens(ctx context.Context, userId int) ([]database.PushToken, error)
	DeletePushToken(ctx context.Context, token string) error
}

type Options struct {
	MaxAttempts int
	// RetryDelay is the wait before the second attempt. It doubles for
	// each attempt after that.
	RetryDelay     time.Duration
	AttemptTimeout time.Duration
	// RecipientTimeout bounds the card upsert and every push for a single
	// recipient.
	RecipientTimeout time.Duration
	MaxBodyLength    int
	// Concurrency caps the recipients being notified at once across all
	// events.
	Concurrency int
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts:      DefaultMaxAttempts,
		RetryDelay:       DefaultRetryDelay,
		AttemptTimeout:   DefaultAttemptTimeout,
		RecipientTimeout: DefaultRecipientTimeout,
		MaxBodyLength:    DefaultMaxBodyLength,
		Concurrency:      DefaultConcurrency,
	}
}

type Dispatcher struct {
	log       *log.Logger
	presence  Presence
	cards     notifications.Log
	tokens    TokenStore
	transport push.Transport
	stats     stats.StatsProvider
	mirror    pubsub.Publisher
	opts      Options
	sem       chan struct{}
	wg        sync.WaitGroup
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*Dispatcher)

func WithOptions(o Options) Option {
	return func(d *Dispatcher) {
		def := DefaultOptions()
		if o.MaxAttempts < 1 {
			o.MaxAttempts = def.MaxAttempts
		}
		if o.RetryDelay < 0 {
			o.RetryDelay = 0
		}
		if o.AttemptTimeout <= 0 {
			o.AttemptTimeout = def.AttemptTimeout
		}
		if o.RecipientTimeout <= 0 {
			o.RecipientTimeout = def.RecipientTimeout
		}
		if o.MaxBodyLength <= 0 {
			o.MaxBodyLength = def.MaxBodyLength
		}
		if o.Concurrency <= 0 {
			o.Concurrency = def.Concurrency
		}
		d.opts = o
	}
}

func WithStats(su stats.StatsProvider) Option {
	return func(d *Dispatcher) { d.stats = su }
}

func WithMirror(p pubsub.Publisher) Option {
	return func(d *Dispatcher) { d.mirror = p }
}

func NewDispatcher(logger *log.Logger, presence Presence, cards notifications.Log, tokens TokenStore, transport push.Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		log:       logger,
		presence:  presence,
		cards:     cards,
		tokens:    tokens,
		transport: transport,
		mirror:    pubsub.NopPublisher{},
		opts:      DefaultOptions(),
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.sem = make(chan struct{}, d.opts.Concurrency)
	return d
}

// Go dispatches ev in the background, detached from the caller's context.
func (d *Dispatcher) Go(ev events.BroadcastEvent) {
	if _, ok := newNotice(ev, d.opts.MaxBodyLength); !ok {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Dispatch(context.Background(), ev)
	}()
}

func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispatch returns once every offline recipient of ev has been notified.
func (d *Dispatcher) Dispatch(ctx context.Context, ev events.BroadcastEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Printf("dispatch %s: recovered: %v", ev.Name(), r)
		}
	}()

	n, ok := newNotice(ev, d.opts.MaxBodyLength)
	if !ok {
		return
	}

	online := d.presence.OnlineUserIds()
	seen := make(map[int]struct{})

	var wg sync.WaitGroup
	defer wg.Wait()

	for _, userId := range ev.Recipients() {
		if userId <= 0 || userId == ev.Sender() {
			continue
		}
		if _, dup := seen[userId]; dup {
			continue
		}
		seen[userId] = struct{}{}

		if _, isOnline := online[userId]; isOnline {
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case d.sem <- struct{}{}:
			case <-ctx.Done():
				d.log.Printf("notify user %d: %v", userId, ctx.Err())
				return
			}
			defer func() { <-d.sem }()

			rctx, cancel := context.WithTimeout(ctx, d.opts.RecipientTimeout)
			defer cancel()

			d.notifyUser(rctx, userId, n)
		}()
	}
}

func (d *Dispatcher) notifyUser(ctx context.Context, userId int, n notice) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Printf("notify user %d: recovered: %v", userId, r)
		}
	}()

	card, err := d.cards.UpsertNotification(ctx, userId, n.group, n.fields())
	if err != nil {
		d.log.Printf("upsert notification for user %d: %v", userId, err)
		return
	}
	d.incr(stats.NumCardsUpserted)

	if err := d.mirror.Publish(ctx, pubsub.CardKey, pubsub.NewEnvelope(cardRecordType, card)); err != nil {
		d.log.Printf("mirror card %s: %v", card.Id, err)
	}

	tokens, err := d.tokens.ListPushTokens(ctx, userId)
	if err != nil {
		d.log.Printf("list push tokens for user %d: %v", userId, err)
		return
	}

	for _, t := range tokens {
		d.deliver(ctx, push.Message{
			Token:  t.Token,
			Title:  n.title,
			Body:   n.body,
			Data:   n.pushData(card, push.ClickAction),
			Tag:    n.group.Tag(),
			Urgent: n.urgent,
			Badge:  card.UnreadCount,
		})
	}
}

// deliver sends msg, retrying transient failures with a doubling delay.
// An invalid token is removed and never retried.
func (d *Dispatcher) deliver(ctx context.Context, msg push.Message) {
	for attempt := 1; ; attempt++ {
		actx, cancel := context.WithTimeout(ctx, d.opts.AttemptTimeout)
		id, err := d.transport.Send(actx, msg)
		cancel()

		if err == nil {
			d.incr(stats.NumPushSent)
			d.log.Printf("push %s sent with tag %s", id, msg.Tag)
			return
		}

		switch {
		case errors.Is(err, push.ErrInvalidToken):
			if err := d.tokens.DeletePushToken(ctx, msg.Token); err != nil {
				d.log.Printf("remove push token: %v", err)
			} else {
				d.incr(stats.NumTokensRemoved)
			}
			return
		case errors.Is(err, push.ErrRejected):
			d.incr(stats.NumPushFailed)
			d.log.Printf("push rejected: %v", err)
			return
		}

		if attempt >= d.opts.MaxAttempts {
			d.incr(stats.NumPushFailed)
			d.log.Printf("push dropped after %d attempts: %v", attempt, err)
			return
		}

		delay := d.opts.RetryDelay << (attempt - 1)
		if err := d.sleep(ctx, delay); err != nil {
			d.incr(stats.NumPushFailed)
			d.log.Printf("push abandoned: %v", err)
			return
		}
	}
}

func (d *Dispatcher) incr(name string) {
	if d.stats != nil {
		d.stats.Incr(name)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
