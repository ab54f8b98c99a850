// Package broadcast fans persisted domain events out to socket rooms and
// hands them to the offline notification dispatcher.
package broadcast

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/npezzotti/chat-relay/internal/events"
	"github.com/npezzotti/chat-relay/internal/pubsub"
	"github.com/npezzotti/chat-relay/internal/rooms"
	"github.com/npezzotti/chat-relay/internal/stats"
)

const defaultMirrorTimeout = 5 * time.Second

type Emitter interface {
	Emit(room rooms.RoomId, event string, payload any) int
}

// Dispatcher receives every event after it has been emitted. Go must not
// block the caller.
type Dispatcher interface {
	Go(ev events.BroadcastEvent)
}

type NopDispatcher struct{}

func (NopDispatcher) Go(events.BroadcastEvent) {}

type Record struct {
	Event   string         `json:"event"`
	Rooms   []rooms.RoomId `json:"rooms"`
	Sender  int            `json:"sender_id"`
	Payload any            `json:"payload"`
}

type Broadcaster struct {
	log           *log.Logger
	emitter       Emitter
	dispatcher    Dispatcher
	mirror        pubsub.Publisher
	mirrorTimeout time.Duration
	stats         stats.StatsProvider
	wg            sync.WaitGroup
}

type Option func(*Broadcaster)

func WithDispatcher(d Dispatcher) Option {
	return func(b *Broadcaster) { b.dispatcher = d }
}

func WithMirror(p pubsub.Publisher, timeout time.Duration) Option {
	return func(b *Broadcaster) {
		b.mirror = p
		if timeout > 0 {
			b.mirrorTimeout = timeout
		}
	}
}

func WithStats(su stats.StatsProvider) Option {
	return func(b *Broadcaster) { b.stats = su }
}

func New(logger *log.Logger, emitter Emitter, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		log:           logger,
		emitter:       emitter,
		dispatcher:    NopDispatcher{},
		mirror:        pubsub.NopPublisher{},
		mirrorTimeout: defaultMirrorTimeout,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Emit sends ev to each of its rooms, then to the dispatcher and the
// mirror. The dispatcher sees every event whether or not any socket was
// reached. Emit never fails the caller.
func (b *Broadcaster) Emit(ev events.BroadcastEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Printf("broadcast %s: recovered: %v", ev.Name(), r)
		}
	}()

	targets := ev.Rooms()
	for _, room := range targets {
		n := b.emitter.Emit(room, ev.Name(), ev.Payload(room))
		if b.stats != nil {
			b.stats.Incr(stats.NumEventsBroadcast)
		}
		b.log.Printf("broadcast %s to %q reached %d connections", ev.Name(), room, n)
	}

	b.dispatcher.Go(ev)

	var payload any
	if len(targets) > 0 {
		payload = ev.Payload(targets[0])
	}
	b.publish(pubsub.EventKey(ev.Name()), pubsub.NewEnvelope(ev.Name(), Record{
		Event:   ev.Name(),
		Rooms:   targets,
		Sender:  ev.Sender(),
		Payload: payload,
	}))
}

func (b *Broadcaster) publish(key string, env pubsub.Envelope) {
	if _, ok := b.mirror.(pubsub.NopPublisher); ok {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), b.mirrorTimeout)
		defer cancel()

		if err := b.mirror.Publish(ctx, key, env); err != nil {
			b.log.Printf("mirror %s: %v", key, err)
		}
	}()
}

func (b *Broadcaster) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
