// Package pubsub mirrors relay activity onto an AMQP topic exchange for
// downstream consumers.
package pubsub

import (
	"time"

	"github.com/google/uuid"
)

const (
	Producer = "chat-relay"

	eventKeyPrefix = "relay.event."
	// CardKey routes notification card records.
	CardKey = "relay.notification.card"
)

type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

type Meta struct {
	ID            string    `json:"id"`
	CorrelationID *string   `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer"`
	Time          time.Time `json:"time"`
	// Type is the record name, e.g. message.sent.
	Type string `json:"type"`
}

func NewEnvelope(typ string, data any) Envelope {
	return Envelope{
		Meta: Meta{
			ID:       uuid.NewString(),
			Producer: Producer,
			Time:     time.Now().UTC(),
			Type:     typ,
		},
		Data: data,
	}
}

// EventKey is the routing key for a broadcast event name.
func EventKey(event string) string {
	return eventKeyPrefix + event
}
