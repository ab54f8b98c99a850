// Package push delivers notifications to mobile devices.
package push

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"
)

var (
	// ErrInvalidToken means the device token is permanently dead and should
	// be removed.
	ErrInvalidToken = errors.New("invalid push token")
	// ErrTransient is worth retrying.
	ErrTransient = errors.New("transient push failure")
	// ErrRejected is a permanent failure that is not the token's fault.
	ErrRejected = errors.New("push rejected")
)

const ClickAction = "FLUTTER_NOTIFICATION_CLICK"

type Message struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
	// Tag collapses notifications of the same conversation on the device.
	Tag    string
	Urgent bool
	Badge  int
}

type Transport interface {
	// Send returns the provider message id. Errors wrap one of
	// ErrInvalidToken, ErrTransient or ErrRejected.
	Send(ctx context.Context, msg Message) (string, error)
}

// LogTransport only logs what would have been sent.
type LogTransport struct {
	log *log.Logger
}

func NewLogTransport(logger *log.Logger) *LogTransport {
	return &LogTransport{log: logger}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errors.Join(ErrTransient, err)
	}

	id := uuid.NewString()
	t.log.Printf("push %s: tag=%s title=%q body=%q", id, msg.Tag, msg.Title, msg.Body)
	return id, nil
}
