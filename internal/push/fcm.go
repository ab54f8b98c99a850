package push

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

const (
	androidTTL          = 4 * time.Hour
	urgentChannelId     = "high_importance"
	defaultChannelId    = "messages_work"
	apnsPriorityHigh    = "10"
	apnsPriorityDefault = "5"
)

// Sender is the part of the FCM messaging client used by FCMTransport.
type Sender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

type FCMTransport struct {
	client Sender
}

// NewFCMTransport creates a transport authenticated with the service account
// in credentialsFile.
func NewFCMTransport(ctx context.Context, credentialsFile string) (*FCMTransport, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init messaging client: %w", err)
	}

	return &FCMTransport{client: client}, nil
}

func NewFCMTransportWithSender(s Sender) *FCMTransport {
	return &FCMTransport{client: s}
}

func (t *FCMTransport) Send(ctx context.Context, msg Message) (string, error) {
	id, err := t.client.Send(ctx, buildMessage(msg))
	if err != nil {
		return "", classify(err)
	}
	return id, nil
}

func buildMessage(msg Message) *messaging.Message {
	data := make(map[string]string, len(msg.Data)+2)
	data["type"] = "chat"
	data["click_action"] = ClickAction
	for k, v := range msg.Data {
		data[k] = v
	}

	badge := msg.Badge
	if badge <= 0 {
		badge = 1
	}

	ttl := androidTTL
	androidPriority, channelId, apnsPriority := "normal", defaultChannelId, apnsPriorityDefault
	notifPriority := messaging.PriorityDefault
	if msg.Urgent {
		androidPriority, channelId, apnsPriority = "high", urgentChannelId, apnsPriorityHigh
		notifPriority = messaging.PriorityHigh
	}

	return &messaging.Message{
		Token: msg.Token,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority:    androidPriority,
			TTL:         &ttl,
			CollapseKey: msg.Tag,
			Notification: &messaging.AndroidNotification{
				Title:             msg.Title,
				Body:              msg.Body,
				ChannelID:         channelId,
				Sound:             "default",
				Tag:               msg.Tag,
				Priority:          notifPriority,
				Visibility:        messaging.VisibilityPublic,
				NotificationCount: &badge,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{
				"apns-priority":    apnsPriority,
				"apns-push-type":   "alert",
				"apns-collapse-id": msg.Tag,
			},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert:            &messaging.ApsAlert{Title: msg.Title, Body: msg.Body},
					Sound:            "default",
					Badge:            &badge,
					ThreadID:         msg.Tag,
					ContentAvailable: true,
					MutableContent:   true,
				},
			},
		},
	}
}

type errorRule struct {
	code  string
	match func(error) bool
	kind  error
}

// Only a dead registration purges the token. INVALID_ARGUMENT is also
// returned for bad payloads, so it is a rejection.
var fcmErrorRules = []errorRule{
	{code: "unregistered", match: messaging.IsUnregistered, kind: ErrInvalidToken},
	{code: "sender-id-mismatch", match: messaging.IsSenderIDMismatch, kind: ErrInvalidToken},
	{code: "invalid-argument", match: errorutils.IsInvalidArgument, kind: ErrRejected},
	{code: "third-party-auth-error", match: messaging.IsThirdPartyAuthError, kind: ErrRejected},
	{code: "permission-denied", match: errorutils.IsPermissionDenied, kind: ErrRejected},
	{code: "unauthenticated", match: errorutils.IsUnauthenticated, kind: ErrRejected},
}

func classify(err error) error {
	return classifyWith(fcmErrorRules, err)
}

func classifyWith(rules []errorRule, err error) error {
	for _, r := range rules {
		if r.match(err) {
			return fmt.Errorf("%w: %v", r.kind, err)
		}
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrRejected, err)
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
