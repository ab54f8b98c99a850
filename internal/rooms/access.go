package rooms

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/npezzotti/chat-relay/internal/auth"
	"github.com/npezzotti/chat-relay/internal/database"
)

type ChannelStore interface {
	GetChannel(ctx context.Context, channelId int) (database.Channel, error)
}

type AccessPolicy struct {
	store ChannelStore
}

func NewAccessPolicy(store ChannelStore) *AccessPolicy {
	return &AccessPolicy{store: store}
}

// CheckChannelAccess returns the channel, with its members, when p may
// read it. Rules are evaluated in order and the first match wins.
func (a *AccessPolicy) CheckChannelAccess(ctx context.Context, channelId int, p auth.Principal) (database.Channel, error) {
	ch, err := a.store.GetChannel(ctx, channelId)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return database.Channel{}, ErrNotFound
		}
		return database.Channel{}, fmt.Errorf("get channel: %w", err)
	}

	switch {
	case p.IsAdmin():
		return ch, nil
	case p.IsManager() && ch.CompanyId == p.CompanyId:
		return ch, nil
	case ch.CompanyId != p.CompanyId:
		return database.Channel{}, ErrForbidden
	case ch.IsPrivate && !slices.Contains(ch.MemberIds, p.UserId):
		return database.Channel{}, ErrForbidden
	}

	return ch, nil
}

// AuthorizeDM allows p into a DM room only as one of its two participants.
func AuthorizeDM(p auth.Principal, room RoomId) error {
	t, err := Parse(room)
	if err != nil {
		return err
	}
	if t.Kind != KindDM {
		return ErrInvalidRoom
	}
	if t.UserIds[0] != p.UserId && t.UserIds[1] != p.UserId {
		return ErrForbidden
	}
	return nil
}
