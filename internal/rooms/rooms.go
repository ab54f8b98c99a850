// Package rooms names the multicast groups events are delivered to and
// decides who may join them.
package rooms

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrForbidden   = errors.New("forbidden")
	ErrNotFound    = errors.New("not found")
	ErrInvalidRoom = errors.New("invalid room")
)

const (
	channelPrefix = "private-channel."
	dmPrefix      = "private-dm."
	userPrefix    = "private-user-"
)

// RoomId is the wire name of a room, e.g. private-channel.42.
type RoomId string

func (r RoomId) String() string {
	return string(r)
}

type Kind int

const (
	KindChannel Kind = iota + 1
	KindDM
	KindUser
)

// Target is a parsed RoomId.
type Target struct {
	Kind      Kind
	ChannelId int
	// UserIds holds the two DM participants, lowest first.
	UserIds [2]int
	UserId  int
}

func ChannelRoom(channelId int) RoomId {
	return RoomId(channelPrefix + strconv.Itoa(channelId))
}

// DMRoom returns the same id regardless of argument order.
func DMRoom(a, b int) RoomId {
	if a > b {
		a, b = b, a
	}
	return RoomId(fmt.Sprintf("%s%d_%d", dmPrefix, a, b))
}

func UserRoom(userId int) RoomId {
	return RoomId(userPrefix + strconv.Itoa(userId))
}

func Parse(r RoomId) (Target, error) {
	s := string(r)
	switch {
	case strings.HasPrefix(s, channelPrefix):
		id, err := parseId(strings.TrimPrefix(s, channelPrefix))
		if err != nil {
			return Target{}, fmt.Errorf("%w: %s", ErrInvalidRoom, s)
		}
		return Target{Kind: KindChannel, ChannelId: id}, nil
	case strings.HasPrefix(s, dmPrefix):
		lo, hi, ok := strings.Cut(strings.TrimPrefix(s, dmPrefix), "_")
		if !ok {
			return Target{}, fmt.Errorf("%w: %s", ErrInvalidRoom, s)
		}
		a, errA := parseId(lo)
		b, errB := parseId(hi)
		if errA != nil || errB != nil || a > b {
			return Target{}, fmt.Errorf("%w: %s", ErrInvalidRoom, s)
		}
		return Target{Kind: KindDM, UserIds: [2]int{a, b}}, nil
	case strings.HasPrefix(s, userPrefix):
		id, err := parseId(strings.TrimPrefix(s, userPrefix))
		if err != nil {
			return Target{}, fmt.Errorf("%w: %s", ErrInvalidRoom, s)
		}
		return Target{Kind: KindUser, UserId: id}, nil
	}

	return Target{}, fmt.Errorf("%w: %s", ErrInvalidRoom, s)
}

func parseId(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("non-positive id %d", id)
	}
	return id, nil
}
