package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/npezzotti/chat-relay/internal/auth"
	"github.com/npezzotti/chat-relay/internal/database"
	"github.com/npezzotti/chat-relay/internal/presence"
	"github.com/npezzotti/chat-relay/internal/rooms"
	"github.com/npezzotti/chat-relay/internal/stats"
)

var ErrServerStopped = errors.New("chat server stopped")

type ChannelAccessChecker interface {
	CheckChannelAccess(ctx context.Context, channelId int, p auth.Principal) (database.Channel, error)
}

type ChatServer struct {
	log            *log.Logger
	presence       *presence.Registry
	access         ChannelAccessChecker
	stats          stats.StatsProvider
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	rooms          map[rooms.RoomId]*Room
	roomsLock      sync.RWMutex
	registerChan   chan *Client
	deRegisterChan chan *Client
	stop           chan struct{}
	stopOnce       sync.Once
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, reg *presence.Registry, access ChannelAccessChecker, su stats.StatsProvider) *ChatServer {
	return &ChatServer{
		log:            logger,
		presence:       reg,
		access:         access,
		stats:          su,
		clients:        make(map[*Client]struct{}),
		rooms:          make(map[rooms.RoomId]*Room),
		registerChan:   make(chan *Client, 64),
		deRegisterChan: make(chan *Client, 64),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.registerChan:
			userId := client.principal.UserId
			cs.log.Printf("adding connection %q for user %d (%d open, %d total)",
				client.id, userId, len(cs.presence.Connections(userId)), cs.presence.Count())
			cs.addClient(client)
			cs.stats.Incr(stats.NumActiveConnections)
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection %q for user %d", client.id, client.principal.UserId)
			if cs.removeClient(client) {
				cs.stats.Decr(stats.NumActiveConnections)
			}
		case <-cs.stop:
			cs.log.Println("stopping clients")
			cs.clientsLock.Lock()
			for c := range cs.clients {
				c.stopClient()
			}
			cs.clientsLock.Unlock()

			close(cs.done)
			return
		}
	}
}

// The connection is online once RegisterClient returns.
func (cs *ChatServer) RegisterClient(c *Client) error {
	select {
	case <-cs.stop:
		return ErrServerStopped
	default:
	}

	if err := cs.presence.Connect(c.id, c.principal); err != nil {
		return fmt.Errorf("register %q: %w", c.id, err)
	}

	cs.join(c, rooms.UserRoom(c.principal.UserId))

	select {
	case cs.registerChan <- c:
	case <-cs.stop:
	}

	return nil
}

func (cs *ChatServer) UnregisterClient(c *Client) {
	if !cs.presence.Disconnect(c.id) {
		return
	}

	for _, id := range c.roomIds() {
		cs.leave(c, id)
	}

	select {
	case cs.deRegisterChan <- c:
	case <-cs.done:
	}
}

func (cs *ChatServer) addClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) removeClient(c *Client) bool {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()

	if _, ok := cs.clients[c]; !ok {
		return false
	}
	delete(cs.clients, c)
	return true
}

func (cs *ChatServer) join(c *Client, id rooms.RoomId) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	r, ok := cs.rooms[id]
	if !ok {
		r = newRoom(id, cs.log)
		cs.rooms[id] = r
	}

	if r.addClient(c) {
		c.addRoom(r)
		cs.stats.Incr(stats.NumRoomsJoined)
	}
}

func (cs *ChatServer) leave(c *Client, id rooms.RoomId) {
	cs.roomsLock.Lock()
	defer cs.roomsLock.Unlock()

	r, ok := cs.rooms[id]
	if !ok {
		return
	}

	if r.removeClient(c) {
		c.delRoom(id)
		cs.stats.Decr(stats.NumRoomsJoined)
	}

	if r.isEmpty() {
		delete(cs.rooms, id)
	}
}

func (cs *ChatServer) JoinChannel(ctx context.Context, c *Client, channelId int) (rooms.RoomId, error) {
	if _, err := cs.access.CheckChannelAccess(ctx, channelId, c.principal); err != nil {
		return "", err
	}

	id := rooms.ChannelRoom(channelId)
	cs.join(c, id)
	return id, nil
}

func (cs *ChatServer) LeaveChannel(c *Client, channelId int) rooms.RoomId {
	id := rooms.ChannelRoom(channelId)
	cs.leave(c, id)
	return id
}

func (cs *ChatServer) JoinDM(c *Client, otherUserId int) (rooms.RoomId, error) {
	if otherUserId <= 0 {
		return "", rooms.ErrInvalidRoom
	}

	id := rooms.DMRoom(c.principal.UserId, otherUserId)
	if err := rooms.AuthorizeDM(c.principal, id); err != nil {
		return "", err
	}

	cs.join(c, id)
	return id, nil
}

func (cs *ChatServer) LeaveDM(c *Client, otherUserId int) rooms.RoomId {
	id := rooms.DMRoom(c.principal.UserId, otherUserId)
	cs.leave(c, id)
	return id
}

func (cs *ChatServer) Emit(room rooms.RoomId, event string, payload any) int {
	data, err := json.Marshal(payload)
	if err != nil {
		cs.log.Printf("emit %s to %q: %v", event, room, err)
		return 0
	}

	cs.roomsLock.RLock()
	r, ok := cs.rooms[room]
	cs.roomsLock.RUnlock()
	if !ok {
		return 0
	}

	return r.broadcast(&ServerMessage{
		Event:     event,
		Room:      room,
		Data:      data,
		Timestamp: Now(),
	})
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Println("received shutdown signal")
	cs.stopOnce.Do(func() { close(cs.stop) })

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("chat server shutdown: %w", ctx.Err())
	}
}
