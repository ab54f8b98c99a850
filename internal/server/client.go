package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/chat-relay/internal/auth"
	"github.com/npezzotti/chat-relay/internal/rooms"
	"github.com/teris-io/shortid"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
	joinTimeout    = 5 * time.Second
)

type Client struct {
	id         string
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	principal  auth.Principal
	send       chan *ServerMessage
	rooms      map[rooms.RoomId]*Room
	roomsLock  sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(p auth.Principal, conn *websocket.Conn, cs *ChatServer, l *log.Logger) (*Client, error) {
	id, err := shortid.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate connection id: %w", err)
	}

	return &Client{
		id:         id,
		conn:       conn,
		chatServer: cs,
		log:        l,
		principal:  p,
		send:       make(chan *ServerMessage, 256),
		rooms:      make(map[rooms.RoomId]*Room),
		stop:       make(chan struct{}),
	}, nil
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := serializeMessage(msg)
			if err != nil {
				c.log.Println("failed to serialize message:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Println("error parsing message:", err)
			c.queueMessage(ErrInvalidMessage(0))
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) handleMessage(msg *ClientMessage) {
	switch msg.Event {
	case EventSubscribeChannel, EventUnsubscribeChannel:
		var req ChannelRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.ChannelId <= 0 {
			c.queueMessage(ErrInvalidMessage(msg.Id))
			return
		}

		if msg.Event == EventUnsubscribeChannel {
			c.chatServer.LeaveChannel(c, req.ChannelId)
			c.queueMessage(AckOK(msg.Id))
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		defer cancel()

		room, err := c.chatServer.JoinChannel(ctx, c, req.ChannelId)
		if err != nil {
			c.queueMessage(c.joinError(msg.Id, err))
			return
		}
		c.log.Printf("user %d subscribed to %q", c.principal.UserId, room)
		c.queueMessage(AckChannel(msg.Id, room))
	case EventSubscribeDM, EventUnsubscribeDM:
		var req DMRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil || req.OtherUserId <= 0 {
			c.queueMessage(ErrInvalidMessage(msg.Id))
			return
		}

		if msg.Event == EventUnsubscribeDM {
			c.chatServer.LeaveDM(c, req.OtherUserId)
			c.queueMessage(AckOK(msg.Id))
			return
		}

		room, err := c.chatServer.JoinDM(c, req.OtherUserId)
		if err != nil {
			c.queueMessage(c.joinError(msg.Id, err))
			return
		}
		c.log.Printf("user %d subscribed to %q", c.principal.UserId, room)
		c.queueMessage(AckRoom(msg.Id, room))
	default:
		c.queueMessage(ErrUnknownEvent(msg.Id))
	}
}

func (c *Client) joinError(id int, err error) *ServerMessage {
	switch {
	case errors.Is(err, rooms.ErrForbidden):
		return AckError(id, rooms.ErrForbidden.Error())
	case errors.Is(err, rooms.ErrNotFound):
		return AckError(id, rooms.ErrNotFound.Error())
	case errors.Is(err, rooms.ErrInvalidRoom):
		return AckError(id, rooms.ErrInvalidRoom.Error())
	}

	c.log.Printf("join room: %v", err)
	return ErrInternalError(id)
}

func (c *Client) queueMessage(msg *ServerMessage) bool {
	select {
	case c.send <- msg:
	default:
		c.log.Printf("failed to send message to client %q, channel is full", c.id)
		return false
	}

	return true
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.chatServer.UnregisterClient(c)
	c.stopClient()
}

func (c *Client) roomIds() []rooms.RoomId {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	ids := make([]rooms.RoomId, 0, len(c.rooms))
	for id := range c.rooms {
		ids = append(ids, id)
	}
	return ids
}

func (c *Client) delRoom(id rooms.RoomId) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, id)
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.id] = r
}
