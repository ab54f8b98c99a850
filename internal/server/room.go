package server

import (
	"log"
	"sync"

	"github.com/npezzotti/chat-relay/internal/rooms"
)

// Rooms exist only while at least one connection is joined.
type Room struct {
	id         rooms.RoomId
	clients    map[*Client]struct{}
	clientLock sync.RWMutex
	log        *log.Logger
}

func newRoom(id rooms.RoomId, l *log.Logger) *Room {
	return &Room{
		id:      id,
		clients: make(map[*Client]struct{}),
		log:     l,
	}
}

func (r *Room) addClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; ok {
		return false
	}

	r.clients[c] = struct{}{}
	return true
}

func (r *Room) removeClient(c *Client) bool {
	r.clientLock.Lock()
	defer r.clientLock.Unlock()

	if _, ok := r.clients[c]; !ok {
		return false
	}
	delete(r.clients, c)
	return true
}

func (r *Room) isEmpty() bool {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	return len(r.clients) == 0
}

func (r *Room) broadcast(msg *ServerMessage) int {
	r.clientLock.RLock()
	defer r.clientLock.RUnlock()

	sent := 0
	for client := range r.clients {
		if client.queueMessage(msg) {
			sent++
		}
	}

	return sent
}
