// Package presence tracks live connections and answers whether a user is
// currently online.
package presence

import (
	"errors"
	"hash/fnv"
	"strconv"
	"sync"

	"github.com/npezzotti/chat-relay/internal/auth"
)

var ErrDuplicateConnection = errors.New("connection already registered")

const numShards = 32

type connShard struct {
	mu    sync.RWMutex
	conns map[string]auth.Principal
}

type userShard struct {
	mu    sync.RWMutex
	conns map[int]map[string]struct{}
}

// Registry maps connection ids to principals and users to their
// connections. Both tables are sharded. A mutation holds the connection's
// shard and then the user's shard, never more.
type Registry struct {
	conns [numShards]*connShard
	users [numShards]*userShard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := 0; i < numShards; i++ {
		r.conns[i] = &connShard{conns: make(map[string]auth.Principal)}
		r.users[i] = &userShard{conns: make(map[int]map[string]struct{})}
	}
	return r
}

func shardOf(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % numShards
}

func (r *Registry) connShard(connId string) *connShard {
	return r.conns[shardOf(connId)]
}

func (r *Registry) userShard(userId int) *userShard {
	return r.users[shardOf(strconv.Itoa(userId))]
}

// Connect registers connId for p. A connection id may only be registered once.
func (r *Registry) Connect(connId string, p auth.Principal) error {
	cs := r.connShard(connId)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, ok := cs.conns[connId]; ok {
		return ErrDuplicateConnection
	}
	cs.conns[connId] = p

	us := r.userShard(p.UserId)
	us.mu.Lock()
	set, ok := us.conns[p.UserId]
	if !ok {
		set = make(map[string]struct{})
		us.conns[p.UserId] = set
	}
	set[connId] = struct{}{}
	us.mu.Unlock()

	return nil
}

// Disconnect removes connId and reports whether it was registered.
func (r *Registry) Disconnect(connId string) bool {
	cs := r.connShard(connId)
	cs.mu.Lock()
	defer cs.mu.Unlock()

	p, ok := cs.conns[connId]
	if !ok {
		return false
	}
	delete(cs.conns, connId)

	us := r.userShard(p.UserId)
	us.mu.Lock()
	if set, ok := us.conns[p.UserId]; ok {
		delete(set, connId)
		if len(set) == 0 {
			delete(us.conns, p.UserId)
		}
	}
	us.mu.Unlock()

	return true
}

func (r *Registry) IsUserOnline(userId int) bool {
	us := r.userShard(userId)
	us.mu.RLock()
	defer us.mu.RUnlock()

	return len(us.conns[userId]) > 0
}

// OnlineUserIds returns a snapshot of every user with at least one live
// connection. The result is owned by the caller.
func (r *Registry) OnlineUserIds() map[int]struct{} {
	online := make(map[int]struct{})
	for _, us := range r.users {
		us.mu.RLock()
		for userId := range us.conns {
			online[userId] = struct{}{}
		}
		us.mu.RUnlock()
	}
	return online
}

func (r *Registry) Connections(userId int) []string {
	us := r.userShard(userId)
	us.mu.RLock()
	defer us.mu.RUnlock()

	ids := make([]string, 0, len(us.conns[userId]))
	for id := range us.conns[userId] {
		ids = append(ids, id)
	}
	return ids
}

func (r *Registry) Count() int {
	n := 0
	for _, cs := range r.conns {
		cs.mu.RLock()
		n += len(cs.conns)
		cs.mu.RUnlock()
	}
	return n
}
