package presence

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/chat-relay/internal/auth"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_ConnectDisconnect(t *testing.T) {
	r := NewRegistry()
	p := auth.Principal{UserId: 7, CompanyId: 1}

	assert.False(t, r.IsUserOnline(7))
	assert.NoError(t, r.Connect("a", p))
	assert.True(t, r.IsUserOnline(7))
	assert.Equal(t, 1, r.Count())

	assert.Equal(t, []string{"a"}, r.Connections(7))

	assert.True(t, r.Disconnect("a"))
	assert.False(t, r.IsUserOnline(7))
	assert.False(t, r.Disconnect("a"), "expected second disconnect to report nothing removed")
	assert.Equal(t, 0, r.Count())
}

func TestRegistry_DuplicateConnection(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Connect("a", auth.Principal{UserId: 1}))
	assert.ErrorIs(t, r.Connect("a", auth.Principal{UserId: 2}), ErrDuplicateConnection)

	assert.Equal(t, []string{"a"}, r.Connections(1), "expected the original registration to be kept")
	assert.False(t, r.IsUserOnline(2))
	assert.Equal(t, 1, r.Count())
}

func TestRegistry_MultipleDevices(t *testing.T) {
	r := NewRegistry()
	p := auth.Principal{UserId: 7}
	assert.NoError(t, r.Connect("phone", p))
	assert.NoError(t, r.Connect("laptop", p))
	assert.ElementsMatch(t, []string{"phone", "laptop"}, r.Connections(7))

	r.Disconnect("phone")
	assert.True(t, r.IsUserOnline(7), "expected user to stay online while one device remains")

	r.Disconnect("laptop")
	assert.False(t, r.IsUserOnline(7))
	assert.Empty(t, r.Connections(7))
}

func TestRegistry_OnlineUserIdsIsSnapshot(t *testing.T) {
	r := NewRegistry()
	_ = r.Connect("a", auth.Principal{UserId: 1})
	_ = r.Connect("b", auth.Principal{UserId: 2})

	snap := r.OnlineUserIds()
	assert.Equal(t, map[int]struct{}{1: {}, 2: {}}, snap)

	r.Disconnect("a")
	_, stillThere := snap[1]
	assert.True(t, stillThere, "expected snapshot to be unaffected by later disconnects")
	assert.Equal(t, map[int]struct{}{2: {}}, r.OnlineUserIds())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	const n = 100

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conn-%d", i)
			assert.NoError(t, r.Connect(id, auth.Principal{UserId: i % 10}))
			if i%2 == 0 {
				r.Disconnect(id)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n/2, r.Count())
	// odd ids only land on odd users
	for userId := 0; userId < 10; userId++ {
		assert.Equal(t, userId%2 == 1, r.IsUserOnline(userId), "user %d", userId)
	}
}

func TestRegistry_UnrelatedConnectionsDoNotContend(t *testing.T) {
	r := NewRegistry()

	// hold the shards owned by conn "a" of user 1
	held := r.connShard("a")
	heldUser := r.userShard(1)

	other, userId := "", 0
	for i := 0; other == ""; i++ {
		id := fmt.Sprintf("conn-%d", i)
		uid := i + 2
		if r.connShard(id) != held && r.userShard(uid) != heldUser {
			other, userId = id, uid
		}
	}

	held.mu.Lock()
	heldUser.mu.Lock()
	defer held.mu.Unlock()
	defer heldUser.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- r.Connect(other, auth.Principal{UserId: userId})
	}()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("expected connect for an unrelated user to proceed")
	}
	assert.True(t, r.IsUserOnline(userId))
}
