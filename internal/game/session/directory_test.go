package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"
)

// mockConn is a Conn whose Send behaviour is scripted with testify/mock.
type mockConn struct {
	mock.Mock
	id string
}

func (m *mockConn) ID() string { return m.id }

func (m *mockConn) Send(ctx context.Context, msg []byte) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// fakeConn records every message it receives.
type fakeConn struct {
	id  string
	mu  sync.Mutex
	got [][]byte
}

func newFakeConn(id string) *fakeConn { return &fakeConn{id: id} }

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(_ context.Context, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, msg)
	return nil
}

func (f *fakeConn) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.got...)
}

func newTestDirectory(t *testing.T) *Directory {
	return NewDirectory(zaptest.NewLogger(t))
}

// assertConsistent checks the forward and inverse maps agree.
func assertConsistent(t require.TestingT, d *Directory) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	forward := 0
	for room, users := range d.rooms {
		require.NotEmpty(t, users, "room %s must be pruned when empty", room)
		for user, c := range users {
			forward++
			id, ok := d.conns[c.ID()]
			require.True(t, ok, "conn %s missing from inverse map", c.ID())
			require.Equal(t, Identity{Room: room, User: user}, id)
		}
	}
	require.Equal(t, forward, len(d.conns))
}

func TestOutbox_Push(t *testing.T) {
	o := NewOutbox("c1", 4)
	require.NoError(t, o.Push([]byte("hello")))
	assert.Equal(t, []byte("hello"), <-o.Messages())
	assert.Equal(t, "c1", o.ID())
}

func TestOutbox_PushClosed(t *testing.T) {
	o := NewOutbox("c1", 4)
	require.NoError(t, o.Close())
	assert.True(t, o.IsClosed())
	assert.ErrorIs(t, o.Push([]byte("fail")), ErrOutboxClosed)
}

func TestOutbox_PushFull(t *testing.T) {
	o := NewOutbox("c1", 1)
	require.NoError(t, o.Push([]byte("first")))
	assert.ErrorIs(t, o.Push([]byte("overflow")), ErrOutboxFull)
}

func TestOutbox_PreservesOrder(t *testing.T) {
	o := NewOutbox("c1", 8)
	for i := 0; i < 5; i++ {
		require.NoError(t, o.Push([]byte(fmt.Sprint(i))))
	}
	require.NoError(t, o.Close())
	var got []string
	for m := range o.Messages() {
		got = append(got, string(m))
	}
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, got)
}

func TestOutbox_CloseIdempotent(t *testing.T) {
	o := NewOutbox("c1", 4)
	require.NoError(t, o.Close())
	require.NoError(t, o.Close())
	assert.True(t, o.IsClosed())
}

func TestDirectory_RegisterAndLookup(t *testing.T) {
	d := newTestDirectory(t)
	c := newFakeConn("c1")
	d.Register(c, "abcd", "alice")

	id, ok := d.Lookup(c)
	require.True(t, ok)
	assert.Equal(t, Identity{Room: "abcd", User: "alice"}, id)
	assert.True(t, d.RoomExists("abcd"))
	assert.Equal(t, []string{"alice"}, d.ListUsers("abcd"))
	assertConsistent(t, d)
}

func TestDirectory_RegisterReplacesConnection(t *testing.T) {
	d := newTestDirectory(t)
	old := newFakeConn("old")
	fresh := newFakeConn("new")
	d.Register(old, "abcd", "alice")
	d.Register(fresh, "abcd", "alice")

	_, ok := d.Lookup(old)
	assert.False(t, ok, "replaced connection must lose its identity")
	assert.Equal(t, 1, d.ConnCount())
	assertConsistent(t, d)

	// The stale socket closing later must not evict the new one.
	_, ok = d.Unregister(old)
	assert.False(t, ok)
	assert.Equal(t, []string{"alice"}, d.ListUsers("abcd"))

	require.NoError(t, d.Send(context.Background(), "abcd", "alice", []byte("hi")))
	assert.Empty(t, old.messages())
	assert.Len(t, fresh.messages(), 1)
}

func TestDirectory_RegisterMovesConnection(t *testing.T) {
	d := newTestDirectory(t)
	c := newFakeConn("c1")
	d.Register(c, "abcd", "alice")
	d.Register(c, "wxyz", "alice")

	assert.False(t, d.RoomExists("abcd"))
	assert.True(t, d.RoomExists("wxyz"))
	assertConsistent(t, d)
}

func TestDirectory_Unregister(t *testing.T) {
	d := newTestDirectory(t)
	conns := []*fakeConn{newFakeConn("c1"), newFakeConn("c2"), newFakeConn("c3")}
	for i, c := range conns {
		d.Register(c, "abcd", fmt.Sprintf("u%d", i))
	}

	dep, ok := d.Unregister(conns[0])
	require.True(t, ok)
	assert.Equal(t, Identity{Room: "abcd", User: "u0"}, dep.Identity)
	assert.Equal(t, 2, dep.Remaining)
	assert.True(t, dep.Notify())
	assert.Equal(t, []string{"u1", "u2"}, d.ListUsers("abcd"))

	d.Unregister(conns[1])
	dep, ok = d.Unregister(conns[2])
	require.True(t, ok)
	assert.False(t, dep.Notify())
	assert.False(t, d.RoomExists("abcd"))
	assert.Equal(t, 0, d.RoomCount())

	_, ok = d.Unregister(conns[2])
	assert.False(t, ok, "second unregister is a no-op")
	assertConsistent(t, d)
}

func TestDirectory_SendUnknownUser(t *testing.T) {
	d := newTestDirectory(t)
	err := d.Send(context.Background(), "abcd", "ghost", []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownUser)
}

// TestDirectory_BroadcastIsolatesFailures verifies one failing socket does not
// stop delivery to the others and is not unregistered.
func TestDirectory_BroadcastIsolatesFailures(t *testing.T) {
	d := newTestDirectory(t)
	msg := []byte(`{"type":"user_update"}`)

	broken := &mockConn{id: "broken"}
	broken.On("Send", mock.Anything, msg).Return(errors.New("connection reset"))
	d.Register(broken, "abcd", "bob")

	healthy := make([]*mockConn, 3)
	for i := range healthy {
		healthy[i] = &mockConn{id: fmt.Sprintf("ok%d", i)}
		healthy[i].On("Send", mock.Anything, msg).Return(nil).Once()
		d.Register(healthy[i], "abcd", fmt.Sprintf("u%d", i))
	}

	delivered := d.Broadcast(context.Background(), "abcd", msg)
	assert.Equal(t, 3, delivered)
	broken.AssertExpectations(t)
	for _, c := range healthy {
		c.AssertExpectations(t)
	}
	assert.Len(t, d.ListUsers("abcd"), 4, "failed send must not unregister")
}

func TestDirectory_BroadcastRecoversPanickingConn(t *testing.T) {
	d := newTestDirectory(t)
	bad := &mockConn{id: "bad"}
	bad.On("Send", mock.Anything, mock.Anything).Panic("write on closed socket")
	d.Register(bad, "abcd", "bob")
	d.Register(newFakeConn("good"), "abcd", "alice")

	assert.Equal(t, 1, d.Broadcast(context.Background(), "abcd", []byte("x")))
}

func TestDirectory_BroadcastEmptyRoom(t *testing.T) {
	d := newTestDirectory(t)
	assert.Equal(t, 0, d.Broadcast(context.Background(), "none", []byte("x")))
}

func TestDirectory_BroadcastFunc(t *testing.T) {
	d := newTestDirectory(t)
	alice, bob := newFakeConn("a"), newFakeConn("b")
	d.Register(alice, "abcd", "alice")
	d.Register(bob, "abcd", "bob")

	n := d.BroadcastFunc(context.Background(), "abcd", func(user string) ([]byte, error) {
		if user == "bob" {
			return nil, errors.New("no view")
		}
		return []byte("for " + user), nil
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, [][]byte{[]byte("for alice")}, alice.messages())
	assert.Empty(t, bob.messages())
}

func TestDirectory_ConcurrentRegisterUnregister(t *testing.T) {
	d := newTestDirectory(t)
	const n = 100
	conns := make([]*fakeConn, n)
	for i := range conns {
		conns[i] = newFakeConn(fmt.Sprintf("c%d", i))
	}

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			d.Register(conns[i], fmt.Sprintf("r%d", i%5), fmt.Sprintf("u%d", i))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, n, d.ConnCount())
	assert.Equal(t, 5, d.RoomCount())

	wg.Add(n * 2)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			d.Unregister(conns[i])
		}(i)
		go func(i int) {
			defer wg.Done()
			d.Broadcast(context.Background(), fmt.Sprintf("r%d", i%5), []byte("x"))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, d.ConnCount())
	assert.Equal(t, 0, d.RoomCount())
}

// TestPropertyDirectoryConsistent verifies the forward and inverse maps stay
// in agreement and registering N then unregistering k leaves N-k users.
func TestPropertyDirectoryConsistent(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		d := NewDirectory(zaptest.NewLogger(t))
		rooms := []string{"aaaa", "bbbb", "cccc"}
		numConns := rapid.IntRange(1, 20).Draw(rt, "num_conns")
		conns := make([]*fakeConn, numConns)
		for i := range conns {
			conns[i] = newFakeConn(fmt.Sprintf("c%d", i))
		}

		ops := rapid.IntRange(0, 60).Draw(rt, "ops")
		for i := 0; i < ops; i++ {
			c := conns[rapid.IntRange(0, numConns-1).Draw(rt, "conn")]
			if rapid.Bool().Draw(rt, "register") {
				room := rooms[rapid.IntRange(0, len(rooms)-1).Draw(rt, "room")]
				user := fmt.Sprintf("u%d", rapid.IntRange(0, 5).Draw(rt, "user"))
				d.Register(c, room, user)
			} else {
				d.Unregister(c)
			}
			assertConsistent(rt, d)
		}

		total := 0
		for _, room := range rooms {
			total += len(d.ListUsers(room))
		}
		if total != d.ConnCount() {
			rt.Fatalf("room occupancy sum %d != connection count %d", total, d.ConnCount())
		}

		for _, c := range conns {
			d.Unregister(c)
		}
		if d.RoomCount() != 0 {
			rt.Fatalf("rooms left after unregistering everyone: %d", d.RoomCount())
		}
	})
}
