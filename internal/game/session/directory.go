package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ErrUnknownUser is returned by Send when no connection is registered for
// the (room, user) pair.
var ErrUnknownUser = errors.New("no connection for user")

// Conn is a live connection the Directory can deliver to.
type Conn interface {
	// ID returns an identifier unique among open connections.
	ID() string
	// Send delivers a serialized message to the peer.
	Send(ctx context.Context, msg []byte) error
}

// Identity is the (room, user) pair a connection acts as.
type Identity struct {
	Room string
	User string
}

// Departure describes the effect of Unregister.
type Departure struct {
	Identity
	// Remaining is the number of connections left in the room.
	Remaining int
}

// Notify reports whether the room still has members who should be told
// about the departure. It is false when the room was pruned.
func (d Departure) Notify() bool {
	return d.Remaining > 0
}

// Directory maps (room, user) to a live connection and each connection back
// to its identity. All methods are safe for concurrent use.
//
// Invariant: every forward entry has exactly one inverse entry and vice
// versa; a room with zero users has no entry.
type Directory struct {
	logger *zap.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]Conn // room → user → conn
	conns map[string]Identity        // conn id → identity
}

// NewDirectory creates an empty Directory.
//
// Precondition: logger must be non-nil.
func NewDirectory(logger *zap.Logger) *Directory {
	return &Directory{
		logger: logger,
		rooms:  make(map[string]map[string]Conn),
		conns:  make(map[string]Identity),
	}
}

// Register maps conn to (room, user), replacing any connection previously
// registered for that pair and any identity previously held by conn.
//
// Precondition: conn non-nil; room and user non-empty.
// Postcondition: Lookup(conn) == {room, user} and the forward entry is conn.
func (d *Directory) Register(conn Conn, room, user string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, ok := d.conns[conn.ID()]; ok {
		d.removeForward(prev, conn.ID())
	}
	users, ok := d.rooms[room]
	if !ok {
		users = make(map[string]Conn)
		d.rooms[room] = users
	}
	if old, ok := users[user]; ok && old.ID() != conn.ID() {
		delete(d.conns, old.ID())
	}
	users[user] = conn
	d.conns[conn.ID()] = Identity{Room: room, User: user}
}

// Unregister removes conn's mapping.
//
// Postcondition: Returns the departure and true when conn was registered,
// or false when it was unknown (already replaced or never registered).
func (d *Directory) Unregister(conn Conn) (Departure, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id, ok := d.conns[conn.ID()]
	if !ok {
		return Departure{}, false
	}
	delete(d.conns, conn.ID())
	d.removeForward(id, conn.ID())
	return Departure{Identity: id, Remaining: len(d.rooms[id.Room])}, true
}

// removeForward deletes the forward entry for id if it still points at
// connID, pruning the room when it empties. Callers hold mu.
func (d *Directory) removeForward(id Identity, connID string) {
	users, ok := d.rooms[id.Room]
	if !ok {
		return
	}
	if c, ok := users[id.User]; ok && c.ID() == connID {
		delete(users, id.User)
	}
	if len(users) == 0 {
		delete(d.rooms, id.Room)
	}
}

// Lookup returns the identity registered for conn.
func (d *Directory) Lookup(conn Conn) (Identity, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.conns[conn.ID()]
	return id, ok
}

// RoomExists reports whether any connection is registered in room.
func (d *Directory) RoomExists(room string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.rooms[room]
	return ok
}

// ListUsers returns the users connected to room in sorted order.
//
// Postcondition: Returns a slice of user names (may be empty).
func (d *Directory) ListUsers(room string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	users := make([]string, 0, len(d.rooms[room]))
	for u := range d.rooms[room] {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// RoomCount returns the number of rooms with at least one connection.
func (d *Directory) RoomCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

// ConnCount returns the number of registered connections.
func (d *Directory) ConnCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.conns)
}

// Send delivers msg to a single user.
//
// Postcondition: Returns nil on delivery, an error wrapping ErrUnknownUser if
// the user has no connection, or the connection's send error.
func (d *Directory) Send(ctx context.Context, room, user string, msg []byte) error {
	d.mu.RLock()
	conn, ok := d.rooms[room][user]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("room %s user %s: %w", room, user, ErrUnknownUser)
	}
	return conn.Send(ctx, msg)
}

// Broadcast delivers msg to every connection in room concurrently.
//
// Postcondition: Returns the number of successful deliveries. A failed send
// never prevents delivery to other recipients and does not unregister.
func (d *Directory) Broadcast(ctx context.Context, room string, msg []byte) int {
	return d.BroadcastFunc(ctx, room, func(string) ([]byte, error) { return msg, nil })
}

// BroadcastFunc delivers a per-user message built by render to every
// connection in room concurrently. Users for which render fails are skipped.
//
// Postcondition: Returns the number of successful deliveries.
func (d *Directory) BroadcastFunc(ctx context.Context, room string, render func(user string) ([]byte, error)) int {
	d.mu.RLock()
	targets := make(map[string]Conn, len(d.rooms[room]))
	for u, c := range d.rooms[room] {
		targets[u] = c
	}
	d.mu.RUnlock()

	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
	)
	for user, conn := range targets {
		wg.Add(1)
		go func(user string, conn Conn) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					d.logger.Error("panic sending to connection",
						zap.String("room", room),
						zap.String("user", user),
						zap.Any("panic", r),
					)
				}
			}()
			msg, err := render(user)
			if err != nil {
				d.logger.Warn("rendering message",
					zap.String("room", room),
					zap.String("user", user),
					zap.Error(err),
				)
				return
			}
			if err := conn.Send(ctx, msg); err != nil {
				d.logger.Debug("send failed",
					zap.String("room", room),
					zap.String("user", user),
					zap.String("conn", conn.ID()),
					zap.Error(err),
				)
				return
			}
			delivered.Add(1)
		}(user, conn)
	}
	wg.Wait()
	return int(delivered.Load())
}
