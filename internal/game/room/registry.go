package room

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cory-johannsen/splash/internal/game/random"
)

// IDLength is the number of letters in a room id.
const IDLength = 4

// maxIDAttempts bounds room id regeneration on collision.
const maxIDAttempts = 1000

// ErrNoRoomID is returned when no unused room id could be generated.
var ErrNoRoomID = errors.New("no unused room id available")

// Registry owns every live room and routes operations to them by id.
// All methods are safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]Room
	src   random.Source
}

// NewRegistry creates an empty Registry generating ids from src.
//
// Precondition: src must be non-nil.
func NewRegistry(src random.Source) *Registry {
	return &Registry{
		rooms: make(map[string]Room),
		src:   src,
	}
}

// CreateRoom stores a new room built by factory under a fresh id.
//
// Precondition: factory must be non-nil.
// Postcondition: Returns the new room id, unique among live rooms, or an error.
func (g *Registry) CreateRoom(factory Factory) (string, error) {
	rm, err := factory()
	if err != nil {
		return "", fmt.Errorf("creating room: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for i := 0; i < maxIDAttempts; i++ {
		id := random.Letters(g.src, IDLength)
		if _, taken := g.rooms[id]; taken {
			continue
		}
		g.rooms[id] = rm
		return id, nil
	}
	return "", ErrNoRoomID
}

// JoinRoom adds user to the room.
//
// Postcondition: Returns Success, RoomNotFound or NameInUse.
func (g *Registry) JoinRoom(id, user string) Code {
	rm, ok := g.get(id)
	if !ok {
		return RoomNotFound
	}
	if !rm.AddPlayer(user) {
		return NameInUse
	}
	return Success
}

// RejoinRoom restores a previously joined user after a dropped connection.
// The player's score and the room's round are untouched.
//
// Postcondition: Returns Success for a known player, RoomNotFound for an
// unknown room, or NameInUse when user never joined the room.
func (g *Registry) RejoinRoom(id, user string) Code {
	rm, ok := g.get(id)
	if !ok {
		return RoomNotFound
	}
	if !rm.HasPlayer(user) {
		return NameInUse
	}
	return Success
}

// StartRoom starts the room's first round.
func (g *Registry) StartRoom(id string) Code {
	rm, ok := g.get(id)
	if !ok {
		return RoomNotFound
	}
	return rm.Start()
}

// Submit forwards a player's submission to the room.
//
// Postcondition: Returns RoomNotFound or PlayerNotFound with StateUnknown, or
// the room's result and the phase right after the submission.
func (g *Registry) Submit(id, user string, p Payload) (Code, State) {
	rm, ok := g.get(id)
	if !ok {
		return RoomNotFound, StateUnknown
	}
	if !rm.HasPlayer(user) {
		return PlayerNotFound, StateUnknown
	}
	return rm.Submit(user, p)
}

// QueryState returns the room's view for user, or the room-wide view for
// Anonymous.
func (g *Registry) QueryState(id, user string) (Code, State, View) {
	rm, ok := g.get(id)
	if !ok {
		return RoomNotFound, StateUnknown, nil
	}
	if user != Anonymous && !rm.HasPlayer(user) {
		return PlayerNotFound, StateUnknown, nil
	}
	return rm.QueryState(user)
}

// Players returns the members of the room, or nil if it does not exist.
func (g *Registry) Players(id string) []string {
	rm, ok := g.get(id)
	if !ok {
		return nil
	}
	return rm.Players()
}

// RemoveRoom deletes the room.
//
// Postcondition: Returns true if the room existed.
func (g *Registry) RemoveRoom(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.rooms[id]; !ok {
		return false
	}
	delete(g.rooms, id)
	return true
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

func (g *Registry) get(id string) (Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rm, ok := g.rooms[id]
	return rm, ok
}
