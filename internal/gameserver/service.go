package gameserver

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/splash/internal/game/room"
	"github.com/cory-johannsen/splash/internal/game/session"
	"github.com/cory-johannsen/splash/internal/protocol"
)

// GameService composes the room Registry and the connection Directory into
// the handlers for every inbound message type.
type GameService struct {
	rooms   *room.Registry
	conns   *session.Directory
	factory room.Factory
	driver  *Driver
	logger  *zap.Logger

	// membership serialises joining a room with reaping an abandoned one, so
	// a room is never removed between a player joining it and registering.
	membership sync.Mutex
}

// NewGameService creates a GameService with the given dependencies.
//
// Precondition: every argument must be non-nil.
// Postcondition: Returns a GameService ready to be routed.
func NewGameService(
	rooms *room.Registry,
	conns *session.Directory,
	factory room.Factory,
	driver *Driver,
	logger *zap.Logger,
) *GameService {
	return &GameService{
		rooms:   rooms,
		conns:   conns,
		factory: factory,
		driver:  driver,
		logger:  logger,
	}
}

// Routes returns the fixed message type to handler table.
func (s *GameService) Routes() []Route {
	return []Route{
		{Type: protocol.TypeCreateRoom, Handle: s.handleCreateRoom},
		{Type: protocol.TypeJoinRoom, Handle: s.handleJoinRoom},
		{Type: protocol.TypeRejoinRoom, Handle: s.handleRejoinRoom},
		{Type: protocol.TypeStartRoom, Handle: s.handleStartRoom},
		{Type: protocol.TypeSubmitAnswer, Handle: s.handleSubmitAnswer},
		{Type: protocol.TypeSubmitVote, Handle: s.handleSubmitVote},
	}
}

// NewRouter builds a Router over Routes.
func (s *GameService) NewRouter() (*Router, error) {
	return NewRouter(s.Routes(), s.logger)
}

// Endpoint is what a transport talks to: frames go through the Router and
// closed connections through the service's disconnect handling.
type Endpoint struct {
	*Router
	svc *GameService
}

// NewEndpoint builds an Endpoint over the service's routes.
func (s *GameService) NewEndpoint() (*Endpoint, error) {
	r, err := s.NewRouter()
	if err != nil {
		return nil, err
	}
	return &Endpoint{Router: r, svc: s}, nil
}

// Disconnect forwards to GameService.Disconnect.
func (e *Endpoint) Disconnect(ctx context.Context, conn session.Conn) {
	e.svc.Disconnect(ctx, conn)
}

// Disconnect unregisters conn. Remaining room members receive a user_update;
// a room left without connections is removed once it is not mid-game.
func (s *GameService) Disconnect(ctx context.Context, conn session.Conn) {
	s.membership.Lock()
	dep, ok := s.conns.Unregister(conn)
	if ok && !dep.Notify() {
		s.reapRoom(dep.Room)
	}
	s.membership.Unlock()
	if !ok {
		return
	}
	s.logger.Info("user disconnected",
		zap.String("room", dep.Room),
		zap.String("user", dep.User),
		zap.Int("remaining", dep.Remaining),
		zap.Int("connections", s.conns.ConnCount()),
		zap.Int("occupied_rooms", s.conns.RoomCount()),
	)
	if dep.Notify() {
		s.broadcastUsers(ctx, dep.Room)
	}
}

// reapRoom removes an abandoned room from the registry when nobody could
// still rejoin it meaningfully: the lobby or a finished game.
//
// Precondition: s.membership is held.
func (s *GameService) reapRoom(roomID string) {
	if s.conns.RoomExists(roomID) {
		return
	}
	_, state, _ := s.rooms.QueryState(roomID, room.Anonymous)
	if state != room.StateWaitingToStart && state != room.StateDone {
		return
	}
	if s.rooms.RemoveRoom(roomID) {
		s.logger.Info("room removed", zap.String("room", roomID), zap.String("state", string(state)))
	}
}

// enter runs a registry membership operation and, on success, attaches conn
// as (roomID, user), all under s.membership.
func (s *GameService) enter(ctx context.Context, conn session.Conn, roomID, user string, op func() room.Code) room.Code {
	s.membership.Lock()
	defer s.membership.Unlock()
	code := op()
	if code.OK() {
		s.attach(ctx, conn, roomID, user)
	}
	return code
}

// attach registers conn as (roomID, user). A connection that was already
// acting as someone else in another room leaves that room first.
//
// Precondition: s.membership is held.
func (s *GameService) attach(ctx context.Context, conn session.Conn, roomID, user string) {
	prev, hadPrev := s.conns.Lookup(conn)
	s.conns.Register(conn, roomID, user)
	if !hadPrev || prev.Room == roomID {
		return
	}
	if s.conns.RoomExists(prev.Room) {
		s.broadcastUsers(ctx, prev.Room)
		return
	}
	s.reapRoom(prev.Room)
}

func (s *GameService) handleCreateRoom(ctx context.Context, conn session.Conn, req protocol.Request) error {
	roomID, err := s.rooms.CreateRoom(s.factory)
	if err != nil {
		s.logger.Error("creating room", zap.String("user", req.User), zap.Error(err))
		return reply(ctx, conn, protocol.NewError("Failed to create room", req.RequestID))
	}
	join := func() room.Code { return s.rooms.JoinRoom(roomID, req.User) }
	if code := s.enter(ctx, conn, roomID, req.User, join); !code.OK() {
		return sendCode(ctx, conn, code, req.RequestID)
	}
	if err := reply(ctx, conn, protocol.NewJoinRoomOK(roomID, req.User, req.RequestID)); err != nil {
		return err
	}
	s.broadcastUsers(ctx, roomID)
	s.logger.Info("room created", zap.String("room", roomID), zap.String("user", req.User))
	return nil
}

func (s *GameService) handleJoinRoom(ctx context.Context, conn session.Conn, req protocol.Request) error {
	join := func() room.Code { return s.rooms.JoinRoom(req.Room, req.User) }
	if code := s.enter(ctx, conn, req.Room, req.User, join); !code.OK() {
		return sendCode(ctx, conn, code, req.RequestID)
	}
	// The confirmation is queued on conn before the broadcast is issued, so
	// the joiner always sees join_room_ok ahead of user_update.
	if err := reply(ctx, conn, protocol.NewJoinRoomOK(req.Room, req.User, req.RequestID)); err != nil {
		return err
	}
	s.broadcastUsers(ctx, req.Room)
	s.logger.Info("user joined", zap.String("room", req.Room), zap.String("user", req.User))
	return nil
}

func (s *GameService) handleRejoinRoom(ctx context.Context, conn session.Conn, req protocol.Request) error {
	rejoin := func() room.Code { return s.rooms.RejoinRoom(req.Room, req.User) }
	switch code := s.enter(ctx, conn, req.Room, req.User, rejoin); code {
	case room.Success:
	case room.RoomNotFound:
		return reply(ctx, conn, protocol.NewRoomNotFound(req.RequestID))
	default:
		return sendCode(ctx, conn, code, req.RequestID)
	}

	if err := reply(ctx, conn, protocol.NewRejoinRoomOK(req.Room, req.User, req.RequestID)); err != nil {
		return err
	}
	s.broadcastUsers(ctx, req.Room)

	if err := s.sync(ctx, conn, req.Room, req.User); err != nil {
		s.logger.Warn("syncing rejoined user",
			zap.String("room", req.Room),
			zap.String("user", req.User),
			zap.Error(err),
		)
	}
	s.resume(req.Room)
	s.logger.Info("user rejoined", zap.String("room", req.Room), zap.String("user", req.User))
	return nil
}

// sync sends a rejoining user the message for the room's current phase so
// their client can jump straight to it.
func (s *GameService) sync(ctx context.Context, conn session.Conn, roomID, user string) error {
	code, state, view := s.rooms.QueryState(roomID, user)
	if !code.OK() && state != room.StateWaitingToStart {
		return fmt.Errorf("querying room %s for %s: %s", roomID, user, code)
	}
	msg, err := phaseMessage(state, view)
	if err != nil || msg == nil {
		return err
	}
	return reply(ctx, conn, msg)
}

// identify resolves conn's registered identity and checks it against the
// room and user claimed by req. claimsUser is false for messages that only
// name a room.
//
// Postcondition: Returns the identity and true, or false after replying to
// conn with the appropriate error.
func (s *GameService) identify(ctx context.Context, conn session.Conn, req protocol.Request, action string, claimsUser bool) (session.Identity, bool, error) {
	id, ok := s.conns.Lookup(conn)
	if !ok {
		return id, false, reply(ctx, conn, protocol.NewError("Must be in a room to "+action, req.RequestID))
	}
	if req.Room != id.Room || (claimsUser && req.User != id.User) {
		s.logger.Warn("identity mismatch",
			zap.String("conn", conn.ID()),
			zap.String("claimed_room", req.Room),
			zap.String("claimed_user", req.User),
			zap.String("room", id.Room),
			zap.String("user", id.User),
			zap.String("action", action),
		)
		return id, false, sendCode(ctx, conn, room.InvalidData, req.RequestID)
	}
	return id, true, nil
}

func (s *GameService) handleStartRoom(ctx context.Context, conn session.Conn, req protocol.Request) error {
	id, ok, err := s.identify(ctx, conn, req, "start game", false)
	if !ok {
		return err
	}
	if code := s.rooms.StartRoom(id.Room); !code.OK() {
		return sendCode(ctx, conn, code, req.RequestID)
	}
	s.logger.Info("room started", zap.String("room", id.Room), zap.String("user", id.User))
	s.broadcastPhase(ctx, id.Room)
	return nil
}

func (s *GameService) handleSubmitAnswer(ctx context.Context, conn session.Conn, req protocol.Request) error {
	id, ok, err := s.identify(ctx, conn, req, "submit answer", true)
	if !ok {
		return err
	}
	code, state := s.rooms.Submit(id.Room, id.User, room.AnswerPayload(string(*req.Answer)))
	if !code.OK() {
		return sendCode(ctx, conn, code, req.RequestID)
	}
	s.logger.Debug("answer submitted",
		zap.String("room", id.Room),
		zap.String("user", id.User),
		zap.String("state", string(state)),
	)
	if state == room.StateVoting {
		s.broadcastPhase(ctx, id.Room)
	}
	return nil
}

func (s *GameService) handleSubmitVote(ctx context.Context, conn session.Conn, req protocol.Request) error {
	id, ok, err := s.identify(ctx, conn, req, "submit vote", true)
	if !ok {
		return err
	}
	code, state := s.rooms.Submit(id.Room, id.User, room.VotePayload(string(*req.VotedForAnswerID)))
	if !code.OK() {
		return sendCode(ctx, conn, code, req.RequestID)
	}
	s.logger.Debug("vote submitted",
		zap.String("room", id.Room),
		zap.String("user", id.User),
		zap.String("state", string(state)),
	)
	if state == room.StateShowingResults {
		s.broadcastPhase(ctx, id.Room)
		s.driver.Schedule(id.Room)
	}
	return nil
}

// resume schedules the advance of a room showing results that has none
// pending, as happens when every player left before the last one ran.
func (s *GameService) resume(roomID string) {
	_, state, _ := s.rooms.QueryState(roomID, room.Anonymous)
	if state != room.StateShowingResults {
		return
	}
	if s.driver.Schedule(roomID) {
		s.logger.Info("resuming stalled room", zap.String("room", roomID))
	}
}

// broadcastUsers sends the room's connected users to everyone in it.
func (s *GameService) broadcastUsers(ctx context.Context, roomID string) {
	data, err := protocol.Encode(protocol.NewUserUpdate(s.conns.ListUsers(roomID)))
	if err != nil {
		s.logger.Error("encoding user_update", zap.Error(err))
		return
	}
	n := s.conns.Broadcast(ctx, roomID, data)
	s.logger.Debug("user_update sent", zap.String("room", roomID), zap.Int("delivered", n))
}

// broadcastPhase sends every connected member the view of the room's
// current phase, personalised per user.
func (s *GameService) broadcastPhase(ctx context.Context, roomID string) {
	broadcastPhase(ctx, s.rooms, s.conns, s.logger, roomID)
}

func broadcastPhase(ctx context.Context, rooms *room.Registry, conns *session.Directory, logger *zap.Logger, roomID string) int {
	n := conns.BroadcastFunc(ctx, roomID, func(user string) ([]byte, error) {
		code, state, view := rooms.QueryState(roomID, user)
		if !code.OK() {
			return nil, fmt.Errorf("querying state: %s", code)
		}
		msg, err := phaseMessage(state, view)
		if err != nil {
			return nil, err
		}
		if msg == nil {
			return nil, fmt.Errorf("nothing to show in state %s", state)
		}
		return protocol.Encode(msg)
	})
	logger.Debug("phase sent", zap.String("room", roomID), zap.Int("delivered", n))
	return n
}

// sendCode replies with an error carrying the code's name.
func sendCode(ctx context.Context, conn session.Conn, code room.Code, requestID string) error {
	return reply(ctx, conn, protocol.NewError(code.String(), requestID))
}
