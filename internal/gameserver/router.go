package gameserver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/splash/internal/game/session"
	"github.com/cory-johannsen/splash/internal/protocol"
)

// HandlerFunc handles one decoded inbound message from conn.
type HandlerFunc func(ctx context.Context, conn session.Conn, req protocol.Request) error

// Route binds an inbound message type tag to its handler.
type Route struct {
	Type   string
	Handle HandlerFunc
}

// Router maps inbound message type tags to handlers.
type Router struct {
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

// NewRouter creates a Router from the given routes.
//
// Precondition: No two routes may share a type tag; every Handle is non-nil.
// Postcondition: Returns a Router or an error on duplicate or unknown tags.
func NewRouter(routes []Route, logger *zap.Logger) (*Router, error) {
	r := &Router{
		handlers: make(map[string]HandlerFunc, len(routes)),
		logger:   logger,
	}
	for _, rt := range routes {
		if !protocol.Known(rt.Type) {
			return nil, fmt.Errorf("route for unknown message type %q", rt.Type)
		}
		if rt.Handle == nil {
			return nil, fmt.Errorf("route %q has no handler", rt.Type)
		}
		if _, exists := r.handlers[rt.Type]; exists {
			return nil, fmt.Errorf("duplicate route: %q", rt.Type)
		}
		r.handlers[rt.Type] = rt.Handle
	}
	return r, nil
}

// Types returns the number of routed message types.
func (r *Router) Types() int {
	return len(r.handlers)
}

// Dispatch decodes frame and runs the matching handler. Decode failures,
// unknown types, handler errors and handler panics are answered with an
// error message on conn; none of them close the connection.
//
// Postcondition: Returns an error only when replying to conn itself failed.
func (r *Router) Dispatch(ctx context.Context, conn session.Conn, frame []byte) (err error) {
	req, decodeErr := protocol.Decode(frame)

	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("handler panic",
				zap.String("type", req.Type),
				zap.String("conn", conn.ID()),
				zap.Any("panic", p),
			)
			err = reply(ctx, conn, protocol.NewError("Internal server error", req.RequestID))
		}
	}()

	if decodeErr != nil {
		r.logger.Debug("rejecting inbound frame",
			zap.String("conn", conn.ID()),
			zap.Error(decodeErr),
		)
		return reply(ctx, conn, protocol.NewError(invalidMessageText(decodeErr), req.RequestID))
	}

	handle, ok := r.handlers[req.Type]
	if !ok {
		r.logger.Warn("unknown message type",
			zap.String("type", req.Type),
			zap.String("conn", conn.ID()),
		)
		return reply(ctx, conn, protocol.NewError(fmt.Sprintf("Unknown message type: %s", req.Type), req.RequestID))
	}

	if err := handle(ctx, conn, req); err != nil {
		r.logger.Error("handler failed",
			zap.String("type", req.Type),
			zap.String("conn", conn.ID()),
			zap.Error(err),
		)
		return reply(ctx, conn, protocol.NewError("Internal server error", req.RequestID))
	}
	return nil
}

func invalidMessageText(err error) string {
	switch {
	case errors.Is(err, protocol.ErrMissingType):
		return "Message type is required"
	case errors.Is(err, protocol.ErrMalformed):
		return "Malformed message"
	default:
		return fmt.Sprintf("Invalid message: %v", err)
	}
}

// reply encodes msg and sends it to conn.
func reply(ctx context.Context, conn session.Conn, msg any) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if err := conn.Send(ctx, data); err != nil {
		return fmt.Errorf("replying to %s: %w", conn.ID(), err)
	}
	return nil
}
