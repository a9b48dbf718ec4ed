package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/cory-johannsen/splash/internal/config"
	"github.com/cory-johannsen/splash/internal/game/session"
	"github.com/cory-johannsen/splash/internal/protocol"
)

// rateLimitedText is sent when a client exceeds its inbound message budget.
const rateLimitedText = "Too many messages, slow down"

// Client is one browser websocket connection. Outbound frames go through an
// Outbox drained by a single writer, so a client observes messages in the
// order they were sent to it.
type Client struct {
	id         string
	remoteAddr string
	ws         *websocket.Conn
	outbox     *session.Outbox
	limiter    *rate.Limiter
	cfg        config.WebsocketConfig
	logger     *zap.Logger
	closeOnce  sync.Once
}

// newClient wraps an upgraded websocket connection.
//
// Precondition: ws must be a freshly upgraded connection; logger non-nil.
func newClient(id, remoteAddr string, ws *websocket.Conn, cfg config.WebsocketConfig, logger *zap.Logger) *Client {
	return &Client{
		id:         id,
		remoteAddr: remoteAddr,
		ws:         ws,
		outbox:     session.NewOutbox(id, cfg.SendBuffer),
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		cfg:        cfg,
		logger:     logger,
	}
}

// ID returns the connection's unique id.
func (c *Client) ID() string {
	return c.id
}

// RemoteAddr returns the peer address reported at upgrade time.
func (c *Client) RemoteAddr() string {
	return c.remoteAddr
}

// Send queues msg for the writer without blocking. A client whose queue is
// full is too slow to keep up and is disconnected.
//
// Postcondition: msg is queued, or an error is returned.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := c.outbox.Push(msg)
	if errors.Is(err, session.ErrOutboxFull) {
		c.logger.Warn("send queue full, disconnecting client")
		c.Close()
	}
	return err
}

// Close stops the writer, which sends a close frame and closes the socket.
// Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		_ = c.outbox.Close()
	})
}

// readPump feeds inbound frames to handler in receipt order until the socket
// fails or ctx is cancelled.
func (c *Client) readPump(ctx context.Context, handler Handler) {
	c.ws.SetReadLimit(c.cfg.MaxMessageSize)
	c.extendReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("websocket read failed", zap.Error(err))
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.extendReadDeadline()
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}

		if !c.limiter.Allow() {
			c.logger.Debug("inbound message rate limited")
			if err := c.sendError(ctx, rateLimitedText); err != nil {
				return
			}
			continue
		}

		if err := handler.Dispatch(ctx, c, data); err != nil {
			c.logger.Debug("dispatch could not reply", zap.Error(err))
			return
		}
	}
}

// writePump drains the outbox onto the socket and keeps the connection alive
// with pings.
//
// Postcondition: the socket is closed when writePump returns.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbox.Messages():
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("websocket ping failed", zap.Error(err))
				c.Close()
				return
			}
		}
	}
}

func (c *Client) extendReadDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
}

func (c *Client) sendError(ctx context.Context, text string) error {
	data, err := protocol.Encode(protocol.NewError(text, ""))
	if err != nil {
		return err
	}
	return c.Send(ctx, data)
}
