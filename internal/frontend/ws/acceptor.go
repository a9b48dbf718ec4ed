// Package ws serves browser clients over websockets and hands their frames to
// the game server.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/splash/internal/config"
	"github.com/cory-johannsen/splash/internal/game/session"
	"github.com/cory-johannsen/splash/internal/observability"
)

// HealthPath is the liveness endpoint served next to the websocket path.
const HealthPath = "/healthz"

// Handler processes the frames of connected clients.
type Handler interface {
	// Dispatch handles one inbound frame from conn.
	Dispatch(ctx context.Context, conn session.Conn, frame []byte) error
	// Disconnect is called exactly once after conn's socket has closed.
	Disconnect(ctx context.Context, conn session.Conn)
}

// Acceptor listens for HTTP connections, upgrades requests on the configured
// path to websockets, and runs one read and one write goroutine per client.
type Acceptor struct {
	cfg      config.WebsocketConfig
	handler  Handler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	listener net.Listener
	srv      *http.Server
	clients  map[*Client]struct{}
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewAcceptor creates a websocket acceptor with the given configuration.
//
// Precondition: cfg must pass validation; handler and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.WebsocketConfig, handler Handler, logger *zap.Logger) *Acceptor {
	a := &Acceptor{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		clients: make(map[*Client]struct{}),
		quit:    make(chan struct{}),
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     a.checkOrigin,
	}
	return a
}

// Routes returns the HTTP handler serving the websocket and health endpoints.
func (a *Acceptor) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(a.cfg.Path, a.serveWS).Methods(http.MethodGet)
	r.HandleFunc(HealthPath, a.serveHealth).Methods(http.MethodGet)
	return r
}

// ListenAndServe starts the HTTP listener and serves clients until Stop is called.
// This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           a.Routes(),
		ReadHeaderTimeout: a.cfg.WriteTimeout,
	}

	a.mu.Lock()
	a.listener = listener
	a.srv = srv
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", a.cfg.Path),
		zap.Duration("startup", time.Since(start)),
	)

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", err)
	}
	return nil
}

// checkOrigin accepts requests without an Origin header and, when
// AllowedOrigins is non-empty, only the listed origins.
func (a *Acceptor) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(a.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range a.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	a.logger.Warn("rejecting websocket origin", zap.String("origin", origin))
	return false
}

func (a *Acceptor) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	select {
	case <-a.quit:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	raw, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Debug("websocket upgrade failed",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	id := uuid.NewString()
	client := newClient(id, r.RemoteAddr, raw, a.cfg, observability.ConnLogger(a.logger, id, r.RemoteAddr))
	if !a.track(client) {
		client.Close()
		_ = raw.Close()
		return
	}
	a.handleClient(client)
}

// track registers client so Stop can close it.
//
// Postcondition: Returns false if the acceptor is stopping.
func (a *Acceptor) track(c *Client) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case <-a.quit:
		return false
	default:
	}
	a.clients[c] = struct{}{}
	a.wg.Add(1)
	return true
}

func (a *Acceptor) untrack(c *Client) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.clients, c)
}

// handleClient runs one client session to completion.
func (a *Acceptor) handleClient(c *Client) {
	defer a.wg.Done()
	defer a.untrack(c)
	start := time.Now()

	c.logger.Info("client connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-a.quit:
			cancel()
			c.Close()
		case <-ctx.Done():
		}
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump(ctx, a.handler)

	a.handler.Disconnect(context.WithoutCancel(ctx), c)
	c.Close()
	<-writerDone

	c.logger.Info("client disconnected", zap.Duration("duration", time.Since(start)))
}

// Stop gracefully stops the acceptor, closing the listener and every client
// and waiting for their sessions to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.quit)
	srv := a.srv
	clients := make([]*Client, 0, len(a.clients))
	for c := range a.clients {
		clients = append(clients, c)
	}
	a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Warn("http shutdown", zap.Error(err))
	}
	for _, c := range clients {
		c.Close()
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// ClientCount returns the number of connected clients.
func (a *Acceptor) ClientCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.clients)
}
