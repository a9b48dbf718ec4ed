package gameserver

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/splash/internal/game/room"
	"github.com/cory-johannsen/splash/internal/game/session"
)

// DriverConfig holds the pauses the Driver leaves between phases.
type DriverConfig struct {
	// ResultsDelay is how long results stay on screen before the round advances.
	ResultsDelay time.Duration
	// PromptDelay is the pause between advancing and showing the next prompt.
	PromptDelay time.Duration
}

// Driver moves rooms past ShowingResults without any client action. Each
// scheduled advance runs in its own goroutine, tracked until Stop.
type Driver struct {
	rooms  *room.Registry
	conns  *session.Directory
	cfg    DriverConfig
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]bool
}

// NewDriver creates a Driver whose scheduled advances are cancelled when ctx
// is done or Stop is called.
//
// Precondition: rooms, conns and logger must be non-nil; delays must be >= 0.
func NewDriver(ctx context.Context, rooms *room.Registry, conns *session.Directory, cfg DriverConfig, logger *zap.Logger) *Driver {
	ctx, cancel := context.WithCancel(ctx)
	return &Driver{
		rooms:   rooms,
		conns:   conns,
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]bool),
	}
}

// Schedule advances roomID after ResultsDelay without blocking the caller.
// At most one advance per room is pending at a time; calls while one is
// pending, and calls after Stop, are ignored.
//
// Postcondition: Returns true if a new advance was scheduled.
func (d *Driver) Schedule(roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx.Err() != nil || d.pending[roomID] {
		return false
	}
	d.pending[roomID] = true
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		err := wait(d.ctx, d.cfg.ResultsDelay)
		// Cleared before the room is inspected, so a player registering
		// after this point either is seen by Advance or can schedule anew.
		d.mu.Lock()
		delete(d.pending, roomID)
		d.mu.Unlock()
		if err != nil {
			return
		}
		d.Advance(d.ctx, roomID)
	}()
	return true
}

// Pending reports whether an advance of roomID is waiting to run.
func (d *Driver) Pending(roomID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending[roomID]
}

// Advance pulses roomID once and shows its members what comes next: the next
// prompt after PromptDelay, or the game-over notice. A room that vanished or
// has nobody connected is left alone.
//
// Postcondition: Returns the room's state after the pulse, or StateUnknown
// when nothing was advanced.
func (d *Driver) Advance(ctx context.Context, roomID string) room.State {
	users := d.conns.ListUsers(roomID)
	if len(users) == 0 {
		d.logger.Debug("skipping advance of empty room", zap.String("room", roomID))
		return room.StateUnknown
	}

	code, state := d.rooms.Submit(roomID, users[0], room.Payload{})
	if !code.OK() {
		d.logger.Debug("advance rejected",
			zap.String("room", roomID),
			zap.String("code", code.String()),
			zap.String("state", string(state)),
		)
		return room.StateUnknown
	}
	d.logger.Info("round advanced", zap.String("room", roomID), zap.String("state", string(state)))

	switch state {
	case room.StateCollectingAnswers:
		if err := wait(ctx, d.cfg.PromptDelay); err != nil {
			return state
		}
		broadcastPhase(ctx, d.rooms, d.conns, d.logger, roomID)
	case room.StateDone:
		broadcastPhase(ctx, d.rooms, d.conns, d.logger, roomID)
	}
	return state
}

// Wait blocks until every scheduled advance has finished.
func (d *Driver) Wait() {
	d.wg.Wait()
}

// Stop cancels pending advances and waits for running ones to return.
func (d *Driver) Stop() {
	d.mu.Lock()
	d.cancel()
	d.mu.Unlock()
	d.wg.Wait()
}

// wait pauses for dur or until ctx is done.
//
// Postcondition: Returns nil after dur, or ctx.Err() if cancelled first.
func wait(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
