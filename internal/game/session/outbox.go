// Package session tracks which live connection belongs to which (room, user)
// identity and delivers outbound messages to them.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutboxClosed is returned by Push after Close.
var ErrOutboxClosed = errors.New("outbox closed")

// ErrOutboxFull is returned by Push when the buffer has no free slot.
var ErrOutboxFull = errors.New("outbox full")

// Outbox is a connection's ordered, bounded queue of serialized outbound
// messages. A single writer goroutine drains Messages, so messages pushed
// in order are written in order.
type Outbox struct {
	id       string
	messages chan []byte
	mu       sync.Mutex
	closed   bool
}

// NewOutbox creates an Outbox for the connection with the given id.
//
// Precondition: id must be non-empty.
// Postcondition: Returns an Outbox with an open channel of bufferSize slots
// (64 when bufferSize <= 0).
func NewOutbox(id string, bufferSize int) *Outbox {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Outbox{
		id:       id,
		messages: make(chan []byte, bufferSize),
	}
}

// ID returns the owning connection's id.
func (o *Outbox) ID() string {
	return o.id
}

// Push enqueues data without blocking.
//
// Precondition: data must be non-nil.
// Postcondition: data is enqueued, or an error wrapping ErrOutboxClosed or
// ErrOutboxFull is returned.
func (o *Outbox) Push(data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxClosed)
	}
	select {
	case o.messages <- data:
		return nil
	default:
		return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxFull)
	}
}

// Messages returns the read-only queue drained by the connection's writer.
func (o *Outbox) Messages() <-chan []byte {
	return o.messages
}

// Close marks the outbox closed and closes the queue.
//
// Postcondition: Messages is closed. Further Push calls return an error.
func (o *Outbox) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.messages)
	}
	return nil
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
