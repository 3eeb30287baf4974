// Package channel implements the mailbox primitive used for both an
// agent's inbox and a caller's reply stream: an ordered, closeable,
// optionally bounded queue of envelopes.
package channel

import (
	"context"
	"sync"

	"github.com/aixgo-dev/agentrt/envelope"
	"github.com/aixgo-dev/agentrt/rterr"
)

// Channel is a single-writer-many-times, single-reader mailbox. The
// zero value is not usable; construct with New or NewUnbounded.
type Channel struct {
	mu     sync.Mutex
	buf    []envelope.Envelope
	cap    int // 0 means unbounded
	closed bool

	notEmpty chan struct{} // signalled (recreated) whenever buf grows from empty or closes
	notFull  chan struct{} // signalled (recreated) whenever buf shrinks from full
}

// New constructs a bounded channel. A capacity of 0 behaves like
// NewUnbounded.
func New(capacity int) *Channel {
	c := &Channel{cap: capacity}
	c.reset()
	return c
}

// NewUnbounded constructs a channel whose Write never blocks on
// capacity; backpressure for an unbounded channel is the reaper, per
// SPEC_FULL.md §5.
func NewUnbounded() *Channel {
	return New(0)
}

func (c *Channel) reset() {
	c.notEmpty = make(chan struct{})
	c.notFull = make(chan struct{})
}

// Write enqueues env. It blocks until there is room (for a bounded,
// full channel) or ctx is done, and fails with ErrChannelClosed if
// the channel is already closed.
func (c *Channel) Write(ctx context.Context, env envelope.Envelope) error {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return rterr.Wrap(rterr.ErrChannelClosed, "write to closed channel", nil)
		}
		if c.cap == 0 || len(c.buf) < c.cap {
			wasEmpty := len(c.buf) == 0
			c.buf = append(c.buf, env)
			if wasEmpty {
				close(c.notEmpty)
				c.notEmpty = make(chan struct{})
			}
			c.mu.Unlock()
			return nil
		}
		full := c.notFull
		c.mu.Unlock()

		select {
		case <-full:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Read dequeues the next envelope in FIFO order, blocking until one
// is available, the channel closes and drains (ok=false), or ctx is
// done.
func (c *Channel) Read(ctx context.Context) (env envelope.Envelope, ok bool, err error) {
	for {
		c.mu.Lock()
		if len(c.buf) > 0 {
			env = c.buf[0]
			c.buf = c.buf[1:]
			wasFull := c.cap > 0 && len(c.buf) == c.cap-1
			if wasFull && !c.closed {
				close(c.notFull)
				c.notFull = make(chan struct{})
			}
			c.mu.Unlock()
			return env, true, nil
		}
		if c.closed {
			c.mu.Unlock()
			return envelope.Envelope{}, false, nil
		}
		empty := c.notEmpty
		c.mu.Unlock()

		select {
		case <-empty:
		case <-ctx.Done():
			return envelope.Envelope{}, false, ctx.Err()
		}
	}
}

// Close marks the channel closed. Pending reads still drain buffered
// envelopes before signalling end-of-stream; further writes fail.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.notEmpty)
	close(c.notFull)
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Len reports the number of buffered, undelivered envelopes.
func (c *Channel) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}
