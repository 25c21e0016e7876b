package tasksync

import (
	"errors"
	"sync"

	"github.com/majorcontext/schedtrace/internal/sched"
)

// ErrClosed is returned by Send on a closed Chan.
var ErrClosed = errors.New("send on closed channel")

// Chan is an unbounded FIFO channel between tasks. Send never blocks.
type Chan[T any] struct {
	mu     sync.Mutex
	buf    []T
	closed bool
	recvq  []*sched.BlockedTask
}

// NewChan returns an empty channel.
func NewChan[T any]() *Chan[T] {
	return &Chan[T]{}
}

// Send queues v and wakes a receiver.
func (c *Chan[T]) Send(t *sched.Task, v T) error {
	t.MaybeYield()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.buf = append(c.buf, v)
	var w *sched.BlockedTask
	if len(c.recvq) > 0 {
		w = c.recvq[0]
		c.recvq[0] = nil
		c.recvq = c.recvq[1:]
	}
	c.mu.Unlock()

	if w != nil {
		w.Wake()
	}
	return nil
}

// Recv returns the next value. ok is false once the channel is closed and
// drained.
func (c *Chan[T]) Recv(t *sched.Task) (v T, ok bool) {
	t.MaybeYield()

	for {
		c.mu.Lock()
		if len(c.buf) > 0 {
			v = c.buf[0]
			var zero T
			c.buf[0] = zero
			c.buf = c.buf[1:]
			c.mu.Unlock()
			return v, true
		}
		if c.closed {
			c.mu.Unlock()
			return v, false
		}
		c.mu.Unlock()

		t.Deschedule(1, func(b *sched.BlockedTask) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if len(c.buf) > 0 || c.closed {
				return false
			}
			c.recvq = append(c.recvq, b)
			return true
		})
	}
}

// Close marks the channel closed and wakes every receiver. Values already
// queued can still be received.
func (c *Chan[T]) Close() {
	c.mu.Lock()
	c.closed = true
	waiters := c.recvq
	c.recvq = nil
	c.mu.Unlock()
	for _, b := range waiters {
		b.Wake()
	}
}

// Len returns the number of queued values.
func (c *Chan[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}
