package tasksync

import (
	"sync"

	"github.com/majorcontext/schedtrace/internal/sched"
)

// Cond is a condition variable bound to a task Mutex.
type Cond struct {
	L *Mutex

	mu      sync.Mutex
	waiters []*sched.BlockedTask
}

// NewCond returns a Cond using l.
func NewCond(l *Mutex) *Cond {
	return &Cond{L: l}
}

// Wait atomically unlocks c.L and deschedules t. c.L is locked again
// before Wait returns. As with sync.Cond, callers re-check their condition
// in a loop.
func (c *Cond) Wait(t *sched.Task) {
	t.Deschedule(1, func(b *sched.BlockedTask) bool {
		c.mu.Lock()
		c.waiters = append(c.waiters, b)
		c.mu.Unlock()
		c.L.Unlock()
		return true
	})
	c.L.Lock(t)
}

// Signal wakes one waiting task, if any.
func (c *Cond) Signal() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) > 0 {
		b := c.waiters[0]
		c.waiters[0] = nil
		c.waiters = c.waiters[1:]
		if b.Wake() {
			return
		}
	}
}

// Broadcast wakes every waiting task.
func (c *Cond) Broadcast() {
	c.mu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()
	for _, b := range waiters {
		b.Wake()
	}
}
