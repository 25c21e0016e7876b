// Package tasksync provides synchronisation primitives for cooperative
// tasks. Waiting never blocks a worker thread: a waiting task deschedules
// itself and is woken through its BlockedTask handle.
package tasksync

import (
	"sync"

	"github.com/majorcontext/schedtrace/internal/sched"
)

// Mutex is a task mutex with FIFO hand-off: Unlock passes ownership
// straight to the longest waiting task.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters []*sched.BlockedTask
}

// Lock acquires m, descheduling t while another task holds it.
func (m *Mutex) Lock(t *sched.Task) {
	m.mu.Lock()
	if !m.locked {
		m.locked = true
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	t.Deschedule(1, func(b *sched.BlockedTask) bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		if !m.locked {
			m.locked = true
			return false
		}
		m.waiters = append(m.waiters, b)
		return true
	})
}

// TryLock acquires m if it is free.
func (m *Mutex) TryLock() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locked {
		return false
	}
	m.locked = true
	return true
}

// Unlock releases m. It may be called from any task, or from a deschedule
// callback.
func (m *Mutex) Unlock() {
	m.mu.Lock()
	if !m.locked {
		m.mu.Unlock()
		panic("tasksync: unlock of unlocked mutex")
	}
	for len(m.waiters) > 0 {
		b := m.waiters[0]
		m.waiters[0] = nil
		m.waiters = m.waiters[1:]
		m.mu.Unlock()
		if b.Wake() {
			return
		}
		m.mu.Lock()
	}
	m.locked = false
	m.mu.Unlock()
}
