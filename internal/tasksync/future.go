package tasksync

import (
	"errors"
	"sync"

	"github.com/majorcontext/schedtrace/internal/sched"
)

// ErrAbandoned is returned by Get when the task computing the value
// panicked.
var ErrAbandoned = errors.New("future abandoned by its task")

// Future is the result of a task started with Spawn.
type Future[T any] struct {
	mu      sync.Mutex
	done    bool
	val     T
	err     error
	waiters []*sched.BlockedTask
}

// Spawn runs body in a sibling task and returns a Future for its result.
func Spawn[T any](t *sched.Task, body func(*sched.Task) T) (*Future[T], error) {
	f := &Future[T]{}
	err := t.Spawn(func(child *sched.Task) {
		completed := false
		defer func() {
			if !completed {
				var zero T
				f.complete(zero, ErrAbandoned)
			}
		}()
		v := body(child)
		completed = true
		f.complete(v, nil)
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Future[T]) complete(v T, err error) {
	f.mu.Lock()
	f.done = true
	f.val = v
	f.err = err
	waiters := f.waiters
	f.waiters = nil
	f.mu.Unlock()
	for _, b := range waiters {
		b.Wake()
	}
}

// Get deschedules t until the value is ready.
func (f *Future[T]) Get(t *sched.Task) (T, error) {
	for {
		f.mu.Lock()
		if f.done {
			v, err := f.val, f.err
			f.mu.Unlock()
			return v, err
		}
		f.mu.Unlock()

		t.Deschedule(1, func(b *sched.BlockedTask) bool {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.done {
				return false
			}
			f.waiters = append(f.waiters, b)
			return true
		})
	}
}

// Ready reports whether Get would return without blocking.
func (f *Future[T]) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}
