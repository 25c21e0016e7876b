package sched

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrSchedulerMissing is reported when a task's slot is unexpectedly empty.
	ErrSchedulerMissing = errors.New("no scheduler installed in task")

	// ErrSchedulerInstalled is reported when a scheduler is put into an occupied slot.
	ErrSchedulerInstalled = errors.New("scheduler already installed in task")
)

// SlotError is the panic value raised on scheduler slot misuse.
type SlotError struct {
	Task string
	Err  error
}

func (e *SlotError) Error() string {
	return fmt.Sprintf("task %q: %v", e.Task, e.Err)
}

func (e *SlotError) Unwrap() error { return e.Err }

// Task is the execution context of one cooperative task. It holds the
// scheduler currently governing the task and is passed explicitly to every
// task body.
type Task struct {
	name string

	mu sync.Mutex
	rt Scheduler
}

// NewTask creates a task context with an empty scheduler slot.
func NewTask(name string) *Task {
	return &Task{name: name}
}

// Name returns the task's label.
func (t *Task) Name() string {
	return t.name
}

// PutScheduler installs s as the active scheduler. The slot must be empty.
func (t *Task) PutScheduler(s Scheduler) {
	if s == nil {
		panic(&SlotError{Task: t.name, Err: ErrSchedulerMissing})
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rt != nil {
		panic(&SlotError{Task: t.name, Err: ErrSchedulerInstalled})
	}
	t.rt = s
}

// TakeScheduler removes and returns the active scheduler. The slot must be
// occupied.
func (t *Task) TakeScheduler() Scheduler {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rt == nil {
		panic(&SlotError{Task: t.name, Err: ErrSchedulerMissing})
	}
	rt := t.rt
	t.rt = nil
	return rt
}

// Scheduler returns the active scheduler without removing it, or nil.
func (t *Task) Scheduler() Scheduler {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rt
}

// TakeAs removes the active scheduler if it has dynamic type R. On a type
// mismatch or an empty slot the slot is left untouched and ok is false.
func TakeAs[R Scheduler](t *Task) (rt R, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.rt == nil {
		return rt, false
	}
	rt, ok = t.rt.(R)
	if ok {
		t.rt = nil
	}
	return rt, ok
}

// Yield gives other tasks a chance to run.
func (t *Task) Yield() {
	t.TakeScheduler().YieldNow(t)
}

// MaybeYield lets the scheduler decide whether to yield.
func (t *Task) MaybeYield() {
	t.TakeScheduler().MaybeYield(t)
}

// Deschedule blocks the task. See Scheduler.Deschedule.
func (t *Task) Deschedule(times int, f func(*BlockedTask) bool) {
	t.TakeScheduler().Deschedule(times, t, f)
}

// Spawn starts body as a sibling task with default options.
func (t *Task) Spawn(body func(*Task)) error {
	return t.SpawnWith(TaskOpts{}, body)
}

// SpawnWith starts body as a sibling task.
func (t *Task) SpawnWith(opts TaskOpts, body func(*Task)) error {
	return t.TakeScheduler().SpawnSibling(t, opts, body)
}

// ThreadID returns the id of the worker thread running the task, or 0.
func (t *Task) ThreadID() uint64 {
	rt := t.Scheduler()
	if rt == nil {
		return 0
	}
	io, ok := rt.LocalIO()
	if !ok || io == nil {
		return 0
	}
	return io.ThreadID()
}

// CanBlock reports whether the task may block its OS thread.
func (t *Task) CanBlock() bool {
	rt := t.Scheduler()
	return rt != nil && rt.CanBlock()
}

// StackBounds reports the task's stack limits.
func (t *Task) StackBounds() (lo, hi uintptr) {
	rt := t.Scheduler()
	if rt == nil {
		return 0, 0
	}
	return rt.StackBounds()
}

func (t *Task) reawaken() {
	t.TakeScheduler().Reawaken(t)
}
