// Package sched defines the capability set every cooperative scheduler
// exposes to the tasks it runs, and the explicit task context through which
// application code reaches the scheduler currently active for it.
//
// A Task carries a single scheduler slot. Lifecycle operations move the
// scheduler out of the slot, hand it the task, and rely on the scheduler to
// put a scheduler back before control returns to the task:
//
//	rt := t.TakeScheduler()
//	rt.YieldNow(t) // rt (or a replacement) is back in t's slot on return
//
// This ownership transfer is what lets a decorator sit in the slot, forward
// the call to the scheduler it wraps, and reinstall itself afterwards.
package sched

// Scheduler is the operation set a scheduler implementation must provide.
//
// YieldNow, MaybeYield, Deschedule, Reawaken and SpawnSibling consume the
// receiver: the caller has already removed it from the task's slot, and the
// implementation must reinstall a scheduler into that slot before the task
// runs again. LocalIO, StackBounds and CanBlock are plain borrows.
type Scheduler interface {
	// YieldNow gives the current worker to other runnable tasks.
	YieldNow(t *Task)

	// MaybeYield is a hint; the scheduler decides whether to yield.
	MaybeYield(t *Task)

	// Deschedule suspends t. f is called once per selectable handle (at
	// least one, at most times) from the scheduler's context. If f returns
	// false the task does not stay blocked and is resumed immediately.
	Deschedule(times int, t *Task, f func(*BlockedTask) bool)

	// Reawaken makes a previously blocked task runnable again.
	Reawaken(t *Task)

	// SpawnSibling creates a new task running body on the same worker pool.
	// It does not wait for the child.
	SpawnSibling(t *Task, opts TaskOpts, body func(*Task)) error

	// LocalIO returns the I/O driver of the worker running the task.
	LocalIO() (LocalIO, bool)

	// StackBounds reports the task's stack limits.
	StackBounds() (lo, hi uintptr)

	// CanBlock reports whether the task may block its OS thread.
	CanBlock() bool
}

// LocalIO is the per-worker I/O driver handle. Only its thread identity is
// used outside the scheduler.
type LocalIO interface {
	// ThreadID returns a small stable integer naming the worker thread.
	ThreadID() uint64
}

// TaskOpts configures a spawned task.
type TaskOpts struct {
	// Name is a human-readable label; the scheduler picks one if empty.
	Name string

	// StackSize overrides the scheduler's default stack size.
	StackSize uintptr

	// OnExit is called with the task's failure (nil on success) after its
	// body returns.
	OnExit func(err error)
}
