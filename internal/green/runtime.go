package green

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"github.com/majorcontext/schedtrace/internal/sched"
)

var (
	errReaped = errors.New("task reaped after run ended")
	errGoexit = errors.New("task goroutine exited early")
)

type abortReason struct {
	err error
}

// Runtime is the scheduler installed in every task of a Pool. Each task
// owns exactly one Runtime and is backed by its own goroutine.
type Runtime struct {
	pool   *Pool
	q      *runQueue
	task   *sched.Task
	name   string
	stack  uintptr
	onExit func(error)

	resume chan *worker
	abort  atomic.Pointer[abortReason]

	// Only touched by the task goroutine.
	worker *worker
	maybe  int
}

var _ sched.Scheduler = (*Runtime)(nil)

// Name returns the name of the task this runtime drives.
func (rt *Runtime) Name() string {
	return rt.name
}

func (rt *Runtime) own(t *sched.Task) {
	if t != rt.task {
		panic(fmt.Sprintf("green: runtime of task %q invoked for task %q", rt.name, t.Name()))
	}
}

func (rt *Runtime) YieldNow(t *sched.Task) {
	rt.own(t)
	t.PutScheduler(rt)
	rt.switchOut(parkMsg{kind: parkYield})
}

func (rt *Runtime) MaybeYield(t *sched.Task) {
	rt.own(t)
	t.PutScheduler(rt)
	rt.maybe++
	if every := rt.pool.cfg.MaybeYieldEvery; every > 0 && rt.maybe%every == 0 {
		rt.switchOut(parkMsg{kind: parkYield})
	}
}

func (rt *Runtime) Deschedule(times int, t *sched.Task, f func(*sched.BlockedTask) bool) {
	rt.own(t)
	t.PutScheduler(rt)
	rt.switchOut(parkMsg{kind: parkBlock, times: times, fn: f})
}

// Reawaken makes the task runnable. It is called from the waking task's
// goroutine, never from the woken one.
func (rt *Runtime) Reawaken(t *sched.Task) {
	rt.own(t)
	t.PutScheduler(rt)
	rt.q.push(rt)
}

func (rt *Runtime) SpawnSibling(t *sched.Task, opts sched.TaskOpts, body func(*sched.Task)) error {
	rt.own(t)
	defer t.PutScheduler(rt)
	_, err := rt.pool.spawn(rt.q, opts, body)
	return err
}

func (rt *Runtime) LocalIO() (sched.LocalIO, bool) {
	if rt.worker == nil {
		return nil, false
	}
	return rt.worker, true
}

func (rt *Runtime) StackBounds() (lo, hi uintptr) {
	return 0, rt.stack
}

// CanBlock is false: blocking a task's goroutine would stall its worker.
func (rt *Runtime) CanBlock() bool {
	return false
}

// switchOut parks the task on its worker and waits to be resumed.
func (rt *Runtime) switchOut(msg parkMsg) {
	w := rt.worker
	if w == nil {
		panic(rt.aborted())
	}
	w.park <- msg
	rt.worker = <-rt.resume
	if rt.worker == nil {
		panic(rt.aborted())
	}
	if a := rt.abort.Load(); a != nil {
		panic(a.err)
	}
}

func (rt *Runtime) aborted() error {
	if a := rt.abort.Load(); a != nil {
		return a.err
	}
	return errReaped
}

func (rt *Runtime) start(body func(*sched.Task)) {
	go func() {
		w := <-rt.resume
		if w == nil {
			return
		}
		rt.worker = w

		err := error(&TaskError{Task: rt.name, Err: errGoexit})
		defer func() { rt.exit(err) }()
		err = rt.run(body)
	}()
}

// exit hands the finished task back to its worker for the last time.
func (rt *Runtime) exit(err error) {
	if rt.onExit != nil {
		rt.onExit(err)
	}
	w := rt.worker
	if w == nil {
		return
	}
	rt.worker = nil
	w.park <- parkMsg{kind: parkExit, err: err}
}

func (rt *Runtime) run(body func(*sched.Task)) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if te, ok := r.(*TaskError); ok {
			err = te
			return
		}
		err = &TaskError{Task: rt.name, Value: r, Stack: debug.Stack()}
	}()

	body(rt.task)

	cur, ok := sched.TakeAs[*Runtime](rt.task)
	if !ok || cur != rt {
		if ok {
			rt.task.PutScheduler(cur)
		}
		return &TaskError{Task: rt.name, Err: ErrForeignScheduler}
	}
	return nil
}
