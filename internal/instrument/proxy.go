// Package instrument records the lifecycle of cooperative tasks by
// interposing a proxy scheduler in each task's slot.
//
// A proxy logs an entry event, hands the call to the scheduler it wraps and,
// once control is back, takes that scheduler out of the slot again, logs a
// completion event and reinstalls itself. Spawned children get their own
// proxy on the same log, so a whole task tree is traced without the
// application's cooperation.
package instrument

import (
	"fmt"
	"sync/atomic"

	"github.com/majorcontext/schedtrace/internal/sched"
	"github.com/majorcontext/schedtrace/internal/trace"
)

type state int32

const (
	stateActive state = iota
	stateDelegating
	stateDead
)

func (s state) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateDelegating:
		return "delegating"
	case stateDead:
		return "dead"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Violation is the panic value for misuse of a proxy or of the task slot
// it lives in. It is never recovered by this package.
type Violation struct {
	TaskID uint64
	Op     string
	Reason string
}

func (v *Violation) Error() string {
	if v.TaskID == 0 {
		return fmt.Sprintf("instrument: %s: %s", v.Op, v.Reason)
	}
	return fmt.Sprintf("instrument: task %d: %s: %s", v.TaskID, v.Op, v.Reason)
}

// Proxy wraps the scheduler R of one task and logs every operation routed
// through it.
type Proxy[R sched.Scheduler] struct {
	id      uint64
	creator uint64
	log     *trace.Log
	state   atomic.Int32

	// inner is only valid while the proxy is active.
	inner R
}

var _ sched.Scheduler = (*Proxy[sched.Scheduler])(nil)

func newProxy[R sched.Scheduler](inner R, log *trace.Log, creator uint64) *Proxy[R] {
	return &Proxy[R]{
		id:      log.NewTaskID(),
		creator: creator,
		log:     log,
		inner:   inner,
	}
}

// ID is the task id this proxy records events under.
func (p *Proxy[R]) ID() uint64 { return p.id }

// Creator is the id of the task that spawned this one, 0 for a root.
func (p *Proxy[R]) Creator() uint64 { return p.creator }

// Log is the shared event log.
func (p *Proxy[R]) Log() *trace.Log { return p.log }

// Inner returns the wrapped scheduler while the proxy is active.
func (p *Proxy[R]) Inner() (R, bool) {
	if p.current() != stateActive {
		var zero R
		return zero, false
	}
	return p.inner, true
}

func (p *Proxy[R]) instrumented() {}

func (p *Proxy[R]) current() state {
	return state(p.state.Load())
}

func (p *Proxy[R]) violation(op, format string, args ...any) *Violation {
	return &Violation{TaskID: p.id, Op: op, Reason: fmt.Sprintf(format, args...)}
}

// record logs kind for this task on the thread inner is running on.
func (p *Proxy[R]) record(inner R, kind trace.Kind) {
	var thread uint64
	if io, ok := inner.LocalIO(); ok && io != nil {
		thread = io.ThreadID()
	}
	p.log.Record(p.id, thread, p.creator, kind)
}

// enter moves the inner scheduler out for the duration of one delegated
// call and logs the entry event.
func (p *Proxy[R]) enter(op string, kind trace.Kind) R {
	if !p.state.CompareAndSwap(int32(stateActive), int32(stateDelegating)) {
		panic(p.violation(op, "inner scheduler requested while %s", p.current()))
	}
	inner := p.inner
	var zero R
	p.inner = zero
	p.record(inner, kind)
	return inner
}

// restore reclaims the inner scheduler from the task slot, where the inner
// scheduler left itself, and puts the proxy back in front of it.
func (p *Proxy[R]) restore(t *sched.Task, op string, kind trace.Kind) {
	inner, ok := sched.TakeAs[R](t)
	if !ok {
		panic(p.violation(op, "slot holds %T after delegation, want %T", t.Scheduler(), inner))
	}
	p.inner = inner
	if !p.state.CompareAndSwap(int32(stateDelegating), int32(stateActive)) {
		panic(p.violation(op, "completed while %s", p.current()))
	}
	p.record(inner, kind)
	t.PutScheduler(p)
}

func (p *Proxy[R]) YieldNow(t *sched.Task) {
	p.enter("yield", trace.KindYield).YieldNow(t)
	p.restore(t, "yield", trace.KindDoneYield)
}

func (p *Proxy[R]) MaybeYield(t *sched.Task) {
	p.enter("maybe-yield", trace.KindMaybeYield).MaybeYield(t)
	p.restore(t, "maybe-yield", trace.KindDoneYield)
}

// Deschedule logs wakeup once the task runs again, whether it was woken or
// the block callback declined.
func (p *Proxy[R]) Deschedule(times int, t *sched.Task, f func(*sched.BlockedTask) bool) {
	p.enter("deschedule", trace.KindDeschedule).Deschedule(times, t, f)
	p.restore(t, "deschedule", trace.KindWakeup)
}

// Reawaken always panics. Wakeups reach the wrapped scheduler directly
// because a blocked task's slot holds the inner scheduler, not the proxy.
func (p *Proxy[R]) Reawaken(*sched.Task) {
	panic(p.violation("reawaken", "not supported on an instrumented task"))
}

// SpawnSibling instruments the child: its body runs behind a fresh proxy on
// the same log, created by this task. Errors from the inner scheduler are
// returned unchanged.
func (p *Proxy[R]) SpawnSibling(t *sched.Task, opts sched.TaskOpts, body func(*sched.Task)) error {
	log, me := p.log, p.id
	inner := p.enter("spawn", trace.KindBeforeSpawn)
	// The child counts as live from here, before it first runs.
	log.Attach()
	err := inner.SpawnSibling(t, opts, func(child *sched.Task) {
		uninstalled := false
		defer func() {
			if !uninstalled {
				log.Detach()
			}
		}()
		install[R](child, log, me)
		body(child)
		Uninstall[R](child)
		uninstalled = true
	})
	if err != nil {
		log.Detach()
	}
	p.restore(t, "spawn", trace.KindAfterSpawn)
	return err
}

func (p *Proxy[R]) LocalIO() (sched.LocalIO, bool) {
	return p.active("local-io").LocalIO()
}

func (p *Proxy[R]) StackBounds() (lo, hi uintptr) {
	return p.active("stack-bounds").StackBounds()
}

func (p *Proxy[R]) CanBlock() bool {
	return p.active("can-block").CanBlock()
}

func (p *Proxy[R]) active(op string) R {
	if s := p.current(); s != stateActive {
		panic(p.violation(op, "queried while %s", s))
	}
	return p.inner
}
