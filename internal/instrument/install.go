package instrument

import (
	"fmt"

	"github.com/majorcontext/schedtrace/internal/log"
	"github.com/majorcontext/schedtrace/internal/sched"
	"github.com/majorcontext/schedtrace/internal/trace"
)

type instrumented interface {
	instrumented()
}

// Install wraps the scheduler of t in a new proxy recording to events and
// logs the task's spawn. It panics unless the slot holds an uninstrumented
// R. The task stays attached to events until Uninstall.
func Install[R sched.Scheduler](t *sched.Task, events *trace.Log, creator uint64) *Proxy[R] {
	p := install[R](t, events, creator)
	events.Attach()
	return p
}

// install is Install for a task whose parent already attached it.
func install[R sched.Scheduler](t *sched.Task, events *trace.Log, creator uint64) *Proxy[R] {
	inner, ok := sched.TakeAs[R](t)
	if !ok {
		panic(&Violation{Op: "install", Reason: fmt.Sprintf("task %q has %T installed, want %T", t.Name(), t.Scheduler(), inner)})
	}
	if _, nested := any(inner).(instrumented); nested {
		t.PutScheduler(inner)
		panic(&Violation{Op: "install", Reason: fmt.Sprintf("task %q is already instrumented", t.Name())})
	}

	p := newProxy(inner, events, creator)
	p.record(inner, trace.KindSpawn)
	t.PutScheduler(p)
	return p
}

// Uninstall removes the proxy from t, logs the task's death, detaches it
// from the log and restores the wrapped scheduler. The returned proxy is
// dead.
func Uninstall[R sched.Scheduler](t *sched.Task) *Proxy[R] {
	p, ok := sched.TakeAs[*Proxy[R]](t)
	if !ok {
		panic(&Violation{Op: "uninstall", Reason: fmt.Sprintf("task %q has %T installed, want %T", t.Name(), t.Scheduler(), p)})
	}
	if s := p.current(); s != stateActive {
		t.PutScheduler(p)
		panic(p.violation("uninstall", "proxy is %s", s))
	}
	inner := p.inner
	p.record(inner, trace.KindDeath)
	p.state.Store(int32(stateDead))
	var zero R
	p.inner = zero
	p.log.Detach()
	t.PutScheduler(inner)
	return p
}

// Instrument runs op on t with a fresh log and returns every event recorded
// for t and the tasks it spawned. After op returns, t yields until every
// instrumented task has logged its death, so a child that woke t just
// before exiting is still traced. A traced task that never finishes keeps
// Instrument waiting until the scheduler gives up on t.
func Instrument[R sched.Scheduler](t *sched.Task, op func(*sched.Task)) []trace.Event {
	events := Session[R](t, op)
	for events.Live() > 0 {
		t.Yield()
	}
	return events.Snapshot()
}

// Session is Instrument returning the log itself as soon as t is
// uninstalled. Children may still be recording; Log.Live reports how many.
func Session[R sched.Scheduler](t *sched.Task, op func(*sched.Task)) *trace.Log {
	events := trace.NewLog()
	root := Install[R](t, events, 0)
	log.Debug("instrumentation started", "task", t.Name(), "id", root.ID())

	op(t)

	Uninstall[R](t)
	log.Debug("instrumentation finished", "task", t.Name(), "events", events.Len())
	return events
}
