package trace

import (
	"sync"
	"sync/atomic"
	"time"
)

// Log is an append-only, mutex-guarded sequence of events shared by every
// task of an instrumentation session.
type Log struct {
	start  time.Time
	nextID atomic.Uint64
	live   atomic.Int64

	mu     sync.Mutex
	cond   *sync.Cond
	events []Event
}

// NewLog creates an empty log. Timestamps are measured from this call.
func NewLog() *Log {
	l := &Log{
		start:  time.Now(),
		events: make([]Event, 0, 64),
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start returns the wall-clock time the log was created.
func (l *Log) Start() time.Time {
	return l.start
}

// NewTaskID allocates a task identity unique within this log. Ids start
// at 1; 0 means "no task".
func (l *Log) NewTaskID() uint64 {
	return l.nextID.Add(1)
}

// Attach counts one more task as recording to the log.
func (l *Log) Attach() {
	l.live.Add(1)
}

// Detach marks an attached task as finished with the log.
func (l *Log) Detach() {
	l.live.Add(-1)
}

// Live returns the number of attached tasks that have not detached.
func (l *Log) Live() int {
	return int(l.live.Load())
}

// Now returns the monotonic nanoseconds elapsed since the log started.
func (l *Log) Now() uint64 {
	return uint64(time.Since(l.start).Nanoseconds())
}

// Record stamps and appends one event.
func (l *Log) Record(task, thread, creator uint64, kind Kind) {
	l.Append(Event{
		Timestamp: l.Now(),
		TaskID:    task,
		ThreadID:  thread,
		CreatorID: creator,
		Desc:      kind,
	})
}

// Append adds e to the end of the log and wakes any waiter.
func (l *Log) Append(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
	l.cond.Broadcast()
}

// Snapshot returns a copy of every event recorded so far.
func (l *Log) Snapshot() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// WaitLen blocks until at least n events have been recorded. It parks the
// calling goroutine, so it must not be called from a task body.
func (l *Log) WaitLen(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for len(l.events) < n {
		l.cond.Wait()
	}
}
