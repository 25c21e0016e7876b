package sched

import "sync/atomic"

// BlockedTask is a handle to a descheduled task. All handles produced by
// one Deschedule share a latch; only the first Wake or Claim succeeds.
type BlockedTask struct {
	task  *Task
	latch *atomic.Bool
}

// NewBlocked returns n selectable handles for t sharing a single latch.
// n is clamped to at least 1.
func NewBlocked(t *Task, n int) []*BlockedTask {
	if n < 1 {
		n = 1
	}
	latch := new(atomic.Bool)
	handles := make([]*BlockedTask, n)
	for i := range handles {
		handles[i] = &BlockedTask{task: t, latch: latch}
	}
	return handles
}

// Task returns the blocked task.
func (b *BlockedTask) Task() *Task {
	return b.task
}

// Wake reawakens the task through its active scheduler. It returns false if
// the task was already woken or claimed through another handle.
func (b *BlockedTask) Wake() bool {
	if !b.latch.CompareAndSwap(false, true) {
		return false
	}
	b.task.reawaken()
	return true
}

// Claim takes the latch without reawakening the task. Schedulers use it
// when a block attempt fails and they resume the task themselves.
func (b *BlockedTask) Claim() bool {
	return b.latch.CompareAndSwap(false, true)
}
