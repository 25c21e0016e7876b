package trace

import "fmt"

// Kind names the lifecycle point an event was recorded at.
type Kind string

const (
	KindSpawn       Kind = "spawn"
	KindDeath       Kind = "death"
	KindYield       Kind = "yield"
	KindMaybeYield  Kind = "maybe-yield"
	KindDoneYield   Kind = "done-yield"
	KindDeschedule  Kind = "deschedule"
	KindWakeup      Kind = "wakeup"
	KindBeforeSpawn Kind = "before-spawn"
	KindAfterSpawn  Kind = "after-spawn"
)

// Completes returns the tag that closes an entry tag, or "" if k does not
// open a bracket.
func (k Kind) Completes() Kind {
	switch k {
	case KindYield, KindMaybeYield:
		return KindDoneYield
	case KindDeschedule:
		return KindWakeup
	case KindBeforeSpawn:
		return KindAfterSpawn
	default:
		return ""
	}
}

// Suspends reports whether k marks a point where the task gave up, or may
// have given up, its worker.
func (k Kind) Suspends() bool {
	switch k {
	case KindYield, KindMaybeYield, KindDeschedule:
		return true
	default:
		return false
	}
}

// Event is a single lifecycle record. Events are never modified once
// appended to a Log.
type Event struct {
	// Timestamp is nanoseconds on the monotonic clock since the log started.
	Timestamp uint64 `json:"ts"`
	TaskID    uint64 `json:"task"`
	// ThreadID is the worker thread that recorded the event, 0 if unknown.
	ThreadID uint64 `json:"thread"`
	// CreatorID is the task that spawned TaskID, 0 for the root.
	CreatorID uint64 `json:"creator"`
	Desc      Kind   `json:"desc"`
}

// String renders the event on one line.
func (e Event) String() string {
	return fmt.Sprintf("%12d task=%d thread=%d creator=%d %s",
		e.Timestamp, e.TaskID, e.ThreadID, e.CreatorID, e.Desc)
}
