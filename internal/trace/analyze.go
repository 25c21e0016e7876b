package trace

import (
	"fmt"
	"sort"
	"time"
)

// ByTask groups events by task, preserving log order within each group.
func ByTask(events []Event) map[uint64][]Event {
	grouped := make(map[uint64][]Event)
	for _, e := range events {
		grouped[e.TaskID] = append(grouped[e.TaskID], e)
	}
	return grouped
}

// TaskIDs returns the distinct task ids in order of first appearance.
func TaskIDs(events []Event) []uint64 {
	seen := make(map[uint64]bool)
	var ids []uint64
	for _, e := range events {
		if !seen[e.TaskID] {
			seen[e.TaskID] = true
			ids = append(ids, e.TaskID)
		}
	}
	return ids
}

// Root returns the task whose spawn event has no creator.
func Root(events []Event) (uint64, bool) {
	for _, e := range events {
		if e.Desc == KindSpawn && e.CreatorID == 0 {
			return e.TaskID, true
		}
	}
	return 0, false
}

// Summary aggregates a trace.
type Summary struct {
	Events   int
	Tasks    int
	Threads  int
	Counts   map[Kind]int
	Duration time.Duration
}

// Kinds returns the kinds present in the summary, sorted by name.
func (s Summary) Kinds() []Kind {
	kinds := make([]Kind, 0, len(s.Counts))
	for k := range s.Counts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Summarize counts events per kind and the tasks and threads involved.
func Summarize(events []Event) Summary {
	s := Summary{
		Events: len(events),
		Counts: make(map[Kind]int),
	}
	tasks := make(map[uint64]bool)
	threads := make(map[uint64]bool)
	var first, last uint64
	for i, e := range events {
		s.Counts[e.Desc]++
		tasks[e.TaskID] = true
		if e.ThreadID != 0 {
			threads[e.ThreadID] = true
		}
		if i == 0 || e.Timestamp < first {
			first = e.Timestamp
		}
		if e.Timestamp > last {
			last = e.Timestamp
		}
	}
	s.Tasks = len(tasks)
	s.Threads = len(threads)
	if len(events) > 0 {
		s.Duration = time.Duration(last - first)
	}
	return s
}

// Issue is a structural problem found by Check.
type Issue struct {
	// Index is the position of the offending event, -1 if the issue
	// concerns the trace as a whole.
	Index   int
	TaskID  uint64
	Message string
}

func (i Issue) String() string {
	if i.Index < 0 {
		return fmt.Sprintf("task %d: %s", i.TaskID, i.Message)
	}
	return fmt.Sprintf("event %d (task %d): %s", i.Index, i.TaskID, i.Message)
}

// Check validates the shape of a completed trace: a single root, exactly
// one spawn opening and one death closing each task, creators that already
// appeared, and entry tags immediately followed by their completion tag
// within the same task.
func Check(events []Event) []Issue {
	var issues []Issue
	add := func(idx int, task uint64, format string, args ...any) {
		issues = append(issues, Issue{Index: idx, TaskID: task, Message: fmt.Sprintf(format, args...)})
	}

	seen := make(map[uint64]bool)
	dead := make(map[uint64]bool)
	pending := make(map[uint64]Kind)
	roots := 0

	for i, e := range events {
		first := !seen[e.TaskID]

		if dead[e.TaskID] {
			add(i, e.TaskID, "%s after death", e.Desc)
		}

		switch {
		case e.Desc == KindSpawn && !first:
			add(i, e.TaskID, "spawned twice")
		case e.Desc != KindSpawn && first:
			add(i, e.TaskID, "first event is %s, want %s", e.Desc, KindSpawn)
		}

		if e.Desc == KindSpawn {
			if e.CreatorID == 0 {
				roots++
			} else if !seen[e.CreatorID] {
				add(i, e.TaskID, "creator %d has no earlier event", e.CreatorID)
			}
		}
		seen[e.TaskID] = true

		if want, ok := pending[e.TaskID]; ok {
			if e.Desc != want {
				add(i, e.TaskID, "got %s, want %s", e.Desc, want)
			}
			delete(pending, e.TaskID)
		} else if e.Desc == KindDoneYield || e.Desc == KindWakeup || e.Desc == KindAfterSpawn {
			add(i, e.TaskID, "%s without matching entry", e.Desc)
		}
		if done := e.Desc.Completes(); done != "" {
			pending[e.TaskID] = done
		}

		if e.Desc == KindDeath {
			dead[e.TaskID] = true
		}
	}

	switch {
	case len(events) > 0 && roots == 0:
		add(-1, 0, "no root task")
	case roots > 1:
		add(-1, 0, "%d root tasks", roots)
	}
	for _, id := range TaskIDs(events) {
		if want, ok := pending[id]; ok {
			add(-1, id, "trace ends waiting for %s", want)
		}
		if !dead[id] {
			add(-1, id, "no %s event", KindDeath)
		}
	}
	return issues
}
