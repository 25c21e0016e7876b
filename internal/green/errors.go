package green

import (
	"errors"
	"fmt"
)

var (
	// ErrDeadlock is returned by Run when every worker is idle, nothing is
	// runnable and tasks are still alive.
	ErrDeadlock = errors.New("deadlock")

	// ErrTooManyTasks is returned by SpawnSibling when MaxTasks is reached.
	ErrTooManyTasks = errors.New("too many live tasks")

	// ErrForeignScheduler is reported for a task that finished with a
	// scheduler other than its own runtime installed.
	ErrForeignScheduler = errors.New("task exited with a foreign scheduler installed")

	// ErrPoolRunning is returned by Run when the pool is already running.
	ErrPoolRunning = errors.New("pool already running")
)

// TaskError describes a task that did not finish cleanly.
type TaskError struct {
	Task  string
	Value any // recovered panic value, nil if Err is set
	Err   error
	Stack []byte
}

func (e *TaskError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task %q: %v", e.Task, e.Err)
	}
	return fmt.Sprintf("task %q panicked: %v", e.Task, e.Value)
}

func (e *TaskError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
