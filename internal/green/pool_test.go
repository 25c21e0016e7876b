package green

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/schedtrace/internal/sched"
)

func runPool(t *testing.T, cfg Config, body func(*sched.Task)) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return NewPool(cfg).Run(ctx, body)
}

func TestRunSpawnsChildren(t *testing.T) {
	var ran atomic.Int32
	p := NewPool(Config{Workers: 4})
	err := p.Run(context.Background(), func(root *sched.Task) {
		for i := 0; i < 20; i++ {
			require.NoError(t, root.Spawn(func(*sched.Task) { ran.Add(1) }))
		}
	})
	require.NoError(t, err)
	assert.Equal(t, int32(20), ran.Load())

	stats := p.Stats()
	assert.Equal(t, uint64(21), stats.Spawned)
	assert.Equal(t, 0, stats.Live)
	assert.Equal(t, 4, stats.Workers)
	assert.Zero(t, stats.Threads, "workers released after Run")
	assert.GreaterOrEqual(t, stats.Switches, uint64(21))
}

func TestStatsDuringRun(t *testing.T) {
	p := NewPool(Config{Workers: 1})
	var during Stats
	err := p.Run(context.Background(), func(root *sched.Task) {
		for i := 0; i < 3; i++ {
			require.NoError(t, root.Spawn(func(*sched.Task) {}))
		}
		// The only worker is busy with root, so every child is waiting.
		during = p.Stats()
	})
	require.NoError(t, err)

	assert.Equal(t, 1, during.Workers)
	assert.Equal(t, 1, during.Threads)
	assert.Equal(t, 4, during.Live, "root and its children")
	assert.Equal(t, 3, during.Queued, "children waiting for the worker")
	assert.Equal(t, uint64(4), during.Spawned)
	assert.Equal(t, uint64(1), during.Switches)
}

func TestYieldInterleavesOnOneWorker(t *testing.T) {
	var order []string
	err := runPool(t, Config{Workers: 1}, func(root *sched.Task) {
		for _, name := range []string{"a", "b"} {
			require.NoError(t, root.Spawn(func(task *sched.Task) {
				for i := 0; i < 3; i++ {
					order = append(order, fmt.Sprintf("%s%d", name, i))
					task.Yield()
				}
			}))
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "b0", "a1", "b1", "a2", "b2"}, order)
}

func TestMaybeYieldEvery(t *testing.T) {
	var order []string
	err := runPool(t, Config{Workers: 1, MaybeYieldEvery: 2}, func(root *sched.Task) {
		for _, name := range []string{"a", "b"} {
			require.NoError(t, root.Spawn(func(task *sched.Task) {
				for i := 0; i < 4; i++ {
					order = append(order, fmt.Sprintf("%s%d", name, i))
					task.MaybeYield()
				}
			}))
		}
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "a1", "b0", "b1", "a2", "a3", "b2", "b3"}, order)
}

func TestDescheduleAndWake(t *testing.T) {
	var (
		mu     sync.Mutex
		handle *sched.BlockedTask
		woken  bool
	)
	err := runPool(t, Config{Workers: 2}, func(root *sched.Task) {
		require.NoError(t, root.Spawn(func(task *sched.Task) {
			for {
				mu.Lock()
				h := handle
				mu.Unlock()
				if h != nil {
					assert.True(t, h.Wake())
					assert.False(t, h.Wake())
					return
				}
				task.Yield()
			}
		}))
		root.Deschedule(1, func(b *sched.BlockedTask) bool {
			mu.Lock()
			handle = b
			mu.Unlock()
			return true
		})
		woken = true
	})
	require.NoError(t, err)
	assert.True(t, woken)
}

func TestDescheduleCallbackDeclines(t *testing.T) {
	calls := 0
	err := runPool(t, Config{Workers: 1}, func(root *sched.Task) {
		root.Deschedule(3, func(b *sched.BlockedTask) bool {
			calls++
			return calls < 2
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDeadlock(t *testing.T) {
	exited := make(chan error, 1)
	err := runPool(t, Config{Workers: 2}, func(root *sched.Task) {
		require.NoError(t, root.SpawnWith(sched.TaskOpts{
			Name:   "sleeper",
			OnExit: func(err error) { exited <- err },
		}, func(task *sched.Task) {
			task.Deschedule(1, func(*sched.BlockedTask) bool { return true })
		}))
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeadlock)

	select {
	case err := <-exited:
		var te *TaskError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "sleeper", te.Task)
	case <-time.After(5 * time.Second):
		t.Fatal("blocked task was not unwound")
	}
}

func TestPanicAbortsOnlyThatTask(t *testing.T) {
	var finished atomic.Int32
	err := runPool(t, Config{Workers: 3}, func(root *sched.Task) {
		require.NoError(t, root.SpawnWith(sched.TaskOpts{Name: "bad"}, func(*sched.Task) {
			panic("boom")
		}))
		for i := 0; i < 5; i++ {
			require.NoError(t, root.Spawn(func(task *sched.Task) {
				task.Yield()
				finished.Add(1)
			}))
		}
	})
	require.Error(t, err)

	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "bad", te.Task)
	assert.Equal(t, "boom", te.Value)
	assert.NotEmpty(t, te.Stack)
	assert.Contains(t, err.Error(), `task "bad" panicked: boom`)
	assert.Equal(t, int32(5), finished.Load())
}

func TestDescheduleCallbackPanic(t *testing.T) {
	after := false
	err := runPool(t, Config{Workers: 1}, func(root *sched.Task) {
		root.Deschedule(1, func(*sched.BlockedTask) bool {
			panic(errors.New("callback failed"))
		})
		after = true
	})
	require.Error(t, err)
	var te *TaskError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "main", te.Task)
	assert.EqualError(t, errors.Unwrap(te), "callback failed")
	assert.False(t, after)
}

func TestMaxTasks(t *testing.T) {
	var spawnErr error
	err := runPool(t, Config{Workers: 1, MaxTasks: 2}, func(root *sched.Task) {
		require.NoError(t, root.Spawn(func(*sched.Task) {}))
		spawnErr = root.Spawn(func(*sched.Task) {})
	})
	require.NoError(t, err)
	assert.ErrorIs(t, spawnErr, ErrTooManyTasks)
}

type foreign struct {
	sched.Scheduler
}

func TestForeignSchedulerAtExit(t *testing.T) {
	err := runPool(t, Config{Workers: 1}, func(root *sched.Task) {
		rt := root.TakeScheduler()
		root.PutScheduler(foreign{rt})
	})
	assert.ErrorIs(t, err, ErrForeignScheduler)
}

func TestCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- NewPool(Config{Workers: 2}).Run(ctx, func(root *sched.Task) {
			close(started)
			for {
				root.Yield()
			}
		})
	}()

	<-started
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunWhileRunning(t *testing.T) {
	p := NewPool(Config{Workers: 1})
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- p.Run(context.Background(), func(root *sched.Task) {
			close(started)
			<-release
		})
	}()

	<-started
	assert.ErrorIs(t, p.Run(context.Background(), func(*sched.Task) {}), ErrPoolRunning)
	close(release)
	require.NoError(t, <-done)
	require.NoError(t, p.Run(context.Background(), func(*sched.Task) {}))
}

func TestTaskEnvironment(t *testing.T) {
	var (
		mu      sync.Mutex
		threads = map[uint64]bool{}
	)
	err := runPool(t, Config{Workers: 3, StackSize: 4096}, func(root *sched.Task) {
		for i := 0; i < 30; i++ {
			require.NoError(t, root.Spawn(func(task *sched.Task) {
				id := task.ThreadID()
				mu.Lock()
				threads[id] = true
				mu.Unlock()
				lo, hi := task.StackBounds()
				assert.Zero(t, lo)
				assert.Equal(t, uintptr(4096), hi)
				assert.False(t, task.CanBlock())
			}))
		}
	})
	require.NoError(t, err)
	for id := range threads {
		assert.True(t, id >= 1 && id <= 3, "thread id %d out of range", id)
	}
}

func TestRuntimeRejectsOtherTask(t *testing.T) {
	err := runPool(t, Config{Workers: 1}, func(root *sched.Task) {
		rt, ok := sched.TakeAs[*Runtime](root)
		require.True(t, ok)
		root.PutScheduler(rt)
		assert.Equal(t, "main", rt.Name())
		assert.Panics(t, func() { rt.YieldNow(sched.NewTask("stranger")) })
	})
	require.NoError(t, err)
}

func TestOnExit(t *testing.T) {
	var got []string
	var mu sync.Mutex
	err := runPool(t, Config{Workers: 2}, func(root *sched.Task) {
		for _, name := range []string{"x", "y"} {
			require.NoError(t, root.SpawnWith(sched.TaskOpts{
				Name: name,
				OnExit: func(err error) {
					assert.NoError(t, err)
					mu.Lock()
					got = append(got, name)
					mu.Unlock()
				},
			}, func(*sched.Task) {}))
		}
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"x", "y"}, got)
}
