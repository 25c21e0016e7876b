package instrument

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/majorcontext/schedtrace/internal/sched"
	"github.com/majorcontext/schedtrace/internal/trace"
)

type threadIO uint64

func (t threadIO) ThreadID() uint64 { return uint64(t) }

// fakeSched runs everything synchronously on the calling goroutine. Spawned
// children run to completion inside SpawnSibling and blocked tasks are woken
// as soon as the callback accepts the block.
type fakeSched struct {
	thread     uint64
	spawnErr   error
	reawakened int
	blocks     int
}

func (s *fakeSched) YieldNow(t *sched.Task)   { t.PutScheduler(s) }
func (s *fakeSched) MaybeYield(t *sched.Task) { t.PutScheduler(s) }

func (s *fakeSched) Deschedule(times int, t *sched.Task, f func(*sched.BlockedTask) bool) {
	t.PutScheduler(s)
	s.blocks++
	for _, b := range sched.NewBlocked(t, times) {
		if !f(b) {
			b.Claim()
			return
		}
		b.Wake()
	}
}

func (s *fakeSched) Reawaken(t *sched.Task) {
	s.reawakened++
	t.PutScheduler(s)
}

func (s *fakeSched) SpawnSibling(t *sched.Task, opts sched.TaskOpts, body func(*sched.Task)) error {
	defer t.PutScheduler(s)
	if s.spawnErr != nil {
		return s.spawnErr
	}
	child := sched.NewTask(opts.Name)
	child.PutScheduler(&fakeSched{thread: s.thread + 1})
	body(child)
	return nil
}

func (s *fakeSched) LocalIO() (sched.LocalIO, bool) {
	if s.thread == 0 {
		return nil, false
	}
	return threadIO(s.thread), true
}

func (s *fakeSched) StackBounds() (lo, hi uintptr) { return 0x1000, 0x2000 }
func (s *fakeSched) CanBlock() bool                 { return true }

func newRoot(thread uint64) (*sched.Task, *fakeSched) {
	t := sched.NewTask("root")
	s := &fakeSched{thread: thread}
	t.PutScheduler(s)
	return t, s
}

func describe(events []trace.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = fmt.Sprintf("%d<-%d %s", e.TaskID, e.CreatorID, e.Desc)
	}
	return out
}

func violationOf(fn func()) (v *Violation) {
	defer func() {
		r := recover()
		v, _ = r.(*Violation)
	}()
	fn()
	return nil
}

func TestInstrumentEmptyOperation(t *testing.T) {
	root, inner := newRoot(7)
	events := Instrument[*fakeSched](root, func(*sched.Task) {})

	require.Len(t, events, 2)
	assert.Equal(t, []string{"1<-0 spawn", "1<-0 death"}, describe(events))
	for _, e := range events {
		assert.Equal(t, uint64(7), e.ThreadID)
	}

	got, ok := sched.TakeAs[*fakeSched](root)
	require.True(t, ok, "real scheduler restored")
	assert.Same(t, inner, got)
}

func TestInstrumentYields(t *testing.T) {
	root, _ := newRoot(1)
	events := Instrument[*fakeSched](root, func(task *sched.Task) {
		task.Yield()
		task.MaybeYield()
	})
	assert.Equal(t, []string{
		"1<-0 spawn",
		"1<-0 yield",
		"1<-0 done-yield",
		"1<-0 maybe-yield",
		"1<-0 done-yield",
		"1<-0 death",
	}, describe(events))
	assert.Empty(t, trace.Check(events))
}

func TestInstrumentDeschedule(t *testing.T) {
	tests := []struct {
		name   string
		accept bool
	}{
		{"woken", true},
		{"declined", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root, inner := newRoot(1)
			events := Instrument[*fakeSched](root, func(task *sched.Task) {
				task.Deschedule(1, func(*sched.BlockedTask) bool { return tt.accept })
			})
			assert.Equal(t, []string{
				"1<-0 spawn",
				"1<-0 deschedule",
				"1<-0 wakeup",
				"1<-0 death",
			}, describe(events))
			assert.Equal(t, 1, inner.blocks)
			if tt.accept {
				assert.Equal(t, 1, inner.reawakened, "wake reaches the real scheduler")
			} else {
				assert.Zero(t, inner.reawakened)
			}
		})
	}
}

func TestInstrumentSpawnTree(t *testing.T) {
	root, _ := newRoot(1)
	var childThreads []uint64
	events := Instrument[*fakeSched](root, func(task *sched.Task) {
		require.NoError(t, task.Spawn(func(c *sched.Task) {
			childThreads = append(childThreads, c.ThreadID())
		}))
		require.NoError(t, task.Spawn(func(c *sched.Task) {
			c.Yield()
			require.NoError(t, c.Spawn(func(*sched.Task) {}))
		}))
	})

	assert.Equal(t, []string{
		"1<-0 spawn",
		"1<-0 before-spawn",
		"2<-1 spawn",
		"2<-1 death",
		"1<-0 after-spawn",
		"1<-0 before-spawn",
		"3<-1 spawn",
		"3<-1 yield",
		"3<-1 done-yield",
		"3<-1 before-spawn",
		"4<-3 spawn",
		"4<-3 death",
		"3<-1 after-spawn",
		"3<-1 death",
		"1<-0 after-spawn",
		"1<-0 death",
	}, describe(events))
	assert.Empty(t, trace.Check(events))
	assert.Equal(t, []uint64{2}, childThreads, "children see their own thread through the proxy")
	assert.Equal(t, uint64(2), events[2].ThreadID)
}

func TestSpawnErrorPropagates(t *testing.T) {
	root, inner := newRoot(1)
	errFull := errors.New("no room")
	inner.spawnErr = errFull

	var spawnErr error
	events := Instrument[*fakeSched](root, func(task *sched.Task) {
		spawnErr = task.Spawn(func(*sched.Task) {
			panic("must not run")
		})
	})
	assert.Same(t, errFull, spawnErr)
	assert.Equal(t, []string{
		"1<-0 spawn",
		"1<-0 before-spawn",
		"1<-0 after-spawn",
		"1<-0 death",
	}, describe(events))
}

func TestInstallTwicePanics(t *testing.T) {
	root, _ := newRoot(1)
	log := trace.NewLog()
	Install[*fakeSched](root, log, 0)

	v := violationOf(func() { Install[*fakeSched](root, log, 0) })
	require.NotNil(t, v)
	assert.Equal(t, "install", v.Op)

	v = violationOf(func() { Install[sched.Scheduler](root, log, 0) })
	require.NotNil(t, v)
	assert.Contains(t, v.Error(), "already instrumented")

	_, ok := sched.TakeAs[*Proxy[*fakeSched]](root)
	assert.True(t, ok, "original proxy left in place")
}

func TestUninstallWithoutInstallPanics(t *testing.T) {
	root, _ := newRoot(1)
	v := violationOf(func() { Uninstall[*fakeSched](root) })
	require.NotNil(t, v)
	assert.Equal(t, "uninstall", v.Op)

	_, ok := sched.TakeAs[*fakeSched](root)
	assert.True(t, ok, "slot untouched")
}

func TestReawakenPanics(t *testing.T) {
	root, _ := newRoot(1)
	p := Install[*fakeSched](root, trace.NewLog(), 0)

	v := violationOf(func() { p.Reawaken(root) })
	require.NotNil(t, v)
	assert.Equal(t, "reawaken", v.Op)
	assert.Equal(t, p.ID(), v.TaskID)
}

func TestProxyAccessors(t *testing.T) {
	root, inner := newRoot(3)
	log := trace.NewLog()
	p := Install[*fakeSched](root, log, 42)

	assert.Equal(t, uint64(1), p.ID())
	assert.Equal(t, uint64(42), p.Creator())
	assert.Same(t, log, p.Log())
	got, ok := p.Inner()
	assert.True(t, ok)
	assert.Same(t, inner, got)

	assert.Equal(t, uint64(3), root.ThreadID())
	lo, hi := root.StackBounds()
	assert.Equal(t, uintptr(0x1000), lo)
	assert.Equal(t, uintptr(0x2000), hi)
	assert.True(t, root.CanBlock())

	dead := Uninstall[*fakeSched](root)
	assert.Same(t, p, dead)
	_, ok = dead.Inner()
	assert.False(t, ok)

	v := violationOf(func() { dead.YieldNow(root) })
	require.NotNil(t, v)
	assert.Contains(t, v.Error(), "dead")
	v = violationOf(func() { dead.CanBlock() })
	require.NotNil(t, v)
}

func TestTaskIDsAreNotReused(t *testing.T) {
	root, _ := newRoot(1)
	events := Instrument[*fakeSched](root, func(task *sched.Task) {
		for i := 0; i < 5; i++ {
			require.NoError(t, task.Spawn(func(*sched.Task) {}))
		}
	})
	seen := map[uint64]bool{}
	for _, e := range events {
		if e.Desc == trace.KindSpawn {
			assert.False(t, seen[e.TaskID], "task id %d spawned twice", e.TaskID)
			seen[e.TaskID] = true
		}
	}
	assert.Len(t, seen, 6)
}

func TestSessionExposesLog(t *testing.T) {
	root, _ := newRoot(1)
	log := Session[*fakeSched](root, func(task *sched.Task) { task.Yield() })
	assert.Equal(t, 4, log.Len())
	assert.Equal(t, log.Snapshot(), log.Snapshot())
	assert.False(t, log.Start().IsZero())
	assert.Zero(t, log.Live())
}

func TestSessionDetachesEveryTask(t *testing.T) {
	root, inner := newRoot(1)
	log := Session[*fakeSched](root, func(task *sched.Task) {
		require.NoError(t, task.Spawn(func(c *sched.Task) {
			require.NoError(t, c.Spawn(func(*sched.Task) {}))
		}))
		inner.spawnErr = errors.New("no room")
		assert.Error(t, task.Spawn(func(*sched.Task) {}))
	})
	assert.Zero(t, log.Live(), "rejected spawns and finished children are detached")
	assert.Equal(t, 3, countKind(log.Snapshot(), trace.KindDeath))
}

func TestPanickingChildIsDetached(t *testing.T) {
	root, _ := newRoot(1)
	log := trace.NewLog()
	Install[*fakeSched](root, log, 0)
	assert.Panics(t, func() {
		_ = root.Spawn(func(*sched.Task) { panic("boom") })
	})
	assert.Equal(t, 1, log.Live(), "only the root is still attached")
}
