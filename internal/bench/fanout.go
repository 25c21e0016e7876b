package bench

import (
	"fmt"
	"time"

	"github.com/majorcontext/schedtrace/internal/sched"
	"github.com/majorcontext/schedtrace/internal/tasksync"
)

// FanoutConfig sizes the fan-out workload.
type FanoutConfig struct {
	Tasks int `yaml:"tasks"`
}

// DefaultFanout spawns ten tasks.
var DefaultFanout = FanoutConfig{Tasks: 10}

// Fanout spawns cfg.Tasks tasks that each send one token on a shared
// channel, then receives every token.
func Fanout(t *sched.Task, cfg FanoutConfig) (Result, error) {
	if cfg.Tasks < 0 {
		return Result{}, fmt.Errorf("negative task count %d", cfg.Tasks)
	}
	tokens := tasksync.NewChan[struct{}]()
	start := time.Now()
	for i := 0; i < cfg.Tasks; i++ {
		err := t.Spawn(func(t *sched.Task) {
			tokens.Send(t, struct{}{})
		})
		if err != nil {
			return Result{}, fmt.Errorf("spawning task %d: %w", i, err)
		}
	}
	for i := 0; i < cfg.Tasks; i++ {
		if _, ok := tokens.Recv(t); !ok {
			return Result{}, fmt.Errorf("token channel closed after %d tokens", i)
		}
	}
	return Result{
		Name:     "fanout",
		Messages: cfg.Tasks,
		Elapsed:  time.Since(start),
		Count:    cfg.Tasks,
	}, nil
}
