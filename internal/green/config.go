package green

import "runtime"

// Config configures a Pool.
type Config struct {
	// Workers is the number of worker threads tasks are multiplexed onto.
	Workers int `yaml:"workers"`

	// MaxTasks caps the number of live tasks. Spawns beyond it fail with
	// ErrTooManyTasks. Zero means unlimited.
	MaxTasks int `yaml:"max_tasks"`

	// MaybeYieldEvery makes every n-th MaybeYield call of a task a real
	// yield. Zero disables yielding from MaybeYield.
	MaybeYieldEvery int `yaml:"maybe_yield_every"`

	// StackSize is the nominal stack size reported by StackBounds.
	StackSize uintptr `yaml:"stack_size"`
}

// DefaultConfig returns one worker per CPU.
func DefaultConfig() Config {
	return Config{
		Workers:         runtime.NumCPU(),
		MaybeYieldEvery: 16,
		StackSize:       2 << 20,
	}
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.MaxTasks < 0 {
		c.MaxTasks = 0
	}
	if c.MaybeYieldEvery < 0 {
		c.MaybeYieldEvery = 0
	}
	if c.StackSize == 0 {
		c.StackSize = def.StackSize
	}
	return c
}
