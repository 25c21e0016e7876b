// Package bench holds message-passing workloads used to exercise the
// scheduler under instrumentation.
package bench

import (
	"fmt"
	"time"
)

// Result reports one workload run.
type Result struct {
	Name     string
	Messages int
	Elapsed  time.Duration
	// Count is a workload specific checksum, such as bytes seen by a server.
	Count int
}

// Rate returns messages per second.
func (r Result) Rate() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Messages) / r.Elapsed.Seconds()
}

// PerMessage returns the mean time spent per message.
func (r Result) PerMessage() time.Duration {
	if r.Messages == 0 {
		return 0
	}
	return r.Elapsed / time.Duration(r.Messages)
}

func (r Result) String() string {
	return fmt.Sprintf("%s: %d messages in %s (%.0f msg/s, %s/msg)",
		r.Name, r.Messages, r.Elapsed, r.Rate(), r.PerMessage())
}

// Workloads lists the names accepted by the CLI.
var Workloads = []string{"ring", "shared", "fanout"}
