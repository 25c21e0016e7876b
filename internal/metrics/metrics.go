// Package metrics summarises a traced run as Prometheus metrics, for
// scraping from a textfile collector or printing in the text exposition
// format.
package metrics

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/majorcontext/schedtrace/internal/green"
	"github.com/majorcontext/schedtrace/internal/trace"
)

const namespace = "schedtrace"

// latencyBuckets spans 1µs to about a quarter second.
var latencyBuckets = prometheus.ExponentialBuckets(1e-6, 4, 10)

// Run holds the metrics of one traced run on a private registry.
type Run struct {
	reg *prometheus.Registry

	events    *prometheus.CounterVec
	suspended *prometheus.HistogramVec
	lifetime  prometheus.Histogram
	tasks     prometheus.Gauge
	threads   prometheus.Gauge
	unclosed  prometheus.Gauge
	duration  prometheus.Gauge
	switches  prometheus.Gauge
	spawned   prometheus.Gauge
	failed    prometheus.Gauge
}

// New registers the metrics of the run described by meta. Every series
// carries the run id and workload as constant labels.
func New(meta trace.Metadata) *Run {
	labels := prometheus.Labels{"run_id": meta.RunID, "workload": meta.Workload}
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Name: name, Help: help, ConstLabels: labels}
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts(opts(name, help)))
	}

	r := &Run{
		reg: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts(opts(
			"events_total", "Lifecycle events recorded, by kind.")), []string{"kind"}),
		suspended: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "suspension_seconds",
			Help:        "Time from an entry event to its completion in the same task, by entry kind.",
			ConstLabels: labels,
			Buckets:     latencyBuckets,
		}, []string{"kind"}),
		lifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "task_lifetime_seconds",
			Help:        "Time from a task's spawn to its death.",
			ConstLabels: labels,
			Buckets:     latencyBuckets,
		}),
		tasks:    gauge("tasks", "Tasks that appear in the trace."),
		threads:  gauge("worker_threads", "Worker threads that recorded events."),
		unclosed: gauge("unfinished_tasks", "Tasks without a death event."),
		duration: gauge("run_duration_seconds", "Wall-clock duration of the run."),
		switches: gauge("context_switches", "Times a worker handed control to a task."),
		spawned:  gauge("tasks_spawned", "Tasks admitted by the pool, instrumented or not."),
		failed:   gauge("run_failed", "1 if the run ended with an error."),
	}
	r.reg.MustRegister(r.events, r.suspended, r.lifetime, r.tasks, r.threads,
		r.unclosed, r.duration, r.switches, r.spawned, r.failed)

	r.duration.Set(meta.Elapsed.Seconds())
	if meta.Error != "" {
		r.failed.Set(1)
	}
	return r
}

// Collect builds the metrics of a stored or freshly captured trace.
func Collect(f *trace.File) *Run {
	r := New(f.Metadata)
	r.Observe(f.Events)
	return r
}

// Observe adds events to the counters and histograms.
func (r *Run) Observe(events []trace.Event) {
	s := trace.Summarize(events)
	for kind, n := range s.Counts {
		r.events.WithLabelValues(string(kind)).Add(float64(n))
	}
	r.tasks.Set(float64(s.Tasks))
	r.threads.Set(float64(s.Threads))

	unfinished := 0
	for _, own := range trace.ByTask(events) {
		first, last := own[0], own[len(own)-1]
		if first.Desc == trace.KindSpawn && last.Desc == trace.KindDeath {
			r.lifetime.Observe(seconds(last.Timestamp - first.Timestamp))
		} else {
			unfinished++
		}

		var open *trace.Event
		for i := range own {
			e := &own[i]
			if open != nil && open.Desc.Completes() == e.Desc {
				r.suspended.WithLabelValues(string(open.Desc)).Observe(seconds(e.Timestamp - open.Timestamp))
				open = nil
				continue
			}
			if e.Desc.Completes() != "" {
				open = e
			}
		}
	}
	r.unclosed.Set(float64(unfinished))
}

// SetStats records scheduler counters that are not visible in the trace.
func (r *Run) SetStats(s green.Stats) {
	r.switches.Set(float64(s.Switches))
	r.spawned.Set(float64(s.Spawned))
}

// Registry exposes the underlying registry.
func (r *Run) Registry() *prometheus.Registry {
	return r.reg
}

// WriteTextfile writes the metrics atomically to path, in the format read
// by the node exporter's textfile collector.
func (r *Run) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}

// WriteText writes the metrics to w in the text exposition format.
func (r *Run) WriteText(w io.Writer) error {
	families, err := r.reg.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func seconds(ns uint64) float64 {
	return time.Duration(ns).Seconds()
}
