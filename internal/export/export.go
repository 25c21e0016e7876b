// Package export converts recorded task traces into OpenTelemetry spans.
//
// Every task becomes one span lasting from its spawn event to its last
// event, parented on the span of the task that created it. The individual
// lifecycle events are attached as span events with their original
// timestamps. All task spans hang off a single run span.
package export

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/majorcontext/schedtrace/internal/log"
	"github.com/majorcontext/schedtrace/internal/trace"
)

// TracerName is the instrumentation scope of exported spans.
const TracerName = "github.com/majorcontext/schedtrace"

const (
	spanRun = "schedtrace.run"

	attrRunID    = attribute.Key("schedtrace.run.id")
	attrWorkload = attribute.Key("schedtrace.workload")
	attrWorkers  = attribute.Key("schedtrace.workers")
	attrTaskID   = attribute.Key("schedtrace.task.id")
	attrCreator  = attribute.Key("schedtrace.task.creator")
	attrFinished = attribute.Key("schedtrace.task.finished")
	attrThreadID = attribute.Key("schedtrace.thread.id")
)

// Spans records f as spans on tp and returns the number of task spans.
func Spans(ctx context.Context, tp oteltrace.TracerProvider, f *trace.File) int {
	tracer := tp.Tracer(TracerName)
	meta := f.Metadata
	at := func(ts uint64) time.Time {
		return meta.Started.Add(time.Duration(ts))
	}

	end := meta.Started.Add(meta.Elapsed)
	if n := len(f.Events); n > 0 {
		if last := at(f.Events[n-1].Timestamp); last.After(end) {
			end = last
		}
	}

	runCtx, run := tracer.Start(ctx, spanRun,
		oteltrace.WithTimestamp(meta.Started),
		oteltrace.WithAttributes(
			attrRunID.String(meta.RunID),
			attrWorkload.String(meta.Workload),
			attrWorkers.Int(meta.Workers),
		),
	)

	byTask := trace.ByTask(f.Events)
	parents := make(map[uint64]context.Context, len(byTask))
	for _, id := range spawnOrder(f.Events) {
		own := byTask[id]
		first, last := own[0], own[len(own)-1]

		parent, ok := parents[first.CreatorID]
		if !ok {
			parent = runCtx
		}
		taskCtx, span := tracer.Start(parent, fmt.Sprintf("task %d", id),
			oteltrace.WithTimestamp(at(first.Timestamp)),
			oteltrace.WithAttributes(
				attrTaskID.Int64(int64(id)),
				attrCreator.Int64(int64(first.CreatorID)),
			),
		)
		parents[id] = taskCtx

		for _, e := range own {
			span.AddEvent(string(e.Desc),
				oteltrace.WithTimestamp(at(e.Timestamp)),
				oteltrace.WithAttributes(attrThreadID.Int64(int64(e.ThreadID))),
			)
		}
		span.SetAttributes(attrFinished.Bool(last.Desc == trace.KindDeath))
		span.End(oteltrace.WithTimestamp(at(last.Timestamp)))
	}

	run.End(oteltrace.WithTimestamp(end))
	return len(byTask)
}

// spawnOrder lists task ids in order of first appearance, which puts every
// creator ahead of the tasks it spawned.
func spawnOrder(events []trace.Event) []uint64 {
	first := make(map[uint64]int)
	for i, e := range events {
		if _, ok := first[e.TaskID]; !ok {
			first[e.TaskID] = i
		}
	}
	ids := make([]uint64, 0, len(first))
	for id := range first {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return first[ids[i]] < first[ids[j]] })
	return ids
}

// NewProvider returns a tracer provider batching spans to an OTLP/HTTP
// collector. endpoint is either a full URL or host:port, the latter
// spoken to over plain HTTP.
func NewProvider(ctx context.Context, endpoint, service string) (*sdktrace.TracerProvider, error) {
	var opts []otlptracehttp.Option
	if strings.Contains(endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP exporter: %w", err)
	}
	res := resource.NewSchemaless(attribute.String("service.name", service))
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

// ToEndpoint exports f to an OTLP/HTTP collector and waits for delivery.
func ToEndpoint(ctx context.Context, endpoint string, f *trace.File) error {
	tp, err := NewProvider(ctx, endpoint, "schedtrace")
	if err != nil {
		return err
	}
	n := Spans(ctx, tp, f)
	log.Debug("exporting trace spans", "endpoint", endpoint, "run_id", f.Metadata.RunID, "tasks", n)
	if err := tp.Shutdown(ctx); err != nil {
		return fmt.Errorf("flushing spans to %s: %w", endpoint, err)
	}
	return nil
}
