package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/schedtrace/internal/bench"
	"github.com/majorcontext/schedtrace/internal/export"
	"github.com/majorcontext/schedtrace/internal/metrics"
	"github.com/majorcontext/schedtrace/internal/run"
	"github.com/majorcontext/schedtrace/internal/trace"
	"github.com/majorcontext/schedtrace/internal/ui"
)

var runFlags struct {
	tasks      int
	messages   int
	size       int
	senders    int
	bytes      int
	maxTasks   int
	maybeYield int
	timeout    time.Duration
	quiet      bool
	noStore    bool
	out        string
	otlp       string
	metrics    string
}

var runCmd = &cobra.Command{
	Use:   "run <ring|shared|fanout>",
	Short: "Run an instrumented workload",
	Long: `Run one of the built-in workloads on a fresh scheduler with every task
instrumented.

  ring    tasks pass messages around a cycle of pipes
  shared  senders stream byte requests to a single server task
  fanout  tasks each send one token to the root

The trace is printed (unless --quiet), stored in the trace database
(unless --no-store), and can also be written to a JSON file, exported to
an OpenTelemetry collector or summarised as Prometheus metrics.`,
	Example: `  schedtrace run ring --tasks 10 --messages 100
  schedtrace run shared --workers 4 --quiet
  schedtrace run fanout --out fanout.json --otlp-endpoint localhost:4318
  schedtrace run ring --metrics /var/lib/node_exporter/schedtrace.prom`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: bench.Workloads,
	RunE:      runWorkload,
}

func init() {
	f := runCmd.Flags()
	f.IntVar(&runFlags.tasks, "tasks", 0, "ring members or fan-out tasks")
	f.IntVar(&runFlags.messages, "messages", 0, "messages per ring member")
	f.IntVar(&runFlags.size, "size", 0, "total shared requests")
	f.IntVar(&runFlags.senders, "senders", 0, "shared sender tasks")
	f.IntVar(&runFlags.bytes, "bytes", 0, "bytes per shared request")
	f.IntVar(&runFlags.maxTasks, "max-tasks", 0, "live task limit (0 = unlimited)")
	f.IntVar(&runFlags.maybeYield, "maybe-yield-every", 0, "yield on every n-th MaybeYield")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "abort the run after this long")
	f.BoolVarP(&runFlags.quiet, "quiet", "q", false, "don't print events")
	f.BoolVar(&runFlags.noStore, "no-store", false, "don't save the trace")
	f.StringVarP(&runFlags.out, "out", "o", "", "write the trace to a JSON file")
	f.StringVar(&runFlags.metrics, "metrics", "", "write Prometheus metrics to a textfile")
	f.StringVar(&runFlags.otlp, "otlp-endpoint", "", "export spans to an OTLP/HTTP collector (env: SCHEDTRACE_OTLP_ENDPOINT)")
	rootCmd.AddCommand(runCmd)
}

func runOptions(cmd *cobra.Command, workload string) run.Options {
	opts := run.Options{
		Workload: workload,
		Pool:     cfg.Pool,
		Ring:     cfg.Ring,
		Shared:   cfg.Shared,
		Fanout:   cfg.Fanout,
	}
	flags := cmd.Flags()
	if flags.Changed("tasks") {
		opts.Ring.Tasks = runFlags.tasks
		opts.Fanout.Tasks = runFlags.tasks
	}
	if flags.Changed("messages") {
		opts.Ring.Messages = runFlags.messages
	}
	if flags.Changed("size") {
		opts.Shared.Size = runFlags.size
	}
	if flags.Changed("senders") {
		opts.Shared.Workers = runFlags.senders
	}
	if flags.Changed("bytes") {
		opts.Shared.Bytes = runFlags.bytes
	}
	if flags.Changed("max-tasks") {
		opts.Pool.MaxTasks = runFlags.maxTasks
	}
	if flags.Changed("maybe-yield-every") {
		opts.Pool.MaybeYieldEvery = runFlags.maybeYield
	}
	return opts
}

func runWorkload(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	if runFlags.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runFlags.timeout)
		defer cancel()
	}

	out, runErr := run.Execute(ctx, runOptions(cmd, args[0]))
	if out == nil {
		return runErr
	}
	f := out.Trace
	w := cmd.OutOrStdout()

	switch {
	case jsonOut:
		if err := trace.WriteLines(w, f.Events); err != nil {
			return err
		}
	case !runFlags.quiet:
		printEvents(w, f.Events, outputWidth(w))
		fmt.Fprintln(w)
	}

	if !jsonOut {
		ui.Section(w, f.Metadata.RunID)
		if runErr == nil {
			fmt.Fprintf(w, "%s %s\n", ui.OKTag(), out.Result)
		} else {
			fmt.Fprintf(w, "%s %s failed\n", ui.FailTag(), f.Metadata.Workload)
		}
		printSummary(w, trace.Summarize(f.Events))
		fmt.Fprintf(w, "  workers=%d spawned=%d switches=%d\n",
			out.Stats.Workers, out.Stats.Spawned, out.Stats.Switches)
		for _, issue := range trace.Check(f.Events) {
			fmt.Fprintf(w, "%s %s\n", ui.WarnTag(), issue)
		}
	}

	if !runFlags.noStore {
		if err := saveTrace(f); err != nil {
			ui.Warnf("trace not stored: %v", err)
		}
	}
	if runFlags.out != "" {
		if err := f.Save(runFlags.out); err != nil {
			return fmt.Errorf("writing %s: %w", runFlags.out, err)
		}
	}
	if runFlags.metrics != "" {
		m := metrics.Collect(f)
		m.SetStats(out.Stats)
		if err := m.WriteTextfile(runFlags.metrics); err != nil {
			return err
		}
	}
	endpoint := runFlags.otlp
	if endpoint == "" {
		endpoint = cfg.OTLP.Endpoint
	}
	if endpoint != "" {
		if err := export.ToEndpoint(cmd.Context(), endpoint, f); err != nil {
			ui.Warnf("span export failed: %v", err)
		}
	}
	return runErr
}

func saveTrace(f *trace.File) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Save(f)
}

// encodeJSON writes v as indented JSON.
func encodeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
