package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/majorcontext/schedtrace/internal/export"
	"github.com/majorcontext/schedtrace/internal/metrics"
	"github.com/majorcontext/schedtrace/internal/storage"
	"github.com/majorcontext/schedtrace/internal/trace"
	"github.com/majorcontext/schedtrace/internal/ui"
)

var (
	exportFormat   string
	exportEndpoint string
)

var tracesCmd = &cobra.Command{
	Use:     "traces",
	Aliases: []string{"trace"},
	Short:   "Manage stored traces",
}

var tracesListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List stored traces, newest first",
	Args:    cobra.NoArgs,
	RunE:    listTraces,
}

var tracesShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print the events of a stored trace",
	Long:  `Print the events of a stored trace. A unique prefix of the run id is enough.`,
	Args:  cobra.ExactArgs(1),
	RunE:  showTrace,
}

var tracesRmCmd = &cobra.Command{
	Use:     "rm <run-id>...",
	Aliases: []string{"delete"},
	Short:   "Delete stored traces",
	Args:    cobra.MinimumNArgs(1),
	RunE:    removeTraces,
}

var tracesExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Export a stored trace",
	Long: `Write a stored trace to stdout as a JSON document (--format json) or as
one JSON object per event (--format jsonl), or as Prometheus metrics in
the text exposition format (--format prom). With --otlp-endpoint the trace
is sent to an OpenTelemetry collector as spans instead.`,
	Args: cobra.ExactArgs(1),
	RunE: exportTrace,
}

func init() {
	tracesExportCmd.Flags().StringVar(&exportFormat, "format", "json", "output format: json, jsonl or prom")
	tracesExportCmd.Flags().StringVar(&exportEndpoint, "otlp-endpoint", "", "send spans to an OTLP/HTTP collector")
	tracesCmd.AddCommand(tracesListCmd, tracesShowCmd, tracesRmCmd, tracesExportCmd)
	rootCmd.AddCommand(tracesCmd)
}

func listTraces(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.List()
	if err != nil {
		return err
	}
	if jsonOut {
		if runs == nil {
			runs = []storage.Run{}
		}
		return encodeJSON(cmd, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No traces found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tWORKLOAD\tPARAMS\tWORKERS\tEVENTS\tELAPSED\tAGE\tSTATUS")
	for _, r := range runs {
		status := "ok"
		if r.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			r.RunID,
			r.Workload,
			formatParams(r.Params),
			r.Workers,
			r.Events,
			r.Elapsed.Round(time.Microsecond),
			formatAge(r.Started),
			status,
		)
	}
	return w.Flush()
}

func showTrace(cmd *cobra.Command, args []string) error {
	f, err := loadTrace(args[0])
	if err != nil {
		return err
	}
	if jsonOut {
		return trace.WriteLines(cmd.OutOrStdout(), f.Events)
	}
	w := cmd.OutOrStdout()
	meta := f.Metadata
	ui.Section(w, fmt.Sprintf("%s  %s %s", meta.RunID, meta.Workload, formatParams(meta.Params)))
	if meta.Error != "" {
		fmt.Fprintf(w, "%s %s\n", ui.FailTag(), meta.Error)
	}
	printEvents(w, f.Events, outputWidth(w))
	fmt.Fprintln(w)
	printSummary(w, trace.Summarize(f.Events))
	return nil
}

func removeTraces(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	for _, arg := range args {
		runID, err := resolveRunID(s, arg)
		if err != nil {
			return err
		}
		if err := s.Delete(runID); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", runID)
	}
	return nil
}

func exportTrace(cmd *cobra.Command, args []string) error {
	f, err := loadTrace(args[0])
	if err != nil {
		return err
	}
	if exportEndpoint != "" {
		if err := export.ToEndpoint(cmd.Context(), exportEndpoint, f); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", f.Metadata.RunID, exportEndpoint)
		return nil
	}
	switch exportFormat {
	case "json":
		return encodeJSON(cmd, f)
	case "jsonl":
		return trace.WriteLines(cmd.OutOrStdout(), f.Events)
	case "prom":
		return metrics.Collect(f).WriteText(cmd.OutOrStdout())
	}
	return fmt.Errorf("unknown format %q (want json, jsonl or prom)", exportFormat)
}
