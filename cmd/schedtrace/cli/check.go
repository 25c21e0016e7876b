package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/majorcontext/schedtrace/internal/trace"
	"github.com/majorcontext/schedtrace/internal/ui"
)

var checkCmd = &cobra.Command{
	Use:   "check <run-id|file.json>",
	Short: "Validate the structure of a trace",
	Long: `Check that a trace is well formed: one root, every task opened by a spawn
and closed by a death, creators that appear before their children, and every
yield, deschedule and spawn bracket completed by the same task.

Exits non-zero when problems are found.`,
	Args: cobra.ExactArgs(1),
	RunE: checkTrace,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func checkTrace(cmd *cobra.Command, args []string) error {
	f, err := loadTrace(args[0])
	if err != nil {
		return err
	}
	issues := trace.Check(f.Events)

	if jsonOut {
		out := struct {
			RunID  string   `json:"run_id"`
			OK     bool     `json:"ok"`
			Issues []string `json:"issues"`
		}{RunID: f.Metadata.RunID, OK: len(issues) == 0, Issues: []string{}}
		for _, i := range issues {
			out.Issues = append(out.Issues, i.String())
		}
		if err := encodeJSON(cmd, out); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		printSummary(w, trace.Summarize(f.Events))
		for _, i := range issues {
			fmt.Fprintf(w, "%s %s\n", ui.FailTag(), i)
		}
		if len(issues) == 0 {
			fmt.Fprintf(w, "%s trace is well formed\n", ui.OKTag())
		}
	}
	if len(issues) > 0 {
		return fmt.Errorf("%d problems in trace", len(issues))
	}
	return nil
}
