package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/majorcontext/schedtrace/internal/id"
	"github.com/majorcontext/schedtrace/internal/storage"
	"github.com/majorcontext/schedtrace/internal/trace"
	"github.com/majorcontext/schedtrace/internal/ui"
)

func openStore() (*storage.Store, error) {
	s, err := storage.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("opening trace store: %w", err)
	}
	return s, nil
}

// resolveRunID finds the stored run matching an id or id prefix.
func resolveRunID(s *storage.Store, query string) (string, error) {
	runs, err := s.List()
	if err != nil {
		return "", err
	}
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.RunID
	}
	return id.Match(query, ids)
}

// loadTrace reads arg as a trace file if such a file exists, and as a
// stored run id otherwise.
func loadTrace(arg string) (*trace.File, error) {
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		return trace.Load(arg)
	}
	s, err := openStore()
	if err != nil {
		return nil, err
	}
	defer s.Close()
	runID, err := resolveRunID(s, arg)
	if err != nil {
		return nil, err
	}
	return s.Load(runID)
}

func styleKind(k trace.Kind) string {
	s := fmt.Sprintf("%-12s", k)
	switch k {
	case trace.KindSpawn:
		return ui.Green(s)
	case trace.KindDeath:
		return ui.Red(s)
	case trace.KindBeforeSpawn, trace.KindAfterSpawn:
		return ui.Cyan(s)
	case trace.KindDeschedule, trace.KindWakeup:
		return ui.Yellow(s)
	case trace.KindYield, trace.KindMaybeYield, trace.KindDoneYield:
		return ui.Magenta(s)
	}
	return s
}

// printEvents writes one line per event, cut to width columns when width
// is positive.
// outputWidth is the terminal width of w, or 0 (no truncation) when w is
// not a terminal.
func outputWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	return ui.Width(f, 0)
}

func printEvents(w io.Writer, events []trace.Event, width int) {
	for _, e := range events {
		head := fmt.Sprintf("%12s  task %-4d thread %-3d creator %-4d ",
			time.Duration(e.Timestamp), e.TaskID, e.ThreadID, e.CreatorID)
		if width > 0 {
			head = ui.Truncate(head, width-12)
		}
		fmt.Fprintf(w, "%s%s\n", ui.Dim(head), styleKind(e.Desc))
	}
}

func printSummary(w io.Writer, s trace.Summary) {
	fmt.Fprintf(w, "%d events, %d tasks, %d threads over %s\n", s.Events, s.Tasks, s.Threads, s.Duration)
	parts := make([]string, 0, len(s.Counts))
	for _, k := range s.Kinds() {
		parts = append(parts, fmt.Sprintf("%s=%d", k, s.Counts[k]))
	}
	if len(parts) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(parts, " "))
	}
}

func formatParams(p map[string]int) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, p[k])
	}
	return strings.Join(parts, " ")
}

func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}
