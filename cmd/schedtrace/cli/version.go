package cli

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X .../cli.version=...".
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// tracedDeps are the modules whose versions affect trace storage and export.
var tracedDeps = []string{
	"go.opentelemetry.io/otel/sdk",
	"github.com/prometheus/client_golang",
	"modernc.org/sqlite",
}

type buildInfo struct {
	Version string            `json:"version"`
	Commit  string            `json:"commit,omitempty"`
	Built   string            `json:"built,omitempty"`
	Go      string            `json:"go,omitempty"`
	Deps    map[string]string `json:"deps,omitempty"`
}

func currentBuild() buildInfo {
	b := buildInfo{Version: version}
	if commit != "none" {
		b.Commit = commit
	}
	if date != "unknown" {
		b.Built = date
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	b.Go = info.GoVersion
	for _, dep := range info.Deps {
		for _, path := range tracedDeps {
			if dep.Path == path {
				if b.Deps == nil {
					b.Deps = make(map[string]string)
				}
				b.Deps[path] = dep.Version
			}
		}
	}
	return b
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build and dependency versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b := currentBuild()
		if jsonOut {
			return encodeJSON(cmd, b)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "schedtrace %s\n", b.Version)
		if b.Commit != "" {
			fmt.Fprintf(w, "  commit: %s\n", b.Commit)
		}
		if b.Built != "" {
			fmt.Fprintf(w, "  built:  %s\n", b.Built)
		}
		if b.Go != "" {
			fmt.Fprintf(w, "  go:     %s\n", b.Go)
		}
		for _, path := range tracedDeps {
			if v, ok := b.Deps[path]; ok {
				name := path[strings.LastIndex(path, "/")+1:]
				fmt.Fprintf(w, "  %-7s %s\n", name+":", v)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
