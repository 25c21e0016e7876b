package main

import (
	"context"
	"errors"
	"os"

	"github.com/majorcontext/schedtrace/cmd/schedtrace/cli"
)

func main() {
	err := cli.Execute()
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		// Interrupted, as a shell reports SIGINT.
		os.Exit(130)
	case errors.Is(err, context.DeadlineExceeded):
		// --timeout expired; same code as timeout(1).
		os.Exit(124)
	default:
		os.Exit(1)
	}
}
