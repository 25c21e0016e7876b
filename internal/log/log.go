// Package log is the process-wide structured logger.
//
// Records fan out to stderr (warnings and errors unless verbose) and, when a
// debug directory is configured, to a daily JSON lines file that always
// receives every level. Pool workers log concurrently, so the active logger
// is swapped atomically.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

var (
	// base has no per-run attributes; current is base plus the run id.
	base    atomic.Pointer[slog.Logger]
	current atomic.Pointer[slog.Logger]

	fileMu     sync.Mutex
	fileWriter *FileWriter
)

// Options configures the logger.
type Options struct {
	// Verbose enables debug and info output to stderr.
	Verbose bool
	// JSONFormat uses JSON instead of text on stderr.
	JSONFormat bool
	// DebugDir receives daily debug log files. Empty disables file logging.
	DebugDir string
	// RetentionDays is how many days of debug files to keep (0 = keep all).
	RetentionDays int
	// Stderr defaults to os.Stderr.
	Stderr io.Writer
}

// Init installs a logger built from opts.
func Init(opts Options) error {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	stderrOpts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if opts.JSONFormat {
		handlers = append(handlers, slog.NewJSONHandler(stderr, stderrOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(stderr, stderrOpts))
	}

	fileMu.Lock()
	defer fileMu.Unlock()
	if fileWriter != nil {
		fileWriter.Close()
		fileWriter = nil
	}
	var removed int
	if opts.DebugDir != "" {
		if opts.RetentionDays > 0 {
			removed = Cleanup(opts.DebugDir, opts.RetentionDays)
		}
		fw, err := NewFileWriter(opts.DebugDir)
		if err != nil {
			return err
		}
		fileWriter = fw
		handlers = append(handlers, slog.NewJSONHandler(fw, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	var h slog.Handler = &multiHandler{handlers: handlers}
	if len(handlers) == 1 {
		h = handlers[0]
	}
	set(slog.New(h))
	if removed > 0 {
		Debug("removed old debug logs", "dir", opts.DebugDir, "count", removed)
	}
	return nil
}

// Close flushes and closes the debug file, if any.
func Close() {
	fileMu.Lock()
	defer fileMu.Unlock()
	if fileWriter != nil {
		fileWriter.Close()
		fileWriter = nil
	}
}

func set(l *slog.Logger) {
	base.Store(l)
	current.Store(l)
	slog.SetDefault(l)
}

func get() *slog.Logger {
	return current.Load()
}

// multiHandler sends each record to every handler that accepts its level.
type multiHandler struct {
	handlers []slog.Handler
}

func (m *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range m.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &multiHandler{handlers: hs}
}

func (m *multiHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(m.handlers))
	for i, h := range m.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &multiHandler{handlers: hs}
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	get().Debug(msg, args...)
}

// Info logs an info message.
func Info(msg string, args ...any) {
	get().Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	get().Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// Enabled reports whether messages at level are written anywhere.
func Enabled(level slog.Level) bool {
	return get().Enabled(context.Background(), level)
}

// With returns a logger with additional context.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// SetOutput sends every level to w as text (for testing).
func SetOutput(w io.Writer) {
	set(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

// SetRunID tags subsequent messages with run_id until ClearRunID.
func SetRunID(runID string) {
	l := base.Load().With(slog.String("run_id", runID))
	current.Store(l)
	slog.SetDefault(l)
}

// ClearRunID drops the run_id tag.
func ClearRunID() {
	l := base.Load()
	current.Store(l)
	slog.SetDefault(l)
}

func init() {
	l := slog.Default()
	base.Store(l)
	current.Store(l)
}
