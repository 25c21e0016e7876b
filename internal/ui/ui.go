// Package ui formats user-facing terminal output: colours, status tags and
// width-aware truncation.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

var writer io.Writer = os.Stderr

// SetWriter overrides where Warn, Error and Info write. nil restores stderr.
func SetWriter(w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	writer = w
}

var (
	stdoutColor = detectColor(os.Stdout)
	stderrColor = detectColor(os.Stderr)
)

func detectColor(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetColorEnabled overrides colour detection (for testing).
func SetColorEnabled(enabled bool) {
	stdoutColor = enabled
	stderrColor = enabled
}

// ColorEnabled reports whether stdout output is coloured.
func ColorEnabled() bool {
	return stdoutColor
}

func wrap(on bool, code, s string) string {
	if !on {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// Bold returns s in bold on stdout.
func Bold(s string) string { return wrap(stdoutColor, "1", s) }

// Dim returns s dimmed on stdout.
func Dim(s string) string { return wrap(stdoutColor, "2", s) }

// Green returns s in green on stdout.
func Green(s string) string { return wrap(stdoutColor, "32", s) }

// Red returns s in red on stdout.
func Red(s string) string { return wrap(stdoutColor, "31", s) }

// Yellow returns s in yellow on stdout.
func Yellow(s string) string { return wrap(stdoutColor, "33", s) }

// Cyan returns s in cyan on stdout.
func Cyan(s string) string { return wrap(stdoutColor, "36", s) }

// Magenta returns s in magenta on stdout.
func Magenta(s string) string { return wrap(stdoutColor, "35", s) }

// Section prints a bold title with an underline to w.
func Section(w io.Writer, title string) {
	fmt.Fprintln(w, Bold(title))
	fmt.Fprintln(w, Dim(strings.Repeat("─", utf8.RuneCountInString(title))))
}

// OKTag returns a green check mark.
func OKTag() string { return Green("✓") }

// FailTag returns a red cross.
func FailTag() string { return Red("✗") }

// WarnTag returns a yellow warning sign.
func WarnTag() string { return Yellow("⚠") }

// Width returns the column count of the terminal behind f, or fallback
// when f is not a terminal.
func Width(f *os.File, fallback int) int {
	if !term.IsTerminal(int(f.Fd())) {
		return fallback
	}
	w, _, err := term.GetSize(int(f.Fd()))
	if err != nil || w <= 0 {
		return fallback
	}
	return w
}

// Truncate shortens s to at most width runes, marking the cut with "…".
// A width below one leaves s unchanged.
func Truncate(s string, width int) string {
	if width < 1 || utf8.RuneCountInString(s) <= width {
		return s
	}
	r := []rune(s)
	return string(r[:width-1]) + "…"
}

// Warn prints a warning to stderr.
func Warn(msg string) {
	fmt.Fprintf(writer, "%s %s\n", wrap(stderrColor, "33", "Warning:"), msg)
}

// Warnf is Warn with formatting.
func Warnf(format string, args ...any) {
	Warn(fmt.Sprintf(format, args...))
}

// Error prints an error to stderr.
func Error(msg string) {
	fmt.Fprintf(writer, "%s %s\n", wrap(stderrColor, "31", "Error:"), msg)
}

// Errorf is Error with formatting.
func Errorf(format string, args ...any) {
	Error(fmt.Sprintf(format, args...))
}

// Info prints msg to stderr without a prefix.
func Info(msg string) {
	fmt.Fprintln(writer, msg)
}

// Infof is Info with formatting.
func Infof(format string, args ...any) {
	Info(fmt.Sprintf(format, args...))
}
