package ui

import (
	"bytes"
	"os"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetWriter(&buf)
	t.Cleanup(func() { SetWriter(nil) })
	return &buf
}

func TestMessages(t *testing.T) {
	SetColorEnabled(false)
	tests := []struct {
		name string
		emit func()
		want string
	}{
		{"Warn", func() { Warn("something happened") }, "Warning: something happened\n"},
		{"Warnf", func() { Warnf("skipping %q", "ring") }, "Warning: skipping \"ring\"\n"},
		{"Error", func() { Error("something failed") }, "Error: something failed\n"},
		{"Errorf", func() { Errorf("deadlock after %d tasks", 3) }, "Error: deadlock after 3 tasks\n"},
		{"Info", func() { Info("saved") }, "saved\n"},
		{"Infof", func() { Infof("saved %s", "run_x") }, "saved run_x\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := capture(t)
			tt.emit()
			if got := buf.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestColoredPrefix(t *testing.T) {
	buf := capture(t)
	SetColorEnabled(true)
	defer SetColorEnabled(false)

	Error("test message")
	if got, want := buf.String(), "\033[31mError:\033[0m test message\n"; got != want {
		t.Errorf("Error with color = %q, want %q", got, want)
	}
}

func TestColorFunctions(t *testing.T) {
	tests := []struct {
		name string
		fn   func(string) string
		code string
	}{
		{"Bold", Bold, "1"},
		{"Dim", Dim, "2"},
		{"Green", Green, "32"},
		{"Red", Red, "31"},
		{"Yellow", Yellow, "33"},
		{"Cyan", Cyan, "36"},
		{"Magenta", Magenta, "35"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetColorEnabled(true)
			if got, want := tt.fn("hi"), "\033["+tt.code+"mhi\033[0m"; got != want {
				t.Errorf("colored = %q, want %q", got, want)
			}
			SetColorEnabled(false)
			if got := tt.fn("hi"); got != "hi" {
				t.Errorf("plain = %q, want %q", got, "hi")
			}
		})
	}
}

func TestTags(t *testing.T) {
	SetColorEnabled(false)
	if OKTag() != "✓" || FailTag() != "✗" || WarnTag() != "⚠" {
		t.Errorf("tags = %q %q %q", OKTag(), FailTag(), WarnTag())
	}
}

func TestSection(t *testing.T) {
	SetColorEnabled(false)
	var buf bytes.Buffer
	Section(&buf, "Stats")
	if got, want := buf.String(), "Stats\n─────\n"; got != want {
		t.Errorf("Section = %q, want %q", got, want)
	}
}

func TestNoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	f, err := os.CreateTemp(t.TempDir(), "ui-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if detectColor(f) {
		t.Error("detectColor should return false when NO_COLOR is set")
	}
}

func TestWidthFallback(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "ui-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if got := Width(f, 100); got != 100 {
		t.Errorf("Width(file) = %d, want fallback 100", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		s     string
		width int
		want  string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 6, "hello…"},
		{"héllo wörld", 4, "hél…"},
		{"hello", 0, "hello"},
		{"hello", 1, "…"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.width); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.width, got, tt.want)
		}
	}
}
