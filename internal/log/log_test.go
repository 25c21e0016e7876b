package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestInit_FileLogging(t *testing.T) {
	tmpDir := t.TempDir()

	if err := Init(Options{DebugDir: tmpDir, Stderr: &bytes.Buffer{}}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Debug("debug message", "key", "value")
	Info("info message")
	Close()

	today := time.Now().Format("2006-01-02")
	content, err := os.ReadFile(filepath.Join(tmpDir, today+".jsonl"))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %s", len(lines), content)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("file line is not JSON: %v", err)
	}
	if rec["msg"] != "debug message" || rec["key"] != "value" {
		t.Errorf("record = %v", rec)
	}
}

func TestInit_StderrLevels(t *testing.T) {
	var stderr bytes.Buffer
	if err := Init(Options{Stderr: &stderr}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Close()

	Debug("debug message")
	Info("info message")
	Warn("warn message")
	Error("error message")

	output := stderr.String()
	if strings.Contains(output, "debug message") || strings.Contains(output, "info message") {
		t.Errorf("debug and info should not reach stderr in non-verbose mode: %s", output)
	}
	if !strings.Contains(output, "warn message") || !strings.Contains(output, "error message") {
		t.Errorf("warn and error should reach stderr: %s", output)
	}
	if Enabled(slog.LevelInfo) {
		t.Error("Enabled(Info) = true without verbose or debug dir")
	}
}

func TestInit_Verbose(t *testing.T) {
	var stderr bytes.Buffer
	if err := Init(Options{Verbose: true, Stderr: &stderr}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Close()

	Debug("debug message")
	if !strings.Contains(stderr.String(), "debug message") {
		t.Error("debug should reach stderr in verbose mode")
	}
}

func TestInit_JSONFormat(t *testing.T) {
	var stderr bytes.Buffer
	if err := Init(Options{JSONFormat: true, Stderr: &stderr}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer Close()

	Warn("careful", "n", 3)
	var rec map[string]any
	if err := json.Unmarshal(stderr.Bytes(), &rec); err != nil {
		t.Fatalf("stderr is not JSON: %v: %s", err, stderr.String())
	}
	if rec["msg"] != "careful" || rec["n"] != float64(3) {
		t.Errorf("record = %v", rec)
	}
}

func TestInit_CleansOldFiles(t *testing.T) {
	tmpDir := t.TempDir()
	old := filepath.Join(tmpDir, time.Now().AddDate(0, 0, -20).Format("2006-01-02")+".jsonl")
	if err := os.WriteFile(old, []byte("old log\n"), 0600); err != nil {
		t.Fatal(err)
	}

	if err := Init(Options{DebugDir: tmpDir, RetentionDays: 14, Stderr: &bytes.Buffer{}}); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	Close()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old log file should have been cleaned up")
	}
}

func TestRunID(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)

	SetRunID("run_abc")
	Info("inside")
	SetRunID("run_def")
	Info("replaced")
	ClearRunID()
	Info("outside")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "run_id=run_abc") {
		t.Errorf("line 0 = %q, want run_abc", lines[0])
	}
	if strings.Contains(lines[1], "run_abc") || !strings.Contains(lines[1], "run_id=run_def") {
		t.Errorf("line 1 = %q, want only run_def", lines[1])
	}
	if strings.Contains(lines[2], "run_id") {
		t.Errorf("line 2 = %q, want no run_id", lines[2])
	}
}

func TestConcurrentLogging(t *testing.T) {
	var mu sync.Mutex
	var buf bytes.Buffer
	SetOutput(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				Debug("tick", "worker", i)
			}
		}()
	}
	for i := 0; i < 20; i++ {
		SetRunID("run_x")
		ClearRunID()
	}
	wg.Wait()

	if n := strings.Count(buf.String(), "msg=tick"); n != 400 {
		t.Errorf("logged %d lines, want 400", n)
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
