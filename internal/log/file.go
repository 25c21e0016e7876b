package log

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

const dayFormat = "2006-01-02"

// FileWriter appends to dir/YYYY-MM-DD.jsonl, switching files when the day
// changes, and keeps dir/latest pointing at the current file.
type FileWriter struct {
	dir string
	now func() time.Time

	mu   sync.Mutex
	file *os.File
	day  string
}

// NewFileWriter opens today's file in dir, creating dir if needed.
func NewFileWriter(dir string) (*FileWriter, error) {
	return newFileWriter(dir, time.Now)
}

func newFileWriter(dir string, now func() time.Time) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating debug log dir: %w", err)
	}
	fw := &FileWriter{dir: dir, now: now}
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if err := fw.openLocked(now().Format(dayFormat)); err != nil {
		return nil, err
	}
	return fw, nil
}

// Write implements io.Writer.
func (fw *FileWriter) Write(p []byte) (int, error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.file == nil {
		return 0, os.ErrClosed
	}
	if day := fw.now().Format(dayFormat); day != fw.day {
		if err := fw.openLocked(day); err != nil {
			return 0, err
		}
	}
	return fw.file.Write(p)
}

// Path returns the file currently written to.
func (fw *FileWriter) Path() string {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return filepath.Join(fw.dir, fw.day+".jsonl")
}

// Close closes the current file. Later writes fail.
func (fw *FileWriter) Close() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.file == nil {
		return nil
	}
	err := fw.file.Close()
	fw.file = nil
	return err
}

func (fw *FileWriter) openLocked(day string) error {
	name := day + ".jsonl"
	f, err := os.OpenFile(filepath.Join(fw.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	if fw.file != nil {
		fw.file.Close()
	}
	fw.file = f
	fw.day = day
	fw.link(name)
	return nil
}

// link points dir/latest at name. Failures are ignored.
func (fw *FileWriter) link(name string) {
	latest := filepath.Join(fw.dir, "latest")
	tmp := latest + ".tmp"
	os.Remove(tmp)
	if err := os.Symlink(name, tmp); err != nil {
		return
	}
	if err := os.Rename(tmp, latest); err != nil {
		os.Remove(tmp)
	}
}

var dayFile = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2})\.jsonl$`)

// Cleanup removes daily log files in dir older than retentionDays and
// returns how many were removed.
func Cleanup(dir string, retentionDays int) int {
	return cleanup(dir, retentionDays, time.Now())
}

func cleanup(dir string, retentionDays int, now time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	cutoff := now.AddDate(0, 0, -retentionDays).Format(dayFormat)

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := dayFile.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		if _, err := time.Parse(dayFormat, m[1]); err != nil {
			continue
		}
		// Same-width dates compare correctly as strings.
		if m[1] < cutoff {
			if os.Remove(filepath.Join(dir, entry.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}
