package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// File is a trace together with the run that produced it.
type File struct {
	Metadata Metadata `json:"metadata"`
	Events   []Event  `json:"events"`
}

// Metadata describes the run a trace was captured from.
type Metadata struct {
	RunID    string         `json:"run_id"`
	Workload string         `json:"workload"`
	Params   map[string]int `json:"params,omitempty"`
	Workers  int            `json:"workers"`
	Started  time.Time      `json:"started"`
	Elapsed  time.Duration  `json:"elapsed"`
	Error    string         `json:"error,omitempty"`
}

// Load reads a trace from a JSON file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding trace %s: %w", path, err)
	}
	return &f, nil
}

// Save writes the trace to a JSON file.
func (f *File) Save(path string) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// WriteLines writes one JSON object per event.
func WriteLines(w io.Writer, events []Event) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, e := range events {
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encoding event: %w", err)
		}
	}
	return bw.Flush()
}

// ReadLines decodes events written by WriteLines.
func ReadLines(r io.Reader) ([]Event, error) {
	var events []Event
	dec := json.NewDecoder(bufio.NewReader(r))
	for dec.More() {
		var e Event
		if err := dec.Decode(&e); err != nil {
			return nil, fmt.Errorf("decoding event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}
