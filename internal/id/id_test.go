package id

import (
	"errors"
	"regexp"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	for _, prefix := range []string{"run", "task"} {
		t.Run(prefix, func(t *testing.T) {
			id1 := Generate(prefix)
			id2 := Generate(prefix)

			if !strings.HasPrefix(id1, prefix+"_") {
				t.Errorf("expected prefix %q, got %s", prefix+"_", id1)
			}
			if id1 == id2 {
				t.Errorf("expected unique IDs, got %s and %s", id1, id2)
			}
			if want := len(prefix) + 1 + 12; len(id1) != want {
				t.Errorf("expected length %d, got %d (%s)", want, len(id1), id1)
			}
		})
	}
}

func TestNewRunIDFormat(t *testing.T) {
	id := NewRunID()
	if !regexp.MustCompile(`^run_[0-9a-f]{12}$`).MatchString(id) {
		t.Errorf("NewRunID() = %q", id)
	}
	if !Valid(id, RunPrefix) {
		t.Errorf("Valid(%q) = false", id)
	}
}

func TestGenerateUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewRunID()
		if seen[id] {
			t.Errorf("collision detected: %s", id)
		}
		seen[id] = true
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"run_0123456789ab", true},
		{"run_0123456789AB", false},
		{"run_0123456789a", false},
		{"task_0123456789ab", false},
		{"trace.json", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Valid(tt.s, RunPrefix); got != tt.want {
			t.Errorf("Valid(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestMatch(t *testing.T) {
	ids := []string{"run_ab0000000001", "run_ab0000000002", "run_cd0000000003"}
	tests := []struct {
		query   string
		want    string
		wantErr error
	}{
		{"run_ab0000000002", "run_ab0000000002", nil},
		{"run_cd", "run_cd0000000003", nil},
		{"cd", "run_cd0000000003", nil},
		{"ab", "", ErrAmbiguous},
		{"ef", "", ErrNoMatch},
		{"", "", ErrNoMatch},
	}
	for _, tt := range tests {
		got, err := Match(tt.query, ids)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Match(%q) err = %v, want %v", tt.query, err, tt.wantErr)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("Match(%q) = %q, %v; want %q", tt.query, got, err, tt.want)
		}
	}
}
