// Package id generates and resolves run identifiers.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// RunPrefix prefixes every trace run id.
const RunPrefix = "run"

// Errors returned by Match.
var (
	ErrNoMatch   = errors.New("no matching id")
	ErrAmbiguous = errors.New("ambiguous id")
)

var format = regexp.MustCompile(`^[a-z]+_[0-9a-f]{12}$`)

// Generate returns <prefix>_<12 hex chars> from 6 random bytes.
func Generate(prefix string) string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand does not fail on supported platforms; keep ids unique anyway.
		return fmt.Sprintf("%s_%012x", prefix, uint64(time.Now().UnixNano())&0xffffffffffff)
	}
	return prefix + "_" + hex.EncodeToString(b)
}

// NewRunID returns a fresh run id.
func NewRunID() string {
	return Generate(RunPrefix)
}

// Valid reports whether s is a well-formed id with the given prefix.
func Valid(s, prefix string) bool {
	return strings.HasPrefix(s, prefix+"_") && format.MatchString(s)
}

// Match resolves query against ids. An exact id wins; otherwise query must
// be a prefix of exactly one id. The prefix part may be left off, so
// "ab12" finds "run_ab12...".
func Match(query string, ids []string) (string, error) {
	var found []string
	for _, id := range ids {
		if id == query {
			return id, nil
		}
		_, rest, _ := strings.Cut(id, "_")
		if strings.HasPrefix(id, query) || strings.HasPrefix(rest, query) {
			found = append(found, id)
		}
	}
	switch {
	case query == "" || len(found) == 0:
		return "", fmt.Errorf("%q: %w", query, ErrNoMatch)
	case len(found) > 1:
		return "", fmt.Errorf("%q matches %s: %w", query, strings.Join(found, ", "), ErrAmbiguous)
	}
	return found[0], nil
}
