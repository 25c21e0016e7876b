// Package storage persists captured traces in a SQLite database so past
// runs can be listed, inspected and exported later.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration

	"github.com/majorcontext/schedtrace/internal/trace"
)

// ErrNotFound is returned when a run doesn't exist.
var ErrNotFound = errors.New("run not found")

// timeFormat has fixed width so stored timestamps sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Run is the stored summary of one traced run.
type Run struct {
	trace.Metadata
	Events int `json:"events"`
}

// Store keeps runs and their events.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens or creates a store at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id         TEXT PRIMARY KEY,
			workload   TEXT NOT NULL,
			params     TEXT NOT NULL,
			workers    INTEGER NOT NULL,
			started    TEXT NOT NULL,
			elapsed_ns INTEGER NOT NULL,
			error      TEXT NOT NULL,
			events     INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS events (
			run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			seq     INTEGER NOT NULL,
			ts      INTEGER NOT NULL,
			task    INTEGER NOT NULL,
			thread  INTEGER NOT NULL,
			creator INTEGER NOT NULL,
			kind    TEXT NOT NULL,
			PRIMARY KEY (run_id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_events_task ON events(run_id, task);
		CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
	`)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a trace. Run ids must be unique.
func (s *Store) Save(f *trace.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	meta := f.Metadata
	if meta.RunID == "" {
		return errors.New("saving trace: missing run id")
	}
	params, err := json.Marshal(meta.Params)
	if err != nil {
		return fmt.Errorf("marshaling params: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, workload, params, workers, started, elapsed_ns, error, events)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, meta.RunID, meta.Workload, string(params), meta.Workers,
		meta.Started.UTC().Format(timeFormat), int64(meta.Elapsed), meta.Error, len(f.Events))
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", meta.RunID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO events (run_id, seq, ts, task, thread, creator, kind)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("preparing event insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range f.Events {
		if _, err := stmt.Exec(meta.RunID, i, int64(e.Timestamp), int64(e.TaskID),
			int64(e.ThreadID), int64(e.CreatorID), string(e.Desc)); err != nil {
			return fmt.Errorf("inserting event %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// List returns every stored run, newest first.
func (s *Store) List() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, workload, params, workers, started, elapsed_ns, error, events
		FROM runs ORDER BY started DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns the summary of one run.
func (s *Store) Get(id string) (Run, error) {
	row := s.db.QueryRow(`
		SELECT id, workload, params, workers, started, elapsed_ns, error, events
		FROM runs WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return r, err
}

// Load returns a stored run with all of its events.
func (s *Store) Load(id string) (*trace.File, error) {
	run, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`
		SELECT ts, task, thread, creator, kind
		FROM events WHERE run_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	events := make([]trace.Event, 0, run.Events)
	for rows.Next() {
		var (
			e                         trace.Event
			ts, task, thread, creator int64
			kind                      string
		)
		if err := rows.Scan(&ts, &task, &thread, &creator, &kind); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		e.Timestamp = uint64(ts)
		e.TaskID = uint64(task)
		e.ThreadID = uint64(thread)
		e.CreatorID = uint64(creator)
		e.Desc = trace.Kind(kind)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &trace.File{Metadata: run.Metadata, Events: events}, nil
}

// Delete removes a run and its events.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM events WHERE run_id = ?`, id); err != nil {
		return fmt.Errorf("deleting events: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("counting deleted runs: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		r         Run
		params    string
		started   string
		elapsedNS int64
	)
	err := row.Scan(&r.RunID, &r.Workload, &params, &r.Workers, &started, &elapsedNS, &r.Error, &r.Events)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scanning run: %w", err)
	}
	if r.Started, err = time.Parse(timeFormat, started); err != nil {
		return r, fmt.Errorf("decoding start time of %s: %w", r.RunID, err)
	}
	r.Elapsed = time.Duration(elapsedNS)
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return r, fmt.Errorf("decoding params of %s: %w", r.RunID, err)
	}
	return r, nil
}
