// Package trace records scheduler lifecycle events.
//
// A Log is shared by every instrumented task of one session. Appends are
// serialized, so the position of an event in the log is its total order;
// timestamps taken on different worker threads may overlap.
//
// # Usage
//
//	log := trace.NewLog()
//	id := log.NewTaskID()
//	log.Record(id, threadID, 0, trace.KindSpawn)
//	...
//	events := log.Snapshot()
//
// # Analysis
//
// Check validates the shape of a finished trace (one spawn and one death per
// task, balanced yield/deschedule/spawn brackets, creators that exist) and
// Summarize reports per-kind counts.
//
// # Files
//
// Traces are stored as indented JSON with run metadata (Save, Load) or as
// JSON lines of bare events (WriteLines, ReadLines).
package trace
