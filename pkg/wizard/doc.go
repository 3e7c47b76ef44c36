// Package wizard persists and mutates the multi-step setup wizard
// state.
//
// The state is a versioned document with one entry per step
// (foundation, portal, raven, verification), stored under a single key
// in the Noona vault's redis-backed storage endpoint. The Service
// serializes this process's read-merge-write cycles behind a mutex;
// writes from other processes are last-writer-wins by design, and
// callers needing stronger guarantees replace the whole document via
// ResolveOperation's replace shape.
//
// Partial updates follow presence semantics: a field absent from the
// payload is untouched, an explicit JSON null clears it. Completion
// timestamps are stamped automatically when a step transitions to
// complete and cleared when it transitions away, unless the caller
// supplies one. Each step carries a bounded timeline of audit events;
// RecordBroadcast appends, trimming the oldest past the cap.
//
// Store failures never wedge readers: the last state materialized by
// this process keeps being served until the vault is reachable again.
package wizard
