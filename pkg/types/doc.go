// Package types defines the core data structures shared across Warden.
//
// It contains the static service descriptor consumed from the catalog,
// the tagged history entry variants (status, progress, log, test) kept
// by the history store, installation run state, and the versioned wizard
// state document with its four fixed steps (foundation, portal, raven,
// verification).
//
// Types here carry no behavior beyond JSON/YAML shaping and deep copies.
// Normalization and invariant enforcement for wizard state live in the
// wizard package; catalog validation lives in the catalog package.
package types
