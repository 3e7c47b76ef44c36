// Package history records per-service lifecycle events in bounded
// in-memory logs.
//
// Every status transition, pull-progress event, container log line and
// health-probe result appended for a service lands in that service's
// log, capped at DefaultCapacity entries with oldest-first eviction.
// While an installation run is active the store additionally mirrors
// entries into the "installation" pseudo-service so a single stream
// covers the whole run. Summary folds a log into the latest status,
// an aggregate pull percentage and the last detail message.
package history
