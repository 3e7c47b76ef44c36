// Package errdefs defines the error taxonomy shared across Warden.
//
// Components return these typed errors; only the HTTP layer maps them to
// status codes (validation 400, not-found 404, conflict 409, runtime and
// store failures 502, everything else 500). Per-service lifecycle
// failures use ServiceStartFailed and are recorded in install results
// rather than propagated across service boundaries.
package errdefs
