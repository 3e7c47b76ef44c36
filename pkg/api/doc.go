/*
Package api serves Warden's control-plane HTTP API.

All endpoints speak JSON and are unauthenticated: the control plane is
assumed to live on a trusted internal network behind the setup UI.

Service endpoints under /api cover the catalog listing, installation
(start, progress, per-service and whole-run history), active health
probes and Raven's mount discovery. Wizard endpoints under
/api/setup/wizard expose the persisted step state: metadata, reads,
partial updates or full replaces, per-step timeline history, resets,
broadcasts and finalization.

Failures always map the error taxonomy onto statuses — validation 400,
unknown service or step 404, conflicting install 409, unreachable
runtime or store 502 — with a concise {error} body. An install that
partially failed answers 207 with per-service results.

Liveness (/health, /ready, /live) and /metrics are served from the
metrics package alongside the API.
*/
package api
