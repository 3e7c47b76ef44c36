/*
Package engine implements the per-service lifecycle: pull, network,
create, start, log attach and readiness wait.

Starting a service is idempotent — an already-running container records
a running status and returns. Otherwise the image is pulled with layer
progress streamed into the history store, the shared noona-network is
ensured (with Warden's own container attached at first boot), and the
run spec is built by merging descriptor defaults, caller overrides and
the per-service vault token from Warden's environment.

Each started container gets a background log reader that demultiplexes
the daemon's framing into stdout/stderr lines and appends them to the
service's history. Reader lifetimes are bound to the tracked set;
ShutdownAll cancels every reader, then stops and removes every tracked
container.

Services flagged for mount detection trigger a probe across all
reachable runtime endpoints for a Kavita container, whose /data host
path is bound into the new container and advertised through APPDATA
and KAVITA_DATA_MOUNT. Detection failure is not an error; the service
starts without the binding.

Failures carry their stage: pull, run or health. The engine never
retries; the caller decides.
*/
package engine
