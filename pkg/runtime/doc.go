// Package runtime provides Warden's container runtime client.
//
// The production implementation speaks the Docker-compatible REST API
// through the official client library. A Resolver locates a working
// daemon on cold start by probing candidate endpoints in priority
// order: caller-provided endpoints, the platform default socket,
// DOCKER_HOST, then platform alternatives (extra host sockets on unix,
// named pipes on Windows). The first endpoint that answers a ping wins
// and is cached for the life of the process.
//
// Endpoint normalization rules:
//   - npipe:// URIs are accepted without a filesystem check
//   - tcp:// and http(s):// endpoints are accepted as-is
//   - bare paths and unix:// URIs must exist and be sockets
//
// The API interface is the surface the rest of Warden consumes; tests
// substitute fakes for it. Image pulls stream the daemon's JSON layer
// events, normalized to PullProgress values, to a caller-supplied
// callback. Container log streams are returned in Docker's multiplexed
// framing and demultiplexed by the engine.
package runtime
