// Package catalog holds the static registry of Noona services Warden
// knows how to install.
//
// The catalog is embedded at build time and validated on load: every
// dependency must name another catalog entry and the dependency graph
// must be acyclic. Closure expands a selection to its transitive
// dependencies in install order; ordering is deterministic, with ties
// broken by the canonical boot order (addons first, then the core
// chain from cache to downloader).
package catalog
