// Package install coordinates whole installation runs.
//
// A run expands the requested services to their transitive dependency
// closure, starts each member in topological order through the
// lifecycle engine and records the outcome. Failures are contained:
// a failed service marks its dependents errored without starting them,
// and the run continues with the remaining services. Install
// transitions are mirrored into wizard step state through a
// uni-directional publisher; the wizard never calls back into the
// coordinator. Runs are serialized by a process-wide lock and survive
// cancellation of the HTTP request that started them.
package install
