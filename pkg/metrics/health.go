package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// criticalComponents gate readiness: the control plane answers not
// ready until every one of them has registered healthy.
var criticalComponents = []string{"runtime", "catalog", "api"}

// component is one tracked subsystem
type component struct {
	healthy bool
	message string
	updated time.Time
}

// tracker holds component health for the liveness surface. A single
// process-wide instance backs /health, /ready and /live.
type tracker struct {
	mu         sync.RWMutex
	components map[string]component
	started    time.Time
	version    string
}

var state = &tracker{
	components: make(map[string]component),
	started:    time.Now(),
}

// Report is the JSON body served by the health endpoints
type Report struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// SetVersion records the build version reported by the endpoints
func SetVersion(version string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.version = version
}

// RegisterComponent records a component's health. Re-registering a
// name replaces its previous state, so it doubles as the update call.
func RegisterComponent(name string, healthy bool, message string) {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.components[name] = component{
		healthy: healthy,
		message: message,
		updated: time.Now(),
	}
}

// Health reports overall process health: unhealthy as soon as any
// registered component is
func Health() Report {
	state.mu.RLock()
	defer state.mu.RUnlock()

	report := state.report("healthy")
	for name, comp := range state.components {
		if comp.healthy {
			report.Components[name] = "healthy"
			continue
		}
		report.Status = "unhealthy"
		report.Components[name] = "unhealthy: " + comp.message
	}
	return report
}

// Readiness reports whether every critical component has registered
// healthy. Unknown components count as not ready.
func Readiness() Report {
	state.mu.RLock()
	defer state.mu.RUnlock()

	report := state.report("ready")
	for _, name := range criticalComponents {
		comp, ok := state.components[name]
		switch {
		case !ok:
			report.Status = "not_ready"
			report.Message = "waiting for " + name + " initialization"
			report.Components[name] = "not registered"
		case !comp.healthy:
			report.Status = "not_ready"
			report.Message = "waiting for " + name
			report.Components[name] = "not ready: " + comp.message
		default:
			report.Components[name] = "ready"
		}
	}
	return report
}

// report builds the shared Report skeleton. Callers hold the lock.
func (t *tracker) report(status string) Report {
	return Report{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]string, len(t.components)),
		Version:    t.version,
		Uptime:     time.Since(t.started).String(),
	}
}

// Components returns the registered component names, sorted
func Components() []string {
	state.mu.RLock()
	defer state.mu.RUnlock()
	names := make([]string, 0, len(state.components))
	for name := range state.components {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HealthHandler serves /health: 200 while every component is healthy,
// 503 otherwise
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, Health(), "unhealthy")
	}
}

// ReadyHandler serves /ready: 200 once all critical components have
// registered healthy, 503 before that
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeReport(w, Readiness(), "not_ready")
	}
}

// LivenessHandler serves /live: a bare process-is-up signal
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(state.started).String(),
		})
	}
}

func writeReport(w http.ResponseWriter, report Report, failStatus string) {
	w.Header().Set("Content-Type", "application/json")
	code := http.StatusOK
	if report.Status == failStatus {
		code = http.StatusServiceUnavailable
	}
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}
