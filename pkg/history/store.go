package history

import (
	"sort"
	"sync"
	"time"

	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

// DefaultCapacity bounds the number of entries retained per service.
const DefaultCapacity = 500

// InstallationLog is the pseudo-service that mirrors every entry
// appended while an installation run is active.
const InstallationLog = "installation"

// Store keeps a bounded, in-memory event log per service. All methods
// are safe for concurrent use; snapshots returned by Get and Summary
// never alias internal state.
type Store struct {
	mu        sync.RWMutex
	logs      map[string]*serviceLog
	capacity  int
	mirroring bool

	now func() time.Time
}

type serviceLog struct {
	mu      sync.Mutex
	entries []types.HistoryEntry // oldest first

	status    types.ServiceStatus
	detail    string
	updatedAt time.Time

	// layer progress accumulated across pull events, keyed by layer id
	layerCurrent map[string]int64
	layerTotal   map[string]int64
}

// New creates a store with the default per-service capacity
func New() *Store {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a store retaining at most capacity entries
// per service
func NewWithCapacity(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		logs:     make(map[string]*serviceLog),
		capacity: capacity,
		now:      time.Now,
	}
}

// MarkInstall toggles mirroring of appended entries into the
// installation log. The coordinator enables it for the duration of an
// install run so callers can follow the whole run in one stream.
func (s *Store) MarkInstall(active bool) {
	s.mu.Lock()
	s.mirroring = active
	s.mu.Unlock()
}

// Append records an entry for the service. A zero timestamp is stamped
// with the current time.
func (s *Store) Append(service string, entry types.HistoryEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}

	s.mu.Lock()
	mirroring := s.mirroring
	lg := s.logs[service]
	if lg == nil {
		lg = newServiceLog()
		s.logs[service] = lg
	}
	var mirror *serviceLog
	if mirroring && service != InstallationLog {
		mirror = s.logs[InstallationLog]
		if mirror == nil {
			mirror = newServiceLog()
			s.logs[InstallationLog] = mirror
		}
	}
	s.mu.Unlock()

	lg.append(entry, s.capacity)

	if mirror != nil {
		mirrored := entry
		if mirrored.Meta == nil {
			mirrored.Meta = map[string]string{"service": service}
		} else {
			meta := make(map[string]string, len(mirrored.Meta)+1)
			for k, v := range mirrored.Meta {
				meta[k] = v
			}
			meta["service"] = service
			mirrored.Meta = meta
		}
		mirror.append(mirrored, s.capacity)
	}
}

// Status is shorthand for appending a status entry
func (s *Store) Status(service string, status types.ServiceStatus, message string) {
	s.Append(service, types.HistoryEntry{
		Type:    types.EntryStatus,
		Status:  status,
		Message: message,
	})
}

// Progress is shorthand for appending a pull-progress entry
func (s *Store) Progress(service string, p types.PullProgress) {
	s.Append(service, types.HistoryEntry{
		Type:     types.EntryProgress,
		Status:   types.StatusPulling,
		Progress: &p,
	})
}

// Log is shorthand for appending a container log line
func (s *Store) Log(service string, line types.LogLine) {
	s.Append(service, types.HistoryEntry{
		Type: types.EntryLog,
		Log:  &line,
	})
}

// Test is shorthand for appending a health-probe result
func (s *Store) Test(service string, result types.ProbeResult) {
	status := types.StatusTested
	if !result.Success {
		status = types.StatusError
	}
	s.Append(service, types.HistoryEntry{
		Type:   types.EntryTest,
		Status: status,
		Test:   &result,
	})
}

// Get returns up to limit most recent entries for the service, oldest
// first. limit <= 0 returns everything retained.
func (s *Store) Get(service string, limit int) []types.HistoryEntry {
	s.mu.RLock()
	lg := s.logs[service]
	s.mu.RUnlock()
	if lg == nil {
		return nil
	}

	lg.mu.Lock()
	defer lg.mu.Unlock()

	entries := lg.entries
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]types.HistoryEntry, len(entries))
	copy(out, entries)
	return out
}

// Summary derives the latest-state view for the service. The second
// return is false when the service has no recorded history.
func (s *Store) Summary(service string) (types.ServiceSummary, bool) {
	s.mu.RLock()
	lg := s.logs[service]
	s.mu.RUnlock()
	if lg == nil {
		return types.ServiceSummary{}, false
	}

	lg.mu.Lock()
	defer lg.mu.Unlock()
	if len(lg.entries) == 0 {
		return types.ServiceSummary{}, false
	}

	return types.ServiceSummary{
		Status:    lg.status,
		Percent:   lg.percent(),
		Detail:    lg.detail,
		UpdatedAt: lg.updatedAt,
	}, true
}

// Services returns all service names with recorded history, sorted
func (s *Store) Services() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.logs))
	for name := range s.logs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Reset drops all history for the service
func (s *Store) Reset(service string) {
	s.mu.Lock()
	delete(s.logs, service)
	s.mu.Unlock()
}

func newServiceLog() *serviceLog {
	return &serviceLog{
		layerCurrent: make(map[string]int64),
		layerTotal:   make(map[string]int64),
	}
}

func (l *serviceLog) append(entry types.HistoryEntry, capacity int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if len(l.entries) > capacity {
		// Copy down instead of reslicing so evicted entries are freed.
		n := copy(l.entries, l.entries[len(l.entries)-capacity:])
		l.entries = l.entries[:n]
	}

	l.updatedAt = entry.Timestamp
	if entry.Status != "" {
		l.status = entry.Status
	}
	if entry.Message != "" {
		l.detail = entry.Message
	}
	if entry.Progress != nil && entry.Progress.LayerID != "" {
		l.layerCurrent[entry.Progress.LayerID] = entry.Progress.Current
		if entry.Progress.Total > 0 {
			l.layerTotal[entry.Progress.LayerID] = entry.Progress.Total
		}
	}

	// Terminal statuses reset pull bookkeeping for the next run.
	switch entry.Status {
	case types.StatusReady, types.StatusTested, types.StatusError:
		l.layerCurrent = make(map[string]int64)
		l.layerTotal = make(map[string]int64)
	}
}

// percent aggregates pull progress across layers. Terminal statuses
// report 100, everything without layer totals reports 0.
func (l *serviceLog) percent() int {
	switch l.status {
	case types.StatusRunning, types.StatusReady, types.StatusTested:
		return 100
	}

	var current, total int64
	for id, t := range l.layerTotal {
		total += t
		c := l.layerCurrent[id]
		if c > t {
			c = t
		}
		current += c
	}
	if total == 0 {
		return 0
	}
	return int(current * 100 / total)
}
