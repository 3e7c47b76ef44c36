package types

import (
	"time"
)

// ServiceCategory classifies a catalog service
type ServiceCategory string

const (
	CategoryCore  ServiceCategory = "core"
	CategoryAddon ServiceCategory = "addon"
)

// EnvField documents one configurable environment variable of a service
type EnvField struct {
	Key         string `json:"key" yaml:"key"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Default     string `json:"default,omitempty" yaml:"default,omitempty"`
	Required    bool   `json:"required,omitempty" yaml:"required,omitempty"`
	ReadOnly    bool   `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
	Warning     string `json:"warning,omitempty" yaml:"warning,omitempty"`
}

// ServiceDescriptor is the static catalog entry for one service
type ServiceDescriptor struct {
	Name           string          `json:"name" yaml:"name"`
	DisplayName    string          `json:"displayName" yaml:"displayName"`
	Category       ServiceCategory `json:"category" yaml:"category"`
	Image          string          `json:"image" yaml:"image"`
	Port           int             `json:"port,omitempty" yaml:"port,omitempty"`
	HostServiceURL string          `json:"hostServiceUrl,omitempty" yaml:"hostServiceUrl,omitempty"`
	HealthURL      string          `json:"healthUrl,omitempty" yaml:"healthUrl,omitempty"`
	Env            []string        `json:"env,omitempty" yaml:"env,omitempty"`
	EnvConfig      []EnvField      `json:"envConfig,omitempty" yaml:"envConfig,omitempty"`
	Dependencies   []string        `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	Volumes        []string        `json:"volumes,omitempty" yaml:"volumes,omitempty"`

	// DetectMount marks services whose run spec is enriched by probing the
	// runtime for an external application's data mount (Kavita for raven).
	DetectMount bool `json:"detectMount,omitempty" yaml:"detectMount,omitempty"`
	// MountTarget is the container-side path the detected mount is bound to.
	MountTarget string `json:"mountTarget,omitempty" yaml:"mountTarget,omitempty"`
}

// ServiceStatus represents the lifecycle status of a service as recorded
// in its history
type ServiceStatus string

const (
	StatusQueued    ServiceStatus = "queued"
	StatusPulling   ServiceStatus = "pulling"
	StatusStarting  ServiceStatus = "starting"
	StatusRunning   ServiceStatus = "running"
	StatusReady     ServiceStatus = "ready"
	StatusTested    ServiceStatus = "tested"
	StatusError     ServiceStatus = "error"
	StatusDetecting ServiceStatus = "detecting"
	StatusNotFound  ServiceStatus = "not-found"
	StatusDetected  ServiceStatus = "detected"
)

// EntryType tags the variant of a history entry
type EntryType string

const (
	EntryStatus   EntryType = "status"
	EntryProgress EntryType = "progress"
	EntryLog      EntryType = "log"
	EntryTest     EntryType = "test"
)

// PullProgress is one normalized image-pull layer event
type PullProgress struct {
	LayerID string `json:"layerId"`
	Phase   string `json:"phase"`
	Current int64  `json:"current"`
	Total   int64  `json:"total"`
	Detail  string `json:"detail,omitempty"`
}

// LogLine is one raw container output line
type LogLine struct {
	Stream  string `json:"stream"` // "stdout" or "stderr"
	Message string `json:"message"`
}

// ProbeResult is the outcome of one active health probe
type ProbeResult struct {
	URL        string `json:"url"`
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode,omitempty"`
}

// HistoryEntry is one record in a service's bounded event log
type HistoryEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Type      EntryType         `json:"type"`
	Status    ServiceStatus     `json:"status,omitempty"`
	Message   string            `json:"message,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
	Progress  *PullProgress     `json:"progress,omitempty"`
	Log       *LogLine          `json:"log,omitempty"`
	Test      *ProbeResult      `json:"test,omitempty"`
}

// ServiceSummary is the derived latest-state view of a service's history
type ServiceSummary struct {
	Status    ServiceStatus `json:"status"`
	Percent   int           `json:"percent"`
	Detail    string        `json:"detail,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// InstallRequest is one caller-supplied service to install
type InstallRequest struct {
	Name string            `json:"name"`
	Env  map[string]string `json:"env,omitempty"`
}

// InstallState is the per-service state within an installation run
type InstallState string

const (
	InstallPending    InstallState = "pending"
	InstallInstalling InstallState = "installing"
	InstallInstalled  InstallState = "installed"
	InstallErrored    InstallState = "error"
)

// InstallPhase is the whole-run state of an installation
type InstallPhase string

const (
	PhaseIdle       InstallPhase = "idle"
	PhaseInstalling InstallPhase = "installing"
	PhaseComplete   InstallPhase = "complete"
	PhaseFailed     InstallPhase = "failed"
)

// InstallResult is the outcome for one service of an install run
type InstallResult struct {
	Name   string       `json:"name"`
	Status InstallState `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// InstallItem is one row of the progress summary
type InstallItem struct {
	Name   string       `json:"name"`
	Status InstallState `json:"status"`
	Error  string       `json:"error,omitempty"`
}

// InstallProgress summarizes the current (or last) installation run
type InstallProgress struct {
	Status  InstallPhase  `json:"status"`
	Percent int           `json:"percent"`
	Items   []InstallItem `json:"items"`
}

// MountDetection is the result of external-app mount discovery.
// MountPath is nil when no matching container was found so the wire
// shape carries an explicit null.
type MountDetection struct {
	MountPath *string `json:"mountPath"`
	Container string  `json:"container,omitempty"`
}
