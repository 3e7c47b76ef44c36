package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Installation metrics
	InstallRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_install_runs_total",
			Help: "Total number of installation runs by outcome",
		},
		[]string{"outcome"},
	)

	ServiceInstallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_service_installs_total",
			Help: "Total number of per-service installs by service and outcome",
		},
		[]string{"service", "outcome"},
	)

	InstallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warden_install_duration_seconds",
			Help:    "Duration of whole installation runs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// Runtime metrics
	ServicesRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_services_running",
			Help: "Number of managed service containers currently running",
		},
	)

	ImagePullBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_image_pull_bytes_total",
			Help: "Total bytes reported by image pull progress events, by service",
		},
		[]string{"service"},
	)

	HealthProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_health_probes_total",
			Help: "Total number of active health probes by service and result",
		},
		[]string{"service", "result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Wizard metrics
	WizardWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_wizard_writes_total",
			Help: "Total number of wizard state writes by result",
		},
		[]string{"result"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(InstallRunsTotal)
	prometheus.MustRegister(ServiceInstallsTotal)
	prometheus.MustRegister(InstallDuration)
	prometheus.MustRegister(ServicesRunning)
	prometheus.MustRegister(ImagePullBytes)
	prometheus.MustRegister(HealthProbesTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(WizardWritesTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
