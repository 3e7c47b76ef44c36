package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetTracker clears registered components between tests
func resetTracker() {
	state.mu.Lock()
	defer state.mu.Unlock()
	state.components = make(map[string]component)
	state.started = time.Now()
	state.version = ""
}

func registerCritical() {
	RegisterComponent("runtime", true, "connected")
	RegisterComponent("catalog", true, "7 services")
	RegisterComponent("api", true, "serving")
}

func TestHealth_AllHealthy(t *testing.T) {
	resetTracker()
	SetVersion("1.2.3")
	registerCritical()

	report := Health()
	assert.Equal(t, "healthy", report.Status)
	assert.Equal(t, "1.2.3", report.Version)
	assert.Equal(t, "healthy", report.Components["runtime"])
	assert.Equal(t, []string{"api", "catalog", "runtime"}, Components())
}

func TestHealth_AnyUnhealthyComponentDegrades(t *testing.T) {
	resetTracker()
	registerCritical()
	RegisterComponent("runtime", false, "socket gone")

	report := Health()
	assert.Equal(t, "unhealthy", report.Status)
	assert.Equal(t, "unhealthy: socket gone", report.Components["runtime"])
}

func TestRegisterComponent_ReplacesPreviousState(t *testing.T) {
	resetTracker()
	RegisterComponent("runtime", true, "connected")
	RegisterComponent("runtime", false, "ping timeout")

	report := Health()
	assert.Equal(t, "unhealthy", report.Status)
	assert.Equal(t, "unhealthy: ping timeout", report.Components["runtime"])
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name       string
		setup      func()
		wantStatus string
	}{
		{
			name:       "all critical components ready",
			setup:      registerCritical,
			wantStatus: "ready",
		},
		{
			name: "critical component missing",
			setup: func() {
				RegisterComponent("api", true, "")
			},
			wantStatus: "not_ready",
		},
		{
			name: "critical component unhealthy",
			setup: func() {
				registerCritical()
				RegisterComponent("runtime", false, "daemon unreachable")
			},
			wantStatus: "not_ready",
		},
		{
			name: "non-critical component does not gate readiness",
			setup: func() {
				registerCritical()
				RegisterComponent("wizard-store", false, "vault offline")
			},
			wantStatus: "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetTracker()
			tt.setup()

			report := Readiness()
			assert.Equal(t, tt.wantStatus, report.Status)
			if tt.wantStatus == "not_ready" {
				assert.NotEmpty(t, report.Message)
			}
		})
	}
}

func TestHealthHandler_StatusCodes(t *testing.T) {
	resetTracker()
	registerCritical()

	rec := httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "healthy", report.Status)
	assert.NotEmpty(t, report.Uptime)

	RegisterComponent("catalog", false, "embedded data corrupt")
	rec = httptest.NewRecorder()
	HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReadyHandler_BeforeAndAfterRegistration(t *testing.T) {
	resetTracker()

	rec := httptest.NewRecorder()
	ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var report Report
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "not registered", report.Components["runtime"])

	registerCritical()
	rec = httptest.NewRecorder()
	ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLivenessHandler(t *testing.T) {
	resetTracker()

	rec := httptest.NewRecorder()
	LivenessHandler()(rec, httptest.NewRequest(http.MethodGet, "/live", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "alive", body["status"])
	assert.NotEmpty(t, body["uptime"])
}
