package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/The-Noona-Project/noona-warden/pkg/catalog"
	"github.com/The-Noona-Project/noona-warden/pkg/errdefs"
	"github.com/The-Noona-Project/noona-warden/pkg/health"
	"github.com/The-Noona-Project/noona-warden/pkg/history"
	"github.com/The-Noona-Project/noona-warden/pkg/metrics"
	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

// ravenService is the only service with a mount-discovery endpoint.
const ravenService = "noona-raven"

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	includeInstalled := r.URL.Query().Get("includeInstalled") == "true"

	services, err := s.catalog.List(r.Context(), catalog.ListOptions{IncludeInstalled: includeInstalled})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (s *Server) handleInstall(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Services []types.InstallRequest `json:"services"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, errdefs.Validation("invalid JSON payload"))
		return
	}

	results, err := s.coordinator.InstallServices(r.Context(), body.Services)
	if err != nil {
		respondError(w, err)
		return
	}

	status := http.StatusOK
	for _, result := range results {
		if result.Status == types.InstallErrored {
			status = http.StatusMultiStatus
			break
		}
	}
	respondJSON(w, status, map[string]any{"results": results})
}

func (s *Server) handleInstallProgress(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.coordinator.Progress())
}

func (s *Server) handleInstallationLogs(w http.ResponseWriter, r *http.Request) {
	s.respondHistory(w, r, history.InstallationLog)
}

func (s *Server) handleServiceLogs(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := s.catalog.Get(name); err != nil {
		respondError(w, err)
		return
	}
	s.respondHistory(w, r, name)
}

func (s *Server) respondHistory(w http.ResponseWriter, r *http.Request, name string) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, errdefs.Validation("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	entries := s.history.Get(name, limit)
	if entries == nil {
		entries = []types.HistoryEntry{}
	}

	resp := map[string]any{
		"service": name,
		"entries": entries,
	}
	if summary, ok := s.history.Summary(name); ok {
		resp["summary"] = summary
	} else {
		resp["summary"] = nil
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleServiceTest(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	desc, err := s.catalog.Get(name)
	if err != nil {
		respondError(w, err)
		return
	}

	checker := health.ForService(desc)
	if checker == nil {
		respondError(w, errdefs.Conflict("service %s has no testable endpoint", name))
		return
	}

	result := checker.Check(r.Context())

	probe := types.ProbeResult{
		URL:        desc.HealthURL,
		Success:    result.Healthy,
		StatusCode: result.StatusCode,
	}
	s.history.Test(name, probe)

	outcome := "pass"
	status := "passed"
	if !result.Healthy {
		outcome = "fail"
		status = "failed"
	}
	metrics.HealthProbesTotal.WithLabelValues(name, outcome).Inc()

	resp := map[string]any{
		"success":    result.Healthy,
		"status":     status,
		"statusCode": result.StatusCode,
		"url":        desc.HealthURL,
	}
	if !result.Healthy {
		resp["error"] = result.Message
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleServiceHealth(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, err := s.catalog.Get(name); err != nil {
		respondError(w, err)
		return
	}

	summary, ok := s.history.Summary(name)
	if !ok {
		respondJSON(w, http.StatusOK, map[string]any{
			"status":  "unknown",
			"message": "no recorded history",
			"success": false,
		})
		return
	}

	success := false
	switch summary.Status {
	case types.StatusRunning, types.StatusReady, types.StatusTested, types.StatusDetected:
		success = true
	}

	resp := map[string]any{
		"status":    summary.Status,
		"message":   summary.Detail,
		"checkedAt": summary.UpdatedAt,
		"success":   success,
	}
	if summary.Detail != "" {
		resp["detail"] = summary.Detail
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDetectMount(w http.ResponseWriter, r *http.Request) {
	detection := s.engine.DetectMount(r.Context(), ravenService)
	respondJSON(w, http.StatusOK, map[string]any{"detection": detection})
}
