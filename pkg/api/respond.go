package api

import (
	"encoding/json"
	"net/http"

	"github.com/The-Noona-Project/noona-warden/pkg/errdefs"
	"github.com/The-Noona-Project/noona-warden/pkg/log"
)

// errorResponse is the uniform failure body: a concise message, never
// a stack trace
type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

// respondError maps the error taxonomy onto HTTP statuses: validation
// 400, not-found 404, conflict 409, upstream runtime/store 502,
// anything unclassified 500
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errdefs.IsValidation(err):
		status = http.StatusBadRequest
	case errdefs.IsNotFound(err):
		status = http.StatusNotFound
	case errdefs.IsConflict(err):
		status = http.StatusConflict
	case errdefs.IsRuntime(err), errdefs.IsStore(err):
		status = http.StatusBadGateway
	}
	respondJSON(w, status, errorResponse{Error: err.Error()})
}
