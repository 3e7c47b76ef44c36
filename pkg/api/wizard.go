package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/The-Noona-Project/noona-warden/pkg/errdefs"
	"github.com/The-Noona-Project/noona-warden/pkg/types"
	"github.com/The-Noona-Project/noona-warden/pkg/wizard"
)

func (s *Server) handleWizardMetadata(w http.ResponseWriter, r *http.Request) {
	steps, features := wizard.Metadata()
	respondJSON(w, http.StatusOK, map[string]any{
		"steps":    steps,
		"features": features,
	})
}

func (s *Server) handleWizardState(w http.ResponseWriter, r *http.Request) {
	state, err := s.wizard.LoadState(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleWizardPutState(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, errdefs.Validation("failed to read request body"))
		return
	}

	op, err := wizard.ResolveOperation(body)
	if err != nil {
		respondError(w, err)
		return
	}

	var state *types.WizardState
	switch op.Type {
	case "replace":
		state = op.State
		if err := s.wizard.WriteState(r.Context(), state); err != nil {
			respondError(w, err)
			return
		}
	case "update":
		state, err = s.wizard.ApplyUpdates(r.Context(), op.Updates)
		if err != nil {
			respondError(w, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, state)
}

func (s *Server) handleWizardStepHistory(w http.ResponseWriter, r *http.Request) {
	step := types.StepKey(chi.URLParam(r, "step"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			respondError(w, errdefs.Validation("limit must be a non-negative integer"))
			return
		}
		limit = parsed
	}

	events, err := s.wizard.StepHistory(r.Context(), step, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	if events == nil {
		events = []types.TimelineEvent{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"step":   step,
		"events": events,
	})
}

func (s *Server) handleWizardStepReset(w http.ResponseWriter, r *http.Request) {
	step := types.StepKey(chi.URLParam(r, "step"))

	var payload wizard.ResetPayload
	if err := decodeOptionalBody(r, &payload); err != nil {
		respondError(w, err)
		return
	}

	state, err := s.wizard.ResetStep(r.Context(), step, payload)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"wizard": state})
}

func (s *Server) handleWizardStepBroadcast(w http.ResponseWriter, r *http.Request) {
	step := types.StepKey(chi.URLParam(r, "step"))

	var req wizard.BroadcastRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	state, event, err := s.wizard.RecordBroadcast(r.Context(), step, req)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"wizard": state,
		"event":  event,
		"step":   step,
	})
}

func (s *Server) handleWizardComplete(w http.ResponseWriter, r *http.Request) {
	state, err := s.wizard.Complete(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"wizard": state})
}

// decodeOptionalBody decodes a JSON body into dst, treating an empty
// body as an empty payload
func decodeOptionalBody(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errdefs.Validation("failed to read request body")
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errdefs.Validation("invalid JSON payload")
	}
	return nil
}
