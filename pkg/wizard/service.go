package wizard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/The-Noona-Project/noona-warden/pkg/errdefs"
	"github.com/The-Noona-Project/noona-warden/pkg/log"
	"github.com/The-Noona-Project/noona-warden/pkg/types"
)

// DefaultTimelineLimit caps the number of timeline events retained per
// step; the oldest are trimmed first.
const DefaultTimelineLimit = 100

// Service owns the persisted wizard state document. All writes go
// through a single mutex so the read-merge-write cycle of a single
// process is serialized; concurrent processes are last-writer-wins.
type Service struct {
	store Store
	key   string
	limit int

	mu   sync.Mutex
	last *types.WizardState // last successfully materialized state

	now    func() time.Time
	newID  func() string
	logger zerolog.Logger
}

// Option customizes a Service
type Option func(*Service)

// WithKey overrides the storage key
func WithKey(key string) Option {
	return func(s *Service) { s.key = key }
}

// WithTimelineLimit overrides the per-step timeline cap
func WithTimelineLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

// NewService creates the wizard state service backed by the given store
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		key:    DefaultStateKey,
		limit:  DefaultTimelineLimit,
		now:    time.Now,
		newID:  uuid.NewString,
		logger: log.WithComponent("wizard"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadState fetches the current state, synthesizing a fresh default
// when nothing is stored yet. When the store is unreachable the last
// state this process materialized is returned instead, so readers keep
// working through a vault outage.
func (s *Service) LoadState(ctx context.Context) (*types.WizardState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Service) loadLocked(ctx context.Context) (*types.WizardState, error) {
	raw, err := s.store.Get(ctx, s.key)
	if err != nil {
		if s.last != nil {
			s.logger.Warn().Err(err).Msg("store unreachable, serving last-known wizard state")
			return s.last.Clone(), nil
		}
		return nil, err
	}
	if raw == nil {
		state := s.defaultState()
		s.last = state.Clone()
		return state, nil
	}

	var state types.WizardState
	if err := json.Unmarshal(raw, &state); err != nil {
		// Malformed documents are replaced by a default rather than
		// wedging the wizard permanently.
		s.logger.Error().Err(err).Msg("stored wizard state is malformed, resetting to default")
		state2 := s.defaultState()
		s.last = state2.Clone()
		return state2, nil
	}

	s.normalize(&state)
	s.last = state.Clone()
	return &state, nil
}

// WriteState normalizes the document, stamps updatedAt and persists it.
// Write failures are returned but the in-memory copy is kept so
// subsequent reads serve the intended state.
func (s *Service) WriteState(ctx context.Context, state *types.WizardState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Full replaces carry no per-operation limit, so the configured cap
	// applies.
	for _, key := range types.StepOrder {
		if step := state.Step(key); step != nil {
			step.Timeline = trimTimeline(step.Timeline, s.limit)
		}
	}
	return s.writeLocked(ctx, state)
}

func (s *Service) writeLocked(ctx context.Context, state *types.WizardState) error {
	s.normalize(state)
	now := s.now()
	state.UpdatedAt = &now

	s.last = state.Clone()

	raw, err := json.Marshal(state)
	if err != nil {
		return errdefs.Store("failed to encode wizard state", err)
	}
	if err := s.store.Set(ctx, s.key, raw); err != nil {
		s.logger.Error().Err(err).Msg("failed to persist wizard state")
		return err
	}
	return nil
}

// ApplyUpdates loads the state, merges the given partial step updates
// and writes the result back when anything changed
func (s *Service) ApplyUpdates(ctx context.Context, updates []types.StepUpdate) (*types.WizardState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}

	changed := false
	for i := range updates {
		stepChanged, err := s.applyUpdate(state, &updates[i])
		if err != nil {
			return nil, err
		}
		changed = changed || stepChanged
	}

	if changed {
		if err := s.writeLocked(ctx, state); err != nil {
			return state, err
		}
	}
	return state, nil
}

// applyUpdate merges one StepUpdate into the state. Only fields present
// in the payload are touched; explicit null clears.
func (s *Service) applyUpdate(state *types.WizardState, u *types.StepUpdate) (bool, error) {
	if !types.ValidStepKey(u.Step) {
		return false, errdefs.NotFound("wizard step", string(u.Step))
	}
	step := state.Step(u.Step)
	if step == nil {
		step = s.defaultStep()
		state.SetStep(u.Step, step)
	}

	changed := false
	wasComplete := step.Status == types.StepComplete

	if u.Status != nil {
		if !types.ValidStepStatus(*u.Status) {
			return false, errdefs.Validation("invalid step status %q", *u.Status)
		}
		step.Status = *u.Status
		changed = true
	}
	if u.DetailSet {
		step.Detail = u.Detail
		changed = true
	}
	if u.ErrorSet {
		step.Error = u.Error
		changed = true
	}
	if u.CompletedAtSet {
		step.CompletedAt = u.CompletedAt
		changed = true
	}
	if u.Actor != nil {
		step.Actor = u.Actor
		changed = true
	}
	if u.Retries != nil {
		step.Retries = *u.Retries
		changed = true
	}
	if u.TimelineSet {
		step.Timeline = trimTimeline(u.Timeline, s.limit)
		changed = true
	}

	if u.Status != nil && !u.CompletedAtSet {
		switch {
		case step.Status == types.StepComplete && step.CompletedAt == nil:
			now := s.now()
			step.CompletedAt = &now
		case wasComplete && step.Status != types.StepComplete:
			step.CompletedAt = nil
		}
	}

	if changed {
		if u.UpdatedAt != nil {
			step.UpdatedAt = u.UpdatedAt
		} else {
			now := s.now()
			step.UpdatedAt = &now
		}
	}
	return changed, nil
}

// BroadcastRequest is the payload for appending a timeline event
type BroadcastRequest struct {
	Message     string            `json:"message"`
	Detail      string            `json:"detail,omitempty"`
	Status      *types.StepStatus `json:"status,omitempty"`
	EventStatus *types.StepStatus `json:"eventStatus,omitempty"`
	Code        string            `json:"code,omitempty"`
	Actor       *types.Actor      `json:"actor,omitempty"`
	Limit       int               `json:"limit,omitempty"`
	Context     map[string]any    `json:"context,omitempty"`
}

// RecordBroadcast appends one timeline event to the step, optionally
// updating the step status in the same write
func (s *Service) RecordBroadcast(ctx context.Context, stepKey types.StepKey, req BroadcastRequest) (*types.WizardState, *types.TimelineEvent, error) {
	if !types.ValidStepKey(stepKey) {
		return nil, nil, errdefs.NotFound("wizard step", string(stepKey))
	}
	if req.Message == "" {
		return nil, nil, errdefs.Validation("broadcast requires a message")
	}
	if req.Status != nil && !types.ValidStepStatus(*req.Status) {
		return nil, nil, errdefs.Validation("invalid step status %q", *req.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked(ctx)
	if err != nil {
		return nil, nil, err
	}

	step := state.Step(stepKey)
	if step == nil {
		step = s.defaultStep()
		state.SetStep(stepKey, step)
	}

	now := s.now()
	event := types.TimelineEvent{
		ID:        s.newID(),
		Timestamp: now,
		Message:   req.Message,
		Detail:    req.Detail,
		Code:      req.Code,
		Actor:     req.Actor,
		Context:   req.Context,
	}
	if req.EventStatus != nil {
		event.Status = *req.EventStatus
	} else if req.Status != nil {
		event.Status = *req.Status
	}

	// A caller-supplied limit governs this append; the configured cap
	// is only the default.
	limit := s.limit
	if req.Limit > 0 {
		limit = req.Limit
	}
	step.Timeline = trimTimeline(append(step.Timeline, event), limit)

	if req.Status != nil {
		wasComplete := step.Status == types.StepComplete
		step.Status = *req.Status
		switch {
		case step.Status == types.StepComplete && step.CompletedAt == nil:
			step.CompletedAt = &now
		case wasComplete && step.Status != types.StepComplete:
			step.CompletedAt = nil
		}
	}
	if req.Actor != nil {
		step.Actor = req.Actor
	}
	step.UpdatedAt = &now

	if err := s.writeLocked(ctx, state); err != nil {
		return state, &event, err
	}
	return state, &event, nil
}

// ResetPayload is the payload for resetting a step
type ResetPayload struct {
	Actor   *types.Actor   `json:"actor,omitempty"`
	Detail  string         `json:"detail,omitempty"`
	Message string         `json:"message,omitempty"`
	Limit   int            `json:"limit,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ResetStep sets a step back to pending, clears its error and
// completion timestamp and appends a reset timeline event
func (s *Service) ResetStep(ctx context.Context, stepKey types.StepKey, payload ResetPayload) (*types.WizardState, error) {
	if !types.ValidStepKey(stepKey) {
		return nil, errdefs.NotFound("wizard step", string(stepKey))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}

	step := state.Step(stepKey)
	if step == nil {
		step = s.defaultStep()
		state.SetStep(stepKey, step)
	}

	now := s.now()
	step.Status = types.StepPending
	step.Error = nil
	step.CompletedAt = nil
	if payload.Detail != "" {
		step.Detail = &payload.Detail
	}
	if payload.Actor != nil {
		step.Actor = payload.Actor
	}
	step.UpdatedAt = &now

	message := payload.Message
	if message == "" {
		message = "Step reset"
	}
	event := types.TimelineEvent{
		ID:        s.newID(),
		Timestamp: now,
		Status:    types.StepPending,
		Message:   message,
		Detail:    payload.Detail,
		Code:      "reset",
		Actor:     payload.Actor,
		Context:   payload.Context,
	}
	limit := s.limit
	if payload.Limit > 0 {
		limit = payload.Limit
	}
	step.Timeline = trimTimeline(append(step.Timeline, event), limit)

	if err := s.writeLocked(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// StepHistory returns up to limit most recent timeline events of a step
func (s *Service) StepHistory(ctx context.Context, stepKey types.StepKey, limit int) ([]types.TimelineEvent, error) {
	if !types.ValidStepKey(stepKey) {
		return nil, errdefs.NotFound("wizard step", string(stepKey))
	}

	state, err := s.LoadState(ctx)
	if err != nil {
		return nil, err
	}
	step := state.Step(stepKey)
	if step == nil {
		return nil, nil
	}
	events := step.Timeline
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	out := make([]types.TimelineEvent, len(events))
	copy(out, events)
	return out, nil
}

// Operation is the resolved intent of a PUT /state payload
type Operation struct {
	Type    string // "replace" or "update"
	State   *types.WizardState
	Updates []types.StepUpdate
}

// ResolveOperation inspects a state-mutation request body and decides
// whether the caller wants a full replace or a partial update
func ResolveOperation(body []byte) (*Operation, error) {
	var probe struct {
		State   json.RawMessage `json:"state"`
		Updates json.RawMessage `json:"updates"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, errdefs.Validation("invalid JSON payload")
	}

	switch {
	case len(probe.State) > 0 && string(probe.State) != "null":
		var state types.WizardState
		if err := json.Unmarshal(probe.State, &state); err != nil {
			return nil, errdefs.Validation("invalid wizard state payload")
		}
		return &Operation{Type: "replace", State: &state}, nil
	case len(probe.Updates) > 0 && string(probe.Updates) != "null":
		var updates []types.StepUpdate
		if err := json.Unmarshal(probe.Updates, &updates); err != nil {
			return nil, errdefs.Validation("invalid step updates payload")
		}
		return &Operation{Type: "update", Updates: updates}, nil
	}
	return nil, errdefs.Validation("payload must contain either state or updates")
}

// BeginInstall resets step state for a new installation run. Steps with
// at least one participating service go pending (the first in order
// goes in-progress), steps with none are skipped, verification resets
// to pending.
func (s *Service) BeginInstall(ctx context.Context, participating map[types.StepKey]bool) (*types.WizardState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	first := true
	for _, key := range types.StepOrder {
		step := state.Step(key)
		if step == nil {
			step = s.defaultStep()
			state.SetStep(key, step)
		}
		step.Error = nil
		step.CompletedAt = nil
		step.UpdatedAt = &now

		switch {
		case key == types.StepVerification:
			step.Status = types.StepPending
		case participating[key]:
			if first {
				step.Status = types.StepInProgress
				first = false
			} else {
				step.Status = types.StepPending
			}
		default:
			step.Status = types.StepSkipped
		}
	}

	if err := s.writeLocked(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// SetStepStatus pushes an aggregated status for one step during an
// install run. A step entering complete promotes the next pending step
// to in-progress.
func (s *Service) SetStepStatus(ctx context.Context, stepKey types.StepKey, status types.StepStatus, detail string) (*types.WizardState, error) {
	if !types.ValidStepKey(stepKey) {
		return nil, errdefs.NotFound("wizard step", string(stepKey))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	step := state.Step(stepKey)
	if step == nil {
		step = s.defaultStep()
		state.SetStep(stepKey, step)
	}

	wasComplete := step.Status == types.StepComplete
	step.Status = status
	if detail != "" {
		step.Detail = &detail
	}
	step.UpdatedAt = &now
	switch {
	case status == types.StepComplete && step.CompletedAt == nil:
		step.CompletedAt = &now
	case wasComplete && status != types.StepComplete:
		step.CompletedAt = nil
	}

	if status == types.StepComplete {
		s.promoteNext(state, stepKey, now)
	}

	if err := s.writeLocked(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// promoteNext moves the next pending step after current to in-progress
func (s *Service) promoteNext(state *types.WizardState, current types.StepKey, now time.Time) {
	past := false
	for _, key := range types.StepOrder {
		if key == current {
			past = true
			continue
		}
		if !past {
			continue
		}
		step := state.Step(key)
		if step != nil && step.Status == types.StepPending {
			step.Status = types.StepInProgress
			step.UpdatedAt = &now
			return
		}
	}
}

// CompleteInstall finalizes the verification step after an install run
func (s *Service) CompleteInstall(ctx context.Context, hasErrors bool) (*types.WizardState, error) {
	status := types.StepComplete
	var errMsg *string
	if hasErrors {
		status = types.StepError
		msg := "one or more services failed to install"
		errMsg = &msg
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	step := state.Step(types.StepVerification)
	if step == nil {
		step = s.defaultStep()
		state.SetStep(types.StepVerification, step)
	}
	step.Status = status
	step.Error = errMsg
	step.UpdatedAt = &now
	if status == types.StepComplete {
		step.CompletedAt = &now
	} else {
		step.CompletedAt = nil
	}

	if err := s.writeLocked(ctx, state); err != nil {
		return state, err
	}
	return state, nil
}

// Complete finalizes the wizard: verification goes complete when every
// other step passed (complete or skipped), error otherwise
func (s *Service) Complete(ctx context.Context) (*types.WizardState, error) {
	s.mu.Lock()
	state, err := s.loadLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	hasErrors := false
	for _, key := range types.StepOrder {
		if key == types.StepVerification {
			continue
		}
		step := state.Step(key)
		if step == nil {
			continue
		}
		if step.Status != types.StepComplete && step.Status != types.StepSkipped {
			hasErrors = true
			break
		}
	}
	return s.CompleteInstall(ctx, hasErrors)
}

// defaultState synthesizes a fresh document with all steps pending
func (s *Service) defaultState() *types.WizardState {
	now := s.now()
	state := &types.WizardState{
		Version:   types.WizardVersion,
		UpdatedAt: &now,
	}
	for _, key := range types.StepOrder {
		state.SetStep(key, s.defaultStep())
	}
	return state
}

func (s *Service) defaultStep() *types.StepState {
	return &types.StepState{
		Status:   types.StepPending,
		Timeline: []types.TimelineEvent{},
	}
}

// normalize enforces the document invariants: version is at least 1,
// every step exists with a valid status and a non-nil timeline, and
// completed reflects the step statuses. Timeline trimming belongs to
// the mutation paths, which know the caller's limit. Version 1
// documents pass through unchanged.
func (s *Service) normalize(state *types.WizardState) {
	if state.Version < 1 {
		state.Version = types.WizardVersion
	}

	allDone := true
	for _, key := range types.StepOrder {
		step := state.Step(key)
		if step == nil {
			step = s.defaultStep()
			state.SetStep(key, step)
		}
		if !types.ValidStepStatus(step.Status) {
			step.Status = types.StepPending
		}
		if step.Timeline == nil {
			step.Timeline = []types.TimelineEvent{}
		}
		if step.Status == types.StepComplete && step.CompletedAt == nil {
			now := s.now()
			step.CompletedAt = &now
		}
		if step.Status != types.StepComplete && step.Status != types.StepSkipped {
			allDone = false
		}
	}
	state.Completed = allDone
}

func trimTimeline(events []types.TimelineEvent, limit int) []types.TimelineEvent {
	if limit > 0 && len(events) > limit {
		trimmed := make([]types.TimelineEvent, limit)
		copy(trimmed, events[len(events)-limit:])
		return trimmed
	}
	return events
}
