package types

import (
	"encoding/json"
	"time"
)

// WizardVersion is the current schema version of the wizard state
// document. Version 1 payloads are still accepted on read; no field
// translation is performed.
const WizardVersion = 2

// StepKey identifies one of the four fixed wizard steps
type StepKey string

const (
	StepFoundation   StepKey = "foundation"
	StepPortal       StepKey = "portal"
	StepRaven        StepKey = "raven"
	StepVerification StepKey = "verification"
)

// StepOrder is the canonical ordering of wizard steps
var StepOrder = []StepKey{StepFoundation, StepPortal, StepRaven, StepVerification}

// ValidStepKey reports whether k names a wizard step
func ValidStepKey(k StepKey) bool {
	for _, s := range StepOrder {
		if s == k {
			return true
		}
	}
	return false
}

// StepStatus is the status of one wizard step
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in-progress"
	StepComplete   StepStatus = "complete"
	StepError      StepStatus = "error"
	StepSkipped    StepStatus = "skipped"
)

// ValidStepStatus reports whether s is a known step status
func ValidStepStatus(s StepStatus) bool {
	switch s {
	case StepPending, StepInProgress, StepComplete, StepError, StepSkipped:
		return true
	}
	return false
}

// Actor identifies who performed a wizard mutation
type Actor struct {
	ID        string            `json:"id,omitempty"`
	Type      string            `json:"type,omitempty"`
	Label     string            `json:"label,omitempty"`
	AvatarURL string            `json:"avatarUrl,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// TimelineEvent is a single audit record on a wizard step
type TimelineEvent struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Status    StepStatus     `json:"status,omitempty"`
	Message   string         `json:"message"`
	Detail    string         `json:"detail,omitempty"`
	Code      string         `json:"code,omitempty"`
	Actor     *Actor         `json:"actor,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
}

// StepState is the persisted state of one wizard step
type StepState struct {
	Status      StepStatus      `json:"status"`
	Detail      *string         `json:"detail"`
	Error       *string         `json:"error"`
	UpdatedAt   *time.Time      `json:"updatedAt"`
	CompletedAt *time.Time      `json:"completedAt"`
	Actor       *Actor          `json:"actor,omitempty"`
	Retries     int             `json:"retries"`
	Timeline    []TimelineEvent `json:"timeline"`
}

// Clone returns a deep copy of the step state
func (s *StepState) Clone() *StepState {
	if s == nil {
		return nil
	}
	out := *s
	if s.Detail != nil {
		v := *s.Detail
		out.Detail = &v
	}
	if s.Error != nil {
		v := *s.Error
		out.Error = &v
	}
	if s.UpdatedAt != nil {
		v := *s.UpdatedAt
		out.UpdatedAt = &v
	}
	if s.CompletedAt != nil {
		v := *s.CompletedAt
		out.CompletedAt = &v
	}
	if s.Actor != nil {
		a := *s.Actor
		out.Actor = &a
	}
	out.Timeline = append([]TimelineEvent(nil), s.Timeline...)
	return &out
}

// WizardState is the versioned top-level wizard document
type WizardState struct {
	Version      int        `json:"version"`
	UpdatedAt    *time.Time `json:"updatedAt"`
	Completed    bool       `json:"completed"`
	Foundation   *StepState `json:"foundation"`
	Portal       *StepState `json:"portal"`
	Raven        *StepState `json:"raven"`
	Verification *StepState `json:"verification"`
}

// Step returns the state for the given step key, or nil for unknown keys
func (w *WizardState) Step(k StepKey) *StepState {
	switch k {
	case StepFoundation:
		return w.Foundation
	case StepPortal:
		return w.Portal
	case StepRaven:
		return w.Raven
	case StepVerification:
		return w.Verification
	}
	return nil
}

// SetStep replaces the state for the given step key
func (w *WizardState) SetStep(k StepKey, s *StepState) {
	switch k {
	case StepFoundation:
		w.Foundation = s
	case StepPortal:
		w.Portal = s
	case StepRaven:
		w.Raven = s
	case StepVerification:
		w.Verification = s
	}
}

// Clone returns a deep copy of the wizard state
func (w *WizardState) Clone() *WizardState {
	if w == nil {
		return nil
	}
	out := *w
	if w.UpdatedAt != nil {
		v := *w.UpdatedAt
		out.UpdatedAt = &v
	}
	out.Foundation = w.Foundation.Clone()
	out.Portal = w.Portal.Clone()
	out.Raven = w.Raven.Clone()
	out.Verification = w.Verification.Clone()
	return &out
}

// StepUpdate is a partial mutation of one wizard step. Field presence is
// tracked separately from value so that an explicit JSON null clears a
// field while an absent field leaves it untouched.
type StepUpdate struct {
	Step        StepKey
	Status      *StepStatus
	Detail      *string
	Error       *string
	CompletedAt *time.Time
	UpdatedAt   *time.Time
	Actor       *Actor
	Retries     *int
	Timeline    []TimelineEvent

	DetailSet      bool
	ErrorSet       bool
	CompletedAtSet bool
	TimelineSet    bool
}

// UnmarshalJSON records which fields were present in the payload
func (u *StepUpdate) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	if v, ok := raw["step"]; ok {
		if err := json.Unmarshal(v, &u.Step); err != nil {
			return err
		}
	}
	if v, ok := raw["status"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &u.Status); err != nil {
			return err
		}
	}
	if v, ok := raw["detail"]; ok {
		u.DetailSet = true
		if string(v) != "null" {
			if err := json.Unmarshal(v, &u.Detail); err != nil {
				return err
			}
		}
	}
	if v, ok := raw["error"]; ok {
		u.ErrorSet = true
		if string(v) != "null" {
			if err := json.Unmarshal(v, &u.Error); err != nil {
				return err
			}
		}
	}
	if v, ok := raw["completedAt"]; ok {
		u.CompletedAtSet = true
		if string(v) != "null" {
			if err := json.Unmarshal(v, &u.CompletedAt); err != nil {
				return err
			}
		}
	}
	if v, ok := raw["updatedAt"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &u.UpdatedAt); err != nil {
			return err
		}
	}
	if v, ok := raw["actor"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &u.Actor); err != nil {
			return err
		}
	}
	if v, ok := raw["retries"]; ok && string(v) != "null" {
		if err := json.Unmarshal(v, &u.Retries); err != nil {
			return err
		}
	}
	if v, ok := raw["timeline"]; ok {
		u.TimelineSet = true
		if string(v) != "null" {
			if err := json.Unmarshal(v, &u.Timeline); err != nil {
				return err
			}
		}
	}
	return nil
}

// MarshalJSON emits only the fields that are set
func (u StepUpdate) MarshalJSON() ([]byte, error) {
	out := map[string]any{"step": u.Step}
	if u.Status != nil {
		out["status"] = *u.Status
	}
	if u.DetailSet {
		out["detail"] = u.Detail
	}
	if u.ErrorSet {
		out["error"] = u.Error
	}
	if u.CompletedAtSet {
		out["completedAt"] = u.CompletedAt
	}
	if u.UpdatedAt != nil {
		out["updatedAt"] = u.UpdatedAt
	}
	if u.Actor != nil {
		out["actor"] = u.Actor
	}
	if u.Retries != nil {
		out["retries"] = *u.Retries
	}
	if u.TimelineSet {
		out["timeline"] = u.Timeline
	}
	return json.Marshal(out)
}

// StepMetadata describes one wizard step for UI consumption
type StepMetadata struct {
	ID           StepKey  `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Optional     bool     `json:"optional"`
	Icon         string   `json:"icon"`
	Capabilities []string `json:"capabilities"`
}
