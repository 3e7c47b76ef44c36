package errdefs

import (
	"errors"
	"fmt"
)

// ValidationError indicates a caller payload was malformed or
// semantically invalid.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validation builds a ValidationError from a format string.
func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError indicates an unknown service, step or container.
type NotFoundError struct {
	Kind string // "service", "step", "container"
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

// NotFound builds a NotFoundError.
func NotFound(kind, name string) error {
	return &NotFoundError{Kind: kind, Name: name}
}

// ConflictError indicates an operation that cannot proceed because of
// current state, such as an installation already running.
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string { return e.Msg }

// Conflict builds a ConflictError.
func Conflict(format string, args ...any) error {
	return &ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// RuntimeError indicates the container runtime is unreachable or its
// API call failed.
type RuntimeError struct {
	Msg   string
	Cause error
}

func (e *RuntimeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// Runtime wraps an error from the container runtime.
func Runtime(msg string, cause error) error {
	return &RuntimeError{Msg: msg, Cause: cause}
}

// StoreError indicates the key-value store backing wizard state is
// unreachable or returned a failure.
type StoreError struct {
	Msg   string
	Cause error
}

func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *StoreError) Unwrap() error { return e.Cause }

// Store wraps an error from the key-value store.
func Store(msg string, cause error) error {
	return &StoreError{Msg: msg, Cause: cause}
}

// Stage identifies the phase of a service start that failed.
type Stage string

const (
	StagePull   Stage = "pull"
	StageRun    Stage = "run"
	StageHealth Stage = "health"
)

// ServiceStartFailed is a per-service lifecycle failure. It is captured
// in the install result for the service and never aborts the run.
type ServiceStartFailed struct {
	Service string
	Stage   Stage
	Cause   error
}

func (e *ServiceStartFailed) Error() string {
	return fmt.Sprintf("service %s failed at %s stage: %v", e.Service, e.Stage, e.Cause)
}

func (e *ServiceStartFailed) Unwrap() error { return e.Cause }

// StartFailed builds a ServiceStartFailed error.
func StartFailed(service string, stage Stage, cause error) error {
	return &ServiceStartFailed{Service: service, Stage: stage, Cause: cause}
}

// HealthTimeout indicates a health probe exceeded its budget.
type HealthTimeout struct {
	Service string
	URL     string
}

func (e *HealthTimeout) Error() string {
	return fmt.Sprintf("service %s did not become healthy at %s", e.Service, e.URL)
}

// Classification helpers used by the HTTP layer.

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsConflict(err error) bool {
	var e *ConflictError
	return errors.As(err, &e)
}

func IsRuntime(err error) bool {
	var e *RuntimeError
	return errors.As(err, &e)
}

func IsStore(err error) bool {
	var e *StoreError
	return errors.As(err, &e)
}
