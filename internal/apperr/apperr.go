// Package apperr defines the typed failures returned by the planning core.
// Callers match them with errors.As.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Validation builds a ValidationError.
func Validation(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a plan, task, user or goal that does not exist.
type NotFoundError struct {
	Resource string
	ID       interface{}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %v", e.Resource, e.ID)
}

// NotFound builds a NotFoundError.
func NotFound(resource string, id interface{}) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// BudgetViolationError reports a reschedule proposal that does not fit the
// remaining time. It is recovered inside the reschedule engine.
type BudgetViolationError struct {
	ScheduledMinutes int
	AvailableMinutes int
	Detail           string
}

func (e *BudgetViolationError) Error() string {
	if e.Detail != "" {
		return "proposal violates time budget: " + e.Detail
	}
	return fmt.Sprintf("proposal schedules %d minutes but only %d are available", e.ScheduledMinutes, e.AvailableMinutes)
}

// ExternalServiceError wraps a failure of the AI collaborator or the store.
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// External builds an ExternalServiceError.
func External(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}

// ConsistencyError reports that a plan changed between analysis and apply.
type ConsistencyError struct {
	PlanID uint
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("plan %d changed since the reschedule was proposed: %s", e.PlanID, e.Reason)
}

// Kind names the taxonomy bucket of err, or "internal".
func Kind(err error) string {
	var (
		ve *ValidationError
		nf *NotFoundError
		bv *BudgetViolationError
		ex *ExternalServiceError
		ce *ConsistencyError
	)
	switch {
	case errors.As(err, &ve):
		return "validation"
	case errors.As(err, &nf):
		return "not_found"
	case errors.As(err, &bv):
		return "budget_violation"
	case errors.As(err, &ex):
		return "external_service"
	case errors.As(err, &ce):
		return "consistency"
	default:
		return "internal"
	}
}

// HTTPStatus maps err to the response status the API uses for it.
func HTTPStatus(err error) int {
	switch Kind(err) {
	case "validation", "budget_violation":
		return http.StatusBadRequest
	case "not_found":
		return http.StatusNotFound
	case "consistency":
		return http.StatusConflict
	case "external_service":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
