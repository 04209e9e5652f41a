// Package engineerr defines the typed error kinds the run executor and RPC
// surface use to decide how a failure should be reported (see §7 of the spec).
package engineerr

import "fmt"

// ValidationError signals a malformed request or plan shape.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewValidation builds a ValidationError with a formatted message.
func NewValidation(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// NotFoundError signals a missing Run/Agent/Version/Session/Workflow.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s not found: %s", e.Kind, e.ID) }

// NewNotFound builds a NotFoundError for the given kind and id.
func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ModelError signals a model-caller failure: a non-2xx HTTP response or a
// response missing assistant content.
type ModelError struct {
	Status int
	Body   string
}

func (e *ModelError) Error() string {
	if e.Status == 0 {
		return e.Body
	}
	return fmt.Sprintf("model error: status=%d body=%s", e.Status, e.Body)
}

// NewModelError builds a ModelError from an HTTP status and a body prefix.
func NewModelError(status int, body string) *ModelError {
	return &ModelError{Status: status, Body: body}
}

// PolicyError signals a violation of the routing policy: spawn cap, depth,
// fan-out, anti-loop, or role discipline.
type PolicyError struct {
	Message string
}

func (e *PolicyError) Error() string { return e.Message }

// NewPolicy builds a PolicyError with a formatted message.
func NewPolicy(format string, args ...any) *PolicyError {
	return &PolicyError{Message: fmt.Sprintf(format, args...)}
}
