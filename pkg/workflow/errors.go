package workflow

import (
	"errors"
	"fmt"

	"github.com/aimd-lab/director/dao/model"
)

// The engine raises all failures synchronously to the caller; nothing is
// swallowed or retried internally. Handlers map each kind onto a response
// code.

// NotFoundError indicates a referenced template, request or stage does not exist.
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// AuthorizationError indicates the actor's review role does not satisfy the
// stage's role and the actor holds no override capability.
type AuthorizationError struct {
	Actor    string
	Role     model.ReviewRole
	Required model.ReviewRole
}

func (e *AuthorizationError) Error() string {
	if e.Required != "" {
		return fmt.Sprintf("user %s (role %s) may not act on a %s stage", e.Actor, e.Role, e.Required)
	}
	return fmt.Sprintf("user %s is not allowed to perform this operation", e.Actor)
}

// ValidationError indicates a malformed action or a missing required comment.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// InvalidStateError indicates the request's overall status forbids the
// operation, e.g. acting on a terminal request or resubmitting a request
// that was never returned for changes.
type InvalidStateError struct {
	Status model.RequestStatus
	Op     string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a request in status %s", e.Op, e.Status)
}

// InvalidTransitionError indicates the action targets a stage that is not
// the current one, or a required stage received skip.
type InvalidTransitionError struct {
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return "invalid transition: " + e.Reason
}

func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

func IsAuthorization(err error) bool {
	var e *AuthorizationError
	return errors.As(err, &e)
}

func IsValidation(err error) bool {
	var e *ValidationError
	return errors.As(err, &e)
}

func IsInvalidState(err error) bool {
	var e *InvalidStateError
	return errors.As(err, &e)
}

func IsInvalidTransition(err error) bool {
	var e *InvalidTransitionError
	return errors.As(err, &e)
}
