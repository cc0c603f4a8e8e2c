package services

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrBadRequest       = errors.New("bad request")
	ErrConflict         = errors.New("conflict")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrAlreadyMember    = errors.New("already a member")
)

// ServiceError pairs one of the sentinel kinds with a message safe to show to the caller.
type ServiceError struct {
	Kind    error
	Message string
	Details map[string]interface{}
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Kind
}

func newError(kind error, message string) *ServiceError {
	return &ServiceError{Kind: kind, Message: message}
}

func Forbidden(message string) error        { return newError(ErrForbidden, message) }
func NotFound(message string) error         { return newError(ErrNotFound, message) }
func BadRequest(message string) error       { return newError(ErrBadRequest, message) }
func Conflict(message string) error         { return newError(ErrConflict, message) }
func InvalidOperation(message string) error { return newError(ErrInvalidOperation, message) }

// MessageOf returns the user-facing message of err, or fallback when err carries none.
func MessageOf(err error, fallback string) string {
	var se *ServiceError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return fallback
}
