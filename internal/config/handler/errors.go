package handler

import (
	"errors"
	"fmt"
)

// Errors returned by the handler registry.
var (
	// ErrHandlerExists indicates a handler for the type is already registered.
	ErrHandlerExists = errors.New("type handler already exists")

	// ErrHandlerNotFound indicates no handler serves the requested type.
	ErrHandlerNotFound = errors.New("type handler not found")

	// ErrHandlerValidation indicates a handler failed its round-trip self-test.
	ErrHandlerValidation = errors.New("type handler validation failed")

	// ErrTypeMismatch indicates a value is not an instance of the declared type.
	ErrTypeMismatch = errors.New("type mismatch")
)

// ValidationError describes a handler that failed its self-test.
type ValidationError struct {
	// Type is the handler's declared type name.
	Type string
	// Message describes the failure.
	Message string
	// Err is the underlying serialize/deserialize error, if any.
	Err error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handler for %s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("handler for %s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Is implements error matching for ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrHandlerValidation
}

// TypeError is returned when a value does not match its declared type.
type TypeError struct {
	// Expected is the declared type name.
	Expected string
	// Actual is the value's type name.
	Actual string
}

// Error implements the error interface.
func (e *TypeError) Error() string {
	return fmt.Sprintf("type error: expected %s, got %s", e.Expected, e.Actual)
}

// Is implements error matching for TypeError.
func (e *TypeError) Is(target error) bool {
	return target == ErrTypeMismatch
}
