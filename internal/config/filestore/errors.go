package filestore

import (
	"errors"
	"fmt"
)

// Errors returned by the file store.
var (
	// ErrConfigNotFound indicates an operation on a configuration name that
	// was never added. This is a programming error.
	ErrConfigNotFound = errors.New("configuration not found")

	// ErrInvalidFileName indicates a bad default/custom file name pair.
	ErrInvalidFileName = errors.New("invalid configuration file name")

	// ErrStorage indicates a configuration file could not be read, parsed or
	// written.
	ErrStorage = errors.New("configuration storage error")
)

// StorageError describes a failed file operation.
type StorageError struct {
	// Op is the operation that failed ("read", "parse", "write", "mkdir").
	Op string
	// Path is the file or directory involved.
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is implements error matching for StorageError.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
