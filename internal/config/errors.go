package config

import (
	"errors"

	"github.com/dshills/layerconf/internal/config/filestore"
	"github.com/dshills/layerconf/internal/config/handler"
)

// Errors returned by the facade.
var (
	// ErrVariableExists indicates a variable name was registered twice
	// within one configuration.
	ErrVariableExists = errors.New("variable already exists")

	// ErrInvalidKey indicates a key without a name or configuration name.
	ErrInvalidKey = errors.New("invalid config key")
)

// Errors surfaced from the stores, re-exported so callers need only this
// package.
var (
	ErrConfigNotFound    = filestore.ErrConfigNotFound
	ErrInvalidFileName   = filestore.ErrInvalidFileName
	ErrStorage           = filestore.ErrStorage
	ErrHandlerExists     = handler.ErrHandlerExists
	ErrHandlerNotFound   = handler.ErrHandlerNotFound
	ErrHandlerValidation = handler.ErrHandlerValidation
	ErrTypeMismatch      = handler.ErrTypeMismatch
)

type (
	// StorageError describes a failed read or write of a configuration file.
	StorageError = filestore.StorageError

	// TypeError describes a value of the wrong type.
	TypeError = handler.TypeError

	// ValidationError describes a handler that failed its round-trip test.
	ValidationError = handler.ValidationError
)
