// Package errz provides shared error definitions for the config package and its subpackages.
package errz

import "errors"

// Top-level error categories
var (
	ErrFailedToLoadConfig     = errors.New("failed to load config")
	ErrFailedToValidateConfig = errors.New("failed to validate config")
	ErrUnsupportedConfigVer   = errors.New("unsupported config version")
)

// Validation specific errors
var (
	ErrDuplicateID          = errors.New("duplicate ID")
	ErrEmptyID              = errors.New("empty ID")
	ErrInvalidID            = errors.New("invalid ID")
	ErrInvalidValue         = errors.New("invalid value")
	ErrMissingRequiredField = errors.New("missing required field")
)

// Script specific errors
var (
	ErrInvalidScriptType     = errors.New("invalid script type")
	ErrScriptPathNotReadable = errors.New("script path not readable")
	ErrFunctionsNotSupported = errors.New("functions not supported for script type")
)
