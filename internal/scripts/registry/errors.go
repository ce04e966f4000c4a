package registry

import "errors"

var (
	ErrScriptNotFound       = errors.New("script not found")
	ErrDuplicateScript      = errors.New("duplicate script name")
	ErrUnreadableScript     = errors.New("script path not readable")
	ErrInvalidMode          = errors.New("invalid script mode")
	ErrFunctionsOnStreaming = errors.New("streaming scripts cannot declare functions")
)
