package runner

import (
	"errors"
	"fmt"
)

var (
	// ErrSpawnFailed means the child process could not be created.
	ErrSpawnFailed = errors.New("failed to spawn script process")

	// ErrNonZeroExit is matched by errors.Is against *ExitError.
	ErrNonZeroExit = errors.New("script exited with non-zero status")

	// ErrMalformedOutput means the script's output was not a JSON value.
	ErrMalformedOutput = errors.New("script output is not valid JSON")

	// ErrTimeout means the run exceeded its wall-clock limit and was killed.
	ErrTimeout = errors.New("script execution timed out")

	// ErrUnknownFunction means the requested function is not declared.
	ErrUnknownFunction = errors.New("unknown script function")
)

// ExitError carries the non-zero exit code of a failed discrete run.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("script exited with status %d", e.Code)
}

// Is makes errors.Is(err, ErrNonZeroExit) match any *ExitError.
func (e *ExitError) Is(target error) bool {
	return target == ErrNonZeroExit
}
