package scheduler

import "errors"

var (
	// ErrAlreadyRunning means a trigger was rejected because an invocation
	// for the same script (or script function) is still in flight.
	ErrAlreadyRunning = errors.New("script is already running")

	// ErrNotRunning means the scheduler is not accepting triggers.
	ErrNotRunning = errors.New("scheduler is not running")

	// ErrNotStreaming means a stop was requested for a script that has no
	// live streaming process.
	ErrNotStreaming = errors.New("script is not streaming")

	// ErrNotFailed means a retry was requested for a script that is not in
	// the failed state.
	ErrNotFailed = errors.New("script is not in a failed state")
)
