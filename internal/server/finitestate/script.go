package finitestate

import (
	"log/slog"

	"github.com/robbyt/go-fsm"
)

// Per-script execution states. Every script (or script function) starts Idle
// and moves through these as the scheduler runs it.
const (
	// StatusIdle means the script is registered but nothing is running.
	StatusIdle = "Idle"

	// StatusScriptRunning means a discrete run is in flight.
	StatusScriptRunning = "Running"

	// StatusStreaming means a streaming child process is live.
	StatusStreaming = "Streaming"

	// StatusFailed means the last run or stream ended in an error.
	StatusFailed = "Failed"

	// StatusScriptStopped means a streaming child was deliberately stopped.
	StatusScriptStopped = "ScriptStopped"
)

// ScriptTransitions encodes the allowed moves for one script's execution
// state. Failed and ScriptStopped are re-entrant through Idle so a retry or a
// fresh trigger can restart the cycle.
var ScriptTransitions = map[string][]string{
	StatusIdle:          {StatusScriptRunning, StatusStreaming},
	StatusScriptRunning: {StatusIdle, StatusFailed},
	StatusStreaming:     {StatusFailed, StatusScriptStopped},
	StatusFailed:        {StatusIdle, StatusScriptRunning, StatusStreaming},
	StatusScriptStopped: {StatusIdle, StatusScriptRunning, StatusStreaming},
}

// NewScript creates a state machine tracking one script's execution state,
// starting at Idle.
func NewScript(handler slog.Handler) (Machine, error) {
	machine, err := fsm.New(handler, StatusIdle, ScriptTransitions)
	if err != nil {
		return nil, err
	}
	return &LifecycleFSM{Machine: machine}, nil
}
