package scheduler

import (
	"context"

	"github.com/gymbridge/gymbridge/internal/server/finitestate"
)

// IsRunning returns true if the runner is in the Running state
func (r *Runner) IsRunning() bool {
	return r.fsm.GetState() == finitestate.StatusRunning
}

// GetState returns the current state of the runner
func (r *Runner) GetState() string {
	return r.fsm.GetState()
}

// GetStateChan returns a channel that emits the runner's state whenever it changes
func (r *Runner) GetStateChan(ctx context.Context) <-chan string {
	return r.fsm.GetStateChan(ctx)
}

// ScriptState returns the execution state for one result key. Keys that have
// never been triggered are Idle.
func (r *Runner) ScriptState(key string) string {
	r.entriesMu.Lock()
	defer r.entriesMu.Unlock()
	if ent, ok := r.entries[key]; ok {
		return ent.fsm.GetState()
	}
	return finitestate.StatusIdle
}

// ScriptStates reports the execution state of every registered script. Keys
// are result keys; scripts never triggered report Idle.
func (r *Runner) ScriptStates() map[string]string {
	states := make(map[string]string)
	for _, desc := range r.reg().All() {
		if len(desc.Functions) == 0 {
			states[desc.ResultKey("")] = finitestate.StatusIdle
			continue
		}
		for _, fn := range desc.Functions {
			states[desc.ResultKey(fn.Name)] = finitestate.StatusIdle
		}
	}

	r.entriesMu.Lock()
	defer r.entriesMu.Unlock()
	for key, ent := range r.entries {
		states[key] = ent.fsm.GetState()
	}
	return states
}
