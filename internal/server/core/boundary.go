package core

import (
	"github.com/gymbridge/gymbridge/internal/appstate"
	"github.com/gymbridge/gymbridge/internal/scripts/stream"
	"github.com/gymbridge/gymbridge/internal/server/runnables/scheduler"
)

// The UI boundary: everything the rendering layer is allowed to do.

// Set writes one app state value under key.
func (c *Core) Set(key string, value appstate.Value) {
	c.store.Set(key, value)
}

// Get reads one app state value.
func (c *Core) Get(key string) (appstate.Value, bool) {
	return c.store.Get(key)
}

// CurrentState returns a consistent snapshot of the whole app state.
func (c *Core) CurrentState() appstate.Snapshot {
	return c.store.Snapshot()
}

// Trigger starts the named script, or one function of it. Triggers for a
// unit that is already running are rejected.
func (c *Core) Trigger(script, function string) error {
	return c.scheduler.Trigger(script, function)
}

// Retry re-runs a failed unit identified by its result key.
func (c *Core) Retry(key string) error {
	return c.scheduler.Retry(key)
}

// StopStream deliberately stops a streaming script.
func (c *Core) StopStream(script string) error {
	return c.scheduler.StopStream(script)
}

// Subscribe attaches a consumer to one stream id. Cancel the subscription
// when the widget goes away.
func (c *Core) Subscribe(streamID string) *stream.Subscription {
	return c.hub.Subscribe(streamID)
}

// Events returns the scheduler's best-effort event feed.
func (c *Core) Events() <-chan scheduler.Event {
	return c.scheduler.Events()
}

// ScriptStates reports the execution state of every registered unit, keyed
// by result key.
func (c *Core) ScriptStates() map[string]string {
	return c.scheduler.ScriptStates()
}

// ScriptState reports the execution state of one result key.
func (c *Core) ScriptState(key string) string {
	return c.scheduler.ScriptState(key)
}
