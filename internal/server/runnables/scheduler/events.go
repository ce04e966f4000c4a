package scheduler

import (
	"time"

	"github.com/gymbridge/gymbridge/internal/appstate"
)

// EventType classifies scheduler lifecycle events.
type EventType string

const (
	// EventResult means a discrete run completed and its result was stored.
	EventResult EventType = "result"

	// EventFailed means a run or stream ended in an error.
	EventFailed EventType = "failed"

	// EventStreamStarted means a streaming child came up for the first time
	// in this streaming session.
	EventStreamStarted EventType = "stream_started"

	// EventStreamRestarted means a crashed streaming child was relaunched.
	EventStreamRestarted EventType = "stream_restarted"

	// EventStreamStopped means a streaming child was deliberately stopped.
	EventStreamStopped EventType = "stream_stopped"
)

// Event is one scheduler occurrence, delivered best-effort on the events
// channel. Key is the app state result key ("script" or "script.function").
type Event struct {
	Type   EventType
	Script string
	Key    string
	Result appstate.Value
	Err    error
	Time   time.Time
}
