package stream

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is one decoded stream frame, attributed to a stream and stamped
// with a time.
type Message struct {
	StreamID string
	Time     time.Time
	Payload  any
}

// DecodeMessage parses a frame payload. The envelope form carries explicit
// "stream_id", "timestamp" (unix seconds), and "payload" keys. Frames without
// a "payload" key are treated as flat: every top-level field except the
// envelope keys becomes the payload. Missing stream_id falls back to
// defaultStream, missing timestamp to now.
func DecodeMessage(data []byte, defaultStream string, now time.Time) (Message, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	msg := Message{StreamID: defaultStream, Time: now}

	if raw, ok := fields["stream_id"]; ok {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil {
			return Message{}, fmt.Errorf("%w: stream_id is not a string: %w", ErrMalformedFrame, err)
		}
		if id != "" {
			msg.StreamID = id
		}
		delete(fields, "stream_id")
	}

	if raw, ok := fields["timestamp"]; ok {
		var seconds float64
		if err := json.Unmarshal(raw, &seconds); err != nil {
			return Message{}, fmt.Errorf("%w: timestamp is not a number: %w", ErrMalformedFrame, err)
		}
		sec, frac := int64(seconds), seconds-float64(int64(seconds))
		msg.Time = time.Unix(sec, int64(frac*float64(time.Second)))
		delete(fields, "timestamp")
	}

	if raw, ok := fields["payload"]; ok {
		var payload any
		if err := json.Unmarshal(raw, &payload); err != nil {
			return Message{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
		}
		msg.Payload = payload
		return msg, nil
	}

	// Flat frame: the remaining fields are the data.
	flat := make(map[string]any, len(fields))
	for key, raw := range fields {
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return Message{}, fmt.Errorf("%w: field %q: %w", ErrMalformedFrame, key, err)
		}
		flat[key] = value
	}
	msg.Payload = flat
	return msg, nil
}
