package stream

import (
	"log/slog"
	"sync"

	"github.com/gymbridge/gymbridge/internal/metrics"
)

// DefaultSubscriberBuffer is the channel depth for new subscriptions.
const DefaultSubscriberBuffer = 1024

// Hub fans decoded messages out to per-stream subscribers. Publishing never
// blocks: a subscriber that falls behind loses the newest frame, not the
// publisher's throughput.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string][]*Subscription
	logger *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[string][]*Subscription),
		logger: logger.WithGroup("stream.Hub"),
	}
}

// Subscription is one subscriber's view of a stream. Cancel it when done or
// the hub keeps delivering into its buffer.
type Subscription struct {
	streamID string
	ch       chan Message
	hub      *Hub
	once     sync.Once
}

// Messages returns the channel frames are delivered on. It is closed by
// Cancel.
func (s *Subscription) Messages() <-chan Message {
	return s.ch
}

// Cancel detaches the subscription and closes its channel. Safe to call more
// than once, and safe against concurrent publishes: the channel is closed
// under the hub lock, which every send also holds.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Subscribe registers a subscriber for one stream id with the default buffer.
func (h *Hub) Subscribe(streamID string) *Subscription {
	return h.SubscribeBuffered(streamID, DefaultSubscriberBuffer)
}

// SubscribeBuffered registers a subscriber with an explicit buffer depth.
func (h *Hub) SubscribeBuffered(streamID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	sub := &Subscription{
		streamID: streamID,
		ch:       make(chan Message, buffer),
		hub:      h,
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[streamID] = append(h.subs[streamID], sub)
	return sub
}

// Publish delivers a message to every subscriber of its stream. Frames for a
// full subscriber are dropped and counted, preserving order for everyone
// else. The sends happen under the read lock so a concurrent Cancel can
// never close a channel mid-send.
func (h *Hub) Publish(msg Message) {
	metrics.StreamFrames.WithLabelValues(msg.StreamID).Inc()

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs[msg.StreamID] {
		select {
		case sub.ch <- msg:
		default:
			metrics.StreamFramesDropped.WithLabelValues(metrics.DropReasonBackpressure).Inc()
			h.logger.Warn("subscriber buffer full, dropping frame",
				"stream_id", msg.StreamID)
		}
	}
}

// SubscriberCount reports the live subscriber count for a stream id.
func (h *Hub) SubscriberCount(streamID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[streamID])
}

// remove detaches the subscription and closes its channel while holding the
// write lock, excluding any in-flight Publish.
func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := h.subs[sub.streamID]
	for i, candidate := range list {
		if candidate == sub {
			h.subs[sub.streamID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(h.subs[sub.streamID]) == 0 {
		delete(h.subs, sub.streamID)
	}
	close(sub.ch)
}
