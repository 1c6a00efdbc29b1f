// Package events is an in-process fan-out of observability events (beats,
// wake-word detections, transcripts, command matches, actor faults). Events
// are informational: publishing never blocks and slow subscribers miss
// events rather than stall the audio path.
package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Kind classifies an [Event].
type Kind string

const (
	KindBeat          Kind = "beat"
	KindKeyword       Kind = "keyword"
	KindSessionOpen   Kind = "session_open"
	KindSessionClose  Kind = "session_close"
	KindTranscript    Kind = "transcript"
	KindCommand       Kind = "command"
	KindFault         Kind = "fault"
	KindCaptureStatus Kind = "capture"
)

// Event is one observability record, serialised as JSON on the /events feed.
type Event struct {
	Kind    Kind           `json:"kind"`
	Actor   string         `json:"actor,omitempty"`
	Session string         `json:"session,omitempty"`
	Time    time.Time      `json:"time"`
	Data    map[string]any `json:"data,omitempty"`
}

// Publisher accepts events. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// Hub fans events out to subscribers over buffered channels.
type Hub struct {
	now func() time.Time

	mu      sync.RWMutex
	subs    map[uint64]chan Event
	next    uint64
	dropped atomic.Uint64
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{now: time.Now, subs: make(map[uint64]chan Event)}
}

// Publish delivers e to every subscriber with room in its buffer. A zero
// Time is stamped with the current time.
func (h *Hub) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = h.now()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe registers a subscriber with the given buffer size. The returned
// cancel func unregisters it and closes the channel.
func (h *Hub) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Dropped returns how many deliveries were skipped because a subscriber's
// buffer was full.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Subscribers returns the number of live subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

var _ Publisher = (*Hub)(nil)
