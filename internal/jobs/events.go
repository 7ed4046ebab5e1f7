package jobs

import (
	"sync"
	"time"

	"media-converter/internal/domain"
)

// EventType classifies messages emitted during a queue run.
type EventType string

const (
	EventTypeCount  EventType = "count"
	EventTypeUpdate EventType = "update"
	EventTypeEnd    EventType = "end"
	EventTypeLog    EventType = "log"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq        int64            `json:"seq"`
	Timestamp  time.Time        `json:"timestamp"`
	RunID      string           `json:"runId"`
	JobID      string           `json:"jobId,omitempty"`
	Type       EventType        `json:"type"`
	Index      int              `json:"index,omitempty"`
	Total      int              `json:"total,omitempty"`
	Summary    string           `json:"summary,omitempty"`
	Duration   float64          `json:"duration,omitempty"`
	Pass       string           `json:"pass,omitempty"`
	Elapsed    float64          `json:"elapsed,omitempty"`
	Percent    float64          `json:"percent,omitempty"`
	HasPercent bool             `json:"hasPercent,omitempty"`
	Raw        string           `json:"raw,omitempty"`
	ErrorLine  string           `json:"errorLine,omitempty"`
	Status     domain.RunStatus `json:"status,omitempty"`
	Message    string           `json:"message,omitempty"`
	Command    string           `json:"command,omitempty"`
	Args       []string         `json:"args,omitempty"`
	ExitCode   int              `json:"exitCode,omitempty"`
}

// Publisher receives events in the order the worker produces them.
type Publisher interface {
	Publish(event Event) Event
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(Event) Event

// Publish calls f.
func (f PublisherFunc) Publish(event Event) Event {
	return f(event)
}

// EventBus stores recent events and provides incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Recorder collects published events in memory. Tests and the CLI use it to
// inspect a finished run.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish stores event and returns it unchanged.
func (r *Recorder) Publish(event Event) Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return event
}

// Events returns a copy of recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns recorded events with the given type.
func (r *Recorder) OfType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Event
	for _, event := range r.events {
		if event.Type == t {
			out = append(out, event)
		}
	}
	return out
}
