package metrics

import "time"

// Event names recorded by the relay.
const (
	EventSessionOpened = "session_opened"
	EventSessionClosed = "session_closed"
	// EventTurnCompleted carries the turn duration in seconds as Value and an
	// "outcome" tag (ok, degraded, error, discarded).
	EventTurnCompleted = "turn_completed"
	// EventChunkDropped carries a "reason" tag.
	EventChunkDropped = "chunk_dropped"
	// EventErrorSent carries the error "reason" tag.
	EventErrorSent = "error_sent"
)

type MetricsEvent struct {
	Name   string
	Time   time.Time
	Value  float64
	Tags   map[string]string
	Fields map[string]any
}

type Observer interface {
	RecordEvent(ev MetricsEvent)
}

type NoopObserver struct{}

func (NoopObserver) RecordEvent(MetricsEvent) {}

// Fanout forwards every event to each non-nil observer.
type Fanout []Observer

func (f Fanout) RecordEvent(ev MetricsEvent) {
	for _, o := range f {
		if o != nil {
			o.RecordEvent(ev)
		}
	}
}

// Record stamps and sends an event; a nil observer is ignored.
func Record(o Observer, name string, value float64, tags map[string]string) {
	if o == nil {
		return
	}
	o.RecordEvent(MetricsEvent{Name: name, Time: time.Now(), Value: value, Tags: tags})
}
