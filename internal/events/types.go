package events

import "time"

// EventType names what happened in a detection session
type EventType string

const (
	EventTypeObjectLoaded   EventType = "object.loaded"
	EventTypeFrameProcessed EventType = "frame.processed"
	EventTypeFault          EventType = "fault"
)

// Event is one session notification
type Event struct {
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"` // session id
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// EventHandler processes an event. Handlers of one bus run one at a time, in
// publish order.
type EventHandler func(Event)

// SubscriptionID uniquely identifies a subscription
type SubscriptionID int64

// EventBus defines the pub/sub surface used by sessions and tools
type EventBus interface {
	Subscribe(eventType EventType, handler EventHandler) SubscriptionID
	Unsubscribe(id SubscriptionID)

	// Publish blocks until the event is queued or the bus stops
	Publish(event Event)

	// TryPublish queues the event if there is room and reports whether it did
	TryPublish(event Event) bool

	Stop()
}

// NewObjectLoadedEvent reports a template set that was stored
func NewObjectLoadedEvent(source, objectID string, templates int) Event {
	return Event{
		Type:      EventTypeObjectLoaded,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"object_id": objectID,
			"templates": templates,
		},
	}
}

// NewFrameProcessedEvent reports one detection pass
func NewFrameProcessedEvent(source string, frame, detections int, duration time.Duration) Event {
	return Event{
		Type:      EventTypeFrameProcessed,
		Source:    source,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"frame":       frame,
			"detections":  detections,
			"duration_ms": float64(duration.Microseconds()) / 1000,
		},
	}
}

// NewFaultEvent wraps a fault description. category and severity follow the
// error reporter's values.
func NewFaultEvent(source, category, severity, message, errText string, metadata map[string]interface{}) Event {
	data := map[string]interface{}{
		"category": category,
		"severity": severity,
		"message":  message,
	}
	if errText != "" {
		data["error"] = errText
	}
	for k, v := range metadata {
		data[k] = v
	}
	return Event{
		Type:      EventTypeFault,
		Source:    source,
		Timestamp: time.Now(),
		Data:      data,
	}
}
