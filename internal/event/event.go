package event

import "time"

// EventType identifies the kind of lifecycle event.
type EventType string

const (
	// Conversation
	SessionStarted EventType = "session.started"
	TurnCompleted  EventType = "turn.completed"
	TurnFailed     EventType = "turn.failed"

	// Memory
	FactCaptured   EventType = "fact.captured"
	MemoryDegraded EventType = "memory.degraded"

	// Dispatcher
	BackendDegraded  EventType = "backend.degraded"
	BackendRecovered EventType = "backend.recovered"
)

// Known lists every event type hooks can subscribe to.
var Known = []EventType{
	SessionStarted, TurnCompleted, TurnFailed,
	FactCaptured, MemoryDegraded,
	BackendDegraded, BackendRecovered,
}

// Event carries data about a lifecycle occurrence.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an event with the current timestamp.
func NewEvent(t EventType, data map[string]interface{}) Event {
	return Event{
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
}
