package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventProgress carries a models.ProgressEvent for every worker message
	EventProgress EventType = "progress"
	// EventPoolConsumed carries a models.PoolConsumedEvent each time a phase's pool is exhausted
	EventPoolConsumed EventType = "pool_consumed"
	// EventRunFinished carries the final *models.RunReport
	EventRunFinished EventType = "run_finished"
	// EventProcessStarted and EventProcessExited carry a models.ProcessEvent
	EventProcessStarted EventType = "process_started"
	EventProcessExited  EventType = "process_exited"
)

// AllEventTypes lists every event type published by the orchestrator
func AllEventTypes() []EventType {
	return []EventType{EventProgress, EventPoolConsumed, EventRunFinished, EventProcessStarted, EventProcessExited}
}

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// PublishSync runs every subscriber in subscription order and waits for them
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
