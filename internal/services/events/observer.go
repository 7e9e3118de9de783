package events

import (
	"context"

	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
)

// Observer publishes orchestrator notifications on the event bus.
// Delivery is synchronous so subscribers see events in the order they happened.
type Observer struct {
	events interfaces.EventService
	logger arbor.ILogger
}

var _ interfaces.ProgressObserver = (*Observer)(nil)

// NewObserver creates an observer that forwards to events
func NewObserver(events interfaces.EventService, logger arbor.ILogger) *Observer {
	return &Observer{events: events, logger: logger}
}

func (o *Observer) publish(eventType interfaces.EventType, payload interface{}) {
	err := o.events.PublishSync(context.Background(), interfaces.Event{Type: eventType, Payload: payload})
	if err != nil {
		o.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Event delivery failed")
	}
}

func (o *Observer) OnProgress(event models.ProgressEvent) {
	o.publish(interfaces.EventProgress, event)
}

func (o *Observer) OnPoolConsumed(event models.PoolConsumedEvent) {
	o.publish(interfaces.EventPoolConsumed, event)
}

func (o *Observer) OnProcessStarted(event models.ProcessEvent) {
	o.publish(interfaces.EventProcessStarted, event)
}

func (o *Observer) OnProcessExited(event models.ProcessEvent) {
	o.publish(interfaces.EventProcessExited, event)
}

func (o *Observer) OnRunFinished(report *models.RunReport) {
	o.publish(interfaces.EventRunFinished, report)
}
