package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
)

// NewLoggerSubscriber creates an event handler that logs all events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		switch p := event.Payload.(type) {
		case models.ProgressEvent:
			logger.Debug().
				Str("event_type", string(event.Type)).
				Str("phase", string(p.Phase)).
				Int("pid", p.PID).
				Str("label", p.Label).
				Str("steps", p.Steps).
				Bool("complete", p.Complete).
				Msg(p.Info)
		case models.PoolConsumedEvent:
			logger.Info().
				Str("event_type", string(event.Type)).
				Str("phase", string(p.Phase)).
				Msg("Pool consumed")
		case models.ProcessEvent:
			e := logger.Debug().
				Str("event_type", string(event.Type)).
				Str("phase", string(p.Phase)).
				Int("pid", p.PID).
				Int("items", len(p.Labels))
			if p.ExitError != "" {
				e = e.Str("exit_error", p.ExitError)
			}
			e.Msg("Worker process event")
		case *models.RunReport:
			logger.Info().
				Str("event_type", string(event.Type)).
				Str("run_id", p.ID).
				Int("total", p.Summary.Total).
				Int("succeeded", p.Summary.Succeeded).
				Int("failed", p.Summary.Failed).
				Bool("cancelled", p.Cancelled).
				Msg("Run finished")
		default:
			logger.Debug().
				Str("event_type", string(event.Type)).
				Msg("Event published")
		}
		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := interfaces.AllEventTypes()
	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
