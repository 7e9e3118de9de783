package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/arbor"
)

// ErrClosed is returned when publishing to or subscribing on a closed service
var ErrClosed = errors.New("event service closed")

// Service implements EventService interface with pub/sub pattern
type Service struct {
	subscribers map[interfaces.EventType][]interfaces.EventHandler
	mu          sync.RWMutex
	closed      bool
	logger      arbor.ILogger
}

// NewService creates a new event service
func NewService(logger arbor.ILogger) interfaces.EventService {
	return &Service{
		subscribers: make(map[interfaces.EventType][]interfaces.EventHandler),
		logger:      logger,
	}
}

// Subscribe registers a handler for an event type
func (s *Service) Subscribe(eventType interfaces.EventType, handler interfaces.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.subscribers[eventType] = append(s.subscribers[eventType], handler)

	s.logger.Debug().
		Str("event_type", string(eventType)).
		Int("subscriber_count", len(s.subscribers[eventType])).
		Msg("Event handler subscribed")

	return nil
}

func (s *Service) handlers(eventType interfaces.EventType) ([]interfaces.EventHandler, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	return append([]interfaces.EventHandler(nil), s.subscribers[eventType]...), nil
}

// PublishSync runs the subscribers one after another in subscription order.
// A failing or panicking handler does not stop the rest.
func (s *Service) PublishSync(ctx context.Context, event interfaces.Event) error {
	handlers, err := s.handlers(event.Type)
	if err != nil {
		return err
	}

	var errs []error
	for _, handler := range handlers {
		var herr error
		panicked := common.SafeCall(s.logger, "event:"+string(event.Type), func() {
			herr = handler(ctx, event)
		})
		if panicked {
			herr = fmt.Errorf("handler panicked")
		}
		if herr != nil {
			s.logger.Error().
				Err(herr).
				Str("event_type", string(event.Type)).
				Msg("Event handler failed")
			errs = append(errs, herr)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("event handlers failed: %w", errors.Join(errs...))
	}
	return nil
}

// Close drops every subscriber. Later calls to PublishSync and Subscribe fail with ErrClosed.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subscribers = make(map[interfaces.EventType][]interfaces.EventHandler)
	s.closed = true
	s.logger.Debug().Msg("Event service closed")

	return nil
}
