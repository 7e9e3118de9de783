package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
)

// drainer is the part of Consumer the sequencer needs
type drainer interface {
	Drain(ctx context.Context, desc PhaseDescriptor) error
}

// Sequencer runs phases in order. Each phase waits on its own gate; the phase before it
// opens the gate once its pool is exhausted. The last phase calls the final callback.
type Sequencer struct {
	phases   []PhaseDescriptor
	consumer drainer
	logger   arbor.ILogger

	onPoolConsumed func(phase models.Phase)
	onFinal        func(cancelled bool)

	cancelled atomic.Bool
	finalOnce sync.Once
	stop      chan struct{}
}

// NewSequencer creates a sequencer over phases in execution order
func NewSequencer(
	phases []PhaseDescriptor,
	consumer drainer,
	onPoolConsumed func(phase models.Phase),
	onFinal func(cancelled bool),
	logger arbor.ILogger,
) *Sequencer {
	if onPoolConsumed == nil {
		onPoolConsumed = func(models.Phase) {}
	}
	if onFinal == nil {
		onFinal = func(bool) {}
	}
	return &Sequencer{
		phases:         phases,
		consumer:       consumer,
		logger:         logger,
		onPoolConsumed: onPoolConsumed,
		onFinal:        onFinal,
		stop:           make(chan struct{}),
	}
}

// Start installs one listener per phase, then opens the first gate. It does not block.
func (s *Sequencer) Start(ctx context.Context) {
	if len(s.phases) == 0 {
		s.finish(false)
		return
	}

	gates := make([]chan struct{}, len(s.phases))
	for i := range gates {
		gates[i] = make(chan struct{}, 1)
	}

	for i, desc := range s.phases {
		var next chan struct{}
		if i+1 < len(gates) {
			next = gates[i+1]
		}
		gate := gates[i]
		common.SafeGo(s.logger, "phase:"+string(desc.Phase), func() {
			s.runPhase(ctx, desc, gate, next)
		})
	}

	gates[0] <- struct{}{}
}

func (s *Sequencer) runPhase(ctx context.Context, desc PhaseDescriptor, gate <-chan struct{}, next chan<- struct{}) {
	select {
	case <-gate:
	case <-s.stop:
		return
	case <-ctx.Done():
		s.finish(true)
		return
	}

	s.logger.Debug().Str("phase", string(desc.Phase)).Msg("Phase started")

	var err error
	if s.cancelled.Load() {
		// pools were cleared, nothing to launch
		s.logger.Debug().Str("phase", string(desc.Phase)).Msg("Run cancelled, phase skipped")
	} else if panicked := common.SafeCall(s.logger, "phase:"+string(desc.Phase), func() {
		err = s.consumer.Drain(ctx, desc)
	}); panicked {
		err = errors.New("phase panicked")
	}

	switch {
	case errors.Is(err, ErrInvalidAction):
		s.logger.Error().Err(err).Str("phase", string(desc.Phase)).Msg("Phase aborted")
	case ctx.Err() != nil:
		s.logger.Warn().Err(ctx.Err()).Str("phase", string(desc.Phase)).Msg("Run interrupted")
		s.finish(true)
		return
	case err != nil:
		s.logger.Error().Err(err).Str("phase", string(desc.Phase)).Msg("Phase aborted")
	default:
		s.onPoolConsumed(desc.Phase)
	}

	if next == nil || s.cancelled.Load() {
		s.finish(s.cancelled.Load())
		return
	}
	next <- struct{}{}
}

// Cancel marks the run cancelled: the running phase finishes the run instead of opening
// the next gate. The caller is responsible for emptying the pools and signalling workers.
func (s *Sequencer) Cancel() {
	s.cancelled.Store(true)
}

// Cancelled reports whether Cancel was called
func (s *Sequencer) Cancelled() bool {
	return s.cancelled.Load()
}

func (s *Sequencer) finish(cancelled bool) {
	s.finalOnce.Do(func() {
		close(s.stop)
		s.onFinal(cancelled)
	})
}
