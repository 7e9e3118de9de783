package worker

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// Defaults applied when the worker context leaves a tuning value at zero.
const (
	DefaultRetries      = 3
	DefaultStepRetries  = 10
	DefaultStepDuration = 3 * time.Second
)

// StepMachine runs a bot's steps for one item. Each attempt is paced by the step
// duration and reported. A step that fails stepRetries times sends the machine back
// to step 0 and uses up one retry; once retries are spent the item fails.
type StepMachine struct {
	item        models.WorkItem
	action      models.Action
	steps       []Step
	retries     int
	stepRetries int
	limiter     *rate.Limiter
	emit        func(models.ProgressMessage)
	trace       func(ctx context.Context, index int)
	logger      arbor.ILogger
}

// NewStepMachine builds a machine for item from the worker context's tuning
func NewStepMachine(item models.WorkItem, wctx models.WorkerContext, steps []Step, emit func(models.ProgressMessage), logger arbor.ILogger) *StepMachine {
	retries := wctx.Retries
	if retries <= 0 {
		retries = DefaultRetries
	}
	stepRetries := wctx.StepRetries
	if stepRetries <= 0 {
		stepRetries = DefaultStepRetries
	}
	duration := wctx.Duration
	if duration <= 0 {
		duration = DefaultStepDuration
	}

	return &StepMachine{
		item:        item,
		action:      wctx.Action,
		steps:       steps,
		retries:     retries,
		stepRetries: stepRetries,
		limiter:     rate.NewLimiter(rate.Every(duration), 1),
		emit:        emit,
		logger:      logger,
	}
}

// WithTrace registers a hook called after every executed step
func (m *StepMachine) WithTrace(fn func(ctx context.Context, index int)) *StepMachine {
	m.trace = fn
	return m
}

// Run drives the steps until the last one succeeds, retries run out, or ctx is cancelled.
// Exactly one terminal message is emitted.
func (m *StepMachine) Run(ctx context.Context) models.ItemStatus {
	total := len(m.steps)
	if total == 0 {
		m.emit(models.ProgressMessage{
			Steps:    models.StepCounter(0, 0),
			Info:     fmt.Sprintf("Nothing to %s for %s", m.action, m.item.Label),
			Percent:  100,
			Action:   m.action,
			Complete: true,
			Node:     m.node(models.ItemStatusSuccess),
		})
		return models.ItemStatusSuccess
	}

	failures := make([]int, total)
	index, retry := 0, 0

	for {
		if retry >= m.retries {
			m.logger.Warn().
				Str("label", m.item.Label).
				Int("retries", m.retries).
				Msg("Item failed after all retries")
			m.emit(models.ProgressMessage{
				Steps:    models.StepCounter(0, total),
				Info:     fmt.Sprintf("Tried to %s %d times %s but failed", m.action, m.retries, m.item.Kind),
				Percent:  0,
				Action:   m.action,
				Complete: true,
				Fail:     true,
				Node:     m.node(models.ItemStatusFail),
			})
			return models.ItemStatusFail
		}

		if err := m.limiter.Wait(ctx); err != nil {
			return m.cancelled(index, total)
		}

		result := m.steps[index](ctx)
		if ctx.Err() != nil {
			return m.cancelled(index, total)
		}

		last := index == total-1
		status := models.ItemStatusCancel
		if last && result.Done {
			status = models.ItemStatusSuccess
		}
		m.emit(models.ProgressMessage{
			Steps:    models.StepCounter(index+1, total),
			Info:     result.Message,
			Percent:  percent(index+1, total),
			Action:   m.action,
			Complete: status == models.ItemStatusSuccess,
			Node:     m.node(status),
		})

		if m.trace != nil {
			m.trace(ctx, index)
		}

		if result.Done {
			if last {
				return models.ItemStatusSuccess
			}
			index++
			continue
		}

		failures[index]++
		if failures[index]%m.stepRetries == 0 {
			m.logger.Debug().
				Str("label", m.item.Label).
				Int("step", index+1).
				Int("retry", retry+1).
				Msg("Step retries exhausted, restarting from the first step")
			index = 0
			retry++
		}
	}
}

func (m *StepMachine) cancelled(index, total int) models.ItemStatus {
	m.emit(models.ProgressMessage{
		Steps:    models.StepCounter(index, total),
		Info:     fmt.Sprintf("%s %s cancelled", m.item.Kind, m.item.Label),
		Percent:  percent(index, total),
		Action:   m.action,
		Complete: true,
		Fail:     true,
		Node:     m.node(models.ItemStatusCancel),
	})
	return models.ItemStatusCancel
}

func (m *StepMachine) node(status models.ItemStatus) *models.NodeStatus {
	return &models.NodeStatus{
		Label:    m.item.Label,
		TypeNode: m.item.Kind,
		Status:   status,
		Action:   m.action,
	}
}

func percent(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}
