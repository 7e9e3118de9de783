package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/pool"
	"github.com/ternarybob/addressbot/internal/processes"
	"github.com/ternarybob/addressbot/internal/results"
	"github.com/ternarybob/arbor"
)

// ErrInvalidAction is returned when a phase carries an action no worker understands
var ErrInvalidAction = errors.New("invalid phase action")

// PhaseDescriptor binds a phase to the pool it drains and the context its workers get
type PhaseDescriptor struct {
	Phase   models.Phase
	Action  models.Action
	Pool    *pool.Pool
	Context models.WorkerContext
}

// Consumer drains pools one worker at a time
type Consumer struct {
	launcher interfaces.WorkerLauncher
	stager   interfaces.GroupStager
	registry *processes.Registry
	results  *results.Aggregator
	observer interfaces.ProgressObserver
	debugDir string
	logger   arbor.ILogger
}

// NewConsumer creates a pool consumer. observer may be nil.
func NewConsumer(
	launcher interfaces.WorkerLauncher,
	stager interfaces.GroupStager,
	registry *processes.Registry,
	aggregator *results.Aggregator,
	observer interfaces.ProgressObserver,
	debugDir string,
	logger arbor.ILogger,
) *Consumer {
	if observer == nil {
		observer = noopObserver{}
	}
	return &Consumer{
		launcher: launcher,
		stager:   stager,
		registry: registry,
		results:  aggregator,
		observer: observer,
		debugDir: debugDir,
		logger:   logger,
	}
}

// Drain launches one worker per group, front first, and waits for each to exit before
// launching the next. It returns nil once the pool is empty, whatever the workers' exit
// status. A staging or spawn failure loses that group and draining continues.
func (c *Consumer) Drain(ctx context.Context, desc PhaseDescriptor) error {
	if !desc.Action.IsValid() {
		return fmt.Errorf("%w: %q for phase %s", ErrInvalidAction, desc.Action, desc.Phase)
	}

	c.logger.Info().
		Str("phase", string(desc.Phase)).
		Int("groups", desc.Pool.Len()).
		Int("items", desc.Pool.Total()).
		Msg("Draining pool")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		group, ok := desc.Pool.Pop()
		if !ok {
			c.logger.Info().Str("phase", string(desc.Phase)).Msg("Pool exhausted")
			return nil
		}
		c.runGroup(ctx, desc, group)
	}
}

func (c *Consumer) runGroup(ctx context.Context, desc PhaseDescriptor, group pool.Group) {
	labels := models.Labels(group)

	path, err := c.stager.Stage(group)
	if err != nil {
		c.logger.Error().Err(err).
			Str("phase", string(desc.Phase)).
			Strs("labels", labels).
			Msg("Failed to stage group, skipping it")
		return
	}

	proc, err := c.launcher.Launch(ctx, interfaces.LaunchSpec{
		Context:     desc.Context,
		StagingPath: path,
		DebugDir:    c.debugDir,
	})
	if err != nil {
		c.logger.Error().Err(err).
			Str("phase", string(desc.Phase)).
			Strs("labels", labels).
			Msg("Failed to launch worker, skipping group")
		if derr := c.stager.Discard(path); derr != nil {
			c.logger.Warn().Err(derr).Str("path", path).Msg("Failed to discard staged group")
		}
		return
	}

	pid := proc.PID()
	registered := true
	if err := c.registry.Register(pid, desc.Phase, labels, proc); err != nil {
		registered = false
		c.logger.Error().Err(err).Int("pid", pid).Msg("Worker could not be registered and cannot be cancelled")
	}

	c.logger.Info().
		Str("phase", string(desc.Phase)).
		Int("pid", pid).
		Strs("labels", labels).
		Msg("Worker started")
	c.observer.OnProcessStarted(models.ProcessEvent{
		RunID:     desc.Context.RunID,
		Phase:     desc.Phase,
		PID:       pid,
		Labels:    labels,
		Timestamp: time.Now(),
	})

	for line := range proc.Messages() {
		c.handleMessage(desc, pid, line)
	}

	exitErr := proc.Wait()
	if registered {
		c.registry.MarkExited(pid, exitErr)
	}

	c.reportLost(desc.Phase, pid, labels, exitErr)

	exited := models.ProcessEvent{
		RunID:     desc.Context.RunID,
		Phase:     desc.Phase,
		PID:       pid,
		Labels:    labels,
		Timestamp: time.Now(),
	}
	if exitErr != nil {
		exited.ExitError = exitErr.Error()
	}
	c.observer.OnProcessExited(exited)
}

// handleMessage records and forwards one worker report. A report about an item seen for
// the first time is stored; a completing report is always stored.
func (c *Consumer) handleMessage(desc PhaseDescriptor, pid int, line []byte) {
	var report models.WorkerReport
	if err := json.Unmarshal(line, &report); err != nil {
		c.logger.Warn().Err(err).
			Int("pid", pid).
			Str("payload", truncate(string(line), 200)).
			Msg("Dropping malformed worker message")
		return
	}

	label := report.ItemLabel()
	if label == "" {
		c.logger.Warn().Int("pid", pid).Msg("Dropping worker message without item label")
		return
	}

	rec := models.NewResultRecord(desc.Phase, pid, report)
	if report.Bot.Node != nil {
		c.results.RecordIfAbsent(label, rec)
	}
	if report.Bot.Complete {
		c.results.Record(label, rec)
	}

	c.observer.OnProgress(models.ProgressEvent{
		RunID:     desc.Context.RunID,
		Phase:     desc.Phase,
		ChildID:   report.ChildID,
		TypeNode:  rec.TypeNode,
		Label:     label,
		PID:       pid,
		Steps:     report.Bot.Steps,
		Info:      report.Bot.Info,
		Percent:   report.Bot.Percent,
		Complete:  report.Bot.Complete,
		Fail:      report.Bot.Fail,
		Timestamp: rec.UpdatedAt,
	})
}

// reportLost logs the items of a group that exited without ever reporting.
// They are not retried.
func (c *Consumer) reportLost(phase models.Phase, pid int, labels []string, exitErr error) {
	var lost []string
	for _, label := range labels {
		if !c.results.Has(label) {
			lost = append(lost, label)
		}
	}
	if len(lost) == 0 {
		if exitErr != nil {
			c.logger.Warn().Err(exitErr).Int("pid", pid).Msg("Worker exited with error")
		}
		return
	}

	event := c.logger.Warn().
		Str("phase", string(phase)).
		Int("pid", pid).
		Strs("labels", lost)
	if exitErr != nil {
		event = event.Err(exitErr)
	}
	event.Msg("Worker exited without reporting these items")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type noopObserver struct{}

func (noopObserver) OnProgress(models.ProgressEvent)         {}
func (noopObserver) OnPoolConsumed(models.PoolConsumedEvent) {}
func (noopObserver) OnProcessStarted(models.ProcessEvent)    {}
func (noopObserver) OnProcessExited(models.ProcessEvent)     {}
func (noopObserver) OnRunFinished(*models.RunReport)         {}
