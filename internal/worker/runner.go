package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/staging"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/errgroup"
)

// Runner is the worker process runtime. It loads one staged group, runs a bot per item
// concurrently and writes every progress message to out as one JSON line.
type Runner struct {
	wctx     models.WorkerContext
	debugDir string
	factory  BotFactory
	logger   arbor.ILogger

	outMu sync.Mutex
	out   io.Writer

	mu      sync.Mutex
	cancels map[int]context.CancelFunc // child id -> cancel for running sub-bots
}

// NewRunner creates a runner writing progress lines to out
func NewRunner(wctx models.WorkerContext, debugDir string, factory BotFactory, out io.Writer, logger arbor.ILogger) *Runner {
	return &Runner{
		wctx:     wctx,
		debugDir: debugDir,
		factory:  factory,
		out:      out,
		logger:   logger,
		cancels:  make(map[int]context.CancelFunc),
	}
}

// Run consumes the staged group at stagingPath and blocks until every sub-bot has finished.
// Control messages are read from control until it closes; pass nil to run without one.
func (r *Runner) Run(ctx context.Context, stagingPath string, control io.Reader) error {
	group, err := staging.Consume(stagingPath)
	if err != nil {
		return err
	}

	r.logger.Info().
		Str("phase", string(r.wctx.Phase)).
		Str("action", string(r.wctx.Action)).
		Int("items", len(group)).
		Bool("check_only", r.wctx.CheckOnly).
		Msg("Worker group loaded")

	itemCtxs := make([]context.Context, len(group))
	cancels := make([]context.CancelFunc, len(group))
	for i := range group {
		itemCtxs[i], cancels[i] = context.WithCancel(ctx)
		r.track(i+1, cancels[i])
	}

	if control != nil {
		common.SafeGo(r.logger, "worker-control", func() { r.readControl(control) })
	}

	var g errgroup.Group
	for i, item := range group {
		childID := i + 1
		itemCtx, cancel := itemCtxs[i], cancels[i]

		g.Go(func() error {
			defer r.forget(childID)
			defer cancel()
			common.SafeCall(r.logger, fmt.Sprintf("sub-bot:%d", childID), func() {
				r.runItem(itemCtx, childID, item)
			})
			return nil
		})
	}

	err = g.Wait()
	r.logger.Info().Int("items", len(group)).Msg("Worker group finished")
	return err
}

func (r *Runner) runItem(ctx context.Context, childID int, item models.WorkItem) {
	emit := func(msg models.ProgressMessage) { r.emit(childID, item, msg) }

	bot, err := r.factory(ctx, r.wctx, item)
	if err != nil {
		r.logger.Error().Err(err).Str("label", item.Label).Msg("Failed to start bot")
		emit(models.ProgressMessage{
			Steps:    models.StepCounter(0, 0),
			Info:     fmt.Sprintf("An error has occurred while starting the bot for %s: %v", item.Label, err),
			Action:   r.wctx.Action,
			Complete: true,
			Fail:     true,
			Node: &models.NodeStatus{
				Label:    item.Label,
				TypeNode: item.Kind,
				Status:   models.ItemStatusFail,
				Action:   r.wctx.Action,
			},
		})
		return
	}
	defer func() {
		if err := bot.Close(); err != nil {
			r.logger.Warn().Err(err).Str("label", item.Label).Msg("Failed to close bot")
		}
	}()

	machine := NewStepMachine(item, r.wctx, bot.Steps(), emit, r.logger)
	if r.wctx.Trace {
		machine.WithTrace(func(ctx context.Context, index int) {
			path := ScreenshotPath(r.debugDir, item, index)
			if err := os.MkdirAll(ImageDir(r.debugDir, item), 0755); err != nil {
				r.logger.Warn().Err(err).Str("path", path).Msg("Failed to create image directory")
				return
			}
			if err := bot.Screenshot(ctx, path); err != nil {
				r.logger.Warn().Err(err).Str("path", path).Msg("Failed to capture step screenshot")
			}
		})
	}

	status := machine.Run(ctx)
	r.logger.Info().
		Int("child_id", childID).
		Str("label", item.Label).
		Str("status", string(status)).
		Msg("Item finished")
}

// emit writes one report line; lines from concurrent sub-bots never interleave
func (r *Runner) emit(childID int, item models.WorkItem, msg models.ProgressMessage) {
	data, err := json.Marshal(models.WorkerReport{
		ChildID:  childID,
		Label:    item.Label,
		TypeNode: item.Kind,
		Bot:      msg,
	})
	if err != nil {
		r.logger.Error().Err(err).Str("label", item.Label).Msg("Failed to encode progress message")
		return
	}

	r.outMu.Lock()
	defer r.outMu.Unlock()
	if _, err := r.out.Write(append(data, '\n')); err != nil {
		r.logger.Error().Err(err).Msg("Failed to write progress message")
	}
}

// Control applies one control message from the orchestrator
func (r *Runner) Control(msg models.ControlMessage) {
	switch msg.Type {
	case models.ControlOne:
		r.mu.Lock()
		cancel, ok := r.cancels[msg.ChildID]
		r.mu.Unlock()
		if !ok {
			r.logger.Info().Int("child_id", msg.ChildID).Msg("Sub-bot does not exist")
			return
		}
		r.logger.Info().Int("child_id", msg.ChildID).Msg("Cancelling sub-bot")
		cancel()
	case models.ControlAll:
		r.CancelAll()
	default:
		r.logger.Error().Str("type", string(msg.Type)).Msg("Unknown control message type")
	}
}

// CancelAll cancels every running sub-bot
func (r *Runner) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger.Info().Int("running", len(r.cancels)).Msg("Cancelling all sub-bots")
	for _, cancel := range r.cancels {
		cancel()
	}
}

func (r *Runner) readControl(control io.Reader) {
	scanner := bufio.NewScanner(control)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg models.ControlMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			r.logger.Warn().Err(err).Str("line", string(line)).Msg("Dropping malformed control message")
			continue
		}
		r.Control(msg)
	}
	if err := scanner.Err(); err != nil {
		r.logger.Warn().Err(err).Msg("Control channel closed with error")
	}
}

func (r *Runner) track(childID int, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels[childID] = cancel
}

func (r *Runner) forget(childID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cancels, childID)
}
