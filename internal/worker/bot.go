package worker

import (
	"context"

	"github.com/ternarybob/addressbot/internal/models"
)

// StepResult is what one attempt at a step produced
type StepResult struct {
	Message string
	Done    bool
}

// Step is one unit of UI automation. A step that is not Done is attempted again.
type Step func(ctx context.Context) StepResult

// Bot drives the configuration UI for a single work item
type Bot interface {
	// Steps returns the ordered step list for the bot's action and item kind
	Steps() []Step
	// Screenshot writes the current page to path
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// BotFactory creates a bot for one item of the group
type BotFactory func(ctx context.Context, wctx models.WorkerContext, item models.WorkItem) (Bot, error)
