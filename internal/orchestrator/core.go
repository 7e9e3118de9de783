// Package orchestrator drives the four phases of a run: it cuts the selections into
// pools, drains each pool one worker at a time and collects what the workers report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/pool"
	"github.com/ternarybob/addressbot/internal/processes"
	"github.com/ternarybob/addressbot/internal/results"
	"github.com/ternarybob/addressbot/internal/services/metadata"
	"github.com/ternarybob/arbor"
)

var (
	// ErrAlreadyRunning is returned by Start while a run is in progress
	ErrAlreadyRunning = errors.New("a run is already in progress")
	// ErrPoolsNotCreated is returned by Start before CreateAllPools
	ErrPoolsNotCreated = errors.New("pools have not been created")
)

// Callbacks are invoked as the run progresses. Both are optional.
type Callbacks struct {
	// OnPoolConsumed fires each time one of the four pools is exhausted
	OnPoolConsumed func(phase models.Phase)
	// OnFinal fires once, after the last phase or after a cancel-all
	OnFinal func(report *models.RunReport)
}

// Core is the caller-facing orchestrator
type Core struct {
	config   *common.Config
	registry *processes.Registry
	results  *results.Aggregator
	consumer *Consumer
	storage  interfaces.ResultStorage
	observer interfaces.ProgressObserver
	logger   arbor.ILogger

	mu            sync.Mutex
	tree          []*models.TreeNode
	addCountries  []models.WorkItem
	addStates     []models.WorkItem
	editCountries []models.WorkItem
	editStates    []models.WorkItem
	disableNodes  []int
	expandNodes   []int
	pools         map[models.Phase]*pool.Pool
	rejected      []models.ResultRecord

	running   bool
	runID     string
	startedAt time.Time
	seq       *Sequencer
	done      chan struct{}
	report    *models.RunReport
}

// NewCore creates the orchestrator. storage and observer may be nil.
func NewCore(
	config *common.Config,
	launcher interfaces.WorkerLauncher,
	stager interfaces.GroupStager,
	storage interfaces.ResultStorage,
	observer interfaces.ProgressObserver,
	logger arbor.ILogger,
) *Core {
	if observer == nil {
		observer = noopObserver{}
	}
	registry := processes.NewRegistry(logger)
	aggregator := results.NewAggregator()

	return &Core{
		config:   config,
		registry: registry,
		results:  aggregator,
		consumer: NewConsumer(launcher, stager, registry, aggregator, observer, config.Worker.DebugDir, logger),
		storage:  storage,
		observer: observer,
		logger:   logger,
	}
}

// LoadTree retrieves the address settings and builds the data tree from them
func (c *Core) LoadTree(ctx context.Context, source interfaces.MetadataSource) ([]*models.TreeNode, error) {
	settings, err := source.Retrieve(ctx, c.config.ResolveLoginURL(), c.config.Target.Login, c.config.Target.Password)
	if err != nil {
		return nil, err
	}
	tree := metadata.BuildTree(settings)

	c.mu.Lock()
	c.tree = tree
	c.mu.Unlock()

	c.logger.Info().Int("countries", len(tree)).Msg("Data tree built")
	return tree, nil
}

// SetDataTree replaces the data tree
func (c *Core) SetDataTree(tree []*models.TreeNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tree = tree
}

// DataTree returns the data tree
func (c *Core) DataTree() []*models.TreeNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tree
}

// InitializeAdd queues items to add. Every item is listed in DisableNodes and
// countries additionally in ExpandNodes.
func (c *Core) InitializeAdd(items []models.WorkItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range items {
		if item.IsState() {
			c.addStates = append(c.addStates, item)
		} else {
			c.addCountries = append(c.addCountries, item)
		}
		c.disableNodes = append(c.disableNodes, item.NodeID)
		if item.IsCountry() {
			c.expandNodes = append(c.expandNodes, item.NodeID)
		}
	}
	c.logger.Debug().Int("items", len(items)).Msg("Add selection initialized")
}

// InitializeEdit queues items to edit
func (c *Core) InitializeEdit(items []models.WorkItem) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, item := range items {
		if item.IsState() {
			c.editStates = append(c.editStates, item)
		} else {
			c.editCountries = append(c.editCountries, item)
		}
	}
	c.logger.Debug().Int("items", len(items)).Msg("Edit selection initialized")
}

// DisableNodes returns the node ids of items queued for adding
func (c *Core) DisableNodes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.disableNodes...)
}

// ExpandNodes returns the node ids of countries queued for adding
func (c *Core) ExpandNodes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.expandNodes...)
}

// CreateAllPools cuts the four selections into pools of capacity items and empties
// the selections. With batch.validate_parents and a loaded data tree, states whose country
// is neither in the tree nor selected are rejected with a failed result instead of being queued.
func (c *Core) CreateAllPools(capacity int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return ErrAlreadyRunning
	}

	c.rejected = nil
	addStates, editStates := c.addStates, c.editStates
	switch {
	case !c.config.Batch.ValidateParents:
	case c.tree == nil:
		if len(addStates)+len(editStates) > 0 {
			c.logger.Warn().
				Int("states", len(addStates)+len(editStates)).
				Msg("No data tree loaded, parent countries of states are not validated")
		}
	default:
		known := metadata.CountryCodes(c.tree)
		for _, item := range c.addCountries {
			known[strings.ToUpper(item.IsoCode)] = true
		}
		for _, item := range c.editCountries {
			known[strings.ToUpper(item.IsoCode)] = true
		}
		addStates = c.rejectOrphans(models.PhaseAddStates, addStates, known)
		editStates = c.rejectOrphans(models.PhaseEditStates, editStates, known)
	}

	sources := map[models.Phase][]models.WorkItem{
		models.PhaseAddCountries:  c.addCountries,
		models.PhaseAddStates:     addStates,
		models.PhaseEditCountries: c.editCountries,
		models.PhaseEditStates:    editStates,
	}
	pools := make(map[models.Phase]*pool.Pool, len(sources))
	for phase, items := range sources {
		p, err := pool.Partition(items, capacity)
		if err != nil {
			return err
		}
		pools[phase] = p
	}

	c.pools = pools
	c.addCountries, c.addStates, c.editCountries, c.editStates = nil, nil, nil, nil

	for _, phase := range models.Phases() {
		c.logger.Info().
			Str("phase", string(phase)).
			Int("groups", pools[phase].Len()).
			Int("items", pools[phase].Total()).
			Msg("Pool created")
	}
	return nil
}

func (c *Core) rejectOrphans(phase models.Phase, states []models.WorkItem, known map[string]bool) []models.WorkItem {
	kept := states[:0:0]
	for _, item := range states {
		if known[strings.ToUpper(item.ParentIsoCode)] {
			kept = append(kept, item)
			continue
		}
		info := fmt.Sprintf("[%s] parent country %s not found", phase, item.ParentIsoCode)
		c.logger.Warn().Str("phase", string(phase)).Str("label", item.Label).Msg(info)
		c.rejected = append(c.rejected, models.NewRejectedRecord(phase, item, info))
	}
	return kept
}

// Pools returns the pools created by CreateAllPools
func (c *Core) Pools() map[models.Phase]*pool.Pool {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[models.Phase]*pool.Pool, len(c.pools))
	for phase, p := range c.pools {
		out[phase] = p
	}
	return out
}

// WorkerContext builds the context handed to every worker of phase
func (c *Core) WorkerContext(runID string, phase models.Phase) models.WorkerContext {
	return models.WorkerContext{
		RunID:       runID,
		Phase:       phase,
		Action:      phase.Action(),
		Login:       c.config.Target.Login,
		Password:    c.config.Target.Password,
		LoginURL:    c.config.ResolveLoginURL(),
		CheckOnly:   c.config.Batch.CheckOnly,
		Trace:       c.config.Batch.Trace,
		Retries:     c.config.Worker.Retries,
		Duration:    c.config.Worker.StepDuration,
		StepRetries: c.config.Worker.StepRetries,
		StepTimeout: c.config.Worker.StepTimeout,
		Headless:    c.config.Worker.Headless,
		UserAgent:   c.config.Worker.UserAgent,
		LogLevel:    c.config.Logging.Level,
	}
}

// Start runs the four phases in order. It returns once the first phase is triggered;
// use Wait or Callbacks.OnFinal to learn when the run ends.
func (c *Core) Start(ctx context.Context, cb Callbacks) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	if c.pools == nil {
		c.mu.Unlock()
		return ErrPoolsNotCreated
	}

	c.running = true
	c.startedAt = time.Now()
	c.runID = common.NewRunID(c.startedAt)
	c.done = make(chan struct{})
	c.report = nil
	c.registry.Reset()
	c.results.Reset()
	for _, rec := range c.rejected {
		c.results.Record(rec.Label, rec)
	}

	phases := make([]PhaseDescriptor, 0, 4)
	for _, phase := range models.Phases() {
		phases = append(phases, PhaseDescriptor{
			Phase:   phase,
			Action:  phase.Action(),
			Pool:    c.pools[phase],
			Context: c.WorkerContext(c.runID, phase),
		})
	}
	runID := c.runID
	c.seq = c.newSequencer(phases, cb, c.done)
	seq := c.seq
	c.mu.Unlock()

	c.logger.Info().Str("run_id", runID).Bool("check_only", c.config.Batch.CheckOnly).Msg("Run started")
	seq.Start(ctx)
	return nil
}

func (c *Core) newSequencer(phases []PhaseDescriptor, cb Callbacks, done chan struct{}) *Sequencer {
	onPoolConsumed := func(phase models.Phase) {
		c.observer.OnPoolConsumed(models.PoolConsumedEvent{
			RunID:     c.RunID(),
			Phase:     phase,
			Timestamp: time.Now(),
		})
		if cb.OnPoolConsumed != nil {
			cb.OnPoolConsumed(phase)
		}
	}
	onFinal := func(cancelled bool) {
		report := c.finish(cancelled)
		if cb.OnFinal != nil {
			cb.OnFinal(report)
		}
		close(done)
	}
	return NewSequencer(phases, c.consumer, onPoolConsumed, onFinal, c.logger)
}

func (c *Core) finish(cancelled bool) *models.RunReport {
	c.mu.Lock()
	records := c.results.Records()
	report := &models.RunReport{
		ID:         c.runID,
		StartedAt:  c.startedAt,
		FinishedAt: time.Now(),
		CheckOnly:  c.config.Batch.CheckOnly,
		Cancelled:  cancelled,
		Summary:    results.Summarize(records),
		Results:    records,
	}
	c.report = report
	c.running = false
	c.mu.Unlock()

	c.logger.Info().
		Str("run_id", report.ID).
		Str("elapsed", report.Elapsed().Round(time.Second).String()).
		Int("succeeded", report.Summary.Succeeded).
		Int("failed", report.Summary.Failed).
		Int("in_progress", report.Summary.InProgress).
		Bool("cancelled", cancelled).
		Msg("Run finished")

	if c.storage != nil {
		if err := c.storage.SaveRun(context.Background(), report); err != nil {
			c.logger.Error().Err(err).Str("run_id", report.ID).Msg("Failed to save run report")
		}
	}
	c.observer.OnRunFinished(report)
	return report
}

// Wait blocks until the current run ends and returns its report
func (c *Core) Wait(ctx context.Context) (*models.RunReport, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()

	if done == nil {
		return nil, fmt.Errorf("no run started")
	}
	select {
	case <-done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.report, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Running reports whether a run is in progress
func (c *Core) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// RunID returns the id of the current or last run
func (c *Core) RunID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.runID
}

// CancelProcess asks the worker at pid to cancel its sub-worker childID
func (c *Core) CancelProcess(pid, childID int) bool {
	return c.registry.CancelChild(pid, childID)
}

// CancelOne interrupts the whole worker at pid
func (c *Core) CancelOne(pid int) bool {
	return c.registry.CancelOne(pid)
}

// CancelAll empties every pool, marks the run cancelled and tells every running worker
// to stop. The run ends with the final callback once the running worker exits.
// Returns the number of workers signalled.
func (c *Core) CancelAll() int {
	c.mu.Lock()
	cleared := 0
	for _, p := range c.pools {
		cleared += p.Clear()
	}
	seq := c.seq
	running := c.running
	c.mu.Unlock()

	if running && seq != nil {
		seq.Cancel()
	}
	signalled := c.registry.CancelAll()

	c.logger.Info().
		Int("groups_dropped", cleared).
		Int("workers_signalled", signalled).
		Msg("Cancel all requested")
	return signalled
}

// Results returns the latest record per item label
func (c *Core) Results() map[string]models.ResultRecord {
	return c.results.Snapshot()
}

// Report returns the report of the last finished run, or nil
func (c *Core) Report() *models.RunReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}

// Processes returns every worker seen during the run
func (c *Core) Processes() []processes.ProcessInfo {
	return c.registry.Snapshot()
}

// ResetAdd drops the add selection and its node bookkeeping
func (c *Core) ResetAdd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addCountries, c.addStates = nil, nil
	c.disableNodes, c.expandNodes = nil, nil
}

// ResetEdit drops the edit selection
func (c *Core) ResetEdit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.editCountries, c.editStates = nil, nil
}

// ResetAddPool empties the two add pools
func (c *Core) ResetAddPool() {
	c.clearPools(models.PhaseAddCountries, models.PhaseAddStates)
}

// ResetEditPool empties the two edit pools
func (c *Core) ResetEditPool() {
	c.clearPools(models.PhaseEditCountries, models.PhaseEditStates)
}

func (c *Core) clearPools(phases ...models.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, phase := range phases {
		if p, ok := c.pools[phase]; ok {
			p.Clear()
		}
	}
}

// ResetAll drops selections, pools, results and the process registry.
// It does not stop a run in progress; use CancelAll for that.
func (c *Core) ResetAll() {
	c.ResetAdd()
	c.ResetEdit()
	c.ResetAddPool()
	c.ResetEditPool()

	c.mu.Lock()
	running := c.running
	if !running {
		c.pools = nil
		c.rejected = nil
	}
	c.mu.Unlock()

	if !running {
		c.results.Reset()
		c.registry.Reset()
	}
}
