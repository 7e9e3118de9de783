package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/staging"
	"github.com/ternarybob/arbor"
)

// eventLog is a thread-safe ordered record of what happened during a run
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

// recordingObserver writes every notification into the log
type recordingObserver struct {
	log      *eventLog
	mu       sync.Mutex
	progress []models.ProgressEvent
	started  chan models.ProcessEvent
}

func newRecordingObserver(log *eventLog) *recordingObserver {
	return &recordingObserver{log: log, started: make(chan models.ProcessEvent, 64)}
}

func (o *recordingObserver) OnProgress(e models.ProgressEvent) {
	o.mu.Lock()
	o.progress = append(o.progress, e)
	o.mu.Unlock()
	o.log.add("progress:%s:%s", e.Phase, e.Label)
}

func (o *recordingObserver) OnPoolConsumed(e models.PoolConsumedEvent) {
	o.log.add("consumed:%s", e.Phase)
}

func (o *recordingObserver) OnProcessStarted(e models.ProcessEvent) {
	o.log.add("start:%s:%d", e.Phase, e.PID)
	o.started <- e
}

func (o *recordingObserver) OnProcessExited(e models.ProcessEvent) {
	o.log.add("exit:%s:%d", e.Phase, e.PID)
}

func (o *recordingObserver) OnRunFinished(r *models.RunReport) {
	o.log.add("finished")
}

func (o *recordingObserver) progressEvents() []models.ProgressEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]models.ProgressEvent(nil), o.progress...)
}

// fakeProcess plays back scripted output. A blocking process keeps its output open
// until it is interrupted or told to cancel everything.
type fakeProcess struct {
	pid      int
	messages chan []byte
	exitErr  error

	mu       sync.Mutex
	sent     []models.ControlMessage
	released bool
	exited   bool
}

func (p *fakeProcess) PID() int                { return p.pid }
func (p *fakeProcess) Messages() <-chan []byte { return p.messages }

func (p *fakeProcess) Interrupt() error {
	p.release()
	return nil
}

func (p *fakeProcess) Send(msg models.ControlMessage) error {
	p.mu.Lock()
	if p.exited {
		p.mu.Unlock()
		return errors.New("process exited")
	}
	p.sent = append(p.sent, msg)
	p.mu.Unlock()

	if msg.Type == models.ControlAll {
		p.release()
	}
	return nil
}

func (p *fakeProcess) Wait() error {
	p.mu.Lock()
	p.exited = true
	p.mu.Unlock()
	return p.exitErr
}

func (p *fakeProcess) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.released {
		p.released = true
		close(p.messages)
	}
}

func (p *fakeProcess) controlMessages() []models.ControlMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.ControlMessage(nil), p.sent...)
}

// behaviour decides what a launched worker does with its group
type behaviour struct {
	lines   [][]byte
	exitErr error
	block   bool
}

// fakeLauncher consumes the staged group like a real worker and starts a fakeProcess
type fakeLauncher struct {
	mu       sync.Mutex
	nextPID  int
	launches []interfaces.LaunchSpec
	groups   [][]models.WorkItem
	procs    []*fakeProcess
	failOn   map[int]bool // launch numbers (1-based) that fail to spawn
	script   func(spec interfaces.LaunchSpec, group []models.WorkItem) behaviour
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{nextPID: 1000, failOn: map[int]bool{}}
}

func (l *fakeLauncher) Launch(ctx context.Context, spec interfaces.LaunchSpec) (interfaces.WorkerProcess, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	attempt := len(l.launches) + 1
	l.launches = append(l.launches, spec)
	if l.failOn[attempt] {
		return nil, fmt.Errorf("spawn failed")
	}

	group, err := staging.Consume(spec.StagingPath)
	if err != nil {
		return nil, err
	}
	l.groups = append(l.groups, group)

	var b behaviour
	if l.script != nil {
		b = l.script(spec, group)
	}

	l.nextPID++
	proc := &fakeProcess{
		pid:      l.nextPID,
		messages: make(chan []byte, len(b.lines)+1),
		exitErr:  b.exitErr,
	}
	for _, line := range b.lines {
		proc.messages <- line
	}
	if !b.block {
		proc.release()
	}
	l.procs = append(l.procs, proc)
	return proc, nil
}

func (l *fakeLauncher) launchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.launches)
}

func (l *fakeLauncher) process(i int) *fakeProcess {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[i]
}

func (l *fakeLauncher) groupSizes() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	sizes := make([]int, len(l.groups))
	for i, g := range l.groups {
		sizes[i] = len(g)
	}
	return sizes
}

// reportLine builds one worker output line
func reportLine(t *testing.T, item models.WorkItem, steps string, complete, fail bool, status models.ItemStatus) []byte {
	t.Helper()
	data, err := json.Marshal(models.WorkerReport{
		ChildID:  1,
		Label:    item.Label,
		TypeNode: item.Kind,
		Bot: models.ProgressMessage{
			Steps:    steps,
			Info:     "step " + steps,
			Complete: complete,
			Fail:     fail,
			Node:     &models.NodeStatus{Label: item.Label, TypeNode: item.Kind, Status: status},
		},
	})
	require.NoError(t, err)
	return data
}

func countries(n int) []models.WorkItem {
	items := make([]models.WorkItem, n)
	for i := range items {
		items[i] = models.NewCountryItem(models.ItemAttributes{
			Label:   fmt.Sprintf("Country %d", i+1),
			IsoCode: fmt.Sprintf("C%d", i+1),
		}, false)
		items[i].NodeID = i * 10
	}
	return items
}

func states(parent string, n int) []models.WorkItem {
	items := make([]models.WorkItem, n)
	for i := range items {
		items[i] = models.NewStateItem(models.ItemAttributes{
			Label:   fmt.Sprintf("State %s-%d", parent, i+1),
			IsoCode: fmt.Sprintf("S%d", i+1),
		}, parent)
		items[i].NodeID = 100 + i
	}
	return items
}

func testConfig(t *testing.T) *common.Config {
	t.Helper()
	cfg := common.NewDefaultConfig()
	cfg.Worker.DebugDir = t.TempDir()
	cfg.Batch.Capacity = 2
	return cfg
}

func newTestStager(t *testing.T) *staging.Stager {
	t.Helper()
	s, err := staging.NewStager(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)
	return s
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}
