package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/staging"
	"github.com/ternarybob/arbor"
)

type fakeBot struct {
	steps  []Step
	mu     sync.Mutex
	shots  []string
	closed bool
}

func (b *fakeBot) Steps() []Step { return b.steps }

func (b *fakeBot) Screenshot(ctx context.Context, path string) error {
	b.mu.Lock()
	b.shots = append(b.shots, path)
	b.mu.Unlock()
	return os.WriteFile(path, []byte("png"), 0644)
}

func (b *fakeBot) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// botSet hands out a prepared bot per label
type botSet struct {
	mu   sync.Mutex
	bots map[string]*fakeBot
	errs map[string]error
}

func (s *botSet) factory(ctx context.Context, wctx models.WorkerContext, item models.WorkItem) (Bot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[item.Label]; ok {
		return nil, err
	}
	if b, ok := s.bots[item.Label]; ok {
		return b, nil
	}
	return &fakeBot{steps: []Step{okStep("only")}}, nil
}

// waitingStep blocks until the item is cancelled, signalling entered first
func waitingStep(entered chan<- string, label string) Step {
	return func(ctx context.Context) StepResult {
		entered <- label
		<-ctx.Done()
		return StepResult{Message: "stopped"}
	}
}

func stageGroup(t *testing.T, items []models.WorkItem) string {
	t.Helper()
	stager, err := staging.NewStager(t.TempDir(), arbor.NewLogger())
	require.NoError(t, err)
	path, err := stager.Stage(items)
	require.NoError(t, err)
	return path
}

func decodeReports(t *testing.T, out []byte) []models.WorkerReport {
	t.Helper()
	var reports []models.WorkerReport
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		var r models.WorkerReport
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		reports = append(reports, r)
	}
	return reports
}

// finals returns the terminal report per label
func finals(reports []models.WorkerReport) map[string]models.WorkerReport {
	out := make(map[string]models.WorkerReport)
	for _, r := range reports {
		if r.Bot.Complete {
			out[r.Label] = r
		}
	}
	return out
}

func countryGroup(n int) []models.WorkItem {
	items := make([]models.WorkItem, n)
	for i := range items {
		items[i] = models.NewCountryItem(models.ItemAttributes{
			Label:   fmt.Sprintf("Country %d", i+1),
			IsoCode: fmt.Sprintf("C%d", i+1),
		}, false)
	}
	return items
}

func runAsync(r *Runner, path string, control io.Reader) <-chan error {
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background(), path, control) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not finish")
	}
}

func TestRunner_RunsOneBotPerItem(t *testing.T) {
	items := countryGroup(3)
	path := stageGroup(t, items)
	set := &botSet{bots: map[string]*fakeBot{
		"Country 2": {steps: []Step{okStep("a"), okStep("b")}},
	}}

	var out bytes.Buffer
	r := NewRunner(fastContext(3, 10), t.TempDir(), set.factory, &out, arbor.NewLogger())
	require.NoError(t, r.Run(context.Background(), path, nil))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "staged group is consumed")

	reports := decodeReports(t, out.Bytes())
	require.Len(t, reports, 4)

	done := finals(reports)
	require.Len(t, done, 3)
	for i, item := range items {
		report := done[item.Label]
		assert.Equal(t, i+1, report.ChildID)
		assert.Equal(t, models.NodeTypeCountry, report.TypeNode)
		assert.Equal(t, models.ItemStatusSuccess, report.Bot.Node.Status)
	}
	assert.True(t, set.bots["Country 2"].closed)
}

func TestRunner_BotStartFailureReportsItemFailed(t *testing.T) {
	items := countryGroup(2)
	set := &botSet{errs: map[string]error{"Country 1": errors.New("no browser")}}

	var out bytes.Buffer
	r := NewRunner(fastContext(3, 10), t.TempDir(), set.factory, &out, arbor.NewLogger())
	require.NoError(t, r.Run(context.Background(), stageGroup(t, items), nil))

	done := finals(decodeReports(t, out.Bytes()))
	assert.True(t, done["Country 1"].Bot.Fail)
	assert.Equal(t, models.ItemStatusFail, done["Country 1"].Bot.Node.Status)
	assert.Contains(t, done["Country 1"].Bot.Info, "no browser")
	assert.Equal(t, models.ItemStatusSuccess, done["Country 2"].Bot.Node.Status)
}

func TestRunner_MissingStagingFile(t *testing.T) {
	r := NewRunner(fastContext(3, 10), t.TempDir(), (&botSet{}).factory, io.Discard, arbor.NewLogger())
	assert.Error(t, r.Run(context.Background(), "/nonexistent/group.json", nil))
}

func TestRunner_ControlOneCancelsThatSubBot(t *testing.T) {
	items := countryGroup(2)
	entered := make(chan string, 2)
	set := &botSet{bots: map[string]*fakeBot{
		"Country 2": {steps: []Step{okStep("login"), waitingStep(entered, "Country 2")}},
	}}

	var out bytes.Buffer
	pr, pw := io.Pipe()
	defer pw.Close()

	r := NewRunner(fastContext(3, 10), t.TempDir(), set.factory, &out, arbor.NewLogger())
	done := runAsync(r, stageGroup(t, items), pr)

	assert.Equal(t, "Country 2", <-entered)
	_, err := pw.Write([]byte(`{"type":"one","childPid":2}` + "\n"))
	require.NoError(t, err)
	waitRun(t, done)

	final := finals(decodeReports(t, out.Bytes()))
	assert.Equal(t, models.ItemStatusSuccess, final["Country 1"].Bot.Node.Status)
	cancelled := final["Country 2"]
	assert.Equal(t, 2, cancelled.ChildID)
	assert.True(t, cancelled.Bot.Fail)
	assert.Equal(t, models.ItemStatusCancel, cancelled.Bot.Node.Status)
}

func TestRunner_ControlAllCancelsEverything(t *testing.T) {
	items := countryGroup(3)
	entered := make(chan string, 3)
	set := &botSet{bots: map[string]*fakeBot{}}
	for _, item := range items {
		set.bots[item.Label] = &fakeBot{steps: []Step{waitingStep(entered, item.Label)}}
	}

	var out bytes.Buffer
	pr, pw := io.Pipe()
	defer pw.Close()

	r := NewRunner(fastContext(3, 10), t.TempDir(), set.factory, &out, arbor.NewLogger())
	done := runAsync(r, stageGroup(t, items), pr)
	for range items {
		<-entered
	}

	_, err := pw.Write([]byte("garbage\n" + `{"type":"all"}` + "\n"))
	require.NoError(t, err)
	waitRun(t, done)

	final := finals(decodeReports(t, out.Bytes()))
	require.Len(t, final, 3)
	for _, report := range final {
		assert.Equal(t, models.ItemStatusCancel, report.Bot.Node.Status)
	}
}

func TestRunner_UnknownControlTypeIsIgnored(t *testing.T) {
	items := countryGroup(1)
	entered := make(chan string, 1)
	set := &botSet{bots: map[string]*fakeBot{
		"Country 1": {steps: []Step{waitingStep(entered, "Country 1")}},
	}}

	var out bytes.Buffer
	r := NewRunner(fastContext(3, 10), t.TempDir(), set.factory, &out, arbor.NewLogger())
	done := runAsync(r, stageGroup(t, items), nil)
	<-entered

	r.Control(models.ControlMessage{Type: "restart"})
	r.Control(models.ControlMessage{Type: models.ControlOne, ChildID: 42})
	select {
	case <-done:
		t.Fatal("unknown control messages must not stop the worker")
	case <-time.After(50 * time.Millisecond):
	}

	r.CancelAll()
	waitRun(t, done)
}

func TestRunner_TraceWritesScreenshots(t *testing.T) {
	items := countryGroup(1)
	bot := &fakeBot{steps: []Step{okStep("a"), okStep("b")}}
	set := &botSet{bots: map[string]*fakeBot{"Country 1": bot}}

	wctx := fastContext(3, 10)
	wctx.Trace = true
	debugDir := t.TempDir()

	r := NewRunner(wctx, debugDir, set.factory, io.Discard, arbor.NewLogger())
	require.NoError(t, r.Run(context.Background(), stageGroup(t, items), nil))

	for i := 0; i < 2; i++ {
		_, err := os.Stat(ScreenshotPath(debugDir, items[0], i))
		assert.NoError(t, err)
	}
	assert.Len(t, bot.shots, 2)
}
