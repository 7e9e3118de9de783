package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/arbor"
)

type messageLog struct {
	mu   sync.Mutex
	msgs []models.ProgressMessage
}

func (l *messageLog) emit(msg models.ProgressMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = append(l.msgs, msg)
}

func (l *messageLog) all() []models.ProgressMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.ProgressMessage(nil), l.msgs...)
}

func fastContext(retries, stepRetries int) models.WorkerContext {
	return models.WorkerContext{
		Action:      models.ActionAdd,
		Retries:     retries,
		StepRetries: stepRetries,
		Duration:    time.Millisecond,
	}
}

func okStep(msg string) Step {
	return func(ctx context.Context) StepResult { return StepResult{Message: msg, Done: true} }
}

func failStep(msg string) Step {
	return func(ctx context.Context) StepResult { return StepResult{Message: msg} }
}

// flakyStep fails n times before succeeding
func flakyStep(n int) Step {
	calls := 0
	return func(ctx context.Context) StepResult {
		calls++
		return StepResult{Message: "flaky", Done: calls > n}
	}
}

func testCountry() models.WorkItem {
	return models.NewCountryItem(models.ItemAttributes{Label: "France", IsoCode: "FR"}, false)
}

func TestStepMachine_AllStepsSucceed(t *testing.T) {
	log := &messageLog{}
	m := NewStepMachine(testCountry(), fastContext(3, 10), []Step{okStep("one"), okStep("two"), okStep("three")}, log.emit, arbor.NewLogger())

	status := m.Run(context.Background())
	assert.Equal(t, models.ItemStatusSuccess, status)

	msgs := log.all()
	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"1/3", "2/3", "3/3"}, []string{msgs[0].Steps, msgs[1].Steps, msgs[2].Steps})
	assert.Equal(t, []int{33, 67, 100}, []int{msgs[0].Percent, msgs[1].Percent, msgs[2].Percent})

	for _, msg := range msgs[:2] {
		assert.False(t, msg.Complete)
		assert.Equal(t, models.ItemStatusCancel, msg.Node.Status, "running items report cancel")
	}
	last := msgs[2]
	assert.True(t, last.Complete)
	assert.False(t, last.Fail)
	assert.Equal(t, models.ItemStatusSuccess, last.Node.Status)
	assert.Equal(t, "France", last.Node.Label)
	assert.Equal(t, models.NodeTypeCountry, last.Node.TypeNode)
	assert.Equal(t, models.ActionAdd, last.Action)
}

func TestStepMachine_RetriesFailedStep(t *testing.T) {
	log := &messageLog{}
	m := NewStepMachine(testCountry(), fastContext(3, 5), []Step{okStep("one"), flakyStep(2), okStep("three")}, log.emit, arbor.NewLogger())

	assert.Equal(t, models.ItemStatusSuccess, m.Run(context.Background()))

	msgs := log.all()
	require.Len(t, msgs, 5, "one message per attempt")
	assert.Equal(t, "2/3", msgs[1].Steps)
	assert.Equal(t, "2/3", msgs[2].Steps)
	assert.Equal(t, "2/3", msgs[3].Steps)
	assert.True(t, msgs[4].Complete)
}

func TestStepMachine_LastStepMustSucceedToComplete(t *testing.T) {
	log := &messageLog{}
	m := NewStepMachine(testCountry(), fastContext(3, 5), []Step{okStep("one"), flakyStep(1)}, log.emit, arbor.NewLogger())

	assert.Equal(t, models.ItemStatusSuccess, m.Run(context.Background()))

	msgs := log.all()
	require.Len(t, msgs, 3)
	assert.False(t, msgs[1].Complete)
	assert.Equal(t, models.ItemStatusCancel, msgs[1].Node.Status)
	assert.True(t, msgs[2].Complete)
}

func TestStepMachine_FailsOnceRetriesAreSpent(t *testing.T) {
	log := &messageLog{}
	m := NewStepMachine(testCountry(), fastContext(2, 3), []Step{okStep("one"), failStep("never")}, log.emit, arbor.NewLogger())

	assert.Equal(t, models.ItemStatusFail, m.Run(context.Background()))

	msgs := log.all()
	// each retry: step one once, step two three times
	require.Len(t, msgs, 2*(1+3)+1)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "0/2", last.Steps)
	assert.Equal(t, 0, last.Percent)
	assert.Equal(t, "Tried to add 2 times country but failed", last.Info)
	assert.True(t, last.Complete)
	assert.True(t, last.Fail)
	assert.Equal(t, models.ItemStatusFail, last.Node.Status)

	for _, msg := range msgs[:len(msgs)-1] {
		assert.False(t, msg.Complete)
	}
}

func TestStepMachine_CancelledMidStep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	blocking := func(ctx context.Context) StepResult {
		cancel()
		<-ctx.Done()
		return StepResult{Message: "interrupted"}
	}

	log := &messageLog{}
	m := NewStepMachine(testCountry(), fastContext(3, 10), []Step{okStep("one"), blocking, okStep("three")}, log.emit, arbor.NewLogger())

	assert.Equal(t, models.ItemStatusCancel, m.Run(ctx))

	msgs := log.all()
	require.Len(t, msgs, 2)
	last := msgs[1]
	assert.Equal(t, "1/3", last.Steps)
	assert.True(t, last.Complete)
	assert.True(t, last.Fail)
	assert.Equal(t, models.ItemStatusCancel, last.Node.Status)
}

func TestStepMachine_TraceHookPerExecutedStep(t *testing.T) {
	var traced []int
	log := &messageLog{}
	m := NewStepMachine(testCountry(), fastContext(3, 10), []Step{okStep("one"), flakyStep(1), okStep("three")}, log.emit, arbor.NewLogger()).
		WithTrace(func(ctx context.Context, index int) { traced = append(traced, index) })

	m.Run(context.Background())
	assert.Equal(t, []int{0, 1, 1, 2}, traced)
}

func TestStepMachine_NoSteps(t *testing.T) {
	log := &messageLog{}
	m := NewStepMachine(testCountry(), fastContext(3, 10), nil, log.emit, arbor.NewLogger())

	assert.Equal(t, models.ItemStatusSuccess, m.Run(context.Background()))
	require.Len(t, log.all(), 1)
	assert.True(t, log.all()[0].Complete)
}

func TestNewStepMachine_Defaults(t *testing.T) {
	m := NewStepMachine(testCountry(), models.WorkerContext{Action: models.ActionEdit}, nil, func(models.ProgressMessage) {}, arbor.NewLogger())
	assert.Equal(t, DefaultRetries, m.retries)
	assert.Equal(t, DefaultStepRetries, m.stepRetries)
	assert.Equal(t, models.ActionEdit, m.action)
}

func TestScreenshotPath(t *testing.T) {
	country := testCountry()
	state := models.NewStateItem(models.ItemAttributes{Label: "Ontario", IsoCode: "ON"}, "CA")

	assert.Equal(t, "/dbg/images/countries/FR/step_FR_3.png", ScreenshotPath("/dbg", country, 3))
	assert.Equal(t, "/dbg/images/states/CA/ON/step_ON_0.png", ScreenshotPath("/dbg", state, 0))
}
