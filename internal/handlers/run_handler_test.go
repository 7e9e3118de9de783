package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/processes"
	"github.com/ternarybob/arbor"
)

type fakeRun struct {
	running   map[int]bool
	cancelled []int
	children  [][2]int
	results   map[string]models.ResultRecord
}

func (f *fakeRun) RunID() string { return "run_fake" }
func (f *fakeRun) Running() bool { return len(f.running) > 0 }

func (f *fakeRun) CancelOne(pid int) bool {
	if !f.running[pid] {
		return false
	}
	f.cancelled = append(f.cancelled, pid)
	return true
}

func (f *fakeRun) CancelProcess(pid, childID int) bool {
	if !f.running[pid] {
		return false
	}
	f.children = append(f.children, [2]int{pid, childID})
	return true
}

func (f *fakeRun) CancelAll() int { return len(f.running) }

func (f *fakeRun) Results() map[string]models.ResultRecord { return f.results }

func (f *fakeRun) Processes() []processes.ProcessInfo {
	infos := make([]processes.ProcessInfo, 0, len(f.running))
	for pid := range f.running {
		infos = append(infos, processes.ProcessInfo{PID: pid, Phase: models.PhaseAddCountries, State: processes.StateRunning})
	}
	return infos
}

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) SaveRun(ctx context.Context, report *models.RunReport) error {
	return m.Called(ctx, report).Error(0)
}

func (m *mockStorage) GetRun(ctx context.Context, id string) (*models.RunReport, error) {
	args := m.Called(ctx, id)
	report, _ := args.Get(0).(*models.RunReport)
	return report, args.Error(1)
}

func (m *mockStorage) ListRuns(ctx context.Context, limit int) ([]*models.RunReport, error) {
	args := m.Called(ctx, limit)
	runs, _ := args.Get(0).([]*models.RunReport)
	return runs, args.Error(1)
}

func (m *mockStorage) DeleteRun(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func newRunFixture() (*RunHandler, *fakeRun, *mockStorage) {
	run := &fakeRun{
		running: map[int]bool{101: true},
		results: map[string]models.ResultRecord{
			"France": {
				Label:    "France",
				TypeNode: models.NodeTypeCountry,
				Phase:    models.PhaseAddCountries,
				PID:      101,
				Payload:  models.ProgressMessage{Steps: "9/9", Complete: true},
			},
			"Spain": {
				Label:    "Spain",
				TypeNode: models.NodeTypeCountry,
				Phase:    models.PhaseAddCountries,
				PID:      101,
				Payload:  models.ProgressMessage{Steps: "3/9"},
			},
		},
	}
	storage := &mockStorage{}
	return NewRunHandler(run, storage, arbor.NewLogger()), run, storage
}

func sampleReport() *models.RunReport {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return &models.RunReport{
		ID:         "run_1",
		StartedAt:  started,
		FinishedAt: started.Add(2 * time.Minute),
		Summary:    models.RunSummary{Total: 1, Succeeded: 1},
		Results: []models.ResultRecord{{
			Label:    "Québec",
			TypeNode: models.NodeTypeState,
			Phase:    models.PhaseAddStates,
			PID:      7,
			Payload: models.ProgressMessage{
				Steps:    "11/11",
				Info:     "Added",
				Complete: true,
				Node:     &models.NodeStatus{Label: "Québec", Status: models.ItemStatusSuccess},
			},
		}},
	}
}

func TestRunHandler_Status(t *testing.T) {
	h, _, _ := newRunFixture()

	rec := httptest.NewRecorder()
	h.StatusHandler(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status RunStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "run_fake", status.RunID)
	assert.True(t, status.Running)
	assert.Equal(t, 1, status.Processes)
	assert.Equal(t, 2, status.Summary.Total)
	assert.Equal(t, 1, status.Summary.Succeeded)
	assert.Equal(t, 1, status.Summary.InProgress)
}

func TestRunHandler_ResultsAndProcesses(t *testing.T) {
	h, _, _ := newRunFixture()

	rec := httptest.NewRecorder()
	h.ResultsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/results", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var results map[string]models.ResultRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	assert.Len(t, results, 2)
	assert.Equal(t, "9/9", results["France"].Payload.Steps)

	rec = httptest.NewRecorder()
	h.ProcessesHandler(rec, httptest.NewRequest(http.MethodGet, "/api/processes", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []processes.ProcessInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, 101, infos[0].PID)

	rec = httptest.NewRecorder()
	h.ResultsHandler(rec, httptest.NewRequest(http.MethodPost, "/api/results", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunHandler_Cancel(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		wantCode int
	}{
		{"missing pid", "/api/cancel", http.StatusBadRequest},
		{"bad pid", "/api/cancel?pid=abc", http.StatusBadRequest},
		{"bad child", "/api/cancel?pid=101&childPid=x", http.StatusBadRequest},
		{"unknown pid", "/api/cancel?pid=999", http.StatusNotFound},
		{"whole worker", "/api/cancel?pid=101", http.StatusAccepted},
		{"one sub-worker", "/api/cancel?pid=101&childPid=2", http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _, _ := newRunFixture()
			rec := httptest.NewRecorder()
			h.CancelHandler(rec, httptest.NewRequest(http.MethodPost, tt.url, nil))
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}

	h, run, _ := newRunFixture()
	h.CancelHandler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/cancel?pid=101", nil))
	h.CancelHandler(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/cancel?pid=101&childPid=3", nil))
	assert.Equal(t, []int{101}, run.cancelled)
	assert.Equal(t, [][2]int{{101, 3}}, run.children)

	rec := httptest.NewRecorder()
	h.CancelHandler(rec, httptest.NewRequest(http.MethodGet, "/api/cancel?pid=101", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRunHandler_CancelAll(t *testing.T) {
	h, _, _ := newRunFixture()

	rec := httptest.NewRecorder()
	h.CancelAllHandler(rec, httptest.NewRequest(http.MethodPost, "/api/cancel-all", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["workers"])
}

func TestRunHandler_ListRuns(t *testing.T) {
	h, _, storage := newRunFixture()
	storage.On("ListRuns", mock.Anything, 100).Return([]*models.RunReport{sampleReport()}, nil).Once()
	storage.On("ListRuns", mock.Anything, 20).Return(nil, errors.New("disk gone")).Once()

	rec := httptest.NewRecorder()
	h.ListRunsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs?limit=500", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var runs []*models.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run_1", runs[0].ID)

	rec = httptest.NewRecorder()
	h.ListRunsHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	storage.AssertExpectations(t)
}

func TestRunHandler_GetRun(t *testing.T) {
	h, _, storage := newRunFixture()
	storage.On("GetRun", mock.Anything, "run_1").Return(sampleReport(), nil)
	storage.On("GetRun", mock.Anything, "nope").Return(nil, interfaces.ErrRunNotFound)

	rec := httptest.NewRecorder()
	h.GetRunHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run_1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report models.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, "run_1", report.ID)
	require.Len(t, report.Results, 1)

	rec = httptest.NewRecorder()
	h.GetRunHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunHandler_DeleteRun(t *testing.T) {
	h, _, storage := newRunFixture()
	storage.On("DeleteRun", mock.Anything, "run_1").Return(nil)
	storage.On("DeleteRun", mock.Anything, "gone").Return(interfaces.ErrRunNotFound)

	rec := httptest.NewRecorder()
	h.DeleteRunHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/runs/run_1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	storage.AssertCalled(t, "DeleteRun", mock.Anything, "run_1")

	rec = httptest.NewRecorder()
	h.DeleteRunHandler(rec, httptest.NewRequest(http.MethodDelete, "/api/runs/gone", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunHandler_Reports(t *testing.T) {
	h, _, storage := newRunFixture()
	storage.On("GetRun", mock.Anything, "run_1").Return(sampleReport(), nil)

	rec := httptest.NewRecorder()
	h.MarkdownReportHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run_1/report.md", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, rec.Body.String(), "Québec")

	rec = httptest.NewRecorder()
	h.PDFReportHandler(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run_1/report.pdf", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
}
