package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/addressbot/internal/interfaces"
	"github.com/ternarybob/addressbot/internal/models"
	"github.com/ternarybob/addressbot/internal/processes"
	"github.com/ternarybob/addressbot/internal/results"
	"github.com/ternarybob/arbor"
)

// RunController is the part of the orchestrator the HTTP surface drives
type RunController interface {
	RunID() string
	Running() bool
	CancelOne(pid int) bool
	CancelProcess(pid, childID int) bool
	CancelAll() int
	Results() map[string]models.ResultRecord
	Processes() []processes.ProcessInfo
}

// RunHandler exposes the current run and past run reports
type RunHandler struct {
	run     RunController
	storage interfaces.ResultStorage
	printer *results.Printer
	logger  arbor.ILogger
}

func NewRunHandler(run RunController, storage interfaces.ResultStorage, logger arbor.ILogger) *RunHandler {
	return &RunHandler{
		run:     run,
		storage: storage,
		printer: results.NewPrinter(logger),
		logger:  logger,
	}
}

// RunStatus is the snapshot returned by /api/status and sent to new websocket clients
type RunStatus struct {
	RunID     string            `json:"runId"`
	Running   bool              `json:"running"`
	Processes int               `json:"processes"`
	Summary   models.RunSummary `json:"summary"`
}

// Status builds the current run snapshot
func (h *RunHandler) Status() RunStatus {
	records := make([]models.ResultRecord, 0)
	for _, rec := range h.run.Results() {
		records = append(records, rec)
	}
	return RunStatus{
		RunID:     h.run.RunID(),
		Running:   h.run.Running(),
		Processes: len(h.run.Processes()),
		Summary:   results.Summarize(records),
	}
}

// StatusHandler handles GET /api/status
func (h *RunHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.Status())
}

// ResultsHandler handles GET /api/results: the latest record per item of the current run
func (h *RunHandler) ResultsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.run.Results())
}

// ProcessesHandler handles GET /api/processes
func (h *RunHandler) ProcessesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.run.Processes())
}

// CancelHandler handles POST /api/cancel?pid=N[&childPid=M]. With a child id only that
// sub-worker is cancelled, otherwise the whole worker is interrupted.
func (h *RunHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	pid, err := IntParam(r, "pid")
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var signalled bool
	if r.FormValue("childPid") != "" {
		childID, err := IntParam(r, "childPid")
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		signalled = h.run.CancelProcess(pid, childID)
	} else {
		signalled = h.run.CancelOne(pid)
	}

	if !signalled {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("worker %d is not running", pid))
		return
	}
	h.logger.Info().Int("pid", pid).Msg("Cancel requested over HTTP")
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{"status": "cancelling", "pid": pid})
}

// CancelAllHandler handles POST /api/cancel-all
func (h *RunHandler) CancelAllHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	signalled := h.run.CancelAll()
	WriteJSON(w, http.StatusAccepted, map[string]interface{}{"status": "cancelling", "workers": signalled})
}

// ListRunsHandler handles GET /api/runs?limit=N, newest first
func (h *RunHandler) ListRunsHandler(w http.ResponseWriter, r *http.Request) {
	runs, err := h.storage.ListRuns(r.Context(), LimitParam(r, 20, 100))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list runs")
		WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}
	WriteJSON(w, http.StatusOK, runs)
}

// GetRunHandler handles GET /api/runs/{id}
func (h *RunHandler) GetRunHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, report)
}

// DeleteRunHandler handles DELETE /api/runs/{id}
func (h *RunHandler) DeleteRunHandler(w http.ResponseWriter, r *http.Request) {
	id := PathID(r.URL.Path, "/api/runs/")
	err := h.storage.DeleteRun(r.Context(), id)
	if errors.Is(err, interfaces.ErrRunNotFound) {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("run %q not found", id))
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", id).Msg("Failed to delete run")
		WriteError(w, http.StatusInternalServerError, "Failed to delete run")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkdownReportHandler handles GET /api/runs/{id}/report.md
func (h *RunHandler) MarkdownReportHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(results.RenderMarkdown(report)))
}

// PDFReportHandler handles GET /api/runs/{id}/report.pdf
func (h *RunHandler) PDFReportHandler(w http.ResponseWriter, r *http.Request) {
	report, ok := h.loadRun(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.ID+".pdf"))
	if err := h.printer.WritePDF(w, report); err != nil {
		h.logger.Error().Err(err).Str("run_id", report.ID).Msg("Failed to render PDF report")
	}
}

func (h *RunHandler) loadRun(w http.ResponseWriter, r *http.Request) (*models.RunReport, bool) {
	id := PathID(r.URL.Path, "/api/runs/")
	report, err := h.storage.GetRun(r.Context(), id)
	if errors.Is(err, interfaces.ErrRunNotFound) {
		WriteError(w, http.StatusNotFound, fmt.Sprintf("run %q not found", id))
		return nil, false
	}
	if err != nil {
		h.logger.Error().Err(err).Str("run_id", id).Msg("Failed to load run")
		WriteError(w, http.StatusInternalServerError, "Failed to load run")
		return nil, false
	}
	return report, true
}
