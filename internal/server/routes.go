package server

import (
	"net/http"
)

const runsPrefix = "/api/runs/"

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	if s.ws != nil {
		mux.HandleFunc("/ws", s.ws.HandleWebSocket)
	}

	// API routes - current run
	mux.HandleFunc("/api/status", s.runs.StatusHandler)       // GET - run snapshot
	mux.HandleFunc("/api/results", s.runs.ResultsHandler)     // GET - latest record per item
	mux.HandleFunc("/api/processes", s.runs.ProcessesHandler) // GET - worker registry
	mux.HandleFunc("/api/cancel", s.runs.CancelHandler)       // POST ?pid=N[&childPid=M]
	mux.HandleFunc("/api/cancel-all", s.runs.CancelAllHandler)

	// API routes - stored runs
	mux.HandleFunc("/api/runs", s.runs.ListRunsHandler) // GET ?limit=N
	mux.HandleFunc(runsPrefix, s.handleRunRoutes)       // GET/DELETE /{id}, GET /{id}/report.md|pdf

	// API routes - System
	mux.HandleFunc("/api/version", s.api.VersionHandler)
	mux.HandleFunc("/api/health", s.api.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.api.NotFoundHandler)

	return mux
}

// handleRunRoutes routes /api/runs/{id} and its report subpaths
func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	dispatchRun(w, r, map[runRoute]http.HandlerFunc{
		{http.MethodGet, viewRun}:      s.runs.GetRunHandler,
		{http.MethodDelete, viewRun}:   s.runs.DeleteRunHandler,
		{http.MethodGet, viewMarkdown}: s.runs.MarkdownReportHandler,
		{http.MethodGet, viewPDF}:      s.runs.PDFReportHandler,
	}, s.api.NotFoundHandler)
}
