package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/addressbot/internal/common"
	"github.com/ternarybob/arbor"
)

// APIHandler serves the process-level endpoints that do not depend on a run
type APIHandler struct {
	logger    arbor.ILogger
	startedAt time.Time
}

func NewAPIHandler(logger arbor.ILogger) *APIHandler {
	return &APIHandler{
		logger:    logger,
		startedAt: time.Now(),
	}
}

// VersionHandler handles GET /api/version
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"full":    common.GetFullVersion(),
	})
}

// HealthHandler handles GET /api/health
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// NotFoundHandler answers unknown /api/ paths with a JSON 404
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("No API route")
	WriteJSON(w, http.StatusNotFound, map[string]string{
		"status": "error",
		"error":  "Not Found",
		"path":   r.URL.Path,
	})
}
