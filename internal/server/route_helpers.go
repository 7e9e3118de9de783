package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/addressbot/internal/handlers"
)

// runView is the resource addressed below /api/runs/{id}
type runView string

const (
	viewRun      runView = ""
	viewMarkdown runView = "report.md"
	viewPDF      runView = "report.pdf"
)

type runRoute struct {
	method string
	view   runView
}

// parseRunPath splits "/api/runs/{id}[/report.md|/report.pdf]".
// ok is false for a missing id or an unknown subpath.
func parseRunPath(path string) (id string, view runView, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, runsPrefix), "/")
	if rest == "" {
		return "", viewRun, false
	}

	parts := strings.Split(rest, "/")
	switch len(parts) {
	case 1:
		return parts[0], viewRun, true
	case 2:
		if v := runView(parts[1]); v == viewMarkdown || v == viewPDF {
			return parts[0], v, true
		}
	}
	return "", viewRun, false
}

// dispatchRun serves a parsed run path from table; a known path with an unrouted method is a 405
func dispatchRun(w http.ResponseWriter, r *http.Request, table map[runRoute]http.HandlerFunc, notFound http.HandlerFunc) {
	_, view, ok := parseRunPath(r.URL.Path)
	if !ok {
		notFound(w, r)
		return
	}

	handler, ok := table[runRoute{method: r.Method, view: view}]
	if !ok {
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	handler(w, r)
}
