package api

import (
	"net/http"

	"github.com/zhaokm8093/shared/pkg/apierror"
)

// StatsProvider reports the deduplicator's table sizes and service state.
type StatsProvider interface {
	GetStats() map[string]interface{}
}

// StatsFunc adapts a plain function to StatsProvider.
type StatsFunc func() map[string]interface{}

// GetStats calls f.
func (f StatsFunc) GetStats() map[string]interface{} { return f() }

// StatsHandler serves a snapshot of the deduplication tables.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a stats handler reading from statsProvider.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats answers GET and HEAD /stats. The snapshot changes on every
// request, so it is never cached.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		writeError(w, apierror.Normalize(http.StatusMethodNotAllowed, apierror.CodeBadRequest, ""))
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	if h.statsProvider == nil {
		writeError(w, apierror.Normalize(http.StatusServiceUnavailable, "", ""))
		return
	}
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}
