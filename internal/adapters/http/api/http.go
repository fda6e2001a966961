// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/zhaokm8093/shared/pkg/apierror"
	"github.com/zhaokm8093/shared/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Transport performs deduplicated upstream calls. Nil until started.
	Transport() http.RoundTripper

	// Upstream is the backend base URL. Nil until started.
	Upstream() *url.URL
}

// Server wires HTTP routes for the proxy.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	proxyHandler  *ProxyHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, log logger.Logger) *Server {
	return &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		proxyHandler:  NewProxyHandler(deps, log),
	}
}

// Register attaches all HTTP routes to mux. Everything that is not an
// internal route is proxied upstream.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/metrics", MetricsMiddleware(s.healthHandler.HandleHealth, "metrics"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/", RequestIDMiddleware(MetricsMiddleware(s.proxyHandler.HandleProxy, "proxy")))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, e *apierror.Error) {
	writeJSON(w, e.Status, apierror.Fail(e))
}
