// ============================================================================
// Action Execution Engine - HTTP API
// ============================================================================
//
// Package: internal/httpapi
// File: httpapi.go
// Purpose: Bare net/http mux exposing /metrics and /healthz, mirroring the
// teacher's minimal (no router library) metrics server rather than pulling
// in a web framework for two routes.
//
// ============================================================================

package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMux builds the HTTP handler for the `run` command: /metrics scrapes
// registry, /healthz always returns 200 once the process is up (liveness
// only -- this system has no readiness dependency worth gating on).
func NewMux(registry *prometheus.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
