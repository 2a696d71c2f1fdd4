package api

import (
	"net/http"
	"strings"

	llm "github.com/katarzynaochnikdu/LEM-V1/internal/adapters/llm"
	"github.com/katarzynaochnikdu/LEM-V1/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	version string
	models  func() *llm.Runtime
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string, models func() *llm.Runtime) *HealthHandler {
	return &HealthHandler{
		version: version,
		models:  models,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

type healthResponse struct {
	Status  string    `json:"status"`
	Version string    `json:"version"`
	LLM     *llm.Info `json:"llm,omitempty"`
}

// HandleHealth handles GET /health and /healthz.
// If the Accept header contains "application/openmetrics-text" or "text/plain",
// it returns Prometheus metrics. Otherwise, it returns JSON health status.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/openmetrics-text") || strings.Contains(accept, "text/plain") {
		h.metrics.ServeHTTP(w, r)
		return
	}
	resp := healthResponse{Status: "healthy", Version: h.version}
	if rt := h.models(); rt != nil {
		info := rt.Info()
		resp.LLM = &info
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleMetrics handles GET /metrics.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
