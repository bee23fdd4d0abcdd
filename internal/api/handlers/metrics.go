package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/wonny/stockleague/backend/internal/metricscache"
	"github.com/wonny/stockleague/backend/pkg/logger"
)

// maxLookupTickers caps one lookup request
const maxLookupTickers = 50

// MetricsHandler handles metrics-lookup API endpoints
// ⭐ SSOT: the metrics API surface is this struct only
type MetricsHandler struct {
	metrics *metricscache.Service
	logger  *logger.Logger
}

// NewMetricsHandler creates a new metrics handler
func NewMetricsHandler(metrics *metricscache.Service, log *logger.Logger) *MetricsHandler {
	return &MetricsHandler{
		metrics: metrics,
		logger:  log,
	}
}

// Lookup serves metrics snapshots for a set of tickers
// POST /api/metrics/lookup
func (h *MetricsHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	var req metricscache.LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if len(req.Tickers) == 0 {
		respondError(w, http.StatusBadRequest, "tickers is required")
		return
	}
	if len(req.Tickers) > maxLookupTickers {
		respondError(w, http.StatusBadRequest, "too many tickers")
		return
	}

	resp := h.metrics.Lookup(r.Context(), req)
	respondJSON(w, http.StatusOK, resp)
}
