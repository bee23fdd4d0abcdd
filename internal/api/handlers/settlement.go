package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/wonny/stockleague/backend/internal/contracts"
	"github.com/wonny/stockleague/backend/internal/settlement"
	"github.com/wonny/stockleague/backend/pkg/logger"
)

// secretHeader carries the shared secret the external scheduling
// trigger authenticates with
const secretHeader = "X-Settle-Secret"

// SettlementHandler handles settlement API endpoints
type SettlementHandler struct {
	resolver *settlement.Resolver
	secret   string
	logger   *logger.Logger
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(resolver *settlement.Resolver, secret string, log *logger.Logger) *SettlementHandler {
	return &SettlementHandler{
		resolver: resolver,
		secret:   secret,
		logger:   log,
	}
}

// ResolveRequest is the settlement trigger payload
type ResolveRequest struct {
	WeekID    string    `json:"weekId"`
	WeekStart time.Time `json:"weekStart"`
	WeekEnd   time.Time `json:"weekEnd"`
	Tickers   []string  `json:"tickers"`
}

// ResolveResponse reports the settlement outcome
type ResolveResponse struct {
	ResolvedCount int      `json:"resolvedCount"`
	Missing       []string `json:"missing"`
}

// Resolve settles open/close prices for one scoring week
// POST /api/settlement/resolve
func (h *SettlementHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		respondError(w, http.StatusUnauthorized, "invalid settlement secret")
		return
	}

	var req ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.WeekID == "" || req.WeekStart.IsZero() || req.WeekEnd.IsZero() {
		respondError(w, http.StatusBadRequest, "weekId, weekStart and weekEnd are required")
		return
	}
	if req.WeekEnd.Before(req.WeekStart) {
		respondError(w, http.StatusBadRequest, "weekEnd must not precede weekStart")
		return
	}
	if len(req.Tickers) == 0 {
		respondError(w, http.StatusBadRequest, "tickers is required")
		return
	}

	week := contracts.SettlementWeek{
		ID:    req.WeekID,
		Start: req.WeekStart,
		End:   req.WeekEnd,
	}

	result, err := h.resolver.ResolveWeek(r.Context(), week, req.Tickers)
	if err != nil {
		h.logger.WithError(err).WithField("week_id", req.WeekID).Error("Settlement resolution failed")
		respondError(w, http.StatusInternalServerError, "settlement resolution failed")
		return
	}

	respondJSON(w, http.StatusOK, ResolveResponse{
		ResolvedCount: len(result.Prices),
		Missing:       result.Missing,
	})
}

// authorized compares the shared secret in constant time. A server
// configured without a secret refuses every request.
func (h *SettlementHandler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false
	}
	given := r.Header.Get(secretHeader)
	return subtle.ConstantTimeCompare([]byte(given), []byte(h.secret)) == 1
}
