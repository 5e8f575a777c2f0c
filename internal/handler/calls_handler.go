package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/cache"
	"github.com/jkindrix/callbridge/internal/metrics"
)

// CallsHandler serves cached call results. Callers running in webhook
// mode poll GET /vapi/calls/{callID} until the result shows up.
type CallsHandler struct {
	cache   *cache.ResultCache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewCallsHandler creates a CallsHandler.
func NewCallsHandler(resultCache *cache.ResultCache, m *metrics.Metrics, logger *zap.Logger) *CallsHandler {
	return &CallsHandler{cache: resultCache, metrics: m, logger: logger}
}

// RegisterRoutes registers the call result routes.
func (h *CallsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/vapi/calls/{callID}", h.GetCall)
	r.Delete("/vapi/calls/{callID}", h.DeleteCall)
	r.Get("/vapi/cache/stats", h.CacheStats)
}

// GetCall handles GET /vapi/calls/{callID}. A miss is the normal case
// while the call is still running, so it stays at debug level.
func (h *CallsHandler) GetCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if callID == "" {
		Fail(w, r, http.StatusBadRequest, "call id is required")
		return
	}

	entry := h.cache.Get(callID)
	if h.metrics != nil {
		h.metrics.RecordCacheLookup(entry != nil)
	}
	if entry == nil {
		h.logger.Debug("cache miss", zap.String("call_id", callID))
		Fail(w, r, http.StatusNotFound, "call result not cached")
		return
	}

	JSON(w, r, http.StatusOK, Response{
		Success: true,
		Data:    entry.Result,
	})
}

// DeleteCall handles DELETE /vapi/calls/{callID}.
func (h *CallsHandler) DeleteCall(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	if callID == "" {
		Fail(w, r, http.StatusBadRequest, "call id is required")
		return
	}

	h.cache.Delete(callID)
	OK(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// CacheStats handles GET /vapi/cache/stats.
func (h *CallsHandler) CacheStats(w http.ResponseWriter, r *http.Request) {
	stats := h.cache.GetStats()
	if h.metrics != nil {
		h.metrics.SetCacheEntries(stats.Size)
	}
	OK(w, r, http.StatusOK, stats)
}
