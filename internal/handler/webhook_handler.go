package handler

import (
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/audit"
	"github.com/jkindrix/callbridge/internal/ingest"
	"github.com/jkindrix/callbridge/internal/metrics"
	"github.com/jkindrix/callbridge/internal/middleware"
	"github.com/jkindrix/callbridge/internal/vapi"
)

// WebhookHandler receives vendor webhooks. Everything past signature
// validation acks with 200: the vendor retries on non-2xx, and a retried
// payload we cannot parse today will not parse tomorrow either.
type WebhookHandler struct {
	ingestor *ingest.Ingestor
	secret   string
	metrics  *metrics.Metrics
	audit    *audit.Logger
	logger   *zap.Logger
}

// NewWebhookHandler creates a WebhookHandler. secret may be empty, which
// disables signature validation.
func NewWebhookHandler(ingestor *ingest.Ingestor, secret string, m *metrics.Metrics, auditLog *audit.Logger, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		ingestor: ingestor,
		secret:   secret,
		metrics:  m,
		audit:    auditLog,
		logger:   logger,
	}
}

// HandleWebhook handles POST /vapi/webhook.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if h.secret != "" && !vapi.ValidateWebhook(r, h.secret) {
		h.logger.Warn("webhook signature validation failed",
			zap.String("remote_addr", r.RemoteAddr),
		)
		if h.audit != nil {
			h.audit.WebhookValidationFailed(r.Context(), r.RemoteAddr,
				middleware.GetRequestID(r.Context()), "signature mismatch")
		}
		h.record("invalid_signature", start)
		Fail(w, r, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger.Warn("failed to read webhook body", zap.Error(err))
		h.record("parse_error", start)
		OK(w, r, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	event, err := vapi.ParseWebhook(body)
	if err != nil {
		h.logger.Warn("unparseable webhook payload",
			zap.Int("body_bytes", len(body)),
			zap.Error(err),
		)
		h.record("parse_error", start)
		OK(w, r, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	h.ingestor.HandleEvent(event)
	if h.audit != nil {
		h.audit.WebhookReceived(r.Context(), event.Call.ID, r.RemoteAddr,
			middleware.GetRequestID(r.Context()))
	}
	h.record("valid", start)
	OK(w, r, http.StatusOK, map[string]string{"status": "received"})
}

func (h *WebhookHandler) record(status string, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordWebhook(status, time.Since(start))
	}
}
