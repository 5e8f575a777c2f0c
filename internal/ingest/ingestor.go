package ingest

import (
	"go.uber.org/zap"

	"github.com/jkindrix/callbridge/internal/cache"
	"github.com/jkindrix/callbridge/internal/validation"
	"github.com/jkindrix/callbridge/internal/vapi"
)

// Ingestor turns parsed vendor webhook events into cache entries and
// triggers background enrichment. It never fails: webhook handling must
// always ack so the vendor does not retry.
type Ingestor struct {
	cache    *cache.ResultCache
	enricher *Enricher
	logger   *zap.Logger
}

// NewIngestor creates an Ingestor.
func NewIngestor(resultCache *cache.ResultCache, enricher *Enricher, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		cache:    resultCache,
		enricher: enricher,
		logger:   logger,
	}
}

// HandleEvent processes one webhook event. End-of-call reports are cached
// as partial results and enriched asynchronously; everything else is
// observed and dropped.
func (i *Ingestor) HandleEvent(event *vapi.Event) {
	switch event.Type {
	case vapi.EventEndOfCallReport:
		i.handleEndOfCall(event)
	case vapi.EventStatusUpdate:
		i.logger.Debug("call status update",
			zap.String("call_id", event.Call.ID),
			zap.String("status", event.Status),
		)
	default:
		i.logger.Debug("ignoring webhook event",
			zap.String("type", event.Type),
		)
	}
}

func (i *Ingestor) handleEndOfCall(event *vapi.Event) {
	result := vapi.ResultFromEvent(event, i.logger)
	if result.CallID == "" {
		i.logger.Warn("end-of-call report without call id, dropping")
		return
	}

	v := validation.NewCallEventValidator()
	v.ValidateCallID(result.CallID)
	v.ValidateStatus(string(result.Status))
	v.ValidateProviderName(result.ProviderName)
	v.ValidateTranscript(result.Transcript)
	if errs := v.Errors(); errs.HasErrors() {
		i.logger.Warn("end-of-call report failed validation, dropping",
			zap.String("call_id", result.CallID),
			zap.String("errors", errs.Error()),
		)
		return
	}

	i.cache.Set(result.CallID, result, cache.StatusPartial)
	i.logger.Info("end-of-call report cached",
		zap.String("call_id", result.CallID),
		zap.String("status", string(result.Status)),
		zap.Bool("correlated", result.ProviderID != nil),
	)

	i.enricher.Start(result.CallID)
}
